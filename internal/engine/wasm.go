package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"

	"media-converter/internal/logging"
)

// WasmEngine runs a WASI build of ffmpeg inside wazero. Each run gets a fresh
// module instance with WorkDir mounted as the filesystem root.
type WasmEngine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	cache    wazero.CompilationCache
	log      logging.Logger
}

// NewWasmEngine compiles the module at modulePath. When cacheDir is not
// empty, compiled code is cached there across restarts.
func NewWasmEngine(ctx context.Context, modulePath, cacheDir string) (*WasmEngine, error) {
	if modulePath == "" {
		return nil, fmt.Errorf("%w: no wasm module configured", ErrProgramUnavailable)
	}
	code, err := os.ReadFile(modulePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read wasm module: %w", err)
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)

	var cache wazero.CompilationCache
	if cacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(cacheDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open wasm compilation cache: %w", err)
		}
		cfg = cfg.WithCompilationCache(cache)
	}

	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	start := time.Now()
	compiled, err := r.CompileModule(ctx, code)
	if err != nil {
		_ = r.Close(ctx)
		if cache != nil {
			_ = cache.Close(ctx)
		}
		return nil, fmt.Errorf("failed to compile wasm module: %w", err)
	}

	log := logging.For("wasm")
	log.Info("Compiled %s in %s", modulePath, time.Since(start).Round(time.Millisecond))

	return &WasmEngine{
		runtime:  r,
		compiled: compiled,
		cache:    cache,
		log:      log,
	}, nil
}

// Name returns "wasm".
func (w *WasmEngine) Name() string { return "wasm" }

// Supports reports true for ffmpeg only.
func (w *WasmEngine) Supports(program string) bool {
	return program == ProgramFFmpeg
}

// Run instantiates the module with inv.Args. Closing the module on context
// expiry stops execution.
func (w *WasmEngine) Run(ctx context.Context, inv Invocation) (*Output, error) {
	if !w.Supports(inv.Program) {
		return nil, fmt.Errorf("%w: %s", ErrProgramUnavailable, inv.Program)
	}

	stdout := newHeadBuffer(inv.MaxOutputBytes)
	stderr := newTailBuffer(inv.MaxOutputBytes)

	modCfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{inv.Program}, inv.Args...)...).
		WithStdout(stdout).
		WithStderr(stderr).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(inv.WorkDir, "/")).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)

	start := time.Now()
	mod, err := w.runtime.InstantiateModule(ctx, w.compiled, modCfg)
	if mod != nil {
		defer func() {
			if cerr := mod.Close(context.Background()); cerr != nil {
				w.log.Debug("module close: %v", cerr)
			}
		}()
	}

	out := &Output{
		Stdout:    stdout.Bytes(),
		Stderr:    stderr.Bytes(),
		Truncated: stdout.truncated || stderr.truncated,
		Duration:  time.Since(start),
	}

	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = int(exitErr.ExitCode())
			return out, nil
		}
		return out, fmt.Errorf("wasm ffmpeg: %w", err)
	}
	return out, nil
}

// Close releases the runtime and the compilation cache.
func (w *WasmEngine) Close(ctx context.Context) error {
	err := w.runtime.Close(ctx)
	if w.cache != nil {
		if cerr := w.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
