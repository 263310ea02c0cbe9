package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-converter/internal/logging"
)

// Programs the engines may be asked to run.
const (
	ProgramFFmpeg   = "ffmpeg"
	ProgramGifsicle = "gifsicle"
)

// Default limits applied when an Invocation leaves them unset.
const (
	DefaultTimeout        = 5 * time.Minute
	DefaultMaxOutputBytes = 10 * 1024 * 1024
)

// ErrProgramUnavailable is returned by an Engine asked to run a program it
// cannot provide.
var ErrProgramUnavailable = errors.New("program not available")

// Invocation is one engine run. Paths in Args are relative to WorkDir.
type Invocation struct {
	Program string
	Args    []string
	WorkDir string

	Timeout        time.Duration
	MaxOutputBytes int64

	// OutputFile, relative to WorkDir, must exist and be non-empty after a
	// successful run. Empty skips the check.
	OutputFile string
}

// Output is what a finished run produced besides its files.
type Output struct {
	ExitCode  int
	Stdout    []byte
	Stderr    []byte
	Truncated bool
	Duration  time.Duration
}

// Engine runs a program against files in a working directory. Run returns
// a non-nil Output whenever the program started, including non-zero exits,
// and returns an error only when the program could not run to completion.
type Engine interface {
	Name() string
	Supports(program string) bool
	Run(ctx context.Context, inv Invocation) (*Output, error)
}

// Observer receives engine run events.
type Observer interface {
	ObserveRun(engineName, program string, durationSeconds float64, kind ErrorKind)
	ObserveProcesses(delta int)
}

type nopObserver struct{}

func (nopObserver) ObserveRun(string, string, float64, ErrorKind) {}
func (nopObserver) ObserveProcesses(int)                          {}

// Invoker applies limits to an Engine and turns its results into classified
// errors.
type Invoker struct {
	engine         Engine
	timeout        time.Duration
	maxOutputBytes int64
	observer       Observer
	log            logging.Logger
}

// InvokerConfig holds the limits applied by an Invoker.
type InvokerConfig struct {
	Timeout        time.Duration
	MaxOutputBytes int64
	Observer       Observer
}

// NewInvoker creates an Invoker for e.
func NewInvoker(e Engine, cfg InvokerConfig) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &Invoker{
		engine:         e,
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		observer:       cfg.Observer,
		log:            logging.For("engine"),
	}
}

// Engine returns the wrapped engine.
func (i *Invoker) Engine() Engine { return i.engine }

// Timeout returns the default per-run limit.
func (i *Invoker) Timeout() time.Duration { return i.timeout }

// Supports reports whether the wrapped engine can run program.
func (i *Invoker) Supports(program string) bool { return i.engine.Supports(program) }

// Invoke runs inv under its timeout. Failures are returned as *Error; a
// timeout yields KindEngineTimeout and no Output.
func (i *Invoker) Invoke(ctx context.Context, inv Invocation) (*Output, error) {
	if inv.Timeout <= 0 {
		inv.Timeout = i.timeout
	}
	if inv.MaxOutputBytes <= 0 {
		inv.MaxOutputBytes = i.maxOutputBytes
	}

	runCtx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	i.log.Debug("%s %s: %v", i.engine.Name(), inv.Program, inv.Args)

	start := time.Now()
	out, err := i.engine.Run(runCtx, inv)
	elapsed := time.Since(start)

	cerr := i.check(ctx, runCtx, inv, out, err)
	i.observer.ObserveRun(i.engine.Name(), inv.Program, elapsed.Seconds(), KindOf(cerr))
	if cerr != nil {
		return nil, cerr
	}
	out.Duration = elapsed
	return out, nil
}

func (i *Invoker) check(parent, runCtx context.Context, inv Invocation, out *Output, err error) error {
	// The deadline wins over whatever the killed program reported.
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		i.log.Warn("%s timed out after %s", inv.Program, inv.Timeout)
		return Wrap(KindEngineTimeout, runCtx.Err(), "")
	}
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return Wrap(KindEngineTimeout, parent.Err(), "")
		}
		return Wrap(KindGeneric, parent.Err(), "conversion canceled")
	}

	if err != nil {
		i.log.Error("%s failed to run: %v", inv.Program, err)
		return Wrap(KindGeneric, err, "")
	}

	if out.ExitCode != 0 {
		stderr := string(out.Stderr)
		kind, detail := Classify(stderr)
		i.log.Error("%s exited with code %d (%s): %s", inv.Program, out.ExitCode, kind, lastLines(stderr, 5))
		return &Error{
			Kind:   kind,
			Detail: detail,
			Stderr: lastLines(stderr, 20),
			Err:    fmt.Errorf("%s exit status %d", inv.Program, out.ExitCode),
		}
	}

	if inv.OutputFile != "" {
		return VerifyOutput(inv.WorkDir, inv.OutputFile)
	}
	return nil
}

// VerifyOutput returns a KindEmptyOutput error unless name exists in dir
// and is non-empty.
func VerifyOutput(dir, name string) error {
	info, err := os.Stat(filepath.Join(dir, name))
	if err != nil {
		return Wrap(KindEmptyOutput, err, fmt.Sprintf("%s was not produced", name))
	}
	if info.IsDir() || info.Size() == 0 {
		return Errorf(KindEmptyOutput, "%s is empty", name)
	}
	return nil
}
