package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-converter/internal/engine"
	"media-converter/internal/logging"
	"media-converter/internal/mediatypes"
	"media-converter/internal/metrics"
	"media-converter/internal/workers"
)

// Defaults for Config fields left at zero.
const (
	DefaultMaxInputBytes = 100 << 20
	DefaultMaxImages     = 100
	// DefaultSlideFPS is the frame rate of a GIF built from still images.
	DefaultSlideFPS = 2
)

// Config holds the Converter limits.
type Config struct {
	// WorkDir is the parent of the per-request scratch directories.
	WorkDir string
	// MaxInputBytes caps one input, and the sum of inputs for ImagesToGIF.
	MaxInputBytes int64
	// MaxImages caps the number of frames accepted by ImagesToGIF.
	MaxImages int
	// Timeout is the wall-clock limit of one conversion across all stages.
	// Zero uses the invoker timeout.
	Timeout time.Duration
	// FrameWorkers bounds the still-frame preparation pool.
	FrameWorkers int
}

// Result is a finished conversion.
type Result struct {
	Data      []byte
	Size      int64
	OutputExt string
	MimeType  string
	Duration  time.Duration
}

// Converter turns uploaded bytes into converted bytes through an engine.
type Converter struct {
	invoker *engine.Invoker
	cfg     Config
	log     logging.Logger
}

// New creates a Converter. The work directory is created if missing.
func New(invoker *engine.Invoker, cfg Config) (*Converter, error) {
	if cfg.WorkDir == "" {
		cfg.WorkDir = filepath.Join(os.TempDir(), "media-converter")
	}
	if cfg.MaxInputBytes <= 0 {
		cfg.MaxInputBytes = DefaultMaxInputBytes
	}
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = DefaultMaxImages
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = invoker.Timeout()
	}
	if cfg.FrameWorkers <= 0 {
		cfg.FrameWorkers = workers.ForCPU(8)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	return &Converter{
		invoker: invoker,
		cfg:     cfg,
		log:     logging.For("transcoder"),
	}, nil
}

// WorkDir returns the scratch parent directory.
func (c *Converter) WorkDir() string { return c.cfg.WorkDir }

// MaxInputBytes returns the per-input size limit.
func (c *Converter) MaxInputBytes() int64 { return c.cfg.MaxInputBytes }

// EngineName returns the name of the engine conversions run on.
func (c *Converter) EngineName() string { return c.invoker.Engine().Name() }

// Supports reports whether the engine can run program.
func (c *Converter) Supports(program string) bool { return c.invoker.Supports(program) }

// Convert converts data from inputExt to outputExt. Every failure is an
// *engine.Error.
func (c *Converter) Convert(ctx context.Context, data []byte, inputExt, outputExt string, opts Options) (*Result, error) {
	req, err := NewRequest(inputExt, outputExt, opts)
	if err != nil {
		c.recordFailure(mediatypes.Classify(mediatypes.NormalizeExt(inputExt)), mediatypes.NormalizeExt(outputExt), err)
		return nil, err
	}
	if err := c.checkSize(int64(len(data))); err != nil {
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}

	return c.run(ctx, req, func(ctx context.Context, dir string, p Params) (string, error) {
		if err := os.WriteFile(filepath.Join(dir, InputName(req.InputExt)), data, 0o644); err != nil {
			return "", engine.Wrap(engine.KindGeneric, err, "failed to stage input")
		}

		if req.IsGIF() {
			if err := os.MkdirAll(filepath.Join(dir, FramesDir), 0o755); err != nil {
				return "", engine.Wrap(engine.KindGeneric, err, "")
			}
			if err := c.stage(ctx, "frames", dir, BuildFrameExtraction(req)); err != nil {
				return "", err
			}
			return c.runPalettePipeline(ctx, dir, req, p)
		}

		inv := Build(req, p)
		inv.WorkDir = dir
		c.log.Debug("running %s", CommandLine(inv.Program, inv.Args))
		if _, err := c.invoker.Invoke(ctx, inv); err != nil {
			return "", err
		}
		return inv.OutputFile, nil
	})
}

// ImagesToGIF builds an animated GIF from still images in the given order.
// Frames are fit and padded onto the first image's canvas unless
// opts.Resolution overrides it.
func (c *Converter) ImagesToGIF(ctx context.Context, images [][]byte, opts Options) (*Result, error) {
	req := Request{
		InputExt:       "png",
		OutputExt:      "gif",
		InputCategory:  mediatypes.CategoryImage,
		OutputCategory: mediatypes.CategoryVideo,
	}
	if err := req.applyOptions(opts); err != nil {
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}
	if req.FPS == 0 {
		req.FPS = DefaultSlideFPS
	}

	if err := c.checkImages(images); err != nil {
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}

	return c.run(ctx, req, func(ctx context.Context, dir string, p Params) (string, error) {
		if err := c.prepareFrames(ctx, dir, req, images); err != nil {
			return "", err
		}
		return c.runPalettePipeline(ctx, dir, req, p)
	})
}

type pipeline func(ctx context.Context, dir string, p Params) (string, error)

// run owns the scratch directory, the overall deadline and the metrics of
// one conversion.
func (c *Converter) run(ctx context.Context, req Request, fn pipeline) (*Result, error) {
	start := time.Now()
	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	dir, err := os.MkdirTemp(c.cfg.WorkDir, "conv-*")
	if err != nil {
		err = engine.Wrap(engine.KindGeneric, err, "failed to create work directory")
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}
	defer c.removeDir(dir)

	p := Resolve(req)
	name, err := fn(ctx, dir, p)
	if err == nil {
		err = engine.VerifyOutput(dir, name)
	}
	if err != nil {
		err = contextError(ctx, err)
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		err = engine.Wrap(engine.KindGeneric, err, "failed to read output")
		c.recordFailure(req.InputCategory, req.OutputExt, err)
		return nil, err
	}

	elapsed := time.Since(start)
	metrics.ConversionsTotal.WithLabelValues(string(req.InputCategory), req.OutputExt, "success").Inc()
	metrics.ConversionDuration.WithLabelValues(string(req.InputCategory)).Observe(elapsed.Seconds())
	c.log.Info("converted %s to %s: %d bytes in %v", req.InputExt, req.OutputExt, len(data), elapsed)

	return &Result{
		Data:      data,
		Size:      int64(len(data)),
		OutputExt: req.OutputExt,
		MimeType:  mediatypes.GetMimeType(req.OutputExt),
		Duration:  elapsed,
	}, nil
}

func (c *Converter) checkSize(n int64) error {
	if n == 0 {
		return engine.Errorf(engine.KindInvalidOption, "input is empty")
	}
	if n > c.cfg.MaxInputBytes {
		return engine.Errorf(engine.KindInvalidOption, "input is %d bytes, the limit is %d", n, c.cfg.MaxInputBytes)
	}
	return nil
}

func (c *Converter) checkImages(images [][]byte) error {
	if len(images) == 0 {
		return engine.Errorf(engine.KindInvalidOption, "at least one image is required")
	}
	if len(images) > c.cfg.MaxImages {
		return engine.Errorf(engine.KindInvalidOption, "%d images given, the limit is %d", len(images), c.cfg.MaxImages)
	}
	var total int64
	for i, img := range images {
		if len(img) == 0 {
			return engine.Errorf(engine.KindInvalidOption, "image %d is empty", i+1)
		}
		total += int64(len(img))
	}
	if total > c.cfg.MaxInputBytes {
		return engine.Errorf(engine.KindInvalidOption, "images total %d bytes, the limit is %d", total, c.cfg.MaxInputBytes)
	}
	return nil
}

// contextError turns a bare context failure from a non-engine stage into
// the matching engine error.
func contextError(ctx context.Context, err error) error {
	if engine.AsError(err) != nil {
		return err
	}
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return engine.Wrap(engine.KindEngineTimeout, err, "conversion exceeded its time limit")
	case errors.Is(err, context.Canceled):
		return engine.Wrap(engine.KindGeneric, err, "conversion canceled")
	default:
		return engine.Wrap(engine.KindGeneric, err, "")
	}
}

func (c *Converter) recordFailure(category mediatypes.Category, outputExt string, err error) {
	kind := engine.KindOf(err)
	metrics.ConversionsTotal.WithLabelValues(string(category), outputExt, "failure").Inc()
	metrics.ConversionErrorsTotal.WithLabelValues(string(kind)).Inc()
	if e := engine.AsError(err); e != nil && e.Stderr != "" {
		c.log.Warn("conversion to %s failed: %v\n%s", outputExt, err, e.Stderr)
		return
	}
	c.log.Warn("conversion to %s failed: %v", outputExt, err)
}

func (c *Converter) removeDir(dir string) {
	if err := os.RemoveAll(dir); err != nil {
		c.log.Warn("failed to remove work directory %s: %v", dir, err)
	}
}

// ClearWorkDir removes everything under the work directory and returns the
// number of bytes freed. Directories of in-flight conversions may be
// removed too, which fails those conversions.
func (c *Converter) ClearWorkDir() (int64, error) {
	var freedBytes int64

	entries, err := os.ReadDir(c.cfg.WorkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read work directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(c.cfg.WorkDir, entry.Name())

		info, err := entry.Info()
		if err != nil {
			c.log.Warn("failed to get info for %s: %v", path, err)
			continue
		}

		if entry.IsDir() {
			dirSize, _ := dirSize(path)
			if err := os.RemoveAll(path); err != nil {
				c.log.Warn("failed to remove directory %s: %v", path, err)
				continue
			}
			freedBytes += dirSize
		} else {
			if err := os.Remove(path); err != nil {
				c.log.Warn("failed to remove file %s: %v", path, err)
				continue
			}
			freedBytes += info.Size()
		}
	}

	c.log.Info("cleared work directory: freed %d bytes", freedBytes)
	return freedBytes, nil
}

func dirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// Cleanup stops engine processes still running. It is called on shutdown.
func (c *Converter) Cleanup() {
	if p, ok := c.invoker.Engine().(interface{ Cleanup() }); ok {
		p.Cleanup()
	}
}
