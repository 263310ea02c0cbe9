package transcoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"media-converter/internal/engine"
	"media-converter/internal/media"
	"media-converter/internal/metrics"
	"media-converter/internal/workers"
)

// File layout of the GIF pipeline inside a work directory.
const (
	FramesDir     = "frames"
	FramePattern  = "frames/frame_%04d.png"
	PaletteFile   = "palette.png"
	GIFFile       = "output.gif"
	OptimizedFile = "optimized.gif"
)

// FrameName returns the path of frame i relative to the work directory.
func FrameName(i int) string {
	return fmt.Sprintf(FramePattern, i)
}

// gifFPS is the frame rate the pipeline samples and plays at.
func gifFPS(req Request) int {
	if req.FPS > 0 {
		return req.FPS
	}
	return DefaultGIFFPS
}

// speedFilter returns the timestamp rescale for req, or "" at speed 1.0.
func speedFilter(req Request) string {
	if !req.HasSpeedChange() {
		return ""
	}
	factor := strconv.FormatFloat(1/req.Speed, 'f', 4, 64)
	factor = strings.TrimRight(strings.TrimRight(factor, "0"), ".")
	return "setpts=" + factor + "*PTS"
}

// BuildFrameExtraction is stage 1 for a video input: decode, retime, sample
// and scale the source into numbered PNG frames.
func BuildFrameExtraction(req Request) engine.Invocation {
	var filters []string
	if sf := speedFilter(req); sf != "" {
		filters = append(filters, sf)
	}
	filters = append(filters, "fps="+strconv.Itoa(gifFPS(req)))
	if vf := scaleFilter(req, true); vf != "" {
		filters = append(filters, vf)
	}

	args := append(baseArgs(),
		"-i", InputName(req.InputExt),
		"-vf", strings.Join(filters, ","),
		"-an", "-sn", "-dn",
		"-start_number", "0",
		FramePattern,
	)
	return engine.Invocation{
		Program:    engine.ProgramFFmpeg,
		Args:       args,
		OutputFile: FrameName(0),
	}
}

// BuildPaletteGen is stage 2: one shared palette over all frames.
func BuildPaletteGen(req Request, p Params) engine.Invocation {
	filter := fmt.Sprintf("palettegen=max_colors=%d:reserve_transparent=0:stats_mode=full", p.PaletteColors)
	args := append(baseArgs(),
		"-framerate", strconv.Itoa(gifFPS(req)),
		"-start_number", "0",
		"-i", FramePattern,
		"-vf", filter,
		"-frames:v", "1",
		"-update", "1",
		PaletteFile,
	)
	return engine.Invocation{
		Program:    engine.ProgramFFmpeg,
		Args:       args,
		OutputFile: PaletteFile,
	}
}

// BuildPaletteUse is stage 3: map every frame onto the palette and write a
// looping GIF.
func BuildPaletteUse(req Request, p Params) engine.Invocation {
	filter := "[0:v][1:v]paletteuse=dither=" + p.Dither
	args := append(baseArgs(),
		"-framerate", strconv.Itoa(gifFPS(req)),
		"-start_number", "0",
		"-i", FramePattern,
		"-i", PaletteFile,
		"-lavfi", filter,
		"-gifflags", "-transdiff",
		"-loop", "0",
		"-f", "gif",
		GIFFile,
	)
	return engine.Invocation{
		Program:    engine.ProgramFFmpeg,
		Args:       args,
		OutputFile: GIFFile,
	}
}

// BuildOptimize is the optional gifsicle pass.
func BuildOptimize(p Params) engine.Invocation {
	return engine.Invocation{
		Program: engine.ProgramGifsicle,
		Args: []string{
			"--optimize=" + strconv.Itoa(p.Optimize),
			"--loopcount=forever",
			"-o", OptimizedFile,
			GIFFile,
		},
		OutputFile: OptimizedFile,
	}
}

// runPalettePipeline runs stages 2 and 3, colour table compaction and the
// optional optimizer over frames already present in dir. It returns the
// name of the final GIF.
func (c *Converter) runPalettePipeline(ctx context.Context, dir string, req Request, p Params) (string, error) {
	if _, err := verifyFrames(dir); err != nil {
		return "", err
	}

	if err := c.stage(ctx, "palettegen", dir, BuildPaletteGen(req, p)); err != nil {
		return "", err
	}
	if err := c.stage(ctx, "paletteuse", dir, BuildPaletteUse(req, p)); err != nil {
		return "", err
	}

	start := time.Now()
	err := compactPalette(filepath.Join(dir, GIFFile))
	metrics.GIFStageDuration.WithLabelValues("compact").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", fmt.Errorf("gif compact: %w", err)
	}

	if !c.invoker.Supports(engine.ProgramGifsicle) {
		return GIFFile, nil
	}
	if err := c.stage(ctx, "optimize", dir, BuildOptimize(p)); err != nil {
		if ctx.Err() != nil || engine.KindOf(err) == engine.KindEngineTimeout {
			return "", err
		}
		c.log.Warn("gif optimization failed, keeping unoptimized output: %v", err)
		return GIFFile, nil
	}
	return OptimizedFile, nil
}

// compactPalette rewrites the GIF at path so its colour table holds only
// the colours its frames use. ffmpeg always writes a 256-entry global table
// whatever max_colors palettegen ran with.
func compactPalette(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Wrap(engine.KindGeneric, err, "failed to read gif")
	}
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return engine.Wrap(engine.KindGeneric, err, "failed to decode gif")
	}

	var compact color.Palette
	index := make(map[color.RGBA]uint8)
	remaps := make([][]uint8, len(g.Image))
	for i, frame := range g.Image {
		used := make([]bool, len(frame.Palette))
		for _, px := range frame.Pix {
			used[px] = true
		}
		remap := make([]uint8, len(frame.Palette))
		for j, c := range frame.Palette {
			if !used[j] {
				continue
			}
			key := color.RGBAModel.Convert(c).(color.RGBA)
			n, ok := index[key]
			if !ok {
				if len(compact) == 256 {
					// Local tables together exceed one table; leave the file as written.
					return nil
				}
				n = uint8(len(compact))
				index[key] = n
				compact = append(compact, key)
			}
			remap[j] = n
		}
		remaps[i] = remap
	}
	if len(compact) == 0 {
		return engine.Errorf(engine.KindEmptyOutput, "gif has no frames")
	}

	for i, frame := range g.Image {
		for j, px := range frame.Pix {
			frame.Pix[j] = remaps[i][px]
		}
		frame.Palette = compact
	}
	g.Config.ColorModel = compact
	g.BackgroundIndex = 0

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return engine.Wrap(engine.KindGeneric, err, "failed to encode gif")
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return engine.Wrap(engine.KindGeneric, err, "failed to write gif")
	}
	return nil
}

func (c *Converter) stage(ctx context.Context, name, dir string, inv engine.Invocation) error {
	inv.WorkDir = dir
	start := time.Now()
	_, err := c.invoker.Invoke(ctx, inv)
	metrics.GIFStageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("gif %s: %w", name, err)
	}
	return nil
}

// verifyFrames checks that stage 1 produced at least one frame and that no
// frame is empty.
func verifyFrames(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, FramesDir, "frame_*.png"))
	if err != nil {
		return 0, engine.Wrap(engine.KindGeneric, err, "")
	}
	if len(matches) == 0 {
		return 0, engine.Errorf(engine.KindEmptyOutput, "generation produced no frames")
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.Size() == 0 {
			return 0, engine.Errorf(engine.KindEmptyOutput, "generation produced empty frame %s", filepath.Base(m))
		}
	}
	return len(matches), nil
}

// prepareFrames is stage 1 for still images: every image is fit onto a
// common canvas and written as a lossless frame named by its input index.
func (c *Converter) prepareFrames(ctx context.Context, dir string, req Request, images [][]byte) error {
	start := time.Now()
	defer func() {
		metrics.GIFStageDuration.WithLabelValues("frames").Observe(time.Since(start).Seconds())
	}()

	if err := os.MkdirAll(filepath.Join(dir, FramesDir), 0o755); err != nil {
		return engine.Wrap(engine.KindGeneric, err, "")
	}

	first, err := decodeFrame(images[0], 0)
	if err != nil {
		return err
	}
	width, height := canvasSize(req, first.Bounds())

	render := func(img image.Image, i int) error {
		frame := media.FitToCanvas(img, width, height, color.Black)
		if err := media.SavePNG(frame, filepath.Join(dir, FrameName(i))); err != nil {
			return engine.Wrap(engine.KindGeneric, err, "")
		}
		return nil
	}

	if err := render(first, 0); err != nil {
		return err
	}

	return workers.Each(ctx, len(images)-1, c.cfg.FrameWorkers, func(_ context.Context, i int) error {
		idx := i + 1
		img, err := decodeFrame(images[idx], idx)
		if err != nil {
			return err
		}
		return render(img, idx)
	})
}

func decodeFrame(data []byte, index int) (image.Image, error) {
	img, err := media.Decode(data, media.MaxImageDimension, media.MaxImagePixels)
	if err != nil {
		if errors.Is(err, media.ErrUnknownFormat) {
			return nil, engine.Wrap(engine.KindUnsupportedFormat, err, fmt.Sprintf("image %d is not a supported image format", index+1))
		}
		return nil, engine.Wrap(engine.KindCorruptInput, err, fmt.Sprintf("image %d could not be decoded", index+1))
	}
	return img, nil
}

// canvasSize is the first frame's bounding box unless the resolution
// overrides it. A -1/-2 side follows the first frame's aspect ratio.
func canvasSize(req Request, first image.Rectangle) (int, int) {
	w, h := first.Dx(), first.Dy()
	if !req.Scale {
		return w, h
	}
	switch {
	case req.Width > 0 && req.Height > 0:
		return req.Width, req.Height
	case req.Width > 0:
		return req.Width, max(1, req.Width*h/w)
	default:
		return max(1, req.Height*w/h), req.Height
	}
}
