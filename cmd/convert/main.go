package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"media-converter/internal/engine"
	"media-converter/internal/logging"
	"media-converter/internal/mediatypes"
	"media-converter/internal/pdf"
	"media-converter/internal/transcoder"

	"golang.org/x/term"
)

const (
	// Default timeout for one conversion
	defaultTimeout = 5 * time.Minute

	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

// errTerminal is returned when binary output would go to a terminal.
var errTerminal = errors.New("refusing to write binary output to a terminal (use -o or -force)")

// options are the parsed command line.
type options struct {
	output     string
	to         string
	from       string
	gif        bool
	pdfOp      string
	page       int
	list       bool
	force      bool
	verbose    bool
	engineName string
	ffmpeg     string
	gifsicle   string
	wasmPath   string
	timeout    time.Duration
	knobs      transcoder.Options
	inputs     []string
}

// env is what run needs from the process, swapped in tests.
type env struct {
	stdout     io.Writer
	stderr     io.Writer
	isTerminal func() bool
	newEngine  func(ctx context.Context, o *options) (engine.Engine, func(), error)
}

func main() {
	// Create a context that cancels on interrupt signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	code := run(ctx, os.Args[1:], env{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdout.Fd())) },
		newEngine:  newEngine,
	})
	cancel()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	o := &options{}
	fs := flag.NewFlagSet("convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { printUsage(stderr, fs) }

	fs.StringVar(&o.output, "o", "", "output file, - for stdout (default: input name with the new extension)")
	fs.StringVar(&o.to, "to", "", "output format (default: mp4, mp3 or jpg by input category)")
	fs.StringVar(&o.from, "from", "", "input format, overrides the input file extension")
	fs.BoolVar(&o.gif, "gif", false, "build an animated GIF from the input images, in order")
	fs.StringVar(&o.pdfOp, "pdf", "", "PDF operation: images, merge or split")
	fs.IntVar(&o.page, "page", 1, "page to extract with -pdf split")
	fs.BoolVar(&o.list, "list", false, "print the supported formats and exit")
	fs.BoolVar(&o.force, "force", false, "write binary output even if stdout is a terminal")
	fs.BoolVar(&o.verbose, "v", false, "log engine activity to stderr")

	fs.StringVar(&o.engineName, "engine", envOr("ENGINE", "process"), "engine: process or wasm")
	fs.StringVar(&o.ffmpeg, "ffmpeg", envOr("FFMPEG_PATH", "ffmpeg"), "ffmpeg binary for the process engine")
	fs.StringVar(&o.gifsicle, "gifsicle", envOr("GIFSICLE_PATH", "gifsicle"), "gifsicle binary for the process engine")
	fs.StringVar(&o.wasmPath, "wasm", os.Getenv("FFMPEG_WASM_PATH"), "ffmpeg WASM module for the wasm engine")
	fs.DurationVar(&o.timeout, "timeout", defaultTimeout, "wall-clock limit of the conversion")

	fs.StringVar(&o.knobs.Resolution, "resolution", "", "output resolution, e.g. 720p or 1280x720")
	fs.IntVar(&o.knobs.FPS, "fps", 0, "output frame rate")
	fs.StringVar(&o.knobs.Bitrate, "bitrate", "", "output bitrate, e.g. 2M or 192k")
	fs.StringVar(&o.knobs.Quality, "quality", "", "quality preset: low, medium or high")
	fs.IntVar(&o.knobs.SampleRate, "sample-rate", 0, "audio sample rate in Hz")
	fs.IntVar(&o.knobs.Channels, "channels", 0, "audio channel count")
	fs.StringVar(&o.knobs.Codec, "codec", "", "output codec")
	fs.Float64Var(&o.knobs.Speed, "speed", 0, "playback speed multiplier")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.inputs = fs.Args()

	if o.list {
		return o, nil
	}
	if len(o.inputs) == 0 {
		fs.Usage()
		return nil, errors.New("no input files")
	}
	if o.gif && o.pdfOp != "" {
		return nil, errors.New("-gif and -pdf cannot be combined")
	}
	if !o.gif && o.pdfOp == "" && len(o.inputs) > 1 {
		return nil, errors.New("converting takes exactly one input file")
	}
	return o, nil
}

func run(ctx context.Context, args []string, e env) int {
	o, err := parseFlags(args, e.stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return exitUsage
	}

	if o.list {
		printFormats(e.stdout)
		return exitOK
	}

	if !o.verbose {
		logging.SetLevel(logging.LevelError)
	}

	outPath, data, err := convert(ctx, o, e)
	if err != nil {
		fmt.Fprintf(e.stderr, "Error: %s\n", describe(err))
		return exitError
	}

	if err := writeOutput(outPath, data, o.force, e); err != nil {
		fmt.Fprintf(e.stderr, "Error: %v\n", err)
		return exitError
	}
	if outPath != "-" {
		fmt.Fprintf(e.stderr, "Wrote %s (%d bytes)\n", outPath, len(data))
	}
	return exitOK
}

// convert runs the requested operation and returns the output path and bytes.
func convert(ctx context.Context, o *options, e env) (string, []byte, error) {
	inputs := make([][]byte, 0, len(o.inputs))
	for _, path := range o.inputs {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		inputs = append(inputs, data)
	}

	if o.pdfOp != "" {
		return convertPDF(ctx, o, inputs)
	}

	eng, closeEngine, err := e.newEngine(ctx, o)
	if err != nil {
		return "", nil, err
	}
	defer closeEngine()

	workDir, err := os.MkdirTemp("", "convert-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create work directory: %w", err)
	}
	defer os.RemoveAll(workDir)

	conv, err := transcoder.New(engine.NewInvoker(eng, engine.InvokerConfig{Timeout: o.timeout}), transcoder.Config{
		WorkDir: workDir,
		Timeout: o.timeout,
	})
	if err != nil {
		return "", nil, err
	}

	var res *transcoder.Result
	if o.gif {
		res, err = conv.ImagesToGIF(ctx, inputs, o.knobs)
	} else {
		from := o.from
		if from == "" {
			from = filepath.Ext(o.inputs[0])
		}
		to := o.to
		if to == "" {
			to = mediatypes.DefaultOutput(mediatypes.Classify(mediatypes.NormalizeExt(from)))
		}
		res, err = conv.Convert(ctx, inputs[0], from, to, o.knobs)
	}
	if err != nil {
		return "", nil, err
	}
	return outputPath(o, res.OutputExt), res.Data, nil
}

func convertPDF(ctx context.Context, o *options, inputs [][]byte) (string, []byte, error) {
	d := pdf.NewDispatcher(pdf.Config{})

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(o.pdfOp) {
	case pdf.OpImages:
		data, err = d.ImagesToPDF(ctx, inputs)
	case pdf.OpMerge:
		data, err = d.Merge(ctx, inputs)
	case pdf.OpSplit:
		if len(inputs) != 1 {
			return "", nil, errors.New("-pdf split takes exactly one document")
		}
		data, err = d.ExtractPage(ctx, inputs[0], o.page)
	default:
		return "", nil, fmt.Errorf("unknown PDF operation %q (expected images, merge or split)", o.pdfOp)
	}
	if err != nil {
		return "", nil, err
	}
	return outputPath(o, "pdf"), data, nil
}

// newEngine builds the engine selected by -engine.
func newEngine(ctx context.Context, o *options) (engine.Engine, func(), error) {
	switch o.engineName {
	case "process":
		p := engine.NewProcessEngine(map[string]string{
			engine.ProgramFFmpeg:   o.ffmpeg,
			engine.ProgramGifsicle: o.gifsicle,
		}, nil)
		if !p.Supports(engine.ProgramFFmpeg) {
			return nil, nil, fmt.Errorf("ffmpeg not found at %q (set -ffmpeg or FFMPEG_PATH)", o.ffmpeg)
		}
		return p, p.Cleanup, nil
	case "wasm":
		w, err := engine.NewWasmEngine(ctx, o.wasmPath, "")
		if err != nil {
			return nil, nil, err
		}
		return w, func() { _ = w.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unknown engine %q (expected process or wasm)", o.engineName)
	}
}

// outputPath is -o, or the first input with ext swapped in.
func outputPath(o *options, ext string) string {
	if o.output != "" {
		return o.output
	}
	in := o.inputs[0]
	base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	switch {
	case o.gif:
		base += "-animated"
	case o.pdfOp == pdf.OpMerge:
		base += "-merged"
	case o.pdfOp == pdf.OpSplit:
		base = fmt.Sprintf("%s-page-%d", base, o.page)
	}
	name := base + "." + ext
	if filepath.Join(filepath.Dir(in), name) == filepath.Clean(in) {
		name = base + "-converted." + ext
	}
	return filepath.Join(filepath.Dir(in), name)
}

func writeOutput(path string, data []byte, force bool, e env) error {
	if path != "-" {
		return os.WriteFile(path, data, 0o644)
	}
	if !force && e.isTerminal != nil && e.isTerminal() {
		return errTerminal
	}
	_, err := e.stdout.Write(data)
	return err
}

// describe prefers the user-facing message of a classified failure and adds
// the engine diagnostics when there are any.
func describe(err error) string {
	var ee *engine.Error
	if !errors.As(err, &ee) {
		return err.Error()
	}
	msg := fmt.Sprintf("%s [%s]", ee.Message(), ee.Kind)
	if ee.Stderr != "" {
		msg += "\n" + strings.TrimSpace(ee.Stderr)
	}
	return msg
}

func printFormats(w io.Writer) {
	f := mediatypes.SupportedFormats()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tINPUT\tOUTPUT\tDEFAULT")
	for _, row := range []struct {
		c    mediatypes.Category
		list mediatypes.FormatList
	}{
		{mediatypes.CategoryVideo, f.Video},
		{mediatypes.CategoryAudio, f.Audio},
		{mediatypes.CategoryImage, f.Image},
	} {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", row.c,
			strings.Join(row.list.Input, ","),
			strings.Join(mediatypes.AvailableOutputs(row.c), ","),
			mediatypes.DefaultOutput(row.c))
	}
	fmt.Fprintln(tw, "pdf\tpdf, images\tpdf\tpdf")
	tw.Flush()
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Media Converter command line")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  convert [flags] <input>               convert one file")
	fmt.Fprintln(w, "  convert -gif [flags] <image>...       animated GIF from images")
	fmt.Fprintln(w, "  convert -pdf images|merge|split <file>...")
	fmt.Fprintln(w, "  convert -list                         supported formats")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fs.PrintDefaults()
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
