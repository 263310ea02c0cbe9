package transcoder

import (
	"fmt"
	"strconv"
	"strings"

	"media-converter/internal/engine"
	"media-converter/internal/mediatypes"
	"media-converter/internal/quality"
)

// InputName is the input file name inside a work directory.
func InputName(ext string) string { return "input." + ext }

// OutputName is the output file name inside a work directory.
func OutputName(ext string) string { return "output." + ext }

func baseArgs() []string {
	return []string{"-hide_banner", "-nostdin", "-y"}
}

// Build returns the single-pass invocation for a non-GIF request. The
// request must already have passed registry validation.
func Build(req Request, p Params) engine.Invocation {
	in, out := InputName(req.InputExt), OutputName(req.OutputExt)

	args := append(baseArgs(), "-i", in)

	if req.OutputCategory != mediatypes.CategoryAudio && p.VideoCodec != codecCopy {
		if vf := videoFilter(req, p); vf != "" {
			args = append(args, "-vf", vf)
		}
	}
	if req.FPS > 0 && req.OutputCategory == mediatypes.CategoryVideo && p.VideoCodec != codecCopy {
		args = append(args, "-r", strconv.Itoa(req.FPS))
	}

	args = append(args, bitrateArgs(req, p)...)
	args = append(args, qualityArgs(req, p)...)
	args = append(args, codecArgs(req, p)...)
	args = append(args, containerArgs(req, p)...)
	args = append(args, out)

	return engine.Invocation{
		Program:    engine.ProgramFFmpeg,
		Args:       args,
		OutputFile: out,
	}
}

// codecCopy is the ffmpeg stream-copy codec name.
const codecCopy = "copy"

// evenScale rounds an odd frame up to even dimensions.
const evenScale = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// videoFilter is the single -vf chain of a single-pass conversion. yuv420p
// output needs even dimensions, so x264 always gets an even frame.
func videoFilter(req Request, p Params) string {
	if p.VideoCodec != "libx264" {
		return scaleFilter(req, false)
	}
	if !req.Scale {
		return evenScale
	}
	even := req
	even.Width, even.Height = evenSide(req.Width), evenSide(req.Height)
	return scaleFilter(even, false)
}

// evenSide maps an aspect-following -1 to -2 and rounds odd sizes up.
func evenSide(d int) int {
	switch {
	case d == -1:
		return -2
	case d > 0 && d%2 == 1:
		return d + 1
	}
	return d
}

// scaleFilter returns the scale step, or "" when no resolution was given.
// With pad set and both sides fixed, the frame is fit and letterboxed.
func scaleFilter(req Request, pad bool) string {
	switch {
	case !req.Scale:
		return ""
	case pad && req.Width > 0 && req.Height > 0:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease:flags=lanczos,pad=%d:%d:(ow-iw)/2:(oh-ih)/2",
			req.Width, req.Height, req.Width, req.Height)
	case pad:
		return fmt.Sprintf("scale=%d:%d:flags=lanczos", req.Width, req.Height)
	default:
		return fmt.Sprintf("scale=%d:%d", req.Width, req.Height)
	}
}

func bitrateArgs(req Request, p Params) []string {
	if req.Bitrate == 0 || p.VideoCodec == codecCopy || p.AudioCodec == codecCopy {
		return nil
	}
	b := quality.FormatBitrate(req.Bitrate)

	switch req.OutputCategory {
	case mediatypes.CategoryAudio:
		if p.AudioCodec == "" || quality.IsLossless(p.AudioCodec) {
			return nil
		}
		return []string{"-b:a", b}

	case mediatypes.CategoryVideo:
		q := p.VideoQuality
		switch {
		case q == nil:
			return []string{"-b:v", b}
		case isVPX(p.VideoCodec):
			// Constrained quality: CRF with the bitrate as ceiling.
			return []string{"-b:v", b}
		default:
			return []string{"-maxrate", b, "-bufsize", quality.FormatBitrate(2 * req.Bitrate)}
		}
	}
	return nil
}

func qualityArgs(req Request, p Params) []string {
	switch req.OutputCategory {
	case mediatypes.CategoryVideo:
		if p.VideoQuality == nil {
			return nil
		}
		args := p.VideoQuality.Args()
		if isVPX(p.VideoCodec) && req.Bitrate == 0 {
			args = append(args, "-b:v", "0")
		}
		return args
	case mediatypes.CategoryImage:
		if p.VideoQuality == nil {
			return nil
		}
		return p.VideoQuality.Args()
	case mediatypes.CategoryAudio:
		if p.AudioQuality == nil {
			return nil
		}
		return p.AudioQuality.Args()
	}
	return nil
}

func codecArgs(req Request, p Params) []string {
	var args []string

	switch req.OutputCategory {
	case mediatypes.CategoryVideo:
		args = append(args, "-c:v", p.VideoCodec)
		switch {
		case p.VideoCodec == "libx264":
			args = append(args, "-preset", p.Preset, "-pix_fmt", "yuv420p")
		case isVPX(p.VideoCodec):
			args = append(args, "-deadline", "realtime", "-cpu-used", strconv.Itoa(p.CPUUsed))
			if p.VideoCodec == "libvpx-vp9" {
				args = append(args, "-row-mt", "1")
			}
		}
		if p.AudioCodec != "" {
			args = append(args, "-c:a", p.AudioCodec)
			if p.AudioQuality != nil {
				args = append(args, p.AudioQuality.Args()...)
			}
		}

	case mediatypes.CategoryAudio:
		args = append(args, "-vn", "-sn", "-dn", "-c:a", p.AudioCodec)
		if p.AudioCodec == codecCopy {
			break
		}
		if req.SampleRate > 0 {
			args = append(args, "-ar", strconv.Itoa(req.SampleRate))
		}
		if req.Channels > 0 {
			args = append(args, "-ac", strconv.Itoa(req.Channels))
		}

	case mediatypes.CategoryImage:
		args = append(args, "-an", "-sn", "-dn", "-frames:v", "1", "-update", "1")
	}

	return append(args, "-threads", "0")
}

func containerArgs(req Request, p Params) []string {
	var args []string
	if req.OutputCategory != mediatypes.CategoryImage {
		args = append(args, "-avoid_negative_ts", "make_zero")
	}
	if p.Muxer != "" {
		args = append(args, "-f", p.Muxer)
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	return args
}

func isVPX(codec string) bool {
	return codec == "libvpx-vp9" || codec == "libvpx"
}

// CommandLine renders args for logs, quoting arguments with spaces.
func CommandLine(program string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, program)
	for _, a := range args {
		if strings.ContainsAny(a, " \t;[]") {
			a = strconv.Quote(a)
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
