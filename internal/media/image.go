package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	// Image format decoders
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // WebP format support

	"media-converter/internal/logging"
)

const (
	// MaxImageDimension is the maximum width or height we'll process
	// Images larger than this will be downscaled first
	MaxImageDimension = 4096

	// MaxImagePixels is the maximum total pixels (width * height) we'll process
	MaxImagePixels = 20_000_000 // ~20MP, uses ~80MB in RGBA
)

// ErrUnknownFormat is returned for data no registered decoder recognizes.
var ErrUnknownFormat = errors.New("unrecognized image format")

// Dimensions holds image width and height
type Dimensions struct {
	Width  int
	Height int
}

// Sniff returns the decoder name for data ("jpeg", "png", "gif", "bmp",
// "tiff", "webp"), or "" when unrecognized. Only the header is read.
func Sniff(data []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ""
	}
	return format
}

// GetDimensions returns image dimensions without fully decoding the image
func GetDimensions(data []byte) (Dimensions, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Dimensions{}, "", ErrUnknownFormat
		}
		return Dimensions{}, "", fmt.Errorf("failed to read image header: %w", err)
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, format, nil
}

// Decode decodes data honoring EXIF orientation, downscaling images that
// exceed maxDimension or maxPixels.
func Decode(data []byte, maxDimension, maxPixels int) (image.Image, error) {
	dims, _, err := GetDimensions(data)
	if err != nil {
		return nil, err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	width, height := dims.Width, dims.Height
	if width <= maxDimension && height <= maxDimension && width*height <= maxPixels {
		return img, nil
	}

	tw, th := ConstrainDimensions(width, height, maxDimension, maxPixels)
	logging.Info("Constraining large image from %dx%d to %dx%d", width, height, tw, th)
	return imaging.Resize(img, tw, th, imaging.Lanczos), nil
}

// ConstrainDimensions scales (w, h) down to fit both limits, preserving the
// aspect ratio.
func ConstrainDimensions(w, h, maxDimension, maxPixels int) (int, int) {
	tw, th := w, h

	if tw > maxDimension || th > maxDimension {
		if tw > th {
			th = th * maxDimension / tw
			tw = maxDimension
		} else {
			tw = tw * maxDimension / th
			th = maxDimension
		}
	}

	if tw*th > maxPixels {
		scale := math.Sqrt(float64(maxPixels) / float64(tw*th))
		tw = int(float64(tw) * scale)
		th = int(float64(th) * scale)
	}

	return max(tw, 1), max(th, 1)
}

// FitToCanvas scales img to fit inside a width x height canvas, preserving
// its aspect ratio, and centers it on a background of bg.
func FitToCanvas(img image.Image, width, height int, bg color.Color) *image.NRGBA {
	canvas := imaging.New(width, height, bg)
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		img = imaging.Fit(img, width, height, imaging.Lanczos)
		// Fit never upscales; small images are enlarged to the canvas.
		if fb := img.Bounds(); fb.Dx() < width && fb.Dy() < height {
			img = fitUp(img, width, height)
		}
	}
	return imaging.PasteCenter(canvas, img)
}

func fitUp(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx()*height > b.Dy()*width {
		return imaging.Resize(img, width, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, height, imaging.Lanczos)
}

// SavePNG writes img to path as a lossless PNG.
func SavePNG(img image.Image, path string) error {
	if err := imaging.Save(img, path, imaging.PNGCompressionLevel(png.BestSpeed)); err != nil {
		return fmt.Errorf("failed to write frame %s: %w", path, err)
	}
	return nil
}
