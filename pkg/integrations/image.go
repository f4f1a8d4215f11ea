package integrations

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/kerbaras/comicdl/pkg/data"
)

// ImageSettings controls how downloaded pages are re-encoded.
type ImageSettings struct {
	Quality   int // JPEG quality, 1-100
	MaxWidth  int // zero disables the bound
	MaxHeight int
	Grayscale bool // for e-ink readers
}

func DefaultImageSettings() ImageSettings {
	return ImageSettings{Quality: 90}
}

// ImageProcessor normalises any supported image into a JPEG.
type ImageProcessor struct {
	settings ImageSettings
}

func NewImageProcessor(settings ImageSettings) *ImageProcessor {
	if settings.Quality <= 0 || settings.Quality > 100 {
		settings.Quality = DefaultImageSettings().Quality
	}
	return &ImageProcessor{settings: settings}
}

// Transcode decodes JPEG, PNG, GIF, WebP or BMP data, flattens it onto a
// white background, downsizes it to the configured bounds and encodes JPEG,
// in grayscale when configured.
func (p *ImageProcessor) Transcode(b []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, &data.DecodeError{Err: err}
	}

	bounds := img.Bounds()
	w, h := p.calculateDimensions(bounds.Dx(), bounds.Dy())
	if w <= 0 || h <= 0 {
		return nil, &data.DecodeError{Err: fmt.Errorf("empty image %dx%d", bounds.Dx(), bounds.Dy())}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	}

	var out image.Image = dst
	if p.settings.Grayscale {
		gray := image.NewGray(dst.Bounds())
		draw.Draw(gray, gray.Bounds(), dst, image.Point{}, draw.Src)
		out = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: p.settings.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// calculateDimensions fits width x height inside the configured bounds,
// keeping the aspect ratio. Images are never enlarged.
func (p *ImageProcessor) calculateDimensions(width, height int) (int, int) {
	scale := 1.0
	if p.settings.MaxWidth > 0 && width > p.settings.MaxWidth {
		scale = float64(p.settings.MaxWidth) / float64(width)
	}
	if p.settings.MaxHeight > 0 && height > p.settings.MaxHeight {
		if s := float64(p.settings.MaxHeight) / float64(height); s < scale {
			scale = s
		}
	}
	if scale == 1.0 {
		return width, height
	}
	return max(1, int(float64(width)*scale)), max(1, int(float64(height)*scale))
}
