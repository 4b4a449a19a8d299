// Package mjpegwriter writes output videos as Motion JPEG AVI files in pure
// Go. It needs no codec libraries, so it is the default output backend.
package mjpegwriter

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"math"

	"github.com/icza/mjpeg"
	"golang.org/x/image/draw"

	tasm "github.com/apperception-db/TASM"
)

// DefaultQuality is the JPEG quality used when Factory.Quality is 0.
const DefaultQuality = 90

// Factory opens MJPEG AVI writers.
type Factory struct {
	// Quality is the JPEG quality, 1-100
	Quality int
}

// Open creates the AVI file. AVI stores an integer rate, so fps is rounded
// (minimum 1).
func (f Factory) Open(path string, fps float64, width, height int) (tasm.FrameWriter, error) {
	quality := f.Quality
	if quality == 0 {
		quality = DefaultQuality
	}
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("mjpegwriter: quality must be 1-100, got %d", quality)
	}
	if fps <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("mjpegwriter: invalid geometry %dx%d @%.3f", width, height, fps)
	}

	rate := int32(math.Max(1, math.Round(fps)))
	aw, err := mjpeg.New(path, int32(width), int32(height), rate)
	if err != nil {
		return nil, fmt.Errorf("mjpegwriter: open %s: %w", path, err)
	}

	slog.Debug("mjpegwriter: writer opened", "path", path, "fps", rate, "quality", quality)

	return &writer{
		aw:      aw,
		rgba:    image.NewRGBA(image.Rect(0, 0, width, height)),
		options: &jpeg.Options{Quality: quality},
	}, nil
}

type writer struct {
	aw      mjpeg.AviWriter
	rgba    *image.RGBA
	buf     bytes.Buffer
	options *jpeg.Options
}

// Write encodes the frame as JPEG and appends it to the AVI.
func (w *writer) Write(f tasm.Frame) error {
	b := w.rgba.Bounds()
	if f.Width != b.Dx() || f.Height != b.Dy() || !f.Valid() {
		return fmt.Errorf("mjpegwriter: frame %dx%d does not match %dx%d", f.Width, f.Height, b.Dx(), b.Dy())
	}

	draw.Draw(w.rgba, b, rgbImage{f}, image.Point{}, draw.Src)

	w.buf.Reset()
	if err := jpeg.Encode(&w.buf, w.rgba, w.options); err != nil {
		return fmt.Errorf("mjpegwriter: encode: %w", err)
	}
	if err := w.aw.AddFrame(w.buf.Bytes()); err != nil {
		return fmt.Errorf("mjpegwriter: add frame: %w", err)
	}
	return nil
}

func (w *writer) Close() error {
	if err := w.aw.Close(); err != nil {
		return fmt.Errorf("mjpegwriter: close: %w", err)
	}
	return nil
}

// rgbImage exposes a packed RGB24 frame as an image.Image.
type rgbImage struct {
	f tasm.Frame
}

func (m rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (m rgbImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, m.f.Width, m.f.Height)
}

func (m rgbImage) At(x, y int) color.Color {
	if !(image.Point{X: x, Y: y}.In(m.Bounds())) {
		return color.RGBA{}
	}
	i := m.f.PixOffset(x, y)
	return color.RGBA{R: m.f.Data[i], G: m.f.Data[i+1], B: m.f.Data[i+2], A: 0xff}
}
