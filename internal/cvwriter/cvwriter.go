// Package cvwriter writes output videos with OpenCV's VideoWriter.
package cvwriter

import (
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	tasm "github.com/apperception-db/TASM"
)

// DefaultFourCC is used when Factory.FourCC is empty.
const DefaultFourCC = "mp4v"

// Factory opens OpenCV video writers.
type Factory struct {
	// FourCC selects the codec, e.g. "mp4v", "avc1", "MJPG"
	FourCC string
}

// Open creates the output file.
func (f Factory) Open(path string, fps float64, width, height int) (tasm.FrameWriter, error) {
	codec, err := fourCC(f.FourCC)
	if err != nil {
		return nil, err
	}
	if fps <= 0 || width <= 0 || height <= 0 {
		return nil, fmt.Errorf("cvwriter: invalid geometry %dx%d @%.3f", width, height, fps)
	}

	vw, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("cvwriter: open %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("cvwriter: open %s: codec %q not available", path, codec)
	}

	slog.Debug("cvwriter: writer opened", "path", path, "fourcc", codec, "fps", fps)

	return &writer{
		vw:     vw,
		bgr:    gocv.NewMat(),
		width:  width,
		height: height,
	}, nil
}

type writer struct {
	vw     *gocv.VideoWriter
	bgr    gocv.Mat
	width  int
	height int
}

// Write converts the RGB frame to OpenCV's BGR order and appends it.
func (w *writer) Write(f tasm.Frame) error {
	if f.Width != w.width || f.Height != w.height || !f.Valid() {
		return fmt.Errorf("cvwriter: frame %dx%d does not match %dx%d", f.Width, f.Height, w.width, w.height)
	}

	rgb, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Data)
	if err != nil {
		return fmt.Errorf("cvwriter: wrap frame: %w", err)
	}
	defer rgb.Close()

	gocv.CvtColor(rgb, &w.bgr, gocv.ColorRGBToBGR)
	if err := w.vw.Write(w.bgr); err != nil {
		return fmt.Errorf("cvwriter: write: %w", err)
	}
	return nil
}

func (w *writer) Close() error {
	if err := w.bgr.Close(); err != nil {
		return fmt.Errorf("cvwriter: release frame: %w", err)
	}
	if err := w.vw.Close(); err != nil {
		return fmt.Errorf("cvwriter: close: %w", err)
	}
	return nil
}

// fourCC validates a codec tag, defaulting to DefaultFourCC.
func fourCC(s string) (string, error) {
	if s == "" {
		return DefaultFourCC, nil
	}
	if len(s) != 4 {
		return "", fmt.Errorf("cvwriter: fourcc must be 4 characters, got %q", s)
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return "", fmt.Errorf("cvwriter: fourcc %q has non-printable characters", s)
		}
	}
	return s, nil
}
