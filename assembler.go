package tasm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Assembler owns the output writer of one job. Frames must match the canvas
// exactly and are written in call order. It is not safe for concurrent use.
type Assembler struct {
	path   string
	fps    float64
	canvas Canvas
	writer FrameWriter

	frames int
	closed bool
}

// OpenAssembler opens the output at path with a fixed canvas and rate.
func OpenAssembler(factory WriterFactory, path string, fps float64, canvas Canvas) (*Assembler, error) {
	if fps <= 0 {
		return nil, &WriterError{Path: path, Op: "open", Err: fmt.Errorf("invalid fps %.3f", fps)}
	}
	if canvas.Width <= 0 || canvas.Height <= 0 || canvas.Width%2 != 0 || canvas.Height%2 != 0 {
		return nil, &WriterError{Path: path, Op: "open", Err: fmt.Errorf("invalid canvas %s", canvas)}
	}

	w, err := factory.Open(path, fps, canvas.Width, canvas.Height)
	if err != nil {
		return nil, &WriterError{Path: path, Op: "open", Err: err}
	}

	slog.Debug("tasm: output opened",
		"path", path,
		"canvas", canvas.String(),
		"fps", fps,
	)

	return &Assembler{
		path:   path,
		fps:    fps,
		canvas: canvas,
		writer: w,
	}, nil
}

// Write appends one composited frame. Writing after Close panics.
func (a *Assembler) Write(f Frame) error {
	if a.closed {
		panic("tasm: write to closed assembler " + a.path)
	}
	if f.Width != a.canvas.Width || f.Height != a.canvas.Height || !f.Valid() {
		return &WriterError{
			Path: a.path,
			Op:   "write",
			Err:  fmt.Errorf("frame %dx%d (%d bytes) does not match canvas %s", f.Width, f.Height, len(f.Data), a.canvas),
		}
	}
	if err := a.writer.Write(f); err != nil {
		return &WriterError{Path: a.path, Op: "write", Err: err}
	}
	a.frames++
	return nil
}

// Close finalizes the output file. Closing twice is a no-op.
func (a *Assembler) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	if err := a.writer.Close(); err != nil {
		return &WriterError{Path: a.path, Op: "close", Err: err}
	}
	return nil
}

// Abort closes the writer and removes the partial output.
func (a *Assembler) Abort() {
	if err := a.Close(); err != nil {
		slog.Warn("tasm: closing aborted output failed", "path", a.path, "error", err)
	}
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("tasm: removing aborted output failed", "path", a.path, "error", err)
		return
	}
	slog.Info("tasm: partial output removed", "path", a.path, "frames_written", a.frames)
}

// Frames returns the number of frames written so far.
func (a *Assembler) Frames() int {
	return a.frames
}

// Canvas returns the fixed frame size.
func (a *Assembler) Canvas() Canvas {
	return a.canvas
}
