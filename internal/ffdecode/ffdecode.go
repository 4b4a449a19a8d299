// Package ffdecode decodes tile segments and probes videos with the ffmpeg
// command line tools.
//
// Frames are decoded to rgb24 and piped to the caller; the trim filter and an
// output frame cap keep ffmpeg from decoding past the requested bound.
package ffdecode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	tasm "github.com/apperception-db/TASM"
)

// Decoder runs one ffmpeg process per segment.
type Decoder struct {
	// Binary is the ffmpeg executable (default "ffmpeg")
	Binary string
	// Timeout bounds one segment decode (0: only the caller's context)
	Timeout time.Duration

	prober Prober
}

// New creates a Decoder using ffmpeg and ffprobe from PATH.
func New() *Decoder {
	return &Decoder{Binary: "ffmpeg"}
}

// Decode returns the first frames of the segment at path as RGB24.
func (d *Decoder) Decode(ctx context.Context, path string, frames int) ([]tasm.Frame, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("ffdecode: frame bound must be > 0, got %d", frames)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	info, err := d.prober.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, binary, decodeArgs(path, frames)...)
	var stderr tailBuffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffdecode: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffdecode: start %s: %w", binary, err)
	}

	out, readErr := readFrames(stdout, info.Width, info.Height, frames)
	if readErr != nil {
		// unblock ffmpeg if it is still writing
		_ = cmd.Process.Kill()
	} else {
		// drain anything past the bound so Wait does not block on the pipe
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ffdecode: %s: %w", path, err)
	}
	if readErr != nil {
		return out, fmt.Errorf("ffdecode: read frames of %s: %w", path, readErr)
	}
	if waitErr != nil && len(out) < frames {
		return out, fmt.Errorf("ffdecode: %s exited: %w: %s", binary, waitErr, stderr.String())
	}

	slog.Debug("ffdecode: segment decoded",
		"path", path,
		"requested", frames,
		"decoded", len(out),
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// decodeArgs builds the ffmpeg arguments: rgb24 rawvideo on stdout, cut
// after frames frames.
func decodeArgs(path string, frames int) []string {
	return ffmpeg.Input(path).
		Filter("trim", ffmpeg.Args{}, ffmpeg.KwArgs{"end_frame": frames}).
		Output("pipe:", ffmpeg.KwArgs{
			"f":        "rawvideo",
			"pix_fmt":  "rgb24",
			"frames:v": frames,
		}).
		GetArgs()
}

// readFrames splits a raw rgb24 stream into at most n frames. A stream that
// ends on a frame boundary yields the frames read so far; a partial frame is
// an error.
func readFrames(r io.Reader, width, height, n int) ([]tasm.Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	size := width * height * tasm.BytesPerPixel

	out := make([]tasm.Frame, 0, n)
	for len(out) < n {
		buf := make([]byte, size)
		_, err := io.ReadFull(r, buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return out, fmt.Errorf("truncated frame %d", len(out))
		}
		if err != nil {
			return out, err
		}
		out = append(out, tasm.Frame{Width: width, Height: height, Data: buf})
	}
	return out, nil
}

// tailBuffer keeps the last few KiB of a process's stderr.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 4 << 10

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = append(t.buf[:0], t.buf[len(t.buf)-tailLimit:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
