// Package gstdecode decodes tile segments and probes videos with GStreamer.
//
// Each call builds a short-lived pipeline:
//
//	filesrc → decodebin → videoconvert → capsfilter(RGB) → appsink
//
// The appsink callback copies samples into a Collector and returns FlowEOS at
// the frame bound, so the decoder never runs past the frames a query needs.
package gstdecode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	tasm "github.com/apperception-db/TASM"
)

// Decoder runs one GStreamer pipeline per segment.
type Decoder struct {
	// Timeout bounds one segment decode (0: only the caller's context)
	Timeout time.Duration
	// MaxBuffers is the appsink queue depth (default 4)
	MaxBuffers int
}

// New creates a Decoder with default settings.
func New() *Decoder {
	return &Decoder{}
}

// Decode returns the first frames of the segment at path as RGB24.
func (d *Decoder) Decode(ctx context.Context, path string, frames int) ([]tasm.Frame, error) {
	if frames <= 0 {
		return nil, fmt.Errorf("gstdecode: frame bound must be > 0, got %d", frames)
	}

	start := time.Now()
	c, err := run(ctx, path, frames, d.Timeout, d.MaxBuffers)
	if err != nil {
		return nil, err
	}

	out, _ := c.Frames()
	info := c.Info()
	slog.Debug("gstdecode: segment decoded",
		"path", path,
		"requested", frames,
		"decoded", len(out),
		"size", fmt.Sprintf("%dx%d", info.Width, info.Height),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// run plays path until want frames were collected, the stream ended, or the
// pipeline failed. The pipeline is torn down before returning, so the
// collector is no longer written to.
func run(ctx context.Context, path string, want int, timeout time.Duration, maxBuffers int) (*Collector, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// filesrc reports a missing file as a generic resource error
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("gstdecode: %w", err)
	}

	elements, err := CreatePipeline(PipelineConfig{Path: path, MaxBuffers: maxBuffers})
	if err != nil {
		return nil, fmt.Errorf("gstdecode: %w", err)
	}

	c := NewCollector(want)
	elements.AppSink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return OnNewSample(sink, c)
		},
	})

	if err := elements.Pipeline.SetState(gst.StatePlaying); err != nil {
		_ = DestroyPipeline(elements)
		return nil, fmt.Errorf("gstdecode: failed to start pipeline for %s: %w", path, err)
	}

	monitorErr := MonitorPipelineBus(ctx, elements.Pipeline, c, path)

	if err := DestroyPipeline(elements); err != nil {
		slog.Warn("gstdecode: pipeline teardown failed", "path", path, "error", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("gstdecode: %s: %w", path, err)
	}
	if _, err := c.Frames(); err != nil {
		return nil, fmt.Errorf("gstdecode: %s: %w", path, err)
	}
	if monitorErr != nil {
		return nil, fmt.Errorf("gstdecode: %s: %w", path, monitorErr)
	}
	return c, nil
}
