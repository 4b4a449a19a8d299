package gstdecode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
)

// busPollInterval keeps the monitor responsive to cancellation.
const busPollInterval = 50 * time.Millisecond

// MonitorPipelineBus polls the pipeline bus until the segment is done
//
// Returns nil when the collector reached its bound or the stream ended
// (a short segment). Returns a *PipelineError on a bus error and the
// context error on cancellation.
func MonitorPipelineBus(ctx context.Context, pipeline *gst.Pipeline, c *Collector, path string) error {
	if pipeline == nil {
		return fmt.Errorf("pipeline not initialized")
	}

	bus := pipeline.GetPipelineBus()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("gstdecode: context cancelled, stopping pipeline monitor", "path", path)
			return ctx.Err()

		case <-c.Done():
			return nil

		default:
			msg := bus.TimedPop(busPollInterval)
			if msg == nil {
				continue
			}

			switch msg.Type() {
			case gst.MessageEOS:
				slog.Debug("gstdecode: end of stream", "path", path)
				return nil

			case gst.MessageError:
				gerr := msg.ParseError()
				category := ClassifyGStreamerError(gerr)

				slog.Error("gstdecode: pipeline error",
					"error", gerr.Error(),
					"debug", gerr.DebugString(),
					"category", category.String(),
					"path", path,
				)
				return &PipelineError{
					Category: category,
					Message:  gerr.Error(),
					Debug:    gerr.DebugString(),
				}

			case gst.MessageStateChanged:
				if msg.Source() == pipeline.GetName() {
					old, new := msg.ParseStateChanged()
					slog.Debug("gstdecode: pipeline state changed",
						"from", old,
						"to", new,
					)
				}
			}
		}
	}
}
