package gstdecode

import (
	"fmt"
	"log/slog"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// PipelineConfig contains configuration for GStreamer pipeline creation
type PipelineConfig struct {
	Path string
	// MaxBuffers is the appsink queue depth. The sink never drops, so a full
	// queue blocks the decoder until the callback catches up.
	MaxBuffers int
}

// PipelineElements holds references to GStreamer pipeline elements
type PipelineElements struct {
	Pipeline  *gst.Pipeline
	AppSink   *app.Sink
	DecodeBin *gst.Element
	Converter *gst.Element
}

// CreatePipeline creates a file decode pipeline
//
// Pipeline structure:
//
//	filesrc → decodebin → videoconvert → capsfilter(RGB) → appsink
//
// decodebin has dynamic pads; the video pad is linked in the pad-added
// callback. The pipeline is configured but NOT started (state remains NULL).
func CreatePipeline(cfg PipelineConfig) (*PipelineElements, error) {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	filesrc, err := gst.NewElement("filesrc")
	if err != nil {
		return nil, fmt.Errorf("failed to create filesrc: %w", err)
	}
	filesrc.SetProperty("location", cfg.Path)

	decodebin, err := gst.NewElement("decodebin")
	if err != nil {
		return nil, fmt.Errorf("failed to create decodebin: %w", err)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // 0 = auto-detect cores
	converter.SetProperty("dither", 0)

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(buildRGBCaps()))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	maxBuffers := cfg.MaxBuffers
	if maxBuffers <= 0 {
		maxBuffers = 4
	}
	appsink.SetProperty("sync", false) // decode as fast as possible
	appsink.SetProperty("max-buffers", uint(maxBuffers))
	appsink.SetProperty("drop", false) // every frame counts

	if err := pipeline.AddMany(filesrc, decodebin, converter, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}

	if err := filesrc.Link(decodebin); err != nil {
		return nil, fmt.Errorf("failed to link filesrc to decodebin: %w", err)
	}
	if err := gst.ElementLinkMany(converter, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link conversion elements: %w", err)
	}

	if _, err := decodebin.Connect("pad-added", func(self *gst.Element, srcPad *gst.Pad) {
		OnPadAdded(self, srcPad, converter)
	}); err != nil {
		return nil, fmt.Errorf("failed to connect pad-added: %w", err)
	}

	slog.Debug("gstdecode: pipeline created", "path", cfg.Path, "max_buffers", maxBuffers)

	return &PipelineElements{
		Pipeline:  pipeline,
		AppSink:   appsink,
		DecodeBin: decodebin,
		Converter: converter,
	}, nil
}

// DestroyPipeline cleans up GStreamer pipeline resources
//
// Sets pipeline state to NULL, which joins the streaming threads.
// Safe to call even if pipeline is already destroyed.
func DestroyPipeline(elements *PipelineElements) error {
	if elements == nil || elements.Pipeline == nil {
		return nil
	}

	if err := elements.Pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}

	return nil
}

// buildRGBCaps locks the appsink input to packed RGB. Size and rate are left
// to the stream.
func buildRGBCaps() string {
	return "video/x-raw,format=RGB"
}
