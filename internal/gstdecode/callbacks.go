package gstdecode

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	tasm "github.com/apperception-db/TASM"
)

// Collector gathers decoded frames from the appsink until the bound.
type Collector struct {
	want int

	mu     sync.Mutex
	frames []tasm.Frame
	info   tasm.StreamInfo
	err    error
	done   chan struct{}
	closed bool
}

// NewCollector creates a collector that stops after want frames.
func NewCollector(want int) *Collector {
	return &Collector{
		want:   want,
		frames: make([]tasm.Frame, 0, want),
		done:   make(chan struct{}),
	}
}

// Done is closed once the bound is reached or a frame could not be read.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

// Frames returns the collected frames and the first read error.
func (c *Collector) Frames() ([]tasm.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames, c.err
}

// Info returns the caps of the last sample.
func (c *Collector) Info() tasm.StreamInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info
}

func (c *Collector) finish(err error) {
	if c.closed {
		return
	}
	if err != nil && c.err == nil {
		c.err = err
	}
	c.closed = true
	close(c.done)
}

// OnNewSample is called by GStreamer when a new frame is available
//
// The sample is copied (GStreamer reuses the buffer) and appended. Once the
// bound is reached the callback returns FlowEOS so upstream stops decoding.
func OnNewSample(sink *app.Sink, c *Collector) gst.FlowReturn {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return gst.FlowEOS
	}

	sample := sink.PullSample()
	if sample == nil {
		c.finish(fmt.Errorf("failed to pull sample %d", len(c.frames)))
		return gst.FlowError
	}

	info, err := capsInfo(sample.GetCaps())
	if err != nil {
		c.finish(fmt.Errorf("sample %d: %w", len(c.frames), err))
		return gst.FlowError
	}
	c.info = info

	buffer := sample.GetBuffer()
	if buffer == nil {
		c.finish(fmt.Errorf("sample %d has no buffer", len(c.frames)))
		return gst.FlowError
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	frame, err := copyFrame(data, info.Width, info.Height)
	buffer.Unmap()
	if err != nil {
		c.finish(fmt.Errorf("sample %d: %w", len(c.frames), err))
		return gst.FlowError
	}

	c.frames = append(c.frames, frame)
	if len(c.frames) >= c.want {
		c.finish(nil)
		return gst.FlowEOS
	}
	return gst.FlowOK
}

// copyFrame copies a mapped RGB buffer into a tightly packed frame. GStreamer
// pads RGB rows to 4-byte strides, so rows are copied one by one when the
// buffer is larger than width*height*3.
func copyFrame(data []byte, width, height int) (tasm.Frame, error) {
	row := width * tasm.BytesPerPixel
	if height <= 0 || row <= 0 {
		return tasm.Frame{}, fmt.Errorf("invalid frame size %dx%d", width, height)
	}

	stride := (row + 3) &^ 3
	switch {
	case len(data) == row*height:
		stride = row
	case len(data) < stride*(height-1)+row:
		return tasm.Frame{}, fmt.Errorf("buffer of %d bytes too small for %dx%d RGB", len(data), width, height)
	}

	f := tasm.NewFrame(width, height)
	for y := 0; y < height; y++ {
		copy(f.Data[y*row:(y+1)*row], data[y*stride:y*stride+row])
	}
	return f, nil
}

// OnPadAdded is called by GStreamer when decodebin exposes a new pad
//
// Only the first video pad is linked to the converter; audio and subtitle
// pads stay unlinked.
func OnPadAdded(srcElement *gst.Element, srcPad *gst.Pad, sinkElement *gst.Element) {
	slog.Debug("gstdecode: pad-added signal received", "pad", srcPad.GetName())

	caps := srcPad.GetCurrentCaps()
	if caps == nil || caps.GetSize() == 0 || !isVideoCaps(caps.GetStructureAt(0).Name()) {
		slog.Debug("gstdecode: ignoring non-video pad", "pad", srcPad.GetName())
		return
	}

	sinkPad := sinkElement.GetStaticPad("sink")
	if sinkPad == nil {
		slog.Error("gstdecode: failed to get sink pad from videoconvert")
		return
	}
	if sinkPad.IsLinked() {
		slog.Debug("gstdecode: video already linked, ignoring pad", "pad", srcPad.GetName())
		return
	}

	if ret := srcPad.Link(sinkPad); ret != gst.PadLinkOK {
		slog.Error("gstdecode: failed to link pads",
			"src_pad", srcPad.GetName(),
			"sink_pad", sinkPad.GetName(),
			"ret", ret,
		)
		return
	}

	slog.Debug("gstdecode: pads linked successfully",
		"src_pad", srcPad.GetName(),
		"sink_pad", sinkPad.GetName(),
	)
}

func isVideoCaps(name string) bool {
	return strings.HasPrefix(name, "video/")
}
