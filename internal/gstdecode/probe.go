package gstdecode

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tinyzimmer/go-gst/gst"

	tasm "github.com/apperception-db/TASM"
)

// Prober reads stream properties by decoding the first frame.
type Prober struct {
	// Timeout bounds one probe (0: only the caller's context)
	Timeout time.Duration
}

// Probe returns the size and frame rate negotiated for the first video
// stream in path.
func (p Prober) Probe(ctx context.Context, path string) (tasm.StreamInfo, error) {
	c, err := run(ctx, path, 1, p.Timeout, 1)
	if err != nil {
		return tasm.StreamInfo{}, err
	}

	info := c.Info()
	if info.Width <= 0 || info.Height <= 0 {
		return tasm.StreamInfo{}, fmt.Errorf("gstdecode: probe %s: no video frame decoded", path)
	}

	slog.Debug("gstdecode: stream probed",
		"path", path,
		"width", info.Width,
		"height", info.Height,
		"fps", info.FrameRate,
	)
	return info, nil
}

// capsInfo extracts width, height and framerate from negotiated video caps.
func capsInfo(caps *gst.Caps) (tasm.StreamInfo, error) {
	if caps == nil || caps.GetSize() == 0 {
		return tasm.StreamInfo{}, fmt.Errorf("sample has no caps")
	}

	structure := caps.GetStructureAt(0)
	if name := structure.Name(); !isVideoCaps(name) {
		return tasm.StreamInfo{}, fmt.Errorf("unexpected caps %q", name)
	}

	var info tasm.StreamInfo
	if val, err := structure.GetValue("width"); err == nil {
		if width, ok := val.(int); ok {
			info.Width = width
		}
	}
	if val, err := structure.GetValue("height"); err == nil {
		if height, ok := val.(int); ok {
			info.Height = height
		}
	}
	// Framerate is a Gst.Fraction; its string form is "N/D"
	if val, err := structure.GetValue("framerate"); err == nil {
		info.FrameRate = parseFramerate(fmt.Sprintf("%v", val))
	}

	if info.Width <= 0 || info.Height <= 0 {
		return tasm.StreamInfo{}, fmt.Errorf("caps without size: %s", caps.String())
	}
	return info, nil
}

// parseFramerate converts a framerate string to frames per second
// Examples: "30/1" → 30, "30000/1001" → 29.97, "0/1" → 0 (variable rate)
func parseFramerate(s string) float64 {
	var numerator, denominator int

	if _, err := fmt.Sscanf(s, "%d/%d", &numerator, &denominator); err == nil {
		if denominator > 0 {
			return float64(numerator) / float64(denominator)
		}
		return 0
	}

	var fps float64
	if _, err := fmt.Sscanf(s, "%g", &fps); err == nil && fps > 0 {
		return fps
	}
	return 0
}
