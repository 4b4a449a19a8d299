package ffdecode

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	tasm "github.com/apperception-db/TASM"
)

// Prober reads stream properties with ffprobe.
type Prober struct{}

// Probe returns the size and frame rate of the first video stream in path.
func (Prober) Probe(ctx context.Context, path string) (tasm.StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return tasm.StreamInfo{}, err
	}

	var (
		out string
		err error
	)
	if deadline, ok := ctx.Deadline(); ok {
		out, err = ffmpeg.ProbeWithTimeout(path, time.Until(deadline), ffmpeg.KwArgs{})
	} else {
		out, err = ffmpeg.Probe(path)
	}
	if err != nil {
		return tasm.StreamInfo{}, fmt.Errorf("ffdecode: probe %s: %w", path, err)
	}

	info, err := parseProbe([]byte(out))
	if err != nil {
		return tasm.StreamInfo{}, fmt.Errorf("ffdecode: probe %s: %w", path, err)
	}
	return info, nil
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// parseProbe extracts the first video stream from ffprobe's JSON output.
func parseProbe(data []byte) (tasm.StreamInfo, error) {
	var p probeOutput
	if err := json.Unmarshal(data, &p); err != nil {
		return tasm.StreamInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	for _, s := range p.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return tasm.StreamInfo{}, fmt.Errorf("video stream has invalid size %dx%d", s.Width, s.Height)
		}

		// avg_frame_rate is 0/0 for some containers
		rate, err := parseFrameRate(s.AvgFrameRate)
		if err != nil || rate == 0 {
			rate, _ = parseFrameRate(s.RFrameRate)
		}
		return tasm.StreamInfo{Width: s.Width, Height: s.Height, FrameRate: rate}, nil
	}
	return tasm.StreamInfo{}, fmt.Errorf("no video stream")
}

// parseFrameRate parses ffprobe rates such as "30000/1001", "25/1" or "25".
// A zero denominator yields 0.
func parseFrameRate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty frame rate")
	}

	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if !found {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frame rate %q: %w", s, err)
	}
	if d == 0 {
		return 0, nil
	}
	return n / d, nil
}
