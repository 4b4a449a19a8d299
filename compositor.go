package tasm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// CropAndPad copies the box out of src and centers it on a zero-filled
// canvas. The box must already be clipped to src.
func CropAndPad(src Frame, box CropBox, canvas Canvas) (Frame, Padding, error) {
	if box.X1 < 0 || box.Y1 < 0 || box.X2 > src.Width || box.Y2 > src.Height {
		return Frame{}, Padding{}, fmt.Errorf("tasm: crop box %+v outside %dx%d frame", box, src.Width, src.Height)
	}
	pad, err := CenteredPad(box.Width(), box.Height(), canvas.Width, canvas.Height)
	if err != nil {
		return Frame{}, Padding{}, err
	}

	dst := NewFrame(canvas.Width, canvas.Height)
	if box.Empty() {
		return dst, pad, nil
	}

	rowBytes := box.Width() * BytesPerPixel
	for y := 0; y < box.Height(); y++ {
		s := src.PixOffset(box.X1, box.Y1+y)
		d := dst.PixOffset(pad.Left, pad.Top+y)
		copy(dst.Data[d:d+rowBytes], src.Data[s:s+rowBytes])
	}
	return dst, pad, nil
}

// Segment is one decoded tile segment, resident while its rectangles are
// composited.
type Segment struct {
	Result TileResult
	// Path is the file actually decoded
	Path string
	// Origin is the global placement of the decoded raster and Offset the
	// absolute frame number of Frames[0]. For a tile segment these are the
	// tile rect and frame offset.
	Origin Rectangle
	Offset int
	Frames []Frame
	// Fallback is set when the reference video replaced a missing tile
	Fallback bool
}

// TileStats counts what compositing one tile result produced.
type TileStats struct {
	Emitted int
	Skipped int
}

// Compositor decodes tile segments and turns their rectangles into canvas
// frames.
type Compositor struct {
	decoder   Decoder
	prober    Prober
	canvas    Canvas
	reference string
	logger    *slog.Logger
}

// NewCompositor creates a compositor for one job's canvas. prober and
// reference may be empty; without them a missing segment is a DecodeError.
func NewCompositor(decoder Decoder, prober Prober, canvas Canvas, reference string, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compositor{
		decoder:   decoder,
		prober:    prober,
		canvas:    canvas,
		reference: reference,
		logger:    logger,
	}
}

// DecodeTile decodes the window of a tile segment the result needs: up to
// the highest frame named by a rectangle or by the tile's frame list.
func (c *Compositor) DecodeTile(ctx context.Context, res TileResult) (*Segment, error) {
	tile := res.Tile
	if res.Empty() {
		return nil, fmt.Errorf("tasm: decode of empty result for tile %d", tile.TileNumber)
	}
	maxID := highestFrame(res)

	seg := &Segment{
		Result: res,
		Path:   tile.Filename,
		Origin: tile.TileRect,
		Offset: tile.FrameOffset,
	}

	if _, err := os.Stat(tile.Filename); errors.Is(err, os.ErrNotExist) && c.reference != "" {
		if err := c.useReference(ctx, seg); err != nil {
			return nil, err
		}
	}

	bound := maxID - seg.Offset + 1
	if bound <= 0 {
		return nil, &FrameIndexError{Path: seg.Path, Rect: res.Rectangles[0], FrameOffset: seg.Offset}
	}

	frames, err := c.decoder.Decode(ctx, seg.Path, bound)
	if err != nil {
		return nil, &DecodeError{Path: seg.Path, Tile: tile.TileNumber, Want: bound, Got: len(frames), Err: err}
	}
	if len(frames) < bound {
		return nil, &DecodeError{Path: seg.Path, Tile: tile.TileNumber, Want: bound, Got: len(frames)}
	}
	frames = frames[:bound]
	for i, f := range frames {
		if !f.Valid() {
			return nil, &DecodeError{
				Path: seg.Path,
				Tile: tile.TileNumber,
				Want: bound,
				Got:  i,
				Err:  fmt.Errorf("frame %d is malformed (%dx%d, %d bytes)", i, f.Width, f.Height, len(f.Data)),
			}
		}
	}
	seg.Frames = frames

	c.logger.Debug("tasm: segment decoded",
		"tile", tile.TileNumber,
		"path", seg.Path,
		"frame_offset", seg.Offset,
		"frames", bound,
		"fallback", seg.Fallback,
	)
	return seg, nil
}

// useReference points seg at the un-tiled reference video, whose pixels and
// frame numbers are already global.
func (c *Compositor) useReference(ctx context.Context, seg *Segment) error {
	origin := Rectangle{}
	if c.prober != nil {
		info, err := c.prober.Probe(ctx, c.reference)
		if err != nil {
			return &DecodeError{Path: c.reference, Tile: seg.Result.Tile.TileNumber, Err: fmt.Errorf("probe reference: %w", err)}
		}
		origin.Width, origin.Height = info.Width, info.Height
	}

	c.logger.Warn("tasm: tile segment missing, decoding reference video",
		"tile", seg.Result.Tile.TileNumber,
		"segment", seg.Path,
		"reference", c.reference,
		"reference_size", fmt.Sprintf("%dx%d", origin.Width, origin.Height),
	)

	seg.Path = c.reference
	seg.Origin = origin
	seg.Offset = 0
	seg.Fallback = true
	return nil
}

// CompositeTile crops every intersecting rectangle of a decoded segment, in
// index order, and hands the canvas frames to emit.
func (c *Compositor) CompositeTile(ctx context.Context, seg *Segment, emit func(Frame) error) (TileStats, error) {
	var stats TileStats
	tileRect := seg.Result.Tile.TileRect

	for _, r := range seg.Result.Rectangles {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if !r.Intersects(tileRect) {
			stats.Skipped++
			continue
		}

		local := r.ID - seg.Offset
		if local < 0 || local >= len(seg.Frames) {
			return stats, &FrameIndexError{Path: seg.Path, Rect: r, FrameOffset: seg.Offset, Decoded: len(seg.Frames)}
		}
		src := seg.Frames[local]

		box := TranslateToTileLocal(r, seg.Origin).Clip(src.Width, src.Height)
		if box.Width() != r.Width || box.Height() != r.Height {
			c.logger.Debug("tasm: crop clipped to decoded raster",
				"rect", r.String(),
				"tile", seg.Result.Tile.TileNumber,
				"crop", fmt.Sprintf("%dx%d", box.Width(), box.Height()),
				"raster", fmt.Sprintf("%dx%d", src.Width, src.Height),
			)
		}

		out, _, err := CropAndPad(src, box, c.canvas)
		if err != nil {
			return stats, err
		}
		if err := emit(out); err != nil {
			return stats, err
		}
		stats.Emitted++
	}

	return stats, nil
}

func highestFrame(res TileResult) int {
	maxID := res.Rectangles[0].ID
	for _, r := range res.Rectangles[1:] {
		maxID = max(maxID, r.ID)
	}
	for _, id := range res.Tile.FramesToRead {
		maxID = max(maxID, id)
	}
	return maxID
}
