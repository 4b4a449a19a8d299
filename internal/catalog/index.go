package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	tasm "github.com/apperception-db/TASM"
)

// ErrScanComplete is returned by Next after the last result.
var ErrScanComplete = errors.New("catalog: scan complete")

// Index serves queries over one manifest. It is safe for concurrent use;
// every Select builds its own selection.
type Index struct {
	manifest *Manifest
	tiles    []Tile
}

// Open loads the manifest at path and indexes it.
func Open(path string) (*Index, error) {
	m, err := Load(path)
	if err != nil {
		return nil, err
	}
	ix := New(m)

	slog.Info("catalog: manifest loaded",
		"path", path,
		"video", m.Video,
		"tiles", len(m.Tiles),
		"objects", len(m.Objects),
	)
	return ix, nil
}

// New indexes an already validated manifest. Tiles are scanned by segment
// start, then tile number.
func New(m *Manifest) *Index {
	tiles := append([]Tile(nil), m.Tiles...)
	sort.SliceStable(tiles, func(i, j int) bool {
		if tiles[i].FirstFrame != tiles[j].FirstFrame {
			return tiles[i].FirstFrame < tiles[j].FirstFrame
		}
		return tiles[i].Number < tiles[j].Number
	})
	return &Index{manifest: m, tiles: tiles}
}

// Manifest returns the indexed manifest.
func (ix *Index) Manifest() *Manifest {
	return ix.manifest
}

// Select matches q against the manifest. An empty MetadataIdentifier
// matches every detector.
func (ix *Index) Select(ctx context.Context, q tasm.Query) (tasm.Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.Video != "" && q.Video != ix.manifest.Video {
		return nil, fmt.Errorf("catalog: video %q not in manifest (have %q)", q.Video, ix.manifest.Video)
	}
	if q.Label == "" {
		return nil, fmt.Errorf("catalog: label is required")
	}
	if q.FirstFrame < 0 || q.LastFrame <= q.FirstFrame {
		return nil, fmt.Errorf("catalog: invalid frame range [%d,%d)", q.FirstFrame, q.LastFrame)
	}

	sel := &selection{
		query:   q,
		byFrame: make(map[int][]tasm.Rectangle),
	}
	for _, o := range ix.manifest.Objects {
		if o.Label != q.Label || o.Frame < q.FirstFrame || o.Frame >= q.LastFrame {
			continue
		}
		if q.MetadataIdentifier != "" && o.Metadata != q.MetadataIdentifier {
			continue
		}
		if _, ok := sel.byFrame[o.Frame]; !ok {
			sel.frames = append(sel.frames, o.Frame)
		}
		sel.byFrame[o.Frame] = append(sel.byFrame[o.Frame], tasm.Rectangle{
			ID:     o.Frame,
			X:      o.X,
			Y:      o.Y,
			Width:  o.Width,
			Height: o.Height,
		})
		sel.maxW = max(sel.maxW, o.Width)
		sel.maxH = max(sel.maxH, o.Height)
	}
	sort.Ints(sel.frames)

	for _, t := range ix.tiles {
		if t.FirstFrame < q.LastFrame && t.LastFrame > q.FirstFrame {
			sel.tiles = append(sel.tiles, t)
		}
	}

	slog.Debug("catalog: query selected",
		"query", q.String(),
		"frames_matched", len(sel.frames),
		"tiles", len(sel.tiles),
		"max_object", fmt.Sprintf("%dx%d", sel.maxW, sel.maxH),
	)
	return sel, nil
}

type selection struct {
	query   tasm.Query
	tiles   []Tile
	byFrame map[int][]tasm.Rectangle
	frames  []int // sorted keys of byFrame
	maxW    int
	maxH    int
}

func (s *selection) Scan() tasm.Scan {
	return &scan{sel: s}
}

func (s *selection) MaxObjectWidth() int  { return s.maxW }
func (s *selection) MaxObjectHeight() int { return s.maxH }

// scan walks the selected tiles lazily. A tile none of whose frames has an
// object on it yields an absent result.
type scan struct {
	sel *selection
	pos int
}

func (s *scan) IsComplete() bool {
	return s.pos >= len(s.sel.tiles)
}

func (s *scan) Next(ctx context.Context) (tasm.TileResult, bool, error) {
	if err := ctx.Err(); err != nil {
		return tasm.TileResult{}, false, err
	}
	if s.IsComplete() {
		return tasm.TileResult{}, false, ErrScanComplete
	}

	t := s.sel.tiles[s.pos]
	s.pos++

	tileRect := tasm.Rectangle{X: t.X, Y: t.Y, Width: t.Width, Height: t.Height}
	lo := max(t.FirstFrame, s.sel.query.FirstFrame)
	hi := min(t.LastFrame, s.sel.query.LastFrame)

	var (
		needed []int
		rects  []tasm.Rectangle
	)
	for i := sort.SearchInts(s.sel.frames, lo); i < len(s.sel.frames) && s.sel.frames[i] < hi; i++ {
		frame := s.sel.frames[i]
		onFrame := s.sel.byFrame[frame]
		if !anyIntersects(onFrame, tileRect) {
			continue
		}
		needed = append(needed, frame)
		// every box on a needed frame, including those in other tiles
		rects = append(rects, onFrame...)
	}

	if len(needed) == 0 {
		return tasm.TileResult{}, false, nil
	}

	return tasm.TileResult{
		Tile: tasm.TileInfo{
			Filename:     t.File,
			TileNumber:   t.Number,
			Width:        t.Width,
			Height:       t.Height,
			FrameOffset:  t.FirstFrame,
			FramesToRead: needed,
			TileRect:     tileRect,
		},
		Rectangles: rects,
	}, true, nil
}

func anyIntersects(rects []tasm.Rectangle, tile tasm.Rectangle) bool {
	for _, r := range rects {
		if r.Intersects(tile) {
			return true
		}
	}
	return false
}
