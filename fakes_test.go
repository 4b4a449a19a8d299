package tasm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
)

// patternFrame fills a frame so every pixel tells where it came from:
// R is the local frame index, G the column and B the row.
func patternFrame(local, width, height int) Frame {
	f := NewFrame(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			o := f.PixOffset(x, y)
			f.Data[o] = byte(local)
			f.Data[o+1] = byte(x)
			f.Data[o+2] = byte(y)
		}
	}
	return f
}

// fakeDecoder serves pattern frames. Segments are sized by path; a path
// listed in short returns that many frames at most.
type fakeDecoder struct {
	mu     sync.Mutex
	sizes  map[string][2]int
	short  map[string]int
	fail   map[string]error
	calls  []string
	bounds map[string]int
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{
		sizes:  map[string][2]int{},
		short:  map[string]int{},
		fail:   map[string]error{},
		bounds: map[string]int{},
	}
}

func (d *fakeDecoder) segment(path string, width, height int) *fakeDecoder {
	d.sizes[path] = [2]int{width, height}
	return d
}

func (d *fakeDecoder) Decode(ctx context.Context, path string, frames int) ([]Frame, error) {
	d.mu.Lock()
	d.calls = append(d.calls, path)
	d.bounds[path] = frames
	d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.fail[path]; err != nil {
		return nil, err
	}
	size, ok := d.sizes[path]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", path, os.ErrNotExist)
	}
	n := frames
	if limit, ok := d.short[path]; ok && limit < n {
		n = limit
	}
	out := make([]Frame, n)
	for i := range out {
		out[i] = patternFrame(i, size[0], size[1])
	}
	return out, nil
}

type fakeProber struct {
	info StreamInfo
	err  error
}

func (p fakeProber) Probe(ctx context.Context, path string) (StreamInfo, error) {
	return p.info, p.err
}

// fakeScan replays results; a nil entry is an absent (empty) match.
type fakeScan struct {
	results []*TileResult
	pos     int
	failAt  int
}

func (s *fakeScan) IsComplete() bool { return s.pos >= len(s.results) }

func (s *fakeScan) Next(ctx context.Context) (TileResult, bool, error) {
	if s.failAt > 0 && s.pos == s.failAt-1 {
		return TileResult{}, false, errors.New("scan cursor broken")
	}
	r := s.results[s.pos]
	s.pos++
	if r == nil {
		return TileResult{}, false, nil
	}
	return *r, true, nil
}

type fakeSelection struct {
	results    []*TileResult
	failAt     int
	maxW, maxH int
}

func (s *fakeSelection) Scan() Scan {
	return &fakeScan{results: s.results, failAt: s.failAt}
}
func (s *fakeSelection) MaxObjectWidth() int  { return s.maxW }
func (s *fakeSelection) MaxObjectHeight() int { return s.maxH }

type fakeIndex struct {
	sel *fakeSelection
	err error
}

func (i *fakeIndex) Select(ctx context.Context, q Query) (Selection, error) {
	if i.err != nil {
		return nil, i.err
	}
	return i.sel, nil
}

func indexOf(results ...*TileResult) *fakeIndex {
	sel := &fakeSelection{results: results}
	for _, r := range results {
		if r == nil {
			continue
		}
		for _, rect := range r.Rectangles {
			sel.maxW = max(sel.maxW, rect.Width)
			sel.maxH = max(sel.maxH, rect.Height)
		}
	}
	return &fakeIndex{sel: sel}
}

// memWriter records frames in memory and creates the output file so abort
// paths can be checked on disk.
type memWriter struct {
	path      string
	fps       float64
	w, h      int
	frames    []Frame
	closed    bool
	failAfter int
}

func (m *memWriter) Write(f Frame) error {
	if m.failAfter > 0 && len(m.frames) == m.failAfter {
		return errors.New("disk full")
	}
	m.frames = append(m.frames, f)
	return nil
}

func (m *memWriter) Close() error {
	m.closed = true
	return nil
}

type memFactory struct {
	writers   []*memWriter
	failAfter int
	openErr   error
}

func (f *memFactory) Open(path string, fps float64, width, height int) (FrameWriter, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		return nil, err
	}
	w := &memWriter{path: path, fps: fps, w: width, h: height, failAfter: f.failAfter}
	f.writers = append(f.writers, w)
	return w, nil
}

func (f *memFactory) last() *memWriter {
	if len(f.writers) == 0 {
		return nil
	}
	return f.writers[len(f.writers)-1]
}

func result(file string, tileRect Rectangle, offset int, rects ...Rectangle) *TileResult {
	frames := make([]int, 0, len(rects))
	for _, r := range rects {
		frames = append(frames, r.ID)
	}
	return &TileResult{
		Tile: TileInfo{
			Filename:     file,
			Width:        tileRect.Width,
			Height:       tileRect.Height,
			FrameOffset:  offset,
			FramesToRead: frames,
			TileRect:     tileRect,
		},
		Rectangles: rects,
	}
}
