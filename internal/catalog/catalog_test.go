package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	tasm "github.com/apperception-db/TASM"
)

// testManifest: a 200x100 video split into two 100x100 tiles and two
// segments of 10 frames each.
func testManifest() *Manifest {
	return &Manifest{
		Video:     "traffic",
		Width:     200,
		Height:    100,
		Reference: "traffic.mp4",
		Tiles: []Tile{
			{File: "t1-10.mp4", Number: 1, FirstFrame: 10, LastFrame: 20, X: 100, Width: 100, Height: 100},
			{File: "t0-10.mp4", Number: 0, FirstFrame: 10, LastFrame: 20, X: 0, Width: 100, Height: 100},
			{File: "t0-20.mp4", Number: 0, FirstFrame: 20, LastFrame: 30, X: 0, Width: 100, Height: 100},
			{File: "t1-20.mp4", Number: 1, FirstFrame: 20, LastFrame: 30, X: 100, Width: 100, Height: 100},
		},
		Objects: []Object{
			{Metadata: "yolo", Label: "car", Frame: 10, X: 5, Y: 5, Width: 20, Height: 30},
			{Metadata: "yolo", Label: "car", Frame: 10, X: 120, Y: 10, Width: 40, Height: 10},
			{Metadata: "yolo", Label: "car", Frame: 11, X: 6, Y: 5, Width: 20, Height: 30},
			{Metadata: "yolo", Label: "person", Frame: 11, X: 150, Y: 50, Width: 10, Height: 25},
			{Metadata: "ssd", Label: "car", Frame: 12, X: 130, Y: 40, Width: 15, Height: 15},
			{Metadata: "yolo", Label: "car", Frame: 25, X: 10, Y: 10, Width: 8, Height: 8},
		},
	}
}

type scanned struct {
	present bool
	res     tasm.TileResult
}

func drain(t *testing.T, sel tasm.Selection) []scanned {
	t.Helper()
	var out []scanned
	sc := sel.Scan()
	for !sc.IsComplete() {
		res, ok, err := sc.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, scanned{present: ok, res: res})
	}
	if _, _, err := sc.Next(context.Background()); !errors.Is(err, ErrScanComplete) {
		t.Errorf("Next after end = %v, want ErrScanComplete", err)
	}
	return out
}

func TestSelect_Scan(t *testing.T) {
	ix := New(testManifest())

	sel, err := ix.Select(context.Background(), tasm.Query{
		Video:              "traffic",
		MetadataIdentifier: "yolo",
		Label:              "car",
		FirstFrame:         0,
		LastFrame:          100,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if sel.MaxObjectWidth() != 40 || sel.MaxObjectHeight() != 30 {
		t.Errorf("max extents = %dx%d, want 40x30", sel.MaxObjectWidth(), sel.MaxObjectHeight())
	}

	got := drain(t, sel)
	// order: (10, tile 0), (10, tile 1), (20, tile 0), (20, tile 1)
	if len(got) != 4 {
		t.Fatalf("results = %d, want 4", len(got))
	}

	t0 := got[0].res
	if !got[0].present || t0.Tile.Filename != "t0-10.mp4" || t0.Tile.FrameOffset != 10 {
		t.Fatalf("first result = %+v", got[0])
	}
	if !reflect.DeepEqual(t0.Tile.FramesToRead, []int{10, 11}) {
		t.Errorf("tile 0 frames = %v, want [10 11]", t0.Tile.FramesToRead)
	}
	// frame 10 carries the tile 1 box too; the extractor skips it
	if len(t0.Rectangles) != 3 {
		t.Errorf("tile 0 rectangles = %v, want 3", t0.Rectangles)
	}

	t1 := got[1].res
	if !got[1].present || t1.Tile.TileNumber != 1 || t1.Tile.TileRect != (tasm.Rectangle{X: 100, Width: 100, Height: 100}) {
		t.Fatalf("second result = %+v", got[1])
	}
	if !reflect.DeepEqual(t1.Tile.FramesToRead, []int{10}) {
		t.Errorf("tile 1 frames = %v, want [10]", t1.Tile.FramesToRead)
	}

	if !got[2].present || got[2].res.Tile.Filename != "t0-20.mp4" {
		t.Errorf("third result = %+v", got[2])
	}
	if got[3].present {
		t.Errorf("tile 1 of second segment has no car, got %+v", got[3].res)
	}
}

func TestSelect_Filters(t *testing.T) {
	ix := New(testManifest())

	tests := []struct {
		name      string
		query     tasm.Query
		wantTiles int
		wantRects int
	}{
		{"any_detector", tasm.Query{Label: "car", FirstFrame: 0, LastFrame: 100}, 4, 3 + 3 + 1},
		{"range_excludes_second_segment", tasm.Query{Label: "car", MetadataIdentifier: "yolo", FirstFrame: 10, LastFrame: 11}, 2, 2 + 2},
		{"other_label", tasm.Query{Label: "person", FirstFrame: 0, LastFrame: 100}, 4, 1},
		{"no_match", tasm.Query{Label: "bus", FirstFrame: 0, LastFrame: 100}, 4, 0},
		{"range_before_video", tasm.Query{Label: "car", FirstFrame: 0, LastFrame: 10}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := ix.Select(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Select: %v", err)
			}
			got := drain(t, sel)
			if len(got) != tt.wantTiles {
				t.Errorf("results = %d, want %d", len(got), tt.wantTiles)
			}
			rects := 0
			for _, s := range got {
				if s.present {
					rects += len(s.res.Rectangles)
				}
			}
			if rects != tt.wantRects {
				t.Errorf("rectangles = %d, want %d", rects, tt.wantRects)
			}
		})
	}
}

func TestSelect_InvalidQuery(t *testing.T) {
	ix := New(testManifest())

	tests := []struct {
		name  string
		query tasm.Query
	}{
		{"other_video", tasm.Query{Video: "harbor", Label: "car", LastFrame: 10}},
		{"no_label", tasm.Query{LastFrame: 10}},
		{"empty_range", tasm.Query{Label: "car", FirstFrame: 5, LastFrame: 5}},
		{"negative_start", tasm.Query{Label: "car", FirstFrame: -1, LastFrame: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ix.Select(context.Background(), tt.query); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadSave(t *testing.T) {
	for _, name := range []string{"manifest.yaml", "manifest.msgpack", "manifest.msgpack.zst", "manifest.yml.zst"} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := filepath.Join(dir, name)
			if err := Save(path, testManifest()); err != nil {
				t.Fatalf("Save: %v", err)
			}

			m, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(m.Tiles) != 4 || len(m.Objects) != 6 {
				t.Fatalf("loaded %d tiles, %d objects", len(m.Tiles), len(m.Objects))
			}
			// relative paths resolve against the manifest directory
			if m.Tiles[0].File != filepath.Join(dir, "t1-10.mp4") {
				t.Errorf("tile path = %q", m.Tiles[0].File)
			}
			if m.Reference != filepath.Join(dir, "traffic.mp4") {
				t.Errorf("reference = %q", m.Reference)
			}
		})
	}

	t.Run("compressed_is_smaller_than_plain", func(t *testing.T) {
		m := testManifest()
		for i := 0; i < 500; i++ {
			m.Objects = append(m.Objects, Object{Metadata: "yolo", Label: "car", Frame: 10 + i%20, X: i % 90, Y: 3, Width: 4, Height: 4})
		}
		dir := t.TempDir()
		plain := filepath.Join(dir, "m.msgpack")
		packed := filepath.Join(dir, "m.msgpack.zst")
		if err := Save(plain, m); err != nil {
			t.Fatal(err)
		}
		if err := Save(packed, m); err != nil {
			t.Fatal(err)
		}
		ps, _ := os.Stat(plain)
		zs, _ := os.Stat(packed)
		if zs.Size() >= ps.Size() {
			t.Errorf("zstd manifest %d bytes, plain %d bytes", zs.Size(), ps.Size())
		}
	})
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	t.Run("unknown_extension", func(t *testing.T) {
		if _, err := Load(filepath.Join(dir, "manifest.json")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("missing_file", func(t *testing.T) {
		if _, err := Open(filepath.Join(dir, "missing.yaml")); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid_manifest", func(t *testing.T) {
		m := testManifest()
		m.Tiles[2].LastFrame = m.Tiles[2].FirstFrame
		path := filepath.Join(dir, "bad.yaml")
		if err := Save(path, m); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected validation error")
		}
	})

	t.Run("corrupt_zstd", func(t *testing.T) {
		path := filepath.Join(dir, "bad.msgpack.zst")
		if err := os.WriteFile(path, []byte("not zstd at all"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); err == nil {
			t.Error("expected decode error")
		}
	})
}
