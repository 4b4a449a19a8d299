// Package catalog answers extraction queries from a static tile manifest.
//
// A manifest describes one stored video: the tile segments it was encoded
// into (file, absolute frame range, placement) and the labelled object boxes
// detected on each frame. It stands in for a full spatio-temporal index when
// the tile layout is fixed and the detections fit in memory.
//
// Manifests are read and written as YAML (.yaml, .yml) or msgpack
// (.msgpack), optionally zstd-compressed (.zst suffix, e.g.
// manifest.msgpack.zst).
package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Manifest is the stored description of one tiled video.
type Manifest struct {
	Video  string `yaml:"video" msgpack:"video"`
	Width  int    `yaml:"width" msgpack:"width"`
	Height int    `yaml:"height" msgpack:"height"`

	// Reference is the optional un-tiled source video
	Reference string   `yaml:"reference,omitempty" msgpack:"reference,omitempty"`
	Tiles     []Tile   `yaml:"tiles" msgpack:"tiles"`
	Objects   []Object `yaml:"objects" msgpack:"objects"`
}

// Tile is one encoded tile segment. FirstFrame is the absolute frame of the
// segment's local frame 0; LastFrame is exclusive.
type Tile struct {
	File       string `yaml:"file" msgpack:"file"`
	Number     int    `yaml:"number" msgpack:"number"`
	FirstFrame int    `yaml:"first_frame" msgpack:"first_frame"`
	LastFrame  int    `yaml:"last_frame" msgpack:"last_frame"`
	X          int    `yaml:"x" msgpack:"x"`
	Y          int    `yaml:"y" msgpack:"y"`
	Width      int    `yaml:"width" msgpack:"width"`
	Height     int    `yaml:"height" msgpack:"height"`
}

// Object is one detected bounding box in global coordinates.
type Object struct {
	Metadata string `yaml:"metadata" msgpack:"metadata"`
	Label    string `yaml:"label" msgpack:"label"`
	Frame    int    `yaml:"frame" msgpack:"frame"`
	X        int    `yaml:"x" msgpack:"x"`
	Y        int    `yaml:"y" msgpack:"y"`
	Width    int    `yaml:"width" msgpack:"width"`
	Height   int    `yaml:"height" msgpack:"height"`
}

// Validate checks the manifest for inconsistencies the scan cannot recover
// from.
func (m *Manifest) Validate() error {
	if m.Video == "" {
		return fmt.Errorf("video name is required")
	}
	if len(m.Tiles) == 0 {
		return fmt.Errorf("manifest has no tiles")
	}
	for i, t := range m.Tiles {
		if t.File == "" {
			return fmt.Errorf("tile %d: file is required", i)
		}
		if t.LastFrame <= t.FirstFrame || t.FirstFrame < 0 {
			return fmt.Errorf("tile %d (%s): invalid frame range [%d,%d)", i, t.File, t.FirstFrame, t.LastFrame)
		}
		if t.Width <= 0 || t.Height <= 0 {
			return fmt.Errorf("tile %d (%s): invalid size %dx%d", i, t.File, t.Width, t.Height)
		}
	}
	for i, o := range m.Objects {
		if o.Width <= 0 || o.Height <= 0 {
			return fmt.Errorf("object %d (%s @%d): invalid size %dx%d", i, o.Label, o.Frame, o.Width, o.Height)
		}
	}
	return nil
}

type format int

const (
	formatYAML format = iota
	formatMsgpack
)

// formatOf picks the encoding from the file name.
func formatOf(path string) (f format, compressed bool, err error) {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".zst") {
		compressed = true
		name = strings.TrimSuffix(name, ".zst")
	}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return formatYAML, compressed, nil
	case ".msgpack", ".mpk":
		return formatMsgpack, compressed, nil
	default:
		return 0, false, fmt.Errorf("catalog: unsupported manifest extension in %q", path)
	}
}

// Load reads a manifest. Relative tile and reference paths are resolved
// against the manifest's directory.
func Load(path string) (*Manifest, error) {
	f, compressed, err := formatOf(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open manifest: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if compressed {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("catalog: zstd reader: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	m, err := decode(r, f)
	if err != nil {
		return nil, fmt.Errorf("catalog: decode %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("catalog: invalid manifest %s: %w", path, err)
	}

	m.resolvePaths(filepath.Dir(path))
	return m, nil
}

func decode(r io.Reader, f format) (*Manifest, error) {
	var m Manifest
	switch f {
	case formatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&m); err != nil {
			return nil, err
		}
	default:
		if err := yaml.NewDecoder(r).Decode(&m); err != nil {
			return nil, err
		}
	}
	return &m, nil
}

func (m *Manifest) resolvePaths(dir string) {
	for i := range m.Tiles {
		if !filepath.IsAbs(m.Tiles[i].File) {
			m.Tiles[i].File = filepath.Join(dir, m.Tiles[i].File)
		}
	}
	if m.Reference != "" && !filepath.IsAbs(m.Reference) {
		m.Reference = filepath.Join(dir, m.Reference)
	}
}

// Save writes a manifest in the encoding its file name selects.
func Save(path string, m *Manifest) error {
	f, compressed, err := formatOf(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch f {
	case formatMsgpack:
		if err := msgpack.NewEncoder(&buf).Encode(m); err != nil {
			return fmt.Errorf("catalog: encode msgpack: %w", err)
		}
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("catalog: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("catalog: encode yaml: %w", err)
		}
	}

	data := buf.Bytes()
	if compressed {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("catalog: zstd writer: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		if err := enc.Close(); err != nil {
			return fmt.Errorf("catalog: zstd writer: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("catalog: write manifest: %w", err)
	}
	return nil
}
