package tasm

import "context"

// Index resolves a query into tile/rectangle results. It is provided by the
// spatio-temporal catalog.
type Index interface {
	Select(ctx context.Context, q Query) (Selection, error)
}

// Selection is the outcome of one query.
type Selection interface {
	// Scan returns a single-pass cursor over the results.
	Scan() Scan
	// MaxObjectWidth and MaxObjectHeight are the largest matched extents.
	MaxObjectWidth() int
	MaxObjectHeight() int
}

// Scan is a lazy, single-pass cursor over tile results in index order.
type Scan interface {
	IsComplete() bool
	// Next returns the next result. ok is false for an empty match, which
	// is not the end of the scan; IsComplete tells the end.
	Next(ctx context.Context) (res TileResult, ok bool, err error)
}

// Decoder decodes the first frames of a video segment.
type Decoder interface {
	// Decode returns frames 0..frames-1 of the segment at path and must not
	// decode further. A short segment returns fewer frames.
	Decode(ctx context.Context, path string, frames int) ([]Frame, error)
}

// Prober reads stream properties of a video file.
type Prober interface {
	Probe(ctx context.Context, path string) (StreamInfo, error)
}

// WriterFactory opens output videos with fixed geometry and rate.
type WriterFactory interface {
	Open(path string, fps float64, width, height int) (FrameWriter, error)
}

// FrameWriter appends RGB24 frames to an output video.
type FrameWriter interface {
	Write(f Frame) error
	Close() error
}
