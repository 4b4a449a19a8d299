package tasm

import (
	"fmt"
	"time"
)

// Rectangle is an object bounding box (or a tile placement) in global video
// coordinates. ID is the absolute frame number the box belongs to.
type Rectangle struct {
	ID     int
	X      int
	Y      int
	Width  int
	Height int
}

// String returns a compact representation, e.g. "#10(5,5 20x30)".
func (r Rectangle) String() string {
	return fmt.Sprintf("#%d(%d,%d %dx%d)", r.ID, r.X, r.Y, r.Width, r.Height)
}

// TileInfo describes one stored tile segment and the frames a query needs
// from it.
type TileInfo struct {
	// Filename is the path of the tile's encoded segment
	Filename string
	// TileNumber is the tile's position in its layout
	TileNumber int
	// Width and Height are the nominal tile dimensions
	Width  int
	Height int
	// FrameOffset is the absolute frame number of the segment's local frame 0
	FrameOffset int
	// FramesToRead lists the absolute frame numbers needed from this tile
	FramesToRead []int
	// TileRect is the tile's placement in global coordinates
	TileRect Rectangle
}

// TileResult pairs a tile with the rectangles matched for it. A result with
// no rectangles is skipped without decoding.
type TileResult struct {
	Tile       TileInfo
	Rectangles []Rectangle
}

// Empty reports whether no rectangle was matched for the tile.
func (r TileResult) Empty() bool {
	return len(r.Rectangles) == 0
}

// Frame is a decoded raster in tile-local coordinates.
//
// Data holds interleaved RGB24 samples, row-major, without row padding:
// the sample for channel c of pixel (x, y) is Data[(y*Width+x)*3+c].
type Frame struct {
	Width  int
	Height int
	Data   []byte
}

// BytesPerPixel is the sample count of one RGB24 pixel.
const BytesPerPixel = 3

// NewFrame allocates a zero-filled (black) frame.
func NewFrame(width, height int) Frame {
	return Frame{
		Width:  width,
		Height: height,
		Data:   make([]byte, width*height*BytesPerPixel),
	}
}

// Stride returns the number of bytes in one row.
func (f Frame) Stride() int {
	return f.Width * BytesPerPixel
}

// PixOffset returns the index of the first sample of pixel (x, y).
func (f Frame) PixOffset(x, y int) int {
	return y*f.Stride() + x*BytesPerPixel
}

// Valid reports whether Data has exactly Width*Height*3 samples.
func (f Frame) Valid() bool {
	return f.Width > 0 && f.Height > 0 && len(f.Data) == f.Width*f.Height*BytesPerPixel
}

// Canvas is the fixed output frame size every ROI is centered into.
type Canvas struct {
	Width  int
	Height int
}

// String returns "WxH".
func (c Canvas) String() string {
	return fmt.Sprintf("%dx%d", c.Width, c.Height)
}

// StreamInfo is what a Prober reports about a video file.
type StreamInfo struct {
	Width     int
	Height    int
	FrameRate float64
}

// Query selects the appearances of one label in a stored video.
type Query struct {
	Video              string
	MetadataIdentifier string
	Label              string
	// FirstFrame is inclusive, LastFrame exclusive
	FirstFrame int
	LastFrame  int
	// ReferenceVideo is the optional un-tiled source, decoded when a tile
	// segment is missing and probed for the frame rate when none is set.
	ReferenceVideo string
}

// String returns "video/metadata:label[first,last)".
func (q Query) String() string {
	return fmt.Sprintf("%s/%s:%s[%d,%d)", q.Video, q.MetadataIdentifier, q.Label, q.FirstFrame, q.LastFrame)
}

// Report summarizes one extraction job.
type Report struct {
	JobID  string `msgpack:"job_id"`
	Query  string `msgpack:"query"`
	Output string `msgpack:"output"`
	State  string `msgpack:"state"`
	Error  string `msgpack:"error,omitempty"`

	CanvasWidth  int     `msgpack:"canvas_width"`
	CanvasHeight int     `msgpack:"canvas_height"`
	FPS          float64 `msgpack:"fps"`

	// TileResults counts present results, EmptyResults the absent or
	// rectangle-less ones.
	TileResults  int `msgpack:"tile_results"`
	EmptyResults int `msgpack:"empty_results"`
	Rectangles   int `msgpack:"rectangles"`

	// Skipped counts rectangles dropped because they miss their tile.
	Skipped         int `msgpack:"skipped"`
	SegmentsDecoded int `msgpack:"segments_decoded"`
	FramesDecoded   int `msgpack:"frames_decoded"`
	FramesWritten   int `msgpack:"frames_written"`

	StartedAt time.Time     `msgpack:"started_at"`
	Duration  time.Duration `msgpack:"duration"`
}
