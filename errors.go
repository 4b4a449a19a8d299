package tasm

import (
	"errors"
	"fmt"
)

// Error classes of an extraction job. Typed errors below match their class
// with errors.Is.
var (
	// ErrQuery means the index query failed or produced no tile result.
	ErrQuery = errors.New("tasm: query failed")
	// ErrEmptyResult means the query ran but matched no object.
	ErrEmptyResult = errors.New("tasm: query matched no objects")
	// ErrDecode means a segment could not be decoded up to its bound.
	ErrDecode = errors.New("tasm: segment decode failed")
	// ErrFrameIndex means a rectangle points outside its decoded segment.
	ErrFrameIndex = errors.New("tasm: frame index out of decoded range")
	// ErrWriter means the output could not be opened or written.
	ErrWriter = errors.New("tasm: output writer failed")
)

// QueryError reports a failing index query or scan.
type QueryError struct {
	Query Query
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("tasm: query %s failed: %v", e.Query, e.Err)
}

func (e *QueryError) Unwrap() []error { return []error{ErrQuery, e.Err} }

// EmptyResultError reports a query that matched nothing.
type EmptyResultError struct {
	Query Query
}

func (e *EmptyResultError) Error() string {
	return fmt.Sprintf("tasm: query %s matched no objects", e.Query)
}

func (e *EmptyResultError) Unwrap() error { return ErrEmptyResult }

// DecodeError reports a tile segment that could not be decoded to its bound.
type DecodeError struct {
	Path string
	Tile int
	// Want is the requested frame bound, Got the frames actually produced
	Want int
	Got  int
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tasm: decode %s (tile %d, %d frames): %v", e.Path, e.Tile, e.Want, e.Err)
	}
	return fmt.Sprintf("tasm: decode %s (tile %d): got %d of %d frames", e.Path, e.Tile, e.Got, e.Want)
}

func (e *DecodeError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDecode}
	}
	return []error{ErrDecode, e.Err}
}

// FrameIndexError reports a rectangle whose frame is not in its decoded
// segment, which points at an index/storage inconsistency.
type FrameIndexError struct {
	Path        string
	Rect        Rectangle
	FrameOffset int
	Decoded     int
}

func (e *FrameIndexError) Error() string {
	return fmt.Sprintf("tasm: rectangle %s maps to local frame %d of %s, decoded range is [0,%d)",
		e.Rect, e.Rect.ID-e.FrameOffset, e.Path, e.Decoded)
}

func (e *FrameIndexError) Unwrap() error { return ErrFrameIndex }

// WriterError reports an output that could not be opened, written or
// finalized.
type WriterError struct {
	Path string
	Op   string
	Err  error
}

func (e *WriterError) Error() string {
	return fmt.Sprintf("tasm: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriterError) Unwrap() []error { return []error{ErrWriter, e.Err} }
