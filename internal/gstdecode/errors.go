package gstdecode

import (
	"fmt"
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory represents the classification of GStreamer errors
type ErrorCategory int

const (
	// ErrCategoryIO indicates the file could not be opened or read
	ErrCategoryIO ErrorCategory = iota
	// ErrCategoryCodec indicates demux/decode failures (corrupt data, missing plugin)
	ErrCategoryCodec
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryIO:
		return "io"
	case ErrCategoryCodec:
		return "codec"
	default:
		return "unknown"
	}
}

// PipelineError is a GStreamer bus error with its classification.
type PipelineError struct {
	Category ErrorCategory
	Message  string
	Debug    string
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error [%s]: %s", e.Category, e.Message)
}

// ClassifyGStreamerError categorizes a bus error.
//
// go-gst's GError does not expose Domain(), so classification is based on
// message heuristics.
func ClassifyGStreamerError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return classify(gerr.Error(), gerr.DebugString())
}

func classify(errMsg, debugStr string) ErrorCategory {
	combined := strings.ToLower(errMsg + " " + debugStr)

	// codec first: "could not decode" must not land in io
	if containsAny(combined, codecKeywords) {
		return ErrCategoryCodec
	}
	if containsAny(combined, ioKeywords) {
		return ErrCategoryIO
	}
	return ErrCategoryUnknown
}

var codecKeywords = []string{
	"decode",
	"codec",
	"demux",
	"typefind",
	"caps",
	"negotiat",
	"not-negotiated",
	"missing plugin",
	"no suitable plugins",
	"stream type",
	"corrupt",
	"invalid data",
}

var ioKeywords = []string{
	"no such file",
	"not found",
	"could not open",
	"resource",
	"permission",
	"read error",
	"filesrc",
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
