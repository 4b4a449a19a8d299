// Package tasm extracts the appearances of one object label from a
// spatio-temporally tiled video and assembles them into a single clip.
//
// Video is stored as independently encoded spatial tiles, split in time into
// segments, and annotated with per-frame bounding boxes. An Index resolves a
// query (video, metadata tag, label, frame range) into tile results; this
// package decodes only the frames each result needs, crops every matching
// rectangle from its tile and centers it on one common canvas, and writes
// the crops in scan order to an output video.
//
// # Quick Start
//
//	ex, err := tasm.NewExtractor(tasm.ExtractorConfig{
//	    Index:   idx,                  // e.g. catalog.Open("manifest.msgpack.zst")
//	    Decoder: ffdecode.New(),       // or gstdecode.New()
//	    Writers: mjpegwriter.Factory{Quality: 90},
//	    Prober:  ffdecode.Prober{},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := ex.Extract(ctx, tasm.Query{
//	    Video:              "traffic",
//	    MetadataIdentifier: "yolo",
//	    Label:              "car",
//	    FirstFrame:         0,
//	    LastFrame:          300,
//	}, "car.avi")
//
// # Job Lifecycle
//
//	INIT → SIZING → COMPOSITING → DONE
//	          ↓           ↓
//	        FAILED      FAILED
//
// SIZING drains the scan into memory: the writer is opened with a fixed
// frame size, so the canvas (largest matched width and height, rounded up to
// even) must be known before the first frame. This is the only place the
// job holds more than one segment's worth of data. COMPOSITING then handles
// the results one at a time:
//
//   - decode the segment up to the highest frame any rectangle names
//   - skip rectangles that do not intersect the tile (edges are closed)
//   - translate to tile-local pixels and clip to the decoded raster
//   - copy the crop into a black canvas, centered
//   - write it
//
// Any failure aborts the job: the writer is closed, the partial file is
// removed and the Report carries state FAILED.
//
// # Frame Format
//
// Frames are interleaved RGB24 without row padding (Width × Height × 3
// bytes). Conversion to a writer's channel order happens inside the writer
// adapters.
//
// # Concurrency
//
// Extract is synchronous by default. With DecodeWorkers > 1 segments are
// decoded ahead in goroutines and handed to the compositor in scan order;
// at most DecodeWorkers segments are held at once. The Assembler is not safe
// for concurrent use.
package tasm
