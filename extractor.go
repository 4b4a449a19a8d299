package tasm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFPS is the output rate when none is configured or discovered.
const DefaultFPS = 30.0

// State is the lifecycle of one extraction job.
type State int

const (
	StateInit State = iota
	StateSizing
	StateCompositing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSizing:
		return "SIZING"
	case StateCompositing:
		return "COMPOSITING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ExtractorConfig wires the collaborators of an Extractor.
type ExtractorConfig struct {
	Index   Index
	Decoder Decoder
	Writers WriterFactory

	// Prober is optional. It is needed for the reference video fallback and
	// for frame rate discovery.
	Prober Prober

	// FPS is the output rate. Zero means the reference video's rate when a
	// query names one, DefaultFPS otherwise.
	FPS float64

	// MinCanvasWidth and MinCanvasHeight raise the canvas for encoders with
	// a minimum frame size.
	MinCanvasWidth  int
	MinCanvasHeight int

	// DecodeWorkers > 1 decodes that many segments ahead of the compositor.
	DecodeWorkers int

	Logger *slog.Logger
}

// Extractor turns query results into one output clip of ROI crops.
type Extractor struct {
	cfg    ExtractorConfig
	logger *slog.Logger
}

// NewExtractor validates cfg and creates an Extractor.
func NewExtractor(cfg ExtractorConfig) (*Extractor, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("tasm: index is required")
	}
	if cfg.Decoder == nil {
		return nil, fmt.Errorf("tasm: decoder is required")
	}
	if cfg.Writers == nil {
		return nil, fmt.Errorf("tasm: writer factory is required")
	}
	if cfg.FPS < 0 {
		return nil, fmt.Errorf("tasm: fps must be >= 0, got %.3f", cfg.FPS)
	}
	if cfg.MinCanvasWidth < 0 || cfg.MinCanvasHeight < 0 {
		return nil, fmt.Errorf("tasm: minimum canvas must be >= 0, got %dx%d", cfg.MinCanvasWidth, cfg.MinCanvasHeight)
	}
	if cfg.DecodeWorkers < 1 {
		cfg.DecodeWorkers = 1
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{cfg: cfg, logger: logger}, nil
}

// job is the state of one Extract call.
type job struct {
	*Extractor
	query  Query
	output string
	logger *slog.Logger
	state  State
	report *Report
}

// Extract runs the query and writes every intersecting rectangle, cropped
// and centered on a common canvas, to output in scan order. The report is
// returned on failure too; a failed job leaves no output file behind.
func (e *Extractor) Extract(ctx context.Context, q Query, output string) (*Report, error) {
	id := uuid.NewString()
	j := &job{
		Extractor: e,
		query:     q,
		output:    output,
		logger:    e.logger.With("job_id", id),
		state:     StateInit,
		report: &Report{
			JobID:     id,
			Query:     q.String(),
			Output:    output,
			StartedAt: time.Now(),
		},
	}

	j.logger.Info("tasm: job started",
		"query", q.String(),
		"output", output,
		"decode_workers", e.cfg.DecodeWorkers,
	)

	err := j.run(ctx)
	j.report.Duration = time.Since(j.report.StartedAt)
	if err != nil {
		j.transition(StateFailed)
		j.report.State = j.state.String()
		j.report.Error = err.Error()
		j.logger.Error("tasm: job failed",
			"error", err,
			"frames_written", j.report.FramesWritten,
			"duration", j.report.Duration,
		)
		return j.report, err
	}

	j.report.State = j.state.String()
	j.logger.Info("tasm: job done",
		"canvas", fmt.Sprintf("%dx%d", j.report.CanvasWidth, j.report.CanvasHeight),
		"frames_written", j.report.FramesWritten,
		"skipped", j.report.Skipped,
		"segments_decoded", j.report.SegmentsDecoded,
		"duration", j.report.Duration,
	)
	return j.report, nil
}

func (j *job) transition(to State) {
	j.logger.Debug("tasm: state change", "from", j.state.String(), "to", to.String())
	j.state = to
}

func (j *job) run(ctx context.Context) error {
	if j.output == "" {
		return &WriterError{Op: "open", Err: errors.New("empty output path")}
	}

	j.transition(StateSizing)
	results, canvas, err := j.size(ctx)
	if err != nil {
		return err
	}
	fps := j.frameRate(ctx)
	j.report.FPS = fps

	asm, err := OpenAssembler(j.cfg.Writers, j.output, fps, canvas)
	if err != nil {
		return err
	}

	j.transition(StateCompositing)
	if err := j.composite(ctx, asm, canvas, results); err != nil {
		asm.Abort()
		return err
	}
	if err := asm.Close(); err != nil {
		asm.Abort()
		return err
	}

	j.transition(StateDone)
	return nil
}

// size materializes the whole scan, because the writer commits to its
// frame size before the first frame.
func (j *job) size(ctx context.Context) ([]TileResult, Canvas, error) {
	sel, err := j.cfg.Index.Select(ctx, j.query)
	if err != nil {
		return nil, Canvas{}, &QueryError{Query: j.query, Err: err}
	}

	var (
		results []TileResult
		rects   []Rectangle
		yielded int
	)
	scan := sel.Scan()
	for !scan.IsComplete() {
		if err := ctx.Err(); err != nil {
			return nil, Canvas{}, err
		}
		res, ok, err := scan.Next(ctx)
		if err != nil {
			return nil, Canvas{}, &QueryError{Query: j.query, Err: err}
		}
		yielded++
		if !ok || res.Empty() {
			j.report.EmptyResults++
			continue
		}
		results = append(results, res)
		rects = append(rects, res.Rectangles...)
	}

	j.report.TileResults = len(results)
	j.report.Rectangles = len(rects)

	if yielded == 0 {
		return nil, Canvas{}, &QueryError{Query: j.query, Err: errors.New("scan yielded no tile results")}
	}

	canvas, err := ComputeCanvas(rects)
	if err != nil {
		return nil, Canvas{}, &EmptyResultError{Query: j.query}
	}
	j.checkExtents(sel, rects)
	canvas = canvas.AtLeast(j.cfg.MinCanvasWidth, j.cfg.MinCanvasHeight)

	j.report.CanvasWidth = canvas.Width
	j.report.CanvasHeight = canvas.Height

	j.logger.Info("tasm: canvas sized",
		"canvas", canvas.String(),
		"tile_results", len(results),
		"empty_results", j.report.EmptyResults,
		"rectangles", len(rects),
	)
	return results, canvas, nil
}

// checkExtents compares the index's reported maxima with the rectangles it
// actually returned.
func (j *job) checkExtents(sel Selection, rects []Rectangle) {
	var w, h int
	for _, r := range rects {
		w = max(w, r.Width)
		h = max(h, r.Height)
	}
	if sel.MaxObjectWidth() != w || sel.MaxObjectHeight() != h {
		j.logger.Warn("tasm: index extents disagree with matched rectangles",
			"index_max", fmt.Sprintf("%dx%d", sel.MaxObjectWidth(), sel.MaxObjectHeight()),
			"matched_max", fmt.Sprintf("%dx%d", w, h),
		)
	}
}

func (j *job) frameRate(ctx context.Context) float64 {
	if j.cfg.FPS > 0 {
		return j.cfg.FPS
	}
	if j.query.ReferenceVideo == "" || j.cfg.Prober == nil {
		return DefaultFPS
	}

	info, err := j.cfg.Prober.Probe(ctx, j.query.ReferenceVideo)
	if err != nil || info.FrameRate <= 0 {
		j.logger.Warn("tasm: frame rate discovery failed, using default",
			"reference", j.query.ReferenceVideo,
			"default_fps", DefaultFPS,
			"error", err,
		)
		return DefaultFPS
	}

	j.logger.Debug("tasm: frame rate discovered", "reference", j.query.ReferenceVideo, "fps", info.FrameRate)
	return info.FrameRate
}

func (j *job) composite(ctx context.Context, asm *Assembler, canvas Canvas, results []TileResult) error {
	comp := NewCompositor(j.cfg.Decoder, j.cfg.Prober, canvas, j.query.ReferenceVideo, j.logger)

	next := func(i int) (*Segment, error) { return comp.DecodeTile(ctx, results[i]) }
	done := func() {}
	if j.cfg.DecodeWorkers > 1 && len(results) > 1 {
		p := startPrefetch(ctx, comp, results, j.cfg.DecodeWorkers)
		defer p.stop()
		next = func(i int) (*Segment, error) { return p.get(ctx, i) }
		done = p.release
	}

	emit := func(f Frame) error {
		if err := asm.Write(f); err != nil {
			return err
		}
		j.report.FramesWritten++
		return nil
	}

	for i := range results {
		seg, err := next(i)
		if err != nil {
			return err
		}
		j.report.SegmentsDecoded++
		j.report.FramesDecoded += len(seg.Frames)

		stats, err := comp.CompositeTile(ctx, seg, emit)
		j.report.Skipped += stats.Skipped
		if err != nil {
			return err
		}
		if stats.Skipped > 0 {
			j.logger.Debug("tasm: rectangles outside tile skipped",
				"tile", seg.Result.Tile.TileNumber,
				"skipped", stats.Skipped,
			)
		}

		// Drop the segment before the next one is requested.
		seg.Frames = nil
		done()
	}
	return nil
}

type decoded struct {
	seg *Segment
	err error
}

// prefetcher decodes segments ahead of the compositor. Each result has its
// own slot so segments are handed out in scan order whatever order the
// decodes finish in; sem bounds the segments held at once.
type prefetcher struct {
	slots  []chan decoded
	sem    chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func startPrefetch(ctx context.Context, comp *Compositor, results []TileResult, workers int) *prefetcher {
	ctx, cancel := context.WithCancel(ctx)
	p := &prefetcher{
		slots:  make([]chan decoded, len(results)),
		sem:    make(chan struct{}, workers),
		cancel: cancel,
	}
	for i := range p.slots {
		p.slots[i] = make(chan decoded, 1)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for i, res := range results {
			select {
			case p.sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			p.wg.Add(1)
			go func(i int, res TileResult) {
				defer p.wg.Done()
				seg, err := comp.DecodeTile(ctx, res)
				p.slots[i] <- decoded{seg: seg, err: err}
			}(i, res)
		}
	}()
	return p
}

func (p *prefetcher) get(ctx context.Context, i int) (*Segment, error) {
	select {
	case d := <-p.slots[i]:
		return d.seg, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release frees the slot of a consumed segment.
func (p *prefetcher) release() {
	<-p.sem
}

func (p *prefetcher) stop() {
	p.cancel()
	p.wg.Wait()
}
