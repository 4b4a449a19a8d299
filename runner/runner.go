// Package runner wires a configured extraction service: the manifest
// catalog, the decode and output backends, and the optional MQTT report
// notifier.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	tasm "github.com/apperception-db/TASM"
	"github.com/apperception-db/TASM/internal/catalog"
	"github.com/apperception-db/TASM/internal/config"
	"github.com/apperception-db/TASM/internal/cvwriter"
	"github.com/apperception-db/TASM/internal/ffdecode"
	"github.com/apperception-db/TASM/internal/gstdecode"
	"github.com/apperception-db/TASM/internal/mjpegwriter"
	"github.com/apperception-db/TASM/internal/notify"
)

// Runner executes extraction jobs against one catalog.
type Runner struct {
	cfg       *config.Config
	index     *catalog.Index
	extractor *tasm.Extractor
	notifier  *notify.Notifier // nil without a broker
	timeout   time.Duration

	mu   sync.Mutex
	jobs int
}

// Open loads the configuration file and builds a Runner.
func Open(configPath string) (*Runner, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return New(cfg)
}

// New builds a Runner from a validated configuration. The notifier is created
// but not connected; call Connect before the first job to publish reports.
func New(cfg *config.Config) (*Runner, error) {
	index, err := catalog.Open(cfg.Catalog.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	decoder, prober := buildDecoder(cfg)
	writers := buildWriters(cfg)

	return assemble(cfg, index, decoder, prober, writers)
}

func assemble(cfg *config.Config, index *catalog.Index, decoder tasm.Decoder, prober tasm.Prober, writers tasm.WriterFactory) (*Runner, error) {
	extractor, err := tasm.NewExtractor(tasm.ExtractorConfig{
		Index:           index,
		Decoder:         decoder,
		Writers:         writers,
		Prober:          prober,
		FPS:             cfg.Output.FPS,
		MinCanvasWidth:  cfg.Output.MinWidth,
		MinCanvasHeight: cfg.Output.MinHeight,
		DecodeWorkers:   cfg.Decode.Workers,
		Logger:          slog.Default().With("instance_id", cfg.InstanceID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	r := &Runner{
		cfg:       cfg,
		index:     index,
		extractor: extractor,
		timeout:   cfg.JobTimeout(),
	}
	if cfg.MQTT.Broker != "" {
		r.notifier = notify.NewNotifier(cfg)
	}

	slog.Info("runner: configured",
		"instance_id", cfg.InstanceID,
		"video", index.Manifest().Video,
		"decode_backend", cfg.Decode.Backend,
		"decode_workers", cfg.Decode.Workers,
		"output_backend", cfg.Output.Backend,
		"notify", r.notifier != nil,
	)
	return r, nil
}

func buildDecoder(cfg *config.Config) (tasm.Decoder, tasm.Prober) {
	switch cfg.Decode.Backend {
	case config.BackendGStreamer:
		return &gstdecode.Decoder{Timeout: cfg.DecodeTimeout()},
			gstdecode.Prober{Timeout: cfg.DecodeTimeout()}
	default:
		d := ffdecode.New()
		d.Timeout = cfg.DecodeTimeout()
		return d, ffdecode.Prober{}
	}
}

func buildWriters(cfg *config.Config) tasm.WriterFactory {
	switch cfg.Output.Backend {
	case config.BackendOpenCV:
		return cvwriter.Factory{FourCC: cfg.Output.FourCC}
	default:
		return mjpegwriter.Factory{Quality: cfg.Output.Quality}
	}
}

// Connect connects the report notifier, if one is configured.
func (r *Runner) Connect(ctx context.Context) error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Connect(ctx)
}

// Run executes one query under the configured job timeout. A query without
// a reference video uses the manifest's. The report is published whether
// the job succeeded or not; a publish failure is logged, not returned.
func (r *Runner) Run(ctx context.Context, q tasm.Query, output string) (*tasm.Report, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if q.ReferenceVideo == "" {
		q.ReferenceVideo = r.index.Manifest().Reference
	}

	r.mu.Lock()
	r.jobs++
	r.mu.Unlock()

	report, err := r.extractor.Extract(ctx, q, output)

	if r.notifier != nil && report != nil {
		if perr := r.notifier.Publish(report); perr != nil {
			slog.Warn("runner: report not published",
				"job_id", report.JobID,
				"error", perr,
			)
		}
	}
	return report, err
}

// Jobs returns the number of jobs started.
func (r *Runner) Jobs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs
}

// Close disconnects the notifier.
func (r *Runner) Close() error {
	if r.notifier == nil {
		return nil
	}
	return r.notifier.Disconnect()
}
