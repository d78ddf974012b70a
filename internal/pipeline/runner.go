// Package pipeline runs one configured extraction end to end: descriptor
// lookup, extraction, canonicalization, output files and run metadata.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ajitpratap0/bioetl/pkg/clients"
	"github.com/ajitpratap0/bioetl/pkg/compression"
	"github.com/ajitpratap0/bioetl/pkg/config"
	"github.com/ajitpratap0/bioetl/pkg/determinism"
	"github.com/ajitpratap0/bioetl/pkg/errors"
	"github.com/ajitpratap0/bioetl/pkg/extraction"
	"github.com/ajitpratap0/bioetl/pkg/logger"
	"github.com/ajitpratap0/bioetl/pkg/observability"
	"github.com/ajitpratap0/bioetl/pkg/output"
	"github.com/ajitpratap0/bioetl/pkg/release"
)

// Report summarizes a completed run.
type Report struct {
	RunID        string
	Entity       string
	Release      string
	Mode         string
	Rows         int
	Artifacts    []output.Artifact
	MetadataPath string
	Stats        extraction.BatchExtractionStats
	Duration     time.Duration
}

// Runner executes a PipelineConfig.
type Runner struct {
	cfg        *config.PipelineConfig
	lookup     func(string) (*extraction.Descriptor, error)
	logger     *zap.Logger
	now        func() time.Time
	newRunID   func() string
	client     extraction.Client
	handshaker release.Handshaker
}

// Option configures a Runner.
type Option func(*Runner)

// WithRegistry resolves entities from reg instead of the global registry.
func WithRegistry(reg *extraction.Registry) Option {
	return func(r *Runner) { r.lookup = reg.Get }
}

// WithLogger sets the base logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithClock replaces time.Now, for reproducible metadata in tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithRunID fixes the run identifier.
func WithRunID(id string) Option {
	return func(r *Runner) { r.newRunID = func() string { return id } }
}

// WithClient uses client and hs instead of building an APIClient from the
// HTTP section.
func WithClient(client extraction.Client, hs release.Handshaker) Option {
	return func(r *Runner) {
		r.client = client
		r.handshaker = hs
	}
}

// NewRunner validates cfg and returns a runner for it.
func NewRunner(cfg *config.PipelineConfig, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "pipeline config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:      cfg,
		lookup:   extraction.Lookup,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	return r, nil
}

// Run performs the extraction and writes its artifacts. Config errors and
// fatal extraction errors are returned; absorbed unit failures are visible
// in Report.Stats.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	cfg := r.cfg
	d, err := r.lookup(cfg.Entity)
	if err != nil {
		return nil, err
	}

	runID := r.newRunID()
	ctx = context.WithValue(ctx, logger.RunIDKey, runID)
	ctx = context.WithValue(ctx, logger.EntityKey, d.Name)
	ctx = context.WithValue(ctx, logger.PipelineKey, cfg.Name)
	log := logger.FromContext(ctx, r.logger)

	ctx, span := observability.NewSpan(ctx, "pipeline.run")
	span.SetAttribute("run_id", runID)
	span.SetAttribute("entity", d.Name)
	report, err := r.run(ctx, d, runID, log)
	span.Finish(err)
	return report, err
}

func (r *Runner) run(ctx context.Context, d *extraction.Descriptor, runID string, log *zap.Logger) (*Report, error) {
	cfg := r.cfg
	started := r.now().UTC()
	log.Info("starting pipeline",
		zap.Bool("dry_run", cfg.Runtime.DryRun),
		zap.Int("limit", cfg.Runtime.Limit),
		zap.String("format", cfg.Output.Format))

	ids, err := r.identifiers(d)
	if err != nil {
		return nil, err
	}

	client, handshake := r.client, r.handshaker
	if client == nil {
		api, err := clients.NewAPIClient(cfg.Source.BaseURL, cfg.HTTP, log)
		if err != nil {
			return nil, err
		}
		defer api.Close()
		client, handshake = api, api
	}
	if handshake == nil {
		handshake = release.NoHandshake{}
	}
	tracker := release.NewTracker(handshake, log)

	engine, err := extraction.NewEngine(d, extraction.Env{
		Client:  client,
		Tracker: tracker,
		Runtime: cfg.Runtime,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	var res *extraction.Result
	if len(ids) > 0 {
		res, err = engine.ExtractByIDs(ctx, cfg.Source, ids)
	} else {
		res, err = engine.ExtractAll(ctx, cfg.Source)
	}
	if err != nil {
		return nil, err
	}

	spec := determinism.SpecFromConfig(cfg.Determinism, d.SortBy, d.IDColumn)
	table, err := determinism.Canonicalize(res.Table, spec)
	if err != nil {
		return nil, err
	}

	report := &Report{
		RunID:   runID,
		Entity:  d.Name,
		Release: res.Release,
		Mode:    res.Stats.Mode,
		Rows:    table.Len(),
		Stats:   res.Stats,
	}

	art, err := output.WriteTable(table, output.Options{
		Dir:         cfg.Output.Dir,
		Name:        d.Name,
		Format:      output.Format(cfg.Output.Format),
		Compression: r.compression(),
		Entity:      d.Name,
	})
	if err != nil {
		return nil, err
	}
	report.Artifacts = append(report.Artifacts, *art)

	finished := r.now().UTC()
	report.Duration = finished.Sub(started)

	if cfg.Output.WriteMetadata {
		meta := &output.Metadata{
			RunID:                 runID,
			Pipeline:              cfg.Name,
			Entity:                d.Name,
			Source:                d.Source,
			Release:               res.Release,
			Mode:                  res.Stats.Mode,
			DryRun:                cfg.Runtime.DryRun,
			Rows:                  table.Len(),
			Columns:               table.Columns(),
			HashAlgorithm:         spec.Algorithm,
			RowHashColumn:         spec.RowHashColumn,
			BusinessKeyHashColumn: spec.BusinessKeyHashColumn,
			SortBy:                spec.SortBy,
			Artifacts:             report.Artifacts,
			Stats:                 res.Stats,
			StartedAt:             started,
			FinishedAt:            finished,
		}
		if report.MetadataPath, err = output.WriteMetadata(cfg.Output.Dir, meta); err != nil {
			return nil, err
		}
	}

	throughput := 0.0
	if secs := report.Duration.Seconds(); secs > 0 {
		throughput = float64(report.Rows) / secs
	}
	log.Info("pipeline completed",
		zap.String("release", report.Release),
		zap.String("mode", report.Mode),
		zap.Int("rows", report.Rows),
		zap.Int("failures", res.Stats.Failures),
		zap.String("path", art.Path),
		zap.String("sha256", art.SHA256),
		zap.Duration("duration", report.Duration),
		zap.Float64("throughput_rps", throughput))
	return report, nil
}

func (r *Runner) compression() compression.Algorithm {
	return compression.Algorithm(r.cfg.Output.CompressionAlgorithm())
}

// identifiers merges configured ids with the ids file, sorted and
// de-duplicated. An empty result selects a full paginated extraction.
func (r *Runner) identifiers(d *extraction.Descriptor) ([]string, error) {
	ids := append([]string(nil), r.cfg.Source.IDs...)
	if path := r.cfg.Source.IDsFile; path != "" {
		fromFile, err := ReadIDsFile(path, d.IDColumn)
		if err != nil {
			return nil, err
		}
		ids = append(ids, fromFile...)
	}
	return extraction.NormalizeIDs(ids), nil
}
