// Package collect drives collection runs: for each selected source it
// retrieves candidate URLs, filters them, appends the survivors to the
// destination log and finally ingests everything collected.
package collect

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/filter"
	"github.com/JakeFAU/climatedb/internal/ingest"
	"github.com/JakeFAU/climatedb/internal/metrics"
	"github.com/JakeFAU/climatedb/internal/search"
	"github.com/JakeFAU/climatedb/internal/telemetry"
)

// DefaultDestination is the log survivors are appended to.
const DefaultDestination = "urls.jsonl"

// Registry selects and resolves sources.
type Registry interface {
	Select(ids ...string) ([]archive.Source, error)
	ResolveByDomain(url string) (archive.Source, bool)
}

// Retriever produces candidate URLs for a source.
type Retriever interface {
	Retrieve(ctx context.Context, mode string, src archive.Source, n int) ([]archive.URLRecord, error)
}

// Filter drops candidates.
type Filter interface {
	Run(ctx context.Context, src archive.Source, candidates []archive.URLRecord, opts filter.Options) (filter.Report, error)
}

// Ingester archives URLs.
type Ingester interface {
	IngestAll(ctx context.Context, urls []string, replace bool) (ingest.Summary, error)
}

// Options is one run's configuration.
type Options struct {
	// Sources are source ids; empty or "all" selects every source.
	Sources []string
	// Count is the number of candidates requested per source.
	Count int
	// Mode is search.Live or the name of a log to replay.
	Mode    string
	Parse   bool
	Check   bool
	Replace bool
	// Destination is the log survivors are appended to.
	Destination string
}

// SourceResult summarizes one source's part of a run.
type SourceResult struct {
	SourceID  string
	Retrieved int
	Dropped   map[string]int
	Persisted int
	Err       error
}

// Result summarizes a run.
type Result struct {
	RunID     string
	Sources   []SourceResult
	Collected []archive.URLRecord
	Ingest    ingest.Summary
}

// Runner is the orchestrator.
type Runner struct {
	registry  Registry
	retriever Retriever
	filter    Filter
	ingester  Ingester
	archive   archive.Archive
	ids       archive.IDGenerator
	logger    *zap.Logger
}

// New builds a Runner.
func New(reg Registry, retriever Retriever, f Filter, ingester Ingester, arch archive.Archive, ids archive.IDGenerator, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		registry:  reg,
		retriever: retriever,
		filter:    f,
		ingester:  ingester,
		archive:   arch,
		ids:       ids,
		logger:    logger,
	}
}

// Run executes one collection run. Per-source failures are recorded in the
// result and the run moves on; usage errors, storage failures and
// cancellation end the run with an error.
func (r *Runner) Run(ctx context.Context, opts Options) (Result, error) {
	if opts.Count <= 0 {
		return Result{}, fmt.Errorf("%w: count must be positive, got %d", archive.ErrUsage, opts.Count)
	}
	if opts.Mode == "" {
		opts.Mode = search.Live
	}
	if opts.Destination == "" {
		opts.Destination = DefaultDestination
	}
	sources, err := r.registry.Select(opts.Sources...)
	if err != nil {
		return Result{}, err
	}
	runID, err := r.ids.NewID()
	if err != nil {
		return Result{}, err
	}
	logger := r.logger.With(zap.String("run_id", runID))
	ctx, span := telemetry.Tracer().Start(ctx, "collect")
	defer span.End()
	span.SetAttributes(
		attribute.String("run_id", runID),
		attribute.String("mode", opts.Mode),
		attribute.Int("count", opts.Count),
	)
	logger.Info("Starting collection run",
		zap.Int("sources", len(sources)),
		zap.Int("count", opts.Count),
		zap.String("mode", opts.Mode),
		zap.Bool("parse", opts.Parse),
		zap.Bool("check", opts.Check),
		zap.Bool("replace", opts.Replace),
		zap.String("destination", opts.Destination))

	dest, err := r.archive.Log(ctx, opts.Destination)
	if err != nil {
		metrics.ObserveRun("failed")
		return Result{RunID: runID}, err
	}

	result := Result{RunID: runID}
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			metrics.ObserveRun("canceled")
			return result, fmt.Errorf("run %s: %w", runID, err)
		}
		sr, kept, err := r.collectSource(ctx, src, dest, opts, logger.With(zap.String("source", src.ID())))
		result.Sources = append(result.Sources, sr)
		if err != nil {
			metrics.ObserveRun("failed")
			return result, err
		}
		result.Collected = append(result.Collected, kept...)
	}

	if opts.Parse && len(result.Collected) > 0 {
		summary, err := r.ingester.IngestAll(ctx, archive.URLs(result.Collected), opts.Replace)
		result.Ingest = summary
		if err != nil {
			metrics.ObserveRun("failed")
			return result, err
		}
	}
	metrics.ObserveRun("success")
	logger.Info("Collection run finished",
		zap.Int("collected", len(result.Collected)),
		zap.Int("ingested", result.Ingest[ingest.Archived]))
	return result, nil
}

// collectSource returns an error only when the whole run must stop.
func (r *Runner) collectSource(ctx context.Context, src archive.Source, dest archive.URLLog, opts Options, logger *zap.Logger) (SourceResult, []archive.URLRecord, error) {
	sr := SourceResult{SourceID: src.ID()}
	live := opts.Mode == search.Live

	candidates, err := r.retriever.Retrieve(ctx, opts.Mode, src, opts.Count)
	if err != nil {
		if fatal(ctx, err) {
			return sr, nil, err
		}
		logger.Warn("Retrieval failed, skipping source", zap.Error(err))
		sr.Err = err
		return sr, nil, nil
	}
	sr.Retrieved = len(candidates)
	metrics.ObserveCollected(src.ID(), modeLabel(live), len(candidates))

	report, err := r.filter.Run(ctx, src, candidates, filter.Options{
		Replace: opts.Replace,
		Check:   opts.Check,
		Live:    live,
	})
	if err != nil {
		if fatal(ctx, err) {
			return sr, nil, err
		}
		logger.Warn("Filtering failed, skipping source", zap.Error(err))
		sr.Err = err
		return sr, nil, nil
	}
	sr.Dropped = map[string]int{
		filter.StageExistence: report.DroppedBy(filter.StageExistence),
		filter.StageValidity:  report.DroppedBy(filter.StageValidity),
	}
	if len(report.Kept) == 0 {
		logger.Info("No URLs survived filtering", zap.Int("retrieved", sr.Retrieved))
		return sr, nil, nil
	}
	if err := dest.Add(ctx, report.Kept); err != nil {
		return sr, nil, fmt.Errorf("append to %s: %w", dest.Name(), err)
	}
	sr.Persisted = len(report.Kept)
	logger.Info("Collected URLs",
		zap.Int("retrieved", sr.Retrieved),
		zap.Int("persisted", sr.Persisted))
	return sr, report.Kept, nil
}

// Reparse ingests every URL of the named log that belongs to one of the
// selected sources, in log order with repeats removed.
func (r *Runner) Reparse(ctx context.Context, logName string, sourceIDs []string, replace bool) (ingest.Summary, error) {
	sources, err := r.registry.Select(sourceIDs...)
	if err != nil {
		return nil, err
	}
	selected := make(map[string]struct{}, len(sources))
	for _, src := range sources {
		selected[src.ID()] = struct{}{}
	}
	log, err := r.archive.Log(ctx, logName)
	if err != nil {
		return nil, err
	}
	records, err := log.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", logName, err)
	}

	seen := make(map[string]struct{}, len(records))
	var urls []string
	for _, rec := range records {
		if _, dup := seen[rec.URL]; dup {
			continue
		}
		seen[rec.URL] = struct{}{}
		src, ok := r.registry.ResolveByDomain(rec.URL)
		if !ok {
			r.logger.Warn("No source matches URL, skipping", zap.String("url", rec.URL))
			continue
		}
		if _, want := selected[src.ID()]; want {
			urls = append(urls, rec.URL)
		}
	}
	r.logger.Info("Reparsing log", zap.String("log", logName), zap.Int("urls", len(urls)))
	return r.ingester.IngestAll(ctx, urls, replace)
}

func fatal(ctx context.Context, err error) bool {
	return errors.Is(err, archive.ErrStorage) || ctx.Err() != nil
}

func modeLabel(live bool) string {
	if live {
		return "live"
	}
	return "replay"
}
