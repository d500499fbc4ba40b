// Package filter drops candidate URLs that are already archived or that the
// source does not recognise as articles. Stages run in a fixed order and
// preserve the order of the records they keep.
package filter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/metrics"
)

// Stage names used in reports, logs and metrics.
const (
	StageExistence = "existence"
	StageValidity  = "validity"
)

// Options toggles the stages for one source.
type Options struct {
	// Replace disables the existence stage.
	Replace bool
	// Check enables the validity stage.
	Check bool
	// Live forces the validity stage on regardless of Check.
	Live bool
}

// Drop records one removed URL.
type Drop struct {
	URL    string
	Stage  string
	Reason string
}

// Report is the outcome of one pipeline run.
type Report struct {
	Kept    []archive.URLRecord
	Dropped []Drop
}

// DroppedBy counts drops attributed to stage.
func (r Report) DroppedBy(stage string) int {
	n := 0
	for _, d := range r.Dropped {
		if d.Stage == stage {
			n++
		}
	}
	return n
}

// Pipeline applies the existence and validity stages.
type Pipeline struct {
	archive archive.Archive
	logger  *zap.Logger
}

// New builds a Pipeline over arch.
func New(arch archive.Archive, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{archive: arch, logger: logger}
}

// Run filters candidates for src. Only storage failures and cancellation are
// returned as errors; everything else is a per-URL drop.
func (p *Pipeline) Run(ctx context.Context, src archive.Source, candidates []archive.URLRecord, opts Options) (Report, error) {
	report := Report{Kept: candidates}
	var err error
	if !opts.Replace {
		report, err = p.existence(ctx, src, report)
		if err != nil {
			return Report{}, err
		}
	}
	if opts.Check || opts.Live {
		report, err = p.validity(ctx, src, report)
		if err != nil {
			return Report{}, err
		}
	}
	metrics.ObserveDropped(src.ID(), StageExistence, report.DroppedBy(StageExistence))
	metrics.ObserveDropped(src.ID(), StageValidity, report.DroppedBy(StageValidity))
	return report, nil
}

// existence drops URLs whose article id is already in the final store.
func (p *Pipeline) existence(ctx context.Context, src archive.Source, in Report) (Report, error) {
	store, err := p.archive.Store(ctx, archive.StoreFinal, src.ID())
	if err != nil {
		return Report{}, fmt.Errorf("open final store for %s: %w", src.ID(), err)
	}
	out := Report{Dropped: in.Dropped}
	for _, rec := range in.Kept {
		id, err := src.ArticleID(rec.URL)
		if err != nil {
			out.Dropped = append(out.Dropped, p.drop(src, rec.URL, StageExistence, err.Error()))
			continue
		}
		exists, err := store.Exists(ctx, id)
		if errors.Is(err, archive.ErrUsage) {
			out.Dropped = append(out.Dropped, p.drop(src, rec.URL, StageExistence,
				fmt.Errorf("%w: %w", archive.ErrAdapter, err).Error()))
			continue
		}
		if err != nil {
			return Report{}, fmt.Errorf("check %s/%s: %w", src.ID(), id, err)
		}
		if exists {
			out.Dropped = append(out.Dropped, p.drop(src, rec.URL, StageExistence, "already archived as "+id))
			continue
		}
		out.Kept = append(out.Kept, rec)
	}
	return out, nil
}

// validity drops URLs the source's checker rejects or fails on.
func (p *Pipeline) validity(ctx context.Context, src archive.Source, in Report) (Report, error) {
	out := Report{Dropped: in.Dropped}
	for _, rec := range in.Kept {
		if err := ctx.Err(); err != nil {
			return Report{}, fmt.Errorf("validity filter: %w", err)
		}
		ok, err := src.Check(ctx, rec.URL)
		switch {
		case err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
			return Report{}, fmt.Errorf("check %s: %w", rec.URL, err)
		case err != nil:
			out.Dropped = append(out.Dropped, p.drop(src, rec.URL, StageValidity,
				fmt.Errorf("%w: %w", archive.ErrAdapter, err).Error()))
		case !ok:
			out.Dropped = append(out.Dropped, p.drop(src, rec.URL, StageValidity, "rejected by checker"))
		default:
			out.Kept = append(out.Kept, rec)
		}
	}
	return out, nil
}

func (p *Pipeline) drop(src archive.Source, url, stage, reason string) Drop {
	p.logger.Info("Dropped URL",
		zap.String("url", url),
		zap.String("source", src.ID()),
		zap.String("stage", stage),
		zap.String("reason", reason))
	return Drop{URL: url, Stage: stage, Reason: reason}
}
