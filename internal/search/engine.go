// Package search produces candidate article URLs for a source, either from a
// live rate-limited upstream search or by replaying a prior ordered log.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/metrics"
)

// Live is the retrieval mode name that selects the upstream search.
// Any other mode name is treated as an ordered log to replay.
const Live = "google"

// Defaults for Config.
const (
	DefaultTopic       = "climate change"
	DefaultMaxAttempts = 6
	DefaultBackoffUnit = time.Second
)

// Config tunes live retrieval.
type Config struct {
	Topic       string
	MaxAttempts int
	// BackoffUnit scales the backoff curve; one unit is a second in production.
	BackoffUnit time.Duration
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Engine is the retrieval engine.
type Engine struct {
	searcher archive.Searcher
	archive  archive.Archive
	clock    archive.Clock
	cfg      Config
	sleep    Sleeper
	jitter   func() float64
	logger   *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithSleeper replaces the context-aware timer sleep.
func WithSleeper(s Sleeper) Option {
	return func(e *Engine) { e.sleep = s }
}

// WithJitter replaces the uniform [0,1) jitter source.
func WithJitter(f func() float64) Option {
	return func(e *Engine) { e.jitter = f }
}

// New builds an Engine. searcher may be nil when only replay is used.
func New(searcher archive.Searcher, arch archive.Archive, clock archive.Clock, cfg Config, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BackoffUnit <= 0 {
		cfg.BackoffUnit = DefaultBackoffUnit
	}
	e := &Engine{
		searcher: searcher,
		archive:  arch,
		clock:    clock,
		cfg:      cfg,
		sleep:    sleepContext,
		jitter:   rand.Float64,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve dispatches on mode: Live queries upstream, anything else replays
// the log of that name.
func (e *Engine) Retrieve(ctx context.Context, mode string, src archive.Source, n int) ([]archive.URLRecord, error) {
	if mode == "" || mode == Live {
		return e.Live(ctx, src, n)
	}
	return e.Replay(ctx, mode, src, n)
}

// Query builds the upstream query for src.
func (e *Engine) Query(src archive.Source) string {
	return fmt.Sprintf("%s site:%s", e.cfg.Topic, src.Domain())
}

// Live searches upstream for up to n URLs, retrying rate-limited calls with
// exponential backoff. Once MaxAttempts calls have been rate limited the
// error wraps archive.ErrTransientUpstream.
func (e *Engine) Live(ctx context.Context, src archive.Source, n int) ([]archive.URLRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: requested count must be positive, got %d", archive.ErrUsage, n)
	}
	if e.searcher == nil {
		return nil, fmt.Errorf("%w: live search is not configured", archive.ErrUsage)
	}
	query := e.Query(src)
	logger := e.logger.With(zap.String("source", src.ID()), zap.String("query", query))

	var urls []string
	for attempt := 1; ; attempt++ {
		var err error
		urls, err = e.searcher.Search(ctx, query, 0, n)
		if err == nil {
			metrics.ObserveSearch(src.ID(), "ok")
			break
		}
		if !errors.Is(err, archive.ErrRateLimited) {
			metrics.ObserveSearch(src.ID(), "error")
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
		metrics.ObserveSearch(src.ID(), "rate_limited")
		if attempt >= e.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w: search %q rate limited %d times: %w",
				archive.ErrTransientUpstream, query, attempt, err)
		}
		delay := e.Backoff(attempt)
		logger.Warn("Search rate limited, backing off",
			zap.Int("attempt", attempt), zap.Duration("delay", delay))
		metrics.ObserveBackoff(delay)
		if err := e.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("search %q: %w", query, err)
		}
	}

	if len(urls) > n {
		urls = urls[:n]
	}
	now := e.clock.Now()
	records := make([]archive.URLRecord, 0, len(urls))
	for _, u := range urls {
		records = append(records, archive.URLRecord{URL: u, CollectedAt: now})
	}
	logger.Info("Search complete", zap.Int("urls", len(records)))
	return records, nil
}

// Backoff is the sleep after the attempt-th failed call:
// 2^attempt units plus up to one unit of jitter.
func (e *Engine) Backoff(attempt int) time.Duration {
	base := math.Pow(2, float64(attempt)) * float64(e.cfg.BackoffUnit)
	return time.Duration(base + e.jitter()*float64(e.cfg.BackoffUnit))
}

// Replay returns the last n records of the named log whose URL contains the
// source's domain, in their original order.
func (e *Engine) Replay(ctx context.Context, logName string, src archive.Source, n int) ([]archive.URLRecord, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: requested count must be positive, got %d", archive.ErrUsage, n)
	}
	log, err := e.archive.Log(ctx, logName)
	if err != nil {
		return nil, err
	}
	all, err := log.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", logName, err)
	}
	var matched []archive.URLRecord
	for _, rec := range all {
		if strings.Contains(rec.URL, src.Domain()) {
			matched = append(matched, rec)
		}
	}
	if len(matched) > n {
		matched = matched[len(matched)-n:]
	}
	e.logger.Info("Replayed log",
		zap.String("source", src.ID()),
		zap.String("log", logName),
		zap.Int("urls", len(matched)))
	return matched, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
