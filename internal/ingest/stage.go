// Package ingest turns collected URLs into archived articles: the raw HTML
// goes to raw/<source>/<id>.html and the cleaned metadata to
// final/<source>/<id>.json.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/metrics"
	"github.com/JakeFAU/climatedb/internal/telemetry"
)

// Outcome classifies one ingestion attempt.
type Outcome string

// Ingestion outcomes.
const (
	Archived       Outcome = "archived"
	Exists         Outcome = "exists"
	ParseError     Outcome = "parse_error"
	AdapterError   Outcome = "adapter_error"
	Invalid        Outcome = "invalid"
	SerializeError Outcome = "serialize_error"
	UnknownSource  Outcome = "unknown_source"
)

// Resolver maps a URL to its source.
type Resolver interface {
	ResolveByDomain(url string) (archive.Source, bool)
}

// Summary counts outcomes over a batch.
type Summary map[Outcome]int

// Total is the number of URLs attempted.
func (s Summary) Total() int {
	n := 0
	for _, c := range s {
		n += c
	}
	return n
}

// Stage is the ingestion stage.
type Stage struct {
	resolver  Resolver
	archive   archive.Archive
	hasher    archive.Hasher
	clock     archive.Clock
	publisher archive.Publisher
	logger    *zap.Logger
}

// Option customizes a Stage.
type Option func(*Stage)

// WithPublisher announces every archived article.
func WithPublisher(p archive.Publisher) Option {
	return func(s *Stage) { s.publisher = p }
}

// New builds a Stage.
func New(resolver Resolver, arch archive.Archive, hasher archive.Hasher, clock archive.Clock, logger *zap.Logger, opts ...Option) *Stage {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Stage{
		resolver: resolver,
		archive:  arch,
		hasher:   hasher,
		clock:    clock,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestAll ingests urls in order. Per-URL failures are counted and
// skipped; a storage failure or cancellation stops the batch and is
// returned with the partial summary.
func (s *Stage) IngestAll(ctx context.Context, urls []string, replace bool) (Summary, error) {
	summary := Summary{}
	for _, url := range urls {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("ingest: %w", err)
		}
		outcome, err := s.Ingest(ctx, url, replace)
		if err != nil {
			return summary, err
		}
		summary[outcome]++
	}
	return summary, nil
}

// Ingest archives one URL. The returned error is non-nil only for storage
// failures and cancellation; every other failure is an Outcome.
func (s *Stage) Ingest(ctx context.Context, url string, replace bool) (Outcome, error) {
	logger := s.logger.With(zap.String("url", url))
	src, ok := s.resolver.ResolveByDomain(url)
	if !ok {
		logger.Warn("No source matches URL", zap.Error(archive.ErrUnknownSource))
		metrics.ObserveIngest("unknown", string(UnknownSource))
		return UnknownSource, nil
	}
	logger = logger.With(zap.String("source", src.ID()))
	ctx, span := telemetry.Tracer().Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(attribute.String("source_id", src.ID()), attribute.String("url", url))
	outcome, err := s.ingest(ctx, src, url, replace, logger)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return outcome, err
	}
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	metrics.ObserveIngest(src.ID(), string(outcome))
	return outcome, nil
}

func (s *Stage) ingest(ctx context.Context, src archive.Source, url string, replace bool, logger *zap.Logger) (Outcome, error) {
	final, err := s.archive.Store(ctx, archive.StoreFinal, src.ID())
	if err != nil {
		return "", err
	}
	raw, err := s.archive.Store(ctx, archive.StoreRaw, src.ID())
	if err != nil {
		return "", err
	}

	// Skip the fetch when the id derivable from the URL is already archived.
	derived, idErr := src.ArticleID(url)
	if !replace && idErr == nil {
		exists, outcome, err := archived(ctx, final, derived, logger)
		if err != nil || outcome != "" {
			return outcome, err
		}
		if exists {
			logger.Info("Article already exists, not parsing", zap.String("article_id", derived))
			return Exists, nil
		}
	}

	logger.Info("Parsing")
	parsed, err := src.Parse(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("parse %s: %w", url, ctx.Err())
		}
		logger.Warn("Parser failed", zap.Error(fmt.Errorf("%w: %w", archive.ErrAdapter, err)))
		return AdapterError, nil
	}
	if parsed.Failed() {
		logger.Info("Parser reported error", zap.String("reason", parsed.Error))
		return ParseError, nil
	}
	if parsed.URL == "" {
		parsed.URL = url
	}

	if err := validate(src, parsed); err != nil {
		logger.Info("Parsed article failed check", zap.Error(err))
		return Invalid, nil
	}
	parsed = clean(src, parsed)
	id := parsed.ArticleID
	logger = logger.With(zap.String("article_id", id))

	if !replace && id != derived {
		exists, outcome, err := archived(ctx, final, id, logger)
		if err != nil || outcome != "" {
			return outcome, err
		}
		if exists {
			logger.Info("Article already exists, not writing")
			return Exists, nil
		}
	}

	html := []byte(parsed.HTML)
	digest, err := s.hasher.Hash(html)
	if err != nil {
		return "", fmt.Errorf("hash raw payload: %w", err)
	}

	logger.Info("Saving")
	if outcome, err := s.write(ctx, raw, id, html, logger); err != nil || outcome != "" {
		return outcome, err
	}
	metrics.ObserveArchiveBytes(src.ID(), string(archive.StoreRaw), len(html))

	ingestedAt := s.clock.Now()
	article := archive.Article{
		ArticleID:  id,
		SourceID:   src.ID(),
		SourceName: sourceName(src),
		URL:        parsed.URL,
		Headline:   parsed.Headline,
		Body:       parsed.Body,
		Author:     parsed.Author,
		Published:  parsed.Published,
		WordCount:  wordCount(parsed.Body),
		HTMLDigest: digest,
		IngestedAt: ingestedAt,
		Fields:     parsed.Fields,
	}
	payload, err := json.Marshal(article)
	if err != nil {
		logger.Warn("Metadata not serializable, raw payload left orphaned",
			zap.Error(fmt.Errorf("%w: %w", archive.ErrSerialization, err)))
		return SerializeError, nil
	}
	if outcome, err := s.write(ctx, final, id, payload, logger); err != nil || outcome != "" {
		if err != nil {
			logger.Warn("Metadata write failed, raw payload left orphaned", zap.Error(err))
		}
		return outcome, err
	}
	metrics.ObserveArchiveBytes(src.ID(), string(archive.StoreFinal), len(payload))

	s.publish(ctx, archive.ArchivedEvent{
		SourceID:   src.ID(),
		ArticleID:  id,
		URL:        parsed.URL,
		IngestedAt: ingestedAt,
	}, logger)
	return Archived, nil
}

// write returns a non-empty Outcome for per-URL key problems and an error
// for storage failures.
// archived reports whether id is in the final store. An id the store
// rejects is the Invalid outcome for this URL, not an error.
func archived(ctx context.Context, final archive.KeyedStore, id string, logger *zap.Logger) (bool, Outcome, error) {
	exists, err := final.Exists(ctx, id)
	switch {
	case err == nil:
		return exists, "", nil
	case errors.Is(err, archive.ErrUsage):
		logger.Warn("Article id rejected by store", zap.String("article_id", id), zap.Error(err))
		return false, Invalid, nil
	default:
		return false, "", err
	}
}

func (s *Stage) write(ctx context.Context, store archive.KeyedStore, id string, payload []byte, logger *zap.Logger) (Outcome, error) {
	err := store.Write(ctx, id, payload)
	switch {
	case err == nil:
		return "", nil
	case errors.Is(err, archive.ErrUsage):
		logger.Warn("Article id rejected by store", zap.Error(err))
		return Invalid, nil
	default:
		return "", err
	}
}

func (s *Stage) publish(ctx context.Context, event archive.ArchivedEvent, logger *zap.Logger) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish archived event", zap.Error(err))
	}
}

func validate(src archive.Source, p archive.ParsedArticle) error {
	if v, ok := src.(archive.Validator); ok {
		if err := v.Validate(p); err != nil {
			return fmt.Errorf("%w: %w", archive.ErrValidation, err)
		}
		return nil
	}
	return archive.ValidateArticle(p)
}

func clean(src archive.Source, p archive.ParsedArticle) archive.ParsedArticle {
	if c, ok := src.(archive.Cleaner); ok {
		return c.Clean(p)
	}
	return archive.CleanArticle(p)
}

func sourceName(src archive.Source) string {
	if n, ok := src.(interface{ Name() string }); ok {
		return n.Name()
	}
	return ""
}

func wordCount(body string) int {
	return len(strings.Fields(body))
}
