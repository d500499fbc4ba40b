// Package storage opens the archive's ordered logs and keyed stores on the
// configured backends. Keyed stores live under <kind>/<source_id>/, e.g.
// raw/bbc/ and final/bbc/.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/storage/folder"
	"github.com/JakeFAU/climatedb/internal/storage/gcs"
	"github.com/JakeFAU/climatedb/internal/storage/jsonl"
	"github.com/JakeFAU/climatedb/internal/storage/memory"
	"github.com/JakeFAU/climatedb/internal/storage/postgres"
)

// Backend names.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMemory   = "memory"
	BackendJSONL    = "jsonl"
	BackendPostgres = "postgres"
)

// Config selects and parameterizes the storage backends.
type Config struct {
	// Root is the local archive directory; relative log names resolve here.
	Root string
	// Backend stores keyed entries: local, gcs or memory.
	Backend   string
	GCSBucket string
	GCSPrefix string
	// LogBackend stores ordered logs: jsonl, postgres or memory.
	LogBackend string
	Postgres   postgres.Config
}

// Provider implements archive.Archive. Opened logs and stores are cached so
// every caller shares one instance per name.
type Provider struct {
	cfg    Config
	logger *zap.Logger

	gcsClient *gcsclient.Client
	pg        *postgres.Store
	mem       *memory.Archive

	mu     sync.Mutex
	logs   map[string]archive.URLLog
	stores map[string]archive.KeyedStore
}

// New initializes the configured backends and fails fast if one is
// unreachable.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendLocal
	}
	if cfg.LogBackend == "" {
		cfg.LogBackend = BackendJSONL
	}
	p := &Provider{
		cfg:    cfg,
		logger: logger,
		logs:   make(map[string]archive.URLLog),
		stores: make(map[string]archive.KeyedStore),
	}

	switch cfg.Backend {
	case BackendLocal:
		if strings.TrimSpace(cfg.Root) == "" {
			return nil, fmt.Errorf("archive root is required for the local backend")
		}
	case BackendGCS:
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("archive backend is 'gcs' but archive.gcs_bucket is not set")
		}
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create GCS client: %w", archive.ErrStorage, err)
		}
		if _, err := client.Bucket(cfg.GCSBucket).Attrs(ctx); err != nil {
			if cerr := client.Close(); cerr != nil {
				logger.Warn("Failed to close GCS client after bucket check failure", zap.Error(cerr))
			}
			return nil, fmt.Errorf("%w: get GCS bucket %q attributes: %w", archive.ErrStorage, cfg.GCSBucket, err)
		}
		p.gcsClient = client
	case BackendMemory:
		p.mem = memory.NewArchive()
	default:
		return nil, fmt.Errorf("unknown archive backend: %s", cfg.Backend)
	}

	switch cfg.LogBackend {
	case BackendJSONL:
		if strings.TrimSpace(cfg.Root) == "" {
			return nil, fmt.Errorf("archive root is required for the jsonl log backend")
		}
	case BackendPostgres:
		pg, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("init postgres log: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			p.Close()
			return nil, err
		}
		p.pg = pg
	case BackendMemory:
		if p.mem == nil {
			p.mem = memory.NewArchive()
		}
	default:
		return nil, fmt.Errorf("unknown log backend: %s", cfg.LogBackend)
	}
	return p, nil
}

// Log opens the named ordered log.
func (p *Provider) Log(ctx context.Context, name string) (archive.URLLog, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: log name is required", archive.ErrUsage)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if log, ok := p.logs[name]; ok {
		return log, nil
	}

	var (
		log archive.URLLog
		err error
	)
	switch p.cfg.LogBackend {
	case BackendJSONL:
		log, err = jsonl.Open(name, p.logPath(name), p.logger.Named("jsonl"))
	case BackendPostgres:
		log = p.pg.Log(name)
	case BackendMemory:
		log, err = p.mem.Log(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", name, err)
	}
	p.logs[name] = log
	return log, nil
}

func (p *Provider) logPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(p.cfg.Root, name)
}

// Store opens the keyed store of kind for sourceID.
func (p *Provider) Store(ctx context.Context, kind archive.StoreKind, sourceID string) (archive.KeyedStore, error) {
	if kind != archive.StoreRaw && kind != archive.StoreFinal {
		return nil, fmt.Errorf("%w: unknown store kind %q", archive.ErrUsage, kind)
	}
	if !archive.ValidArticleID(sourceID) {
		return nil, fmt.Errorf("%w: invalid source id %q", archive.ErrUsage, sourceID)
	}
	key := string(kind) + "/" + sourceID

	p.mu.Lock()
	defer p.mu.Unlock()
	if store, ok := p.stores[key]; ok {
		return store, nil
	}

	var (
		store archive.KeyedStore
		err   error
	)
	switch p.cfg.Backend {
	case BackendLocal:
		store, err = folder.New(folder.Config{
			Dir: filepath.Join(p.cfg.Root, string(kind), sourceID),
			Ext: kind.Extension(),
		})
	case BackendGCS:
		store, err = gcs.New(p.gcsClient, gcs.Config{
			Bucket:      p.cfg.GCSBucket,
			Prefix:      path.Join(strings.Trim(p.cfg.GCSPrefix, "/"), string(kind), sourceID),
			Ext:         kind.Extension(),
			ContentType: contentType(kind),
		})
	case BackendMemory:
		store, err = p.mem.Store(ctx, kind, sourceID)
	}
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", key, err)
	}
	p.stores[key] = store
	return store, nil
}

func contentType(kind archive.StoreKind) string {
	if kind == archive.StoreRaw {
		return "text/html; charset=utf-8"
	}
	return "application/json"
}

// Close releases backend clients.
func (p *Provider) Close() {
	if p.pg != nil {
		p.pg.Close()
	}
	if p.gcsClient != nil {
		if err := p.gcsClient.Close(); err != nil {
			p.logger.Warn("Error closing GCS client", zap.Error(err))
		}
	}
}
