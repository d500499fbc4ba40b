package archive

import (
	"context"
	"time"
)

// Source is the capability set a source adapter implements.
type Source interface {
	// ID is the unique source identifier, also the storage namespace.
	ID() string
	// Domain is the base domain used to match URLs to this source.
	Domain() string
	// Check reports whether url looks like an article this source can parse.
	Check(ctx context.Context, url string) (bool, error)
	// Parse fetches and parses url. Adapter-level failures for the URL are
	// reported through ParsedArticle.Error; a returned error is unexpected.
	Parse(ctx context.Context, url string) (ParsedArticle, error)
	// ArticleID derives the article identifier from url.
	ArticleID(url string) (string, error)
}

// Validator is an optional Source capability overriding the default
// structural check of parsed articles.
type Validator interface {
	Validate(article ParsedArticle) error
}

// Cleaner is an optional Source capability overriding the default
// normalization of parsed articles.
type Cleaner interface {
	Clean(article ParsedArticle) ParsedArticle
}

// Searcher is the upstream search function. It returns ErrRateLimited
// (possibly wrapped) when the upstream throttles the caller.
type Searcher interface {
	Search(ctx context.Context, query string, start, stop int) ([]string, error)
}

// URLLog is the append-only ordered log of URL records.
type URLLog interface {
	Name() string
	Get(ctx context.Context) ([]URLRecord, error)
	Add(ctx context.Context, records []URLRecord) error
	Len(ctx context.Context) (int, error)
}

// KeyedStore holds one entry per key and supports single-entry overwrite.
type KeyedStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	Write(ctx context.Context, key string, payload []byte) error
	Read(ctx context.Context, key string) ([]byte, error)
}

// Archive opens the storage shapes by name.
type Archive interface {
	Log(ctx context.Context, name string) (URLLog, error)
	Store(ctx context.Context, kind StoreKind, sourceID string) (KeyedStore, error)
}

// Publisher pushes archived notifications downstream.
type Publisher interface {
	Publish(ctx context.Context, event ArchivedEvent) (string, error)
}

// Hasher computes payload digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
