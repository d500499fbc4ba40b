package archive

import (
	"fmt"
	"time"
)

// StoreKind names a keyed store namespace under a source.
type StoreKind string

// Keyed store kinds. Raw holds HTML payloads; final holds archived metadata.
const (
	StoreRaw   StoreKind = "raw"
	StoreFinal StoreKind = "final"
)

// Extension returns the file extension used for entries of this kind.
func (k StoreKind) Extension() string {
	if k == StoreRaw {
		return ".html"
	}
	return ".json"
}

// URLRecord is one entry in an ordered log. Identity is the URL string.
type URLRecord struct {
	URL         string    `json:"url"`
	CollectedAt time.Time `json:"collected_at"`
}

// CheckRecords rejects a batch holding a record without a URL, so every
// appended record is readable again.
func CheckRecords(records []URLRecord) error {
	for i, rec := range records {
		if rec.URL == "" {
			return fmt.Errorf("%w: record %d has an empty url", ErrUsage, i)
		}
	}
	return nil
}

// URLs extracts the URL strings from records, preserving order.
func URLs(records []URLRecord) []string {
	out := make([]string, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.URL)
	}
	return out
}

// ParsedArticle is the output of a source adapter's parser. A non-empty Error
// marks a parse failure for that URL; no other field is meaningful then.
type ParsedArticle struct {
	ArticleID string
	URL       string
	Headline  string
	Body      string
	Author    string
	Published string
	HTML      string
	Error     string
	// Fields carries adapter specific metadata that is archived verbatim.
	Fields map[string]any
}

// Failed reports whether the parser signalled an error for the URL.
func (p ParsedArticle) Failed() bool {
	return p.Error != ""
}

// Article is the cleaned metadata record stored in the final keyed store.
// The raw HTML is stored separately under the same ArticleID.
type Article struct {
	ArticleID  string         `json:"article_id"`
	SourceID   string         `json:"source_id"`
	SourceName string         `json:"source_name,omitempty"`
	URL        string         `json:"article_url"`
	Headline   string         `json:"headline"`
	Body       string         `json:"body"`
	Author     string         `json:"author,omitempty"`
	Published  string         `json:"date_published,omitempty"`
	WordCount  int            `json:"article_length"`
	HTMLDigest string         `json:"html_sha256"`
	IngestedAt time.Time      `json:"ingested_at"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// ArchivedEvent is published after an article has been committed.
type ArchivedEvent struct {
	SourceID   string    `json:"source_id"`
	ArticleID  string    `json:"article_id"`
	URL        string    `json:"url"`
	IngestedAt time.Time `json:"ingested_at"`
}
