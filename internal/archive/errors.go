package archive

import "errors"

// Error taxonomy. Only ErrStorage (and context cancellation) abort a run;
// everything else is scoped to a single call or URL.
var (
	// ErrRateLimited is the signal a Searcher returns when throttled upstream.
	ErrRateLimited = errors.New("upstream rate limited")
	// ErrTransientUpstream is returned once retries against a rate limited
	// upstream are exhausted.
	ErrTransientUpstream = errors.New("transient upstream failure")
	// ErrUsage marks invalid caller input such as a non-positive count.
	ErrUsage = errors.New("usage error")
	// ErrNotFound marks an unknown source identifier or missing entry.
	ErrNotFound = errors.New("not found")
	// ErrAdapter marks a checker or parser failure for one URL.
	ErrAdapter = errors.New("adapter error")
	// ErrValidation marks a parsed article that failed the structural check.
	ErrValidation = errors.New("validation failure")
	// ErrSerialization marks metadata that cannot be encoded for storage.
	ErrSerialization = errors.New("serialization failure")
	// ErrUnknownSource marks a URL that no registered source matches.
	ErrUnknownSource = errors.New("unknown source")
	// ErrStorage marks an unavailable storage medium.
	ErrStorage = errors.New("storage unavailable")
)
