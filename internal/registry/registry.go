// Package registry holds the set of known sources and resolves them by URL
// domain or identifier.
package registry

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/JakeFAU/climatedb/internal/archive"
)

// All is the selection sentinel meaning every registered source.
const All = "all"

// Registry is an immutable set of sources built once at process start.
type Registry struct {
	sources []archive.Source
	byID    map[string]archive.Source

	mu  sync.Mutex
	rng *rand.Rand
}

// Option customizes a Registry.
type Option func(*Registry)

// WithRand sets the random source used to shuffle selections.
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		r.rng = rng
	}
}

// New builds a Registry. Source identifiers must be unique and non-empty.
func New(sources []archive.Source, opts ...Option) (*Registry, error) {
	r := &Registry{
		sources: make([]archive.Source, 0, len(sources)),
		byID:    make(map[string]archive.Source, len(sources)),
	}
	for _, src := range sources {
		if src == nil {
			return nil, fmt.Errorf("nil source")
		}
		id := src.ID()
		if id == "" || id == All {
			return nil, fmt.Errorf("invalid source id %q", id)
		}
		if strings.TrimSpace(src.Domain()) == "" {
			return nil, fmt.Errorf("source %s: domain is required", id)
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("duplicate source id %q", id)
		}
		r.byID[id] = src
		r.sources = append(r.sources, src)
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r, nil
}

// All returns every source in registration order.
func (r *Registry) All() []archive.Source {
	return slices.Clone(r.sources)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	return len(r.sources)
}

// ResolveByID returns the source with the given identifier.
func (r *Registry) ResolveByID(id string) (archive.Source, error) {
	src, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: source %q not in registry", archive.ErrNotFound, id)
	}
	return src, nil
}

// ResolveByDomain returns the most specific source whose domain matches
// rawURL. A domain equal to the URL host, or a dot-suffix of it, beats a
// plain substring match anywhere in the URL; within a class the longest
// domain wins and registration order only breaks exact ties.
func (r *Registry) ResolveByDomain(rawURL string) (archive.Source, bool) {
	host := hostOf(rawURL)
	var (
		best     archive.Source
		bestRank match
	)
	for _, src := range r.sources {
		rank := matchRank(host, rawURL, strings.ToLower(src.Domain()))
		if rank.better(bestRank) {
			best, bestRank = src, rank
		}
	}
	return best, best != nil
}

// Match classes, weakest first.
const (
	noMatch = iota
	substringMatch
	hostMatch
)

// match ranks a domain by class first and length second.
type match struct {
	class  int
	length int
}

func (m match) better(other match) bool {
	if m.class != other.class {
		return m.class > other.class
	}
	return m.class != noMatch && m.length > other.length
}

func matchRank(host, rawURL, domain string) match {
	if domain == "" {
		return match{}
	}
	if host != "" && (host == domain || strings.HasSuffix(host, "."+domain)) {
		return match{class: hostMatch, length: len(domain)}
	}
	if strings.Contains(strings.ToLower(rawURL), domain) {
		return match{class: substringMatch, length: len(domain)}
	}
	return match{}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Select returns the sources named by ids in randomized order. No ids, or the
// All sentinel, selects every source. Unknown ids are a usage error.
func (r *Registry) Select(ids ...string) ([]archive.Source, error) {
	var selected []archive.Source
	if len(ids) == 0 || slices.Contains(ids, All) {
		selected = r.All()
	} else {
		var unknown []string
		seen := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			src, ok := r.byID[id]
			if !ok {
				unknown = append(unknown, id)
				continue
			}
			selected = append(selected, src)
		}
		if len(unknown) > 0 {
			return nil, fmt.Errorf("%w: unknown sources %s", archive.ErrUsage, strings.Join(unknown, ", "))
		}
	}
	r.mu.Lock()
	r.rng.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	r.mu.Unlock()
	return selected, nil
}
