// Package memory records archived-article notifications in memory for
// tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/climatedb/internal/archive"
)

// Publisher implements archive.Publisher.
type Publisher struct {
	mu     sync.RWMutex
	events []archive.ArchivedEvent
	err    error
}

// New returns an empty Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Fail makes subsequent publishes return err.
func (p *Publisher) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Publish records event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event archive.ArchivedEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns a copy of the recorded events.
func (p *Publisher) Events() []archive.ArchivedEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]archive.ArchivedEvent, len(p.events))
	copy(out, p.events)
	return out
}
