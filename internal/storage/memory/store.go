// Package memory implements in-memory ordered logs and keyed stores for
// tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/climatedb/internal/archive"
)

// Log is an in-memory ordered log.
type Log struct {
	name string

	mu      sync.RWMutex
	records []archive.URLRecord
	addErr  error
}

// NewLog creates an empty log, optionally seeded with records.
func NewLog(name string, seed ...archive.URLRecord) *Log {
	return &Log{name: name, records: append([]archive.URLRecord(nil), seed...)}
}

// FailAdds makes subsequent Add calls return err; nil clears it.
func (l *Log) FailAdds(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addErr = err
}

// Name returns the log name.
func (l *Log) Name() string {
	return l.name
}

// Get returns a copy of every record in append order.
func (l *Log) Get(_ context.Context) ([]archive.URLRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]archive.URLRecord(nil), l.records...), nil
}

// Add appends records without deduplication.
func (l *Log) Add(_ context.Context, records []archive.URLRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.addErr != nil {
		return l.addErr
	}
	if err := archive.CheckRecords(records); err != nil {
		return err
	}
	l.records = append(l.records, records...)
	return nil
}

// Len returns the number of records.
func (l *Log) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records), nil
}

// Store is an in-memory keyed store.
type Store struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
}

// NewStore creates an empty keyed store.
func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

func checkKey(key string) error {
	if !archive.ValidArticleID(key) {
		return fmt.Errorf("%w: invalid key %q", archive.ErrUsage, key)
	}
	return nil
}

// Exists reports whether key is present. Keys follow the same rules as the
// folder and GCS stores.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	if err := checkKey(key); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

// Write creates or overwrites key.
func (s *Store) Write(_ context.Context, key string, payload []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), payload...)
	s.writes++
	return nil
}

// Read returns the payload for key.
func (s *Store) Read(_ context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, key)
	}
	return append([]byte(nil), data...), nil
}

// Keys lists keys in lexical order.
func (s *Store) Keys(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Writes returns how many writes were committed, overwrites included.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// Archive is an in-memory archive.Archive.
type Archive struct {
	mu     sync.Mutex
	logs   map[string]*Log
	stores map[string]*Store
}

// NewArchive creates an empty archive.
func NewArchive() *Archive {
	return &Archive{
		logs:   make(map[string]*Log),
		stores: make(map[string]*Store),
	}
}

// Log returns the named log, creating it on first use.
func (a *Archive) Log(_ context.Context, name string) (archive.URLLog, error) {
	return a.MemLog(name), nil
}

// MemLog is Log with the concrete type, for test setup.
func (a *Archive) MemLog(name string) *Log {
	a.mu.Lock()
	defer a.mu.Unlock()
	log, ok := a.logs[name]
	if !ok {
		log = NewLog(name)
		a.logs[name] = log
	}
	return log
}

// Store returns the keyed store for kind and source, creating it on first use.
func (a *Archive) Store(_ context.Context, kind archive.StoreKind, sourceID string) (archive.KeyedStore, error) {
	return a.MemStore(kind, sourceID), nil
}

// MemStore is Store with the concrete type, for test setup.
func (a *Archive) MemStore(kind archive.StoreKind, sourceID string) *Store {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := string(kind) + "/" + sourceID
	store, ok := a.stores[key]
	if !ok {
		store = NewStore()
		a.stores[key] = store
	}
	return store
}
