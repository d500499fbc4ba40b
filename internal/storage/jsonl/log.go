// Package jsonl implements the ordered URL log as a line-oriented JSON file.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
)

const maxLineBytes = 1 << 20

// Log is an append-only file of JSON records, one per line. Appends never
// rewrite existing bytes; a torn trailing line left by a crash is skipped on
// read and sealed with a newline before the next append.
type Log struct {
	name   string
	path   string
	logger *zap.Logger

	mu sync.Mutex
}

// Open returns the log stored at path, creating parent directories.
func Open(name, path string, logger *zap.Logger) (*Log, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("log path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("%w: create log dir for %s: %w", archive.ErrStorage, path, err)
	}
	return &Log{
		name:   name,
		path:   path,
		logger: logger.With(zap.String("log", name)),
	}, nil
}

// Name returns the log name.
func (l *Log) Name() string {
	return l.name
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Get reads every committed record in append order.
func (l *Log) Get(ctx context.Context) ([]archive.URLRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	// #nosec G304 -- path is operator supplied configuration.
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", archive.ErrStorage, l.path, err)
	}
	defer f.Close()

	var records []archive.URLRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec archive.URLRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.URL == "" {
			l.logger.Warn("skipping malformed log line", zap.Int("line", lineNo), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", archive.ErrStorage, l.path, err)
	}
	return records, nil
}

// Add appends records at the end of the log in a single write. Duplicates
// are kept.
func (l *Log) Add(ctx context.Context, records []archive.URLRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if err := archive.CheckRecords(records); err != nil {
		return err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("%w: encode record %s: %w", archive.ErrSerialization, rec.URL, err)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// #nosec G304 -- path is operator supplied configuration.
	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", archive.ErrStorage, l.path, err)
	}
	defer f.Close()

	torn, err := endsWithoutNewline(f)
	if err != nil {
		return fmt.Errorf("%w: inspect %s: %w", archive.ErrStorage, l.path, err)
	}
	payload := buf.Bytes()
	if torn {
		l.logger.Warn("sealing torn trailing line before append")
		payload = append([]byte{'\n'}, payload...)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("%w: append %s: %w", archive.ErrStorage, l.path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync %s: %w", archive.ErrStorage, l.path, err)
	}
	return nil
}

// Len returns the number of committed records.
func (l *Log) Len(ctx context.Context) (int, error) {
	records, err := l.Get(ctx)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

func endsWithoutNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return false, nil
	}
	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read last byte: %w", err)
	}
	return last[0] != '\n', nil
}
