// Package folder implements a keyed store as one file per key in a
// directory.
package folder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JakeFAU/climatedb/internal/archive"
)

// Config captures the parameters for a folder-backed keyed store.
type Config struct {
	// Dir is the directory holding one file per key.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Ext is appended to each key to form the file name.
	Ext string `mapstructure:"ext" yaml:"ext"`
}

// Store writes each entry to its own file. Writes go to a temp file that is
// renamed over the target, so a crash never leaves a half-written entry and
// never touches other keys.
type Store struct {
	dir string
	ext string
}

// New creates the directory if needed and verifies it is writable.
func New(cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Dir) == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	info, err := os.Stat(cfg.Dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if mkErr := os.MkdirAll(cfg.Dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("%w: create store dir: %w", archive.ErrStorage, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: stat store dir: %w", archive.ErrStorage, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: store path %s is not a directory", archive.ErrStorage, cfg.Dir)
	}

	probe, err := os.CreateTemp(cfg.Dir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("%w: store dir is not writable: %w", archive.ErrStorage, err)
	}
	_ = probe.Close()
	if err := os.Remove(probe.Name()); err != nil {
		return nil, fmt.Errorf("%w: clean up probe file: %w", archive.ErrStorage, err)
	}
	return &Store{dir: cfg.Dir, ext: cfg.Ext}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the file path for key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.dir, key+s.ext)
}

func (s *Store) checkKey(key string) error {
	if !archive.ValidArticleID(key) {
		return fmt.Errorf("%w: invalid key %q", archive.ErrUsage, key)
	}
	return nil
}

// Exists reports whether key has a committed entry.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("context canceled: %w", err)
	}
	if err := s.checkKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", archive.ErrStorage, key, err)
	}
}

// Write creates or overwrites the entry for key.
func (s *Store) Write(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context canceled: %w", err)
	}
	if err := s.checkKey(key); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*")
	if err != nil {
		return fmt.Errorf("%w: create temp for %s: %w", archive.ErrStorage, key, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: write %s: %w", archive.ErrStorage, key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("%w: sync %s: %w", archive.ErrStorage, key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("%w: close %s: %w", archive.ErrStorage, key, err)
	}
	if err := os.Rename(tmpName, s.Path(key)); err != nil {
		cleanup()
		return fmt.Errorf("%w: commit %s: %w", archive.ErrStorage, key, err)
	}
	return nil
}

// Read returns the entry for key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	if err := s.checkKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, key)
	default:
		return nil, fmt.Errorf("%w: read %s: %w", archive.ErrStorage, key, err)
	}
}

// Keys lists committed keys in lexical order. Temp files are ignored.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context canceled: %w", err)
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %w", archive.ErrStorage, s.dir, err)
	}
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, s.ext) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, s.ext))
	}
	sort.Strings(keys)
	return keys, nil
}
