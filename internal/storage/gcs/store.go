// Package gcs provides a keyed store backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/climatedb/internal/archive"
)

// Config captures the parameters required to address one keyed store.
type Config struct {
	Bucket string
	// Prefix is the object name prefix, e.g. "archive/final/bbc".
	Prefix string
	// Ext is appended to each key to form the object name.
	Ext         string
	ContentType string
}

// Store keeps one object per key. GCS finalizes an object only when its
// writer closes successfully, so a failed write never replaces a committed
// entry.
type Store struct {
	client *storage.Client
	cfg    Config
}

// New creates a GCS-backed keyed store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{client: client, cfg: cfg}, nil
}

// ObjectName returns the object name for key.
func (s *Store) ObjectName(key string) string {
	return path.Join(strings.Trim(s.cfg.Prefix, "/"), key+s.cfg.Ext)
}

func (s *Store) object(key string) (*storage.ObjectHandle, error) {
	if !archive.ValidArticleID(key) {
		return nil, fmt.Errorf("%w: invalid key %q", archive.ErrUsage, key)
	}
	return s.client.Bucket(s.cfg.Bucket).Object(s.ObjectName(key)), nil
}

// Exists reports whether key has a committed object.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	obj, err := s.object(key)
	if err != nil {
		return false, err
	}
	_, err = obj.Attrs(ctx)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrObjectNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat gs://%s/%s: %w", archive.ErrStorage, s.cfg.Bucket, obj.ObjectName(), err)
	}
}

// Write uploads payload as the object for key.
func (s *Store) Write(ctx context.Context, key string, payload []byte) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	if s.cfg.ContentType != "" {
		writer.ContentType = s.cfg.ContentType
	}
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("%w: copy object: %w (close writer: %v)", archive.ErrStorage, err, closeErr)
		}
		return fmt.Errorf("%w: copy object: %w", archive.ErrStorage, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close writer: %w", archive.ErrStorage, err)
	}
	return nil
}

// Read downloads the object for key.
func (s *Store) Read(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", archive.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: open object: %w", archive.ErrStorage, err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: read object: %w", archive.ErrStorage, err)
	}
	return data, nil
}
