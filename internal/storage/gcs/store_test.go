package gcs_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gcs "cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/climatedb/internal/archive"
	gcsstore "github.com/JakeFAU/climatedb/internal/storage/gcs"
)

const bucket = "test-bucket"

// newTestStore creates a Store pointed at a test server.
func newTestStore(t *testing.T, handler http.Handler) *gcsstore.Store {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := gcs.NewClient(
		context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := gcsstore.New(client, gcsstore.Config{
		Bucket:      bucket,
		Prefix:      "archive/final/bbc",
		Ext:         ".json",
		ContentType: "application/json",
	})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	_, err := gcsstore.New(nil, gcsstore.Config{Bucket: bucket})
	assert.Error(t, err)

	client, err := gcs.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = gcsstore.New(client, gcsstore.Config{})
	assert.Error(t, err)
}

func TestObjectName(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler())
	assert.Equal(t, "archive/final/bbc/story-1.json", store.ObjectName("story-1"))
}

func TestWrite(t *testing.T) {
	payload := []byte(`{"article_id":"story-1"}`)

	// This handler simulates the GCS JSON API for multipart uploads.
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/upload/storage/v1/b/%s/o", bucket))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), string(payload))
		assert.Contains(t, string(body), "archive/final/bbc/story-1.json")
		fmt.Fprintln(w, `{"name":"archive/final/bbc/story-1.json","bucket":"`+bucket+`"}`)
	})

	store := newTestStore(t, handler)
	require.NoError(t, store.Write(context.Background(), "story-1", payload))
}

func TestWriteFailureIsStorageError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, `{"error":{"code":403,"message":"denied"}}`)
	})

	store := newTestStore(t, handler)
	err := store.Write(context.Background(), "story-1", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrStorage))
}

func TestExists(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "present") {
			fmt.Fprintln(w, `{"name":"archive/final/bbc/present.json","bucket":"`+bucket+`"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error":{"code":404,"message":"Not Found"}}`)
	})

	store := newTestStore(t, handler)

	ok, err := store.Exists(context.Background(), "present")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRejectsUnsafeKeys(t *testing.T) {
	store := newTestStore(t, http.NotFoundHandler())
	err := store.Write(context.Background(), "../x", []byte("x"))
	assert.True(t, errors.Is(err, archive.ErrUsage))
}
