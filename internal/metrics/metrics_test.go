package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, ingestTotal)
	require.NotNil(t, filterDroppedTotal)
}

func TestObservers(t *testing.T) {
	ObserveIngest("metrics-test", "archived")
	ObserveIngest("metrics-test", "archived")
	assert.Equal(t, 2.0, testutil.ToFloat64(ingestTotal.WithLabelValues("metrics-test", "archived")))

	ObserveDropped("metrics-test", "existence", 3)
	ObserveDropped("metrics-test", "existence", 0)
	assert.Equal(t, 3.0, testutil.ToFloat64(filterDroppedTotal.WithLabelValues("metrics-test", "existence")))

	ObserveCollected("metrics-test", "live", 5)
	assert.Equal(t, 5.0, testutil.ToFloat64(urlsCollectedTotal.WithLabelValues("metrics-test", "live")))

	ObserveArchiveBytes("metrics-test", "raw", 128)
	assert.Equal(t, 128.0, testutil.ToFloat64(archiveBytesTotal.WithLabelValues("metrics-test", "raw")))

	ObserveSearch("metrics-test", "rate_limited")
	assert.Equal(t, 1.0, testutil.ToFloat64(searchRequestsTotal.WithLabelValues("metrics-test", "rate_limited")))

	ObserveBackoff(2 * time.Second)
	assert.Positive(t, testutil.CollectAndCount(searchBackoffSeconds))
}

func TestPush(t *testing.T) {
	var gotPath, gotMethod string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObserveRun("success")
	require.NoError(t, Push(context.Background(), srv.URL, "climatedb"))
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/climatedb", gotPath)
	assert.NotEmpty(t, gotBody)
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.Error(t, Push(context.Background(), srv.URL, "climatedb"))
}

func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
