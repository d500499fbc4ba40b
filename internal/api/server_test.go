package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	"github.com/JakeFAU/climatedb/internal/newspaper"
	"github.com/JakeFAU/climatedb/internal/registry"
	"github.com/JakeFAU/climatedb/internal/storage/memory"
)

func newTestServer(t *testing.T) (*Server, *memory.Archive) {
	t.Helper()
	defs := []newspaper.Definition{
		{ID: "guardian", Name: "The Guardian", Domain: "theguardian.com"},
		{ID: "bbc", Name: "BBC", Domain: "bbc.co.uk"},
	}
	sources, err := newspaper.Build(defs, nil, zap.NewNop())
	require.NoError(t, err)
	reg, err := registry.New(sources)
	require.NoError(t, err)
	arch := memory.NewArchive()
	return NewServer(reg, arch, zap.NewNop()), arch
}

func serve(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := serve(t, s, "/healthz")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestListSources(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	rec := serve(t, s, "/v1/sources")

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sources []sourceView `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []sourceView{
		{ID: "guardian", Name: "The Guardian", Domain: "theguardian.com"},
		{ID: "bbc", Name: "BBC", Domain: "bbc.co.uk"},
	}, body.Sources)
}

func TestGetArticle(t *testing.T) {
	t.Parallel()
	s, arch := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, arch.MemStore(archive.StoreFinal, "guardian").Write(ctx, "heatwave-2024", []byte(`{"article_id":"heatwave-2024"}`)))
	require.NoError(t, arch.MemStore(archive.StoreRaw, "guardian").Write(ctx, "heatwave-2024", []byte("<html></html>")))

	rec := serve(t, s, "/v1/sources/guardian/articles/heatwave-2024")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"article_id":"heatwave-2024"}`, rec.Body.String())

	rec = serve(t, s, "/v1/sources/guardian/articles/heatwave-2024/raw")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Equal(t, "<html></html>", rec.Body.String())
}

func TestGetArticleErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown source", target: "/v1/sources/nyt/articles/a", status: http.StatusNotFound},
		{name: "missing article", target: "/v1/sources/bbc/articles/missing", status: http.StatusNotFound},
		{name: "missing raw", target: "/v1/sources/bbc/articles/missing/raw", status: http.StatusNotFound},
		{name: "invalid id", target: "/v1/sources/bbc/articles/..", status: http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := serve(t, s, tc.target)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

type failingArchive struct {
	*memory.Archive
}

func (failingArchive) Store(context.Context, archive.StoreKind, string) (archive.KeyedStore, error) {
	return nil, errors.New("bucket gone")
}

func TestGetArticleStorageFailure(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	s = NewServer(s.registry, failingArchive{memory.NewArchive()}, zap.NewNop())

	rec := serve(t, s, "/v1/sources/bbc/articles/x")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTailLog(t *testing.T) {
	t.Parallel()
	s, arch := newTestServer(t)
	at := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, arch.MemLog("urls.jsonl").Add(context.Background(), []archive.URLRecord{
		{URL: "https://www.bbc.co.uk/news/1", CollectedAt: at},
		{URL: "https://www.theguardian.com/a", CollectedAt: at},
		{URL: "https://www.bbc.co.uk/news/2", CollectedAt: at},
		{URL: "https://www.bbc.co.uk/news/3", CollectedAt: at},
	}))

	rec := serve(t, s, "/v1/logs/urls.jsonl?source=bbc&limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	var body logView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, []string{"https://www.bbc.co.uk/news/2", "https://www.bbc.co.uk/news/3"}, archive.URLs(body.Records))

	rec = serve(t, s, "/v1/logs/urls.jsonl")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 4, body.Total)
	assert.Len(t, body.Records, 4)
}

func TestTailLogErrors(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/logs/urls.jsonl?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/logs/urls.jsonl?limit=abc").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, s, "/v1/logs/urls.jsonl?source=nyt").Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, s, "/v1/logs/..").Code)
}

func TestParseLimitCapsAtMax(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/v1/logs/x?limit=5000", nil)

	limit, err := parseLimit(req, defaultLogLimit, maxLogLimit)

	require.NoError(t, err)
	assert.Equal(t, maxLogLimit, limit)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	h := s.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)
	serve(t, s, "/healthz")

	rec := serve(t, s, "/metrics")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
