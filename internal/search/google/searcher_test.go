package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/climatedb/internal/archive"
	collyfetcher "github.com/JakeFAU/climatedb/internal/fetcher/colly"
)

func resultsPage(links ...string) string {
	body := `<html><body><a href="/preferences">Settings</a><a href="https://www.google.com/intl/en/about">About</a>`
	for _, l := range links {
		body += fmt.Sprintf(`<div class="g"><a href="/url?q=%s&sa=U">result</a></div>`, l)
	}
	return body + `<a href="https://accounts.google.com/login">Sign in</a></body></html>`
}

func newServer(t *testing.T, pages map[int][]string, status int) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		_, _ = w.Write([]byte(resultsPage(pages[start]...)))
	}))
	t.Cleanup(srv.Close)
	return srv, &queries
}

func TestSearchPaginates(t *testing.T) {
	srv, queries := newServer(t, map[int][]string{
		0: {"https://www.bbc.co.uk/news/a", "https://www.bbc.co.uk/news/b"},
		2: {"https://www.bbc.co.uk/news/c", "https://www.bbc.co.uk/news/b"},
	}, 0)

	s := New(collyfetcher.New(collyfetcher.Config{}), Config{BaseURL: srv.URL, PageSize: 2}, nil)
	urls, err := s.Search(context.Background(), "climate change site:bbc.co.uk", 0, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.bbc.co.uk/news/a",
		"https://www.bbc.co.uk/news/b",
		"https://www.bbc.co.uk/news/c",
	}, urls)
	require.Len(t, *queries, 3)
	assert.Contains(t, (*queries)[0], "q=climate+change+site%3Abbc.co.uk")
}

func TestSearchStopsAtCount(t *testing.T) {
	srv, queries := newServer(t, map[int][]string{
		0: {"https://cnn.com/1", "https://cnn.com/2", "https://cnn.com/3"},
	}, 0)

	s := New(collyfetcher.New(collyfetcher.Config{}), Config{BaseURL: srv.URL}, nil)
	urls, err := s.Search(context.Background(), "q", 0, 2)
	require.NoError(t, err)
	assert.Len(t, urls, 2)
	assert.Len(t, *queries, 1)
}

func TestSearchRateLimited(t *testing.T) {
	for _, code := range []int{http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		srv, _ := newServer(t, nil, code)
		s := New(collyfetcher.New(collyfetcher.Config{}), Config{BaseURL: srv.URL}, nil)
		_, err := s.Search(context.Background(), "q", 0, 5)
		assert.True(t, errors.Is(err, archive.ErrRateLimited), "status %d", code)
	}
}

func TestSearchOtherStatus(t *testing.T) {
	srv, _ := newServer(t, nil, http.StatusForbidden)
	s := New(collyfetcher.New(collyfetcher.Config{}), Config{BaseURL: srv.URL}, nil)
	_, err := s.Search(context.Background(), "q", 0, 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, archive.ErrRateLimited))
}

func TestSearchEmptyRange(t *testing.T) {
	s := New(nil, Config{}, nil)
	urls, err := s.Search(context.Background(), "q", 3, 3)
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestResultLink(t *testing.T) {
	cases := map[string]string{
		"/url?q=https://www.dw.com/en/a-1&sa=U": "https://www.dw.com/en/a-1",
		"https://www.dw.com/en/b#comments":      "https://www.dw.com/en/b",
		"/search?q=next":                        "",
		"https://maps.google.com/x":             "",
		"mailto:x@example.com":                  "",
	}
	for href, want := range cases {
		got, ok := resultLink(href, nil)
		assert.Equal(t, want != "", ok, href)
		assert.Equal(t, want, got, href)
	}
}
