// Package google scrapes paged web search results and implements the
// upstream search function used by live retrieval.
package google

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	collyfetcher "github.com/JakeFAU/climatedb/internal/fetcher/colly"
)

// Defaults for Config.
const (
	DefaultBaseURL  = "https://www.google.com"
	DefaultPageSize = 10
)

// Config controls result paging.
type Config struct {
	BaseURL  string
	PageSize int
}

// Fetcher is the page fetcher the searcher scrapes through.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Searcher implements archive.Searcher.
type Searcher struct {
	fetcher Fetcher
	cfg     Config
	logger  *zap.Logger
}

// New builds a Searcher.
func New(fetcher Fetcher, cfg Config, logger *zap.Logger) *Searcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Search returns result URLs numbered [start, stop) for query. Pages are
// requested until stop results are seen or a page yields nothing new.
// HTTP 429 and 503 are reported as archive.ErrRateLimited.
func (s *Searcher) Search(ctx context.Context, query string, start, stop int) ([]string, error) {
	if stop <= start {
		return nil, nil
	}
	seen := make(map[string]struct{})
	var results []string
	for offset := start; offset < stop; {
		page, err := s.page(ctx, query, offset)
		if err != nil {
			return nil, err
		}
		fresh := 0
		for _, link := range page {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			results = append(results, link)
			fresh++
			if len(results) >= stop-start {
				return results, nil
			}
		}
		if fresh == 0 {
			break
		}
		offset += s.cfg.PageSize
	}
	return results, nil
}

func (s *Searcher) page(ctx context.Context, query string, offset int) ([]string, error) {
	q := url.Values{}
	q.Set("hl", "en")
	q.Set("q", query)
	q.Set("num", strconv.Itoa(s.cfg.PageSize))
	q.Set("start", strconv.Itoa(offset))
	pageURL := s.cfg.BaseURL + "/search?" + q.Encode()

	resp, err := s.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		var statusErr *collyfetcher.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode == http.StatusServiceUnavailable) {
			return nil, fmt.Errorf("%w: %w", archive.ErrRateLimited, err)
		}
		return nil, fmt.Errorf("search page %d: %w", offset, err)
	}
	links, err := extractLinks(resp.Body, s.cfg.BaseURL)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("Search page scraped",
		zap.String("query", query), zap.Int("offset", offset), zap.Int("links", len(links)))
	return links, nil
}

// extractLinks pulls outbound result links from a results page, unwrapping
// /url?q= redirects and dropping links back to the search engine itself.
func extractLinks(body []byte, baseURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results page: %w", err)
	}
	base, _ := url.Parse(baseURL)
	var links []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if link, ok := resultLink(href, base); ok {
			links = append(links, link)
		}
	})
	return links, nil
}

func resultLink(href string, base *url.URL) (string, bool) {
	if strings.HasPrefix(href, "/url?") {
		u, err := url.Parse(href)
		if err != nil {
			return "", false
		}
		href = u.Query().Get("q")
	}
	u, err := url.Parse(href)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, "google.") || (base != nil && host == strings.ToLower(base.Hostname())) {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
