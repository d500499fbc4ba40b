// Package collyfetcher fetches pages for search scraping and article parsing
// using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

// DefaultTimeout bounds one request when Config.Timeout is zero.
const DefaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
}

// Response is one fetched page.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher issues single GET requests through a colly collector.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	limiter   Waiter
	logger    *zap.Logger
	base      *colly.Collector
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithTransport replaces the pooled HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// WithLimiter makes every fetch wait on w first.
func WithLimiter(w Waiter) Option {
	return func(f *Fetcher) { f.limiter = w }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New builds a Fetcher.
func New(cfg Config, opts ...Option) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	f := &Fetcher{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(f)
	}
	if f.transport == nil {
		f.transport = newHTTPTransport()
	}

	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = !cfg.RespectRobots
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	if cfg.RespectRobots {
		c.WithTransport(&robotsTransport{base: f.transport, logger: f.logger, backoff: robotsRetryBackoff})
	} else {
		c.WithTransport(f.transport)
	}
	f.base = c
	return f
}

// Fetch GETs url. A non-2xx status yields the partial Response together
// with a *StatusError.
func (f *Fetcher) Fetch(ctx context.Context, url string) (Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, url); err != nil {
			return Response{}, err
		}
	}

	var (
		result   Response
		fetchErr error
	)
	start := time.Now()
	collector := f.base.Clone()
	collector.OnResponse(func(r *colly.Response) {
		result = toResponse(r, start)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			result = toResponse(r, start)
			fetchErr = &StatusError{URL: url, StatusCode: r.StatusCode}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return Response{}, fmt.Errorf("fetch %s canceled: %w", url, ctx.Err())
	case err := <-done:
		var statusErr *StatusError
		switch {
		case errors.As(fetchErr, &statusErr):
			return result, statusErr
		case fetchErr != nil:
			return Response{}, fmt.Errorf("fetch %s: %w", url, fetchErr)
		case err != nil:
			return Response{}, fmt.Errorf("visit %s: %w", url, err)
		}
		return result, nil
	}
}

func toResponse(r *colly.Response, start time.Time) Response {
	resp := Response{
		URL:        r.Request.URL.String(),
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
