package newspaper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/climatedb/internal/archive"
	collyfetcher "github.com/JakeFAU/climatedb/internal/fetcher/colly"
)

// Fetcher retrieves article pages.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (collyfetcher.Response, error)
}

// Adapter implements archive.Source for one Definition.
type Adapter struct {
	def          Definition
	articlePaths []*regexp.Regexp
	reject       []*regexp.Regexp
	idPattern    *regexp.Regexp
	fetcher      Fetcher
	logger       *zap.Logger
}

var unsafeIDChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewAdapter compiles def into an Adapter.
func NewAdapter(def Definition, fetcher Fetcher, logger *zap.Logger) (*Adapter, error) {
	if def.ID == "" || def.Domain == "" {
		return nil, fmt.Errorf("source definition needs id and domain: %+v", def)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		def:     def,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", def.ID)),
	}
	if a.def.Name == "" {
		a.def.Name = def.ID
	}
	var err error
	if a.articlePaths, err = compileAll(def.ArticlePaths); err != nil {
		return nil, fmt.Errorf("source %s article_paths: %w", def.ID, err)
	}
	if a.reject, err = compileAll(def.Reject); err != nil {
		return nil, fmt.Errorf("source %s reject: %w", def.ID, err)
	}
	if def.IDPattern != "" {
		if a.idPattern, err = regexp.Compile(def.IDPattern); err != nil {
			return nil, fmt.Errorf("source %s id_pattern: %w", def.ID, err)
		}
		if a.idPattern.NumSubexp() < 1 {
			return nil, fmt.Errorf("source %s id_pattern needs a capture group", def.ID)
		}
	}
	return a, nil
}

// Build compiles every definition, sharing one fetcher.
func Build(defs []Definition, fetcher Fetcher, logger *zap.Logger) ([]archive.Source, error) {
	sources := make([]archive.Source, 0, len(defs))
	for _, def := range defs {
		a, err := NewAdapter(def, fetcher, logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, a)
	}
	return sources, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// ID returns the source identifier.
func (a *Adapter) ID() string { return a.def.ID }

// Name returns the outlet's display name.
func (a *Adapter) Name() string { return a.def.Name }

// Domain returns the base domain.
func (a *Adapter) Domain() string { return a.def.Domain }

// Definition returns the definition the adapter was built from.
func (a *Adapter) Definition() Definition { return a.def }

// Check reports whether rawURL is an article page on this outlet.
func (a *Adapter) Check(_ context.Context, rawURL string) (bool, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false, nil
	}
	if !hostMatches(u.Hostname(), a.def.Domain) {
		return false, nil
	}
	for _, re := range a.reject {
		if re.MatchString(rawURL) {
			return false, nil
		}
	}
	p := strings.TrimRight(u.Path, "/")
	if len(a.articlePaths) == 0 {
		return p != "", nil
	}
	for _, re := range a.articlePaths {
		if re.MatchString(u.Path) || re.MatchString(p) {
			return true, nil
		}
	}
	return false, nil
}

func hostMatches(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// ArticleID derives the article id from the URL path. Query strings and
// fragments never contribute.
func (a *Adapter) ArticleID(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: parse %q: %w", archive.ErrAdapter, rawURL, err)
	}
	var id string
	if a.idPattern != nil {
		m := a.idPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return "", fmt.Errorf("%w: %s does not match id pattern of %s", archive.ErrAdapter, rawURL, a.def.ID)
		}
		id = m[1]
	} else {
		id = idFromPath(u.Path)
	}
	id = strings.Trim(unsafeIDChars.ReplaceAllString(id, "-"), "-.")
	if !archive.ValidArticleID(id) {
		return "", fmt.Errorf("%w: cannot derive article id from %s", archive.ErrAdapter, rawURL)
	}
	return id, nil
}

// idFromPath joins the path segments, dropping a trailing index page and
// file extension.
func idFromPath(p string) string {
	segments := strings.FieldsFunc(p, func(r rune) bool { return r == '/' })
	if n := len(segments); n > 0 {
		last := segments[n-1]
		last = strings.TrimSuffix(last, path.Ext(last))
		if last == "index" {
			segments = segments[:n-1]
		} else {
			segments[n-1] = last
		}
	}
	return strings.Join(segments, "-")
}

// Parse fetches rawURL and extracts the article. Fetch failures, paywalls
// and underivable ids are reported in ParsedArticle.Error.
func (a *Adapter) Parse(ctx context.Context, rawURL string) (archive.ParsedArticle, error) {
	parsed := archive.ParsedArticle{URL: rawURL}
	id, err := a.ArticleID(rawURL)
	if err != nil {
		parsed.Error = err.Error()
		return parsed, nil
	}
	parsed.ArticleID = id

	if a.fetcher == nil {
		return parsed, fmt.Errorf("source %s has no fetcher", a.def.ID)
	}
	resp, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if ctx.Err() != nil {
			return parsed, fmt.Errorf("parse %s: %w", rawURL, ctx.Err())
		}
		parsed.Error = err.Error()
		return parsed, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		parsed.Error = fmt.Sprintf("parse html: %v", err)
		return parsed, nil
	}
	if a.def.Paywall != "" && doc.Find(a.def.Paywall).Length() > 0 {
		parsed.Error = "paywalled"
		return parsed, nil
	}

	sel := a.def.Selectors
	parsed.HTML = string(resp.Body)
	parsed.Headline = firstNonEmpty(
		text(doc, sel.Headline),
		meta(doc, `meta[property="og:title"]`),
		text(doc, "title"),
	)
	parsed.Body = paragraphs(doc, firstNonEmpty(sel.Body, "article p"))
	parsed.Author = firstNonEmpty(text(doc, sel.Author), meta(doc, `meta[name="author"]`))
	parsed.Published = firstNonEmpty(
		dateOf(doc, sel.Published),
		meta(doc, `meta[property="article:published_time"]`),
	)
	if resp.URL != "" && resp.URL != rawURL {
		parsed.Fields = map[string]any{"final_url": resp.URL}
	}
	a.logger.Debug("Parsed article", zap.String("url", rawURL), zap.String("article_id", id))
	return parsed, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func text(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	return strings.TrimSpace(doc.Find(selector).First().Text())
}

func meta(doc *goquery.Document, selector string) string {
	content, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(content)
}

// dateOf prefers machine readable attributes over visible text.
func dateOf(doc *goquery.Document, selector string) string {
	if selector == "" {
		return ""
	}
	s := doc.Find(selector).First()
	for _, attr := range []string{"datetime", "content"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return strings.TrimSpace(s.Text())
}

func paragraphs(doc *goquery.Document, selector string) string {
	var parts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}
