package archive

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	validArticleID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)
	blankLines     = regexp.MustCompile(`\n\s*\n+`)
	innerSpace     = regexp.MustCompile(`[ \t]+`)
)

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"2 January 2006",
}

// ValidArticleID reports whether id is usable as a storage key.
func ValidArticleID(id string) bool {
	return len(id) <= 200 && validArticleID.MatchString(id)
}

// ValidateArticle is the default structural check for parsed articles.
func ValidateArticle(p ParsedArticle) error {
	switch {
	case !ValidArticleID(p.ArticleID):
		return fmt.Errorf("%w: invalid article_id %q", ErrValidation, p.ArticleID)
	case strings.TrimSpace(p.Headline) == "":
		return fmt.Errorf("%w: missing headline", ErrValidation)
	case strings.TrimSpace(p.Body) == "":
		return fmt.Errorf("%w: missing body", ErrValidation)
	case strings.TrimSpace(p.HTML) == "":
		return fmt.Errorf("%w: missing html", ErrValidation)
	}
	return nil
}

// CleanArticle is the default normalization for parsed articles.
func CleanArticle(p ParsedArticle) ParsedArticle {
	p.ArticleID = strings.TrimSpace(p.ArticleID)
	p.URL = strings.TrimSpace(p.URL)
	p.Headline = strings.Join(strings.Fields(p.Headline), " ")
	p.Author = strings.Join(strings.Fields(p.Author), " ")
	p.Body = cleanBody(p.Body)
	p.Published = normalizePublished(p.Published)
	return p
}

func cleanBody(body string) string {
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(innerSpace.ReplaceAllString(line, " "))
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(joined, "\n\n"))
}

func normalizePublished(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	for _, layout := range publishedLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC().Format(time.RFC3339)
		}
	}
	return raw
}
