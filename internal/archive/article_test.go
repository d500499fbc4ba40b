package archive

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateArticle(t *testing.T) {
	t.Parallel()

	valid := ParsedArticle{
		ArticleID: "climate-report-2024",
		Headline:  "Climate report",
		Body:      "Warming continues.",
		HTML:      "<html></html>",
	}
	require.NoError(t, ValidateArticle(valid))

	testCases := []struct {
		name   string
		mutate func(p *ParsedArticle)
	}{
		{"empty id", func(p *ParsedArticle) { p.ArticleID = "" }},
		{"path traversal id", func(p *ParsedArticle) { p.ArticleID = "../etc/passwd" }},
		{"missing headline", func(p *ParsedArticle) { p.Headline = "  " }},
		{"missing body", func(p *ParsedArticle) { p.Body = "" }},
		{"missing html", func(p *ParsedArticle) { p.HTML = "" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := valid
			tc.mutate(&p)
			err := ValidateArticle(p)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestCleanArticle(t *testing.T) {
	t.Parallel()

	cleaned := CleanArticle(ParsedArticle{
		ArticleID: " abc ",
		Headline:  "  Sea   levels\n rise ",
		Body:      "First  paragraph.\r\n\r\n\r\n   Second\tparagraph.  ",
		Published: "2021-03-04T05:06:07+02:00",
	})

	require.Equal(t, "abc", cleaned.ArticleID)
	require.Equal(t, "Sea levels rise", cleaned.Headline)
	require.Equal(t, "First paragraph.\n\nSecond paragraph.", cleaned.Body)
	require.Equal(t, "2021-03-04T03:06:07Z", cleaned.Published)
}

func TestCleanArticleKeepsUnknownDateFormat(t *testing.T) {
	t.Parallel()

	cleaned := CleanArticle(ParsedArticle{Published: "last Tuesday"})
	require.Equal(t, "last Tuesday", cleaned.Published)
}

func TestStoreKindExtension(t *testing.T) {
	t.Parallel()

	require.Equal(t, ".html", StoreRaw.Extension())
	require.Equal(t, ".json", StoreFinal.Extension())
}
