package newspaper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsCompile(t *testing.T) {
	defs, err := Defaults()
	require.NoError(t, err)

	want := []string{
		"guardian", "bbc", "nzherald", "stuff", "newshub", "economist", "aljazeera", "atlantic",
		"washington_post", "cnn", "dw", "independent", "dailymail", "fox", "nytimes", "skyau",
	}
	got := make([]string, 0, len(defs))
	for _, d := range defs {
		got = append(got, d.ID)
	}
	assert.Equal(t, want, got)

	sources, err := Build(defs, nil, nil)
	require.NoError(t, err)
	assert.Len(t, sources, len(want))
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse(strings.NewReader("sources:\n  - id: x\n    domian: x.com\n"))
	assert.Error(t, err)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)

	_, err = Parse(strings.NewReader("sources: []\n"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sources:
  - id: local
    name: Local Gazette
    domain: gazette.example
    article_paths: ['^/story/\d+$']
    selectors:
      headline: h1.title
`), 0o600))

	defs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "gazette.example", defs[0].Domain)
	assert.Equal(t, "h1.title", defs[0].Selectors.Headline)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	defs, err = Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, defs)
}

func TestNewAdapterRejectsBadDefinitions(t *testing.T) {
	_, err := NewAdapter(Definition{ID: "x"}, nil, nil)
	assert.Error(t, err)

	_, err = NewAdapter(Definition{ID: "x", Domain: "x.com", ArticlePaths: []string{"("}}, nil, nil)
	assert.Error(t, err)

	_, err = NewAdapter(Definition{ID: "x", Domain: "x.com", IDPattern: `\d+`}, nil, nil)
	assert.Error(t, err)
}
