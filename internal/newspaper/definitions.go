// Package newspaper builds source adapters from declarative outlet
// definitions: URL rules decide which links are articles and CSS selectors
// pull the article fields out of the fetched page.
package newspaper

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultDefinitions []byte

// Definition declares one outlet.
type Definition struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Domain string `yaml:"domain"`
	// ArticlePaths are regexes one of which the URL path must match.
	// Empty means any non-root path.
	ArticlePaths []string `yaml:"article_paths"`
	// Reject are regexes matched against the full URL.
	Reject []string `yaml:"reject"`
	// IDPattern is matched against the URL path; its first capture group is
	// the article id. Empty derives the id from the path segments.
	IDPattern string    `yaml:"id_pattern"`
	Selectors Selectors `yaml:"selectors"`
	// Paywall marks a page as unparseable when the selector matches.
	Paywall string `yaml:"paywall"`
}

// Selectors are goquery selectors for article fields.
type Selectors struct {
	Headline  string `yaml:"headline"`
	Body      string `yaml:"body"`
	Author    string `yaml:"author"`
	Published string `yaml:"published"`
}

type definitionsFile struct {
	Sources []Definition `yaml:"sources"`
}

// Parse decodes a definitions document. Unknown keys are rejected.
func Parse(r io.Reader) ([]Definition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var file definitionsFile
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("source definitions are empty")
		}
		return nil, fmt.Errorf("decode source definitions: %w", err)
	}
	if len(file.Sources) == 0 {
		return nil, fmt.Errorf("source definitions declare no sources")
	}
	return file.Sources, nil
}

// Defaults returns the embedded outlet set.
func Defaults() ([]Definition, error) {
	return Parse(bytes.NewReader(defaultDefinitions))
}

// Load reads definitions from path, or the embedded set when path is empty.
func Load(path string) ([]Definition, error) {
	if path == "" {
		return Defaults()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open source definitions: %w", err)
	}
	defer func() { _ = f.Close() }()
	defs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}
