package monitor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/obentoo/storewatch/internal/extract"
)

// Error variables for source configuration errors
var (
	// ErrSourcesNotFound is returned when the sources file does not exist
	ErrSourcesNotFound = errors.New("sources file not found")
	// ErrNoSources is returned when the sources file defines no source
	ErrNoSources = errors.New("no sources configured")
	// ErrMissingURLs is returned when a source has no URL
	ErrMissingURLs = errors.New("missing required field: urls")
	// ErrInvalidURL is returned when a source URL is not an absolute http(s) URL
	ErrInvalidURL = errors.New("invalid URL")
	// ErrUnknownSource is returned when a check names a source that is not configured
	ErrUnknownSource = errors.New("unknown source")
)

// Source is one place a version is published, such as a store page or a
// lookup API. URLs are tried in order and the highest version wins.
type Source struct {
	// Name identifies the source in results and in the state file
	Name string `toml:"-"`
	// URLs are the candidate pages for this source
	URLs []string `toml:"urls"`
	// Headers are sent with every request, after the client defaults
	Headers map[string]string `toml:"headers,omitempty"`

	extract.Config
}

// DefaultSources returns the sources written to a new sources file.
func DefaultSources() []Source {
	return []Source{
		{
			Name: "uptodown",
			URLs: []string{
				"https://fun-run-4.en.uptodown.com/android/download",
				"https://fun-run-4.en.uptodown.com/android",
			},
			Config: extract.Config{Parser: extract.ParserPage, Product: "Fun Run 4"},
		},
	}
}

// LoadSources reads the TOML sources file. Each top-level table is a source
// and the order of the file is preserved.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrSourcesNotFound, path)
		}
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var file map[string]Source
	md, err := toml.Decode(string(data), &file)
	if err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}

	var sources []Source
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) != 1 || seen[key[0]] {
			continue
		}
		name := key[0]
		seen[name] = true

		src := file[name]
		src.Name = name
		sources = append(sources, src)
	}

	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	for i := range sources {
		if err := ValidateSource(&sources[i]); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

// SaveSources writes sources to path in order, one table per source.
func SaveSources(path string, sources []Source) error {
	var buf bytes.Buffer
	for i, src := range sources {
		if i > 0 {
			buf.WriteString("\n")
		}
		if err := toml.NewEncoder(&buf).Encode(map[string]Source{src.Name: src}); err != nil {
			return fmt.Errorf("failed to encode source %s: %w", src.Name, err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadOrCreateSources loads the sources file, writing DefaultSources first
// when it does not exist.
func LoadOrCreateSources(path string) ([]Source, error) {
	sources, err := LoadSources(path)
	if !errors.Is(err, ErrSourcesNotFound) {
		return sources, err
	}
	if err := SaveSources(path, DefaultSources()); err != nil {
		return nil, fmt.Errorf("failed to create default sources file: %w", err)
	}
	return LoadSources(path)
}

// ValidateSource checks URLs and the parser configuration of a source.
func ValidateSource(src *Source) error {
	if len(src.URLs) == 0 {
		return fmt.Errorf("source %s: %w", src.Name, ErrMissingURLs)
	}
	for _, raw := range src.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source %s: %w: %q", src.Name, ErrInvalidURL, raw)
		}
	}
	if _, err := extract.NewParser(src.Config); err != nil {
		return fmt.Errorf("source %s: %w", src.Name, err)
	}
	return nil
}
