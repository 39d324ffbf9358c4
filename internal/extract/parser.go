package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Error variables for parser errors
var (
	// ErrNoVersionFound is returned when no version could be extracted from the content
	ErrNoVersionFound = errors.New("could not extract version from content")
	// ErrInvalidParserType is returned when an unknown parser type is configured
	ErrInvalidParserType = errors.New("invalid parser type: must be 'page', 'json', 'regex' or 'html'")
	// ErrJSONPathNotFound is returned when the JSON path does not exist in the document
	ErrJSONPathNotFound = errors.New("JSON path not found in response")
	// ErrInvalidJSONPath is returned when the JSON path syntax is invalid
	ErrInvalidJSONPath = errors.New("invalid JSON path syntax")
	// ErrInvalidRegexPattern is returned when the regex pattern is invalid
	ErrInvalidRegexPattern = errors.New("invalid regex pattern")
	// ErrNoCaptureGroup is returned when the regex pattern has no capture group
	ErrNoCaptureGroup = errors.New("regex pattern must contain at least one capture group")
)

// Parser types accepted in source configuration.
const (
	ParserPage  = "page"
	ParserJSON  = "json"
	ParserRegex = "regex"
	ParserHTML  = "html"
)

// Parser extracts a cleaned version token from fetched content.
type Parser interface {
	// Parse returns a valid version token or an error wrapping ErrNoVersionFound.
	Parse(content []byte) (string, error)
}

// Config describes how versions are extracted for one source.
type Config struct {
	// Parser is the parser type; empty means "page"
	Parser string `toml:"parser,omitempty"`
	// Product is the product name used by the highest-priority page rule
	Product string `toml:"product,omitempty"`
	// Path is the JSON path for the json parser (e.g. "results[0].version")
	Path string `toml:"path,omitempty"`
	// Pattern is the regex for the regex parser, or the post-filter for the html parser
	Pattern string `toml:"pattern,omitempty"`
	// Selector is the CSS selector for the html parser
	Selector string `toml:"selector,omitempty"`
	// XPath is the XPath expression for the html parser
	XPath string `toml:"xpath,omitempty"`
}

// NewParser builds the parser described by cfg.
func NewParser(cfg Config) (Parser, error) {
	switch cfg.Parser {
	case "", ParserPage:
		return &RuleParser{Extractor: NewExtractor(DefaultRules(cfg.Product)...)}, nil
	case ParserJSON:
		if cfg.Path == "" {
			return nil, ErrInvalidJSONPath
		}
		if _, err := parseJSONPath(cfg.Path); err != nil {
			return nil, err
		}
		return &JSONParser{Path: cfg.Path}, nil
	case ParserRegex:
		p, err := NewRegexParser(cfg.Pattern)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ParserHTML:
		p, err := NewHTMLParser(cfg.Selector, cfg.XPath, cfg.Pattern)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: got %q", ErrInvalidParserType, cfg.Parser)
	}
}

// RuleParser runs the ordered page rule cascade.
type RuleParser struct {
	Extractor *Extractor
}

// Parse returns the first rule match in content.
func (p *RuleParser) Parse(content []byte) (string, error) {
	v, ok := p.Extractor.Extract(string(content))
	if !ok {
		return "", ErrNoVersionFound
	}
	return v, nil
}

// JSONParser extracts a version from a JSON document using a path such as
// "results[0].version" (dot notation and array indexing).
type JSONParser struct {
	Path string
}

// Parse navigates the path and cleans the value found there.
func (p *JSONParser) Parse(content []byte) (string, error) {
	if p.Path == "" {
		return "", ErrInvalidJSONPath
	}

	var data interface{}
	if err := json.Unmarshal(content, &data); err != nil {
		return "", fmt.Errorf("%w: failed to parse JSON: %v", ErrNoVersionFound, err)
	}

	result, err := navigateJSONPath(data, p.Path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoVersionFound, err)
	}

	raw, ok := toString(result)
	if !ok {
		return "", fmt.Errorf("%w: value at %q is not a scalar", ErrNoVersionFound, p.Path)
	}

	v, ok := Clean(raw)
	if !ok {
		return "", fmt.Errorf("%w: value %q at %q is not a version", ErrNoVersionFound, raw, p.Path)
	}
	return v, nil
}

type segmentType int

const (
	segmentField segmentType = iota
	segmentIndex
)

type pathSegment struct {
	segType segmentType
	value   string
	index   int
}

// navigateJSONPath walks data following path.
func navigateJSONPath(data interface{}, path string) (interface{}, error) {
	segments, err := parseJSONPath(path)
	if err != nil {
		return nil, err
	}

	current := data
	for _, seg := range segments {
		switch seg.segType {
		case segmentField:
			obj, ok := current.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: expected object at %q", ErrJSONPathNotFound, seg.value)
			}
			val, exists := obj[seg.value]
			if !exists {
				return nil, fmt.Errorf("%w: field %q not found", ErrJSONPathNotFound, seg.value)
			}
			current = val
		case segmentIndex:
			arr, ok := current.([]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: expected array at index %d", ErrJSONPathNotFound, seg.index)
			}
			if seg.index >= len(arr) {
				return nil, fmt.Errorf("%w: array index %d out of bounds (length %d)", ErrJSONPathNotFound, seg.index, len(arr))
			}
			current = arr[seg.index]
		}
	}

	return current, nil
}

// parseJSONPath splits "data.releases[0].tag" into segments.
func parseJSONPath(path string) ([]pathSegment, error) {
	var segments []pathSegment
	remaining := path

	for remaining != "" {
		remaining = strings.TrimPrefix(remaining, ".")
		if remaining == "" {
			break
		}
		if remaining[0] == '[' {
			return nil, fmt.Errorf("%w: unexpected '[' at start", ErrInvalidJSONPath)
		}

		fieldEnd := len(remaining)
		for i, c := range remaining {
			if c == '.' || c == '[' {
				fieldEnd = i
				break
			}
		}
		if fieldEnd == 0 {
			return nil, fmt.Errorf("%w: empty field name", ErrInvalidJSONPath)
		}
		segments = append(segments, pathSegment{segType: segmentField, value: remaining[:fieldEnd]})
		remaining = remaining[fieldEnd:]

		for strings.HasPrefix(remaining, "[") {
			closeBracket := strings.Index(remaining, "]")
			if closeBracket == -1 {
				return nil, fmt.Errorf("%w: unclosed bracket", ErrInvalidJSONPath)
			}
			indexStr := remaining[1:closeBracket]
			index, err := strconv.Atoi(indexStr)
			if err != nil || index < 0 {
				return nil, fmt.Errorf("%w: invalid array index %q", ErrInvalidJSONPath, indexStr)
			}
			segments = append(segments, pathSegment{segType: segmentIndex, index: index})
			remaining = remaining[closeBracket+1:]
		}
	}

	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidJSONPath)
	}
	return segments, nil
}

// toString converts a decoded JSON scalar to a string
func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	default:
		return "", false
	}
}

// RegexParser extracts a version with a single custom pattern. The first capture
// group is cleaned like a rule capture.
type RegexParser struct {
	Pattern  string
	compiled *regexp.Regexp
}

// NewRegexParser compiles pattern and checks it has a capture group.
func NewRegexParser(pattern string) (*RegexParser, error) {
	if pattern == "" {
		return nil, ErrInvalidRegexPattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err)
	}
	if re.NumSubexp() < 1 {
		return nil, ErrNoCaptureGroup
	}
	return &RegexParser{Pattern: pattern, compiled: re}, nil
}

// Parse returns the cleaned first capture group of the first match.
func (p *RegexParser) Parse(content []byte) (string, error) {
	m := p.compiled.FindSubmatch(content)
	if len(m) < 2 {
		return "", fmt.Errorf("%w: pattern %q did not match", ErrNoVersionFound, p.Pattern)
	}
	v, ok := Clean(string(m[1]))
	if !ok {
		return "", fmt.Errorf("%w: capture %q is not a version", ErrNoVersionFound, m[1])
	}
	return v, nil
}
