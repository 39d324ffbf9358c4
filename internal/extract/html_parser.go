package extract

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
)

// Error variables for HTML parser errors
var (
	// ErrInvalidXPath is returned when the XPath expression syntax is invalid
	ErrInvalidXPath = errors.New("invalid XPath expression")
	// ErrNoElementFound is returned when no element matches the selector/xpath
	ErrNoElementFound = errors.New("no element found matching selector")
	// ErrNoSelectorOrXPath is returned when neither selector nor xpath is provided
	ErrNoSelectorOrXPath = errors.New("either selector or xpath must be provided")
)

// HTMLParser extracts a version from the text of an element located with a CSS
// selector (goquery) or an XPath expression (htmlquery). An optional regex narrows
// the element text before cleaning.
type HTMLParser struct {
	Selector string
	XPath    string
	Regex    string
	compiled *regexp.Regexp
}

// NewHTMLParser creates an HTMLParser. At least one of selector or xpath must be set.
func NewHTMLParser(selector, xpath, regex string) (*HTMLParser, error) {
	if selector == "" && xpath == "" {
		return nil, ErrNoSelectorOrXPath
	}

	p := &HTMLParser{Selector: selector, XPath: xpath, Regex: regex}
	if regex != "" {
		re, err := regexp.Compile(regex)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRegexPattern, err)
		}
		p.compiled = re
	}
	return p, nil
}

// Parse locates the element, applies the optional regex and cleans the result.
// The CSS selector takes precedence when both are configured.
func (p *HTMLParser) Parse(content []byte) (string, error) {
	var text string
	var err error

	switch {
	case p.Selector != "":
		text, err = p.parseWithCSS(content)
	case p.XPath != "":
		text, err = p.parseWithXPath(content)
	default:
		return "", ErrNoSelectorOrXPath
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoVersionFound, err)
	}

	if p.compiled != nil {
		m := p.compiled.FindStringSubmatch(text)
		if m == nil {
			return "", fmt.Errorf("%w: pattern %q did not match element text", ErrNoVersionFound, p.Regex)
		}
		if len(m) > 1 && m[1] != "" {
			text = m[1]
		} else {
			text = m[0]
		}
	}

	v, ok := Clean(strings.TrimSpace(text))
	if !ok {
		return "", fmt.Errorf("%w: element text %q is not a version", ErrNoVersionFound, strings.TrimSpace(text))
	}
	return v, nil
}

// parseWithCSS returns the text of the first element matching the selector.
func (p *HTMLParser) parseWithCSS(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	selection := doc.Find(p.Selector)
	if selection.Length() == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElementFound, p.Selector)
	}
	return selection.First().Text(), nil
}

// parseWithXPath returns the inner text of the first node matching the expression.
func (p *HTMLParser) parseWithXPath(content []byte) (string, error) {
	doc, err := htmlquery.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	nodes, err := htmlquery.QueryAll(doc, p.XPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidXPath, err)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoElementFound, p.XPath)
	}
	return htmlquery.InnerText(nodes[0]), nil
}
