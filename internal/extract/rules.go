// Package extract pulls release version tokens out of fetched store pages.
//
// The main entry point is the ordered rule cascade: a fixed list of case-insensitive
// patterns tried in priority order, where earlier rules carry stronger textual cues
// (product name, "Version" labels) than later ones (bare numbers, "vX.Y" prefixes).
// Sources that publish structured data can use the JSON, regex or HTML parsers instead.
package extract

import (
	"regexp"
	"strings"

	"github.com/obentoo/storewatch/internal/version"
)

// Rule is a single extraction pattern. The first capture group holds the raw version.
type Rule struct {
	// Name identifies the rule in logs and tests
	Name string
	// Pattern is matched case-insensitively against the page text
	Pattern *regexp.Regexp
}

// Apply runs the rule against text. Only the first match of the pattern is
// considered; if its capture does not clean up to a valid token the rule misses.
func (r Rule) Apply(text string) (string, bool) {
	m := r.Pattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	return Clean(m[1])
}

// genericRules are the rules that follow the product rule, in priority order.
var genericRules = []Rule{
	{Name: "version-label", Pattern: regexp.MustCompile(`(?i)Version\s*([\d.]+)`)},
	{Name: "triplet", Pattern: regexp.MustCompile(`(?i)(\d+\.\d+\.\d+)`)},
	{Name: "version-span-pair", Pattern: regexp.MustCompile(`(?i)Version\s*</span>\s*<span[^>]*>([^<]+)</span>`)},
	{Name: "version-span-class", Pattern: regexp.MustCompile(`(?i)<span[^>]*class="[^"]*version[^"]*"[^>]*>([^<]+)</span>`)},
	{Name: "json-field", Pattern: regexp.MustCompile(`(?i)"version":\s*"([^"]+)"`)},
	{Name: "version-label-spaced", Pattern: regexp.MustCompile(`(?i)Version\s+([\d.]+)`)},
	{Name: "v-prefix", Pattern: regexp.MustCompile(`(?i)v([\d.]+)`)},
	{Name: "version-colon", Pattern: regexp.MustCompile(`(?i)Version:\s*([\d.]+)`)},
	{Name: "version-div", Pattern: regexp.MustCompile(`(?i)<div[^>]*version[^>]*>([^<]+)</div>`)},
}

// ProductRule matches the product name followed by a version, e.g. "Fun Run 4 2.31.0".
func ProductRule(product string) Rule {
	return Rule{
		Name:    "product",
		Pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(product) + `\s+([\d.]+)`),
	}
}

// DefaultRules returns the rule list in priority order. The product rule comes first
// and is left out when product is empty.
func DefaultRules(product string) []Rule {
	rules := make([]Rule, 0, len(genericRules)+1)
	if strings.TrimSpace(product) != "" {
		rules = append(rules, ProductRule(strings.TrimSpace(product)))
	}
	return append(rules, genericRules...)
}

// Clean keeps only digits and dots of raw and trims dots at either end.
// It reports false when nothing usable is left.
func Clean(raw string) (string, bool) {
	var b strings.Builder
	for _, c := range raw {
		if (c >= '0' && c <= '9') || c == '.' {
			b.WriteRune(c)
		}
	}
	cleaned := strings.Trim(b.String(), ".")
	if cleaned == "" || !version.Valid(cleaned) {
		return "", false
	}
	return cleaned, true
}

// Extractor applies an ordered rule list.
type Extractor struct {
	rules []Rule
}

// NewExtractor creates an extractor over the given rules. With no rules it uses
// DefaultRules without a product rule.
func NewExtractor(rules ...Rule) *Extractor {
	if len(rules) == 0 {
		rules = DefaultRules("")
	}
	return &Extractor{rules: rules}
}

// Rules returns the rules in priority order.
func (e *Extractor) Rules() []Rule {
	return e.rules
}

// Extract returns the cleaned capture of the first rule that matches text.
func (e *Extractor) Extract(text string) (string, bool) {
	v, _, ok := e.ExtractRule(text)
	return v, ok
}

// ExtractRule is like Extract and also names the rule that matched.
func (e *Extractor) ExtractRule(text string) (string, string, bool) {
	for _, r := range e.rules {
		if v, ok := r.Apply(text); ok {
			return v, r.Name, true
		}
	}
	return "", "", false
}

// Best extracts from every page and returns the highest version with the index of
// the page it came from. Equal versions keep the earliest page.
func (e *Extractor) Best(pages [][]byte) (string, int, bool) {
	best, bestIdx := "", -1
	for i, page := range pages {
		v, ok := e.Extract(string(page))
		if !ok {
			continue
		}
		// Both tokens passed Clean, so they parse.
		if best == "" || version.MustCompare(v, best) > 0 {
			best, bestIdx = v, i
		}
	}
	return best, bestIdx, best != ""
}
