// Package version implements ordering of dot-separated numeric release tokens.
//
// Tokens such as "2.31.0" are compared segment by segment as integers, left to right,
// with missing trailing segments treated as zero. There is no pre-release or build
// metadata handling.
package version

import (
	"errors"
	"fmt"
	"strings"
)

// ErrParse is returned when a token is empty or has a non-numeric segment.
var ErrParse = errors.New("malformed version token")

// Version is a parsed token. Each segment is a run of ASCII digits with leading
// zeros removed ("0" for zero), which keeps comparison exact for any segment length.
type Version []string

// Parse splits token on "." and validates every segment.
func Parse(token string) (Version, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrParse)
	}

	parts := strings.Split(token, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: empty segment %d in %q", ErrParse, i, token)
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("%w: segment %q in %q is not numeric", ErrParse, p, token)
			}
		}
		trimmed := strings.TrimLeft(p, "0")
		if trimmed == "" {
			trimmed = "0"
		}
		v[i] = trimmed
	}

	return v, nil
}

// Valid reports whether token parses.
func Valid(token string) bool {
	_, err := Parse(token)
	return err == nil
}

// String joins the normalized segments back together.
func (v Version) String() string {
	return strings.Join(v, ".")
}

// Compare orders two parsed versions.
// Returns: -1 if v < other, 0 if equal after zero padding, 1 if v > other
func (v Version) Compare(other Version) int {
	maxLen := len(v)
	if len(other) > maxLen {
		maxLen = len(other)
	}

	for i := 0; i < maxLen; i++ {
		a, b := "0", "0"
		if i < len(v) {
			a = v[i]
		}
		if i < len(other) {
			b = other[i]
		}
		if cmp := compareSegment(a, b); cmp != 0 {
			return cmp
		}
	}
	return 0
}

// compareSegment compares two normalized digit strings numerically
func compareSegment(a, b string) int {
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Compare compares two version tokens.
// Returns: -1 if a < b, 0 if a == b, 1 if a > b, or an error wrapping ErrParse
func Compare(a, b string) (int, error) {
	va, err := Parse(a)
	if err != nil {
		return 0, err
	}
	vb, err := Parse(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}

// MustCompare is like Compare but panics on a malformed token. Callers use it only
// for tokens that already passed validation.
func MustCompare(a, b string) int {
	cmp, err := Compare(a, b)
	if err != nil {
		panic(err)
	}
	return cmp
}

// Max returns the highest of the given tokens. The first token wins ties.
// Returns an empty string when tokens is empty.
func Max(tokens ...string) (string, error) {
	best := ""
	for _, t := range tokens {
		if best == "" {
			if _, err := Parse(t); err != nil {
				return "", err
			}
			best = t
			continue
		}
		cmp, err := Compare(t, best)
		if err != nil {
			return "", err
		}
		if cmp > 0 {
			best = t
		}
	}
	return best, nil
}
