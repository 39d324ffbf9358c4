// Package catalog compares store catalog documents and marks items in them.
//
// A catalog document is a JSON object whose fixed sections (animals, skins,
// hats, glasses, chests, feet, powerups) each map item ids to item records.
// Records are open-ended objects; only title, rarity and hidden are
// interpreted. Every operation works on copies and never mutates its input.
package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Sections lists the compared sections in their fixed order.
var Sections = []string{"animals", "skins", "hats", "glasses", "chests", "feet", "powerups"}

// MarkerField is set to true on items that are newly revealed.
const MarkerField = "preOwned"

// Error variables for document errors
var (
	// ErrInvalidDocument is returned when input is not a JSON object
	ErrInvalidDocument = errors.New("catalog document must be a JSON object")
)

// Document is a decoded catalog. Numbers are kept as json.Number.
type Document map[string]interface{}

// Item is a single item record.
type Item = map[string]interface{}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// Section returns the item map of a section. A missing section, or one
// that is not an object, reads as empty.
func (d Document) Section(name string) map[string]interface{} {
	if m, ok := d[name].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{}
}

// Lookup returns the record of id in section.
func (d Document) Lookup(section, id string) (interface{}, bool) {
	v, ok := d.Section(section)[id]
	return v, ok
}

// Clone returns a deep copy of any decoded JSON value.
func Clone(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return cloneMap(t)
	case Document:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = Clone(e)
		}
		return out
	default:
		// strings, json.Number, float64, bool and nil are immutable
		return t
	}
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = Clone(v)
	}
	return out
}

// Decode reads a document. Numbers keep their exact text.
func Decode(r io.Reader) (Document, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, ErrInvalidDocument
	}
	return Document(m), nil
}

// Encode writes the document as indented JSON without HTML escaping.
func Encode(w io.Writer, d Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(map[string]interface{}(d))
}

// LoadFile decodes the document stored at path.
func LoadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// SaveFile encodes the document to path, creating parent directories.
func SaveFile(path string, d Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, d); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}
