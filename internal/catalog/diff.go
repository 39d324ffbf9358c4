package catalog

import (
	"encoding/json"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Modification holds both records of an item that changed.
type Modification struct {
	Old interface{}
	New interface{}
}

// ChangeSet is the result of comparing two documents. A section appears in
// Added, Removed or Modified only when it has at least one item there.
type ChangeSet struct {
	Added    map[string]map[string]interface{}
	Removed  map[string]map[string]interface{}
	Modified map[string]map[string]Modification
	// Summary has one "<Verb> <count> <section>" line per non-empty group,
	// in section order and added, removed, modified within a section.
	Summary []string
}

// equalOpts compares numbers by value so 1.0 and 1 are the same.
var equalOpts = cmp.Options{
	cmp.Comparer(func(a, b json.Number) bool {
		x, okA := new(big.Rat).SetString(a.String())
		y, okB := new(big.Rat).SetString(b.String())
		if !okA || !okB {
			return a == b
		}
		return x.Cmp(y) == 0
	}),
}

// Equal reports whether two records are structurally equal.
func Equal(a, b interface{}) bool {
	return cmp.Equal(a, b, equalOpts)
}

// Compare computes the changes from oldDoc to newDoc over Sections.
func Compare(oldDoc, newDoc Document) *ChangeSet {
	cs := &ChangeSet{
		Added:    make(map[string]map[string]interface{}),
		Removed:  make(map[string]map[string]interface{}),
		Modified: make(map[string]map[string]Modification),
	}

	for _, section := range Sections {
		oldItems := oldDoc.Section(section)
		newItems := newDoc.Section(section)

		added := make(map[string]interface{})
		for id, rec := range newItems {
			if _, ok := oldItems[id]; !ok {
				added[id] = Clone(rec)
			}
		}

		removed := make(map[string]interface{})
		modified := make(map[string]Modification)
		for id, oldRec := range oldItems {
			newRec, ok := newItems[id]
			if !ok {
				removed[id] = Clone(oldRec)
				continue
			}
			if !Equal(oldRec, newRec) {
				modified[id] = Modification{Old: Clone(oldRec), New: Clone(newRec)}
			}
		}

		if len(added) > 0 {
			cs.Added[section] = added
			cs.Summary = append(cs.Summary, fmt.Sprintf("Added %d %s", len(added), section))
		}
		if len(removed) > 0 {
			cs.Removed[section] = removed
			cs.Summary = append(cs.Summary, fmt.Sprintf("Removed %d %s", len(removed), section))
		}
		if len(modified) > 0 {
			cs.Modified[section] = modified
			cs.Summary = append(cs.Summary, fmt.Sprintf("Modified %d %s", len(modified), section))
		}
	}
	return cs
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && len(c.Modified) == 0
}

// AddedCount returns the number of added items across all sections.
func (c *ChangeSet) AddedCount() int {
	n := 0
	for _, items := range c.Added {
		n += len(items)
	}
	return n
}

// AddedIDs returns the added ids of a section, sorted.
func (c *ChangeSet) AddedIDs(section string) []string {
	return sortedKeys(c.Added[section])
}

// RemovedIDs returns the removed ids of a section, sorted.
func (c *ChangeSet) RemovedIDs(section string) []string {
	return sortedKeys(c.Removed[section])
}

// ModifiedIDs returns the modified ids of a section, sorted.
func (c *ChangeSet) ModifiedIDs(section string) []string {
	return sortedKeys(c.Modified[section])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SectionDetail lists added items of one section for display.
type SectionDetail struct {
	Section string
	Count   int
	// Lines is empty when Count exceeds the limit passed to AddedDetails
	Lines []string
}

// AddedDetails describes added items per section as "`id`: title (Rarity: r)".
// Sections with more than limit items get only a count; limit <= 0 means no limit.
func (c *ChangeSet) AddedDetails(limit int) []SectionDetail {
	var out []SectionDetail
	for _, section := range Sections {
		items := c.Added[section]
		if len(items) == 0 {
			continue
		}
		d := SectionDetail{Section: section, Count: len(items)}
		if limit <= 0 || len(items) <= limit {
			for _, id := range sortedKeys(items) {
				d.Lines = append(d.Lines, fmt.Sprintf("`%s`: %s (Rarity: %s)", id, field(items[id], "title"), field(items[id], "rarity")))
			}
		}
		out = append(out, d)
	}
	return out
}

// field renders a record field, or "Unknown" when it is absent or null.
func field(rec interface{}, name string) string {
	m, ok := rec.(map[string]interface{})
	if !ok {
		return "Unknown"
	}
	v, ok := m[name]
	if !ok || v == nil {
		return "Unknown"
	}
	return fmt.Sprint(v)
}

// RecordDiff renders a line diff between two records encoded as indented JSON.
// Unchanged lines start with two spaces, removed with "- " and added with "+ ".
func RecordDiff(oldRec, newRec interface{}) string {
	a, _ := json.MarshalIndent(oldRec, "", "  ")
	b, _ := json.MarshalIndent(newRec, "", "  ")

	dmp := diffmatchpatch.New()
	c1, c2, lines := dmp.DiffLinesToChars(string(a)+"\n", string(b)+"\n")
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(c1, c2, false), lines)

	var sb strings.Builder
	for _, d := range diffs {
		prefix := "  "
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(line)
		}
	}
	return sb.String()
}
