package catalog

import (
	"fmt"
	"strings"
)

// Annotate returns a copy of newDoc where every item added by changes carries
// MarkerField = true, and every item in Sections with hidden = true has it
// set to false.
func Annotate(newDoc Document, changes *ChangeSet) Document {
	out := newDoc.Clone()
	if out == nil {
		out = Document{}
	}

	if changes != nil {
		for section, items := range changes.Added {
			sec, ok := out[section].(map[string]interface{})
			if !ok {
				continue
			}
			for id := range items {
				if rec, ok := sec[id].(map[string]interface{}); ok {
					rec[MarkerField] = true
				}
			}
		}
	}

	for _, section := range Sections {
		sec, ok := out[section].(map[string]interface{})
		if !ok {
			continue
		}
		for _, v := range sec {
			rec, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			if hidden, ok := rec["hidden"].(bool); ok && hidden {
				rec["hidden"] = false
			}
		}
	}
	return out
}

// AnnotateByIDs returns a copy of doc with MarkerField = true on each listed
// id. Each id is looked up in Sections order and only its first occurrence
// is marked. matched holds "id: title (section)" and unmatched the ids found
// nowhere, both in input order.
func AnnotateByIDs(doc Document, ids []string) (out Document, matched []string, unmatched []string) {
	out = doc.Clone()
	if out == nil {
		out = Document{}
	}
	matched = []string{}
	unmatched = []string{}

	for _, id := range ids {
		found := false
		for _, section := range Sections {
			sec, ok := out[section].(map[string]interface{})
			if !ok {
				continue
			}
			v, ok := sec[id]
			if !ok {
				continue
			}
			if rec, ok := v.(map[string]interface{}); ok {
				rec[MarkerField] = true
			}
			matched = append(matched, fmt.Sprintf("%s: %s (%s)", id, field(v, "title"), section))
			found = true
			break
		}
		if !found {
			unmatched = append(unmatched, id)
		}
	}
	return out, matched, unmatched
}

// ParseItemIDs splits a user-supplied id list. Commas separate ids when
// present, otherwise whitespace does. Blank entries are dropped.
func ParseItemIDs(raw string) []string {
	var parts []string
	if strings.Contains(raw, ",") {
		parts = strings.Split(raw, ",")
	} else {
		parts = strings.Fields(raw)
	}

	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
