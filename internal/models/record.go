package models

import (
	"encoding/json"
	"strings"
)

// Confidence grades how a heuristic assigned numeric tokens to a record.
type Confidence string

const (
	ConfidenceUnset  Confidence = ""
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

var confidenceRank = map[Confidence]int{
	ConfidenceUnset:  -1,
	ConfidenceNone:   0,
	ConfidenceLow:    1,
	ConfidenceMedium: 2,
	ConfidenceHigh:   3,
}

// Lower returns the weaker of two confidence levels.
func (c Confidence) Lower(other Confidence) Confidence {
	if confidenceRank[other] < confidenceRank[c] {
		return other
	}
	return c
}

// Field is one named column value of a record.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AccountKey identifies the bucket a record belongs to.
type AccountKey string

// Record is an ordered mapping from column name to accumulated text.
//
// Records have value semantics: every modifier returns a new Record and never
// writes to the receiver's backing arrays. Once a record has been stored in a
// DocumentResult it is never modified again.
type Record struct {
	fields     []Field
	page       int
	confidence Confidence
	notes      []string
}

// NewRecord builds a record for a lead line found on page.
func NewRecord(page int, fields []Field) Record {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Record{fields: cp, page: page}
}

// Page returns the page of the record's lead line.
func (r Record) Page() int { return r.page }

// Confidence returns the heuristic confidence, or ConfidenceUnset.
func (r Record) Confidence() Confidence { return r.confidence }

// Notes returns a copy of the heuristic notes.
func (r Record) Notes() []string {
	if len(r.notes) == 0 {
		return nil
	}
	out := make([]string, len(r.notes))
	copy(out, r.notes)
	return out
}

// Len returns the number of columns.
func (r Record) Len() int { return len(r.fields) }

// Get returns the value of the named column, or "" when absent.
func (r Record) Get(name string) string {
	for _, f := range r.fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Has reports whether the record has the named column.
func (r Record) Has(name string) bool {
	for _, f := range r.fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Fields returns a copy of the ordered fields.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Columns returns the column names in order.
func (r Record) Columns() []string {
	out := make([]string, len(r.fields))
	for i, f := range r.fields {
		out[i] = f.Name
	}
	return out
}

// Without returns a copy without the named column.
func (r Record) Without(name string) Record {
	if !r.Has(name) {
		return r
	}
	out := r.clone()
	out.fields = out.fields[:0]
	for _, f := range r.fields {
		if f.Name != name {
			out.fields = append(out.fields, f)
		}
	}
	return out
}

// With returns a copy with the named column set to value. Unknown columns
// are appended at the end.
func (r Record) With(name, value string) Record {
	out := r.clone()
	for i := range out.fields {
		if out.fields[i].Name == name {
			out.fields[i].Value = value
			return out
		}
	}
	out.fields = append(out.fields, Field{Name: name, Value: value})
	return out
}

// Appended returns a copy with text appended to the named column, separated
// by one space. An empty accumulated value takes text without a separator.
func (r Record) Appended(name, text string) Record {
	text = strings.TrimSpace(text)
	if text == "" {
		return r
	}
	cur := r.Get(name)
	if cur == "" {
		return r.With(name, text)
	}
	return r.With(name, cur+" "+text)
}

// Assessed returns a copy carrying the given confidence and extra notes.
func (r Record) Assessed(c Confidence, notes ...string) Record {
	out := r.clone()
	out.confidence = c
	if len(notes) > 0 {
		out.notes = append(out.notes, notes...)
	}
	return out
}

func (r Record) clone() Record {
	out := Record{page: r.page, confidence: r.confidence}
	out.fields = make([]Field, len(r.fields), len(r.fields)+1)
	copy(out.fields, r.fields)
	if len(r.notes) > 0 {
		out.notes = make([]string, len(r.notes))
		copy(out.notes, r.notes)
	}
	return out
}

type recordJSON struct {
	Page       int        `json:"page"`
	Confidence Confidence `json:"confidence,omitempty"`
	Notes      []string   `json:"notes,omitempty"`
	Fields     []Field    `json:"fields"`
}

// MarshalJSON keeps column order by encoding fields as a list.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(recordJSON{
		Page:       r.page,
		Confidence: r.confidence,
		Notes:      r.notes,
		Fields:     r.Fields(),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Record) UnmarshalJSON(b []byte) error {
	var v recordJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Record{fields: v.Fields, page: v.Page, confidence: v.Confidence, notes: v.Notes}
	return nil
}
