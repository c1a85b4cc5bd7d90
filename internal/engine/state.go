package engine

import (
	"github.com/insightdelivered/statement-extractor/internal/amounts"
	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// State is the traversal state of one document. The zero value is the
// initial state: no account, no pending record, outside any section.
//
// Pending is never mutated in place; transitions replace it.
type State struct {
	Account   models.AccountKey
	Pending   *models.Record
	InSection bool
	LastLead  string

	// leadRun counts lead-matching lines absorbed into Pending. Plain
	// continuations leave it alone, so wrapped detail lines do not close
	// the window before the value-date line.
	leadRun int
}

// Emission is a finalized record and the account it belongs to.
type Emission struct {
	Account models.AccountKey
	Record  models.Record
}

// Step applies one line to the state and returns the next state, any
// records finalized by the transition and the line's classification.
func Step(p *profile.Profile, s State, line models.Line) (State, []Emission, Decision) {
	d := Classify(p, line.Text())
	var out []Emission

	switch d.Kind {
	case models.KindDiscarded:
		return s, nil, d
	case models.KindAccountStart:
		s, out = finalize(s)
		s.Account = d.Account
		s.LastLead = ""
		if p.AccountStartImpliesSection {
			s.InSection = true
		}
		return s, out, d
	case models.KindSectionStart:
		s.InSection = true
		return s, nil, d
	case models.KindAccountEnd:
		s, out = finalize(s)
		s.InSection = false
		if p.AccountEndIsTerminal {
			s.Account = ""
			s.LastLead = ""
		}
		return s, out, d
	case models.KindSectionEnd:
		s, out = finalize(s)
		s.InSection = false
		return s, out, d
	case models.KindHeader:
		return s, nil, d
	}
	return merge(p, s, line)
}

// Flush finalizes the pending record at end of document.
func Flush(s State) (State, []Emission) {
	return finalize(s)
}

func finalize(s State) (State, []Emission) {
	if s.Pending == nil {
		return s, nil
	}
	em := Emission{Account: s.Account, Record: *s.Pending}
	s.Pending = nil
	s.leadRun = 0
	return s, []Emission{em}
}

// merge decides whether a content line starts a record, continues the
// pending one, or is discarded.
func merge(p *profile.Profile, s State, line models.Line) (State, []Emission, Decision) {
	fields := layout.ExtractColumns(line, p.Columns)
	lead := fieldValue(fields, p.LeadColumn)

	if p.IsLead(lead) {
		if s.Pending != nil && s.InSection && s.leadRun < p.LeadContinuation.Lines {
			rec := *s.Pending
			for _, f := range fields {
				if f.Name == p.LeadColumn {
					rec = rec.With(p.LeadContinuation.Column, f.Value)
					continue
				}
				if p.Continues(f.Name) {
					rec = rec.Appended(f.Name, f.Value)
				}
			}
			s.Pending = &rec
			s.leadRun++
			return s, nil, Decision{Kind: models.KindContinuation}
		}
		if !s.InSection && p.LeadOpensSection && s.Account != "" {
			s.InSection = true
		}
		if !s.InSection || s.Account == "" {
			return s, nil, Decision{Kind: models.KindDiscarded}
		}
		return startRecord(s, line.Page, fields, lead)
	}

	if !s.InSection || s.Account == "" {
		return s, nil, Decision{Kind: models.KindDiscarded}
	}

	if p.InheritLead && s.LastLead != "" && hasAmount(p, line.Text()) {
		fields = withValue(fields, p.LeadColumn, s.LastLead)
		return startRecord(s, line.Page, fields, s.LastLead)
	}

	if s.Pending == nil {
		return s, nil, Decision{Kind: models.KindDiscarded}
	}
	rec := *s.Pending
	for _, f := range fields {
		if f.Value != "" && p.Continues(f.Name) {
			rec = rec.Appended(f.Name, f.Value)
		}
	}
	s.Pending = &rec
	return s, nil, Decision{Kind: models.KindContinuation}
}

func startRecord(s State, page int, fields []models.Field, lead string) (State, []Emission, Decision) {
	s, out := finalize(s)
	rec := models.NewRecord(page, fields)
	s.Pending = &rec
	s.LastLead = lead
	s.leadRun = 0
	return s, out, Decision{Kind: models.KindRecordLead}
}

func hasAmount(p *profile.Profile, text string) bool {
	format := profile.FormatUS
	if p.Amounts != nil && p.Amounts.Format != "" {
		format = p.Amounts.Format
	}
	return len(amounts.Scan(text, format)) > 0
}

func fieldValue(fields []models.Field, name string) string {
	for _, f := range fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

func withValue(fields []models.Field, name, value string) []models.Field {
	out := make([]models.Field, len(fields))
	copy(out, fields)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
		}
	}
	return out
}
