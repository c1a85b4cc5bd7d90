// Package engine turns assembled lines into records. Classification and
// state transitions are pure functions over State; Machine drives them over a
// whole document.
package engine

import (
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// Decision is the outcome of classifying one line.
type Decision struct {
	Kind    models.LineKind
	Marker  string
	Account models.AccountKey
}

// Classify recognizes control lines. Checks run in a fixed priority order:
// account start, section start, account end, section end, header. Any other
// line is content and is handed to the merger.
func Classify(p *profile.Profile, text string) Decision {
	if text == "" {
		return Decision{Kind: models.KindDiscarded}
	}
	if key, rule, ok := p.MatchAccountStart(text); ok {
		return Decision{Kind: models.KindAccountStart, Marker: rule.Label(), Account: key}
	}
	if m, ok := p.MatchSectionStart(text); ok {
		return Decision{Kind: models.KindSectionStart, Marker: m.Label()}
	}
	if m, ok := p.MatchAccountEnd(text); ok {
		return Decision{Kind: models.KindAccountEnd, Marker: m.Label()}
	}
	if m, ok := p.MatchSectionEnd(text); ok {
		return Decision{Kind: models.KindSectionEnd, Marker: m.Label()}
	}
	if m, ok := p.MatchHeader(text); ok {
		return Decision{Kind: models.KindHeader, Marker: m.Label()}
	}
	return Decision{}
}

// IsControl reports whether the decision consumed the line.
func (d Decision) IsControl() bool {
	return d.Kind != ""
}
