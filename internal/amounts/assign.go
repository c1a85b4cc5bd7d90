package amounts

import (
	"fmt"
	"strings"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// Apply runs the profile's amount rule on a finalized record. A nil rule
// returns the record unchanged.
func Apply(rule *profile.AmountRule, r models.Record) models.Record {
	if rule == nil {
		return r
	}
	switch rule.Rule {
	case profile.RuleTrailingPair:
		r = trailingPair(rule, r)
	case profile.RuleSignedSplit:
		r = signedSplit(rule, r)
	default:
		return r
	}
	if rule.DropSource {
		r = dropSources(rule, r)
	}
	return r
}

func dropSources(rule *profile.AmountRule, r models.Record) models.Record {
	keep := make(map[string]bool, len(rule.Targets))
	for _, t := range rule.Targets {
		keep[t] = true
	}
	for _, col := range []string{rule.Source, rule.BalanceSource} {
		if col != "" && !keep[col] {
			r = r.Without(col)
		}
	}
	return r
}

// sourceText is the rule's source column, or every column that is neither a
// target nor the balance source, joined.
func sourceText(rule *profile.AmountRule, r models.Record) string {
	if rule.Source != "" {
		return r.Get(rule.Source)
	}
	targets := make(map[string]bool, len(rule.Targets))
	for _, t := range rule.Targets {
		targets[t] = true
	}
	if rule.BalanceSource != "" {
		targets[rule.BalanceSource] = true
	}
	var parts []string
	for _, f := range r.Fields() {
		if f.Value != "" && !targets[f.Name] {
			parts = append(parts, f.Value)
		}
	}
	return strings.Join(parts, " ")
}

// trailingPair assigns the last two tokens to value and balance.
func trailingPair(rule *profile.AmountRule, r models.Record) models.Record {
	valueCol, balanceCol := rule.Targets[0], rule.Targets[1]
	if rule.FillEmptyOnly && r.Get(valueCol) != "" && r.Get(balanceCol) != "" {
		return r
	}

	text := sourceText(rule, r)
	tokens := Scan(text, rule.Format)

	var (
		used  []Token
		conf  models.Confidence
		notes []string
	)
	switch n := len(tokens); {
	case n == 0:
		return r.Assessed(models.ConfidenceNone, "no amount found")
	case n == 1:
		used = tokens
		conf = models.ConfidenceLow
		notes = append(notes, "single amount taken as value; balance not found")
	case n == 2:
		used = tokens
		conf = models.ConfidenceHigh
	default:
		used = tokens[n-2:]
		conf = models.ConfidenceMedium
		notes = append(notes, fmt.Sprintf("%d amounts found; last two taken as value and balance", n))
	}

	out := r
	set := func(col, val string) {
		if rule.FillEmptyOnly && out.Get(col) != "" {
			return
		}
		out = out.With(col, val)
	}
	set(valueCol, used[0].Text)
	if len(used) == 2 {
		set(balanceCol, used[1].Text)
	} else if !out.Has(balanceCol) {
		out = out.With(balanceCol, "")
	}
	if rule.Strip && rule.Source != "" {
		out = out.With(rule.Source, strip(text, used))
	}
	return out.Assessed(conf, notes...)
}

// signedSplit treats the rightmost token as the running balance and sorts
// the others into inflow or outflow by their sign. With a balance source
// the balance is taken from that column instead, so a lone token there is
// never mistaken for a movement.
func signedSplit(rule *profile.AmountRule, r models.Record) models.Record {
	inCol, outCol, balanceCol := rule.Targets[0], rule.Targets[1], rule.Targets[2]
	text := sourceText(rule, r)
	tokens := Scan(text, rule.Format)

	var in, out, balance string
	var conf models.Confidence
	var notes []string
	movement := func(t Token) {
		if t.Negative {
			if out == "" {
				out = t.Text
			}
		} else if in == "" {
			in = t.Text
		}
	}

	var positioned []Token
	if rule.BalanceSource != "" {
		positioned = Scan(r.Get(rule.BalanceSource), rule.Format)
	}

	switch n := len(tokens); {
	case len(positioned) > 0:
		for _, t := range tokens {
			movement(t)
		}
		balance = positioned[len(positioned)-1].Text
		conf = models.ConfidenceHigh
		if n > 1 {
			conf = models.ConfidenceLow
			notes = append(notes, fmt.Sprintf("%d movements found; first of each sign kept", n))
		}
	case n == 0:
		return r.Assessed(models.ConfidenceNone, "no amount found")
	case n == 1:
		movement(tokens[0])
		conf = models.ConfidenceMedium
		notes = append(notes, "single amount taken as movement; balance not found")
	case n == 2:
		movement(tokens[0])
		balance = tokens[1].Text
		conf = models.ConfidenceHigh
	default:
		for _, t := range tokens[:n-1] {
			movement(t)
		}
		balance = tokens[n-1].Text
		conf = models.ConfidenceLow
		notes = append(notes, fmt.Sprintf("%d amounts found; rightmost taken as balance", n))
	}

	res := r.With(inCol, in).With(outCol, out).With(balanceCol, balance)
	if rule.Strip && rule.Source != "" {
		res = res.With(rule.Source, strip(text, tokens))
	}
	return res.Assessed(conf, notes...)
}

// strip removes the used tokens from text and collapses whitespace.
func strip(text string, used []Token) string {
	var b strings.Builder
	last := 0
	for _, t := range used {
		b.WriteString(text[last:t.Start])
		b.WriteByte(' ')
		last = t.End
	}
	b.WriteString(text[last:])
	return strings.Join(strings.Fields(b.String()), " ")
}
