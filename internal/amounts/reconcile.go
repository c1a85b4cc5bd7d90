package amounts

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

var balanceTolerance = decimal.RequireFromString("0.015")

// Reconcile checks that each record's balance follows from the previous
// balance and the record's value, in document order. A value without a sign
// may be a debit, so both directions are accepted. Records whose balance
// cannot be explained have their confidence lowered and a note added;
// records are never dropped or reordered.
func Reconcile(rule *profile.AmountRule, records []models.Record) []models.Record {
	if rule == nil || !rule.Reconcile || rule.Rule != profile.RuleTrailingPair || len(records) < 2 {
		return records
	}
	valueCol, balanceCol := rule.Targets[0], rule.Targets[1]

	out := make([]models.Record, len(records))
	copy(out, records)

	prev, havePrev := parseCell(records[0].Get(balanceCol), rule.Format)
	for i := 1; i < len(out); i++ {
		bal, haveBal := parseCell(out[i].Get(balanceCol), rule.Format)
		val, haveVal := parseCell(out[i].Get(valueCol), rule.Format)
		if havePrev && haveBal && haveVal {
			switch classify(prev, val, bal) {
			case "debit":
				if !val.IsNegative() {
					out[i] = out[i].Assessed(out[i].Confidence(), "debit inferred from balance")
				}
			case "":
				out[i] = out[i].Assessed(
					out[i].Confidence().Lower(models.ConfidenceLow),
					fmt.Sprintf("balance %s does not follow previous balance %s and value %s",
						bal.StringFixed(2), prev.StringFixed(2), val.StringFixed(2)),
				)
			}
		}
		prev, havePrev = bal, haveBal
	}
	return out
}

// classify reports whether bal follows from prev by adding ("credit") or
// subtracting ("debit") the absolute value.
func classify(prev, val, bal decimal.Decimal) string {
	abs := val.Abs()
	creditDiff := prev.Add(val).Sub(bal).Abs()
	debitDiff := prev.Sub(abs).Sub(bal).Abs()
	credit := creditDiff.LessThan(balanceTolerance)
	debit := debitDiff.LessThan(balanceTolerance)
	switch {
	case credit && debit:
		if debitDiff.LessThanOrEqual(creditDiff) {
			return "debit"
		}
		return "credit"
	case credit:
		return "credit"
	case debit:
		return "debit"
	}
	return ""
}

func parseCell(s, format string) (decimal.Decimal, bool) {
	tokens := Scan(s, format)
	if len(tokens) != 1 {
		return decimal.Zero, false
	}
	return tokens[0].Value, true
}
