// Package amounts assigns money tokens found in record text to value,
// balance or inflow/outflow columns. The assignment is a heuristic: every
// decision is graded with a confidence level and explained in record notes.
package amounts

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// Token is one money amount found in text.
type Token struct {
	Text     string
	Value    decimal.Decimal
	Negative bool
	Start    int
	End      int
}

var patterns = map[string]*regexp.Regexp{
	profile.FormatUS: regexp.MustCompile(`(-)?(\d{1,3}(?:,\d{3})+|\d+)\.\d{2}(-)?`),
	profile.FormatBR: regexp.MustCompile(`(-)?(\d{1,3}(?:\.\d{3})+|\d+),\d{2}(-)?`),
}

// Scan returns the money tokens of text in left-to-right order. Matches
// glued to other digits or separators (dates such as 31.12.2024, account
// numbers) are skipped.
func Scan(text, format string) []Token {
	re, ok := patterns[format]
	if !ok {
		re = patterns[profile.FormatUS]
		format = profile.FormatUS
	}
	var out []Token
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		if !isBoundary(text, start, end) {
			continue
		}
		raw := text[start:end]
		v, err := Parse(raw, format)
		if err != nil {
			continue
		}
		out = append(out, Token{
			Text:     raw,
			Value:    v,
			Negative: strings.HasPrefix(raw, "-") || strings.HasSuffix(raw, "-"),
			Start:    start,
			End:      end,
		})
	}
	return out
}

func isBoundary(text string, start, end int) bool {
	if start > 0 {
		switch c := text[start-1]; {
		case c >= '0' && c <= '9', c == '.', c == ',', c == '/':
			return false
		}
	}
	if end < len(text) {
		c := text[end]
		if c >= '0' && c <= '9' || c == '/' {
			return false
		}
		if (c == '.' || c == ',') && end+1 < len(text) && text[end+1] >= '0' && text[end+1] <= '9' {
			return false
		}
	}
	return true
}

// Parse converts a money token to a decimal. A leading or trailing minus
// makes the value negative.
func Parse(raw, format string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if strings.HasSuffix(s, "-") {
		neg = true
		s = s[:len(s)-1]
	}
	switch format {
	case profile.FormatBR:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	if neg {
		v = v.Neg()
	}
	return v, nil
}
