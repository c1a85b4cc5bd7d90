package extractor

import (
	"strings"
	"unicode"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// textQuality returns the ratio of plainly readable characters (ASCII
// letters and digits, Latin-1 letters, whitespace, common punctuation and
// currency signs) to all characters. Glyphs from fonts without a usable
// encoding decode to private-use or symbol runes and pull the ratio down.
func textQuality(text string) float64 {
	total, readable := 0, 0
	for _, r := range text {
		total++
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || unicode.IsPunct(r)):
			readable++
		case unicode.Is(unicode.Latin, r) && r <= 0x17F:
			readable++
		case strings.ContainsRune("$£€%&@#+=*<>|", r):
			readable++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(readable) / float64(total)
}

// commonWords appear in virtually every statement, in English or Portuguese.
// Text containing none of them is most likely mis-decoded.
var commonWords = []string{
	"bank", "account", "balance", "date", "payment", "statement",
	"total", "amount", "credit", "debit", "transaction", "transfer",
	"opening", "closing", "page", "period", "value", "currency",
	"conta", "saldo", "data", "valor", "extrato", "lançamentos",
}

func containsCommonWords(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range commonWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func pagesText(pages []models.Page) string {
	var b strings.Builder
	for _, p := range pages {
		for _, f := range p.Fragments {
			b.WriteString(f.Text)
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// IsReadable reports whether extracted pages hold enough real text: more
// than 50 characters, over 60% of them readable, and at least one word
// expected on a statement.
func IsReadable(pages []models.Page) bool {
	text := pagesText(pages)
	if len(strings.TrimSpace(text)) <= 50 {
		return false
	}
	if textQuality(text) <= 0.6 {
		return false
	}
	return containsCommonWords(text)
}
