// Package layout turns positioned fragments into ordered lines and maps line
// segments onto named column ranges.
package layout

import (
	"math"
	"sort"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// DefaultTolerance is the y bucket size used when a profile does not set one.
const DefaultTolerance = 1.0

// AssembleLines groups one page's fragments into lines.
//
// Each fragment's y is rounded to a multiple of tolerance; fragments in the
// same bucket form a line. Lines are returned top of page first (descending
// y) and fragments within a line by ascending x. Fragments whose y differs by
// tolerance or more never share a bucket. The grouping and ordering do not
// depend on the order of frags.
func AssembleLines(frags []models.Fragment, tolerance float64) []models.Line {
	if len(frags) == 0 {
		return nil
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	rows := make(map[int64][]models.Fragment)
	for _, f := range frags {
		key := int64(math.Round(f.Y / tolerance))
		rows[key] = append(rows[key], f)
	}

	keys := make([]int64, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] > keys[j] })

	lines := make([]models.Line, 0, len(keys))
	for _, k := range keys {
		items := rows[k]
		sortFragments(items)
		lines = append(lines, models.Line{
			Page:      items[0].Page,
			Y:         float64(k) * tolerance,
			Fragments: items,
		})
	}
	return lines
}

// sortFragments orders by x, then text, then y so the result is a total
// order independent of input order.
func sortFragments(items []models.Fragment) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Text != b.Text {
			return a.Text < b.Text
		}
		return a.Y < b.Y
	})
}
