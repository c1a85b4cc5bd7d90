package layout

import (
	"strings"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// Column is a named horizontal range [Start, End) on the page.
type Column struct {
	Name  string  `json:"name" mapstructure:"name"`
	Start float64 `json:"xStart" mapstructure:"xStart"`
	End   float64 `json:"xEnd" mapstructure:"xEnd"`
}

// Contains reports whether x falls in the column's half-open range.
func (c Column) Contains(x float64) bool {
	return x >= c.Start && x < c.End
}

// ColumnText returns the trimmed, space-joined text of every fragment whose
// x falls in the column. Line fragments are already ordered by x.
func ColumnText(line models.Line, col Column) string {
	var parts []string
	for _, f := range line.Fragments {
		if !col.Contains(f.X) {
			continue
		}
		if s := strings.TrimSpace(f.Text); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// ExtractColumns maps a line onto every column independently. A fragment
// can land in zero, one or several columns depending on the ranges.
func ExtractColumns(line models.Line, cols []Column) []models.Field {
	out := make([]models.Field, len(cols))
	for i, c := range cols {
		out[i] = models.Field{Name: c.Name, Value: ColumnText(line, c)}
	}
	return out
}
