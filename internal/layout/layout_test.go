package layout

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

func frag(text string, x, y float64) models.Fragment {
	return models.Fragment{Text: text, X: x, Y: y, Page: 1}
}

func lineTexts(lines []models.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text()
	}
	return out
}

func TestAssembleLines_OrdersTopToBottomLeftToRight(t *testing.T) {
	frags := []models.Fragment{
		frag("100.00", 300, 700.2),
		frag("Closing Balance", 40, 680),
		frag("01/01/2024", 40, 699.8),
		frag("Deposit", 100, 700),
		frag("ACCOUNT 123 USD", 40, 720),
	}

	lines := AssembleLines(frags, 1.0)

	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ACCOUNT 123 USD", "01/01/2024 Deposit 100.00", "Closing Balance"}, lineTexts(lines))
	assert.Equal(t, 1, lines[0].Page)
	assert.Greater(t, lines[0].Y, lines[1].Y)
}

func TestAssembleLines_SeparatesFragmentsBeyondTolerance(t *testing.T) {
	lines := AssembleLines([]models.Fragment{frag("a", 10, 100), frag("b", 20, 102)}, 1.0)
	assert.Len(t, lines, 2)

	lines = AssembleLines([]models.Fragment{frag("a", 10, 100), frag("b", 20, 102)}, 4.0)
	assert.Len(t, lines, 1)
}

func TestAssembleLines_EmptyInput(t *testing.T) {
	assert.Empty(t, AssembleLines(nil, 1.0))
}

func TestAssembleLines_DefaultToleranceForNonPositive(t *testing.T) {
	lines := AssembleLines([]models.Fragment{frag("a", 10, 100.2), frag("b", 20, 99.9)}, 0)
	require.Len(t, lines, 1)
	assert.Equal(t, "a b", lines[0].Text())
}

func TestAssembleLines_OrderIndependent(t *testing.T) {
	faker := gofakeit.New(42)

	var frags []models.Fragment
	for row := 0; row < 12; row++ {
		y := 700 - float64(row)*14 + faker.Float64Range(-0.3, 0.3)
		for col := 0; col < 6; col++ {
			frags = append(frags, frag(faker.Word(), float64(col)*80+faker.Float64Range(0, 10), y))
		}
	}
	// duplicates at identical x must still be ordered deterministically
	frags = append(frags, frag("zz", 5, 700), frag("aa", 5, 700))

	want := AssembleLines(append([]models.Fragment(nil), frags...), 1.0)

	total := 0
	for _, l := range want {
		total += len(l.Fragments)
		for i := 1; i < len(l.Fragments); i++ {
			assert.LessOrEqual(t, l.Fragments[i-1].X, l.Fragments[i].X)
		}
	}
	assert.Equal(t, len(frags), total, "no fragment dropped or duplicated")

	for i := 0; i < 20; i++ {
		shuffled := append([]models.Fragment(nil), frags...)
		faker.ShuffleAnySlice(shuffled)
		assert.Equal(t, want, AssembleLines(shuffled, 1.0))
	}
}

func TestExtractColumns(t *testing.T) {
	cols := []Column{
		{Name: "Date", Start: 0, End: 80},
		{Name: "Description", Start: 80, End: 300},
		{Name: "Amount", Start: 300, End: 400},
		{Name: "Balance", Start: 400, End: 500},
	}
	line := models.Line{Fragments: []models.Fragment{
		frag("01/01/2024", 40, 700),
		frag("Wire", 80, 700),
		frag("Transfer", 110, 700),
		frag("500.00", 300, 700),
	}}

	got := ExtractColumns(line, cols)

	assert.Equal(t, []models.Field{
		{Name: "Date", Value: "01/01/2024"},
		{Name: "Description", Value: "Wire Transfer"},
		{Name: "Amount", Value: "500.00"},
		{Name: "Balance", Value: ""},
	}, got)
	assert.Equal(t, got, ExtractColumns(line, cols), "deterministic")
}

func TestExtractColumns_OverlappingRangesShareFragments(t *testing.T) {
	cols := []Column{{Name: "Wide", Start: 0, End: 200}, {Name: "Narrow", Start: 50, End: 100}}
	line := models.Line{Fragments: []models.Fragment{frag("x", 60, 1)}}

	got := ExtractColumns(line, cols)
	assert.Equal(t, "x", got[0].Value)
	assert.Equal(t, "x", got[1].Value)
}

func TestColumn_HalfOpenRange(t *testing.T) {
	c := Column{Start: 10, End: 20}
	assert.True(t, c.Contains(10))
	assert.False(t, c.Contains(20))
}

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"nbsp", "1\u00a0234,56", "1 234,56"},
		{"collapse", "  Wire \t Transfer  ", "Wire Transfer"},
		{"control", "Ac\x00me\u200b", "Acme"},
		{"compose", "Movimentac\u0327a\u0303o", "Movimenta\u00e7\u00e3o"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}
