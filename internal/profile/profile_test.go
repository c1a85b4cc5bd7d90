package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

func minimalProfile() *Profile {
	return &Profile{
		Name:        "test",
		Columns:     []layout.Column{{Name: "Date", Start: 0, End: 80}, {Name: "Description", Start: 80, End: 300}},
		LeadColumn:  "Date",
		LeadPattern: `\d{2}/\d{2}/\d{4}`,
	}
}

func TestMarkerSet_FirstDeclaredWins(t *testing.T) {
	set, err := NewMarkerSet([]Marker{
		{Name: "closing", Contains: []string{"closing"}},
		{Name: "closing-balance", Contains: []string{"closing", "balance"}},
	})
	require.NoError(t, err)

	m, ok := set.Match("Closing Balance 1,000.00")
	require.True(t, ok)
	assert.Equal(t, "closing", m.Name)

	reversed, err := NewMarkerSet([]Marker{
		{Name: "closing-balance", Contains: []string{"closing", "balance"}},
		{Name: "closing", Contains: []string{"closing"}},
	})
	require.NoError(t, err)
	m, ok = reversed.Match("Closing Balance 1,000.00")
	require.True(t, ok)
	assert.Equal(t, "closing-balance", m.Name)
}

func TestMarkerSet_RequiresAllTermsAndPattern(t *testing.T) {
	set, err := NewMarkerSet([]Marker{
		{Name: "header", Contains: []string{"date", "information", "balance"}},
		{Name: "total", Contains: []string{"total"}, Pattern: `^Total\b`},
	})
	require.NoError(t, err)

	tests := []struct {
		text string
		want string
	}{
		{"Date Information Debits Credits Balance", "header"},
		{"Date Information", ""},
		{"Total 1,234.00", "total"},
		{"Subtotal 1,234.00", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			m, ok := set.Match(tt.text)
			assert.Equal(t, tt.want != "", ok)
			assert.Equal(t, tt.want, m.Name)
		})
	}
}

func TestMarkerSet_SharedTerms(t *testing.T) {
	set, err := NewMarkerSet([]Marker{
		{Name: "a", Contains: []string{"balance", "opening"}},
		{Name: "b", Contains: []string{"balance", "closing"}},
	})
	require.NoError(t, err)

	m, ok := set.Match("CLOSING BALANCE")
	require.True(t, ok)
	assert.Equal(t, "b", m.Name)
}

func TestMarkerSet_PatternOnly(t *testing.T) {
	set, err := NewMarkerSet([]Marker{{Pattern: `(?i)page \d+ of \d+`}})
	require.NoError(t, err)
	m, ok := set.Match("Page 2 of 9")
	assert.True(t, ok)
	assert.Equal(t, `(?i)page \d+ of \d+`, m.Label())
}

func TestMarkerSet_Invalid(t *testing.T) {
	_, err := NewMarkerSet([]Marker{{Name: "empty"}})
	assert.Error(t, err)

	_, err = NewMarkerSet([]Marker{{Pattern: "("}})
	assert.Error(t, err)
}

func TestProfile_CompileReportsEveryProblem(t *testing.T) {
	p := &Profile{
		Name:        "broken",
		Columns:     []layout.Column{{Name: "Date", Start: 50, End: 10}, {Name: "Date", Start: 0, End: 1}},
		LeadColumn:  "Missing",
		LeadPattern: "(",
		AccountStart: []AccountRule{
			{Pattern: `ACCOUNT (\d+)`, Key: "${1}_${2}"},
			{Pattern: `X (\d+)`, Key: "$1_X"},
		},
		ContinuationColumns: []string{"Nope"},
		Amounts:             &AmountRule{Rule: "guess", Targets: []string{"a"}},
	}

	err := p.Compile()

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "broken", verr.Profile)
	assert.GreaterOrEqual(t, len(verr.Problems), 7)
	assert.Contains(t, err.Error(), "leadColumn")
	assert.Contains(t, err.Error(), "group 2")
	assert.Contains(t, err.Error(), `unknown group "1_X"`)
}

func TestProfile_CompileChecksBalanceSource(t *testing.T) {
	p := minimalProfile()
	p.Amounts = &AmountRule{Rule: RuleTrailingPair, BalanceSource: "Saldo", DropSource: true, Targets: []string{"Value", "Balance"}}

	err := p.Compile()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "balanceSource is only valid for signed-split")
	assert.Contains(t, err.Error(), `balanceSource "Saldo" is not a declared column`)
	assert.Contains(t, err.Error(), "dropSource needs amounts.source")

	ok := minimalProfile()
	ok.Columns = append(ok.Columns, layout.Column{Name: "Saldo", Start: 300, End: 400})
	ok.Amounts = &AmountRule{Rule: RuleSignedSplit, Source: "Description", BalanceSource: "Saldo", DropSource: true, Targets: []string{"in", "out", "balance"}}
	assert.NoError(t, ok.Compile())
}

func TestProfile_MatchAccountStart(t *testing.T) {
	p := minimalProfile()
	p.AccountStart = []AccountRule{
		{Name: "account", Pattern: `ACCOUNT\s+(\d+)\s+([A-Z]{3})`, Key: "${1}_${2}", CurrencyGroup: 2},
		{Name: "fallback", Pattern: `ACCOUNT\s+(\d+)`, Key: "${1}"},
		{Name: "iban", Pattern: `IBAN\s+(CH\d{2}(?:\s?[\dA-Z]{1,4}){4,8})`, Key: "${1}", Compact: true},
	}
	require.NoError(t, p.Compile())

	tests := []struct {
		text     string
		wantKey  models.AccountKey
		wantRule string
	}{
		{"ACCOUNT 123 USD", "123_USD", "account"},
		{"ACCOUNT 123 XYZ", "123", "fallback"},
		{"IBAN CH93 0076 2011 6238 5295 7", "CH9300762011623852957", "iban"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			key, rule, ok := p.MatchAccountStart(tt.text)
			require.True(t, ok)
			assert.Equal(t, tt.wantKey, key)
			assert.Equal(t, tt.wantRule, rule.Label())
		})
	}

	_, _, ok := p.MatchAccountStart("Opening balance")
	assert.False(t, ok)
}

func TestProfile_ContinuesDefaultsToAllColumns(t *testing.T) {
	p := minimalProfile()
	require.NoError(t, p.Compile())
	assert.True(t, p.Continues("Description"))
	assert.True(t, p.Continues("Date"))

	q := minimalProfile()
	q.ContinuationColumns = []string{"Description"}
	require.NoError(t, q.Compile())
	assert.True(t, q.Continues("Description"))
	assert.False(t, q.Continues("Date"))
}

func TestProfile_KeepPage(t *testing.T) {
	p := minimalProfile()
	p.PageFilter = []Marker{{Contains: []string{"Account Statement"}}}
	require.NoError(t, p.Compile())

	assert.True(t, p.KeepPage([]string{"UBS", "Account Statement 2024"}))
	assert.False(t, p.KeepPage([]string{"Portfolio overview"}))
}

func TestProfile_Tolerance(t *testing.T) {
	p := minimalProfile()
	assert.Equal(t, layout.DefaultTolerance, p.Tolerance())
	p.RowTolerance = 2.5
	assert.Equal(t, 2.5, p.Tolerance())
}

func TestBuiltin_AllProfilesCompile(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	assert.Equal(t, []string{"btg", "itau-cash", "itau-cash2", "itau-movimentacao", "juliusbaer", "ubs"}, reg.Names())
	for _, p := range reg.List() {
		assert.NotEmpty(t, p.Columns, p.Name)
		assert.True(t, p.IsLead(leadSample(p.Name)), p.Name)
	}

	cash, err := reg.Get("ITAU-CASH")
	require.NoError(t, err)
	assert.True(t, cash.AccountEndIsTerminal)
	cash2, err := reg.Get("itau-cash2")
	require.NoError(t, err)
	assert.False(t, cash2.AccountEndIsTerminal)
	assert.True(t, cash2.LeadOpensSection)
}

func leadSample(name string) string {
	switch name {
	case "btg":
		return "02/01/24"
	case "ubs":
		return "02.01.24"
	case "juliusbaer":
		return "02.01.2024"
	case "itau-movimentacao":
		return "2/01"
	default:
		return "02/01/2024"
	}
}

func TestRegistry_GetUnknownSuggests(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	_, err = reg.Get("itau")
	require.ErrorIs(t, err, ErrUnknownProfile)

	var unknown *UnknownError
	require.True(t, errors.As(err, &unknown))
	assert.Contains(t, unknown.Suggestions, "itau-cash")
}

func TestRegistry_BuiltinReturnsIndependentCopies(t *testing.T) {
	a, err := Builtin()
	require.NoError(t, err)
	p := minimalProfile()
	require.NoError(t, p.Compile())
	a.Register(p)

	b, err := Builtin()
	require.NoError(t, err)
	_, err = b.Get("test")
	assert.ErrorIs(t, err, ErrUnknownProfile)
}

func TestRegistry_LoadDirOverridesByName(t *testing.T) {
	dir := t.TempDir()
	custom := `
name: ubs
description: local override
columns:
  - {name: Date, xStart: 0, xEnd: 60}
  - {name: Text, xStart: 60, xEnd: 500}
leadColumn: Date
leadPattern: '\d{2}\.\d{2}\.\d{4}'
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ubs.yml"), []byte(custom), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	reg, err := Builtin()
	require.NoError(t, err)
	require.NoError(t, reg.LoadDir(dir))

	p, err := reg.Get("ubs")
	require.NoError(t, err)
	assert.Equal(t, "local override", p.Description)
	assert.Equal(t, []string{"Date", "Text"}, p.ColumnNames())
	assert.Equal(t, "ubs", reg.Names()[len(reg.Names())-1], "position kept")
}

func TestParse_SchemaViolation(t *testing.T) {
	_, err := Parse([]byte("name: Bad Name\ncolumns: []\nleadColumn: x\nleadPattern: y\n"), "yaml")

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestRegistry_Detect(t *testing.T) {
	reg, err := Builtin()
	require.NoError(t, err)

	page := func(lines ...string) models.Page {
		pg := models.Page{Number: 1}
		for i, l := range lines {
			pg.Fragments = append(pg.Fragments, models.Fragment{Text: l, X: 40, Y: 800 - float64(i)*12, Page: 1})
		}
		return pg
	}

	p, err := reg.Detect([]models.Page{page("Account Balance MC12345 - CHF as of 31.12.2024")})
	require.NoError(t, err)
	assert.Equal(t, "juliusbaer", p.Name)

	p, err = reg.Detect([]models.Page{page("Itaú", "Conta Corrente | Movimentação")})
	require.NoError(t, err)
	assert.Equal(t, "itau-movimentacao", p.Name)

	_, err = reg.Detect([]models.Page{page("Nothing to see")})
	assert.ErrorIs(t, err, ErrNoProfileDetected)
}
