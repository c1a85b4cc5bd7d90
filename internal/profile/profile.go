// Package profile describes the page layout of one statement format as data:
// column ranges, boundary markers and record-lead patterns. The extraction
// engine is parameterized by a compiled Profile.
package profile

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"

	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

// Amount rules.
const (
	RuleTrailingPair = "trailing-pair"
	RuleSignedSplit  = "signed-split"
)

// Money token formats.
const (
	FormatUS = "us"
	FormatBR = "br"
)

// AccountRule derives an account key from an account-start line. Key is a
// template expanded with the pattern's submatches (${1}, ${name}).
type AccountRule struct {
	Name          string `json:"name,omitempty" mapstructure:"name"`
	Pattern       string `json:"pattern" mapstructure:"pattern"`
	Key           string `json:"key" mapstructure:"key"`
	CurrencyGroup int    `json:"currencyGroup,omitempty" mapstructure:"currencyGroup"`
	Compact       bool   `json:"compact,omitempty" mapstructure:"compact"`

	re *regexp.Regexp
}

// Label names the rule in traces.
func (a AccountRule) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Pattern
}

// LeadContinuation treats up to Lines record-lead lines after a record lead
// as part of the same record, with plain continuation lines allowed in
// between. Their lead-column text is stored in Column.
type LeadContinuation struct {
	Lines  int    `json:"lines,omitempty" mapstructure:"lines"`
	Column string `json:"column,omitempty" mapstructure:"column"`
}

// Default fills an empty column from another column at finalization.
type Default struct {
	Column string `json:"column" mapstructure:"column"`
	From   string `json:"from" mapstructure:"from"`
}

// AmountRule configures the numeric-token heuristic applied to finalized
// records.
type AmountRule struct {
	Rule          string   `json:"rule" mapstructure:"rule"`
	Source        string   `json:"source,omitempty" mapstructure:"source"`
	Format        string   `json:"format,omitempty" mapstructure:"format"`
	Targets       []string `json:"targets" mapstructure:"targets"`
	FillEmptyOnly bool     `json:"fillEmptyOnly,omitempty" mapstructure:"fillEmptyOnly"`
	Strip         bool     `json:"strip,omitempty" mapstructure:"strip"`
	Reconcile     bool     `json:"reconcile,omitempty" mapstructure:"reconcile"`

	// BalanceSource names a column whose rightmost token is the balance
	// (signed-split only). Source tokens are then all movements.
	BalanceSource string `json:"balanceSource,omitempty" mapstructure:"balanceSource"`
	// DropSource removes Source and BalanceSource from the record once the
	// split is done, unless they are targets themselves.
	DropSource bool `json:"dropSource,omitempty" mapstructure:"dropSource"`
}

// Profile is the layout description of one statement format.
type Profile struct {
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`

	Detect     []Marker `json:"detect,omitempty" mapstructure:"detect"`
	PageFilter []Marker `json:"pageFilter,omitempty" mapstructure:"pageFilter"`

	Columns      []layout.Column `json:"columns" mapstructure:"columns"`
	LeadColumn   string          `json:"leadColumn" mapstructure:"leadColumn"`
	LeadPattern  string          `json:"leadPattern" mapstructure:"leadPattern"`
	RowTolerance float64         `json:"rowTolerance,omitempty" mapstructure:"rowTolerance"`

	AccountStart []AccountRule `json:"accountStart,omitempty" mapstructure:"accountStart"`
	AccountEnd   []Marker      `json:"accountEnd,omitempty" mapstructure:"accountEnd"`
	SectionStart []Marker      `json:"sectionStart,omitempty" mapstructure:"sectionStart"`
	SectionEnd   []Marker      `json:"sectionEnd,omitempty" mapstructure:"sectionEnd"`
	Headers      []Marker      `json:"headers,omitempty" mapstructure:"headers"`

	AccountStartImpliesSection bool `json:"accountStartImpliesSection,omitempty" mapstructure:"accountStartImpliesSection"`
	AccountEndIsTerminal       bool `json:"accountEndIsTerminal,omitempty" mapstructure:"accountEndIsTerminal"`
	LeadOpensSection           bool `json:"leadOpensSection,omitempty" mapstructure:"leadOpensSection"`
	InheritLead                bool `json:"inheritLead,omitempty" mapstructure:"inheritLead"`

	ContinuationColumns []string         `json:"continuationColumns,omitempty" mapstructure:"continuationColumns"`
	LeadContinuation    LeadContinuation `json:"leadContinuation,omitempty" mapstructure:"leadContinuation"`
	Defaults            []Default        `json:"defaults,omitempty" mapstructure:"defaults"`
	Amounts             *AmountRule      `json:"amounts,omitempty" mapstructure:"amounts"`

	compiled     bool
	lead         *regexp.Regexp
	detect       *MarkerSet
	pageFilter   *MarkerSet
	accountEnd   *MarkerSet
	sectionStart *MarkerSet
	sectionEnd   *MarkerSet
	headers      *MarkerSet
	continues    map[string]bool
}

var templateRef = regexp.MustCompile(`\$\{?(\w+)\}?`)

// Compile validates the profile and prepares its matchers. It is safe to
// call more than once.
func (p *Profile) Compile() error {
	if p.compiled {
		return nil
	}
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(p.Name) == "" {
		add("name is required")
	}
	if len(p.Columns) == 0 {
		add("at least one column is required")
	}
	names := make(map[string]bool, len(p.Columns))
	for i, c := range p.Columns {
		switch {
		case strings.TrimSpace(c.Name) == "":
			add("column %d has no name", i)
		case names[c.Name]:
			add("column %q is declared twice", c.Name)
		}
		names[c.Name] = true
		if c.Start >= c.End {
			add("column %q: xStart %.1f must be below xEnd %.1f", c.Name, c.Start, c.End)
		}
	}
	if !names[p.LeadColumn] {
		add("leadColumn %q is not a declared column", p.LeadColumn)
	}

	var err error
	if p.LeadPattern == "" {
		add("leadPattern is required")
	} else if p.lead, err = regexp.Compile(p.LeadPattern); err != nil {
		add("leadPattern: %v", err)
	}

	for i := range p.AccountStart {
		rule := &p.AccountStart[i]
		if rule.re, err = regexp.Compile(rule.Pattern); err != nil {
			add("accountStart %q: %v", rule.Label(), err)
			continue
		}
		if rule.Pattern == "" {
			add("accountStart %d has no pattern", i)
			continue
		}
		if strings.TrimSpace(rule.Key) == "" {
			add("accountStart %q has no key template", rule.Label())
		}
		for _, m := range templateRef.FindAllStringSubmatch(rule.Key, -1) {
			if n, convErr := strconv.Atoi(m[1]); convErr == nil {
				if n > rule.re.NumSubexp() {
					add("accountStart %q: key references group %d, pattern has %d", rule.Label(), n, rule.re.NumSubexp())
				}
			} else if rule.re.SubexpIndex(m[1]) < 0 {
				add("accountStart %q: key references unknown group %q", rule.Label(), m[1])
			}
		}
		if rule.CurrencyGroup > rule.re.NumSubexp() {
			add("accountStart %q: currencyGroup %d out of range", rule.Label(), rule.CurrencyGroup)
		}
	}

	sets := []struct {
		name    string
		markers []Marker
		dst     **MarkerSet
	}{
		{"detect", p.Detect, &p.detect},
		{"pageFilter", p.PageFilter, &p.pageFilter},
		{"accountEnd", p.AccountEnd, &p.accountEnd},
		{"sectionStart", p.SectionStart, &p.sectionStart},
		{"sectionEnd", p.SectionEnd, &p.sectionEnd},
		{"headers", p.Headers, &p.headers},
	}
	for _, s := range sets {
		if *s.dst, err = NewMarkerSet(s.markers); err != nil {
			add("%s: %v", s.name, err)
		}
	}

	p.continues = make(map[string]bool)
	for _, c := range p.ContinuationColumns {
		if !names[c] {
			add("continuationColumns: %q is not a declared column", c)
		}
		p.continues[c] = true
	}
	if lc := p.LeadContinuation; lc.Lines < 0 {
		add("leadContinuation.lines must not be negative")
	} else if lc.Lines > 0 && lc.Column == "" {
		add("leadContinuation.column is required when lines is set")
	}
	for _, d := range p.Defaults {
		if !names[d.Column] || !names[d.From] {
			add("defaults: %q from %q must both be declared columns", d.Column, d.From)
		}
	}
	if a := p.Amounts; a != nil {
		problems = append(problems, a.validate(names)...)
	}
	if p.RowTolerance < 0 {
		add("rowTolerance must not be negative")
	}

	if len(problems) > 0 {
		return &ValidationError{Profile: p.Name, Problems: problems}
	}
	p.compiled = true
	return nil
}

func (a *AmountRule) validate(columns map[string]bool) []string {
	var problems []string
	want := 0
	switch a.Rule {
	case RuleTrailingPair:
		want = 2
	case RuleSignedSplit:
		want = 3
	default:
		problems = append(problems, fmt.Sprintf("amounts.rule %q is not one of %s, %s", a.Rule, RuleTrailingPair, RuleSignedSplit))
	}
	if want > 0 && len(a.Targets) != want {
		problems = append(problems, fmt.Sprintf("amounts.targets: rule %s needs %d targets, got %d", a.Rule, want, len(a.Targets)))
	}
	if a.Source != "" && !columns[a.Source] {
		problems = append(problems, fmt.Sprintf("amounts.source %q is not a declared column", a.Source))
	}
	if a.BalanceSource != "" {
		if a.Rule != RuleSignedSplit {
			problems = append(problems, fmt.Sprintf("amounts.balanceSource is only valid for %s", RuleSignedSplit))
		}
		if !columns[a.BalanceSource] {
			problems = append(problems, fmt.Sprintf("amounts.balanceSource %q is not a declared column", a.BalanceSource))
		}
	}
	if a.DropSource && a.Source == "" {
		problems = append(problems, "amounts.dropSource needs amounts.source")
	}
	switch a.Format {
	case "", FormatUS, FormatBR:
	default:
		problems = append(problems, fmt.Sprintf("amounts.format %q is not one of %s, %s", a.Format, FormatUS, FormatBR))
	}
	return problems
}

// Tolerance returns the line-grouping tolerance.
func (p *Profile) Tolerance() float64 {
	if p.RowTolerance > 0 {
		return p.RowTolerance
	}
	return layout.DefaultTolerance
}

// IsLead reports whether the lead column text starts a new record.
func (p *Profile) IsLead(text string) bool {
	return text != "" && p.lead.MatchString(text)
}

// MatchAccountStart tries the account rules in declaration order and
// returns the key derived by the first one that matches.
func (p *Profile) MatchAccountStart(text string) (models.AccountKey, AccountRule, bool) {
	for _, rule := range p.AccountStart {
		if key, ok := rule.match(text); ok {
			return key, rule, true
		}
	}
	return "", AccountRule{}, false
}

func (a AccountRule) match(text string) (models.AccountKey, bool) {
	if a.re == nil {
		return "", false
	}
	idx := a.re.FindStringSubmatchIndex(text)
	if idx == nil {
		return "", false
	}
	if a.CurrencyGroup > 0 {
		code := strings.ToUpper(strings.TrimSpace(submatch(text, idx, a.CurrencyGroup)))
		if money.GetCurrency(code) == nil {
			return "", false
		}
	}
	key := string(a.re.ExpandString(nil, a.Key, text, idx))
	if a.Compact {
		key = strings.Join(strings.Fields(key), "")
	} else {
		key = strings.Join(strings.Fields(key), " ")
	}
	if key == "" {
		return "", false
	}
	return models.AccountKey(key), true
}

func submatch(text string, idx []int, group int) string {
	if 2*group+1 >= len(idx) || idx[2*group] < 0 {
		return ""
	}
	return text[idx[2*group]:idx[2*group+1]]
}

// MatchSectionStart reports the first section-start marker matching text.
func (p *Profile) MatchSectionStart(text string) (Marker, bool) { return p.sectionStart.Match(text) }

// MatchSectionEnd reports the first section-end marker matching text.
func (p *Profile) MatchSectionEnd(text string) (Marker, bool) { return p.sectionEnd.Match(text) }

// MatchAccountEnd reports the first account-end marker matching text.
func (p *Profile) MatchAccountEnd(text string) (Marker, bool) { return p.accountEnd.Match(text) }

// MatchHeader reports the first header/noise marker matching text.
func (p *Profile) MatchHeader(text string) (Marker, bool) { return p.headers.Match(text) }

// MatchDetect reports whether text identifies this format.
func (p *Profile) MatchDetect(text string) (Marker, bool) { return p.detect.Match(text) }

// KeepPage reports whether a page with the given line texts should be
// processed. Without a page filter every page is kept.
func (p *Profile) KeepPage(lines []string) bool {
	if p.pageFilter.Len() == 0 {
		return true
	}
	for _, l := range lines {
		if _, ok := p.pageFilter.Match(l); ok {
			return true
		}
	}
	return false
}

// Continues reports whether continuation text is appended to column.
func (p *Profile) Continues(column string) bool {
	if len(p.continues) == 0 {
		return true
	}
	return p.continues[column]
}

// ColumnNames returns the declared column names in order.
func (p *Profile) ColumnNames() []string {
	out := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Name
	}
	return out
}
