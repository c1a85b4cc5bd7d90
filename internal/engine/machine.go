package engine

import (
	"log/slog"
	"sort"

	"github.com/insightdelivered/statement-extractor/internal/amounts"
	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// Options tune a Machine.
type Options struct {
	Logger *slog.Logger
	// Trace records a DebugLine for every assembled line.
	Trace bool
	// Tolerance overrides the profile's row tolerance when positive.
	Tolerance float64
}

// Machine runs one profile over whole documents. It holds no per-document
// state and is safe for concurrent use.
type Machine struct {
	profile *profile.Profile
	opts    Options
	log     *slog.Logger
}

// New returns a Machine for p, compiling it if needed.
func New(p *profile.Profile, opts Options) (*Machine, error) {
	if err := p.Compile(); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Machine{profile: p, opts: opts, log: log.With("profile", p.Name)}, nil
}

func (m *Machine) tolerance() float64 {
	if m.opts.Tolerance > 0 {
		return m.opts.Tolerance
	}
	return m.profile.Tolerance()
}

// Run processes pages in page order and returns the records bucketed by
// account. Pages without text are skipped with a warning; the pending
// record carries across page boundaries.
func (m *Machine) Run(file string, pages []models.Page) *models.DocumentResult {
	p := m.profile
	log := m.log.With("file", file)
	res := models.NewDocumentResult(file, p.Name)
	res.Pages = len(pages)

	ordered := make([]models.Page, len(pages))
	copy(ordered, pages)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Number < ordered[j].Number })

	var (
		s     State
		out   []Emission
		d     Decision
		index int
	)
	for _, page := range ordered {
		lines := layout.AssembleLines(page.Fragments, m.tolerance())
		if len(lines) == 0 {
			log.Warn("page has no text, skipping", "page", page.Number)
			res.SkippedPages = append(res.SkippedPages, page.Number)
			continue
		}
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = l.Text()
		}
		if !p.KeepPage(texts) {
			log.Debug("page filtered out", "page", page.Number)
			continue
		}

		for i, line := range lines {
			s, out, d = Step(p, s, line)
			m.collect(res, out)
			if m.opts.Trace {
				res.Trace = append(res.Trace, models.DebugLine{
					Page:    page.Number,
					Index:   index,
					Y:       line.Y,
					Text:    texts[i],
					Kind:    traceKind(d),
					Marker:  d.Marker,
					Account: string(s.Account),
				})
			}
			index++
		}
	}
	_, out = Flush(s)
	m.collect(res, out)

	for _, key := range res.Accounts() {
		res.Replace(key, amounts.Reconcile(p.Amounts, res.Records(key)))
	}

	if res.Empty() {
		log.Warn("no records found; layout not recognized by profile")
	} else {
		log.Debug("document processed", "accounts", len(res.Accounts()), "records", res.Len())
	}
	return res
}

// collect finishes emitted records and stores them.
func (m *Machine) collect(res *models.DocumentResult, out []Emission) {
	for _, em := range out {
		rec := applyDefaults(m.profile.Defaults, em.Record)
		rec = amounts.Apply(m.profile.Amounts, rec)
		res.Add(em.Account, rec)
	}
}

func applyDefaults(defaults []profile.Default, r models.Record) models.Record {
	for _, d := range defaults {
		if r.Get(d.Column) == "" {
			if v := r.Get(d.From); v != "" {
				r = r.With(d.Column, v)
			}
		}
	}
	return r
}

func traceKind(d Decision) models.LineKind {
	if d.Kind == "" {
		return models.KindDiscarded
	}
	return d.Kind
}
