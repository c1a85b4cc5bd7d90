package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

// fakeSource serves prepared pages by document name.
type fakeSource struct {
	pages  map[string][]models.Page
	errs   map[string]error
	panics map[string]string
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Extract(_ context.Context, name string, _ []byte) ([]models.Page, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if msg, ok := f.panics[name]; ok {
		panic(msg)
	}
	return f.pages[name], nil
}

// statement lays out one row per entry. A row starting with a date puts
// the date in the first column and the rest in the second.
func statement(rows ...string) []models.Page {
	p := models.Page{Number: 1}
	for i, r := range rows {
		y := 780 - float64(i)*12
		desc := r
		if len(r) > 11 && r[2] == '/' && r[5] == '/' && r[10] == ' ' {
			p.Fragments = append(p.Fragments, models.Fragment{Text: r[:10], X: 10, Y: y, Page: 1})
			desc = r[11:]
		}
		p.Fragments = append(p.Fragments, models.Fragment{Text: desc, X: 110, Y: y, Page: 1})
	}
	return []models.Page{p}
}

func testRegistry(t *testing.T) *profile.Registry {
	t.Helper()
	p := &profile.Profile{
		Name:   "sample",
		Detect: []profile.Marker{{Contains: []string{"Sample Bank"}}},
		Columns: []layout.Column{
			{Name: "Date", Start: 0, End: 100},
			{Name: "Description", Start: 100, End: 400},
		},
		LeadColumn:                 "Date",
		LeadPattern:                `^\d{2}/\d{2}/\d{4}$`,
		AccountStart:               []profile.AccountRule{{Pattern: `Account (\d+)`, Key: "${1}"}},
		AccountStartImpliesSection: true,
	}
	require.NoError(t, p.Compile())
	reg := profile.NewRegistry()
	reg.Register(p)
	return reg
}

func descriptions(recs []models.SourcedRecord) []string {
	var out []string
	for _, r := range recs {
		out = append(out, r.File+":"+r.Record.Get("Description"))
	}
	return out
}

func TestRun_PreservesBatchOrder(t *testing.T) {
	src := &fakeSource{pages: map[string][]models.Page{
		"f1.pdf": statement("Sample Bank", "Account 9", "01/01/2024 Rent", "02/01/2024 Power"),
		"f2.pdf": statement("Sample Bank", "Account 9", "01/02/2024 Rent"),
	}}
	r := &Runner{Source: src, Registry: testRegistry(t), Workers: 2}

	res, err := r.Run(context.Background(), "sample", []Document{{Name: "f1.pdf"}, {Name: "f2.pdf"}})
	require.NoError(t, err)

	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, "sample", res.Profile)
	assert.Equal(t, []string{"f1.pdf", "f2.pdf"}, res.Files)
	assert.Equal(t, []string{"f1.pdf:Rent", "f1.pdf:Power", "f2.pdf:Rent"}, descriptions(res.Records("9")))
	assert.Equal(t, []models.AccountFileCount{
		{Account: "9", File: "f1.pdf", Records: 2},
		{Account: "9", File: "f2.pdf", Records: 1},
	}, res.Counts)
}

func TestRun_FailingDocumentIsExcluded(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]models.Page{
			"f1.pdf": statement("Account 1", "01/01/2024 One"),
			"f3.pdf": statement("Account 1", "03/01/2024 Three"),
		},
		errs: map[string]error{"f2.pdf": fmt.Errorf("open: %w", extractor.ErrEncrypted)},
	}
	m := metrics.New()
	r := &Runner{Source: src, Registry: testRegistry(t), Workers: 3, Metrics: m}

	res, err := r.Run(context.Background(), "sample", []Document{{Name: "f1.pdf"}, {Name: "f2.pdf"}, {Name: "f3.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"f1.pdf:One", "f3.pdf:Three"}, descriptions(res.Records("1")))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "f2.pdf", res.Failed[0].File)
	assert.Equal(t, extractor.StageExtract, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error, "encrypted")

	n, err := testutil.GatherAndCount(m.Registry(), "statement_extractor_documents_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series for ok and one for failed")
}

func TestRun_PanickingSourceFailsOnlyThatDocument(t *testing.T) {
	src := &fakeSource{
		pages: map[string][]models.Page{
			"f1.pdf": statement("Account 1", "01/01/2024 One"),
			"f3.pdf": statement("Account 1", "03/01/2024 Three"),
		},
		panics: map[string]string{"f2.pdf": "boom"},
	}
	r := &Runner{Source: src, Registry: testRegistry(t), Workers: 3}

	res, err := r.Run(context.Background(), "sample", []Document{{Name: "f1.pdf"}, {Name: "f2.pdf"}, {Name: "f3.pdf"}})
	require.NoError(t, err)

	assert.Equal(t, []string{"f1.pdf", "f3.pdf"}, res.Files)
	assert.Equal(t, []string{"f1.pdf:One", "f3.pdf:Three"}, descriptions(res.Records("1")))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "f2.pdf", res.Failed[0].File)
	assert.Equal(t, extractor.StageExtract, res.Failed[0].Stage)
	assert.Contains(t, res.Failed[0].Error, "panic: boom")
}

func TestRun_UnknownProfile(t *testing.T) {
	r := &Runner{Source: &fakeSource{}, Registry: testRegistry(t)}

	_, err := r.Run(context.Background(), "sampel", nil)

	assert.True(t, errors.Is(err, profile.ErrUnknownProfile))
}

func TestRun_DetectsProfilePerDocument(t *testing.T) {
	src := &fakeSource{pages: map[string][]models.Page{
		"known.pdf":   statement("Sample Bank statement", "Account 3", "01/01/2024 Fee"),
		"unknown.pdf": statement("Other Bank", "Account 3", "01/01/2024 Fee"),
	}}
	r := &Runner{Source: src, Registry: testRegistry(t), Trace: true}

	res, err := r.Run(context.Background(), "", []Document{{Name: "known.pdf"}, {Name: "unknown.pdf"}})
	require.NoError(t, err)

	assert.Empty(t, res.Profile)
	assert.Equal(t, []string{"known.pdf:Fee"}, descriptions(res.Records("3")))
	require.Len(t, res.Failed, 1)
	assert.Equal(t, extractor.StageProfile, res.Failed[0].Stage)
	require.Len(t, res.Traces, 1)
	assert.Equal(t, "known.pdf", res.Traces[0].File)
}

func TestRun_BoundedConcurrencyKeepsInputOrder(t *testing.T) {
	src := &fakeSource{pages: map[string][]models.Page{}}
	var docs []Document
	for i := 0; i < 20; i++ {
		name := fmt.Sprintf("f%02d.pdf", i)
		src.pages[name] = statement("Account 5", fmt.Sprintf("01/01/2024 Item %02d", i))
		docs = append(docs, Document{Name: name})
	}
	r := &Runner{Source: src, Registry: testRegistry(t), Workers: 3}

	res, err := r.Run(context.Background(), "sample", docs)
	require.NoError(t, err)

	recs := res.Records("5")
	require.Len(t, recs, 20)
	for i, rec := range recs {
		assert.Equal(t, fmt.Sprintf("Item %02d", i), rec.Record.Get("Description"))
	}
	assert.LessOrEqual(t, src.peak.Load(), int32(3))
}

func TestConsolidate(t *testing.T) {
	empty := models.NewDocumentResult("empty.pdf", "sample")
	empty.SkippedPages = []int{2}
	withRecords := models.NewDocumentResult("a.pdf", "sample")
	withRecords.Add("X", models.NewRecord(1, []models.Field{{Name: "Description", Value: "same"}}))
	duplicate := models.NewDocumentResult("b.pdf", "sample")
	duplicate.Add("X", models.NewRecord(1, []models.Field{{Name: "Description", Value: "same"}}))

	res := Consolidate("batch-1", []Outcome{
		{File: "empty.pdf", Result: empty},
		{File: "a.pdf", Result: withRecords},
		{File: "bad.pdf", Err: extractor.Wrap("bad.pdf", extractor.StageExtract, extractor.ErrNoPages)},
		{File: "b.pdf", Result: duplicate},
	})

	assert.Equal(t, "batch-1", res.BatchID)
	assert.Equal(t, []string{"empty.pdf", "a.pdf", "b.pdf"}, res.Files)
	assert.Equal(t, []string{"a.pdf:same", "b.pdf:same"}, descriptions(res.Records("X")), "no deduplication")
	assert.Equal(t, []models.FailedDocument{{File: "bad.pdf", Stage: extractor.StageExtract, Error: "PDF has no pages"}}, res.Failed)
	assert.Len(t, res.Warnings, 2)
}
