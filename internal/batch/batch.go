// Package batch runs the extraction pipeline over several documents and
// consolidates their records by account.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/insightdelivered/statement-extractor/internal/engine"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/metrics"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
)

const tracerName = "github.com/insightdelivered/statement-extractor/internal/batch"

// Document is one named input file.
type Document struct {
	Name string
	Data []byte
}

// Outcome is the result of processing one document: either a result or
// the error that excluded it.
type Outcome struct {
	File   string
	Result *models.DocumentResult
	Err    error
}

// Runner processes documents concurrently. Each document gets its own
// engine state; nothing is shared between workers but the read-only
// profiles.
type Runner struct {
	Source    extractor.Source
	Registry  *profile.Registry
	Workers   int
	Timeout   time.Duration
	Trace     bool
	Tolerance float64
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
	Tracer    trace.Tracer
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer == nil {
		return otel.Tracer(tracerName)
	}
	return r.Tracer
}

// Run processes docs with the named profile, or detects the profile per
// document when profileName is empty. Per-document failures are reported in
// the result; only an unknown profile name is returned as an error.
func (r *Runner) Run(ctx context.Context, profileName string, docs []Document) (*models.ConsolidatedResult, error) {
	start := time.Now()
	batchID := uuid.NewString()
	log := r.logger().With("batch", batchID)

	var fixed *profile.Profile
	if profileName != "" {
		p, err := r.Registry.Get(profileName)
		if err != nil {
			return nil, err
		}
		fixed = p
	}

	ctx, span := r.tracer().Start(ctx, "batch.run", trace.WithAttributes(
		attribute.String("batch.id", batchID),
		attribute.Int("batch.documents", len(docs)),
	))
	defer span.End()

	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	outcomes := make([]Outcome, len(docs))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, doc := range docs {
		g.Go(func() error {
			outcomes[i] = r.process(ctx, fixed, doc)
			return nil
		})
	}
	_ = g.Wait()

	res := Consolidate(batchID, outcomes)
	if fixed != nil {
		res.Profile = fixed.Name
	}
	res.Elapsed = time.Since(start)
	r.Metrics.ObserveBatch()

	for _, c := range res.Counts {
		log.Info("account records", "account", c.Account, "file", c.File, "records", c.Records)
	}
	for _, f := range res.Failed {
		log.Error("document failed", "file", f.File, "stage", f.Stage, "error", f.Error)
	}
	log.Info("batch processed",
		"files", len(res.Files),
		"failed", len(res.Failed),
		"accounts", len(res.Accounts()),
		"records", res.Len(),
		"elapsed", res.Elapsed,
	)
	return res, nil
}

// process runs one document through extraction, profile selection and the
// engine. It never panics past its own boundary.
func (r *Runner) process(ctx context.Context, fixed *profile.Profile, doc Document) (out Outcome) {
	start := time.Now()
	out.File = doc.Name
	log := r.logger().With("file", doc.Name)

	ctx, span := r.tracer().Start(ctx, "batch.document", trace.WithAttributes(attribute.String("document.name", doc.Name)))
	defer span.End()

	profileName := ""
	if fixed != nil {
		profileName = fixed.Name
	}
	stage := extractor.StageExtract
	defer func() {
		if rec := recover(); rec != nil {
			out.Result = nil
			out.Err = extractor.Wrap(doc.Name, stage, fmt.Errorf("panic: %v", rec))
		}
		status := metrics.StatusOK
		records, skipped := 0, 0
		switch {
		case out.Err != nil:
			status = metrics.StatusFailed
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		case out.Result.Empty():
			status = metrics.StatusEmpty
		}
		if out.Result != nil {
			records, skipped = out.Result.Len(), len(out.Result.SkippedPages)
		}
		span.SetAttributes(attribute.String("profile", profileName), attribute.Int("records", records))
		r.Metrics.ObserveDocument(profileName, status, records, skipped, time.Since(start))
	}()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	pages, err := r.Source.Extract(ctx, doc.Name, doc.Data)
	if err != nil {
		out.Err = extractor.Wrap(doc.Name, extractor.StageExtract, err)
		return out
	}

	stage = extractor.StageProfile
	p := fixed
	if p == nil {
		if p, err = r.Registry.Detect(pages); err != nil {
			out.Err = extractor.Wrap(doc.Name, extractor.StageProfile, err)
			return out
		}
		log.Info("profile detected", "profile", p.Name)
	}
	profileName = p.Name

	stage = extractor.StageParse
	m, err := engine.New(p, engine.Options{Logger: log, Trace: r.Trace, Tolerance: r.Tolerance})
	if err != nil {
		out.Err = extractor.Wrap(doc.Name, extractor.StageParse, err)
		return out
	}
	out.Result = m.Run(doc.Name, pages)
	return out
}

// Consolidate merges document outcomes in input order. Records of the same
// account are concatenated file by file; nothing is deduplicated or
// re-sorted. Failed documents contribute nothing but a FailedDocument entry.
func Consolidate(batchID string, outcomes []Outcome) *models.ConsolidatedResult {
	res := models.NewConsolidatedResult(batchID)
	for _, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			res.Failed = append(res.Failed, failure(o))
			continue
		}
		res.Files = append(res.Files, o.File)
		if o.Result.Empty() {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: no records found; the layout was not recognized", o.File))
		}
		for _, page := range o.Result.SkippedPages {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: page %d has no text and was skipped", o.File, page))
		}
		for _, key := range o.Result.Accounts() {
			res.Append(key, o.File, o.Result.Records(key))
		}
		res.Counts = append(res.Counts, o.Result.Counts()...)
		if len(o.Result.Trace) > 0 {
			res.Traces = append(res.Traces, models.DocumentTrace{File: o.File, Lines: o.Result.Trace})
		}
	}
	return res
}

func failure(o Outcome) models.FailedDocument {
	f := models.FailedDocument{File: o.File, Stage: extractor.StageExtract}
	if o.Err == nil {
		f.Error = "no result"
		return f
	}
	f.Error = o.Err.Error()
	var de *extractor.DocumentError
	if errors.As(o.Err, &de) {
		f.Stage = de.Stage
		f.Error = de.Err.Error()
	}
	return f
}
