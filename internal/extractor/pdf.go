// Package extractor turns PDF bytes into pages of positioned text fragments.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

const (
	// A glyph further than gapFactor × font size from the previous one
	// starts a new fragment.
	gapFactor = 0.3
	// fallbackGap applies when the font size is unknown.
	fallbackGap = 3.0
	// Glyphs whose baselines differ by more than this are never joined.
	sameBaseline = 0.5
)

// US Letter, used when a page has no readable MediaBox.
const (
	defaultWidth  = 612.0
	defaultHeight = 792.0
)

// PDFSource reads glyph positions with the ledongthuc/pdf library and
// coalesces them into word runs.
type PDFSource struct {
	Logger *slog.Logger
}

// NewPDFSource returns a PDFSource logging to logger.
func NewPDFSource(logger *slog.Logger) *PDFSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFSource{Logger: logger}
}

func (s *PDFSource) Name() string { return "pdf" }

// Extract reads every page of data. A page the library cannot decode is
// returned without fragments so the engine skips it.
func (s *PDFSource) Extract(ctx context.Context, name string, data []byte) (pages []models.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: PDF library crashed: %v", ErrInvalidPDF, r)
		}
	}()

	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF header", ErrInvalidPDF)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, openError(err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, ErrNoPages
	}

	log := s.logger().With("file", name, "source", s.Name())
	pages = make([]models.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, perr := readPage(r, i)
		if perr != nil {
			log.Warn("page could not be decoded", "page", i, "error", perr)
			page = models.Page{Number: i, Width: defaultWidth, Height: defaultHeight}
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *PDFSource) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func openError(err error) error {
	if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(strings.ToLower(err.Error()), "encrypt") {
		return fmt.Errorf("%w: %v", ErrEncrypted, err)
	}
	return fmt.Errorf("%w: %v", ErrInvalidPDF, err)
}

func readPage(r *pdf.Reader, n int) (page models.Page, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("PDF library crashed: %v", rec)
		}
	}()

	p := r.Page(n)
	page = models.Page{Number: n, Width: defaultWidth, Height: defaultHeight}
	if p.V.IsNull() {
		return page, nil
	}
	page.Width, page.Height = mediaBox(p)
	page.Fragments = coalesce(n, p.Content().Text)
	return page, nil
}

// mediaBox returns the page size, following the parent when the box is
// inherited.
func mediaBox(p pdf.Page) (width, height float64) {
	box := p.V.Key("MediaBox")
	if box.Len() < 4 {
		box = p.V.Key("Parent").Key("MediaBox")
	}
	if box.Len() < 4 {
		return defaultWidth, defaultHeight
	}
	width = box.Index(2).Float64() - box.Index(0).Float64()
	height = box.Index(3).Float64() - box.Index(1).Float64()
	if width <= 0 || height <= 0 {
		return defaultWidth, defaultHeight
	}
	return width, height
}

// coalesce joins consecutive glyphs on one baseline into fragments. A space
// glyph, a baseline change or a gap wider than the font allows ends a run.
func coalesce(page int, glyphs []pdf.Text) []models.Fragment {
	var (
		out   []models.Fragment
		buf   strings.Builder
		start pdf.Text
		prevX float64
		endX  float64
		open  bool
	)
	flush := func() {
		if open {
			if text := layout.CleanText(buf.String()); text != "" {
				out = append(out, models.Fragment{Text: text, X: start.X, Y: start.Y, Page: page})
			}
		}
		buf.Reset()
		open = false
	}

	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			flush()
			continue
		}
		if open {
			limit := gapFactor * g.FontSize
			if g.FontSize <= 0 {
				limit = fallbackGap
			}
			// Glyphs without a known width share the position of their
			// string, so only a jump back past the previous glyph splits.
			if math.Abs(g.Y-start.Y) > sameBaseline || g.X-endX > limit || g.X < prevX-limit {
				flush()
			}
		}
		if !open {
			start = g
			open = true
		}
		buf.WriteString(g.S)
		prevX = g.X
		endX = g.X + math.Max(g.W, 0)
	}
	flush()
	return out
}
