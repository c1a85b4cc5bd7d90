package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/insightdelivered/statement-extractor/internal/layout"
	"github.com/insightdelivered/statement-extractor/internal/models"
)

// Runner executes an external command. Tests substitute it.
type Runner interface {
	Run(ctx context.Context, name string, logger *slog.Logger, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, logger *slog.Logger, args ...string) ([]byte, []byte, error) {
	start := time.Now()
	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		logger.Error("exec failed",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 8<<10),
		)
	} else {
		logger.Debug("exec ok",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"stdout_bytes", out.Len(),
		)
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// PdftotextSource runs poppler's `pdftotext -bbox` and reads the word boxes
// from its XHTML output.
type PdftotextSource struct {
	Path   string
	Logger *slog.Logger
	Runner Runner
}

// NewPdftotextSource returns a source running the binary at path (looked up
// on PATH when bare).
func NewPdftotextSource(path string, logger *slog.Logger) *PdftotextSource {
	if path == "" {
		path = "pdftotext"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PdftotextSource{Path: path, Logger: logger}
}

func (s *PdftotextSource) Name() string { return "pdftotext" }

func (s *PdftotextSource) Extract(ctx context.Context, name string, data []byte) ([]models.Page, error) {
	log := s.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("file", name, "source", s.Name())

	runner := s.Runner
	if runner == nil {
		if _, err := exec.LookPath(s.Path); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrToolUnavailable, s.Path, err)
		}
		runner = execRunner{}
	}

	tmp, err := os.CreateTemp("", "statement-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	stdout, stderr, err := runner.Run(ctx, s.Path, log, "-bbox", tmp.Name(), "-")
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.ToLower(string(stderr))
		if strings.Contains(msg, "incorrect password") || strings.Contains(msg, "encrypt") {
			return nil, fmt.Errorf("%w: %s", ErrEncrypted, strings.TrimSpace(string(stderr)))
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: pdftotext: %s", ErrInvalidPDF, strings.TrimSpace(string(stderr)))
		}
		return nil, fmt.Errorf("pdftotext: %w", err)
	}

	pages, err := parseBBox(bytes.NewReader(stdout))
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	return pages, nil
}

// parseBBox reads `pdftotext -bbox` output. Word boxes use a top-left
// origin; fragments get the bottom-left origin of the PDF user space.
func parseBBox(r io.Reader) ([]models.Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse bbox output: %w", err)
	}

	var pages []models.Page
	doc.Find("page").Each(func(i int, sel *goquery.Selection) {
		number := i + 1
		page := models.Page{
			Number: number,
			Width:  attrFloat(sel, "width"),
			Height: attrFloat(sel, "height"),
		}
		sel.Find("word").Each(func(_ int, w *goquery.Selection) {
			text := layout.CleanText(w.Text())
			if text == "" {
				return
			}
			page.Fragments = append(page.Fragments, models.Fragment{
				Text: text,
				X:    attrFloat(w, "xmin"),
				Y:    page.Height - attrFloat(w, "ymax"),
				Page: number,
			})
		})
		pages = append(pages, page)
	})
	return pages, nil
}

// attrFloat reads a numeric attribute. The HTML parser lowercases names.
func attrFloat(sel *goquery.Selection, name string) float64 {
	v, ok := sel.Attr(name)
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}
