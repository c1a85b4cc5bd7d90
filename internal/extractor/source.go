package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// Source yields the positioned text of every page of a document.
type Source interface {
	Name() string
	Extract(ctx context.Context, name string, data []byte) ([]models.Page, error)
}

// Chain tries its sources in order. The first result that passes the
// readability check wins; garbage text is never returned.
type Chain struct {
	Sources []Source
	Logger  *slog.Logger
}

// NewDefaultSource returns the library source backed by pdftotext.
func NewDefaultSource(pdftotextPath string, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{
		Sources: []Source{
			NewPDFSource(logger),
			NewPdftotextSource(pdftotextPath, logger),
		},
		Logger: logger,
	}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Extract(ctx context.Context, name string, data []byte) ([]models.Page, error) {
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}
	var errs []error
	for _, src := range c.Sources {
		pages, err := src.Extract(ctx, name, data)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			log.Debug("source failed", "file", name, "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		if IsReadable(pages) {
			log.Debug("source used", "file", name, "source", src.Name(), "pages", len(pages))
			return pages, nil
		}
		log.Debug("source text not readable", "file", name, "source", src.Name())
		errs = append(errs, fmt.Errorf("%s: %w", src.Name(), ErrNoReadableText))
	}
	if len(errs) == 0 {
		return nil, ErrNoReadableText
	}
	return nil, errors.Join(errs...)
}
