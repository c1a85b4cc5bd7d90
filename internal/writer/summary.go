package writer

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// WriteSummary writes the per-account-per-file record counts as CSV with an
// account,file,records header.
func WriteSummary(out io.Writer, counts []models.AccountFileCount) error {
	if counts == nil {
		counts = []models.AccountFileCount{}
	}
	if err := gocsv.Marshal(&counts, out); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}
	return nil
}
