package writer

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

// CSVWriter writes a consolidated result as one CSV table. Every row starts
// with its account and source file, followed by the union of all columns.
type CSVWriter struct {
	IncludeHeader bool
}

// WriteToFile writes the result to a CSV file at the given path.
func (w *CSVWriter) WriteToFile(path string, res *models.ConsolidatedResult) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %q: %w", path, cerr)
		}
	}()

	return w.Write(f, res)
}

// Write writes the result in CSV format to the given writer.
func (w *CSVWriter) Write(out io.Writer, res *models.ConsolidatedResult) error {
	writer := csv.NewWriter(out)

	// Batch metadata as comment rows
	if w.IncludeHeader {
		meta := [][]string{
			{"# Batch", res.BatchID},
			{"# Profile", res.Profile},
			{"# Files", strings.Join(res.Files, "; ")},
		}
		for _, m := range meta {
			if m[1] == "" {
				continue
			}
			if err := writer.Write(m); err != nil {
				return fmt.Errorf("failed to write CSV metadata: %w", err)
			}
		}
	}

	columns, assessed := csvColumns(res)
	header := append([]string{"Account", "Source File"}, columns...)
	if assessed {
		header = append(header, "Confidence", "Notes")
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, key := range res.Accounts() {
		for _, sr := range res.Records(key) {
			row := make([]string, 0, len(header))
			row = append(row, string(key), sr.File)
			for _, c := range columns {
				row = append(row, sr.Record.Get(c))
			}
			if assessed {
				row = append(row, string(sr.Record.Confidence()), strings.Join(sr.Record.Notes(), "; "))
			}
			if err := writer.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row: %w", err)
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// csvColumns is the ordered union of every account's columns and whether
// any record carries an assessment.
func csvColumns(res *models.ConsolidatedResult) ([]string, bool) {
	seen := make(map[string]bool)
	var cols []string
	assessed := false
	for _, key := range res.Accounts() {
		for _, c := range res.Columns(key) {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
		assessed = assessed || res.HasAssessments(key)
	}
	return cols, assessed
}
