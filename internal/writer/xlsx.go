// Package writer renders consolidated results as spreadsheets.
package writer

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

const (
	maxSheetName     = 31
	summarySheet     = "Summary"
	defaultSheet     = "Sheet1"
	headerFill       = "#D9D9D9"
	minColumnWidth   = 10
	defaultMaxColumn = 60
)

// WorkbookWriter writes one worksheet per account plus a summary sheet.
type WorkbookWriter struct {
	// MaxColumnWidth caps auto-sized columns; zero means 60.
	MaxColumnWidth float64
}

// WriteToFile writes the workbook to path.
func (w *WorkbookWriter) WriteToFile(path string, res *models.ConsolidatedResult) (err error) {
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

// Bytes returns the workbook as xlsx bytes.
func (w *WorkbookWriter) Bytes(res *models.ConsolidatedResult) ([]byte, error) {
	var buf bytes.Buffer
	if err := w.Write(&buf, res); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write renders the workbook to out.
func (w *WorkbookWriter) Write(out io.Writer, res *models.ConsolidatedResult) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{headerFill}},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	used := map[string]bool{strings.ToLower(summarySheet): true, strings.ToLower(defaultSheet): true}
	first := ""
	for _, key := range res.Accounts() {
		name := SheetName(string(key), used)
		if first == "" {
			first = name
		}
		if err := w.writeAccount(f, name, header, res, key); err != nil {
			return err
		}
	}
	if err := w.writeSummary(f, header, res); err != nil {
		return err
	}
	if first == "" {
		first = summarySheet
	}

	if err := f.DeleteSheet(defaultSheet); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(first); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

func (w *WorkbookWriter) writeAccount(f *excelize.File, sheet string, header int, res *models.ConsolidatedResult, key models.AccountKey) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", sheet, err)
	}

	columns := res.Columns(key)
	assessed := res.HasAssessments(key)
	head := append([]string{"Source File"}, columns...)
	if assessed {
		head = append(head, "Confidence", "Notes")
	}
	rows := [][]string{head}
	for _, sr := range res.Records(key) {
		row := make([]string, 0, len(head))
		row = append(row, sr.File)
		for _, c := range columns {
			row = append(row, sr.Record.Get(c))
		}
		if assessed {
			row = append(row, string(sr.Record.Confidence()), strings.Join(sr.Record.Notes(), "; "))
		}
		rows = append(rows, row)
	}
	return w.fill(f, sheet, header, rows)
}

func (w *WorkbookWriter) writeSummary(f *excelize.File, header int, res *models.ConsolidatedResult) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create sheet %q: %w", summarySheet, err)
	}
	rows := [][]string{{"Account", "Source File", "Records"}}
	for _, c := range res.Counts {
		rows = append(rows, []string{c.Account, c.File, strconv.Itoa(c.Records)})
	}
	if err := w.fill(f, summarySheet, header, rows); err != nil {
		return err
	}
	if len(res.Failed) == 0 {
		return nil
	}

	start := len(rows) + 2
	failed := [][]string{{"Failed File", "Stage", "Error"}}
	for _, d := range res.Failed {
		failed = append(failed, []string{d.File, d.Stage, d.Error})
	}
	for i, row := range failed {
		cell, _ := excelize.CoordinatesToCellName(1, start+i)
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	from, _ := excelize.CoordinatesToCellName(1, start)
	to, _ := excelize.CoordinatesToCellName(3, start)
	return f.SetCellStyle(summarySheet, from, to, header)
}

// fill writes rows from A1, styles the first one as a header and sizes the
// columns from their content.
func (w *WorkbookWriter) fill(f *excelize.File, sheet string, header int, rows [][]string) error {
	widths := make([]int, len(rows[0]))
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d of %q: %w", i+1, sheet, err)
		}
		for j, v := range row {
			if j < len(widths) && utf8.RuneCountInString(v) > widths[j] {
				widths[j] = utf8.RuneCountInString(v)
			}
		}
	}

	last, _ := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
		return fmt.Errorf("failed to style header of %q: %w", sheet, err)
	}

	maxWidth := w.MaxColumnWidth
	if maxWidth <= 0 {
		maxWidth = defaultMaxColumn
	}
	for j, n := range widths {
		col, _ := excelize.ColumnNumberToName(j + 1)
		width := float64(n + 2)
		if width < minColumnWidth {
			width = minColumnWidth
		}
		if width > maxWidth {
			width = maxWidth
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s of %q: %w", col, sheet, err)
		}
	}
	return nil
}

var sheetNameReplacer = strings.NewReplacer(
	":", "", `\`, "", "/", "", "?", "", "*", "", "[", "", "]", "",
)

// SheetName turns an account key into a unique worksheet name. Characters
// Excel rejects are removed, names are capped at 31 characters, and
// collisions (case-insensitive, as in Excel) get a numeric suffix. used is
// updated with the returned name.
func SheetName(key string, used map[string]bool) string {
	base := strings.TrimSpace(sheetNameReplacer.Replace(key))
	base = strings.Trim(base, "'")
	if base == "" {
		base = "Account"
	}
	base = truncateRunes(base, maxSheetName)

	name := base
	for n := 2; used[strings.ToLower(name)]; n++ {
		suffix := fmt.Sprintf(" (%d)", n)
		name = truncateRunes(base, maxSheetName-len(suffix)) + suffix
	}
	used[strings.ToLower(name)] = true
	return name
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:n]))
}
