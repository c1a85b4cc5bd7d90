package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-extractor/internal/batch"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/writer"
)

type extractFlags struct {
	profile     string
	profileFile string
	out     string
	format  string
	summary string
	trace   bool
	header  bool
}

func newExtractCmd(a *app) *cobra.Command {
	f := &extractFlags{}
	cmd := &cobra.Command{
		Use:   "extract <input.pdf> [input2.pdf ...]",
		Short: "Extract records from statements into one consolidated file",
		Example: `  # Auto-detect the layout and write statement.xlsx
  statement-extractor extract statement.pdf

  # Several months of one bank into a single workbook
  statement-extractor extract --profile itau-cash --out cash.xlsx jan.pdf feb.pdf mar.pdf

  # CSV to stdout
  statement-extractor extract --format csv --out - statement.pdf

  # A layout kept outside the profile directory
  statement-extractor extract --profile-file mybank.yaml statement.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.extract(cmd, f, args)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.profile, "profile", "p", "", "layout profile (auto-detected per file if omitted)")
	fl.StringVar(&f.profileFile, "profile-file", "", "load a layout profile from a yaml, json or toml file and use it unless --profile is set")
	fl.StringVarP(&f.out, "out", "o", "", `output path, "-" for stdout`)
	fl.StringVarP(&f.format, "format", "f", "", "output format: xlsx, csv or json (default from --out, else xlsx)")
	fl.StringVar(&f.summary, "summary", "", "also write per-account-per-file record counts as CSV to this path")
	fl.BoolVar(&f.trace, "trace", false, "include the per-line decision trace (json output)")
	fl.BoolVar(&f.header, "header", true, "include batch metadata rows in CSV output")
	return cmd
}

func (a *app) extract(cmd *cobra.Command, f *extractFlags, paths []string) error {
	format, err := outputFormat(f.format, f.out)
	if err != nil {
		return err
	}

	profileName := f.profile
	if f.profileFile != "" {
		p, err := a.registry.LoadFile(f.profileFile)
		if err != nil {
			return fmt.Errorf("failed to load profile file: %w", err)
		}
		if profileName == "" {
			profileName = p.Name
		}
	}

	docs := make([]batch.Document, 0, len(paths))
	var rejected []models.FailedDocument
	for _, path := range paths {
		doc, err := a.readDocument(path)
		if err != nil {
			a.log.Error("skipping file", "file", path, "error", err)
			rejected = append(rejected, uploadFailure(path, err))
			continue
		}
		docs = append(docs, doc)
	}

	res, err := a.runner(f.trace).Run(cmd.Context(), profileName, docs)
	if err != nil {
		return err
	}
	res.Failed = append(res.Failed, rejected...)

	stdout := cmd.OutOrStdout()
	outPath := f.out
	if outPath == "" {
		outPath = defaultOutput(paths, format)
	}
	if err := writeResult(res, format, outPath, f.header, stdout); err != nil {
		return err
	}
	if f.summary != "" {
		if err := writeSummaryFile(f.summary, res.Counts); err != nil {
			return err
		}
	}

	// Progress goes to stderr when the result itself is on stdout.
	report := stdout
	if outPath == "-" {
		report = cmd.ErrOrStderr()
	}
	printReport(report, res, outPath)

	if len(res.Files) == 0 {
		return fmt.Errorf("all %d file(s) failed", len(res.Failed))
	}
	return nil
}

// uploadFailure records a file that was rejected before extraction.
func uploadFailure(path string, err error) models.FailedDocument {
	fd := models.FailedDocument{File: filepath.Base(path), Stage: extractor.StageUpload, Error: err.Error()}
	var de *extractor.DocumentError
	if errors.As(err, &de) {
		fd.Stage = de.Stage
		fd.Error = de.Err.Error()
	}
	return fd
}

func (a *app) readDocument(path string) (batch.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return batch.Document{}, fmt.Errorf("input file not found: %s", path)
	}
	if err := extractor.CheckUpload(filepath.Base(path), info.Size(), a.cfg.MaxUploadBytes()); err != nil {
		return batch.Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return batch.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return batch.Document{Name: filepath.Base(path), Data: data}, nil
}

func outputFormat(format, out string) (string, error) {
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
		if format == "" {
			format = "xlsx"
		}
	}
	switch format = strings.ToLower(format); format {
	case "xlsx", "csv", "json":
		return format, nil
	}
	return "", fmt.Errorf("unknown output format %q, use xlsx, csv or json", format)
}

// defaultOutput names the output after the input for a single file and
// "statements" for a batch.
func defaultOutput(paths []string, format string) string {
	if len(paths) == 1 {
		return strings.TrimSuffix(paths[0], filepath.Ext(paths[0])) + "." + format
	}
	return "statements." + format
}

func writeResult(res *models.ConsolidatedResult, format, path string, header bool, stdout io.Writer) error {
	if path == "-" {
		return encodeResult(stdout, res, format, header)
	}
	switch format {
	case "csv":
		w := &writer.CSVWriter{IncludeHeader: header}
		return w.WriteToFile(path, res)
	case "json":
		return writeFile(path, func(out io.Writer) error {
			return encodeResult(out, res, format, header)
		})
	default:
		w := &writer.WorkbookWriter{}
		return w.WriteToFile(path, res)
	}
}

func encodeResult(out io.Writer, res *models.ConsolidatedResult, format string, header bool) error {
	switch format {
	case "csv":
		w := &writer.CSVWriter{IncludeHeader: header}
		return w.Write(out, res)
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		w := &writer.WorkbookWriter{}
		return w.Write(out, res)
	}
}

// writeFile creates path and hands it to write. A failed close is reported
// when write itself succeeded.
func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %q: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close output file %q: %w", path, cerr)
		}
	}()
	return write(file)
}

func writeSummaryFile(path string, counts []models.AccountFileCount) error {
	return writeFile(path, func(out io.Writer) error {
		return writer.WriteSummary(out, counts)
	})
}

func printReport(w io.Writer, res *models.ConsolidatedResult, outPath string) {
	fmt.Fprintf(w, "Processed %d file(s), %d failed, %d record(s) in %d account(s) [%s]\n",
		len(res.Files), len(res.Failed), res.Len(), len(res.Accounts()), res.Elapsed.Round(time.Millisecond))
	for _, c := range res.Counts {
		fmt.Fprintf(w, "  %-24s %-28s %d\n", c.Account, c.File, c.Records)
	}
	for _, d := range res.Failed {
		fmt.Fprintf(w, "  FAILED %s (%s): %s\n", d.File, d.Stage, d.Error)
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "  Warning: %s\n", warn)
	}
	if outPath != "-" {
		fmt.Fprintf(w, "  Output: %s\n", outPath)
	}
}
