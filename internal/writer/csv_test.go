package writer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/insightdelivered/statement-extractor/internal/models"
)

func field(name, value string) models.Field { return models.Field{Name: name, Value: value} }

func sampleResult() *models.ConsolidatedResult {
	res := models.NewConsolidatedResult("batch-1")
	res.Profile = "itau-cash"
	res.Files = []string{"jan.pdf", "feb.pdf"}
	res.Append("12345_USD", "jan.pdf", []models.Record{
		models.NewRecord(1, []models.Field{field("Date", "02/01/2024"), field("Description", "WIRE IN"), field("Amount", "1,000.00")}),
		models.NewRecord(1, []models.Field{field("Date", "03/01/2024"), field("Description", "FEE, MONTHLY"), field("Amount", "-10.00")}),
	})
	res.Append("BTG", "feb.pdf", []models.Record{
		models.NewRecord(2, []models.Field{field("Date", "05/02/2024"), field("Description", "PIX"), field("Balance", "50.00")}),
	})
	res.Counts = []models.AccountFileCount{
		{Account: "12345_USD", File: "jan.pdf", Records: 2},
		{Account: "BTG", File: "feb.pdf", Records: 1},
	}
	return res
}

func TestCSVWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: true}
	err := w.Write(&buf, sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	// Check metadata headers
	if !strings.Contains(output, "# Batch,batch-1") {
		t.Error("expected batch metadata header")
	}
	if !strings.Contains(output, "# Files,jan.pdf; feb.pdf") {
		t.Error("expected files metadata")
	}

	// Column union keeps first-seen order
	if !strings.Contains(output, "Account,Source File,Date,Description,Amount,Balance\n") {
		t.Error("expected column headers")
	}

	if !strings.Contains(output, `12345_USD,jan.pdf,03/01/2024,"FEE, MONTHLY",-10.00,`) {
		t.Error("expected quoted description and empty balance")
	}
	if !strings.Contains(output, "BTG,feb.pdf,05/02/2024,PIX,,50.00") {
		t.Error("expected BTG row with empty amount")
	}
	if strings.Contains(output, "Confidence") {
		t.Error("unexpected assessment columns")
	}

	lines := strings.Split(strings.TrimSpace(output), "\n")
	// 3 metadata lines + 1 header + 3 records = 7
	if len(lines) != 7 {
		t.Errorf("expected 7 lines, got %d", len(lines))
	}
}

func TestCSVWriter_WriteToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := &CSVWriter{}
	if err := w.WriteToFile(path, sampleResult()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.HasPrefix(string(data), "Account,Source File,") {
		t.Errorf("expected header row first, got %q", string(data))
	}

	err = w.WriteToFile(filepath.Join(t.TempDir(), "missing", "out.csv"), sampleResult())
	if err == nil || !strings.Contains(err.Error(), "failed to create output file") {
		t.Errorf("expected create error, got %v", err)
	}
}

func TestCSVWriter_WriteNoHeader(t *testing.T) {
	var buf bytes.Buffer
	w := &CSVWriter{IncludeHeader: false}
	err := w.Write(&buf, sampleResult())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()

	if strings.Contains(output, "#") {
		t.Error("should not contain metadata when IncludeHeader is false")
	}
	if !strings.HasPrefix(output, "Account,Source File,") {
		t.Error("expected column headers first")
	}
}

func TestCSVWriter_WriteAssessments(t *testing.T) {
	res := models.NewConsolidatedResult("b")
	rec := models.NewRecord(1, []models.Field{field("Date", "01/01/2024"), field("Debit", "5.00")})
	res.Append("1", "a.pdf", []models.Record{rec.Assessed(models.ConfidenceLow, "balance mismatch", "guessed column")})

	var buf bytes.Buffer
	w := &CSVWriter{}
	if err := w.Write(&buf, res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Account,Source File,Date,Debit,Confidence,Notes\n1,a.pdf,01/01/2024,5.00,low,balance mismatch; guessed column\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteSummary(&buf, sampleResult().Counts); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "account,file,records\n12345_USD,jan.pdf,2\nBTG,feb.pdf,1\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}
