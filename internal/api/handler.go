package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/insightdelivered/statement-extractor/internal/batch"
	"github.com/insightdelivered/statement-extractor/internal/extractor"
	"github.com/insightdelivered/statement-extractor/internal/models"
	"github.com/insightdelivered/statement-extractor/internal/profile"
	"github.com/insightdelivered/statement-extractor/internal/writer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ExtractResponse is the JSON response from the /api/extract endpoint.
type ExtractResponse struct {
	Success bool                       `json:"success"`
	Error   string                     `json:"error,omitempty"`
	Result  *models.ConsolidatedResult `json:"result,omitempty"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ProfileSummary describes one registered profile.
type ProfileSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Columns     []string `json:"columns"`
	Detectable  bool     `json:"detectable"`
}

func summarize(p *profile.Profile) ProfileSummary {
	return ProfileSummary{
		Name:        p.Name,
		Description: p.Description,
		Columns:     p.ColumnNames(),
		Detectable:  len(p.Detect) > 0,
	}
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":   "ok",
		"version":  s.Version,
		"profiles": len(s.Registry.Names()),
	})
}

func (s *Server) handleProfiles(c *fiber.Ctx) error {
	list := s.Registry.List()
	out := make([]ProfileSummary, 0, len(list))
	for _, p := range list {
		out = append(out, summarize(p))
	}
	return c.JSON(out)
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	p, err := s.Registry.Get(c.Params("name"))
	if err != nil {
		return err
	}
	return c.JSON(p)
}

func (s *Server) handleExtract(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewAppError(fiber.StatusBadRequest, "expected a multipart form with PDF files in field 'files'", err)
	}
	var headers []*multipart.FileHeader
	headers = append(headers, form.File["files"]...)
	headers = append(headers, form.File["file"]...)
	if len(headers) == 0 {
		return NewAppError(fiber.StatusBadRequest, "no file uploaded, use form field 'files'", nil)
	}
	if len(headers) > s.maxFiles() {
		return NewAppError(fiber.StatusBadRequest, fmt.Sprintf("too many files: %d, at most %d per request", len(headers), s.maxFiles()), nil)
	}

	format := strings.ToLower(c.Query("format", "json"))
	switch format {
	case "json", "xlsx", "csv":
	default:
		return NewAppError(fiber.StatusBadRequest, fmt.Sprintf("unknown format %q, use json, xlsx or csv", format), nil)
	}

	docs := make([]batch.Document, 0, len(headers))
	for _, fh := range headers {
		doc, err := s.readUpload(fh)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	runner := *s.Runner
	runner.Trace = runner.Trace || c.QueryBool("trace")
	res, err := runner.Run(c.UserContext(), strings.TrimSpace(c.FormValue("profile")), docs)
	if err != nil {
		if errors.Is(err, profile.ErrUnknownProfile) {
			return NewAppError(fiber.StatusBadRequest, err.Error(), nil)
		}
		return err
	}

	if len(res.Files) == 0 {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(ExtractResponse{
			Success: false,
			Error:   "no document could be processed",
			Result:  res,
		})
	}

	c.Set("X-Batch-ID", res.BatchID)
	switch format {
	case "xlsx":
		w := &writer.WorkbookWriter{}
		data, err := w.Bytes(res)
		if err != nil {
			return err
		}
		c.Attachment("statements-" + res.BatchID + ".xlsx")
		c.Set(fiber.HeaderContentType, xlsxContentType)
		return c.Send(data)
	case "csv":
		var buf bytes.Buffer
		w := &writer.CSVWriter{IncludeHeader: c.QueryBool("header", true)}
		if err := w.Write(&buf, res); err != nil {
			return err
		}
		c.Attachment("statements-" + res.BatchID + ".csv")
		c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
		return c.Send(buf.Bytes())
	}
	return c.JSON(ExtractResponse{Success: true, Result: res})
}

func (s *Server) readUpload(fh *multipart.FileHeader) (batch.Document, error) {
	if err := extractor.CheckUpload(fh.Filename, fh.Size, s.maxUpload()); err != nil {
		return batch.Document{}, extractor.Wrap(fh.Filename, extractor.StageUpload, err)
	}
	f, err := fh.Open()
	if err != nil {
		return batch.Document{}, NewAppError(fiber.StatusBadRequest, "failed to read upload "+fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return batch.Document{}, NewAppError(fiber.StatusBadRequest, "failed to read upload "+fh.Filename, err)
	}
	return batch.Document{Name: fh.Filename, Data: data}, nil
}
