package extractor

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidPDF        = errors.New("file is not a valid PDF")
	ErrEncrypted         = errors.New("PDF is encrypted")
	ErrNoPages           = errors.New("PDF has no pages")
	ErrNoReadableText    = errors.New("no readable text could be extracted; the file may be scanned or use unsupported font encodings")
	ErrFileTooLarge      = errors.New("file exceeds the upload size limit")
	ErrUnsupportedFormat = errors.New("only PDF files are supported")
	ErrToolUnavailable   = errors.New("external extraction tool not available")
)

// Processing stages reported on failed documents.
const (
	StageUpload  = "upload"
	StageExtract = "extract"
	StageProfile = "profile"
	StageParse   = "parse"
)

// DocumentError ties a failure to the document and stage it happened in.
type DocumentError struct {
	File  string
	Stage string
	Err   error
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.File, e.Stage, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// Wrap returns err as a DocumentError for file, keeping an existing one.
func Wrap(file, stage string, err error) error {
	if err == nil {
		return nil
	}
	var de *DocumentError
	if errors.As(err, &de) {
		return err
	}
	return &DocumentError{File: file, Stage: stage, Err: err}
}

// CheckUpload validates an uploaded file's name and size before it is read.
// A max of zero disables the size check.
func CheckUpload(name string, size, max int64) error {
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return &DocumentError{File: name, Stage: StageUpload, Err: ErrUnsupportedFormat}
	}
	if max > 0 && size > max {
		return &DocumentError{
			File:  name,
			Stage: StageUpload,
			Err:   fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, max),
		}
	}
	return nil
}
