// Package ocr reads the plain text out of scanned or generated invoice PDFs
// with Google Cloud Vision document text detection.
//
// The text is not parsed here. The extract package scrapes it for values the
// invoice parser missed, mainly the claim number (nro. de siniestro) which
// Document AI has no entity for.
//
// Limits of synchronous Vision file annotation:
//   - 20MB per request
//   - 5 pages per request
package ocr

import (
	"context"
	"io"
	"time"
)

// TextExtractor returns the text of a PDF.
type TextExtractor interface {
	ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error)
	ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*Result, error)
}

// Credentials selects how the Vision client authenticates. With both fields empty
// the client falls back to application default credentials.
type Credentials struct {
	File string
	JSON string
}

// Result is the text of every page in reading order plus what Vision reported about it.
type Result struct {
	Text               string        `json:"text"`
	PageCount          int           `json:"page_count"`
	Confidence         float32       `json:"confidence"`
	LanguageCodes      []string      `json:"language_codes,omitempty"`
	ProcessedAt        time.Time     `json:"processed_at"`
	ProcessingDuration time.Duration `json:"processing_duration"`
}
