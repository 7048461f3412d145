package ocr

import (
	"errors"
	"fmt"
)

var (
	// ErrPDFTooLarge is returned above the 20MB synchronous request limit.
	ErrPDFTooLarge = errors.New("PDF file size exceeds the maximum limit (20MB)")

	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	ErrOCRFailed = errors.New("OCR processing failed")

	// ErrTooManyPages is returned for documents over the 5 page synchronous limit.
	ErrTooManyPages = errors.New("PDF has too many pages (maximum 5 pages for synchronous processing)")

	// ErrEmptyDocument is returned when Vision found no text at all, typically a blank scan.
	ErrEmptyDocument = errors.New("document contains no readable text")
)

// OCRError carries the failing operation and details next to the underlying error.
type OCRError struct {
	Op      string
	Err     error
	Details string
}

func (e *OCRError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("ocr: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("ocr: %s failed: %v", e.Op, e.Err)
}

func (e *OCRError) Unwrap() error {
	return e.Err
}

// WrapOCRError wraps err unless it already is an *OCRError.
func WrapOCRError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var ocrErr *OCRError
	if errors.As(err, &ocrErr) {
		return err
	}

	return &OCRError{Op: op, Err: err, Details: details}
}
