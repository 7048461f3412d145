package extract

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPDF = errors.New("invalid or corrupted PDF document")

	// ErrEmptyDocument means the parser returned no text, typically a blank or image-only scan
	// that also defeated OCR.
	ErrEmptyDocument = errors.New("document contains no readable text")

	ErrProcessingFailed = errors.New("document AI processing failed")

	ErrInvalidConfiguration = errors.New("invalid Document AI configuration")

	ErrInvalidCredentials = errors.New("invalid Google Cloud credentials")

	ErrProcessorNotFound = errors.New("Document AI processor not found")

	ErrQuotaExceeded = errors.New("Document AI API quota exceeded")

	ErrDocumentTooLarge = errors.New("document exceeds maximum size limit")

	ErrTimeout = errors.New("document processing timed out")

	// ErrCompletionFailed is returned when the language model produced nothing usable.
	ErrCompletionFailed = errors.New("invoice completion failed")
)

// ExtractionError ties a failure to the operation and, for batches, the file it happened on.
type ExtractionError struct {
	Op      string
	File    string
	Err     error
	Details string
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extract: %s failed", e.Op)
	if e.File != "" {
		msg += fmt.Sprintf(" for %s", e.File)
	}
	if e.Details != "" {
		msg += ": " + e.Details
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// WrapExtractionError wraps err unless it already is an *ExtractionError.
func WrapExtractionError(op string, err error, details string) error {
	if err == nil {
		return nil
	}

	var extractErr *ExtractionError
	if errors.As(err, &extractErr) {
		return err
	}

	return &ExtractionError{Op: op, Err: err, Details: details}
}
