package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"verax/internal/extract"
	"verax/internal/ocr"
	"verax/internal/payout"
	"verax/internal/store"
)

// handleCloudError turns Google Cloud, Firebase and AWS failures into actionable messages.
func handleCloudError(err error, log zerolog.Logger) error {
	log.Error().Err(err).Msg("Cloud client failed")

	errStr := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("operation timed out. Try increasing --timeout")
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("operation was canceled")
	case strings.Contains(errStr, "Unauthenticated") ||
		strings.Contains(errStr, "invalid_grant") ||
		strings.Contains(errStr, "credentials"):
		return fmt.Errorf("authentication failed. Please check your credentials:\n\n" +
			"1. Set GOOGLE_APPLICATION_CREDENTIALS to your service account JSON file path\n" +
			"2. Or set GOOGLE_CREDENTIALS with inline JSON credentials\n" +
			"3. For S3 receipts set S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY, or use the default AWS chain\n\n" +
			"Original error: %v", err)
	case strings.Contains(errStr, "PERMISSION_DENIED") || strings.Contains(errStr, "AccessDenied"):
		return fmt.Errorf("permission denied. Please check the roles of your service account: %w", err)
	default:
		return err
	}
}

// handleExtractionError provides user-friendly messages for PDF extraction failures.
func handleExtractionError(err error, log zerolog.Logger) error {
	switch {
	case errors.Is(err, extract.ErrInvalidPDF), errors.Is(err, ocr.ErrInvalidPDF):
		return fmt.Errorf("invalid or corrupted PDF file. Please check the file integrity")
	case errors.Is(err, extract.ErrDocumentTooLarge), errors.Is(err, ocr.ErrPDFTooLarge):
		return fmt.Errorf("PDF file is too large (maximum 20MB). Try compressing or splitting the file")
	case errors.Is(err, extract.ErrEmptyDocument):
		return fmt.Errorf("no text could be read from the PDF")
	case errors.Is(err, extract.ErrProcessorNotFound):
		return fmt.Errorf("Document AI processor not found. Please check DOCUMENT_AI_PROCESSOR_ID")
	case errors.Is(err, extract.ErrQuotaExceeded):
		return fmt.Errorf("Document AI API quota exceeded. Check your project quotas in Google Cloud Console")
	default:
		return handleCloudError(err, log)
	}
}

// handlePayoutError explains workflow refusals; anything else is passed through.
func handlePayoutError(err error) error {
	var validation *payout.ValidationError
	switch {
	case errors.As(err, &validation):
		return fmt.Errorf("invalid %s: %s", validation.Field, validation.Message)
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("not found: %w", err)
	case errors.Is(err, payout.ErrReceiptRequired):
		return fmt.Errorf("the analyst must upload an invoice receipt before this request can be paid")
	case errors.Is(err, payout.ErrNotRequestOwner):
		return fmt.Errorf("only the analyst who submitted the request may upload its receipt")
	default:
		return err
	}
}
