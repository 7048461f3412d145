// Package extract reads the invoice fields staff would otherwise type by hand
// out of an issued invoice PDF.
//
// Extraction is best effort. Anything the parser cannot find is left as the
// DESCONOCIDO placeholder and corrected by staff later; an error is returned
// only when the file itself cannot be read or contains no text.
package extract

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"verax/internal/dates"
	"verax/pkg/models"
)

// Field names used in Result.Missing and in confidence maps.
const (
	FieldInvoiceNumber = "invoiceNumber"
	FieldClaimNumber   = "claimNumber"
	FieldInsurer       = "insurer"
	FieldIssuer        = "issuer"
	FieldAmount        = "amount"
	FieldDate          = "date"
)

// Result is what the oracle read from one PDF. Date is DD/MM/YYYY.
type Result struct {
	InvoiceNumber string             `json:"invoiceNumber"`
	ClaimNumber   string             `json:"claimNumber"`
	Insurer       string             `json:"insurer"`
	Issuer        string             `json:"issuer"`
	Amount        float64            `json:"amount"`
	Date          string             `json:"date"`
	Confidence    map[string]float32 `json:"confidence,omitempty"`
}

// Extractor turns a PDF into a Result.
type Extractor interface {
	Extract(ctx context.Context, pdf io.Reader) (Result, error)
}

// Placeholder returns a result with every text field set to DESCONOCIDO.
func Placeholder() Result {
	return Result{
		InvoiceNumber: models.Unknown,
		ClaimNumber:   models.Unknown,
		Insurer:       models.Unknown,
		Issuer:        models.Unknown,
		Date:          models.Unknown,
		Confidence:    make(map[string]float32),
	}
}

// Missing lists the fields still holding a placeholder, a non-positive amount or an unreadable date.
func (r Result) Missing() []string {
	var missing []string
	for _, f := range []struct {
		name  string
		value string
	}{
		{FieldInvoiceNumber, r.InvoiceNumber},
		{FieldClaimNumber, r.ClaimNumber},
		{FieldInsurer, r.Insurer},
		{FieldIssuer, r.Issuer},
	} {
		if isUnknown(f.value) {
			missing = append(missing, f.name)
		}
	}
	if r.Amount <= 0 {
		missing = append(missing, FieldAmount)
	}
	if !dates.IsValid(r.Date) {
		missing = append(missing, FieldDate)
	}
	return missing
}

// Invoice builds the document to ingest. Statuses are left empty so the store applies its defaults.
func (r Result) Invoice(analystName, analystUID string) models.Invoice {
	return models.Invoice{
		InvoiceNumber: orUnknown(r.InvoiceNumber),
		ClaimNumber:   orUnknown(r.ClaimNumber),
		Issuer:        orUnknown(r.Issuer),
		Insurer:       orUnknown(r.Insurer),
		AnalystName:   analystName,
		AnalystUID:    analystUID,
		IssuanceDate:  orUnknown(r.Date),
		Amount:        r.Amount,
	}
}

// FileHandler receives every successfully extracted file of a batch.
type FileHandler func(path string, r Result) error

// ExtractFiles runs ex over each path in order. A file that cannot be opened, extracted
// or handled is reported in the returned slice and the batch moves on to the next one.
func ExtractFiles(ctx context.Context, ex Extractor, paths []string, handle FileHandler) []error {
	var failures []error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			failures = append(failures, &ExtractionError{Op: "ExtractFiles", File: p, Err: err})
			continue
		}
		if err := extractFile(ctx, ex, p, handle); err != nil {
			failures = append(failures, err)
		}
	}
	return failures
}

func extractFile(ctx context.Context, ex Extractor, path string, handle FileHandler) error {
	const op = "ExtractFile"

	f, err := os.Open(path)
	if err != nil {
		return &ExtractionError{Op: op, File: path, Err: err}
	}
	defer f.Close()

	result, err := ex.Extract(ctx, f)
	if err != nil {
		return &ExtractionError{Op: op, File: path, Err: err}
	}
	if err := handle(path, result); err != nil {
		return &ExtractionError{Op: op, File: path, Err: err, Details: "handler failed"}
	}
	return nil
}

// IsPDFName reports whether the file name carries a .pdf extension.
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// Describe renders a one-line summary for CLI output.
func (r Result) Describe() string {
	return fmt.Sprintf("factura=%s siniestro=%s emisor=%s aseguradora=%s monto=%.2f fecha=%s",
		r.InvoiceNumber, r.ClaimNumber, r.Issuer, r.Insurer, r.Amount, r.Date)
}

func isUnknown(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, models.Unknown)
}

func orUnknown(s string) string {
	if isUnknown(s) {
		return models.Unknown
	}
	return strings.TrimSpace(s)
}
