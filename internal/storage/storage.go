// Package storage uploads receipts and liquidation orders to object storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// Object storage prefixes.
const (
	ReceiptsPrefix     = "payout_receipts"
	LiquidationsPrefix = "liquidations"
)

// ContentTypePDF is the only content type accepted for receipts and liquidation orders.
const ContentTypePDF = "application/pdf"

var ErrObjectNotFound = errors.New("object not found")

// Object describes a stored file.
type Object struct {
	Path        string `json:"path"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// Uploader is the object-store collaborator. URLs returned by Upload stay valid after the call.
type Uploader interface {
	Upload(ctx context.Context, objectPath, contentType string, r io.Reader) (Object, error)
	Delete(ctx context.Context, objectPath string) error
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SafeName reduces name to characters that are safe in an object path.
func SafeName(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "." || name == "/" {
		name = ""
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_.")
	if name == "" {
		return "file"
	}
	return name
}

// ReceiptPath is where the receipt for a payout request is stored.
func ReceiptPath(requestID, filename string) string {
	return fmt.Sprintf("%s/%s/%s", ReceiptsPrefix, SafeName(requestID), SafeName(filename))
}

// LiquidationPath is where an insurer's liquidation order is stored. The timestamp keeps
// repeated uploads of the same file apart.
func LiquidationPath(insurer, filename string, at time.Time) string {
	return fmt.Sprintf("%s/%s/%d_%s", LiquidationsPrefix, SafeName(insurer), at.UnixMilli(), SafeName(filename))
}

// IsPDF reports whether contentType names a PDF, ignoring parameters and case.
func IsPDF(contentType string) bool {
	mediaType := strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	return strings.EqualFold(mediaType, ContentTypePDF)
}
