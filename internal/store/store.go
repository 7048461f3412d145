// Package store is the document-store collaborator: invoices (primary and per-analyst mirror),
// payout requests and settings.
//
// Every invoice mutation goes through Tx.UpdateInvoice, which writes the primary document and
// rebuilds the mirror from it inside the same transaction. The mirror has no authority of its own.
package store

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"verax/internal/invoice"
	"verax/pkg/models"
)

// Collection and document names.
const (
	InvoicesCollection        = "invoices"
	AnalystInvoicesCollection = "analyst_invoices"
	MirrorItemsCollection     = "items"
	PayoutRequestsCollection  = "payoutRequests"
	SettingsCollection        = "settings"
	AnalystRulesDoc           = "analystRules"
	InsurerTermsDoc           = "insurerTerms"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document changed since it was read")
	ErrNotRead  = errors.New("document must be read in the transaction before it is written")
)

// AnyVersion skips the optimistic version check in UpdateInvoice.
const AnyVersion int64 = -1

type removeField struct{}

// Remove deletes a field when used as a Patch value.
var Remove = removeField{}

// Patch is a partial update of an invoice document keyed by canonical field name.
type Patch map[string]interface{}

// InvoiceFilter narrows ListInvoices. Empty fields match everything. Filters apply to canonical
// field names, so documents that were never migrated only match on an empty filter.
type InvoiceFilter struct {
	Issuer           string
	AnalystUID       string
	PaymentStatus    string
	CollectionStatus string
	LinkedRequestID  string
}

// PayoutFilter narrows ListPayoutRequests.
type PayoutFilter struct {
	AnalystUID string
	Status     string
}

// ChangeKind tells what happened to a document in a subscription event.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// InvoiceChange is one event delivered to a WatchInvoices handler.
type InvoiceChange struct {
	Kind    ChangeKind     `json:"kind"`
	Invoice models.Invoice `json:"invoice"`
}

// Subscription is a live listener. Stop releases it; calling Stop more than once is a no-op.
type Subscription interface {
	Stop()
}

// Store is the document store used by the payout and collection services.
type Store interface {
	GetInvoice(ctx context.Context, id string) (models.Invoice, error)
	ListInvoices(ctx context.Context, filter InvoiceFilter) ([]models.Invoice, error)
	// ScanRawInvoices calls fn with every primary invoice document as stored.
	ScanRawInvoices(ctx context.Context, fn func(id string, raw map[string]interface{}) error) error
	CreateInvoice(ctx context.Context, inv models.Invoice) (models.Invoice, error)
	UpdateInvoiceFields(ctx context.Context, id string, expectedVersion int64, patch Patch) (models.Invoice, error)
	DeleteInvoice(ctx context.Context, id string) error

	GetPayoutRequest(ctx context.Context, id string) (models.PayoutRequest, error)
	ListPayoutRequests(ctx context.Context, filter PayoutFilter) ([]models.PayoutRequest, error)

	AnalystRules(ctx context.Context) ([]models.AnalystRule, error)
	SaveAnalystRules(ctx context.Context, rules []models.AnalystRule) error
	InsurerTerms(ctx context.Context) ([]models.InsurerTerm, error)
	SaveInsurerTerms(ctx context.Context, terms []models.InsurerTerm) error

	// RunTx runs fn as one atomic unit: all writes commit together or none do.
	RunTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	WatchInvoices(ctx context.Context, filter InvoiceFilter, handler func(InvoiceChange)) (Subscription, error)
	Close() error
}

// Tx is the view of the store inside RunTx. All reads must happen before the first write.
type Tx interface {
	GetInvoice(id string) (models.Invoice, error)
	GetPayoutRequest(id string) (models.PayoutRequest, error)
	CreatePayoutRequest(req models.PayoutRequest) error
	UpdatePayoutRequest(req models.PayoutRequest) error
	// UpdateInvoice applies patch to the primary document and its mirror. It fails with
	// ErrConflict when the invoice version is no longer expectedVersion.
	UpdateInvoice(id string, expectedVersion int64, patch Patch) error
}

// applyPatch returns raw with patch applied plus the bookkeeping every write carries.
func applyPatch(raw map[string]interface{}, patch Patch, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(raw)+len(patch)+3)
	for k, v := range raw {
		out[k] = v
	}
	for k, v := range expandPatch(patch) {
		if v == Remove {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	out[invoice.FieldVersion] = invoice.Canonical("", raw).Version + 1
	out[invoice.FieldUpdatedAt] = now
	return out
}

// expandPatch keeps both payment status names in step.
func expandPatch(patch Patch) Patch {
	out := make(Patch, len(patch)+1)
	for k, v := range patch {
		out[k] = v
	}
	if v, ok := patch[invoice.FieldPaymentStatus]; ok {
		out[invoice.FieldMirrorStatus] = v
	} else if v, ok := patch[invoice.FieldMirrorStatus]; ok {
		out[invoice.FieldPaymentStatus] = v
	}
	return out
}

func checkVersion(current models.Invoice, expected int64) error {
	if expected != AnyVersion && current.Version != expected {
		return ErrConflict
	}
	return nil
}

func newInvoiceFields(inv models.Invoice, now time.Time) map[string]interface{} {
	inv.Version = 1
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.SchemaVersion = models.CurrentSchemaVersion
	if inv.PaymentStatus == "" {
		inv.PaymentStatus = models.PaymentUnpaid
	}
	if inv.CollectionStatus == "" {
		inv.CollectionStatus = models.CollectionNotCollected
	}
	return invoice.Fields(inv)
}

// Matches reports whether inv passes filter.
func (f InvoiceFilter) Matches(inv models.Invoice) bool {
	switch {
	case f.Issuer != "" && !strings.EqualFold(strings.TrimSpace(inv.Issuer), strings.TrimSpace(f.Issuer)):
		return false
	case f.AnalystUID != "" && inv.AnalystUID != f.AnalystUID:
		return false
	case f.PaymentStatus != "" && inv.PaymentStatus != f.PaymentStatus:
		return false
	case f.CollectionStatus != "" && inv.CollectionStatus != f.CollectionStatus:
		return false
	case f.LinkedRequestID != "" && inv.LinkedPayoutRequestID != f.LinkedRequestID:
		return false
	}
	return true
}

// Matches reports whether req passes filter.
func (f PayoutFilter) Matches(req models.PayoutRequest) bool {
	if f.AnalystUID != "" && req.AnalystUID != f.AnalystUID {
		return false
	}
	return f.Status == "" || req.Status == f.Status
}

func sortInvoices(invs []models.Invoice) {
	sort.SliceStable(invs, func(i, j int) bool {
		if invs[i].InvoiceNumber != invs[j].InvoiceNumber {
			return invs[i].InvoiceNumber < invs[j].InvoiceNumber
		}
		return invs[i].ID < invs[j].ID
	})
}

// newest first
func sortPayouts(reqs []models.PayoutRequest) {
	sort.SliceStable(reqs, func(i, j int) bool {
		if !reqs[i].CreatedAt.Equal(reqs[j].CreatedAt) {
			return reqs[i].CreatedAt.After(reqs[j].CreatedAt)
		}
		return reqs[i].ID < reqs[j].ID
	})
}
