package models

import "time"

// Payout request statuses. SUBMITTED is the only initial state and no path leads back to it.
const (
	PayoutSubmitted      = "SUBMITTED"
	PayoutRejected       = "REJECTED"
	PayoutPendingInvoice = "PENDIENTE_FACTURA"
	PayoutPendingPayment = "PENDIENTE_PAGO"
	PayoutPaid           = "PAGO"
)

// Actor roles recorded in the history log.
const (
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

// History actions.
const (
	ActionSubmitted       = "SUBMITTED"
	ActionApproved        = "APPROVED"
	ActionRejected        = "REJECTED"
	ActionReceiptUploaded = "RECEIPT_UPLOADED"
	ActionPaid            = "PAID"
)

// PayoutRequest is an analyst's batch request to be paid for a set of eligible invoices.
type PayoutRequest struct {
	ID          string    `json:"id" firestore:"-"`
	AnalystUID  string    `json:"analystUid" firestore:"analystUid"`
	AnalystName string    `json:"analystName" firestore:"analystName"`
	CreatedAt   time.Time `json:"createdAt" firestore:"createdAt"`
	Status      string    `json:"status" firestore:"status"`

	// InvoiceIDs is fixed at submission; InvoiceSnapshot is never recomputed.
	InvoiceIDs      []string          `json:"invoiceIds" firestore:"invoiceIds"`
	InvoiceSnapshot []InvoiceSnapshot `json:"invoiceSnapshot" firestore:"invoiceSnapshot"`
	TotalAmount     float64           `json:"totalAmount" firestore:"totalAmount"`

	// RequiresInvoice is authoritative; InvoiceCRequired is the legacy name and is only
	// consulted when RequiresInvoice is absent.
	RequiresInvoice  *bool `json:"requiresInvoice,omitempty" firestore:"requiresInvoice,omitempty"`
	InvoiceCRequired *bool `json:"invoiceCRequired,omitempty" firestore:"invoiceCRequired,omitempty"`

	Receipt              *ReceiptInfo   `json:"receipt,omitempty" firestore:"receipt,omitempty"`
	ScheduledPaymentDate *time.Time     `json:"scheduledPaymentDate,omitempty" firestore:"scheduledPaymentDate,omitempty"`
	RejectionReason      string         `json:"rejectionReason,omitempty" firestore:"rejectionReason,omitempty"`
	PaidAt               string         `json:"paidAt,omitempty" firestore:"paidAt,omitempty"`
	History              []HistoryEntry `json:"history" firestore:"history"`
	UpdatedAt            time.Time      `json:"updatedAt" firestore:"updatedAt"`
}

// NeedsInvoice resolves whether the analyst must upload an invoice receipt before payment.
func (r *PayoutRequest) NeedsInvoice() bool {
	if r.RequiresInvoice != nil {
		return *r.RequiresInvoice
	}
	if r.InvoiceCRequired != nil {
		return *r.InvoiceCRequired
	}
	return false
}

// InvoiceSnapshot freezes an invoice's key fields and payable amount at submission time.
type InvoiceSnapshot struct {
	InvoiceID     string  `json:"invoiceId" firestore:"invoiceId"`
	InvoiceNumber string  `json:"nroFactura" firestore:"nroFactura"`
	ClaimNumber   string  `json:"nroSiniestro" firestore:"nroSiniestro"`
	Insurer       string  `json:"aseguradora" firestore:"aseguradora"`
	Issuer        string  `json:"emisor" firestore:"emisor"`
	IssuanceDate  string  `json:"fechaEmision" firestore:"fechaEmision"`
	Total         float64 `json:"total" firestore:"total"`
}

// ReceiptInfo describes the invoice receipt an analyst uploaded for a request.
type ReceiptInfo struct {
	URL        string    `json:"url" firestore:"url"`
	Filename   string    `json:"filename" firestore:"filename"`
	Path       string    `json:"path" firestore:"path"`
	UploadedBy string    `json:"uploadedBy" firestore:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt" firestore:"uploadedAt"`
}

// HistoryEntry is one append-only line of a request's action log.
type HistoryEntry struct {
	ID     string    `json:"id" firestore:"id"`
	At     time.Time `json:"at" firestore:"at"`
	Role   string    `json:"role" firestore:"role"`
	Action string    `json:"action" firestore:"action"`
	Note   string    `json:"note,omitempty" firestore:"note,omitempty"`
}
