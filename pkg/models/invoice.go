package models

import "time"

// Collection status (Estado de Cobro): whether the insurer has paid the issuer.
const (
	CollectionNotCollected = "NO_COBRADO"
	CollectionCollected    = "COBRADO"
)

// Analyst payment status (Estado de Pago): whether the analyst has been paid their commission.
// The pending values mirror the status of the payout request the invoice is linked to.
const (
	PaymentUnpaid          = "IMPAGO"
	PaymentPaid            = "PAGO"
	PaymentPendingApproval = "PENDIENTE_APROBACION"
	PaymentPendingInvoice  = "PENDIENTE_FACTURA"
	PaymentPendingPayment  = "PENDIENTE_PAGO"
)

// Unknown is the placeholder the PDF extractor leaves for fields staff must correct.
const Unknown = "DESCONOCIDO"

// CurrentSchemaVersion is the canonical invoice document schema written at ingestion and by migrations.
const CurrentSchemaVersion = 2

type Invoice struct {
	// Core identifiers
	ID            string `json:"id" firestore:"-"`
	InvoiceNumber string `json:"nroFactura" firestore:"nroFactura"`
	ClaimNumber   string `json:"nroSiniestro" firestore:"nroSiniestro"`

	// Parties
	Issuer      string `json:"emisor" firestore:"emisor"`
	Insurer     string `json:"aseguradora" firestore:"aseguradora"`
	AnalystName string `json:"analista" firestore:"analista"`
	AnalystUID  string `json:"analistaUid,omitempty" firestore:"analistaUid,omitempty"`

	// Dates are kept as DD/MM/YYYY strings, the way staff enter them
	IssuanceDate string `json:"fechaEmision" firestore:"fechaEmision"`
	ReportDate   string `json:"fechaInforme,omitempty" firestore:"fechaInforme,omitempty"`

	// Face amount of the invoice
	Amount float64 `json:"monto" firestore:"monto"`

	// Collection (insurer -> issuer)
	CollectionStatus string `json:"estadoCobro" firestore:"estadoCobro"`
	CollectionDate   string `json:"fechaCobro,omitempty" firestore:"fechaCobro,omitempty"`

	// Analyst payment
	PaymentStatus string `json:"estadoPago" firestore:"estadoPago"`
	PaymentDate   string `json:"fechaPagoAnalista,omitempty" firestore:"fechaPagoAnalista,omitempty"`

	// Commission components
	ManagementFee  float64  `json:"honorarios" firestore:"honorarios"`
	SavingsBonus   float64  `json:"plusAhorro" firestore:"plusAhorro"`
	SavingsPayable float64  `json:"ahorroAPagar" firestore:"ahorroAPagar"`
	PerDiemPayable float64  `json:"viaticosAPagar" firestore:"viaticosAPagar"`
	AnalystTotal   *float64 `json:"totalAnalista,omitempty" firestore:"totalAnalista,omitempty"`
	LegacyTotal    *float64 `json:"totalALiquidar,omitempty" firestore:"totalALiquidar,omitempty"`

	// Link to an open payout request
	LinkedPayoutRequestID string     `json:"linkedPayoutRequestId,omitempty" firestore:"linkedPayoutRequestId,omitempty"`
	PayoutRequestedAt     *time.Time `json:"payoutRequestedAt,omitempty" firestore:"payoutRequestedAt,omitempty"`

	// Bookkeeping
	SchemaVersion int       `json:"schemaVersion" firestore:"schemaVersion"`
	Version       int64     `json:"version" firestore:"version"`
	CreatedAt     time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// IsCollected reports whether the insurer already paid this invoice.
func (i *Invoice) IsCollected() bool {
	return i.CollectionStatus == CollectionCollected
}

// IsLinked reports whether the invoice is attached to an open payout request.
func (i *Invoice) IsLinked() bool {
	return i.LinkedPayoutRequestID != ""
}

// EffectiveIssuanceDate prefers the report date over the plain issuance date when present.
func (i *Invoice) EffectiveIssuanceDate() string {
	if i.ReportDate != "" {
		return i.ReportDate
	}
	return i.IssuanceDate
}
