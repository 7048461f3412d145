package invoice

import "verax/pkg/models"

// Canonical document field names (schema version 2).
const (
	FieldInvoiceNumber     = "nroFactura"
	FieldClaimNumber       = "nroSiniestro"
	FieldIssuer            = "emisor"
	FieldInsurer           = "aseguradora"
	FieldAnalyst           = "analista"
	FieldAnalystUID        = "analistaUid"
	FieldIssuanceDate      = "fechaEmision"
	FieldReportDate        = "fechaInforme"
	FieldAmount            = "monto"
	FieldCollectionStatus  = "estadoCobro"
	FieldCollectionDate    = "fechaCobro"
	FieldPaymentStatus     = "estadoPago"
	FieldMirrorStatus      = "paymentStatus"
	FieldPaymentDate       = "fechaPagoAnalista"
	FieldManagementFee     = "honorarios"
	FieldSavingsBonus      = "plusAhorro"
	FieldSavingsPayable    = "ahorroAPagar"
	FieldPerDiemPayable    = "viaticosAPagar"
	FieldAnalystTotal      = "totalAnalista"
	FieldLegacyTotal       = "totalALiquidar"
	FieldLinkedRequest     = "linkedPayoutRequestId"
	FieldPayoutRequestedAt = "payoutRequestedAt"
	FieldSchemaVersion     = "schemaVersion"
	FieldVersion           = "version"
	FieldCreatedAt         = "createdAt"
	FieldUpdatedAt         = "updatedAt"
)

// aliases lists, per canonical field, the historical names it was stored under.
// The canonical name comes first; the first non-empty value wins.
var aliases = map[string][]string{
	FieldInvoiceNumber:     {FieldInvoiceNumber, "factura", "numeroFactura", "nro"},
	FieldClaimNumber:       {FieldClaimNumber, "siniestro", "numeroSiniestro"},
	FieldIssuer:            {FieldIssuer, "emisorNombre", "empresa"},
	FieldInsurer:           {FieldInsurer, "compania", "cia"},
	FieldAnalyst:           {FieldAnalyst, "analistaNombre", "analyst"},
	FieldAnalystUID:        {FieldAnalystUID, "analystUid", "uidAnalista"},
	FieldIssuanceDate:      {FieldIssuanceDate, "fecha", "fechaFactura"},
	FieldReportDate:        {FieldReportDate, "fechaPresentacionInforme", "reportDate"},
	FieldAmount:            {FieldAmount, "importe", "montoFactura"},
	FieldCollectionStatus:  {FieldCollectionStatus, "cobro"},
	FieldCollectionDate:    {FieldCollectionDate, "fechaDeCobro"},
	FieldPaymentStatus:     {FieldPaymentStatus, FieldMirrorStatus},
	FieldPaymentDate:       {FieldPaymentDate, "fechaPago"},
	FieldManagementFee:     {FieldManagementFee, "gestion", "honorariosGestion"},
	FieldSavingsBonus:      {FieldSavingsBonus, "plus"},
	FieldSavingsPayable:    {FieldSavingsPayable, "ahorro"},
	FieldPerDiemPayable:    {FieldPerDiemPayable, "viaticos"},
	FieldAnalystTotal:      {FieldAnalystTotal, "totalAPagarAnalista"},
	FieldLegacyTotal:       {FieldLegacyTotal, "aLiquidar"},
	FieldLinkedRequest:     {FieldLinkedRequest},
	FieldPayoutRequestedAt: {FieldPayoutRequestedAt, "cashoutRequestedAt"},
}

// canonicalKeys are the names a schema-2 document may legitimately carry.
var canonicalKeys = map[string]bool{
	FieldInvoiceNumber: true, FieldClaimNumber: true, FieldIssuer: true, FieldInsurer: true,
	FieldAnalyst: true, FieldAnalystUID: true, FieldIssuanceDate: true, FieldReportDate: true,
	FieldAmount: true, FieldCollectionStatus: true, FieldCollectionDate: true,
	FieldPaymentStatus: true, FieldMirrorStatus: true, FieldPaymentDate: true,
	FieldManagementFee: true, FieldSavingsBonus: true, FieldSavingsPayable: true,
	FieldPerDiemPayable: true, FieldAnalystTotal: true, FieldLegacyTotal: true,
	FieldLinkedRequest: true, FieldPayoutRequestedAt: true, FieldSchemaVersion: true,
	FieldVersion: true, FieldCreatedAt: true, FieldUpdatedAt: true,
}

// Fields encodes an invoice into its canonical document shape. The payment status is written
// under both names so primary and mirror documents read the same.
func Fields(inv models.Invoice) map[string]interface{} {
	f := map[string]interface{}{
		FieldInvoiceNumber:    inv.InvoiceNumber,
		FieldClaimNumber:      inv.ClaimNumber,
		FieldIssuer:           inv.Issuer,
		FieldInsurer:          inv.Insurer,
		FieldAnalyst:          inv.AnalystName,
		FieldIssuanceDate:     inv.IssuanceDate,
		FieldAmount:           inv.Amount,
		FieldCollectionStatus: inv.CollectionStatus,
		FieldPaymentStatus:    inv.PaymentStatus,
		FieldMirrorStatus:     inv.PaymentStatus,
		FieldManagementFee:    inv.ManagementFee,
		FieldSavingsBonus:     inv.SavingsBonus,
		FieldSavingsPayable:   inv.SavingsPayable,
		FieldPerDiemPayable:   inv.PerDiemPayable,
		FieldSchemaVersion:    models.CurrentSchemaVersion,
		FieldVersion:          inv.Version,
		FieldCreatedAt:        inv.CreatedAt,
		FieldUpdatedAt:        inv.UpdatedAt,
	}
	if inv.AnalystUID != "" {
		f[FieldAnalystUID] = inv.AnalystUID
	}
	if inv.ReportDate != "" {
		f[FieldReportDate] = inv.ReportDate
	}
	if inv.CollectionDate != "" {
		f[FieldCollectionDate] = inv.CollectionDate
	}
	if inv.PaymentDate != "" {
		f[FieldPaymentDate] = inv.PaymentDate
	}
	if inv.AnalystTotal != nil {
		f[FieldAnalystTotal] = *inv.AnalystTotal
	}
	if inv.LegacyTotal != nil {
		f[FieldLegacyTotal] = *inv.LegacyTotal
	}
	if inv.LinkedPayoutRequestID != "" {
		f[FieldLinkedRequest] = inv.LinkedPayoutRequestID
	}
	if inv.PayoutRequestedAt != nil {
		f[FieldPayoutRequestedAt] = *inv.PayoutRequestedAt
	}
	return f
}

// managedKeys are written only by the payout workflow and the store itself.
var managedKeys = map[string]bool{
	FieldLinkedRequest: true, FieldPayoutRequestedAt: true, FieldSchemaVersion: true,
	FieldVersion: true, FieldCreatedAt: true, FieldUpdatedAt: true,
}

// IsEditable reports whether staff may set field directly on a canonical document.
func IsEditable(field string) bool {
	return canonicalKeys[field] && !managedKeys[field]
}
