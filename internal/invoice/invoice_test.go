package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/pkg/models"
)

var now = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

func legacyDoc() map[string]interface{} {
	return map[string]interface{}{
		"factura":         "0001-00000976",
		"nro":             "ignored, lower priority",
		"siniestro":       int64(445566),
		"empresa":         "Estudio Pérez",
		"cia":             "La Segunda",
		"analyst":         "Juana Gómez",
		"fecha":           "01/04/2024",
		"importe":         "150.000,00",
		"honorarios":      "10.000",
		"plus":            2500.0,
		"aLiquidar":       "",
		"cobro":           "cobrado",
		"customLegacyKey": true,
	}
}

func TestCanonicalResolvesAliasesInPriorityOrder(t *testing.T) {
	inv := Canonical("inv-1", legacyDoc())

	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, "0001-00000976", inv.InvoiceNumber)
	assert.Equal(t, "445566", inv.ClaimNumber)
	assert.Equal(t, "Estudio Pérez", inv.Issuer)
	assert.Equal(t, "La Segunda", inv.Insurer)
	assert.Equal(t, "Juana Gómez", inv.AnalystName)
	assert.Equal(t, "01/04/2024", inv.IssuanceDate)
	assert.Equal(t, 150000.0, inv.Amount)
	assert.Equal(t, models.CollectionCollected, inv.CollectionStatus)
	assert.Equal(t, models.PaymentUnpaid, inv.PaymentStatus, "missing payment status defaults to IMPAGO")
	assert.Nil(t, inv.LegacyTotal, "blank legacy total stays undefined")
	assert.Equal(t, 1, inv.SchemaVersion)
}

func TestCanonicalPrefersCanonicalName(t *testing.T) {
	raw := map[string]interface{}{
		"nroFactura":    "A-1",
		"factura":       "B-2",
		"estadoPago":    "",
		"paymentStatus": "PENDIENTE_PAGO",
		"fechaEmision":  time.Date(2024, time.January, 2, 0, 0, 0, 0, time.UTC),
	}
	inv := Canonical("x", raw)
	assert.Equal(t, "A-1", inv.InvoiceNumber)
	assert.Equal(t, models.PaymentPendingPayment, inv.PaymentStatus, "empty primary name falls through to mirror name")
	assert.Equal(t, "02/01/2024", inv.IssuanceDate, "timestamps are rendered as DD/MM/YYYY")
}

func TestNormalizeComputesDerivedValues(t *testing.T) {
	raw := legacyDoc()
	raw["fechaPresentacionInforme"] = "05/05/2024"

	view := Normalize("inv-1", raw, now)
	assert.Equal(t, 41, view.DaysSinceIssuance, "report date is preferred over issuance date")
	assert.Equal(t, 12500.0, view.PayableTotal)
}

func TestViewOfMalformedDate(t *testing.T) {
	for _, d := range []string{"", "DESCONOCIDO", "2024-05-01", "31/02/2024"} {
		t.Run(d, func(t *testing.T) {
			inv := models.Invoice{PaymentStatus: models.PaymentUnpaid, IssuanceDate: d}
			assert.Equal(t, 0, ViewOf(inv, now).DaysSinceIssuance)
			assert.False(t, IsEligibleForCashout(inv, now))
		})
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := legacyDoc()
	assert.Equal(t, Normalize("inv-1", raw, now), Normalize("inv-1", raw, now))
}

func TestFieldsRoundTripThroughCanonical(t *testing.T) {
	total := 900.0
	requested := now.Add(-time.Hour)
	inv := models.Invoice{
		ID:                    "inv-9",
		InvoiceNumber:         "0003-00000010",
		ClaimNumber:           "SIN-1",
		Issuer:                "Issuer",
		Insurer:               "Insurer",
		AnalystName:           "Ana",
		AnalystUID:            "uid-1",
		IssuanceDate:          "01/01/2024",
		Amount:                1000,
		CollectionStatus:      models.CollectionNotCollected,
		PaymentStatus:         models.PaymentPendingApproval,
		AnalystTotal:          &total,
		LinkedPayoutRequestID: "req-1",
		PayoutRequestedAt:     &requested,
		SchemaVersion:         models.CurrentSchemaVersion,
		Version:               3,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	fields := Fields(inv)
	assert.Equal(t, models.PaymentPendingApproval, fields[FieldMirrorStatus])
	assert.Equal(t, inv, Canonical("inv-9", fields))
}

func TestEligibility(t *testing.T) {
	base := models.Invoice{PaymentStatus: models.PaymentUnpaid, IssuanceDate: "01/05/2024"}

	tests := []struct {
		name   string
		mutate func(*models.Invoice)
		want   bool
	}{
		{name: "unpaid unlinked old enough", mutate: func(*models.Invoice) {}, want: true},
		{name: "exactly forty days", mutate: func(i *models.Invoice) { i.IssuanceDate = "06/05/2024" }, want: true},
		{name: "thirty nine days", mutate: func(i *models.Invoice) { i.IssuanceDate = "07/05/2024" }, want: false},
		{name: "paid", mutate: func(i *models.Invoice) { i.PaymentStatus = models.PaymentPaid }, want: false},
		{name: "pending approval", mutate: func(i *models.Invoice) { i.PaymentStatus = models.PaymentPendingApproval }, want: false},
		{name: "linked", mutate: func(i *models.Invoice) { i.LinkedPayoutRequestID = "req-1" }, want: false},
		{name: "recent report date wins", mutate: func(i *models.Invoice) { i.ReportDate = "10/06/2024" }, want: false},
		{name: "malformed date", mutate: func(i *models.Invoice) { i.IssuanceDate = "2024-05-01" }, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := base
			tt.mutate(&inv)
			assert.Equal(t, tt.want, IsEligibleForCashout(inv, now))
		})
	}
}

func TestEligibilityImpliesPreconditions(t *testing.T) {
	statuses := []string{models.PaymentUnpaid, models.PaymentPaid, models.PaymentPendingApproval, models.PaymentPendingInvoice, models.PaymentPendingPayment}
	links := []string{"", "req-1"}
	issued := []string{"01/01/2024", "01/05/2024", "06/05/2024", "07/05/2024", "15/06/2024", "20/07/2024", "bad"}

	for _, s := range statuses {
		for _, l := range links {
			for _, d := range issued {
				inv := models.Invoice{PaymentStatus: s, LinkedPayoutRequestID: l, IssuanceDate: d}
				if IsEligibleForCashout(inv, now) {
					assert.Equal(t, models.PaymentUnpaid, inv.PaymentStatus)
					assert.Empty(t, inv.LinkedPayoutRequestID)
					assert.GreaterOrEqual(t, Normalize("", Fields(inv), now).DaysSinceIssuance, MinCashoutAgeDays)
				}
			}
		}
	}
}

func TestCashoutBlockerExplains(t *testing.T) {
	inv := models.Invoice{PaymentStatus: models.PaymentUnpaid, IssuanceDate: "10/06/2024"}
	assert.Contains(t, CashoutBlocker(inv, now, 40), "only 5 days")
}

func TestIsOverdue(t *testing.T) {
	terms := NewTerms([]models.InsurerTerm{{Insurer: "La Segunda", Days: 60, ToleranceDays: 5}}, models.InsurerTerm{})

	inv := models.Invoice{Insurer: "la  segunda", IssuanceDate: "01/04/2024", CollectionStatus: models.CollectionNotCollected}
	assert.True(t, IsOverdue(inv, terms, now), "75 days > 65")

	inv.IssuanceDate = "15/04/2024"
	assert.False(t, IsOverdue(inv, terms, now), "61 days <= 65")

	unknown := models.Invoice{Insurer: "Otra", IssuanceDate: "01/05/2024"}
	assert.True(t, IsOverdue(unknown, terms, now), "45 days > default 30")

	unknown.CollectionStatus = models.CollectionCollected
	assert.False(t, IsOverdue(unknown, terms, now), "collected invoices are never overdue")

	unknown.CollectionStatus = ""
	unknown.IssuanceDate = "??"
	assert.False(t, IsOverdue(unknown, terms, now))
}

func TestMigrate(t *testing.T) {
	raw := legacyDoc()
	require.True(t, NeedsMigration(raw))

	m := Migrate("inv-1", raw)
	assert.Equal(t, "0001-00000976", m.Set[FieldInvoiceNumber])
	assert.Equal(t, models.CurrentSchemaVersion, m.Set[FieldSchemaVersion])
	assert.NotContains(t, m.Set, FieldVersion)
	assert.Equal(t, []string{"aLiquidar", "analyst", "cia", "cobro", "empresa", "factura", "fecha", "importe", "nro", "plus", "siniestro"}, m.Remove)
	assert.NotContains(t, m.Remove, "customLegacyKey")

	migrated := map[string]interface{}{"customLegacyKey": true}
	for k, v := range m.Set {
		migrated[k] = v
	}
	assert.False(t, NeedsMigration(migrated))
	assert.Equal(t, Canonical("inv-1", raw).InvoiceNumber, Canonical("inv-1", migrated).InvoiceNumber)
	assert.Equal(t, Canonical("inv-1", raw).Amount, Canonical("inv-1", migrated).Amount)
}

func TestIsEditable(t *testing.T) {
	assert.True(t, IsEditable(FieldIssuer))
	assert.True(t, IsEditable(FieldPaymentStatus))
	assert.False(t, IsEditable(FieldLinkedRequest))
	assert.False(t, IsEditable(FieldVersion))
	assert.False(t, IsEditable("factura"))
}
