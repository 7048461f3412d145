package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/invoice"
	"verax/pkg/models"
)

func legacyInvoice() map[string]interface{} {
	return map[string]interface{}{
		"factura":   "0001-00000976",
		"siniestro": "S-1",
		"empresa":   "Estudio Norte",
		"cia":       "La Segunda",
		"fecha":     "01/04/2024",
		"importe":   "150.000,00",
	}
}

func TestMigrateInvoices(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	m.PutRawInvoice("legacy", legacyInvoice())
	current, err := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "2", AnalystUID: "uid-1"})
	require.NoError(t, err)

	dry, err := MigrateInvoices(ctx, m, true)
	require.NoError(t, err)
	assert.Equal(t, 2, dry.Scanned)
	assert.Equal(t, []string{"legacy"}, dry.Pending)
	assert.Equal(t, 0, dry.Migrated)
	raw, _ := m.RawInvoice("legacy")
	assert.Contains(t, raw, "factura")

	report, err := MigrateInvoices(ctx, m, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Migrated)
	assert.Empty(t, report.Failed)

	raw, _ = m.RawInvoice("legacy")
	assert.NotContains(t, raw, "factura")
	assert.NotContains(t, raw, "cia")
	assert.Equal(t, "0001-00000976", raw[invoice.FieldInvoiceNumber])
	assert.False(t, invoice.NeedsMigration(raw))

	inv, err := m.GetInvoice(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "La Segunda", inv.Insurer)
	assert.Equal(t, 150000.0, inv.Amount)

	untouched, err := m.GetInvoice(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, current.Version, untouched.Version)

	again, err := MigrateInvoices(ctx, m, false)
	require.NoError(t, err)
	assert.Empty(t, again.Pending)
}
