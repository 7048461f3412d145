package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/invoice"
	"verax/pkg/models"
)

func TestSpreadsheetID(t *testing.T) {
	id, err := SpreadsheetID("https://docs.google.com/spreadsheets/d/1AbC-d_9/edit#gid=0")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	id, err = SpreadsheetID("1AbC-d_9")
	require.NoError(t, err)
	assert.Equal(t, "1AbC-d_9", id)

	_, err = SpreadsheetID("https://example.com/other")
	assert.Error(t, err)
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(1))
	assert.Equal(t, "O", columnLetter(15))
	assert.Equal(t, "Z", columnLetter(26))
	assert.Equal(t, "AA", columnLetter(27))
}

func TestInvoiceTableFlagsOverdue(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	terms := invoice.NewTerms([]models.InsurerTerm{{Insurer: "La Segunda", Days: 90, ToleranceDays: 5}}, models.InsurerTerm{})

	views := []invoice.View{
		invoice.ViewOf(models.Invoice{ID: "a", InvoiceNumber: "1", Insurer: "La Segunda", IssuanceDate: "01/04/2024",
			CollectionStatus: models.CollectionNotCollected, PaymentStatus: models.PaymentUnpaid}, now),
		invoice.ViewOf(models.Invoice{ID: "b", InvoiceNumber: "2", Insurer: "Otra", IssuanceDate: "01/04/2024",
			CollectionStatus: models.CollectionNotCollected, PaymentStatus: models.PaymentUnpaid}, now),
	}

	table := InvoiceTable(views, terms, now)
	require.Len(t, table.Rows, 2)
	assert.Len(t, table.Rows[0], len(table.Headers))
	assert.Equal(t, "", table.Rows[0][14])
	assert.Equal(t, "SI", table.Rows[1][14])
	assert.Equal(t, 75, table.Rows[0][7])
}

func TestPayoutTable(t *testing.T) {
	yes := true
	scheduled := time.Date(2024, 6, 17, 12, 0, 0, 0, time.UTC)
	reqs := []models.PayoutRequest{{
		ID:                   "req-1",
		AnalystName:          "Ana",
		CreatedAt:            time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Status:               models.PayoutPendingPayment,
		InvoiceIDs:           []string{"a", "b"},
		TotalAmount:          500,
		RequiresInvoice:      &yes,
		ScheduledPaymentDate: &scheduled,
		Receipt:              &models.ReceiptInfo{URL: "https://x/r.pdf"},
	}}

	table := PayoutTable(reqs, nil)
	require.Len(t, table.Rows, 1)
	row := table.Rows[0]
	assert.Equal(t, "15/06/2024 12:00", row[3])
	assert.Equal(t, 2, row[5])
	assert.Equal(t, "SI", row[7])
	assert.Equal(t, "17/06/2024", row[8])
	assert.Equal(t, "https://x/r.pdf", row[10])
}

func TestCellsText(t *testing.T) {
	text := CellsText([][]interface{}{{"Factura", "0976"}, {"977"}})
	assert.Equal(t, "Factura 0976\n977\n", text)
}
