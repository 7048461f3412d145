package sheets

import (
	"fmt"
	"strings"
	"time"

	"verax/internal/dates"
	"verax/internal/invoice"
	"verax/pkg/models"
)

// Sheet names used by the export command.
const (
	InvoicesSheet = "Facturas"
	OverdueSheet  = "Vencidas"
	PayoutsSheet  = "Solicitudes"
)

// Table is a header row plus data rows ready to be written.
type Table struct {
	Headers []string
	Rows    [][]interface{}
}

func (t Table) headerValues() []interface{} {
	out := make([]interface{}, len(t.Headers))
	for i, h := range t.Headers {
		out[i] = h
	}
	return out
}

var invoiceHeaders = []string{
	"ID", "Nro Factura", "Nro Siniestro", "Emisor", "Aseguradora", "Analista",
	"Fecha Emisión", "Días", "Monto", "Estado Cobro", "Fecha Cobro",
	"Estado Pago", "A Liquidar", "Solicitud", "Vencida",
}

// InvoiceTable renders invoice views, flagging those the insurer is late on.
func InvoiceTable(views []invoice.View, terms invoice.Terms, now time.Time) Table {
	t := Table{Headers: invoiceHeaders}
	for _, v := range views {
		overdue := ""
		if invoice.IsOverdue(v.Invoice, terms, now) {
			overdue = "SI"
		}
		t.Rows = append(t.Rows, []interface{}{
			v.ID,
			v.InvoiceNumber,
			v.ClaimNumber,
			v.Issuer,
			v.Insurer,
			v.AnalystName,
			v.IssuanceDate,
			v.DaysSinceIssuance,
			v.Amount,
			v.CollectionStatus,
			v.CollectionDate,
			v.PaymentStatus,
			v.PayableTotal,
			v.LinkedPayoutRequestID,
			overdue,
		})
	}
	return t
}

var payoutHeaders = []string{
	"ID", "Analista", "UID", "Creada", "Estado", "Facturas", "Total",
	"Requiere Factura", "Pago Programado", "Pagado", "Comprobante", "Motivo Rechazo",
}

// PayoutTable renders payout requests.
func PayoutTable(reqs []models.PayoutRequest, loc *time.Location) Table {
	if loc == nil {
		loc = time.UTC
	}
	t := Table{Headers: payoutHeaders}
	for _, r := range reqs {
		scheduled := ""
		if r.ScheduledPaymentDate != nil {
			scheduled = dates.Format(r.ScheduledPaymentDate.In(loc))
		}
		receipt := ""
		if r.Receipt != nil {
			receipt = r.Receipt.URL
		}
		needsInvoice := "NO"
		if r.NeedsInvoice() {
			needsInvoice = "SI"
		}
		t.Rows = append(t.Rows, []interface{}{
			r.ID,
			r.AnalystName,
			r.AnalystUID,
			r.CreatedAt.In(loc).Format("02/01/2006 15:04"),
			r.Status,
			len(r.InvoiceIDs),
			r.TotalAmount,
			needsInvoice,
			scheduled,
			r.PaidAt,
			receipt,
			r.RejectionReason,
		})
	}
	return t
}

// CellsText joins spreadsheet cells with spaces and rows with newlines.
func CellsText(values [][]interface{}) string {
	var b strings.Builder
	for _, row := range values {
		for i, cell := range row {
			if i > 0 {
				b.WriteByte(' ')
			}
			fmt.Fprint(&b, cell)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// columnLetter converts a 1-based column count into its A1 letter (1 -> A, 27 -> AA).
func columnLetter(n int) string {
	if n < 1 {
		return "A"
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
