// Package invoice turns stored invoice documents into one canonical view and
// holds the rules that decide when an invoice may be cashed out or is overdue.
//
// Invoice documents were written over several years under different field
// names for the same concept. Canonical resolves those aliases in a fixed
// priority order; Migrate rewrites a document into the canonical schema once
// so later reads no longer depend on the alias table.
package invoice

import (
	"strconv"
	"strings"
	"time"

	"verax/internal/dates"
	"verax/internal/money"
	"verax/pkg/models"
)

// View is the canonical invoice plus the derived values the dashboard shows.
type View struct {
	models.Invoice
	DaysSinceIssuance int     `json:"diasDesdeEmision"`
	PayableTotal      float64 `json:"aLiquidar"`
}

// Normalize maps a raw stored document into its canonical view as of now.
// It is pure: the same raw document and instant always yield the same view.
func Normalize(id string, raw map[string]interface{}, now time.Time) View {
	inv := Canonical(id, raw)
	return ViewOf(inv, now)
}

// ViewOf derives the dashboard values for an already canonical invoice.
func ViewOf(inv models.Invoice, now time.Time) View {
	return View{
		Invoice:           inv,
		DaysSinceIssuance: dates.DaysSince(inv.EffectiveIssuanceDate(), now),
		PayableTotal:      PayableTotal(inv),
	}
}

// PayableTotal is the amount the analyst is owed for inv.
func PayableTotal(inv models.Invoice) float64 {
	return money.AnalystPayableTotal(money.Commission{
		AnalystTotal:   inv.AnalystTotal,
		LegacyTotal:    inv.LegacyTotal,
		ManagementFee:  inv.ManagementFee,
		SavingsBonus:   inv.SavingsBonus,
		PerDiemPayable: inv.PerDiemPayable,
		SavingsPayable: inv.SavingsPayable,
	})
}

// Canonical resolves every canonical field of a raw document from its alias list.
func Canonical(id string, raw map[string]interface{}) models.Invoice {
	inv := models.Invoice{
		ID:                    id,
		InvoiceNumber:         str(raw, FieldInvoiceNumber),
		ClaimNumber:           str(raw, FieldClaimNumber),
		Issuer:                str(raw, FieldIssuer),
		Insurer:               str(raw, FieldInsurer),
		AnalystName:           str(raw, FieldAnalyst),
		AnalystUID:            str(raw, FieldAnalystUID),
		IssuanceDate:          dateStr(raw, FieldIssuanceDate),
		ReportDate:            dateStr(raw, FieldReportDate),
		Amount:                money.ToAmount(first(raw, FieldAmount)),
		CollectionStatus:      status(str(raw, FieldCollectionStatus), models.CollectionNotCollected),
		CollectionDate:        dateStr(raw, FieldCollectionDate),
		PaymentStatus:         status(str(raw, FieldPaymentStatus), models.PaymentUnpaid),
		PaymentDate:           dateStr(raw, FieldPaymentDate),
		ManagementFee:         money.ToAmount(first(raw, FieldManagementFee)),
		SavingsBonus:          money.ToAmount(first(raw, FieldSavingsBonus)),
		SavingsPayable:        money.ToAmount(first(raw, FieldSavingsPayable)),
		PerDiemPayable:        money.ToAmount(first(raw, FieldPerDiemPayable)),
		AnalystTotal:          optionalAmount(raw, FieldAnalystTotal),
		LegacyTotal:           optionalAmount(raw, FieldLegacyTotal),
		LinkedPayoutRequestID: str(raw, FieldLinkedRequest),
		PayoutRequestedAt:     optionalTime(raw, FieldPayoutRequestedAt),
		SchemaVersion:         int(integer(raw[FieldSchemaVersion])),
		Version:               integer(raw[FieldVersion]),
	}
	if t, ok := raw[FieldCreatedAt].(time.Time); ok {
		inv.CreatedAt = t
	}
	if t, ok := raw[FieldUpdatedAt].(time.Time); ok {
		inv.UpdatedAt = t
	}
	if inv.SchemaVersion == 0 {
		inv.SchemaVersion = 1
	}
	return inv
}

// first returns the first non-blank value among field's aliases.
func first(raw map[string]interface{}, field string) interface{} {
	names, ok := aliases[field]
	if !ok {
		names = []string{field}
	}
	for _, name := range names {
		v, ok := raw[name]
		if !ok || money.IsBlank(v) {
			continue
		}
		return v
	}
	return nil
}

func str(raw map[string]interface{}, field string) string {
	return toString(first(raw, field))
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case time.Time:
		return dates.Format(t)
	default:
		return ""
	}
}

// dateStr reads a date field; legacy documents sometimes hold a timestamp instead of a string.
func dateStr(raw map[string]interface{}, field string) string {
	v := first(raw, field)
	if t, ok := v.(time.Time); ok {
		return dates.Format(t)
	}
	return toString(v)
}

func status(v, fallback string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return fallback
	}
	return v
}

func optionalAmount(raw map[string]interface{}, field string) *float64 {
	v := first(raw, field)
	if money.IsBlank(v) {
		return nil
	}
	amount := money.ToAmount(v)
	return &amount
}

func optionalTime(raw map[string]interface{}, field string) *time.Time {
	if t, ok := first(raw, field).(time.Time); ok && !t.IsZero() {
		return &t
	}
	return nil
}

func integer(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}
