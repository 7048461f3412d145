package invoice

import (
	"fmt"
	"strings"
	"time"

	"verax/internal/dates"
	"verax/pkg/models"
)

// MinCashoutAgeDays is how old an invoice must be before its analyst may request payout.
const MinCashoutAgeDays = 40

// IsEligibleForCashout reports whether the analyst can include inv in a payout request:
// unpaid, not linked to an open request, and at least MinCashoutAgeDays old.
func IsEligibleForCashout(inv models.Invoice, now time.Time) bool {
	return CashoutBlocker(inv, now, MinCashoutAgeDays) == ""
}

// CashoutBlocker explains why inv cannot be cashed out, or returns "" when it can.
func CashoutBlocker(inv models.Invoice, now time.Time, minDays int) string {
	if inv.PaymentStatus != models.PaymentUnpaid {
		return fmt.Sprintf("payment status is %s", inv.PaymentStatus)
	}
	if inv.IsLinked() {
		return fmt.Sprintf("already linked to payout request %s", inv.LinkedPayoutRequestID)
	}
	if !dates.IsValid(inv.EffectiveIssuanceDate()) {
		return "issuance date is missing or malformed"
	}
	if age := dates.DaysSince(inv.EffectiveIssuanceDate(), now); age < minDays {
		return fmt.Sprintf("only %d days since issuance, %d required", age, minDays)
	}
	return ""
}

// Terms resolves how many days each insurer has to pay an invoice.
type Terms struct {
	byInsurer map[string]models.InsurerTerm
	fallback  models.InsurerTerm
}

// DefaultTerm applies to insurers without a configured term.
var DefaultTerm = models.InsurerTerm{Days: 30, ToleranceDays: 0}

// NewTerms indexes terms by insurer name (case-insensitive). A zero fallback means DefaultTerm.
func NewTerms(terms []models.InsurerTerm, fallback models.InsurerTerm) Terms {
	if fallback.Days == 0 && fallback.ToleranceDays == 0 {
		fallback = DefaultTerm
	}
	t := Terms{byInsurer: make(map[string]models.InsurerTerm, len(terms)), fallback: fallback}
	for _, term := range terms {
		t.byInsurer[insurerKey(term.Insurer)] = term
	}
	return t
}

// For returns the term that applies to insurer.
func (t Terms) For(insurer string) models.InsurerTerm {
	if term, ok := t.byInsurer[insurerKey(insurer)]; ok {
		return term
	}
	if t.fallback.Days == 0 && t.fallback.ToleranceDays == 0 {
		return DefaultTerm
	}
	return t.fallback
}

func insurerKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// IsOverdue reports whether the insurer is late paying inv: never once collected, otherwise
// true when today is past issuance + allowed days + tolerance.
func IsOverdue(inv models.Invoice, terms Terms, now time.Time) bool {
	if inv.IsCollected() {
		return false
	}
	if !dates.IsValid(inv.IssuanceDate) {
		return false
	}
	term := terms.For(inv.Insurer)
	return dates.DaysSince(inv.IssuanceDate, now) > term.Days+term.ToleranceDays
}
