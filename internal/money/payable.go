package money

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Commission holds the raw values an invoice record carries for the analyst's commission.
// Fields are untyped because legacy records store them as numbers or currency strings.
type Commission struct {
	AnalystTotal   interface{} // explicit total payable to the analyst
	LegacyTotal    interface{} // legacy "total to settle" field
	ManagementFee  interface{}
	SavingsBonus   interface{}
	PerDiemPayable interface{}
	SavingsPayable interface{}
}

// AnalystPayableTotal resolves the amount payable to the analyst.
//
// The explicit analyst total wins, then the legacy total, then the sum of the
// commission components. Blank or non-positive candidates fall through; 0 is
// returned when nothing yields a positive amount.
func AnalystPayableTotal(c Commission) float64 {
	for _, candidate := range []interface{}{c.AnalystTotal, c.LegacyTotal} {
		if IsBlank(candidate) {
			continue
		}
		if amount := ToAmount(candidate); amount > 0 {
			return amount
		}
	}

	sum := decimal.Zero
	for _, part := range []interface{}{c.ManagementFee, c.SavingsBonus, c.PerDiemPayable, c.SavingsPayable} {
		sum = sum.Add(decimal.NewFromFloat(ToAmount(part)))
	}
	if !sum.IsPositive() {
		return 0
	}
	f, _ := sum.Round(2).Float64()
	return f
}

// IsBlank reports whether a raw field value is undefined or empty.
func IsBlank(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case *float64:
		return t == nil
	default:
		return false
	}
}
