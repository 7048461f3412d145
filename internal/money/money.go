// Package money normalizes the currency strings found on insurance-claim invoices.
//
// Amounts arrive in both Argentine ("1.234,56") and US ("1,234.56") grouping
// conventions, sometimes with currency symbols, sometimes already numeric.
// ToAmount turns any of them into a float64 and never fails: unparseable input
// is worth 0.
package money

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ToAmount parses a number or a currency string into a canonical amount.
//
// Separator rules:
//   - both ',' and '.' present: the later-occurring one is the decimal separator
//   - only ',' present: decimal separator (several commas are thousands separators)
//   - only '.' present: decimal separator, unless the final group has exactly
//     3 digits, in which case every '.' is a thousands separator
func ToAmount(raw interface{}) float64 {
	switch v := raw.(type) {
	case nil:
		return 0
	case float64:
		return finite(v)
	case *float64:
		if v == nil {
			return 0
		}
		return finite(*v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		return ToAmount(string(v))
	case decimal.Decimal:
		f, _ := v.Float64()
		return finite(f)
	case string:
		return parseString(v)
	default:
		return 0
	}
}

func parseString(s string) float64 {
	cleaned := clean(s)
	if cleaned == "" {
		return 0
	}

	negative := strings.HasPrefix(cleaned, "-")
	cleaned = strings.ReplaceAll(cleaned, "-", "")

	lastComma := strings.LastIndex(cleaned, ",")
	lastDot := strings.LastIndex(cleaned, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(cleaned, ",") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		} else {
			cleaned = strings.Replace(cleaned, ",", ".", 1)
		}
	case lastDot >= 0:
		if len(cleaned)-lastDot-1 == 3 || strings.Count(cleaned, ".") > 1 {
			cleaned = strings.ReplaceAll(cleaned, ".", "")
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	if negative {
		amount = -amount
	}
	return finite(amount)
}

// clean drops currency symbols, letters and whitespace, keeping digits, separators and the sign.
func clean(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func finite(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Sum adds amounts exactly and rounds the result to cents.
func Sum(amounts ...float64) float64 {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(decimal.NewFromFloat(a))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// FormatArgentine renders an amount as "$ 1.234,56".
func FormatArgentine(amount float64) string {
	d := decimal.NewFromFloat(amount).Round(2)
	negative := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	intPart, fracPart := fixed, "00"
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, fracPart = fixed[:i], fixed[i+1:]
	}

	var grouped strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}

	sign := ""
	if negative {
		sign = "-"
	}
	return "$ " + sign + grouped.String() + "," + fracPart
}
