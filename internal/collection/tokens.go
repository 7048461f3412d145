package collection

import (
	"regexp"
	"strings"
)

var digitRun = regexp.MustCompile(`\d+`)

// Tokenize extracts every maximal digit run from free text, strips leading zeros and removes
// repeats. numbers keeps first-seen order; duplicated lists each repeated number once.
func Tokenize(text string) (numbers, duplicated []string) {
	seen := make(map[string]int)
	for _, run := range digitRun.FindAllString(text, -1) {
		n := normalizeNumber(run)
		seen[n]++
		switch seen[n] {
		case 1:
			numbers = append(numbers, n)
		case 2:
			duplicated = append(duplicated, n)
		}
	}
	return numbers, duplicated
}

// StoredNumber normalizes a stored invoice number for matching. Numbers like "0001-00000976"
// carry a point-of-sale prefix; only the last digit run identifies the invoice.
func StoredNumber(invoiceNumber string) string {
	runs := digitRun.FindAllString(invoiceNumber, -1)
	if len(runs) == 0 {
		return ""
	}
	return normalizeNumber(runs[len(runs)-1])
}

func normalizeNumber(digits string) string {
	n := strings.TrimLeft(digits, "0")
	if n == "" {
		return "0"
	}
	return n
}
