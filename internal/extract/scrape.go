package extract

import (
	"regexp"
	"strings"
)

var (
	// "Siniestro N° 12345/2024", "Stro. 98765", "Nro. de siniestro: 4-55621"
	claimPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:siniestro|stro\.?)\s*(?:n[°º]|nro\.?|n[uú]mero|no\.?|#)?\s*[:\-]?\s*(\d[\d./\-]*\d)`),
		regexp.MustCompile(`(?i)(?:n[°º]|nro\.?|n[uú]mero)\s*de\s*siniestro\s*[:\-]?\s*(\d[\d./\-]*\d)`),
	}

	// AFIP voucher numbers: four or five digit point of sale, eight digit sequence.
	voucherPattern = regexp.MustCompile(`\b(\d{4,5}-\d{8})\b`)
)

// ScrapeClaimNumber finds the claim number in free invoice text, or "" when there is none.
func ScrapeClaimNumber(text string) string {
	for _, re := range claimPatterns {
		if m := re.FindStringSubmatch(text); len(m) > 1 {
			candidate := strings.Trim(m[1], "./-")
			if len(candidate) >= 3 && len(candidate) <= 30 {
				return candidate
			}
		}
	}
	return ""
}

// ScrapeInvoiceNumber finds a PPPP-NNNNNNNN voucher number in free invoice text.
func ScrapeInvoiceNumber(text string) string {
	if m := voucherPattern.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return ""
}
