package models

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// AnalystRule is per-analyst payout configuration, maintained outside the payout workflow.
type AnalystRule struct {
	Name               string  `json:"name" firestore:"name" yaml:"name" validate:"required"`
	RequiresInvoice    bool    `json:"requiresInvoice" firestore:"requiresInvoice" yaml:"requiresInvoice"`
	PlusPercentDefault float64 `json:"plusPercentDefault" firestore:"plusPercentDefault" yaml:"plusPercentDefault" validate:"gte=0,lte=100"`
}

// Validate validates the rule
func (r *AnalystRule) Validate() error {
	return validator.New().Struct(r)
}

// InsurerTerm is the number of days an insurer is allowed to pay an invoice, plus tolerance.
type InsurerTerm struct {
	Insurer       string `json:"insurer" firestore:"insurer" yaml:"insurer" validate:"required"`
	Days          int    `json:"days" firestore:"days" yaml:"days" validate:"gte=0"`
	ToleranceDays int    `json:"toleranceDays" firestore:"toleranceDays" yaml:"toleranceDays" validate:"gte=0"`
}

// Validate validates the term
func (t *InsurerTerm) Validate() error {
	return validator.New().Struct(t)
}

// FindAnalystRule looks a rule up by analyst name, ignoring case and surrounding spaces.
func FindAnalystRule(rules []AnalystRule, name string) (AnalystRule, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for _, r := range rules {
		if strings.ToLower(strings.TrimSpace(r.Name)) == want {
			return r, true
		}
	}
	return AnalystRule{}, false
}
