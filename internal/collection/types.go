package collection

import "verax/pkg/models"

// Match groups the stored invoices whose number matches one normalized input number.
type Match struct {
	Number   string           `json:"number"`
	Invoices []models.Invoice `json:"invoices"`
}

// Preview is the classification of a pasted list of invoice numbers for one issuer.
// Every normalized number lands in exactly one of ToCharge, AlreadyPaid or NotFound.
type Preview struct {
	Issuer      string   `json:"issuer"`
	ToCharge    []Match  `json:"toCharge"`
	AlreadyPaid []Match  `json:"alreadyPaid"`
	NotFound    []string `json:"notFound"`
	Duplicated  []string `json:"duplicated"`
}

// ToChargeIDs returns the ids of the uncollected invoices in ToCharge, ready for Confirm.
func (p *Preview) ToChargeIDs() []string {
	var ids []string
	for _, m := range p.ToCharge {
		for _, inv := range m.Invoices {
			if !inv.IsCollected() {
				ids = append(ids, inv.ID)
			}
		}
	}
	return ids
}

// ConfirmResult reports what Confirm wrote.
type ConfirmResult struct {
	Updated        int      `json:"updated"`
	AlreadyCharged []string `json:"alreadyCharged,omitempty"`
	Missing        []string `json:"missing,omitempty"`
}
