package payout

import "verax/pkg/models"

// transitions lists the statuses each payout status may move to. REJECTED and PAGO are terminal.
var transitions = map[string]map[string]struct{}{
	models.PayoutSubmitted: {
		models.PayoutPendingInvoice: {},
		models.PayoutPendingPayment: {},
		models.PayoutRejected:       {},
	},
	models.PayoutPendingInvoice: {
		models.PayoutPendingPayment: {},
		// only with a receipt on file, see checkTransition
		models.PayoutPaid: {},
	},
	models.PayoutPendingPayment: {
		models.PayoutPaid: {},
	},
	models.PayoutRejected: {},
	models.PayoutPaid:     {},
}

// CanTransition reports whether a request may move from one status to another.
func CanTransition(from, to string) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

func checkTransition(req models.PayoutRequest, to string) error {
	if !CanTransition(req.Status, to) {
		return &TransitionError{RequestID: req.ID, From: req.Status, To: to}
	}
	if req.Status == models.PayoutPendingInvoice && to == models.PayoutPaid && req.Receipt == nil {
		return ErrReceiptRequired
	}
	return nil
}

// InvoiceStatusFor is the analyst payment status linked invoices take while their request is in status.
func InvoiceStatusFor(status string) string {
	switch status {
	case models.PayoutSubmitted:
		return models.PaymentPendingApproval
	case models.PayoutPendingInvoice:
		return models.PaymentPendingInvoice
	case models.PayoutPendingPayment:
		return models.PaymentPendingPayment
	case models.PayoutPaid:
		return models.PaymentPaid
	default:
		return models.PaymentUnpaid
	}
}
