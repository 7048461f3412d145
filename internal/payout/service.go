// Package payout runs the payout request lifecycle: an analyst submits eligible invoices, an
// admin approves or rejects, the analyst uploads an invoice receipt when one is required, and an
// admin marks the request paid. Every transition updates the linked invoices in the same
// transaction as the request.
package payout

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"verax/internal/dates"
	"verax/internal/invoice"
	"verax/internal/logger"
	"verax/internal/money"
	"verax/internal/storage"
	"verax/internal/store"
	"verax/pkg/models"
)

// DefaultScheduledPaymentOffset is how long after a direct-to-payment approval the payment is scheduled.
const DefaultScheduledPaymentOffset = 48 * time.Hour

// Options tunes the service. Zero values select the defaults.
type Options struct {
	MinCashoutDays         int
	ScheduledPaymentOffset time.Duration
	Now                    func() time.Time
}

// Service is the payout request state machine.
type Service struct {
	store    store.Store
	uploader storage.Uploader
	opts     Options
	log      zerolog.Logger
}

// NewService creates the payout service. uploader may be nil when receipts are not handled.
func NewService(st store.Store, uploader storage.Uploader, opts Options) *Service {
	if opts.MinCashoutDays <= 0 {
		opts.MinCashoutDays = invoice.MinCashoutAgeDays
	}
	if opts.ScheduledPaymentOffset <= 0 {
		opts.ScheduledPaymentOffset = DefaultScheduledPaymentOffset
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    st,
		uploader: uploader,
		opts:     opts,
		log:      logger.WithComponent("payout"),
	}
}

// SubmitInput is an analyst's payout request.
type SubmitInput struct {
	AnalystUID  string   `json:"analystUid" binding:"required"`
	AnalystName string   `json:"analystName"`
	InvoiceIDs  []string `json:"invoiceIds" binding:"required,min=1"`
	// RequiresInvoice overrides the analyst rule when set.
	RequiresInvoice *bool `json:"requiresInvoice"`
}

// RejectedInvoice is a selected invoice that failed re-validation at submission.
type RejectedInvoice struct {
	InvoiceID string `json:"invoiceId"`
	Reason    string `json:"reason"`
}

// SubmitResult is the partial-success report of Submit.
type SubmitResult struct {
	Request  models.PayoutRequest `json:"request"`
	Rejected []RejectedInvoice    `json:"rejected,omitempty"`
}

// Submit creates a payout request over the selected invoices. Each invoice is re-read and
// re-checked for eligibility inside the transaction; ineligible ones are reported in
// Rejected and left untouched. If none survive no request is created.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	const op = "Submit"

	in.AnalystUID = strings.TrimSpace(in.AnalystUID)
	if in.AnalystUID == "" {
		return SubmitResult{}, &ValidationError{Field: "analystUid", Message: "is required"}
	}
	ids := uniqueIDs(in.InvoiceIDs)
	if len(ids) == 0 {
		return SubmitResult{}, &ValidationError{Field: "invoiceIds", Message: "select at least one invoice"}
	}

	requiresInvoice := in.RequiresInvoice
	if requiresInvoice == nil {
		rule, found, err := s.analystRule(ctx, in.AnalystName)
		if err != nil {
			return SubmitResult{}, wrap(op, "", err)
		}
		if found {
			requiresInvoice = &rule.RequiresInvoice
		}
	}

	now := s.opts.Now()
	requestID := uuid.NewString()
	var result SubmitResult

	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		// the transaction may be retried; start clean each attempt
		result = SubmitResult{}
		var accepted []models.Invoice

		for _, id := range ids {
			inv, err := tx.GetInvoice(id)
			if errors.Is(err, store.ErrNotFound) {
				result.Rejected = append(result.Rejected, RejectedInvoice{InvoiceID: id, Reason: "invoice not found"})
				continue
			}
			if err != nil {
				return err
			}
			if reason := s.blocker(inv, in.AnalystUID, now); reason != "" {
				result.Rejected = append(result.Rejected, RejectedInvoice{InvoiceID: id, Reason: reason})
				continue
			}
			accepted = append(accepted, inv)
		}
		if len(accepted) == 0 {
			return ErrNothingEligible
		}

		req := newRequest(requestID, in, requiresInvoice, accepted, now)
		if err := tx.CreatePayoutRequest(req); err != nil {
			return err
		}
		for _, inv := range accepted {
			err := tx.UpdateInvoice(inv.ID, inv.Version, store.Patch{
				invoice.FieldPaymentStatus:     models.PaymentPendingApproval,
				invoice.FieldLinkedRequest:     requestID,
				invoice.FieldPayoutRequestedAt: now,
			})
			if err != nil {
				return err
			}
		}
		result.Request = req
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNothingEligible) {
			return result, wrap(op, "", err)
		}
		s.log.Error().Err(err).Str("op", op).Str("analyst_uid", in.AnalystUID).Msg("Payout submission failed")
		return SubmitResult{}, wrap(op, "", err)
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("to", models.PayoutSubmitted).
		Int("invoices", len(result.Request.InvoiceIDs)).
		Int("rejected", len(result.Rejected)).
		Float64("total", result.Request.TotalAmount).
		Msg("Payout request submitted")

	return result, nil
}

func (s *Service) blocker(inv models.Invoice, analystUID string, now time.Time) string {
	if inv.AnalystUID != analystUID {
		return "invoice is not assigned to this analyst"
	}
	return invoice.CashoutBlocker(inv, now, s.opts.MinCashoutDays)
}

func (s *Service) analystRule(ctx context.Context, name string) (models.AnalystRule, bool, error) {
	if strings.TrimSpace(name) == "" {
		return models.AnalystRule{}, false, nil
	}
	rules, err := s.store.AnalystRules(ctx)
	if err != nil {
		return models.AnalystRule{}, false, fmt.Errorf("read analyst rules: %w", err)
	}
	rule, found := models.FindAnalystRule(rules, name)
	return rule, found, nil
}

func newRequest(id string, in SubmitInput, requiresInvoice *bool, invs []models.Invoice, now time.Time) models.PayoutRequest {
	req := models.PayoutRequest{
		ID:              id,
		AnalystUID:      in.AnalystUID,
		AnalystName:     in.AnalystName,
		CreatedAt:       now,
		Status:          models.PayoutSubmitted,
		RequiresInvoice: requiresInvoice,
	}
	totals := make([]float64, 0, len(invs))
	for _, inv := range invs {
		total := invoice.PayableTotal(inv)
		totals = append(totals, total)
		req.InvoiceIDs = append(req.InvoiceIDs, inv.ID)
		req.InvoiceSnapshot = append(req.InvoiceSnapshot, models.InvoiceSnapshot{
			InvoiceID:     inv.ID,
			InvoiceNumber: inv.InvoiceNumber,
			ClaimNumber:   inv.ClaimNumber,
			Insurer:       inv.Insurer,
			Issuer:        inv.Issuer,
			IssuanceDate:  inv.IssuanceDate,
			Total:         total,
		})
	}
	req.TotalAmount = money.Sum(totals...)
	req.History = []models.HistoryEntry{historyEntry(now, models.RoleAnalyst, models.ActionSubmitted, "")}
	return req
}

// Approve moves a submitted request to PENDIENTE_FACTURA when the analyst must upload an invoice
// receipt, otherwise to PENDIENTE_PAGO with a scheduled payment date.
func (s *Service) Approve(ctx context.Context, requestID, note string) (models.PayoutRequest, error) {
	const op = "Approve"

	now := s.opts.Now()
	return s.transition(ctx, op, requestID, func(req *models.PayoutRequest) (store.Patch, error) {
		next := models.PayoutPendingPayment
		if req.NeedsInvoice() {
			next = models.PayoutPendingInvoice
		}
		if err := checkTransition(*req, next); err != nil {
			return nil, err
		}
		req.Status = next
		if next == models.PayoutPendingPayment {
			scheduled := now.Add(s.opts.ScheduledPaymentOffset)
			req.ScheduledPaymentDate = &scheduled
		}
		req.History = append(req.History, historyEntry(now, models.RoleAdmin, models.ActionApproved, note))
		return store.Patch{invoice.FieldPaymentStatus: InvoiceStatusFor(next)}, nil
	})
}

// Reject closes a submitted request and releases its invoices for a later request.
func (s *Service) Reject(ctx context.Context, requestID, reason string) (models.PayoutRequest, error) {
	const op = "Reject"

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return models.PayoutRequest{}, &ValidationError{Field: "reason", Message: "a rejection reason is required"}
	}

	now := s.opts.Now()
	return s.transition(ctx, op, requestID, func(req *models.PayoutRequest) (store.Patch, error) {
		if err := checkTransition(*req, models.PayoutRejected); err != nil {
			return nil, err
		}
		req.Status = models.PayoutRejected
		req.RejectionReason = reason
		req.History = append(req.History, historyEntry(now, models.RoleAdmin, models.ActionRejected, reason))
		return store.Patch{
			invoice.FieldPaymentStatus:     models.PaymentUnpaid,
			invoice.FieldLinkedRequest:     store.Remove,
			invoice.FieldPayoutRequestedAt: store.Remove,
		}, nil
	})
}

// MarkPaid records the payment of a request on paidDate. Linked invoices already PAGO are skipped.
func (s *Service) MarkPaid(ctx context.Context, requestID, paidDate string) (models.PayoutRequest, error) {
	const op = "MarkPaid"

	paidDate = strings.TrimSpace(paidDate)
	if paidDate == "" {
		return models.PayoutRequest{}, &ValidationError{Field: "paidDate", Message: "a payment date is required"}
	}
	if dates.ParseFlexible(paidDate).IsZero() {
		return models.PayoutRequest{}, &ValidationError{Field: "paidDate", Message: fmt.Sprintf("%q is not a DD/MM/YYYY or YYYY-MM-DD date", paidDate)}
	}

	now := s.opts.Now()
	return s.transition(ctx, op, requestID, func(req *models.PayoutRequest) (store.Patch, error) {
		if err := checkTransition(*req, models.PayoutPaid); err != nil {
			return nil, err
		}
		req.Status = models.PayoutPaid
		req.PaidAt = paidDate
		req.History = append(req.History, historyEntry(now, models.RoleAdmin, models.ActionPaid, paidDate))
		return store.Patch{
			invoice.FieldPaymentStatus: models.PaymentPaid,
			invoice.FieldPaymentDate:   paidDate,
		}, nil
	})
}

// ReceiptInput is an analyst's invoice receipt upload.
type ReceiptInput struct {
	RequestID   string
	AnalystUID  string
	Filename    string
	ContentType string
	Body        io.Reader
}

// UploadReceipt stores the analyst's invoice receipt and moves the request to PENDIENTE_PAGO.
// Only PDFs are accepted and only the request's own analyst may upload.
func (s *Service) UploadReceipt(ctx context.Context, in ReceiptInput) (models.PayoutRequest, error) {
	const op = "UploadReceipt"

	if !storage.IsPDF(in.ContentType) {
		return models.PayoutRequest{}, &ValidationError{Field: "file", Message: fmt.Sprintf("receipt must be a PDF, got %q", in.ContentType)}
	}
	if s.uploader == nil {
		return models.PayoutRequest{}, wrap(op, in.RequestID, errors.New("receipt storage is not configured"))
	}

	// checked before uploading so a doomed request leaves nothing behind in storage
	current, err := s.store.GetPayoutRequest(ctx, in.RequestID)
	if err != nil {
		return models.PayoutRequest{}, wrap(op, in.RequestID, err)
	}
	if err := checkReceiptAllowed(current, in.AnalystUID); err != nil {
		return models.PayoutRequest{}, wrap(op, in.RequestID, err)
	}

	obj, err := s.uploader.Upload(ctx, storage.ReceiptPath(in.RequestID, in.Filename), storage.ContentTypePDF, in.Body)
	if err != nil {
		s.log.Error().Err(err).Str("op", op).Str("request_id", in.RequestID).Msg("Receipt upload failed")
		return models.PayoutRequest{}, wrap(op, in.RequestID, err)
	}

	now := s.opts.Now()
	req, err := s.transition(ctx, op, in.RequestID, func(req *models.PayoutRequest) (store.Patch, error) {
		if err := checkReceiptAllowed(*req, in.AnalystUID); err != nil {
			return nil, err
		}
		req.Status = models.PayoutPendingPayment
		req.Receipt = &models.ReceiptInfo{
			URL:        obj.URL,
			Filename:   in.Filename,
			Path:       obj.Path,
			UploadedBy: in.AnalystUID,
			UploadedAt: now,
		}
		req.History = append(req.History, historyEntry(now, models.RoleAnalyst, models.ActionReceiptUploaded, in.Filename))
		return store.Patch{invoice.FieldPaymentStatus: models.PaymentPendingPayment}, nil
	})
	if err != nil {
		if delErr := s.uploader.Delete(ctx, obj.Path); delErr != nil {
			s.log.Warn().Err(delErr).Str("path", obj.Path).Msg("Failed to remove orphaned receipt")
		}
		return models.PayoutRequest{}, err
	}
	return req, nil
}

func checkReceiptAllowed(req models.PayoutRequest, analystUID string) error {
	if req.AnalystUID != analystUID {
		return ErrNotRequestOwner
	}
	// SUBMITTED -> PENDIENTE_PAGO is the approval path, not a receipt upload
	if req.Status != models.PayoutPendingInvoice {
		return &TransitionError{RequestID: req.ID, From: req.Status, To: models.PayoutPendingPayment}
	}
	return nil
}

// transition loads a request, lets apply mutate it and choose the invoice patch, then writes the
// request and every invoice still linked to it in one transaction. Invoices already carrying the
// target payment status are not rewritten.
func (s *Service) transition(ctx context.Context, op, requestID string, apply func(req *models.PayoutRequest) (store.Patch, error)) (models.PayoutRequest, error) {
	var (
		updated models.PayoutRequest
		from    string
		touched int
	)

	err := s.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		req, err := tx.GetPayoutRequest(requestID)
		if err != nil {
			return err
		}
		from = req.Status

		var linked []models.Invoice
		for _, id := range req.InvoiceIDs {
			inv, err := tx.GetInvoice(id)
			if errors.Is(err, store.ErrNotFound) {
				s.log.Warn().Str("request_id", requestID).Str("invoice_id", id).Msg("Linked invoice no longer exists")
				continue
			}
			if err != nil {
				return err
			}
			if inv.LinkedPayoutRequestID == requestID {
				linked = append(linked, inv)
			}
		}

		patch, err := apply(&req)
		if err != nil {
			return err
		}
		if err := tx.UpdatePayoutRequest(req); err != nil {
			return err
		}

		touched = 0
		target, _ := patch[invoice.FieldPaymentStatus].(string)
		for _, inv := range linked {
			if target == models.PaymentPaid && inv.PaymentStatus == models.PaymentPaid {
				continue
			}
			if err := tx.UpdateInvoice(inv.ID, inv.Version, patch); err != nil {
				return err
			}
			touched++
		}
		updated = req
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrInvalidTransition) && !errors.Is(err, ErrReceiptRequired) &&
			!errors.Is(err, ErrNotRequestOwner) && !errors.Is(err, store.ErrNotFound) {
			s.log.Error().Err(err).Str("op", op).Str("request_id", requestID).Msg("Payout transition failed")
		}
		return models.PayoutRequest{}, wrap(op, requestID, err)
	}

	s.log.Info().
		Str("request_id", requestID).
		Str("from", from).
		Str("to", updated.Status).
		Int("invoices", touched).
		Msg("Payout request updated")

	return updated, nil
}

// Get returns one payout request.
func (s *Service) Get(ctx context.Context, requestID string) (models.PayoutRequest, error) {
	req, err := s.store.GetPayoutRequest(ctx, requestID)
	return req, wrap("Get", requestID, err)
}

// List returns payout requests, newest first.
func (s *Service) List(ctx context.Context, filter store.PayoutFilter) ([]models.PayoutRequest, error) {
	reqs, err := s.store.ListPayoutRequests(ctx, filter)
	return reqs, wrap("List", "", err)
}

// Eligible lists the analyst's invoices that can be selected for a payout request right now.
func (s *Service) Eligible(ctx context.Context, analystUID string) ([]invoice.View, error) {
	invs, err := s.store.ListInvoices(ctx, store.InvoiceFilter{AnalystUID: analystUID})
	if err != nil {
		return nil, wrap("Eligible", "", err)
	}
	now := s.opts.Now()
	var out []invoice.View
	for _, inv := range invs {
		if invoice.CashoutBlocker(inv, now, s.opts.MinCashoutDays) == "" {
			out = append(out, invoice.ViewOf(inv, now))
		}
	}
	return out, nil
}

func historyEntry(at time.Time, role, action, note string) models.HistoryEntry {
	return models.HistoryEntry{
		ID:     uuid.NewString(),
		At:     at,
		Role:   role,
		Action: action,
		Note:   note,
	}
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
