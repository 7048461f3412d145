package payout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/invoice"
	"verax/internal/storage"
	"verax/internal/store"
	"verax/pkg/models"
)

var testNow = time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	ctx      context.Context
	store    *store.Memory
	uploader *storage.Memory
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	st.SetClock(func() time.Time { return testNow })
	up := storage.NewMemory()
	return &fixture{
		ctx:      context.Background(),
		store:    st,
		uploader: up,
		svc:      NewService(st, up, Options{Now: func() time.Time { return testNow }}),
	}
}

func (f *fixture) invoice(t *testing.T, number, issued string, total float64) models.Invoice {
	t.Helper()
	inv, err := f.store.CreateInvoice(f.ctx, models.Invoice{
		InvoiceNumber: number,
		AnalystUID:    "uid-1",
		AnalystName:   "Ana",
		Issuer:        "Estudio Norte",
		Insurer:       "La Segunda",
		IssuanceDate:  issued,
		AnalystTotal:  &total,
	})
	require.NoError(t, err)
	return inv
}

func (f *fixture) submit(t *testing.T, requiresInvoice bool, ids ...string) models.PayoutRequest {
	t.Helper()
	res, err := f.svc.Submit(f.ctx, SubmitInput{
		AnalystUID:      "uid-1",
		AnalystName:     "Ana",
		InvoiceIDs:      ids,
		RequiresInvoice: &requiresInvoice,
	})
	require.NoError(t, err)
	return res.Request
}

func (f *fixture) assertStatus(t *testing.T, id, status string) {
	t.Helper()
	inv, err := f.store.GetInvoice(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, status, inv.PaymentStatus, "primary %s", id)

	mirror, ok := f.store.MirrorInvoice("uid-1", id)
	require.True(t, ok)
	assert.Equal(t, status, mirror[invoice.FieldPaymentStatus], "mirror %s", id)
	assert.Equal(t, status, mirror[invoice.FieldMirrorStatus], "mirror %s", id)
}

func TestLifecycleWithoutInvoiceReceipt(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "0001-1", "01/04/2024", 200)
	b := f.invoice(t, "0001-2", "01/05/2024", 300)

	req := f.submit(t, false, a.ID, b.ID)
	assert.Equal(t, models.PayoutSubmitted, req.Status)
	assert.Equal(t, 500.0, req.TotalAmount)
	assert.Equal(t, []string{a.ID, b.ID}, req.InvoiceIDs)
	require.Len(t, req.History, 1)
	assert.Equal(t, models.RoleAnalyst, req.History[0].Role)
	f.assertStatus(t, a.ID, models.PaymentPendingApproval)
	f.assertStatus(t, b.ID, models.PaymentPendingApproval)

	linked, err := f.store.GetInvoice(f.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, linked.LinkedPayoutRequestID)
	require.NotNil(t, linked.PayoutRequestedAt)

	approved, err := f.svc.Approve(f.ctx, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPendingPayment, approved.Status)
	require.NotNil(t, approved.ScheduledPaymentDate)
	assert.Equal(t, testNow.Add(48*time.Hour), *approved.ScheduledPaymentDate)
	f.assertStatus(t, a.ID, models.PaymentPendingPayment)
	f.assertStatus(t, b.ID, models.PaymentPendingPayment)

	paid, err := f.svc.MarkPaid(f.ctx, req.ID, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
	assert.Equal(t, "2024-03-01", paid.PaidAt)
	assert.Len(t, paid.History, 3)
	for _, id := range []string{a.ID, b.ID} {
		f.assertStatus(t, id, models.PaymentPaid)
		inv, _ := f.store.GetInvoice(f.ctx, id)
		assert.Equal(t, "2024-03-01", inv.PaymentDate)
	}

	stored, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, stored.Status)
}

func TestLifecycleWithInvoiceReceipt(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	req := f.submit(t, true, a.ID)

	approved, err := f.svc.Approve(f.ctx, req.ID, "ok")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPendingInvoice, approved.Status)
	assert.Nil(t, approved.ScheduledPaymentDate)
	f.assertStatus(t, a.ID, models.PaymentPendingInvoice)

	_, err = f.svc.MarkPaid(f.ctx, req.ID, "01/07/2024")
	assert.ErrorIs(t, err, ErrReceiptRequired)

	_, err = f.svc.UploadReceipt(f.ctx, ReceiptInput{
		RequestID: req.ID, AnalystUID: "uid-1", Filename: "factura.png", ContentType: "image/png", Body: strings.NewReader("x"),
	})
	assert.True(t, IsValidation(err))

	_, err = f.svc.UploadReceipt(f.ctx, ReceiptInput{
		RequestID: req.ID, AnalystUID: "uid-2", Filename: "factura.pdf", ContentType: storage.ContentTypePDF, Body: strings.NewReader("%PDF"),
	})
	assert.ErrorIs(t, err, ErrNotRequestOwner)
	assert.Equal(t, 0, f.uploader.Len())

	withReceipt, err := f.svc.UploadReceipt(f.ctx, ReceiptInput{
		RequestID: req.ID, AnalystUID: "uid-1", Filename: "factura C.pdf", ContentType: storage.ContentTypePDF, Body: strings.NewReader("%PDF"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPendingPayment, withReceipt.Status)
	require.NotNil(t, withReceipt.Receipt)
	assert.Equal(t, "payout_receipts/"+req.ID+"/factura_C.pdf", withReceipt.Receipt.Path)
	assert.Equal(t, "uid-1", withReceipt.Receipt.UploadedBy)
	f.assertStatus(t, a.ID, models.PaymentPendingPayment)

	_, ok := f.uploader.Get(withReceipt.Receipt.Path)
	assert.True(t, ok)

	paid, err := f.svc.MarkPaid(f.ctx, req.ID, "01/07/2024")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPaid, paid.Status)
}

func TestReceiptRemovedWhenTransitionFails(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	req := f.submit(t, true, a.ID)
	_, err := f.svc.Approve(f.ctx, req.ID, "")
	require.NoError(t, err)

	f.store.FailNextCommit(errors.New("unavailable"))
	_, err = f.svc.UploadReceipt(f.ctx, ReceiptInput{
		RequestID: req.ID, AnalystUID: "uid-1", Filename: "f.pdf", ContentType: storage.ContentTypePDF, Body: strings.NewReader("%PDF"),
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.uploader.Len())
	f.assertStatus(t, a.ID, models.PaymentPendingInvoice)
}

func TestReceiptOnlyWhilePendingInvoice(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	req := f.submit(t, false, a.ID)

	_, err := f.svc.UploadReceipt(f.ctx, ReceiptInput{
		RequestID: req.ID, AnalystUID: "uid-1", Filename: "f.pdf", ContentType: storage.ContentTypePDF, Body: strings.NewReader("%PDF"),
	})
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 0, f.uploader.Len())
}

func TestRejectReleasesInvoices(t *testing.T) {
	f := newFixture(t)
	x := f.invoice(t, "1", "01/04/2024", 100)
	req := f.submit(t, false, x.ID)

	_, err := f.svc.Reject(f.ctx, req.ID, "   ")
	assert.True(t, IsValidation(err))

	rejected, err := f.svc.Reject(f.ctx, req.ID, "duplicate")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutRejected, rejected.Status)
	assert.Equal(t, "duplicate", rejected.RejectionReason)

	inv, err := f.store.GetInvoice(f.ctx, x.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentUnpaid, inv.PaymentStatus)
	assert.Empty(t, inv.LinkedPayoutRequestID)
	assert.Nil(t, inv.PayoutRequestedAt)
	assert.True(t, invoice.IsEligibleForCashout(inv, testNow))

	mirror, _ := f.store.MirrorInvoice("uid-1", x.ID)
	assert.NotContains(t, mirror, invoice.FieldLinkedRequest)

	again := f.submit(t, false, x.ID)
	assert.NotEqual(t, req.ID, again.ID)
}

func TestSnapshotIsImmutable(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 250)
	req := f.submit(t, false, a.ID)

	_, err := f.store.UpdateInvoiceFields(f.ctx, a.ID, store.AnyVersion, store.Patch{
		invoice.FieldAnalystTotal: 999.0,
		invoice.FieldAmount:       5000.0,
	})
	require.NoError(t, err)

	stored, err := f.svc.Get(f.ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, 250.0, stored.InvoiceSnapshot[0].Total)
	assert.Equal(t, 250.0, stored.TotalAmount)

	approved, err := f.svc.Approve(f.ctx, req.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 250.0, approved.TotalAmount)
}

func TestSubmitRevalidatesEligibility(t *testing.T) {
	f := newFixture(t)
	old := f.invoice(t, "1", "01/04/2024", 100)
	recent := f.invoice(t, "2", "10/06/2024", 100)

	res, err := f.svc.Submit(f.ctx, SubmitInput{
		AnalystUID: "uid-1",
		InvoiceIDs: []string{old.ID, recent.ID, "missing", old.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{old.ID}, res.Request.InvoiceIDs)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, recent.ID, res.Rejected[0].InvoiceID)
	assert.Equal(t, "missing", res.Rejected[1].InvoiceID)
	f.assertStatus(t, recent.ID, models.PaymentUnpaid)
}

func TestSubmitNothingEligibleCreatesNothing(t *testing.T) {
	f := newFixture(t)
	recent := f.invoice(t, "2", "10/06/2024", 100)

	res, err := f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-1", InvoiceIDs: []string{recent.ID}})
	assert.ErrorIs(t, err, ErrNothingEligible)
	require.Len(t, res.Rejected, 1)
	assert.Contains(t, res.Rejected[0].Reason, "days since issuance")

	reqs, err := f.svc.List(f.ctx, store.PayoutFilter{})
	require.NoError(t, err)
	assert.Empty(t, reqs)
}

func TestSubmitRejectsOtherAnalystsInvoices(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)

	res, err := f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-2", InvoiceIDs: []string{a.ID}})
	assert.ErrorIs(t, err, ErrNothingEligible)
	assert.Equal(t, "invoice is not assigned to this analyst", res.Rejected[0].Reason)
}

func TestSecondSubmitterLoses(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)

	first := f.submit(t, false, a.ID)
	res, err := f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-1", InvoiceIDs: []string{a.ID}})
	assert.ErrorIs(t, err, ErrNothingEligible)
	assert.Contains(t, res.Rejected[0].Reason, "payment status")

	inv, _ := f.store.GetInvoice(f.ctx, a.ID)
	assert.Equal(t, first.ID, inv.LinkedPayoutRequestID)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Submit(f.ctx, SubmitInput{InvoiceIDs: []string{"a"}})
	assert.True(t, IsValidation(err))

	_, err = f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-1", InvoiceIDs: []string{" ", ""}})
	assert.True(t, IsValidation(err))
}

func TestFailedBatchLeavesStateUnchanged(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	b := f.invoice(t, "2", "01/04/2024", 100)

	f.store.FailNextCommit(errors.New("batch write failed"))
	_, err := f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-1", InvoiceIDs: []string{a.ID, b.ID}})
	require.Error(t, err)

	var perr *Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Submit", perr.Op)

	f.assertStatus(t, a.ID, models.PaymentUnpaid)
	f.assertStatus(t, b.ID, models.PaymentUnpaid)
	reqs, _ := f.svc.List(f.ctx, store.PayoutFilter{})
	assert.Empty(t, reqs)
}

func TestInvalidTransitions(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	req := f.submit(t, false, a.ID)

	_, err := f.svc.MarkPaid(f.ctx, req.ID, "01/07/2024")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Approve(f.ctx, req.ID, "")
	require.NoError(t, err)
	_, err = f.svc.Approve(f.ctx, req.ID, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Reject(f.ctx, req.ID, "late")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.MarkPaid(f.ctx, req.ID, "not a date")
	assert.True(t, IsValidation(err))

	_, err = f.svc.Approve(f.ctx, "unknown", "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkPaidSkipsPaidInvoices(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	b := f.invoice(t, "2", "01/04/2024", 100)
	req := f.submit(t, false, a.ID, b.ID)
	_, err := f.svc.Approve(f.ctx, req.ID, "")
	require.NoError(t, err)

	_, err = f.store.UpdateInvoiceFields(f.ctx, a.ID, store.AnyVersion, store.Patch{invoice.FieldPaymentStatus: models.PaymentPaid})
	require.NoError(t, err)
	before, _ := f.store.GetInvoice(f.ctx, a.ID)

	_, err = f.svc.MarkPaid(f.ctx, req.ID, "01/07/2024")
	require.NoError(t, err)

	after, _ := f.store.GetInvoice(f.ctx, a.ID)
	assert.Equal(t, before.Version, after.Version)
	assert.Empty(t, after.PaymentDate)

	other, _ := f.store.GetInvoice(f.ctx, b.ID)
	assert.Equal(t, "01/07/2024", other.PaymentDate)
}

func TestAnalystRuleDecidesReceiptRequirement(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SaveAnalystRules(f.ctx, []models.AnalystRule{{Name: " ana ", RequiresInvoice: true}}))
	a := f.invoice(t, "1", "01/04/2024", 100)

	res, err := f.svc.Submit(f.ctx, SubmitInput{AnalystUID: "uid-1", AnalystName: "Ana", InvoiceIDs: []string{a.ID}})
	require.NoError(t, err)
	require.NotNil(t, res.Request.RequiresInvoice)

	approved, err := f.svc.Approve(f.ctx, res.Request.ID, "")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutPendingInvoice, approved.Status)
}

func TestLegacyInvoiceRequiredFlag(t *testing.T) {
	yes, no := true, false
	tests := []struct {
		name     string
		requires *bool
		legacy   *bool
		want     string
	}{
		{name: "legacy only", legacy: &yes, want: models.PayoutPendingInvoice},
		{name: "current wins", requires: &no, legacy: &yes, want: models.PayoutPendingPayment},
		{name: "neither", want: models.PayoutPendingPayment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			require.NoError(t, f.store.RunTx(f.ctx, func(ctx context.Context, tx store.Tx) error {
				return tx.CreatePayoutRequest(models.PayoutRequest{
					ID:               "req-1",
					Status:           models.PayoutSubmitted,
					RequiresInvoice:  tt.requires,
					InvoiceCRequired: tt.legacy,
				})
			}))

			approved, err := f.svc.Approve(f.ctx, "req-1", "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, approved.Status)
		})
	}
}

func TestEligibleListsOnlySelectableInvoices(t *testing.T) {
	f := newFixture(t)
	a := f.invoice(t, "1", "01/04/2024", 100)
	_ = f.invoice(t, "2", "10/06/2024", 100)
	b := f.invoice(t, "3", "01/04/2024", 100)
	f.submit(t, false, b.ID)

	views, err := f.svc.Eligible(f.ctx, "uid-1")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, a.ID, views[0].ID)
	assert.Equal(t, 75, views[0].DaysSinceIssuance)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(models.PayoutSubmitted, models.PayoutPendingInvoice))
	assert.True(t, CanTransition(models.PayoutPendingInvoice, models.PayoutPendingPayment))
	assert.True(t, CanTransition(models.PayoutPendingPayment, models.PayoutPaid))
	assert.False(t, CanTransition(models.PayoutPendingPayment, models.PayoutSubmitted))
	assert.False(t, CanTransition(models.PayoutRejected, models.PayoutSubmitted))
	assert.False(t, CanTransition(models.PayoutPaid, models.PayoutPaid))
	assert.False(t, CanTransition("UNKNOWN", models.PayoutPaid))
}
