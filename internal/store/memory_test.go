package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/invoice"
	"verax/pkg/models"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	m.SetClock(func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) })
	return m
}

func TestCreateInvoiceWritesPrimaryAndMirror(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	inv, err := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "0001-1", AnalystUID: "uid-1", Amount: 100})
	require.NoError(t, err)
	assert.NotEmpty(t, inv.ID)
	assert.Equal(t, int64(1), inv.Version)
	assert.Equal(t, models.PaymentUnpaid, inv.PaymentStatus)
	assert.Equal(t, models.CollectionNotCollected, inv.CollectionStatus)

	primary, ok := m.RawInvoice(inv.ID)
	require.True(t, ok)
	mirror, ok := m.MirrorInvoice("uid-1", inv.ID)
	require.True(t, ok)
	assert.Equal(t, primary, mirror)
}

func TestUpdateInvoiceKeepsMirrorInStep(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	inv, err := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1", AnalystUID: "uid-1"})
	require.NoError(t, err)

	updated, err := m.UpdateInvoiceFields(ctx, inv.ID, inv.Version, Patch{
		invoice.FieldPaymentStatus: models.PaymentPendingApproval,
		invoice.FieldLinkedRequest: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, "req-1", updated.LinkedPayoutRequestID)

	primary, _ := m.RawInvoice(inv.ID)
	mirror, _ := m.MirrorInvoice("uid-1", inv.ID)
	assert.Equal(t, primary, mirror)
	assert.Equal(t, models.PaymentPendingApproval, primary[invoice.FieldMirrorStatus])

	_, err = m.UpdateInvoiceFields(ctx, inv.ID, AnyVersion, Patch{invoice.FieldLinkedRequest: Remove})
	require.NoError(t, err)
	mirror, _ = m.MirrorInvoice("uid-1", inv.ID)
	assert.NotContains(t, mirror, invoice.FieldLinkedRequest)
}

func TestUpdateInvoiceRejectsStaleVersion(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	inv, err := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1"})
	require.NoError(t, err)

	_, err = m.UpdateInvoiceFields(ctx, inv.ID, inv.Version, Patch{invoice.FieldIssuer: "A"})
	require.NoError(t, err)

	_, err = m.UpdateInvoiceFields(ctx, inv.ID, inv.Version, Patch{invoice.FieldIssuer: "B"})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := m.GetInvoice(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "A", got.Issuer)
}

func TestUpdateInvoiceRequiresRead(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	inv, err := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1"})
	require.NoError(t, err)

	err = m.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.UpdateInvoice(inv.ID, AnyVersion, Patch{invoice.FieldIssuer: "A"})
	})
	assert.ErrorIs(t, err, ErrNotRead)
}

func TestFailedCommitAppliesNothing(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	a, _ := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1", AnalystUID: "uid-1"})
	b, _ := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "2", AnalystUID: "uid-1"})

	boom := errors.New("write failed")
	m.FailNextCommit(boom)
	err := m.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		for _, id := range []string{a.ID, b.ID} {
			inv, err := tx.GetInvoice(id)
			if err != nil {
				return err
			}
			if err := tx.UpdateInvoice(id, inv.Version, Patch{invoice.FieldPaymentStatus: models.PaymentPaid}); err != nil {
				return err
			}
		}
		return tx.CreatePayoutRequest(models.PayoutRequest{ID: "req-1"})
	})
	assert.ErrorIs(t, err, boom)

	for _, id := range []string{a.ID, b.ID} {
		inv, err := m.GetInvoice(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentUnpaid, inv.PaymentStatus)
		mirror, _ := m.MirrorInvoice("uid-1", id)
		assert.Equal(t, models.PaymentUnpaid, mirror[invoice.FieldPaymentStatus])
	}
	_, err = m.GetPayoutRequest(ctx, "req-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListInvoicesFilters(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	_, _ = m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "2", Issuer: "Estudio Norte", AnalystUID: "uid-1"})
	_, _ = m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1", Issuer: "estudio norte"})
	_, _ = m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "3", Issuer: "Otro", CollectionStatus: models.CollectionCollected})

	byIssuer, err := m.ListInvoices(ctx, InvoiceFilter{Issuer: "ESTUDIO NORTE"})
	require.NoError(t, err)
	require.Len(t, byIssuer, 2)
	assert.Equal(t, "1", byIssuer[0].InvoiceNumber)

	mine, err := m.ListInvoices(ctx, InvoiceFilter{AnalystUID: "uid-1"})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "2", mine[0].InvoiceNumber)

	collected, err := m.ListInvoices(ctx, InvoiceFilter{CollectionStatus: models.CollectionCollected})
	require.NoError(t, err)
	assert.Len(t, collected, 1)
}

func TestDeleteInvoiceRemovesMirror(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	inv, _ := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1", AnalystUID: "uid-1"})

	require.NoError(t, m.DeleteInvoice(ctx, inv.ID))
	_, ok := m.MirrorInvoice("uid-1", inv.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, m.DeleteInvoice(ctx, inv.ID), ErrNotFound)
}

func TestPayoutRequestsAreCopied(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)
	require.NoError(t, m.RunTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.CreatePayoutRequest(models.PayoutRequest{ID: "req-1", InvoiceIDs: []string{"a"}})
	}))

	req, err := m.GetPayoutRequest(ctx, "req-1")
	require.NoError(t, err)
	req.InvoiceIDs[0] = "mutated"

	again, err := m.GetPayoutRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.InvoiceIDs)
}

func TestWatchInvoicesStopIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	var got []InvoiceChange
	sub, err := m.WatchInvoices(ctx, InvoiceFilter{}, func(c InvoiceChange) { got = append(got, c) })
	require.NoError(t, err)
	assert.Equal(t, 1, m.Watchers())

	inv, _ := m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "1"})
	_, _ = m.UpdateInvoiceFields(ctx, inv.ID, AnyVersion, Patch{invoice.FieldIssuer: "X"})
	require.Len(t, got, 2)
	assert.Equal(t, ChangeAdded, got[0].Kind)
	assert.Equal(t, ChangeModified, got[1].Kind)

	sub.Stop()
	sub.Stop()
	assert.Equal(t, 0, m.Watchers())

	_, _ = m.CreateInvoice(ctx, models.Invoice{InvoiceNumber: "2"})
	assert.Len(t, got, 2)
}

func TestWatchInvoicesStopsWithContext(t *testing.T) {
	m := newTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := m.WatchInvoices(ctx, InvoiceFilter{}, func(InvoiceChange) {})
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool { return m.Watchers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSettingsRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	rules, err := m.AnalystRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	require.NoError(t, m.SaveAnalystRules(ctx, []models.AnalystRule{{Name: "Ana", RequiresInvoice: true}}))
	require.NoError(t, m.SaveInsurerTerms(ctx, []models.InsurerTerm{{Insurer: "X", Days: 45}}))

	rules, _ = m.AnalystRules(ctx)
	terms, _ := m.InsurerTerms(ctx)
	assert.Equal(t, "Ana", rules[0].Name)
	assert.Equal(t, 45, terms[0].Days)
}
