package collection

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/store"
	"verax/pkg/models"
)

func TestTokenize(t *testing.T) {
	numbers, duplicated := Tokenize("0976, 976 0977")
	assert.Equal(t, []string{"976", "977"}, numbers)
	assert.Equal(t, []string{"976"}, duplicated)

	numbers, duplicated = Tokenize("12\n12;12\t000\nabc 0")
	assert.Equal(t, []string{"12", "0"}, numbers)
	assert.Equal(t, []string{"12", "0"}, duplicated)

	numbers, duplicated = Tokenize("no numbers here")
	assert.Empty(t, numbers)
	assert.Empty(t, duplicated)
}

func TestStoredNumber(t *testing.T) {
	assert.Equal(t, "976", StoredNumber("0001-00000976"))
	assert.Equal(t, "976", StoredNumber("976"))
	assert.Equal(t, "15", StoredNumber("FC A 0003 15"))
	assert.Equal(t, "", StoredNumber("DESCONOCIDO"))
}

func seed(t *testing.T) (*store.Memory, map[string]models.Invoice) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	st.SetClock(func() time.Time { return time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) })

	byNumber := make(map[string]models.Invoice)
	for _, inv := range []models.Invoice{
		{InvoiceNumber: "0001-00000976", Issuer: "Estudio Norte", PaymentStatus: models.PaymentPendingPayment},
		{InvoiceNumber: "0001-00000977", Issuer: "Estudio Norte", CollectionStatus: models.CollectionCollected, CollectionDate: "01/06/2024"},
		{InvoiceNumber: "0001-00000978", Issuer: "Otro Estudio"},
	} {
		created, err := st.CreateInvoice(ctx, inv)
		require.NoError(t, err)
		byNumber[inv.InvoiceNumber] = created
	}
	return st, byNumber
}

func TestPreviewClassifies(t *testing.T) {
	st, invs := seed(t)
	r := NewReconciler(st)

	p, err := r.Preview(context.Background(), "estudio norte", "0976, 976 0977\n978 5")
	require.NoError(t, err)

	require.Len(t, p.ToCharge, 1)
	assert.Equal(t, "976", p.ToCharge[0].Number)
	require.Len(t, p.AlreadyPaid, 1)
	assert.Equal(t, "977", p.AlreadyPaid[0].Number)
	assert.Equal(t, []string{"978", "5"}, p.NotFound, "other issuers' invoices are not matched")
	assert.Equal(t, []string{"976"}, p.Duplicated)
	assert.Equal(t, []string{invs["0001-00000976"].ID}, p.ToChargeIDs())
}

func TestPreviewIsIdempotent(t *testing.T) {
	st, _ := seed(t)
	r := NewReconciler(st)
	ctx := context.Background()

	first, err := r.Preview(ctx, "Estudio Norte", "976 977 1 976")
	require.NoError(t, err)
	second, err := r.Preview(ctx, "Estudio Norte", "976 977 1 976")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestPreviewRequiresIssuer(t *testing.T) {
	r := NewReconciler(store.NewMemory())
	_, err := r.Preview(context.Background(), " ", "1")
	assert.ErrorIs(t, err, ErrIssuerRequired)
}

func TestConfirm(t *testing.T) {
	st, invs := seed(t)
	r := NewReconciler(st)
	ctx := context.Background()
	target := invs["0001-00000976"]
	collected := invs["0001-00000977"]

	_, err := r.Confirm(ctx, []string{target.ID}, "")
	assert.ErrorIs(t, err, ErrDateRequired)
	_, err = r.Confirm(ctx, []string{target.ID}, "yesterday")
	assert.ErrorIs(t, err, ErrInvalidDate)

	res, err := r.Confirm(ctx, []string{target.ID, collected.ID, "gone"}, "14/06/2024")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, []string{collected.ID}, res.AlreadyCharged)
	assert.Equal(t, []string{"gone"}, res.Missing)

	got, err := st.GetInvoice(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCollected, got.CollectionStatus)
	assert.Equal(t, "14/06/2024", got.CollectionDate)
	assert.Equal(t, models.PaymentPendingPayment, got.PaymentStatus, "analyst payment status is independent")

	untouched, _ := st.GetInvoice(ctx, collected.ID)
	assert.Equal(t, "01/06/2024", untouched.CollectionDate)

	p, err := r.Preview(ctx, "Estudio Norte", "976")
	require.NoError(t, err)
	assert.Empty(t, p.ToCharge)
	assert.Len(t, p.AlreadyPaid, 1)
}

func TestConfirmRepeatedIDs(t *testing.T) {
	st, invs := seed(t)
	r := NewReconciler(st)
	ctx := context.Background()
	target := invs["0001-00000976"]

	res, err := r.Confirm(ctx, []string{target.ID, target.ID, " " + target.ID + " ", ""}, "14/06/2024")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Empty(t, res.Missing)
	assert.Empty(t, res.AlreadyCharged)

	got, err := st.GetInvoice(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CollectionCollected, got.CollectionStatus)
	assert.Equal(t, "14/06/2024", got.CollectionDate)
}
