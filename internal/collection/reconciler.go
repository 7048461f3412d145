// Package collection reconciles the invoice numbers an insurer reports as paid against the
// stored invoices of one issuer, then marks the matches collected.
package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"verax/internal/dates"
	"verax/internal/invoice"
	"verax/internal/logger"
	"verax/internal/store"
	"verax/pkg/models"
)

// confirmChunk bounds the invoices written per transaction; each invoice costs up to three writes.
const confirmChunk = 150

var (
	ErrIssuerRequired = errors.New("issuer is required")
	ErrDateRequired   = errors.New("collection date is required")
	ErrInvalidDate    = errors.New("collection date must be DD/MM/YYYY or YYYY-MM-DD")
)

// Reconciler runs collection previews and confirmations.
type Reconciler struct {
	store store.Store
	log   zerolog.Logger
}

func NewReconciler(st store.Store) *Reconciler {
	return &Reconciler{store: st, log: logger.WithComponent("collection")}
}

// Preview classifies the invoice numbers found in text against issuer's invoices. It never writes.
func (r *Reconciler) Preview(ctx context.Context, issuer, text string) (Preview, error) {
	const op = "Preview"

	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return Preview{}, ErrIssuerRequired
	}

	invs, err := r.store.ListInvoices(ctx, store.InvoiceFilter{Issuer: issuer})
	if err != nil {
		return Preview{}, fmt.Errorf("%s: failed to list invoices of %s: %w", op, issuer, err)
	}
	byNumber := make(map[string][]models.Invoice, len(invs))
	for _, inv := range invs {
		n := StoredNumber(inv.InvoiceNumber)
		if n == "" {
			continue
		}
		byNumber[n] = append(byNumber[n], inv)
	}

	numbers, duplicated := Tokenize(text)
	p := Preview{Issuer: issuer, Duplicated: duplicated}
	for _, n := range numbers {
		matches, ok := byNumber[n]
		if !ok {
			p.NotFound = append(p.NotFound, n)
			continue
		}
		m := Match{Number: n, Invoices: matches}
		if allCollected(matches) {
			p.AlreadyPaid = append(p.AlreadyPaid, m)
		} else {
			p.ToCharge = append(p.ToCharge, m)
		}
	}

	r.log.Debug().
		Str("issuer", issuer).
		Int("numbers", len(numbers)).
		Int("to_charge", len(p.ToCharge)).
		Int("already_paid", len(p.AlreadyPaid)).
		Int("not_found", len(p.NotFound)).
		Int("duplicated", len(p.Duplicated)).
		Msg("Collection preview")

	return p, nil
}

func allCollected(invs []models.Invoice) bool {
	for _, inv := range invs {
		if !inv.IsCollected() {
			return false
		}
	}
	return true
}

// Confirm marks the given invoices collected on collectionDate. Invoices that no longer exist or
// are already collected are skipped and reported. The analyst payment status is not touched.
func (r *Reconciler) Confirm(ctx context.Context, invoiceIDs []string, collectionDate string) (ConfirmResult, error) {
	const op = "Confirm"

	collectionDate = strings.TrimSpace(collectionDate)
	if collectionDate == "" {
		return ConfirmResult{}, ErrDateRequired
	}
	if dates.ParseFlexible(collectionDate).IsZero() {
		return ConfirmResult{}, ErrInvalidDate
	}
	invoiceIDs = distinctIDs(invoiceIDs)

	var total ConfirmResult
	for start := 0; start < len(invoiceIDs); start += confirmChunk {
		end := start + confirmChunk
		if end > len(invoiceIDs) {
			end = len(invoiceIDs)
		}

		var chunk ConfirmResult
		err := r.store.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
			chunk = ConfirmResult{}
			var pending []models.Invoice
			for _, id := range invoiceIDs[start:end] {
				inv, err := tx.GetInvoice(id)
				if errors.Is(err, store.ErrNotFound) {
					chunk.Missing = append(chunk.Missing, id)
					continue
				}
				if err != nil {
					return err
				}
				if inv.IsCollected() {
					chunk.AlreadyCharged = append(chunk.AlreadyCharged, id)
					continue
				}
				pending = append(pending, inv)
			}
			for _, inv := range pending {
				err := tx.UpdateInvoice(inv.ID, inv.Version, store.Patch{
					invoice.FieldCollectionStatus: models.CollectionCollected,
					invoice.FieldCollectionDate:   collectionDate,
				})
				if err != nil {
					return err
				}
				chunk.Updated++
			}
			return nil
		})
		if err != nil {
			r.log.Error().Err(err).Str("op", op).Int("committed", total.Updated).Msg("Collection confirmation failed")
			return total, fmt.Errorf("%s: %w", op, err)
		}
		total.Updated += chunk.Updated
		total.Missing = append(total.Missing, chunk.Missing...)
		total.AlreadyCharged = append(total.AlreadyCharged, chunk.AlreadyCharged...)
	}

	r.log.Info().
		Int("updated", total.Updated).
		Int("skipped", len(total.Missing)+len(total.AlreadyCharged)).
		Str("date", collectionDate).
		Msg("Invoices marked collected")

	return total, nil
}

// distinctIDs drops blanks and repeats, keeping first-seen order.
func distinctIDs(ids []string) []string {
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
