package store

import (
	"context"
	"fmt"

	"verax/internal/invoice"
	"verax/internal/logger"
)

// MigrationReport summarizes one schema migration run.
type MigrationReport struct {
	Scanned  int      `json:"scanned"`
	Pending  []string `json:"pending"`
	Migrated int      `json:"migrated"`
	Failed   []string `json:"failed,omitempty"`
}

// MigrateInvoices rewrites every invoice still stored under legacy field names into the
// canonical schema, dropping the alias keys. Each document is written in its own transaction
// guarded by the version seen during the scan, so a concurrent edit makes that document fail
// instead of being overwritten. With dryRun nothing is written.
func MigrateInvoices(ctx context.Context, st Store, dryRun bool) (MigrationReport, error) {
	const op = "MigrateInvoices"
	log := logger.WithComponent("migrate")

	var report MigrationReport
	raws := make(map[string]map[string]interface{})
	err := st.ScanRawInvoices(ctx, func(id string, raw map[string]interface{}) error {
		report.Scanned++
		if invoice.NeedsMigration(raw) {
			report.Pending = append(report.Pending, id)
			raws[id] = raw
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("%s: %w", op, err)
	}
	if dryRun {
		return report, nil
	}

	for _, id := range report.Pending {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("%s: %w", op, err)
		}
		raw := raws[id]
		m := invoice.Migrate(id, raw)
		patch := make(Patch, len(m.Set)+len(m.Remove))
		for k, v := range m.Set {
			patch[k] = v
		}
		for _, k := range m.Remove {
			patch[k] = Remove
		}
		seen := invoice.Canonical(id, raw).Version

		err := st.RunTx(ctx, func(ctx context.Context, tx Tx) error {
			if _, err := tx.GetInvoice(id); err != nil {
				return err
			}
			return tx.UpdateInvoice(id, seen, patch)
		})
		if err != nil {
			log.Warn().Err(err).Str("invoice_id", id).Msg("Invoice migration failed")
			report.Failed = append(report.Failed, id)
			continue
		}
		report.Migrated++
	}

	log.Info().
		Int("scanned", report.Scanned).
		Int("migrated", report.Migrated).
		Int("failed", len(report.Failed)).
		Msg("Invoice migration finished")
	return report, nil
}
