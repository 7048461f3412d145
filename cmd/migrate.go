package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"verax/internal/logger"
	"verax/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite legacy invoice documents into the canonical schema",
	Long: `Find invoices still stored under historical field names (factura, cia,
importe, ...) and rewrite them once under the canonical names, removing the
aliases. Reads keep resolving aliases, so the migration can run at any time.

A document edited while the migration runs is skipped and reported; run the
command again to pick it up.`,
	Example: `  # List what would change
  verax migrate --dry-run

  verax migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().Bool("dry-run", false, "Only report the documents that need migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("migrate")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx, cancel := signalContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	report, err := store.MigrateInvoices(ctx, a.store, dryRun)
	if err != nil {
		return err
	}

	fmt.Printf("Scanned %d invoice(s), %d need migration.\n", report.Scanned, len(report.Pending))
	if dryRun {
		for _, id := range report.Pending {
			fmt.Printf("  %s\n", id)
		}
		return nil
	}
	fmt.Printf("Migrated %d.\n", report.Migrated)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d invoice(s) could not be migrated: %v", len(report.Failed), report.Failed)
	}
	return nil
}
