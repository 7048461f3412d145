package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"verax/internal/invoice"
	"verax/internal/logger"
	"verax/internal/sheets"
	"verax/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write invoices and payout requests to Google Sheets",
	Long: `Rewrite the Facturas, Vencidas and Solicitudes sheets of GOOGLE_SHEET_URL with
a snapshot of the store. Each sheet is cleared and written in full; missing
sheets are created.

Vencidas holds the uncollected invoices older than their insurer's payment term
plus tolerance (DEFAULT_INSURER_DAYS applies to insurers without a term).`,
	Example: `  # Full export
  verax export

  # Only refresh the overdue sheet
  verax export --overdue`,
	RunE: runExport,
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().Bool("overdue", false, "Only write the overdue invoices sheet")
}

func runExport(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("export")
	overdueOnly, _ := cmd.Flags().GetBool("overdue")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	if err := a.cfg.RequireSheets(); err != nil {
		return err
	}
	svc, err := sheets.NewSheetsService(ctx, a.cfg.GoogleSheetURL, a.cfg.SheetsCredentials())
	if err != nil {
		return handleCloudError(err, log)
	}

	configured, err := a.store.InsurerTerms(ctx)
	if err != nil {
		return fmt.Errorf("failed to read insurer terms: %w", err)
	}
	terms := invoice.NewTerms(configured, a.cfg.DefaultInsurerTerm())

	invs, err := a.store.ListInvoices(ctx, store.InvoiceFilter{})
	if err != nil {
		return fmt.Errorf("failed to list invoices: %w", err)
	}

	now := a.cfg.Now()
	var all, overdue []invoice.View
	for _, inv := range invs {
		v := invoice.ViewOf(inv, now)
		all = append(all, v)
		if invoice.IsOverdue(inv, terms, now) {
			overdue = append(overdue, v)
		}
	}

	tables := map[string]sheets.Table{
		sheets.OverdueSheet: sheets.InvoiceTable(overdue, terms, now),
	}
	if !overdueOnly {
		reqs, err := a.store.ListPayoutRequests(ctx, store.PayoutFilter{})
		if err != nil {
			return fmt.Errorf("failed to list payout requests: %w", err)
		}
		tables[sheets.InvoicesSheet] = sheets.InvoiceTable(all, terms, now)
		tables[sheets.PayoutsSheet] = sheets.PayoutTable(reqs, a.cfg.Location)
		log.Debug().Int("requests", len(reqs)).Msg("Payout requests loaded")
	}

	for _, name := range []string{sheets.InvoicesSheet, sheets.OverdueSheet, sheets.PayoutsSheet} {
		table, ok := tables[name]
		if !ok {
			continue
		}
		if err := svc.WriteTable(ctx, name, table); err != nil {
			return handleCloudError(err, log)
		}
		fmt.Printf("%-12s %d rows\n", name, len(table.Rows))
	}

	log.Info().
		Int("invoices", len(all)).
		Int("overdue", len(overdue)).
		Bool("overdue_only", overdueOnly).
		Msg("Export finished")
	return nil
}
