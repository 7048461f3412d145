package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"verax/internal/collection"
	"verax/internal/config"
	"verax/internal/logger"
	"verax/internal/sheets"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Reconcile insurer payments against stored invoices",
	Long: `Match the invoice numbers an insurer reports as paid against one issuer's
invoices. Numbers are read as digit runs from free text, leading zeros ignored.

The text comes from --file, from a Google Sheets range (--sheet-range, using
GOOGLE_SHEET_URL) or from standard input.`,
}

var collectPreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Classify the reported numbers without changing anything",
	Example: `  verax collect preview --issuer "Estudio Norte" --file pagos.txt
  echo "976, 977 0978" | verax collect preview --issuer "Estudio Norte"
  verax collect preview --issuer "Estudio Norte" --sheet-range "Pagos!A2:A"`,
	RunE: runCollectPreview,
}

var collectConfirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Mark the matched, uncollected invoices as collected",
	Example: `  verax collect confirm --issuer "Estudio Norte" --file pagos.txt --date 14/06/2024`,
	RunE: runCollectConfirm,
}

func init() {
	rootCmd.AddCommand(collectCmd)
	collectCmd.AddCommand(collectPreviewCmd, collectConfirmCmd)

	for _, c := range []*cobra.Command{collectPreviewCmd, collectConfirmCmd} {
		c.Flags().String("issuer", "", "Issuer whose invoices are matched (required)")
		c.Flags().String("file", "", "Read the reported numbers from this file")
		c.Flags().String("sheet-range", "", "Read the reported numbers from this A1 range of GOOGLE_SHEET_URL")
		_ = c.MarkFlagRequired("issuer")
	}
	collectConfirmCmd.Flags().String("date", "", "Collection date, DD/MM/YYYY or YYYY-MM-DD (required)")
	_ = collectConfirmCmd.MarkFlagRequired("date")
}

func runCollectPreview(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("collect")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	preview, err := previewFromFlags(ctx, cmd, a, log)
	if err != nil {
		return err
	}
	printPreview(preview)
	return nil
}

func runCollectConfirm(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("collect")
	date, _ := cmd.Flags().GetString("date")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	preview, err := previewFromFlags(ctx, cmd, a, log)
	if err != nil {
		return err
	}
	printPreview(preview)

	ids := preview.ToChargeIDs()
	if len(ids) == 0 {
		fmt.Println("Nothing to mark collected.")
		return nil
	}
	result, err := a.reconciler().Confirm(ctx, ids, date)
	if err != nil {
		return err
	}
	fmt.Printf("Marked %d invoice(s) collected on %s.\n", result.Updated, date)
	if n := len(result.AlreadyCharged) + len(result.Missing); n > 0 {
		fmt.Printf("%d invoice(s) changed since the preview and were skipped.\n", n)
	}
	return nil
}

func previewFromFlags(ctx context.Context, cmd *cobra.Command, a *app, log zerolog.Logger) (collection.Preview, error) {
	issuer, _ := cmd.Flags().GetString("issuer")
	text, err := reportedText(ctx, cmd, a.cfg, log)
	if err != nil {
		return collection.Preview{}, err
	}
	return a.reconciler().Preview(ctx, issuer, text)
}

func reportedText(ctx context.Context, cmd *cobra.Command, cfg *config.Config, log zerolog.Logger) (string, error) {
	file, _ := cmd.Flags().GetString("file")
	sheetRange, _ := cmd.Flags().GetString("sheet-range")

	switch {
	case file != "" && sheetRange != "":
		return "", fmt.Errorf("use either --file or --sheet-range, not both")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return string(data), nil
	case sheetRange != "":
		if err := cfg.RequireSheets(); err != nil {
			return "", err
		}
		svc, err := sheets.NewSheetsService(ctx, cfg.GoogleSheetURL, cfg.SheetsCredentials())
		if err != nil {
			return "", handleCloudError(err, log)
		}
		return svc.ReadText(ctx, sheetRange)
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read standard input: %w", err)
		}
		return string(data), nil
	}
}

func printPreview(p collection.Preview) {
	fmt.Printf("Issuer: %s\n", p.Issuer)
	fmt.Printf("To charge (%d):\n", len(p.ToCharge))
	for _, m := range p.ToCharge {
		fmt.Printf("  %-10s %d invoice(s)\n", m.Number, len(m.Invoices))
	}
	fmt.Printf("Already paid (%d):\n", len(p.AlreadyPaid))
	for _, m := range p.AlreadyPaid {
		fmt.Printf("  %s\n", m.Number)
	}
	if len(p.NotFound) > 0 {
		fmt.Printf("Not found: %s\n", strings.Join(p.NotFound, ", "))
	}
	if len(p.Duplicated) > 0 {
		fmt.Printf("Repeated in input: %s\n", strings.Join(p.Duplicated, ", "))
	}
}
