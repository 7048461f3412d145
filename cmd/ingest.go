package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"verax/internal/extract"
	"verax/internal/logger"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [pdf-file|directory]...",
	Short: "Extract invoice PDFs and store them as new invoices",
	Long: `Extract every given PDF (directories are scanned for *.pdf, not recursively)
and create one invoice per file, unpaid and not collected.

A file that fails is reported and skipped; the rest of the batch is still
ingested. Fields that could not be read are stored as DESCONOCIDO so staff can
correct them from the dashboard.`,
	Example: `  # Ingest a folder of invoices for one analyst
  verax ingest ./facturas --analyst-name "Juana Gómez" --analyst-uid abc123

  # Show what would be stored
  verax ingest factura1.pdf factura2.pdf --dry-run`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().String("analyst-name", "", "Analyst the invoices belong to")
	ingestCmd.Flags().String("analyst-uid", "", "Analyst account uid, enables the per-analyst mirror")
	ingestCmd.Flags().Bool("dry-run", false, "Extract and print, but store nothing")
}

func runIngest(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ingest")

	analystName, _ := cmd.Flags().GetString("analyst-name")
	analystUID, _ := cmd.Flags().GetString("analyst-uid")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	paths, err := collectPDFs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no PDF files found in %v", args)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd, log)
	defer cancel()

	pipeline, closePipeline, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePipeline()

	var a *app
	if !dryRun {
		a, err = openApp(ctx, false, log)
		if err != nil {
			return err
		}
		defer a.close(log)
	}

	log.Info().
		Int("files", len(paths)).
		Bool("dry_run", dryRun).
		Msg("Starting invoice ingestion")

	stored := 0
	failures := extract.ExtractFiles(ctx, pipeline, paths, func(path string, r extract.Result) error {
		if dryRun {
			fmt.Printf("%s: %s\n", filepath.Base(path), r.Describe())
			return nil
		}
		inv, err := a.store.CreateInvoice(ctx, r.Invoice(analystName, analystUID))
		if err != nil {
			return err
		}
		stored++
		fmt.Printf("%s -> %s (%s)\n", filepath.Base(path), inv.ID, r.Describe())
		if missing := r.Missing(); len(missing) > 0 {
			log.Warn().Str("invoice_id", inv.ID).Strs("missing", missing).Msg("Stored with placeholders")
		}
		return nil
	})

	for _, f := range failures {
		fmt.Fprintf(os.Stderr, "FAILED %v\n", f)
	}
	log.Info().
		Int("files", len(paths)).
		Int("stored", stored).
		Int("failed", len(failures)).
		Msg("Invoice ingestion finished")

	if len(failures) > 0 {
		return fmt.Errorf("%d of %d files failed", len(failures), len(paths))
	}
	return nil
}

// collectPDFs expands directories into the PDFs they contain and keeps files as given.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot list %s: %w", arg, err)
		}
		var found []string
		for _, e := range entries {
			if !e.IsDir() && extract.IsPDFName(e.Name()) {
				found = append(found, filepath.Join(arg, e.Name()))
			}
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}
