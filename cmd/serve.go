package cmd

import (
	"github.com/spf13/cobra"

	"verax/internal/api"
	"verax/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dashboard JSON API",
	Long: `Serve the dashboard API on HTTP_ADDR (default :8080) until interrupted.

Required environment variables:
  FIREBASE_PROJECT_ID
  FIREBASE_STORAGE_BUCKET, or S3_BUCKET with RECEIPT_STORAGE=s3`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides HTTP_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	ctx, cancel := signalContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, true, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = a.cfg.HTTPAddr
	}

	srv := api.NewServer(api.Deps{
		Store:       a.store,
		Payouts:     a.payouts(),
		Collector:   a.reconciler(),
		Uploader:    a.uploader,
		DefaultTerm: a.cfg.DefaultInsurerTerm(),
		Now:         a.cfg.Now,
	})
	return srv.Run(ctx, addr)
}
