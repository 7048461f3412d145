package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"verax/internal/config"
	"verax/internal/logger"
)

var version = "1.0.0"

var (
	appConfig    *config.Config
	appConfigErr error
)

var rootCmd = &cobra.Command{
	Use:   "verax",
	Short: "Verax Financial Hub - invoices, collections and analyst payouts",
	Long: `Verax tracks insurance-claim invoices from PDF ingestion through insurer
collection, and runs the approval workflow that pays analysts their commission.

Run "verax serve" for the dashboard API, or use the subcommands to ingest
invoices, reconcile collections and move payout requests from the terminal.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetConfig hands the configuration loaded by main to the commands. A load error is
// reported by the first command that needs configuration.
func SetConfig(cfg *config.Config, err error) {
	appConfig = cfg
	appConfigErr = err
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int("timeout", 120, "Timeout in seconds for one-shot commands")
}
