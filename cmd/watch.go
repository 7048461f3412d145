package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"verax/internal/logger"
	"verax/internal/store"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print invoice changes as JSON lines until interrupted",
	Example: `  verax watch --analyst-uid abc123
  verax watch --issuer "Estudio Norte"`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("analyst-uid", "", "Only this analyst's invoices")
	watchCmd.Flags().String("issuer", "", "Only this issuer's invoices")
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	filter := store.InvoiceFilter{}
	filter.AnalystUID, _ = cmd.Flags().GetString("analyst-uid")
	filter.Issuer, _ = cmd.Flags().GetString("issuer")

	ctx, cancel := signalContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)
	sub, err := a.store.WatchInvoices(ctx, filter, func(change store.InvoiceChange) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(change); err != nil {
			log.Warn().Err(err).Msg("Failed to print change")
		}
	})
	if err != nil {
		return handleCloudError(err, log)
	}
	defer sub.Stop()

	fmt.Fprintln(os.Stderr, "Watching invoices, press Ctrl+C to stop.")
	<-ctx.Done()
	return nil
}
