package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"verax/internal/logger"
	"verax/internal/money"
	"verax/internal/payout"
	"verax/internal/storage"
	"verax/internal/store"
)

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Manage analyst payout requests",
	Long: `Move payout requests through their lifecycle:

  SUBMITTED -> PENDIENTE_PAGO -> PAGO                      (no invoice receipt needed)
  SUBMITTED -> PENDIENTE_FACTURA -> PENDIENTE_PAGO -> PAGO (receipt required)
  SUBMITTED -> REJECTED                                    (invoices are released)`,
}

var payoutSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a payout request over eligible invoices",
	Example: `  verax payout submit --analyst-uid abc123 --analyst-name "Juana Gómez" --invoice inv1 --invoice inv2
  verax payout submit --analyst-uid abc123 --invoice inv1 --requires-invoice=false`,
	RunE: runPayoutSubmit,
}

var payoutApproveCmd = &cobra.Command{
	Use:   "approve [request-id]",
	Short: "Approve a submitted request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayoutApprove,
}

var payoutRejectCmd = &cobra.Command{
	Use:   "reject [request-id]",
	Short: "Reject a submitted request and release its invoices",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayoutReject,
}

var payoutReceiptCmd = &cobra.Command{
	Use:   "receipt [request-id] [pdf-file]",
	Short: "Upload the analyst's invoice receipt for an approved request",
	Args:  cobra.ExactArgs(2),
	RunE:  runPayoutReceipt,
}

var payoutPaidCmd = &cobra.Command{
	Use:   "paid [request-id]",
	Short: "Mark a request and its invoices paid",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayoutPaid,
}

var payoutShowCmd = &cobra.Command{
	Use:   "show [request-id]",
	Short: "Print one payout request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayoutShow,
}

var payoutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List payout requests, newest first",
	RunE:  runPayoutList,
}

var payoutEligibleCmd = &cobra.Command{
	Use:   "eligible [analyst-uid]",
	Short: "List the invoices an analyst may include in a new request",
	Args:  cobra.ExactArgs(1),
	RunE:  runPayoutEligible,
}

func init() {
	rootCmd.AddCommand(payoutCmd)
	payoutCmd.AddCommand(payoutSubmitCmd, payoutApproveCmd, payoutRejectCmd, payoutReceiptCmd,
		payoutPaidCmd, payoutShowCmd, payoutListCmd, payoutEligibleCmd)

	payoutSubmitCmd.Flags().String("analyst-uid", "", "Analyst account uid (required)")
	payoutSubmitCmd.Flags().String("analyst-name", "", "Analyst display name")
	payoutSubmitCmd.Flags().StringSlice("invoice", nil, "Invoice id to include (repeatable)")
	payoutSubmitCmd.Flags().Bool("requires-invoice", false, "Override the analyst rule for the receipt requirement")
	_ = payoutSubmitCmd.MarkFlagRequired("analyst-uid")
	_ = payoutSubmitCmd.MarkFlagRequired("invoice")

	payoutApproveCmd.Flags().String("note", "", "Note stored in the request history")
	payoutRejectCmd.Flags().String("reason", "", "Rejection reason (required)")
	payoutReceiptCmd.Flags().String("analyst-uid", "", "Uploading analyst uid (required)")
	_ = payoutReceiptCmd.MarkFlagRequired("analyst-uid")
	payoutPaidCmd.Flags().String("date", "", "Payment date, DD/MM/YYYY or YYYY-MM-DD (default: today)")

	payoutListCmd.Flags().String("analyst-uid", "", "Only this analyst's requests")
	payoutListCmd.Flags().String("status", "", "Only requests in this status")
}

func runPayoutSubmit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")

	in := payout.SubmitInput{}
	in.AnalystUID, _ = cmd.Flags().GetString("analyst-uid")
	in.AnalystName, _ = cmd.Flags().GetString("analyst-name")
	in.InvoiceIDs, _ = cmd.Flags().GetStringSlice("invoice")
	if cmd.Flags().Changed("requires-invoice") {
		v, _ := cmd.Flags().GetBool("requires-invoice")
		in.RequiresInvoice = &v
	}

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	result, err := a.payouts().Submit(ctx, in)
	for _, r := range result.Rejected {
		fmt.Fprintf(os.Stderr, "skipped %s: %s\n", r.InvoiceID, r.Reason)
	}
	if errors.Is(err, payout.ErrNothingEligible) {
		return fmt.Errorf("none of the selected invoices can be paid out")
	}
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(result.Request, "", log)
}

func runPayoutApprove(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")
	note, _ := cmd.Flags().GetString("note")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	req, err := a.payouts().Approve(ctx, args[0], note)
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(req, "", log)
}

func runPayoutReject(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")
	reason, _ := cmd.Flags().GetString("reason")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	req, err := a.payouts().Reject(ctx, args[0], reason)
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(req, "", log)
}

func runPayoutReceipt(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")
	analystUID, _ := cmd.Flags().GetString("analyst-uid")

	requestID, pdfPath := args[0], args[1]
	if err := checkPDFFile(pdfPath, log); err != nil {
		return err
	}
	f, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open receipt: %w", err)
	}
	defer f.Close()

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, true, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	req, err := a.payouts().UploadReceipt(ctx, payout.ReceiptInput{
		RequestID:   requestID,
		AnalystUID:  analystUID,
		Filename:    filepath.Base(pdfPath),
		ContentType: storage.ContentTypePDF,
		Body:        f,
	})
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(req, "", log)
}

func runPayoutPaid(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")
	paidDate, _ := cmd.Flags().GetString("date")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	if paidDate == "" {
		paidDate = a.cfg.Now().Format("02/01/2006")
	}
	req, err := a.payouts().MarkPaid(ctx, args[0], paidDate)
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(req, "", log)
}

func runPayoutShow(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	req, err := a.payouts().Get(ctx, args[0])
	if err != nil {
		return handlePayoutError(err)
	}
	return writeJSON(req, "", log)
}

func runPayoutList(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")

	filter := store.PayoutFilter{}
	filter.AnalystUID, _ = cmd.Flags().GetString("analyst-uid")
	filter.Status, _ = cmd.Flags().GetString("status")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	reqs, err := a.payouts().List(ctx, filter)
	if err != nil {
		return err
	}
	for _, r := range reqs {
		fmt.Printf("%-22s %-18s %-24s %3d facturas  %s\n",
			r.ID, r.Status, r.AnalystName, len(r.InvoiceIDs), money.FormatArgentine(r.TotalAmount))
	}
	return nil
}

func runPayoutEligible(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("payout")

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, false, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	views, err := a.payouts().Eligible(ctx, args[0])
	if err != nil {
		return err
	}
	for _, v := range views {
		fmt.Printf("%-22s %-16s %s  %4d días  %s\n",
			v.ID, v.InvoiceNumber, v.IssuanceDate, v.DaysSinceIssuance, money.FormatArgentine(v.PayableTotal))
	}
	return nil
}
