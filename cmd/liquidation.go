package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"verax/internal/logger"
	"verax/internal/storage"
)

var liquidationCmd = &cobra.Command{
	Use:   "liquidation",
	Short: "Store insurer liquidation orders",
}

var liquidationUploadCmd = &cobra.Command{
	Use:     "upload [pdf-file]",
	Short:   "Upload an insurer's liquidation order PDF",
	Example: `  verax liquidation upload orden-junio.pdf --insurer "La Segunda"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLiquidationUpload,
}

func init() {
	rootCmd.AddCommand(liquidationCmd)
	liquidationCmd.AddCommand(liquidationUploadCmd)

	liquidationUploadCmd.Flags().String("insurer", "", "Insurer that issued the order (required)")
	_ = liquidationUploadCmd.MarkFlagRequired("insurer")
}

func runLiquidationUpload(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("liquidation")
	insurer, _ := cmd.Flags().GetString("insurer")

	pdfPath := args[0]
	if err := checkPDFFile(pdfPath, log); err != nil {
		return err
	}
	f, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	ctx, cancel := commandContext(cmd, log)
	defer cancel()
	a, err := openApp(ctx, true, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	objectPath := storage.LiquidationPath(insurer, filepath.Base(pdfPath), a.cfg.Now())
	obj, err := a.uploader.Upload(ctx, objectPath, storage.ContentTypePDF, f)
	if err != nil {
		return handleCloudError(err, log)
	}
	return writeJSON(obj, "", log)
}
