package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"verax/internal/extract"
	"verax/internal/logger"
	"verax/internal/ocr"
)

var extractCmd = &cobra.Command{
	Use:   "extract [pdf-file]",
	Short: "Extract invoice fields from a PDF without storing anything",
	Long: `Run the extraction pipeline on one PDF and print the result as JSON.

Fields are read with the Document AI invoice parser, scanned documents fall back
to Vision OCR, the claim and invoice numbers are scraped from the text, and when
OPENAI_API_KEY is set a language model fills what is still unknown. Fields that
could not be read keep the DESCONOCIDO placeholder.

With --text only the Vision OCR text is printed.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_CREDENTIALS
  FIREBASE_PROJECT_ID (or GOOGLE_CLOUD_PROJECT)
  DOCUMENT_AI_PROCESSOR_ID`,
	Example: `  # Print extracted fields
  verax extract factura.pdf

  # Save them to a file
  verax extract factura.pdf -o factura.json

  # Only the OCR text, with page metadata
  verax extract escaneo.pdf --text --json`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

// ExtractOutput is the JSON printed by extract.
type ExtractOutput struct {
	File     string         `json:"file"`
	Fields   extract.Result `json:"fields"`
	Missing  []string       `json:"missing,omitempty"`
	Duration string         `json:"processing_duration"`
}

// TextOutput is the JSON printed by extract --text --json.
type TextOutput struct {
	File          string   `json:"file"`
	Text          string   `json:"text"`
	PageCount     int      `json:"page_count"`
	Confidence    float32  `json:"confidence,omitempty"`
	LanguageCodes []string `json:"language_codes,omitempty"`
	Duration      string   `json:"processing_duration"`
}

func init() {
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	extractCmd.Flags().Bool("text", false, "Print the OCR text instead of the invoice fields")
	extractCmd.Flags().Bool("json", false, "With --text, print JSON including page metadata")
}

func runExtract(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("extract")

	outputPath, _ := cmd.Flags().GetString("output")
	textOnly, _ := cmd.Flags().GetBool("text")

	pdfPath := args[0]
	if err := checkPDFFile(pdfPath, log); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, log)
	defer cancel()

	f, err := os.Open(pdfPath)
	if err != nil {
		return fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer f.Close()

	if textOnly {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		vision, err := ocr.NewGoogleVisionOCRService(ctx, cfg.OCRCredentials())
		if err != nil {
			return handleCloudError(err, log)
		}
		defer vision.Close()

		res, err := vision.ProcessPDFWithMetadata(ctx, f)
		if err != nil {
			return handleExtractionError(err, log)
		}
		if !jsonOutput {
			return writeText(res.Text, outputPath)
		}
		return writeJSON(TextOutput{
			File:          filepath.Base(pdfPath),
			Text:          res.Text,
			PageCount:     res.PageCount,
			Confidence:    res.Confidence,
			LanguageCodes: res.LanguageCodes,
			Duration:      res.ProcessingDuration.String(),
		}, outputPath, log)
	}

	pipeline, closePipeline, err := newPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closePipeline()

	start := time.Now()
	result, err := pipeline.Extract(ctx, f)
	if err != nil {
		return handleExtractionError(err, log)
	}

	log.Info().
		Str("file", pdfPath).
		Strs("missing", result.Missing()).
		Dur("duration", time.Since(start)).
		Msg("Extraction completed")

	return writeJSON(ExtractOutput{
		File:     filepath.Base(pdfPath),
		Fields:   result,
		Missing:  result.Missing(),
		Duration: time.Since(start).String(),
	}, outputPath, log)
}

// checkPDFFile fails early on paths that cannot be a readable PDF.
func checkPDFFile(pdfPath string, log zerolog.Logger) error {
	info, err := os.Stat(pdfPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("PDF file not found: %s", pdfPath)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing PDF file: %s", pdfPath)
		}
		return fmt.Errorf("error accessing PDF file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("path is not a regular file: %s", pdfPath)
	}
	if info.Size() == 0 {
		return fmt.Errorf("PDF file is empty: %s", pdfPath)
	}
	if !extract.IsPDFName(pdfPath) {
		log.Warn().Str("file", pdfPath).Msg("File does not have .pdf extension")
	}
	return nil
}

func writeText(text, outputPath string) error {
	if outputPath != "" {
		return os.WriteFile(outputPath, []byte(text), 0644)
	}
	_, err := fmt.Fprintln(os.Stdout, text)
	return err
}
