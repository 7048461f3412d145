package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	firebase "firebase.google.com/go"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"verax/internal/collection"
	"verax/internal/config"
	"verax/internal/extract"
	"verax/internal/ocr"
	"verax/internal/payout"
	"verax/internal/storage"
	"verax/internal/store"
)

// app bundles the clients a command opened. close releases all of them.
type app struct {
	cfg      *config.Config
	firebase *firebase.App
	store    store.Store
	uploader storage.Uploader
}

func loadConfig() (*config.Config, error) {
	if appConfigErr != nil {
		return nil, fmt.Errorf("configuration error: %w", appConfigErr)
	}
	if appConfig == nil {
		return nil, errors.New("configuration not loaded")
	}
	return appConfig, nil
}

// openApp connects to the document store and, when withUploader is set, to the
// configured receipt storage backend.
func openApp(ctx context.Context, withUploader bool, log zerolog.Logger) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireFirebase(); err != nil {
		return nil, err
	}

	fbApp, err := store.NewFirebaseApp(ctx, cfg.FirebaseConfig())
	if err != nil {
		return nil, handleCloudError(err, log)
	}
	st, err := store.NewFirestore(ctx, fbApp)
	if err != nil {
		return nil, handleCloudError(err, log)
	}
	a := &app{cfg: cfg, firebase: fbApp, store: st}

	if withUploader {
		if err := a.openUploader(ctx, log); err != nil {
			a.close(log)
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openUploader(ctx context.Context, log zerolog.Logger) error {
	if err := a.cfg.RequireReceiptStorage(); err != nil {
		return err
	}

	var err error
	switch a.cfg.ReceiptStorage {
	case config.StorageS3:
		a.uploader, err = storage.NewS3Uploader(ctx, a.cfg.S3Config())
	default:
		a.uploader, err = storage.NewFirebaseUploader(ctx, a.firebase, a.cfg.FirebaseStorageBucket)
	}
	if err != nil {
		return handleCloudError(err, log)
	}

	log.Debug().Str("backend", a.cfg.ReceiptStorage).Msg("Receipt storage ready")
	return nil
}

func (a *app) payouts() *payout.Service {
	return payout.NewService(a.store, a.uploader, payout.Options{
		MinCashoutDays:         a.cfg.CashoutMinDays,
		ScheduledPaymentOffset: a.cfg.ScheduledPaymentOffset,
		Now:                    a.cfg.Now,
	})
}

func (a *app) reconciler() *collection.Reconciler {
	return collection.NewReconciler(a.store)
}

func (a *app) close(log zerolog.Logger) {
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close store")
	}
}

// newPipeline builds the extraction pipeline. Vision OCR and the language-model completer
// are optional; the returned func closes whatever was opened.
func newPipeline(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*extract.Pipeline, func(), error) {
	if err := cfg.RequireDocumentAI(); err != nil {
		return nil, nil, err
	}

	parser, err := extract.NewDocumentAIExtractor(ctx, cfg.DocumentAIConfig())
	if err != nil {
		return nil, nil, handleCloudError(err, log)
	}
	closers := []func() error{parser.Close}

	var text ocr.TextExtractor
	vision, err := ocr.NewGoogleVisionOCRService(ctx, cfg.OCRCredentials())
	if err != nil {
		log.Warn().Err(err).Msg("Vision OCR unavailable, scanned PDFs will not be read")
	} else {
		text = vision
		closers = append(closers, vision.Close)
	}

	var completer *extract.Completer
	if cfg.OpenAIAPIKey != "" {
		completer, err = extract.NewOpenAICompleter(cfg.OpenAIAPIKey, extract.CompletionConfig{Model: cfg.OpenAIModel})
		if err != nil {
			log.Warn().Err(err).Msg("Field completion disabled")
		}
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Err(err).Msg("Failed to close extraction client")
			}
		}
	}
	return extract.NewPipeline(parser, text, completer), closeAll, nil
}

// commandContext bounds a one-shot command by --timeout and cancels it on SIGINT/SIGTERM.
func commandContext(cmd *cobra.Command, log zerolog.Logger) (context.Context, context.CancelFunc) {
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(timeoutSecs)*time.Second)
	return withSignals(ctx, cancel, log)
}

// signalContext runs until SIGINT/SIGTERM.
func signalContext(cmd *cobra.Command, log zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(cmd.Context())
	return withSignals(ctx, cancel, log)
}

func withSignals(ctx context.Context, cancel context.CancelFunc, log zerolog.Logger) (context.Context, context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			log.Info().
				Str("signal", sig.String()).
				Msg("Received interrupt signal, canceling")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// writeJSON prints v indented to stdout, or to outputPath when set.
func writeJSON(v interface{}, outputPath string, log zerolog.Logger) error {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal output to JSON")
		return fmt.Errorf("failed to create JSON output: %w", err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
			log.Error().
				Err(err).
				Str("output_file", outputPath).
				Msg("Failed to write output file")
			return fmt.Errorf("failed to write output file: %w", err)
		}
		log.Info().
			Str("output_file", outputPath).
			Int("bytes", len(jsonData)).
			Msg("Output written to file")
		return nil
	}

	if _, err := os.Stdout.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
