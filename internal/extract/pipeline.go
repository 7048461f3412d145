package extract

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"verax/internal/logger"
	"verax/internal/ocr"
)

// Parser is a structured extractor that also hands back the document text it saw.
type Parser interface {
	Parse(ctx context.Context, pdf io.Reader) (Result, string, error)
}

// Pipeline runs the parser, falls back to OCR text when the parser returned none,
// scrapes the text for what the parser missed and finally asks the completer, if any,
// for the remaining placeholders.
type Pipeline struct {
	parser    Parser
	text      ocr.TextExtractor
	completer *Completer
	log       zerolog.Logger
}

// NewPipeline builds a pipeline. text and completer may be nil.
func NewPipeline(parser Parser, text ocr.TextExtractor, completer *Completer) *Pipeline {
	return &Pipeline{
		parser:    parser,
		text:      text,
		completer: completer,
		log:       logger.WithComponent("extract"),
	}
}

// Extract implements Extractor.
func (p *Pipeline) Extract(ctx context.Context, pdf io.Reader) (Result, error) {
	const op = "Extract"

	data, err := ocr.ReadPDF(pdf)
	if err != nil {
		return Result{}, WrapExtractionError(op, pdfError(err), "")
	}

	result, text, err := p.parser.Parse(ctx, bytes.NewReader(data))
	if err != nil {
		return Result{}, WrapExtractionError(op, err, "")
	}
	if result.Confidence == nil {
		result.Confidence = make(map[string]float32)
	}

	if strings.TrimSpace(text) == "" && p.text != nil {
		ocrText, err := p.text.ProcessPDF(ctx, bytes.NewReader(data))
		if err != nil {
			p.log.Warn().Err(err).Msg("OCR fallback failed")
		}
		text = ocrText
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, WrapExtractionError(op, ErrEmptyDocument, "")
	}

	if isUnknown(result.ClaimNumber) {
		if claim := ScrapeClaimNumber(text); claim != "" {
			result.ClaimNumber = claim
			result.Confidence[FieldClaimNumber] = 0.6
		}
	}
	if isUnknown(result.InvoiceNumber) {
		if n := ScrapeInvoiceNumber(text); n != "" {
			result.InvoiceNumber = n
			result.Confidence[FieldInvoiceNumber] = 0.6
		}
	}

	if missing := result.Missing(); len(missing) > 0 && p.completer != nil {
		completed, err := p.completer.Complete(ctx, result, text)
		if err != nil {
			// placeholders stay for staff to correct
			p.log.Warn().Err(err).Strs("missing", missing).Msg("Completion failed")
		} else {
			result = completed
		}
	}

	p.log.Debug().Strs("missing", result.Missing()).Msg("Extraction finished")
	return result, nil
}
