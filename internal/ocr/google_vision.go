package ocr

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	vision "cloud.google.com/go/vision/v2/apiv1"
	"cloud.google.com/go/vision/v2/apiv1/visionpb"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"verax/internal/logger"
)

const (
	MaxFileSizeBytes = 20 * 1024 * 1024
	MaxPagesSync     = 5
)

// GoogleVisionOCRService implements TextExtractor with the Vision file annotation API.
type GoogleVisionOCRService struct {
	client *vision.ImageAnnotatorClient
	log    zerolog.Logger
}

// NewGoogleVisionOCRService dials Vision with the given credentials.
func NewGoogleVisionOCRService(ctx context.Context, creds Credentials) (*GoogleVisionOCRService, error) {
	const op = "NewGoogleVisionOCRService"

	var opts []option.ClientOption
	switch {
	case creds.JSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(creds.JSON)))
	case creds.File != "":
		opts = append(opts, option.WithCredentialsFile(creds.File))
	}

	client, err := vision.NewImageAnnotatorClient(ctx, opts...)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to create Vision client")
	}

	return &GoogleVisionOCRService{
		client: client,
		log:    logger.WithComponent("ocr"),
	}, nil
}

// ProcessPDF returns only the text of the document.
func (g *GoogleVisionOCRService) ProcessPDF(ctx context.Context, pdfData io.Reader) (string, error) {
	result, err := g.ProcessPDFWithMetadata(ctx, pdfData)
	if err != nil {
		return "", err
	}
	return result.Text, nil
}

// ProcessPDFWithMetadata runs document text detection over every page of the PDF.
func (g *GoogleVisionOCRService) ProcessPDFWithMetadata(ctx context.Context, pdfData io.Reader) (*Result, error) {
	const op = "ProcessPDFWithMetadata"
	startTime := time.Now()

	pdfBytes, err := ReadPDF(pdfData)
	if err != nil {
		return nil, WrapOCRError(op, err, "")
	}

	req := &visionpb.BatchAnnotateFilesRequest{
		Requests: []*visionpb.AnnotateFileRequest{
			{
				InputConfig: &visionpb.InputConfig{
					Content:  pdfBytes,
					MimeType: "application/pdf",
				},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_DOCUMENT_TEXT_DETECTION},
				},
			},
		},
	}

	resp, err := g.client.BatchAnnotateFiles(ctx, req)
	if err != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API call failed: %v", err))
	}
	if len(resp.Responses) == 0 {
		return nil, WrapOCRError(op, ErrOCRFailed, "no response from Vision API")
	}

	fileResp := resp.Responses[0]
	if fileResp.Error != nil {
		return nil, WrapOCRError(op, ErrOCRFailed, fmt.Sprintf("Vision API error: %s", fileResp.Error.Message))
	}

	result, err := collectText(fileResp)
	if err != nil {
		return nil, WrapOCRError(op, err, "failed to process Vision API response")
	}

	result.ProcessedAt = time.Now()
	result.ProcessingDuration = result.ProcessedAt.Sub(startTime)

	g.log.Debug().
		Int("pages", result.PageCount).
		Int("chars", len(result.Text)).
		Dur("duration", result.ProcessingDuration).
		Msg("Vision text detection completed")

	return result, nil
}

// ReadPDF reads the whole document and checks the size limit and the %PDF header.
func ReadPDF(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxFileSizeBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF data: %w", err)
	}
	if len(data) > MaxFileSizeBytes {
		return nil, ErrPDFTooLarge
	}
	if len(data) < 4 || string(data[:4]) != "%PDF" {
		return nil, ErrInvalidPDF
	}
	return data, nil
}

// collectText joins the page texts with a page marker and averages the confidences.
func collectText(fileResp *visionpb.AnnotateFileResponse) (*Result, error) {
	if len(fileResp.Responses) == 0 {
		return nil, ErrEmptyDocument
	}
	pageCount := len(fileResp.Responses)
	if pageCount > MaxPagesSync {
		return nil, fmt.Errorf("document has %d pages: %w", pageCount, ErrTooManyPages)
	}

	var text strings.Builder
	var confidenceSum float32
	var confidenceCount int
	languages := make(map[string]bool)

	for pageIdx, page := range fileResp.Responses {
		if page.Error != nil {
			return nil, fmt.Errorf("error processing page %d: %s", pageIdx+1, page.Error.Message)
		}
		if page.FullTextAnnotation == nil {
			continue
		}
		if pageIdx > 0 {
			fmt.Fprintf(&text, "\n\n--- Page %d ---\n\n", pageIdx+1)
		}
		text.WriteString(page.FullTextAnnotation.Text)

		for _, p := range page.FullTextAnnotation.Pages {
			if p.Confidence > 0 {
				confidenceSum += p.Confidence
				confidenceCount++
			}
			if p.Property == nil {
				continue
			}
			for _, lang := range p.Property.DetectedLanguages {
				if lang.LanguageCode != "" {
					languages[lang.LanguageCode] = true
				}
			}
		}
	}

	if strings.TrimSpace(text.String()) == "" {
		return nil, ErrEmptyDocument
	}

	result := &Result{Text: text.String(), PageCount: pageCount}
	if confidenceCount > 0 {
		result.Confidence = confidenceSum / float32(confidenceCount)
	}
	for lang := range languages {
		result.LanguageCodes = append(result.LanguageCodes, lang)
	}
	sort.Strings(result.LanguageCodes)
	return result, nil
}

// Close releases the Vision client.
func (g *GoogleVisionOCRService) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
