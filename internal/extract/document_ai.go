package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"verax/internal/dates"
	"verax/internal/logger"
	"verax/internal/money"
	"verax/internal/ocr"
)

// DocumentAIConfig addresses the invoice parser processor.
type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	Credentials      ocr.Credentials
	Timeout          time.Duration
}

// DocumentAIExtractor reads invoice entities with the Document AI invoice parser.
// It implements Parser; the document text it returns is scraped by Pipeline.
type DocumentAIExtractor struct {
	client *documentai.DocumentProcessorClient
	config DocumentAIConfig
	log    zerolog.Logger
}

// NewDocumentAIExtractor dials the regional Document AI endpoint.
func NewDocumentAIExtractor(ctx context.Context, cfg DocumentAIConfig) (*DocumentAIExtractor, error) {
	const op = "NewDocumentAIExtractor"

	if cfg.ProjectID == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "project id is required")
	}
	if cfg.ProcessorID == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "processor id is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	var opts []option.ClientOption
	if cfg.Location != "us" {
		opts = append(opts, option.WithEndpoint(fmt.Sprintf("%s-documentai.googleapis.com:443", cfg.Location)))
	}
	switch {
	case cfg.Credentials.JSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.Credentials.JSON)))
	case cfg.Credentials.File != "":
		opts = append(opts, option.WithCredentialsFile(cfg.Credentials.File))
	}

	client, err := documentai.NewDocumentProcessorClient(ctx, opts...)
	if err != nil {
		return nil, WrapExtractionError(op, err, fmt.Sprintf("failed to create Document AI client for location: %s", cfg.Location))
	}

	return &DocumentAIExtractor{
		client: client,
		config: cfg,
		log:    logger.WithComponent("document-ai"),
	}, nil
}

// Parse sends the PDF to the processor and maps its entities.
func (p *DocumentAIExtractor) Parse(ctx context.Context, pdf io.Reader) (Result, string, error) {
	const op = "Parse"

	data, err := ocr.ReadPDF(pdf)
	if err != nil {
		return Result{}, "", WrapExtractionError(op, pdfError(err), "")
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := p.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: p.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return Result{}, "", p.processingError(op, err)
	}

	doc := resp.GetDocument()
	result := resultFromDocument(doc)

	p.log.Info().
		Str("invoice_number", result.InvoiceNumber).
		Str("issuer", result.Issuer).
		Float64("amount", result.Amount).
		Dur("duration", time.Since(start)).
		Msg("Document AI extraction completed")

	return result, doc.GetText(), nil
}

func (p *DocumentAIExtractor) processorName() string {
	name := fmt.Sprintf("projects/%s/locations/%s/processors/%s", p.config.ProjectID, p.config.Location, p.config.ProcessorID)
	if p.config.ProcessorVersion != "" {
		name += "/processorVersions/" + p.config.ProcessorVersion
	}
	return name
}

func (p *DocumentAIExtractor) processingError(op string, err error) error {
	p.log.Error().Err(err).Str("op", op).Msg("Document AI request failed")

	if errors.Is(err, context.DeadlineExceeded) {
		return WrapExtractionError(op, ErrTimeout, "")
	}
	if errors.Is(err, context.Canceled) {
		return WrapExtractionError(op, context.Canceled, "processing was canceled")
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return WrapExtractionError(op, ErrInvalidCredentials, status.Convert(err).Message())
	case codes.ResourceExhausted:
		return WrapExtractionError(op, ErrQuotaExceeded, "")
	case codes.NotFound:
		return WrapExtractionError(op, ErrProcessorNotFound, p.processorName())
	case codes.InvalidArgument:
		return WrapExtractionError(op, ErrInvalidPDF, status.Convert(err).Message())
	case codes.DeadlineExceeded:
		return WrapExtractionError(op, ErrTimeout, "")
	default:
		return WrapExtractionError(op, ErrProcessingFailed, fmt.Sprintf("Document AI error: %v", err))
	}
}

// Close releases the Document AI client.
func (p *DocumentAIExtractor) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// resultFromDocument maps invoice parser entities. The issuer is the supplier on the
// invoice and the insurer is the billed party.
func resultFromDocument(doc *documentaipb.Document) Result {
	result := Placeholder()
	var net float64

	for _, entity := range doc.GetEntities() {
		value := strings.TrimSpace(entity.GetMentionText())
		typ := entity.GetType()

		switch typ {
		case "invoice_id":
			if value != "" {
				result.InvoiceNumber = value
			}
		case "supplier_name":
			if value != "" {
				result.Issuer = value
			}
		case "receiver_name":
			if value != "" {
				result.Insurer = value
			}
		case "invoice_date":
			if d := entityDate(entity); d != "" {
				result.Date = d
			}
		case "total_amount":
			result.Amount = entityAmount(entity)
		case "net_amount":
			net = entityAmount(entity)
		default:
			continue
		}
		result.Confidence[typ] = entity.GetConfidence()
	}

	if result.Amount <= 0 && net > 0 {
		result.Amount = net
	}
	if isUnknown(result.InvoiceNumber) {
		if n := ScrapeInvoiceNumber(doc.GetText()); n != "" {
			result.InvoiceNumber = n
		}
	}
	return result
}

func entityDate(entity *documentaipb.Document_Entity) string {
	if d := entity.GetNormalizedValue().GetDateValue(); d != nil && d.GetYear() > 0 {
		return dates.Format(time.Date(int(d.GetYear()), time.Month(d.GetMonth()), int(d.GetDay()), 0, 0, 0, 0, time.UTC))
	}
	if t := dates.ParseFlexible(entity.GetMentionText()); !t.IsZero() {
		return dates.Format(t)
	}
	return ""
}

func entityAmount(entity *documentaipb.Document_Entity) float64 {
	if m := entity.GetNormalizedValue().GetMoneyValue(); m != nil {
		return money.ToAmount(decimal.New(m.GetUnits(), 0).Add(decimal.New(int64(m.GetNanos()), -9)))
	}
	return money.ToAmount(entity.GetMentionText())
}

func pdfError(err error) error {
	switch {
	case errors.Is(err, ocr.ErrPDFTooLarge):
		return ErrDocumentTooLarge
	case errors.Is(err, ocr.ErrInvalidPDF):
		return ErrInvalidPDF
	default:
		return err
	}
}
