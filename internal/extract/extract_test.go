package extract

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verax/internal/ocr"
	"verax/pkg/models"
)

var samplePDF = []byte("%PDF-1.4 sample")

type fakeParser struct {
	result Result
	text   string
	err    error
}

func (f *fakeParser) Parse(_ context.Context, pdf io.Reader) (Result, string, error) {
	if _, err := io.ReadAll(pdf); err != nil {
		return Result{}, "", err
	}
	return f.result, f.text, f.err
}

type fakeText struct {
	text  string
	err   error
	calls int
}

func (f *fakeText) ProcessPDF(context.Context, io.Reader) (string, error) {
	f.calls++
	return f.text, f.err
}

func (f *fakeText) ProcessPDFWithMetadata(ctx context.Context, r io.Reader) (*ocr.Result, error) {
	text, err := f.ProcessPDF(ctx, r)
	if err != nil {
		return nil, err
	}
	return &ocr.Result{Text: text}, nil
}

type fakeChat struct {
	replies []string
	err     error
	calls   int
}

func (f *fakeChat) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: reply}}},
	}, nil
}

func complete() Result {
	return Result{
		InvoiceNumber: "0003-00001234",
		ClaimNumber:   "98765",
		Insurer:       "La Segunda",
		Issuer:        "Estudio Norte",
		Amount:        150000,
		Date:          "01/04/2024",
		Confidence:    map[string]float32{},
	}
}

func TestMissing(t *testing.T) {
	assert.Empty(t, complete().Missing())
	assert.Equal(t,
		[]string{FieldInvoiceNumber, FieldClaimNumber, FieldInsurer, FieldIssuer, FieldAmount, FieldDate},
		Placeholder().Missing())

	r := complete()
	r.Issuer = "desconocido"
	r.Date = "2024-04-01"
	assert.Equal(t, []string{FieldIssuer, FieldDate}, r.Missing())
}

func TestResultInvoiceKeepsPlaceholders(t *testing.T) {
	r := complete()
	r.ClaimNumber = ""
	inv := r.Invoice("Ana", "uid-1")

	assert.Equal(t, "0003-00001234", inv.InvoiceNumber)
	assert.Equal(t, models.Unknown, inv.ClaimNumber)
	assert.Equal(t, "Ana", inv.AnalystName)
	assert.Equal(t, "uid-1", inv.AnalystUID)
	assert.Equal(t, "01/04/2024", inv.IssuanceDate)
	assert.Empty(t, inv.PaymentStatus)
}

func TestScrapeClaimNumber(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Ref. Siniestro N° 12345/2024 - Auto", "12345/2024"},
		{"STRO. 98765.", "98765"},
		{"Nro. de siniestro: 4-55621", "4-55621"},
		{"Registro 2024 sin datos", ""},
		{"Siniestro pendiente", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ScrapeClaimNumber(tt.text))
		})
	}
}

func TestScrapeInvoiceNumber(t *testing.T) {
	assert.Equal(t, "0003-00001234", ScrapeInvoiceNumber("FACTURA B\nN° 0003-00001234\nFecha 01/04/2024"))
	assert.Equal(t, "", ScrapeInvoiceNumber("Total 150.000,00"))
}

func TestResultFromDocument(t *testing.T) {
	doc := &documentaipb.Document{
		Text: "FACTURA 0003-00001234 Siniestro 555",
		Entities: []*documentaipb.Document_Entity{
			{Type: "supplier_name", MentionText: " Estudio Norte ", Confidence: 0.9},
			{Type: "receiver_name", MentionText: "La Segunda", Confidence: 0.8},
			{Type: "invoice_date", MentionText: "01/04/2024", Confidence: 0.95},
			{Type: "net_amount", MentionText: "$ 123.966,94"},
			{Type: "line_item", MentionText: "Honorarios"},
		},
	}

	r := resultFromDocument(doc)
	assert.Equal(t, "0003-00001234", r.InvoiceNumber)
	assert.Equal(t, "Estudio Norte", r.Issuer)
	assert.Equal(t, "La Segunda", r.Insurer)
	assert.Equal(t, "01/04/2024", r.Date)
	assert.InDelta(t, 123966.94, r.Amount, 0.001)
	assert.Equal(t, models.Unknown, r.ClaimNumber)
	assert.NotContains(t, r.Confidence, "line_item")
	assert.InDelta(t, 0.9, r.Confidence["supplier_name"], 0.0001)
}

func TestPipelineScrapesParserText(t *testing.T) {
	parsed := complete()
	parsed.ClaimNumber = models.Unknown
	text := &fakeText{}
	p := NewPipeline(&fakeParser{result: parsed, text: "Siniestro N° 777"}, text, nil)

	r, err := p.Extract(context.Background(), bytes.NewReader(samplePDF))
	require.NoError(t, err)
	assert.Equal(t, "777", r.ClaimNumber)
	assert.Equal(t, 0, text.calls)
}

func TestPipelineFallsBackToOCR(t *testing.T) {
	text := &fakeText{text: "Stro. 4242"}
	p := NewPipeline(&fakeParser{result: Placeholder()}, text, nil)

	r, err := p.Extract(context.Background(), bytes.NewReader(samplePDF))
	require.NoError(t, err)
	assert.Equal(t, "4242", r.ClaimNumber)
	assert.Equal(t, models.Unknown, r.Issuer)
	assert.Equal(t, 1, text.calls)
}

func TestPipelineEmptyText(t *testing.T) {
	p := NewPipeline(&fakeParser{result: Placeholder()}, &fakeText{err: ocr.ErrEmptyDocument}, nil)

	_, err := p.Extract(context.Background(), bytes.NewReader(samplePDF))
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestPipelineRejectsNonPDF(t *testing.T) {
	p := NewPipeline(&fakeParser{}, nil, nil)

	_, err := p.Extract(context.Background(), bytes.NewReader([]byte("hello")))
	assert.ErrorIs(t, err, ErrInvalidPDF)
}

func TestPipelineCompletesPlaceholdersOnly(t *testing.T) {
	parsed := complete()
	parsed.Insurer = models.Unknown
	parsed.Amount = 0
	chat := &fakeChat{replies: []string{
		`{"invoiceNumber":"9999-99999999","insurer":"Sancor","amount":"150.000,00","date":"DESCONOCIDO"}`,
	}}
	p := NewPipeline(&fakeParser{result: parsed, text: "texto"}, nil, NewCompleter(chat, CompletionConfig{}))

	r, err := p.Extract(context.Background(), bytes.NewReader(samplePDF))
	require.NoError(t, err)
	assert.Equal(t, "0003-00001234", r.InvoiceNumber)
	assert.Equal(t, "Sancor", r.Insurer)
	assert.Equal(t, 150000.0, r.Amount)
	assert.Equal(t, "01/04/2024", r.Date)
	assert.Empty(t, r.Missing())
}

func TestPipelineKeepsPlaceholdersWhenCompletionFails(t *testing.T) {
	parsed := complete()
	parsed.Insurer = models.Unknown
	chat := &fakeChat{err: errors.New("rate limited")}
	p := NewPipeline(&fakeParser{result: parsed, text: "texto"}, nil, NewCompleter(chat, CompletionConfig{MaxRetries: 3}))

	r, err := p.Extract(context.Background(), bytes.NewReader(samplePDF))
	require.NoError(t, err)
	assert.Equal(t, models.Unknown, r.Insurer)
	assert.Equal(t, 3, chat.calls)
}

func TestCompleterRetriesUnparseableReply(t *testing.T) {
	parsed := complete()
	parsed.ClaimNumber = models.Unknown
	chat := &fakeChat{replies: []string{"not json", `{"claimNumber":"123"}`}}
	c := NewCompleter(chat, CompletionConfig{})

	r, err := c.Complete(context.Background(), parsed, "texto")
	require.NoError(t, err)
	assert.Equal(t, "123", r.ClaimNumber)
	assert.Equal(t, 2, chat.calls)
	assert.NotContains(t, parsed.Confidence, FieldClaimNumber)
}

func TestExtractFilesContinuesAfterFailure(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.pdf")
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(good, samplePDF, 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("not a pdf"), 0o600))
	missing := filepath.Join(dir, "missing.pdf")

	p := NewPipeline(&fakeParser{result: complete(), text: "texto"}, nil, nil)
	var handled []string
	failures := ExtractFiles(context.Background(), p, []string{bad, missing, good}, func(path string, r Result) error {
		handled = append(handled, path)
		return nil
	})

	assert.Equal(t, []string{good}, handled)
	require.Len(t, failures, 2)
	var extractErr *ExtractionError
	require.True(t, errors.As(failures[0], &extractErr))
	assert.Equal(t, bad, extractErr.File)
	assert.ErrorIs(t, failures[0], ErrInvalidPDF)
}

func TestIsPDFName(t *testing.T) {
	assert.True(t, IsPDFName("factura.PDF"))
	assert.False(t, IsPDFName("factura.png"))
}
