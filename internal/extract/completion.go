package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"verax/internal/dates"
	"verax/internal/logger"
	"verax/internal/money"
)

// maxPromptText bounds how much OCR text is sent to the model.
const maxPromptText = 12000

// ChatClient is the part of the OpenAI client the completer uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// CompletionConfig tunes the completer.
type CompletionConfig struct {
	Model       string
	Temperature float32
	MaxRetries  int
}

// Completer asks a language model for the fields the parser left as DESCONOCIDO.
// It never overwrites a value that was already extracted.
type Completer struct {
	client ChatClient
	config CompletionConfig
	log    zerolog.Logger
}

// completionResponse is the JSON object the model is asked to return.
type completionResponse struct {
	InvoiceNumber string      `json:"invoiceNumber"`
	ClaimNumber   string      `json:"claimNumber"`
	Insurer       string      `json:"insurer"`
	Issuer        string      `json:"issuer"`
	Amount        interface{} `json:"amount"`
	Date          string      `json:"date"`
}

// NewOpenAICompleter creates a completer backed by the OpenAI API.
func NewOpenAICompleter(apiKey string, cfg CompletionConfig) (*Completer, error) {
	const op = "NewOpenAICompleter"
	if apiKey == "" {
		return nil, WrapExtractionError(op, ErrInvalidConfiguration, "OpenAI API key is required")
	}
	return NewCompleter(openai.NewClient(apiKey), cfg), nil
}

// NewCompleter creates a completer over any chat client.
func NewCompleter(client ChatClient, cfg CompletionConfig) *Completer {
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	return &Completer{
		client: client,
		config: cfg,
		log:    logger.WithComponent("invoice-completion"),
	}
}

// Complete fills the missing fields of r from the document text.
func (c *Completer) Complete(ctx context.Context, r Result, text string) (Result, error) {
	const op = "Complete"

	missing := r.Missing()
	if len(missing) == 0 {
		return r, nil
	}
	if strings.TrimSpace(text) == "" {
		return r, WrapExtractionError(op, ErrEmptyDocument, "")
	}

	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.config.Model,
			Temperature: c.config.Temperature,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: buildPrompt(text, missing)},
			},
			MaxTokens: 400,
		})
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Completion request failed, retrying")
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no response choices")
			continue
		}

		var parsed completionResponse
		content := resp.Choices[0].Message.Content
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			lastErr = fmt.Errorf("failed to parse completion JSON: %w", err)
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("Unparseable completion, retrying")
			continue
		}

		completed := merge(r, parsed)
		c.log.Info().
			Strs("missing", missing).
			Strs("still_missing", completed.Missing()).
			Int("attempt", attempt).
			Msg("Completed invoice fields")
		return completed, nil
	}

	return r, WrapExtractionError(op, ErrCompletionFailed, fmt.Sprintf("all %d attempts failed: %v", c.config.MaxRetries, lastErr))
}

// merge copies model answers into placeholder fields only.
func merge(r Result, resp completionResponse) Result {
	conf := make(map[string]float32, len(r.Confidence))
	for k, v := range r.Confidence {
		conf[k] = v
	}
	r.Confidence = conf

	fill := func(dst *string, field, value string) {
		if isUnknown(*dst) && !isUnknown(value) {
			*dst = strings.TrimSpace(value)
			r.Confidence[field] = 0.5
		}
	}
	fill(&r.InvoiceNumber, FieldInvoiceNumber, resp.InvoiceNumber)
	fill(&r.ClaimNumber, FieldClaimNumber, resp.ClaimNumber)
	fill(&r.Insurer, FieldInsurer, resp.Insurer)
	fill(&r.Issuer, FieldIssuer, resp.Issuer)

	if r.Amount <= 0 {
		if amount := money.ToAmount(resp.Amount); amount > 0 {
			r.Amount = amount
			r.Confidence[FieldAmount] = 0.5
		}
	}
	if !dates.IsValid(r.Date) {
		if t := dates.ParseFlexible(resp.Date); !t.IsZero() {
			r.Date = dates.Format(t)
			r.Confidence[FieldDate] = 0.5
		}
	}
	return r
}

const systemPrompt = `Extraés datos de facturas argentinas emitidas por estudios de liquidación de siniestros a compañías de seguros.
Respondé únicamente con un objeto JSON con las claves: invoiceNumber, claimNumber, insurer, issuer, amount, date.
- invoiceNumber: número de comprobante (ej. 0003-00001234)
- claimNumber: número de siniestro
- insurer: compañía de seguros a la que se factura
- issuer: razón social que emite la factura
- amount: importe total como número
- date: fecha de emisión en formato DD/MM/AAAA
Si un dato no aparece en el texto devolvé "DESCONOCIDO". No inventes valores.`

func buildPrompt(text string, missing []string) string {
	if len(text) > maxPromptText {
		text = text[:maxPromptText]
	}
	return fmt.Sprintf("Campos faltantes: %s\n\nTexto de la factura:\n%s", strings.Join(missing, ", "), text)
}
