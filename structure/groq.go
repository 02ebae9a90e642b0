package structure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finshore/ledgerflow/id"
	"github.com/finshore/ledgerflow/record"
	"github.com/finshore/ledgerflow/workflow"
)

const (
	defaultBaseURL     = "https://api.groq.com/openai/v1"
	defaultModel       = "llama-3.3-70b-versatile"
	defaultTemperature = 0.1

	systemPrompt = "You are a financial document extraction AI. Return ONLY valid JSON."

	// feedbackHeader precedes critic guidance appended to the document
	// text on retry attempts.
	feedbackHeader = "CRITIC FEEDBACK (FIX THESE ISSUES):"
)

const promptTemplate = `Extract structured record data from the document text below.

OUTPUT SCHEMA:
{
  "number": "INV-2025-0001",
  "type": "invoice",
  "date": "YYYY-MM-DD",
  "due_date": "YYYY-MM-DD",
  "contractor_id": "string",
  "agreement_id": null,
  "line_items": [
    {
      "cost_code": "XX-XXX",
      "description": "string",
      "quantity": 10.0,
      "unit_price": 100.0,
      "total": 1000.0
    }
  ],
  "amount": 1000.0
}

CRITICAL RULES:
1. ALL fields are REQUIRED except: due_date and agreement_id (can be null)
2. cost_code is the code before the description (e.g., "05-500", "16-100"); use "99-999" only when no code is visible or inferable
3. total = quantity x unit_price (must match exactly)
4. amount = sum of all line_items.total
5. Date format must be YYYY-MM-DD
6. All numbers as decimals (not strings)
7. Return ONLY valid JSON

DOCUMENT TEXT:
%s`

// GroqStructurer implements workflow.Structurer against the Groq
// chat-completions API in JSON mode.
type GroqStructurer struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	client      *http.Client
	logger      *slog.Logger
}

var _ workflow.Structurer = (*GroqStructurer)(nil)

// GroqOption customizes a GroqStructurer.
type GroqOption func(*GroqStructurer)

// WithModel overrides the default model.
func WithModel(model string) GroqOption {
	return func(g *GroqStructurer) { g.model = model }
}

// WithBaseURL points the client at a different API endpoint. Used by
// tests and by OpenAI-compatible proxies.
func WithBaseURL(url string) GroqOption {
	return func(g *GroqStructurer) { g.baseURL = strings.TrimSuffix(url, "/") }
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) GroqOption {
	return func(g *GroqStructurer) { g.temperature = t }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(c *http.Client) GroqOption {
	return func(g *GroqStructurer) { g.client = c }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) GroqOption {
	return func(g *GroqStructurer) { g.logger = logger }
}

// NewGroqStructurer returns a structurer authenticating with apiKey.
func NewGroqStructurer(apiKey string, opts ...GroqOption) (*GroqStructurer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("structure: api key is required")
	}
	g := &GroqStructurer{
		apiKey:      apiKey,
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		temperature: defaultTemperature,
		client:      &http.Client{Timeout: 60 * time.Second},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// recordPayload is the JSON shape the model is instructed to emit.
type recordPayload struct {
	Number       string          `json:"number"`
	Type         string          `json:"type"`
	Date         string          `json:"date"`
	DueDate      *string         `json:"due_date"`
	ContractorID string          `json:"contractor_id"`
	AgreementID  *string         `json:"agreement_id"`
	LineItems    []itemPayload   `json:"line_items"`
	Amount       decimal.Decimal `json:"amount"`
}

type itemPayload struct {
	CostCode    string          `json:"cost_code"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Structure sends the document text to the model and parses the JSON
// response into a record. Critic feedback, when present, is appended to
// the text under a header the prompt tells the model to obey.
func (g *GroqStructurer) Structure(ctx context.Context, text, feedback string) (*record.Record, error) {
	if feedback != "" {
		text = text + "\n\n" + feedbackHeader + "\n" + feedback
	}

	content, err := g.complete(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return nil, err
	}

	var payload recordPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("structure: model returned invalid JSON: %w", err)
	}
	return payload.toRecord()
}

func (g *GroqStructurer) complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    g.temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("structure: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("structure: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("structure: call model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("structure: read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("structure: decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("structure: model API %s: %s", parsed.Error.Type, parsed.Error.Message)
		}
		return "", fmt.Errorf("structure: model API returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("structure: empty completion")
	}

	g.logger.Debug("model completion received",
		slog.String("model", g.model),
		slog.Int("bytes", len(parsed.Choices[0].Message.Content)))
	return parsed.Choices[0].Message.Content, nil
}

func (p *recordPayload) toRecord() (*record.Record, error) {
	r := &record.Record{
		Number:       strings.TrimSpace(p.Number),
		ContractorID: strings.TrimSpace(p.ContractorID),
		Amount:       p.Amount,
	}

	switch record.DocumentType(p.Type) {
	case record.TypeInvoice, record.TypeContract, record.TypeBudget, record.TypeChangeOrder:
		r.Type = record.DocumentType(p.Type)
	default:
		r.Type = record.TypeInvoice
	}

	if p.Date != "" {
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return nil, fmt.Errorf("structure: parse date %q: %w", p.Date, err)
		}
		r.Date = date
	}
	if p.DueDate != nil && *p.DueDate != "" {
		due, err := time.Parse("2006-01-02", *p.DueDate)
		if err != nil {
			return nil, fmt.Errorf("structure: parse due date %q: %w", *p.DueDate, err)
		}
		r.DueDate = &due
	}
	if p.AgreementID != nil && *p.AgreementID != "" {
		agreementID, err := id.ParseAgreementID(*p.AgreementID)
		if err != nil {
			return nil, fmt.Errorf("structure: parse agreement id %q: %w", *p.AgreementID, err)
		}
		r.AgreementID = agreementID
	}

	for _, item := range p.LineItems {
		code := strings.TrimSpace(item.CostCode)
		if code == "" {
			code = record.UnknownCostCode
		}
		r.LineItems = append(r.LineItems, record.LineItem{
			ID:          id.NewLineItemID(),
			Description: strings.TrimSpace(item.Description),
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.Total,
			CostCode:    code,
		})
	}

	return r, nil
}
