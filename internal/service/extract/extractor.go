// Package extract turns transcript text into candidate invoice items using
// an LLM structured-output call, with a deterministic lexical fallback.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"

	"ai-invoice-agent-service/internal/models"
)

var (
	// ErrDebounced signals that the previous extraction started too
	// recently. Not a failure; the caller skips this round.
	ErrDebounced = errors.New("extraction debounced")
	// ErrUnparseable signals structured output that could not be
	// interpreted even after embedded-array recovery.
	ErrUnparseable = errors.New("unparseable extraction response")
)

const systemPrompt = `You are a helpful assistant that extracts structured invoice data from transcripts. Return a JSON object with an "items" array containing the extracted invoice items.`

const promptTemplate = `You are an expert automotive service invoice assistant. Analyze the technician's spoken transcript and extract ALL parts, labor, and services with SPECIFIC names and details.

CRITICAL: You MUST extract the ACTUAL part names mentioned. Do NOT use generic names like "Part", "Component", or "Item". If a part is mentioned, use its specific name (e.g., "Engine Mount", "Brake Pad", "Oil Filter", "Spark Plug", "Alternator", etc.).

Transcript: %q

Extraction Rules:
1. NAME: Use the EXACT part name mentioned (e.g., "Engine Mount", "Brake Rotor", "Timing Belt"). If only a category is mentioned, infer a reasonable specific name based on context. For labor, use format "Labor (X Hour(s))".
2. PRICE: Extract the exact price if mentioned in the transcript. If no price is mentioned, estimate based on realistic automotive retail prices:
   - Common parts: $25-$150 (filters, belts, sensors, small components)
   - Medium parts: $150-$350 (alternators, starters, radiators, suspension components)
   - Large parts: $350-$800 (transmissions, engines, major body parts)
   - Labor: $85-$120/hour (standard automotive labor rate)
   Use realistic market prices, not inflated estimates.
3. TYPE: "part" for physical parts, "labor" for work time, "service" for services like diagnostics, oil changes, etc.
4. DESCRIPTION: Include what was done (e.g., "Replaced front engine mount", "Installed new brake pads").
5. LABOR_DESCRIPTION: For labor entries, a detailed description of the work performed.
6. HOURS: For labor entries, the number of hours (e.g., "2 hours" -> 2, "1.5 hours" -> 1.5).
7. QUANTITY: Extract if mentioned (e.g., "4 spark plugs"), default to 1.
8. PART NUMBER: Extract if mentioned.
9. BRAND: Extract brand name if mentioned (e.g., "AC Delco", "Bosch", "Motorcraft").
10. CATEGORY: Specific category like "engine", "brake", "electrical", "suspension", "transmission", "cooling", "fuel", "exhaust", "ignition", etc.

Return a JSON object with an "items" array. Each item has fields: name, price, type, description, laborDescription, hours, quantity, partNumber, brand, category. If no items are found, return {"items": []}.`

// Config holds extractor settings.
type Config struct {
	APIKey         string
	BaseURL        string // endpoint override for tests; empty in production
	Model          string
	Debounce       time.Duration
	ContextEntries int
	ContextChars   int
}

// Extractor issues one structured-generation request per invocation,
// debounced so fast-arriving transcript entries do not cause redundant
// spend. The rate limiter is explicit extractor state: the timestamp of the
// last call start plus the minimum interval.
type Extractor struct {
	client         *openai.Client
	model          string
	debounce       time.Duration
	contextEntries int
	contextChars   int

	mu       sync.Mutex
	lastCall time.Time
}

// New creates an extractor. Returns an error if no API key is configured;
// the caller then degrades to the lexical fallback for every entry.
func New(cfg Config) (*Extractor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.ContextEntries <= 0 {
		cfg.ContextEntries = 10
	}
	if cfg.ContextChars <= 0 {
		cfg.ContextChars = 1500
	}
	return &Extractor{
		client:         openai.NewClientWithConfig(clientCfg),
		model:          cfg.Model,
		debounce:       cfg.Debounce,
		contextEntries: cfg.ContextEntries,
		contextChars:   cfg.ContextChars,
	}, nil
}

// Extract sends the recent transcript window to the LLM and returns candidate
// items. latest is the entry that triggered this call; it is included in the
// window even if the log has not caught up yet.
func (e *Extractor) Extract(ctx context.Context, entries []models.TranscriptEntry, latest string) ([]models.InvoiceItem, error) {
	e.mu.Lock()
	now := time.Now()
	if !e.lastCall.IsZero() && now.Sub(e.lastCall) < e.debounce {
		e.mu.Unlock()
		return nil, ErrDebounced
	}
	e.lastCall = now
	e.mu.Unlock()

	window := e.contextWindow(entries, latest)
	if window == "" {
		return nil, nil
	}

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: 0.3,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf(promptTemplate, window)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrUnparseable)
	}

	items, err := ParseItems(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	return normalize(items), nil
}

// contextWindow joins the last N transcript entries and trims to the
// trailing K characters, bounding prompt size and cost.
func (e *Extractor) contextWindow(entries []models.TranscriptEntry, latest string) string {
	recent := entries
	if len(recent) > e.contextEntries {
		recent = recent[len(recent)-e.contextEntries:]
	}

	parts := make([]string, 0, len(recent)+1)
	for _, entry := range recent {
		parts = append(parts, entry.Text)
	}
	if latest != "" && (len(recent) == 0 || recent[len(recent)-1].Text != latest) {
		parts = append(parts, latest)
	}

	window := strings.TrimSpace(strings.Join(parts, " "))
	if len(window) > e.contextChars {
		window = window[len(window)-e.contextChars:]
		// The cut may land mid-rune; drop continuation bytes.
		for len(window) > 0 && !utf8.RuneStart(window[0]) {
			window = window[1:]
		}
	}
	return window
}

var embeddedArrayRe = regexp.MustCompile(`\[[\s\S]*\]`)

// itemsEnvelope accepts the wrapper shapes the model has been seen to emit.
type itemsEnvelope struct {
	Items []models.InvoiceItem `json:"items"`
	Data  []models.InvoiceItem `json:"data"`
}

// ParseItems interprets structured model output. It accepts {"items":[...]},
// {"data":[...]} and a bare array; if the content is not valid JSON it tries
// to recover an embedded array literal before giving up with ErrUnparseable.
func ParseItems(content string) ([]models.InvoiceItem, error) {
	content = strings.TrimSpace(content)

	var envelope itemsEnvelope
	if err := json.Unmarshal([]byte(content), &envelope); err == nil {
		if envelope.Items != nil {
			return envelope.Items, nil
		}
		if envelope.Data != nil {
			return envelope.Data, nil
		}
	}

	var bare []models.InvoiceItem
	if err := json.Unmarshal([]byte(content), &bare); err == nil {
		return bare, nil
	}

	if match := embeddedArrayRe.FindString(content); match != "" {
		if err := json.Unmarshal([]byte(match), &bare); err == nil {
			return bare, nil
		}
	}

	return nil, fmt.Errorf("%w: %.80q", ErrUnparseable, content)
}

// normalize assigns IDs and defaults to freshly extracted items.
func normalize(items []models.InvoiceItem) []models.InvoiceItem {
	base := time.Now().UnixMilli()
	out := make([]models.InvoiceItem, 0, len(items))
	for i, item := range items {
		item.Name = strings.TrimSpace(item.Name)
		if item.Name == "" {
			continue
		}
		item.ID = base + int64(i)
		item.Type = models.ItemType(strings.ToLower(string(item.Type)))
		switch item.Type {
		case models.ItemPart, models.ItemLabor, models.ItemService:
		default:
			item.Type = models.ItemPart
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		out = append(out, item)
	}
	return out
}
