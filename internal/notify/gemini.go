package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ai-invoice-agent-service/internal/models"
)

const geminiAPI = "https://generativelanguage.googleapis.com"

// GeminiClient generates short customer-facing explanations of invoice items
// via the Gemini REST API.
type GeminiClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewGeminiClient returns nil when no key is configured; callers treat a nil
// client as "no explanations".
func NewGeminiClient(httpClient *http.Client, apiKey, baseURL string) *GeminiClient {
	if apiKey == "" {
		return nil
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = geminiAPI
	}
	return &GeminiClient{httpClient: httpClient, apiKey: apiKey, baseURL: baseURL}
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig struct {
		Temperature     float64 `json:"temperature"`
		MaxOutputTokens int     `json:"maxOutputTokens"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Explain asks for a 1-2 sentence customer-friendly explanation of the item.
// transcript, if non-empty, is included as context (first 200 chars).
func (c *GeminiClient) Explain(ctx context.Context, item models.InvoiceItem, transcript string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful automotive service assistant. Generate a clear, customer-friendly explanation of what the technician is doing with this invoice item.\n\n")
	fmt.Fprintf(&b, "Item: %s\nType: %s\n", item.Name, item.Type)
	if item.Category != "" {
		fmt.Fprintf(&b, "Category: %s\n", item.Category)
	}
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	if item.LaborDescription != "" {
		fmt.Fprintf(&b, "Work: %s\n", item.LaborDescription)
	}
	if transcript != "" {
		if len(transcript) > 200 {
			transcript = transcript[:200]
		}
		fmt.Fprintf(&b, "Context from transcript: %q\n", transcript)
	}
	b.WriteString("\nGenerate a brief (1-2 sentences) explanation of what work is being performed or what part is being installed. Make it clear and easy to understand for the customer.\n\nReturn only the explanation text, no additional formatting.")

	var req geminiRequest
	req.Contents = []geminiContent{{Parts: []geminiPart{{Text: b.String()}}}}
	req.GenerationConfig.Temperature = 0.5
	req.GenerationConfig.MaxOutputTokens = 150

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/gemini-pro:generateContent?key=%s", c.baseURL, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("explanation request returned %s", resp.Status)
	}

	var out geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(out.Candidates[0].Content.Parts[0].Text), nil
}
