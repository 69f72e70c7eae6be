package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"ai-invoice-agent-service/internal/models"
)

func TestNotifyItem_DeliveredOnce(t *testing.T) {
	var calls atomic.Int64
	var got models.WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	n.NotifyItem(models.ActionItemAdded, models.InvoiceItem{
		ID: 1, Name: "Engine Mount", Price: 45, Type: models.ItemPart,
		Description: "Replaced front engine mount",
	}, &models.JobContext{JobNumber: "4092", Customer: "John Doe", Vehicle: "2018 Ford Focus"}, "")
	n.Close()

	if calls.Load() != 1 {
		t.Fatalf("webhook called %d times, want exactly 1", calls.Load())
	}
	if got.Action != models.ActionItemAdded {
		t.Errorf("Action = %q, want item_added", got.Action)
	}
	if got.Item == nil || got.Item.Name != "Engine Mount" {
		t.Errorf("Item missing or wrong: %+v", got.Item)
	}
	for _, want := range []string{"*New Item Added*", "Engine Mount", "$45.00", "Job #4092", "Customer: John Doe", "Vehicle: 2018 Ford Focus"} {
		if !strings.Contains(got.Message, want) {
			t.Errorf("message missing %q:\n%s", want, got.Message)
		}
	}
}

func TestNotifyItem_FailureSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	n.NotifyItem(models.ActionItemRemoved, models.InvoiceItem{ID: 1, Name: "Oil Filter", Type: models.ItemPart}, nil, "")
	// Close must not hang or panic on a failing endpoint.
	n.Close()
}

func TestDisabledNotifier(t *testing.T) {
	n := New(Config{})
	if n.Enabled() {
		t.Fatal("notifier with empty URL reports enabled")
	}
	// All operations are no-ops.
	n.NotifyItem(models.ActionItemAdded, models.InvoiceItem{Name: "Brake Pad"}, nil, "")
	n.NotifySummary(nil, 0, nil)
	n.Close()
}

func TestNotifySummary(t *testing.T) {
	var got models.JobSummaryPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	n := New(Config{WebhookURL: srv.URL})
	items := []models.InvoiceItem{
		{ID: 1, Name: "Engine Mount", Price: 45, Type: models.ItemPart},
		{ID: 2, Name: "Labor (1 Hour(s))", Price: 0, Type: models.ItemLabor, LaborDescription: "mount install"},
	}
	n.NotifySummary(items, 45, &models.JobContext{JobNumber: "4092"})
	n.Close()

	if got.Total != 45 {
		t.Errorf("Total = %v, want 45", got.Total)
	}
	if len(got.Items) != 2 {
		t.Fatalf("Items = %d, want 2", len(got.Items))
	}
	for _, want := range []string{"*Job Completed - Invoice Summary*", "1. Engine Mount", "$45.00", "2. Labor (1 Hour(s))", "Work: mount install", "$FREE", "*Total: $45.00*"} {
		if !strings.Contains(got.Message, want) {
			t.Errorf("summary message missing %q:\n%s", want, got.Message)
		}
	}
}

func TestExplain_GeminiWithTimeout(t *testing.T) {
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"The technician is replacing the engine mount."}]}}]}`))
	}))
	defer gemini.Close()

	webhookBody := make(chan models.WebhookPayload, 1)
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.WebhookPayload
		json.NewDecoder(r.Body).Decode(&p)
		webhookBody <- p
	}))
	defer webhook.Close()

	n := New(Config{
		WebhookURL:     webhook.URL,
		Gemini:         NewGeminiClient(nil, "gk", gemini.URL),
		ExplainTimeout: time.Second,
	})
	n.NotifyItem(models.ActionItemAdded, models.InvoiceItem{ID: 1, Name: "Engine Mount", Price: 45, Type: models.ItemPart}, nil, "Installing new engine mount")
	n.Close()

	p := <-webhookBody
	if !strings.Contains(p.Message, "*What's happening:* The technician is replacing the engine mount.") {
		t.Errorf("message missing explanation:\n%s", p.Message)
	}
}

func TestExplain_FallsBackToDescription(t *testing.T) {
	// Gemini hangs past the timeout; the item's own description is used.
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer slow.Close()

	n := &Notifier{
		gemini:         NewGeminiClient(nil, "gk", slow.URL),
		explainTimeout: 50 * time.Millisecond,
	}
	got := n.explain(models.InvoiceItem{Name: "Engine Mount", Description: "Replaced front engine mount"}, "")
	if got != "Replaced front engine mount" {
		t.Errorf("explain = %q, want description fallback", got)
	}
}

func TestGeminiClient_NilWithoutKey(t *testing.T) {
	if c := NewGeminiClient(nil, "", ""); c != nil {
		t.Fatal("NewGeminiClient with empty key should return nil")
	}
}

func TestGeminiClient_Explain(t *testing.T) {
	var sawKey string
	var prompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawKey = r.URL.Query().Get("key")
		var req geminiRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Contents) == 1 && len(req.Contents[0].Parts) == 1 {
			prompt = req.Contents[0].Parts[0].Text
		}
		if req.GenerationConfig.MaxOutputTokens != 150 {
			t.Errorf("maxOutputTokens = %d, want 150", req.GenerationConfig.MaxOutputTokens)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":" An explanation. "}]}}]}`))
	}))
	defer srv.Close()

	c := NewGeminiClient(nil, "secret", srv.URL)
	got, err := c.Explain(context.Background(), models.InvoiceItem{Name: "Alternator", Type: models.ItemPart, Category: "electrical"}, "swapped the alternator")
	if err != nil {
		t.Fatalf("Explain: %v", err)
	}
	if got != "An explanation." {
		t.Errorf("Explain = %q, want trimmed text", got)
	}
	if sawKey != "secret" {
		t.Errorf("key = %q", sawKey)
	}
	for _, want := range []string{"Item: Alternator", "Category: electrical", "swapped the alternator"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestNotifier_noExplanationForUpdates(t *testing.T) {
	geminiCalls := 0
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		geminiCalls++
		w.Write([]byte(`{"candidates":[]}`))
	}))
	defer gemini.Close()
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer webhook.Close()

	n := New(Config{WebhookURL: webhook.URL, Gemini: NewGeminiClient(nil, "gk", gemini.URL)})
	n.NotifyItem(models.ActionItemUpdated, models.InvoiceItem{ID: 1, Name: "Strut", Price: 120, Type: models.ItemPart}, nil, "")
	n.NotifyItem(models.ActionItemMadeFree, models.InvoiceItem{ID: 1, Name: "Strut", Type: models.ItemPart}, nil, "")
	n.Close()

	if geminiCalls != 0 {
		t.Errorf("explanations generated for non-added actions: %d calls", geminiCalls)
	}
}
