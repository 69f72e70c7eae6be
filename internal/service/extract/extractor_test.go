package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
	"unicode/utf8"

	"ai-invoice-agent-service/internal/models"
)

func TestParseItems(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"items envelope", `{"items":[{"name":"Engine Mount","price":45,"type":"part"}]}`, 1, false},
		{"data envelope", `{"data":[{"name":"Brake Pad","price":45,"type":"part"}]}`, 1, false},
		{"bare array", `[{"name":"Oil Filter","price":8,"type":"part"}]`, 1, false},
		{"empty items", `{"items":[]}`, 0, false},
		{"embedded array in prose", "Here you go:\n```json\n[{\"name\":\"Alternator\",\"price\":200,\"type\":\"part\"}]\n```", 1, false},
		{"garbage", "sorry, I cannot help with that", 0, true},
		{"not json at all", "{{{", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := ParseItems(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrUnparseable) {
					t.Fatalf("ParseItems(%q) error = %v, want ErrUnparseable", tt.content, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseItems(%q) unexpected error: %v", tt.content, err)
			}
			if len(items) != tt.want {
				t.Errorf("ParseItems(%q) returned %d items, want %d", tt.content, len(items), tt.want)
			}
		})
	}
}

// chatResponse builds a minimal chat-completions body whose message content
// is the given string.
func chatResponse(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{
			{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": content},
			},
		},
	}
}

func newTestServer(t *testing.T, content string, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(chatResponse(content)); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestExtract(t *testing.T) {
	srv := newTestServer(t, `{"items":[{"name":"Engine Mount","price":45,"type":"part","description":"Installed new engine mount"}]}`, nil)

	ex, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Debounce: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	items, err := ex.Extract(context.Background(), nil, "Installing new engine mount, forty five dollars")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	got := items[0]
	if got.Name != "Engine Mount" {
		t.Errorf("Name = %q, want %q", got.Name, "Engine Mount")
	}
	if got.Price != 45 {
		t.Errorf("Price = %v, want 45", got.Price)
	}
	if got.Type != models.ItemPart {
		t.Errorf("Type = %q, want part", got.Type)
	}
	if got.Quantity != 1 {
		t.Errorf("Quantity = %d, want default 1", got.Quantity)
	}
	if got.ID == 0 {
		t.Error("ID not assigned")
	}
}

func TestExtract_Debounce(t *testing.T) {
	calls := 0
	srv := newTestServer(t, `{"items":[]}`, &calls)

	ex, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1", Debounce: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := ex.Extract(context.Background(), nil, "first entry"); err != nil {
		t.Fatalf("first Extract: %v", err)
	}
	if _, err := ex.Extract(context.Background(), nil, "second entry"); !errors.Is(err, ErrDebounced) {
		t.Fatalf("second Extract error = %v, want ErrDebounced", err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1", calls)
	}
}

func TestExtract_NormalizesType(t *testing.T) {
	srv := newTestServer(t, `{"items":[{"name":"Mystery","price":10,"type":"widget"},{"name":"","price":5,"type":"part"}]}`, nil)

	ex, err := New(Config{APIKey: "test", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	items, err := ex.Extract(context.Background(), nil, "something happened")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1 (nameless item dropped)", len(items))
	}
	if items[0].Type != models.ItemPart {
		t.Errorf("unknown type normalized to %q, want part", items[0].Type)
	}
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New with empty key should fail")
	}
}

func TestContextWindow(t *testing.T) {
	ex, err := New(Config{APIKey: "test", ContextEntries: 3, ContextChars: 30})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entries := []models.TranscriptEntry{
		{Seq: 1, Text: "aaaa"},
		{Seq: 2, Text: "bbbb"},
		{Seq: 3, Text: "cccc"},
		{Seq: 4, Text: "dddd"},
	}
	got := ex.contextWindow(entries, "eeee")
	// only the last 3 entries, plus the triggering text
	if want := "bbbb cccc dddd eeee"; got != want {
		t.Errorf("contextWindow = %q, want %q", got, want)
	}

	// latest already appended to entries is not duplicated
	got = ex.contextWindow(entries, "dddd")
	if want := "bbbb cccc dddd"; got != want {
		t.Errorf("contextWindow = %q, want %q", got, want)
	}

	long := []models.TranscriptEntry{{Seq: 1, Text: "0123456789012345678901234567890123456789"}}
	got = ex.contextWindow(long, "")
	if len(got) != 30 {
		t.Errorf("window length = %d, want trailing 30 chars", len(got))
	}
}

func TestContextWindow_TrimsAtRuneBoundary(t *testing.T) {
	ex, err := New(Config{APIKey: "test", ContextChars: 10})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// "é" is two bytes; pad so the byte cut lands in the middle of it.
	entries := []models.TranscriptEntry{{Seq: 1, Text: "aaaaé123456789"}}
	got := ex.contextWindow(entries, "")
	if !utf8.ValidString(got) {
		t.Fatalf("window is not valid UTF-8: %q", got)
	}
	if want := "123456789"; got != want {
		t.Errorf("contextWindow = %q, want %q", got, want)
	}
}

func TestFallback(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
		wantPrice float64
		wantType  models.ItemType
	}{
		{"spoken price", "Installing new engine mount, forty five dollars", 1, 45, models.ItemPart},
		{"digit price", "Put in an alternator for $220", 1, 220, models.ItemPart},
		{"hundred phrase", "Replaced the radiator, one hundred twenty dollars", 1, 120, models.ItemPart},
		{"labor digit hours", "Adding 2 hours of labor", 1, 170, models.ItemLabor},
		{"labor spoken hours", "one hour of labor for the mount", 1, 85, models.ItemLabor},
		{"no price no labor", "Checking the engine bay", 0, 0, ""},
		{"empty", "", 0, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := Fallback(tt.text, 85)
			if len(items) != tt.wantCount {
				t.Fatalf("Fallback(%q) returned %d items, want %d", tt.text, len(items), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			if items[0].Price != tt.wantPrice {
				t.Errorf("Price = %v, want %v", items[0].Price, tt.wantPrice)
			}
			if items[0].Type != tt.wantType {
				t.Errorf("Type = %q, want %q", items[0].Type, tt.wantType)
			}
		})
	}
}

func TestFallback_NameGuess(t *testing.T) {
	items := Fallback("Installing new engine mount, forty five dollars", 85)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != "Engine Mount" {
		t.Errorf("Name = %q, want %q", items[0].Name, "Engine Mount")
	}
}
