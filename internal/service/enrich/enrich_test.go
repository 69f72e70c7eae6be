package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-invoice-agent-service/internal/models"
)

func TestLookupPrice(t *testing.T) {
	tests := []struct {
		name  string
		part  string
		want  float64
		found bool
	}{
		{"exact", "brake pad", 45, true},
		{"mixed case substring", "Front Brake Pads", 45, true},
		{"engine mount", "Engine Mount", 45, true},
		{"longest key wins", "brake master cylinder", 95, true},
		{"oil filter", "premium oil filter", 8, true},
		{"unknown", "flux capacitor", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := LookupPrice(tt.part)
			if found != tt.found {
				t.Fatalf("LookupPrice(%q) found = %v, want %v", tt.part, found, tt.found)
			}
			if got != tt.want {
				t.Errorf("LookupPrice(%q) = %v, want %v", tt.part, got, tt.want)
			}
		})
	}
}

func TestItems_TableHitNeedsNoNetwork(t *testing.T) {
	// No keys, no servers: the table and the placeholder must suffice.
	s := New(Config{})

	items := s.Items(context.Background(), []models.InvoiceItem{
		{ID: 1, Name: "Brake Pad", Type: models.ItemPart},
	})
	if items[0].Price != 45 {
		t.Errorf("Price = %v, want 45 from table", items[0].Price)
	}
	if !strings.HasPrefix(items[0].ImageURL, placeholderBase) {
		t.Errorf("ImageURL = %q, want placeholder", items[0].ImageURL)
	}
	if !strings.Contains(items[0].ImageURL, "Brake+Pad") {
		t.Errorf("placeholder %q does not carry the part name", items[0].ImageURL)
	}
}

func TestItems_CeilingTriggersRepricing(t *testing.T) {
	s := New(Config{PriceCeiling: 5000})
	items := s.Items(context.Background(), []models.InvoiceItem{
		{ID: 1, Name: "Engine Mount", Type: models.ItemPart, Price: 45000},
	})
	if items[0].Price != 45 {
		t.Errorf("implausible price not replaced: got %v, want 45", items[0].Price)
	}
}

func TestItems_LaborPassesThrough(t *testing.T) {
	s := New(Config{})
	items := s.Items(context.Background(), []models.InvoiceItem{
		{ID: 1, Name: "Labor (2 Hour(s))", Type: models.ItemLabor, Price: 170},
	})
	if items[0].Price != 170 {
		t.Errorf("labor price changed: got %v, want 170", items[0].Price)
	}
	if items[0].ImageURL != "" {
		t.Errorf("labor got an image URL: %q", items[0].ImageURL)
	}
}

func TestItems_ProviderFailureIsolated(t *testing.T) {
	// Unsplash always errors; Pexels returns a hit. The first item must not
	// poison the second.
	unsplash := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusForbidden)
	}))
	defer unsplash.Close()
	pexels := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"photos":[{"src":{"medium":"https://example.com/part.jpg"}}]}`))
	}))
	defer pexels.Close()

	s := New(Config{
		UnsplashKey: "k", PexelsKey: "k",
		UnsplashURL: unsplash.URL, PexelsURL: pexels.URL,
	})

	items := s.Items(context.Background(), []models.InvoiceItem{
		{ID: 1, Name: "Engine Mount", Type: models.ItemPart},
		{ID: 2, Name: "Oil Filter", Type: models.ItemPart},
	})
	for i, item := range items {
		if item.ImageURL != "https://example.com/part.jpg" {
			t.Errorf("item %d ImageURL = %q, want pexels hit", i, item.ImageURL)
		}
	}
	if items[0].Price != 45 || items[1].Price != 8 {
		t.Errorf("table prices: got %v and %v, want 45 and 8", items[0].Price, items[1].Price)
	}
}

func TestFindImage_UnsplashFirst(t *testing.T) {
	var queries []string
	unsplash := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.Query().Get("query"))
		if r.Header.Get("Authorization") != "Client-ID uk" {
			t.Errorf("Authorization = %q, want Client-ID", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		if len(queries) < 3 {
			w.Write([]byte(`{"results":[]}`))
			return
		}
		w.Write([]byte(`{"results":[{"urls":{"regular":"https://example.com/mount.jpg"}}]}`))
	}))
	defer unsplash.Close()

	c := NewImageClient(nil, "uk", "", unsplash.URL, "")
	got := c.FindImage(context.Background(), "Engine Mount", "engine")
	if got != "https://example.com/mount.jpg" {
		t.Fatalf("FindImage = %q, want unsplash hit on third variant", got)
	}
	if len(queries) != 3 {
		t.Errorf("provider saw %d queries, want 3", len(queries))
	}
	if queries[0] != "Engine Mount automotive part isolated" {
		t.Errorf("first query = %q", queries[0])
	}
	if queries[2] != "engine Engine Mount auto part" {
		t.Errorf("third query = %q", queries[2])
	}
}

func TestFindImage_PlaceholderWhenAllFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer down.Close()

	c := NewImageClient(nil, "uk", "pk", down.URL, down.URL)
	got := c.FindImage(context.Background(), "Sway Bar", "")
	if !strings.HasPrefix(got, placeholderBase) {
		t.Fatalf("FindImage = %q, want placeholder", got)
	}
}
