package enrich

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"github.com/rs/zerolog"

	"ai-invoice-agent-service/internal/models"
	"ai-invoice-agent-service/internal/observability/logging"
	"ai-invoice-agent-service/internal/observability/metrics"
)

// Config holds enrichment settings.
type Config struct {
	OpenAIKey     string
	OpenAIBaseURL string
	Model         string
	UnsplashKey   string
	PexelsKey     string
	UnsplashURL   string
	PexelsURL     string
	PriceCeiling  float64
	HTTPClient    *http.Client
}

// Service enriches extracted items with prices and product images. Each item
// is handled independently so one provider failure never blocks the rest of
// the batch.
type Service struct {
	client  *openai.Client
	model   string
	images  *ImageClient
	ceiling float64
	log     zerolog.Logger
}

// New creates an enrichment service. A missing OpenAI key disables LLM price
// estimation; table lookups and images still work.
func New(cfg Config) *Service {
	var client *openai.Client
	if cfg.OpenAIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.OpenAIKey)
		if cfg.OpenAIBaseURL != "" {
			clientCfg.BaseURL = cfg.OpenAIBaseURL
		}
		client = openai.NewClientWithConfig(clientCfg)
	}
	if cfg.Model == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.PriceCeiling <= 0 {
		cfg.PriceCeiling = 5000
	}
	return &Service{
		client:  client,
		model:   cfg.Model,
		images:  NewImageClient(cfg.HTTPClient, cfg.UnsplashKey, cfg.PexelsKey, cfg.UnsplashURL, cfg.PexelsURL),
		ceiling: cfg.PriceCeiling,
		log:     logging.WithComponent("enrich"),
	}
}

// Items enriches a batch in place and returns it. Parts with a missing,
// non-positive, or implausibly large price get a table or estimated price;
// parts also get an image URL. Labor and service entries pass through.
func (s *Service) Items(ctx context.Context, items []models.InvoiceItem) []models.InvoiceItem {
	for i := range items {
		if items[i].Type != models.ItemPart {
			continue
		}
		s.enrichOne(ctx, &items[i])
	}
	return items
}

func (s *Service) enrichOne(ctx context.Context, item *models.InvoiceItem) {
	if item.Price <= 0 || item.Price > s.ceiling {
		if price, ok := LookupPrice(item.Name); ok {
			item.Price = price
			metrics.DefaultMetrics.EnrichPriceSource.WithLabelValues("table").Inc()
		} else if price, err := s.estimatePrice(ctx, item.Name, item.Category); err == nil {
			item.Price = price
			metrics.DefaultMetrics.EnrichPriceSource.WithLabelValues("estimate").Inc()
		} else {
			s.log.Warn().Err(err).Str("item", item.Name).Msg("price enrichment failed")
			metrics.DefaultMetrics.EnrichPriceSource.WithLabelValues("none").Inc()
		}
	}

	if item.ImageURL == "" {
		item.ImageURL = s.images.FindImage(ctx, item.Name, item.Category)
		source := "provider"
		if len(item.ImageURL) > len(placeholderBase) && item.ImageURL[:len(placeholderBase)] == placeholderBase {
			source = "placeholder"
		}
		metrics.DefaultMetrics.EnrichImageSource.WithLabelValues(source).Inc()
	}
}
