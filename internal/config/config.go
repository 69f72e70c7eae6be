// Package config loads service configuration from the environment.
//
// Every external provider is optional: a missing key disables that provider's
// feature and the pipeline degrades (lexical extraction, no enrichment, no
// webhook) instead of failing.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceConfig holds process-level settings.
type ServiceConfig struct {
	Name     string
	HTTPPort string
}

// AudioConfig holds chunker settings.
type AudioConfig struct {
	SampleRate    int
	ChunkDuration time.Duration
	MinFlush      time.Duration
	SilencePeak   float64
}

// STTConfig selects and tunes the speech-to-text provider.
type STTConfig struct {
	Provider string // openai, google, mock
	Language string
}

// ProvidersConfig holds API credentials, one per external provider.
type ProvidersConfig struct {
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
	UnsplashKey   string
	PexelsKey     string
}

// ExtractConfig tunes the LLM item extractor.
type ExtractConfig struct {
	Model          string
	Debounce       time.Duration
	ContextEntries int
	ContextChars   int
}

// EnrichConfig holds pricing policy. The ceiling and labor rate are
// heuristics, not load-bearing logic, so both are configurable.
type EnrichConfig struct {
	PriceCeiling    float64
	LaborHourlyRate float64
}

// WebhookConfig tunes the outbound notifier.
type WebhookConfig struct {
	URL            string
	Timeout        time.Duration
	ExplainTimeout time.Duration
	QueueSize      int
}

// KafkaConfig tunes the optional event stream.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicTranscript string
	TopicItems      string
	Principal       string
}

// ObservabilityConfig tunes logging and the metrics endpoint.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string // json, console
	MetricsPort string
}

// Config is the root configuration for the service.
type Config struct {
	Service       ServiceConfig
	Audio         AudioConfig
	STT           STTConfig
	Providers     ProvidersConfig
	Extract       ExtractConfig
	Enrich        EnrichConfig
	Webhook       WebhookConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     envOrDefault("SERVICE_NAME", "ai-invoice-agent-service"),
			HTTPPort: envOrDefault("HTTP_PORT", "8080"),
		},
		Audio: AudioConfig{
			SampleRate:    envInt("AUDIO_SAMPLE_RATE", 16000),
			ChunkDuration: envDuration("AUDIO_CHUNK_DURATION", 1500*time.Millisecond),
			MinFlush:      envDuration("AUDIO_MIN_FLUSH_DURATION", 500*time.Millisecond),
			SilencePeak:   envFloat("AUDIO_SILENCE_PEAK", 0.01),
		},
		STT: STTConfig{
			Provider: envOrDefault("STT_PROVIDER", "openai"),
			Language: envOrDefault("STT_LANGUAGE", "en"),
		},
		Providers: ProvidersConfig{
			OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
			OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
			GeminiKey:     os.Getenv("GEMINI_API_KEY"),
			UnsplashKey:   os.Getenv("UNSPLASH_ACCESS_KEY"),
			PexelsKey:     os.Getenv("PEXELS_API_KEY"),
		},
		Extract: ExtractConfig{
			Model:          envOrDefault("EXTRACT_MODEL", "gpt-4o-mini"),
			Debounce:       envDuration("EXTRACT_DEBOUNCE", 5*time.Second),
			ContextEntries: envInt("EXTRACT_CONTEXT_ENTRIES", 10),
			ContextChars:   envInt("EXTRACT_CONTEXT_CHARS", 1500),
		},
		Enrich: EnrichConfig{
			PriceCeiling:    envFloat("PRICE_CEILING", 5000),
			LaborHourlyRate: envFloat("LABOR_HOURLY_RATE", 85),
		},
		Webhook: WebhookConfig{
			URL:            os.Getenv("WEBHOOK_URL"),
			Timeout:        envDuration("WEBHOOK_TIMEOUT", 10*time.Second),
			ExplainTimeout: envDuration("WEBHOOK_EXPLAIN_TIMEOUT", 2*time.Second),
			QueueSize:      envInt("WEBHOOK_QUEUE_SIZE", 64),
		},
		Kafka: KafkaConfig{
			Enabled:         envBool("KAFKA_ENABLED", false),
			Brokers:         envList("KAFKA_BROKERS"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "invoice.transcript.final"),
			TopicItems:      envOrDefault("KAFKA_TOPIC_ITEMS", "invoice.item.events"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", "svc-invoice-agent"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			MetricsPort: envOrDefault("METRICS_PORT", "9090"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
