package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ai-invoice-agent-service/internal/agent"
	"ai-invoice-agent-service/internal/audio"
	"ai-invoice-agent-service/internal/config"
	"ai-invoice-agent-service/internal/events"
	apihttp "ai-invoice-agent-service/internal/http"
	"ai-invoice-agent-service/internal/models"
	"ai-invoice-agent-service/internal/notify"
	"ai-invoice-agent-service/internal/observability"
	"ai-invoice-agent-service/internal/observability/logging"
	"ai-invoice-agent-service/internal/service/enrich"
	"ai-invoice-agent-service/internal/service/extract"
	"ai-invoice-agent-service/internal/service/stt"
	sttgoogle "ai-invoice-agent-service/internal/service/stt/google"
	sttmock "ai-invoice-agent-service/internal/service/stt/mock"
	sttopenai "ai-invoice-agent-service/internal/service/stt/openai"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	ctx := context.Background()

	adapter, cleanup, err := buildSTT(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("speech-to-text provider init failed")
	}
	if cleanup != nil {
		defer cleanup()
	}

	var extractor *extract.Extractor
	if cfg.Providers.OpenAIKey != "" {
		extractor, err = extract.New(extract.Config{
			APIKey:         cfg.Providers.OpenAIKey,
			BaseURL:        cfg.Providers.OpenAIBaseURL,
			Model:          cfg.Extract.Model,
			Debounce:       cfg.Extract.Debounce,
			ContextEntries: cfg.Extract.ContextEntries,
			ContextChars:   cfg.Extract.ContextChars,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("extractor init failed")
		}
	} else {
		log.Warn().Msg("no OpenAI key; item extraction degrades to the lexical fallback")
	}

	enricher := enrich.New(enrich.Config{
		OpenAIKey:     cfg.Providers.OpenAIKey,
		OpenAIBaseURL: cfg.Providers.OpenAIBaseURL,
		Model:         cfg.Extract.Model,
		UnsplashKey:   cfg.Providers.UnsplashKey,
		PexelsKey:     cfg.Providers.PexelsKey,
		PriceCeiling:  cfg.Enrich.PriceCeiling,
	})

	notifier := notify.New(notify.Config{
		WebhookURL:     cfg.Webhook.URL,
		QueueSize:      cfg.Webhook.QueueSize,
		ExplainTimeout: cfg.Webhook.ExplainTimeout,
		Gemini:         notify.NewGeminiClient(nil, cfg.Providers.GeminiKey, ""),
		HTTPClient:     &http.Client{Timeout: cfg.Webhook.Timeout},
	})
	defer notifier.Close()

	publisher := events.New(&events.Config{
		Enabled:         cfg.Kafka.Enabled,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicItems:      cfg.Kafka.TopicItems,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	session := agent.New(agent.Config{
		Audio: audio.Config{
			SampleRate:    cfg.Audio.SampleRate,
			ChunkDuration: cfg.Audio.ChunkDuration,
			MinFlush:      cfg.Audio.MinFlush,
			SilencePeak:   cfg.Audio.SilencePeak,
		},
		LaborRate: cfg.Enrich.LaborHourlyRate,
		Job: models.JobContext{
			JobNumber: "4092",
			Customer:  "John Doe",
			Vehicle:   "2018 Ford Focus",
		},
	}, agent.Deps{
		STT:       adapter,
		Extractor: extractor,
		Enricher:  enricher,
		Notifier:  notifier,
		Publisher: publisher,
	})

	obs := observability.NewServer(":" + cfg.Observability.MetricsPort)
	obs.Start()

	server := &http.Server{
		Addr:        ":" + cfg.Service.HTTPPort,
		Handler:     apihttp.NewRouter(session),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Str("stt", adapter.Name()).Msg("invoice agent service started")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	if err := obs.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("observability shutdown failed")
	}
}

// buildSTT selects the transcription provider. The returned cleanup closes
// provider clients that hold connections.
func buildSTT(ctx context.Context, cfg *config.Config) (stt.Adapter, func(), error) {
	switch cfg.STT.Provider {
	case "openai":
		a, err := sttopenai.New(cfg.Providers.OpenAIKey, cfg.STT.Language, cfg.Providers.OpenAIBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return a, nil, nil
	case "google":
		a, err := sttgoogle.New(ctx, cfg.STT.Language)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	case "mock":
		return sttmock.New(), nil, nil
	default:
		log.Warn().Str("provider", cfg.STT.Provider).Msg("unknown STT provider, using mock")
		return sttmock.New(), nil, nil
	}
}
