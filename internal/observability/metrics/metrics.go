// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_invoice_agent"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Audio chunker metrics
	ChunksEmitted   prometheus.Counter
	ChunksSilent    prometheus.Counter
	ChunksFlushed   prometheus.Counter
	AudioBytesTotal prometheus.Counter

	// Transcription metrics
	TranscriptionLatency *prometheus.HistogramVec
	TranscriptionErrors  *prometheus.CounterVec
	TranscriptsAccepted  prometheus.Counter
	TranscriptsDiscarded prometheus.Counter

	// Extraction metrics
	ExtractionCalls     prometheus.Counter
	ExtractionDebounced prometheus.Counter
	ExtractionFallbacks prometheus.Counter
	ExtractionItems     prometheus.Counter
	ExtractionLatency   prometheus.Histogram

	// Enrichment metrics
	EnrichPriceSource *prometheus.CounterVec
	EnrichImageSource *prometheus.CounterVec

	// Invoice metrics
	ItemsMerged  prometheus.Counter
	ItemsDropped prometheus.Counter

	// Webhook metrics
	WebhookAttempts *prometheus.CounterVec
	WebhookFailures *prometheus.CounterVec
	WebhookLatency  prometheus.Histogram

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		ChunksEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total number of audio chunks emitted for transcription",
		}),
		ChunksSilent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_silent_total",
			Help:      "Total number of audio chunks discarded as silence",
		}),
		ChunksFlushed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_flushed_total",
			Help:      "Total number of partial chunks flushed on stop",
		}),
		AudioBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Total audio bytes received from clients",
		}),
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Latency of speech-to-text requests",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"provider"}),
		TranscriptionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total transcription failures by provider and kind",
		}, []string{"provider", "kind"}),
		TranscriptsAccepted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_accepted_total",
			Help:      "Total sanitized transcript entries appended to the log",
		}),
		TranscriptsDiscarded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcripts_discarded_total",
			Help:      "Total transcription results discarded by the sanitizer",
		}),
		ExtractionCalls: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_calls_total",
			Help:      "Total LLM extraction requests issued",
		}),
		ExtractionDebounced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_debounced_total",
			Help:      "Total extraction invocations skipped by the debounce window",
		}),
		ExtractionFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_fallbacks_total",
			Help:      "Total extractions served by the lexical fallback parser",
		}),
		ExtractionItems: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_items_total",
			Help:      "Total candidate items produced by extraction",
		}),
		ExtractionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extraction_latency_seconds",
			Help:      "Latency of LLM extraction requests",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),
		EnrichPriceSource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_price_source_total",
			Help:      "Price enrichment outcomes by source (table, estimate, none)",
		}, []string{"source"}),
		EnrichImageSource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrich_image_source_total",
			Help:      "Image enrichment outcomes by source (provider, placeholder)",
		}, []string{"source"}),
		ItemsMerged: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_merged_total",
			Help:      "Total candidate items merged into the invoice",
		}),
		ItemsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_dropped_total",
			Help:      "Total candidate items dropped as duplicates",
		}),
		WebhookAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Total webhook deliveries attempted by action",
		}, []string{"action"}),
		WebhookFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_failures_total",
			Help:      "Total webhook deliveries that failed by action",
		}, []string{"action"}),
		WebhookLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook deliveries",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total events published to Kafka by topic",
		}, []string{"topic"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total Kafka publish failures by topic",
		}, []string{"topic"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Latency of Kafka publishes",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"topic"}),
	}
}

// RecordTranscription records one transcription attempt.
func (m *Metrics) RecordTranscription(provider string, err error, kind string, seconds float64) {
	m.TranscriptionLatency.WithLabelValues(provider).Observe(seconds)
	if err != nil {
		m.TranscriptionErrors.WithLabelValues(provider, kind).Inc()
	}
}

// RecordWebhook records one webhook delivery attempt.
func (m *Metrics) RecordWebhook(action string, err error, start time.Time) {
	m.WebhookAttempts.WithLabelValues(action).Inc()
	m.WebhookLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		m.WebhookFailures.WithLabelValues(action).Inc()
	}
}

// RecordKafkaPublish records one Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic string, err error, seconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(seconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic).Inc()
	}
}
