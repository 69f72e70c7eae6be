// Package notify posts invoice updates to an outbound webhook. Delivery is
// best effort: failures are logged and counted, never surfaced to the
// pipeline.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-invoice-agent-service/internal/models"
	"ai-invoice-agent-service/internal/observability/logging"
	"ai-invoice-agent-service/internal/observability/metrics"
)

// Config holds notifier settings.
type Config struct {
	WebhookURL     string
	QueueSize      int
	ExplainTimeout time.Duration
	Gemini         *GeminiClient
	HTTPClient     *http.Client
}

type task struct {
	action     models.Action
	item       *models.InvoiceItem
	summary    *models.JobSummaryPayload
	jobInfo    *models.JobContext
	transcript string
}

// Notifier queues webhook deliveries and works them off a single background
// goroutine, so invoice mutations never wait on the network.
type Notifier struct {
	url            string
	httpClient     *http.Client
	gemini         *GeminiClient
	explainTimeout time.Duration
	log            zerolog.Logger

	tasks chan task
	wg    sync.WaitGroup

	closeOnce sync.Once
}

// New creates a notifier. An empty webhook URL yields a disabled notifier
// that logs a warning once and drops every notification.
func New(cfg Config) *Notifier {
	log := logging.WithComponent("notify")
	if cfg.WebhookURL == "" {
		log.Warn().Msg("webhook URL not configured; notifications disabled")
		return &Notifier{log: log}
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.ExplainTimeout <= 0 {
		cfg.ExplainTimeout = 2 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}

	n := &Notifier{
		url:            cfg.WebhookURL,
		httpClient:     cfg.HTTPClient,
		gemini:         cfg.Gemini,
		explainTimeout: cfg.ExplainTimeout,
		log:            log,
		tasks:          make(chan task, cfg.QueueSize),
	}
	n.wg.Add(1)
	go n.worker()
	return n
}

// Enabled reports whether notifications will actually be sent.
func (n *Notifier) Enabled() bool { return n.tasks != nil }

// NotifyItem queues a per-mutation notification. Drops the task if the queue
// is full rather than blocking the pipeline.
func (n *Notifier) NotifyItem(action models.Action, item models.InvoiceItem, jobInfo *models.JobContext, transcript string) {
	if n.tasks == nil {
		return
	}
	select {
	case n.tasks <- task{action: action, item: &item, jobInfo: jobInfo, transcript: transcript}:
	default:
		n.log.Warn().Str("action", string(action)).Msg("notification queue full, dropping update")
		metrics.DefaultMetrics.WebhookFailures.WithLabelValues(string(action)).Inc()
	}
}

// NotifySummary queues the job-completion summary.
func (n *Notifier) NotifySummary(items []models.InvoiceItem, total float64, jobInfo *models.JobContext) {
	if n.tasks == nil {
		return
	}
	summary := &models.JobSummaryPayload{Items: items, Total: total, JobInfo: jobInfo}
	select {
	case n.tasks <- task{summary: summary, jobInfo: jobInfo}:
	default:
		n.log.Warn().Msg("notification queue full, dropping job summary")
		metrics.DefaultMetrics.WebhookFailures.WithLabelValues("job_summary").Inc()
	}
}

// Close stops accepting notifications and waits for queued ones to drain.
func (n *Notifier) Close() {
	if n.tasks == nil {
		return
	}
	n.closeOnce.Do(func() {
		close(n.tasks)
		n.wg.Wait()
	})
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for t := range n.tasks {
		if t.summary != nil {
			n.sendSummary(t)
			continue
		}
		n.sendItem(t)
	}
}

func (n *Notifier) sendItem(t task) {
	explanation := ""
	if t.action == models.ActionItemAdded || t.action == models.ActionLaborUpdated {
		explanation = n.explain(*t.item, t.transcript)
	}

	payload := models.WebhookPayload{
		Message:   buildItemMessage(t.action, *t.item, explanation, t.jobInfo),
		Item:      t.item,
		Action:    t.action,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		JobInfo:   t.jobInfo,
	}
	n.post(string(t.action), payload)
}

func (n *Notifier) sendSummary(t task) {
	t.summary.Message = buildSummaryMessage(t.summary.Items, t.summary.Total, t.jobInfo)
	t.summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	n.post("job_summary", t.summary)
}

// explain races the Gemini call against a short deadline and falls back to
// the item's own descriptions.
func (n *Notifier) explain(item models.InvoiceItem, transcript string) string {
	if n.gemini != nil {
		ctx, cancel := context.WithTimeout(context.Background(), n.explainTimeout)
		defer cancel()
		if text, err := n.gemini.Explain(ctx, item, transcript); err == nil && text != "" {
			return text
		} else if err != nil {
			n.log.Debug().Err(err).Str("item", item.Name).Msg("explanation generation failed")
		}
	}
	if item.LaborDescription != "" {
		return item.LaborDescription
	}
	return item.Description
}

func (n *Notifier) post(action string, payload any) {
	start := time.Now()
	body, err := json.Marshal(payload)
	if err != nil {
		n.log.Error().Err(err).Msg("webhook payload marshal failed")
		return
	}

	resp, err := n.httpClient.Post(n.url, "application/json", bytes.NewReader(body))
	metrics.DefaultMetrics.RecordWebhook(action, err, start)
	if err != nil {
		n.log.Error().Err(err).Str("action", action).Msg("webhook delivery failed")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		n.log.Error().Int("status", resp.StatusCode).Str("action", action).Msg("webhook rejected update")
		metrics.DefaultMetrics.WebhookFailures.WithLabelValues(action).Inc()
		return
	}
	n.log.Debug().Str("action", action).Msg("webhook update sent")
}

func buildItemMessage(action models.Action, item models.InvoiceItem, explanation string, jobInfo *models.JobContext) string {
	var b strings.Builder

	switch action {
	case models.ActionItemAdded:
		if item.Type == models.ItemLabor {
			hours := item.Hours
			if hours == 0 {
				hours = 1
			}
			fmt.Fprintf(&b, "🔧 *New Labor Added*\n\n*Work:* %s\n*Hours:* %g\n*Price:* $%.2f\n", item.Name, hours, item.Price)
			if item.LaborDescription != "" {
				fmt.Fprintf(&b, "*Description:* %s\n", item.LaborDescription)
			}
		} else {
			fmt.Fprintf(&b, "🔧 *New Item Added*\n\n*Item:* %s\n*Type:* %s\n*Price:* $%.2f\n", item.Name, item.Type, item.Price)
			if item.Description != "" {
				fmt.Fprintf(&b, "*Description:* %s\n", item.Description)
			}
			if item.Category != "" {
				fmt.Fprintf(&b, "*Category:* %s\n", item.Category)
			}
			if item.Quantity > 1 {
				fmt.Fprintf(&b, "*Quantity:* %d\n", item.Quantity)
			}
		}
		if explanation != "" {
			fmt.Fprintf(&b, "\n*What's happening:* %s\n", explanation)
		}

	case models.ActionItemUpdated:
		fmt.Fprintf(&b, "✏️ *Item Updated*\n\n*Item:* %s\n*Price:* $%.2f\n", item.Name, item.Price)
		if item.Description != "" {
			fmt.Fprintf(&b, "*Description:* %s\n", item.Description)
		}

	case models.ActionLaborUpdated:
		fmt.Fprintf(&b, "✏️ *Labor Entry Updated*\n\n*Work:* %s\n", item.Name)
		if item.LaborDescription != "" {
			fmt.Fprintf(&b, "*Updated Description:* %s\n", item.LaborDescription)
		}
		if item.Description != "" {
			fmt.Fprintf(&b, "*Details:* %s\n", item.Description)
		}
		fmt.Fprintf(&b, "*Total:* $%.2f\n", item.Price)
		if explanation != "" {
			fmt.Fprintf(&b, "\n*What's happening:* %s\n", explanation)
		}

	case models.ActionItemMadeFree:
		fmt.Fprintf(&b, "🎁 *Item Made Free*\n\n*Item:* %s\n*Type:* %s\n*Status:* FREE (No charge)\n", item.Name, item.Type)

	case models.ActionItemRemoved:
		fmt.Fprintf(&b, "🗑️ *Item Removed*\n\n*Item:* %s\n*Type:* %s\n", item.Name, item.Type)
	}

	appendJobInfo(&b, jobInfo)
	fmt.Fprintf(&b, "\n*Time:* %s", time.Now().Format("1/2/2006, 3:04:05 PM"))
	return b.String()
}

func buildSummaryMessage(items []models.InvoiceItem, total float64, jobInfo *models.JobContext) string {
	var b strings.Builder
	b.WriteString("✅ *Job Completed - Invoice Summary*\n\n")

	if jobInfo != nil {
		b.WriteString("*Job Info:*\n")
		if jobInfo.JobNumber != "" {
			fmt.Fprintf(&b, "Job #%s\n", jobInfo.JobNumber)
		}
		if jobInfo.Customer != "" {
			fmt.Fprintf(&b, "Customer: %s\n", jobInfo.Customer)
		}
		if jobInfo.Vehicle != "" {
			fmt.Fprintf(&b, "Vehicle: %s\n\n", jobInfo.Vehicle)
		}
	}

	b.WriteString("*Items:*\n")
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s", i+1, item.Name)
		if item.LaborDescription != "" {
			fmt.Fprintf(&b, "\n   Work: %s", item.LaborDescription)
		} else if item.Description != "" {
			fmt.Fprintf(&b, "\n   %s", item.Description)
		}
		if item.Price == 0 {
			b.WriteString("\n   $FREE\n\n")
		} else {
			fmt.Fprintf(&b, "\n   $%.2f\n\n", item.Price)
		}
	}

	fmt.Fprintf(&b, "*Total: $%.2f*\n\n", total)
	fmt.Fprintf(&b, "*Time:* %s", time.Now().Format("1/2/2006, 3:04:05 PM"))
	return b.String()
}

func appendJobInfo(b *strings.Builder, jobInfo *models.JobContext) {
	if jobInfo == nil {
		return
	}
	b.WriteString("\n*Job Info:*\n")
	if jobInfo.JobNumber != "" {
		fmt.Fprintf(b, "Job #%s\n", jobInfo.JobNumber)
	}
	if jobInfo.Customer != "" {
		fmt.Fprintf(b, "Customer: %s\n", jobInfo.Customer)
	}
	if jobInfo.Vehicle != "" {
		fmt.Fprintf(b, "Vehicle: %s\n", jobInfo.Vehicle)
	}
}
