// Package models defines the data structures shared across the invoice pipeline.
package models

// ItemType classifies an invoice line item.
type ItemType string

const (
	ItemPart    ItemType = "part"
	ItemLabor   ItemType = "labor"
	ItemService ItemType = "service"
)

// InvoiceItem is a single line on the running invoice. Items are created by
// the extractor (AI-sourced) or manually through the API, and deduplicated by
// case-insensitive name within a job session.
type InvoiceItem struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Price            float64  `json:"price"`
	Type             ItemType `json:"type"`
	Description      string   `json:"description,omitempty"`
	LaborDescription string   `json:"laborDescription,omitempty"`
	Quantity         int      `json:"quantity,omitempty"`
	Hours            float64  `json:"hours,omitempty"`
	Unit             string   `json:"unit,omitempty"`
	ImageURL         string   `json:"imageUrl,omitempty"`
	PartNumber       string   `json:"partNumber,omitempty"`
	Brand            string   `json:"brand,omitempty"`
	Category         string   `json:"category,omitempty"`
}

// TranscriptEntry is one sanitized transcription result. Seq is the capture
// sequence of the audio chunk that produced it; the session keeps the
// transcript ordered by Seq even when transcriptions complete out of order.
type TranscriptEntry struct {
	Seq       uint64 `json:"seq"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// JobContext identifies the job a notification belongs to. Static for the
// lifetime of a session.
type JobContext struct {
	JobNumber string `json:"jobNumber,omitempty"`
	Customer  string `json:"customer,omitempty"`
	Vehicle   string `json:"vehicle,omitempty"`
}

// Action names an invoice mutation for webhook notifications.
type Action string

const (
	ActionItemAdded    Action = "item_added"
	ActionItemUpdated  Action = "item_updated"
	ActionItemRemoved  Action = "item_removed"
	ActionItemMadeFree Action = "item_made_free"
	ActionLaborUpdated Action = "labor_updated"
)

// WebhookPayload is the per-mutation message posted to the outbound webhook.
type WebhookPayload struct {
	Message   string       `json:"message"`
	Item      *InvoiceItem `json:"item,omitempty"`
	Action    Action       `json:"action"`
	Timestamp string       `json:"timestamp"`
	JobInfo   *JobContext  `json:"jobInfo,omitempty"`
}

// JobSummaryPayload is the consolidated message sent when a job completes.
type JobSummaryPayload struct {
	Message   string        `json:"message"`
	Items     []InvoiceItem `json:"items"`
	Total     float64       `json:"total"`
	Timestamp string        `json:"timestamp"`
	JobInfo   *JobContext   `json:"jobInfo,omitempty"`
}

// TranscriptEvent is published to the event stream for each transcript entry.
type TranscriptEvent struct {
	EventType string `json:"eventType"`
	JobNumber string `json:"jobNumber"`
	Seq       uint64 `json:"seq"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// ItemEvent is published to the event stream for each invoice mutation.
type ItemEvent struct {
	EventType string      `json:"eventType"`
	JobNumber string      `json:"jobNumber"`
	Action    Action      `json:"action"`
	Item      InvoiceItem `json:"item"`
	Total     float64     `json:"total"`
	Timestamp int64       `json:"timestamp"`
}
