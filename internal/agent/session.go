// Package agent wires the capture-to-invoice pipeline for one job session:
// audio chunks in, transcript entries and invoice mutations out.
package agent

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-invoice-agent-service/internal/audio"
	"ai-invoice-agent-service/internal/events"
	"ai-invoice-agent-service/internal/invoice"
	"ai-invoice-agent-service/internal/models"
	"ai-invoice-agent-service/internal/notify"
	"ai-invoice-agent-service/internal/observability/logging"
	"ai-invoice-agent-service/internal/observability/metrics"
	"ai-invoice-agent-service/internal/service/enrich"
	"ai-invoice-agent-service/internal/service/extract"
	"ai-invoice-agent-service/internal/service/sanitize"
	"ai-invoice-agent-service/internal/service/stt"
)

const statusWaiting = "Waiting to start..."

// Deps are the pipeline stages the session drives. Extractor may be nil, in
// which case every entry goes through the lexical fallback.
type Deps struct {
	STT       stt.Adapter
	Extractor *extract.Extractor
	Enricher  *enrich.Service
	Notifier  *notify.Notifier
	Publisher *events.Publisher
}

// Config holds session settings.
type Config struct {
	Audio     audio.Config
	LaborRate float64
	Job       models.JobContext // defaults, overridable per job start
}

// Sink receives session events for live streaming to clients.
// kind is "transcript", "item", "status" or "error".
type Sink func(kind string, payload any)

// Snapshot is the full session state returned to API clients.
type Snapshot struct {
	Job        models.JobContext        `json:"job"`
	Status     string                   `json:"status"`
	Recording  bool                     `json:"recording"`
	Completed  bool                     `json:"completed"`
	Transcript []models.TranscriptEntry `json:"transcript"`
	Items      []models.InvoiceItem     `json:"items"`
	Total      float64                  `json:"total"`
}

// Session is the pipeline controller. Audio arrives on the capture path
// (HandleAudio); transcriptions run in per-chunk goroutines and re-enter
// through appendTranscript. The epoch counter fences stale in-flight results:
// Reset bumps it, and any result carrying an older epoch is dropped.
type Session struct {
	deps Deps
	log  zerolog.Logger

	mu         sync.Mutex
	chunker    *audio.Chunker
	inv        *invoice.Session
	transcript []models.TranscriptEntry
	job        models.JobContext
	status     string
	recording  bool
	completed  bool
	epoch      uint64
	seenErrors map[string]bool
	sink       Sink
}

// New creates a session with an empty transcript and invoice.
func New(cfg Config, deps Deps) *Session {
	if cfg.LaborRate <= 0 {
		cfg.LaborRate = 85
	}
	return &Session{
		deps:       deps,
		log:        logging.WithComponent("agent"),
		chunker:    audio.NewChunker(cfg.Audio),
		inv:        invoice.NewSession(cfg.LaborRate),
		job:        cfg.Job,
		status:     statusWaiting,
		seenErrors: make(map[string]bool),
	}
}

// SetSink registers the event sink. One sink at a time; the WebSocket layer
// swaps it per connection.
func (s *Session) SetSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *Session) emit(kind string, payload any) {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink != nil {
		sink(kind, payload)
	}
}

// StartJob begins (or rebrands) the job and starts accepting audio. Empty
// fields keep their current values.
func (s *Session) StartJob(job models.JobContext) models.JobContext {
	s.mu.Lock()
	if job.JobNumber != "" {
		s.job.JobNumber = job.JobNumber
	}
	if job.Customer != "" {
		s.job.Customer = job.Customer
	}
	if job.Vehicle != "" {
		s.job.Vehicle = job.Vehicle
	}
	s.recording = true
	s.completed = false
	current := s.job
	s.mu.Unlock()

	s.log.Info().Str("job", current.JobNumber).Msg("job started")
	return current
}

// HandleAudio feeds captured PCM16LE bytes into the chunker and spawns
// transcription for every full chunk that becomes due.
func (s *Session) HandleAudio(frame []byte) {
	s.mu.Lock()
	if s.completed || !s.recording {
		s.mu.Unlock()
		return
	}
	epoch := s.epoch
	s.mu.Unlock()

	metrics.DefaultMetrics.AudioBytesTotal.Add(float64(len(frame)))
	s.chunker.PushBytes(frame)

	for {
		chunk, ok := s.chunker.DrainIfDue()
		if !ok {
			break
		}
		metrics.DefaultMetrics.ChunksEmitted.Inc()
		go s.processChunk(epoch, chunk)
	}
}

// StopRecording flushes the partial capture buffer and stops accepting audio.
func (s *Session) StopRecording() {
	s.mu.Lock()
	if !s.recording {
		s.mu.Unlock()
		return
	}
	s.recording = false
	epoch := s.epoch
	s.mu.Unlock()

	if chunk, ok := s.chunker.Flush(); ok {
		metrics.DefaultMetrics.ChunksEmitted.Inc()
		metrics.DefaultMetrics.ChunksFlushed.Inc()
		go s.processChunk(epoch, chunk)
	}
	s.log.Info().Msg("recording stopped")
}

// processChunk runs one chunk through transcription and, if it yields usable
// text, through the transcript and extraction stages. Runs on its own
// goroutine; everything it touches re-checks the epoch.
func (s *Session) processChunk(epoch uint64, chunk *audio.Chunk) {
	ctx := context.Background()
	start := time.Now()
	result, err := s.deps.STT.Transcribe(ctx, chunk)
	kind := string(stt.KindOf(err))
	metrics.DefaultMetrics.RecordTranscription(s.deps.STT.Name(), err, kind, time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, stt.ErrChunkTooSmall) {
			return
		}
		s.surfaceError(err)
		return
	}
	text := sanitize.Clean(result.Text)
	if text == "" {
		metrics.DefaultMetrics.TranscriptsDiscarded.Inc()
		return
	}

	entry, ok := s.appendTranscript(epoch, chunk.Seq, text)
	if !ok {
		return
	}
	metrics.DefaultMetrics.TranscriptsAccepted.Inc()
	s.emit("transcript", entry)

	chunkLog := logging.WithChunk(s.jobNumber(), chunk.Seq)
	chunkLog.Debug().Str("text", text).Msg("transcript entry accepted")

	if s.deps.Publisher != nil {
		event := models.TranscriptEvent{
			EventType: "invoice.transcript.final",
			JobNumber: s.jobNumber(),
			Seq:       entry.Seq,
			Text:      entry.Text,
			Timestamp: time.Now().UnixMilli(),
		}
		if err := s.deps.Publisher.PublishTranscript(ctx, event.JobNumber, event); err != nil {
			s.log.Warn().Err(err).Msg("transcript publish failed")
		}
	}

	s.extractAndMerge(ctx, epoch, text)
}

func (s *Session) jobNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.job.JobNumber
}

// appendTranscript inserts the entry in capture order and refreshes the
// customer status line. Returns false when the session has been reset or
// completed since the chunk was captured.
func (s *Session) appendTranscript(epoch, seq uint64, text string) (models.TranscriptEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch != s.epoch || s.completed {
		return models.TranscriptEntry{}, false
	}

	entry := models.TranscriptEntry{
		Seq:       seq,
		Text:      text,
		Timestamp: time.Now().Format("15:04"),
	}
	idx := sort.Search(len(s.transcript), func(i int) bool {
		return s.transcript[i].Seq > seq
	})
	s.transcript = append(s.transcript, models.TranscriptEntry{})
	copy(s.transcript[idx+1:], s.transcript[idx:])
	s.transcript[idx] = entry

	lower := strings.ToLower(text)
	if strings.Contains(lower, "checking") || strings.Contains(lower, "diagnosing") {
		s.status = "Technician is diagnosing the issue..."
	} else if strings.Contains(lower, "installing") || strings.Contains(lower, "replacing") {
		s.status = "Technician is replacing parts..."
	}

	return entry, true
}

// extractAndMerge turns new transcript text into invoice items. The LLM path
// is debounced; on failure (or without an extractor) the lexical fallback
// handles just the triggering entry.
func (s *Session) extractAndMerge(ctx context.Context, epoch uint64, latest string) {
	var items []models.InvoiceItem

	if s.deps.Extractor != nil {
		s.mu.Lock()
		snapshot := make([]models.TranscriptEntry, len(s.transcript))
		copy(snapshot, s.transcript)
		s.mu.Unlock()

		metrics.DefaultMetrics.ExtractionCalls.Inc()
		start := time.Now()
		extracted, err := s.deps.Extractor.Extract(ctx, snapshot, latest)
		metrics.DefaultMetrics.ExtractionLatency.Observe(time.Since(start).Seconds())
		switch {
		case errors.Is(err, extract.ErrDebounced):
			metrics.DefaultMetrics.ExtractionDebounced.Inc()
			return
		case err != nil:
			s.log.Warn().Err(err).Msg("extraction failed, using lexical fallback")
			metrics.DefaultMetrics.ExtractionFallbacks.Inc()
			items = extract.Fallback(latest, s.inv.LaborRate())
		default:
			items = extracted
		}
	} else {
		metrics.DefaultMetrics.ExtractionFallbacks.Inc()
		items = extract.Fallback(latest, s.inv.LaborRate())
	}

	if len(items) == 0 {
		return
	}
	metrics.DefaultMetrics.ExtractionItems.Add(float64(len(items)))

	if s.deps.Enricher != nil {
		items = s.deps.Enricher.Items(ctx, items)
	}

	s.mu.Lock()
	if epoch != s.epoch || s.completed {
		s.mu.Unlock()
		return
	}
	added := s.inv.Merge(items)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	metrics.DefaultMetrics.ItemsMerged.Add(float64(len(added)))
	metrics.DefaultMetrics.ItemsDropped.Add(float64(len(items) - len(added)))

	for _, item := range added {
		s.afterMutation(ctx, models.ActionItemAdded, item, job, total, latest)
	}
}

// afterMutation fans one invoice change out to the sink, the webhook and the
// event stream.
func (s *Session) afterMutation(ctx context.Context, action models.Action, item models.InvoiceItem, job models.JobContext, total float64, excerpt string) {
	event := models.ItemEvent{
		EventType: "invoice.item.events",
		JobNumber: job.JobNumber,
		Action:    action,
		Item:      item,
		Total:     total,
		Timestamp: time.Now().UnixMilli(),
	}
	s.emit("item", event)

	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyItem(action, item, &job, excerpt)
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishItem(ctx, job.JobNumber, event); err != nil {
			s.log.Warn().Err(err).Msg("item event publish failed")
		}
	}
}

// surfaceError reports a transcription failure to the sink once per cause;
// repeats of the same message are logged at debug and suppressed.
func (s *Session) surfaceError(err error) {
	msg := err.Error()

	s.mu.Lock()
	seen := s.seenErrors[msg]
	s.seenErrors[msg] = true
	s.mu.Unlock()

	if seen {
		s.log.Debug().Err(err).Msg("transcription failing (suppressed)")
		return
	}
	if stt.IsUnauthorized(err) {
		s.log.Error().Err(err).Msg("transcription rejected; check provider account")
	} else {
		s.log.Error().Err(err).Msg("transcription failed")
	}
	s.emit("error", map[string]string{"message": msg})
}

// AddItem manually appends an item to the invoice.
func (s *Session) AddItem(item models.InvoiceItem) models.InvoiceItem {
	if item.Type == "" {
		item.Type = models.ItemPart
	}
	s.mu.Lock()
	added := s.inv.Add(item)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	s.afterMutation(context.Background(), models.ActionItemAdded, added, job, total, "")
	return added
}

// AddLaborHour appends one hour of labor at the session rate.
func (s *Session) AddLaborHour(description string) models.InvoiceItem {
	s.mu.Lock()
	added := s.inv.AddLaborHours(1, description)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	s.afterMutation(context.Background(), models.ActionItemAdded, added, job, total, "")
	return added
}

// RemoveItem deletes an invoice line.
func (s *Session) RemoveItem(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	removed, ok := s.inv.Remove(id)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	if !ok {
		return models.InvoiceItem{}, false
	}
	s.afterMutation(context.Background(), models.ActionItemRemoved, removed, job, total, "")
	return removed, true
}

// MakeFree zeroes an item's price.
func (s *Session) MakeFree(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	item, ok := s.inv.SetFree(id)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	if !ok {
		return models.InvoiceItem{}, false
	}
	s.afterMutation(context.Background(), models.ActionItemMadeFree, item, job, total, "")
	return item, true
}

// RestorePrice undoes MakeFree.
func (s *Session) RestorePrice(id int64) (models.InvoiceItem, bool) {
	s.mu.Lock()
	item, ok := s.inv.Restore(id)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	if !ok {
		return models.InvoiceItem{}, false
	}
	s.afterMutation(context.Background(), models.ActionItemUpdated, item, job, total, "")
	return item, true
}

// SetLaborDescription edits the labor description of an item.
func (s *Session) SetLaborDescription(id int64, description string) (models.InvoiceItem, bool) {
	s.mu.Lock()
	item, ok := s.inv.SetLaborDescription(id, description)
	job := s.job
	total := s.inv.Total()
	s.mu.Unlock()

	if !ok {
		return models.InvoiceItem{}, false
	}
	s.afterMutation(context.Background(), models.ActionLaborUpdated, item, job, total, "")
	return item, true
}

// Complete freezes the session and sends the invoice summary.
func (s *Session) Complete() Snapshot {
	s.StopRecording()

	s.mu.Lock()
	s.completed = true
	s.status = "Job completed"
	items, total := s.inv.Snapshot()
	job := s.job
	s.mu.Unlock()

	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifySummary(items, total, &job)
	}
	s.log.Info().Str("job", job.JobNumber).Float64("total", total).Int("items", len(items)).Msg("job completed")
	return s.SnapshotState()
}

// Reset starts a fresh session: new epoch, empty transcript and invoice.
// In-flight transcriptions from before the reset are fenced out.
func (s *Session) Reset() {
	s.mu.Lock()
	s.epoch++
	s.transcript = nil
	s.status = statusWaiting
	s.recording = false
	s.completed = false
	s.seenErrors = make(map[string]bool)
	s.inv.Reset()
	s.mu.Unlock()

	s.chunker.Reset()
	s.log.Info().Msg("session reset")
}

// SnapshotState returns the full session state.
func (s *Session) SnapshotState() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	transcript := make([]models.TranscriptEntry, len(s.transcript))
	copy(transcript, s.transcript)
	items, total := s.inv.Snapshot()

	return Snapshot{
		Job:        s.job,
		Status:     s.status,
		Recording:  s.recording,
		Completed:  s.completed,
		Transcript: transcript,
		Items:      items,
		Total:      total,
	}
}
