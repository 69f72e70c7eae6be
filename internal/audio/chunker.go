// Package audio segments a live PCM capture stream into fixed-duration
// chunks suitable for transcription.
package audio

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"ai-invoice-agent-service/internal/observability/metrics"
)

// Chunk is a slice of captured audio prepared for transcription.
// Seq is assigned at capture time and is strictly increasing within a
// session; transcript ordering relies on it because transcriptions complete
// out of submission order.
type Chunk struct {
	ID         string
	Seq        uint64
	Samples    []int16
	SampleRate int
	Duration   time.Duration
	Flushed    bool // true if produced by a stop-flush rather than a full window
}

// Encode returns the chunk as a self-describing WAV container
// (16-bit PCM, mono).
func (c *Chunk) Encode() ([]byte, error) {
	return EncodeWAV(c.Samples, c.SampleRate)
}

// PCMBytes returns the chunk's raw little-endian PCM16 payload.
func (c *Chunk) PCMBytes() []byte {
	return PCM16ToBytes(c.Samples)
}

// Config controls chunk segmentation.
type Config struct {
	SampleRate    int
	ChunkDuration time.Duration // emit a chunk once this much audio is buffered
	MinFlush      time.Duration // minimum remainder worth flushing on stop
	SilencePeak   float64       // normalized peak below which a chunk is silence
}

// DefaultConfig returns the capture defaults: 1.5s mono chunks at 16kHz,
// 0.5s stop-flush floor, 0.01 silence peak.
func DefaultConfig() Config {
	return Config{
		SampleRate:    16000,
		ChunkDuration: 1500 * time.Millisecond,
		MinFlush:      500 * time.Millisecond,
		SilencePeak:   0.01,
	}
}

// Chunker owns the capture buffer. The capture path calls Push and
// DrainIfDue; the stop path calls Flush. All methods are safe for concurrent
// use, and none of them block on anything but the internal mutex, so chunk
// emission never stalls capture.
type Chunker struct {
	cfg          Config
	chunkSamples int
	flushSamples int
	silenceFloor int16

	mu      sync.Mutex
	buf     []int16
	seq     uint64
	emitted uint64
	silent  uint64
}

// NewChunker creates a chunker with the given config.
func NewChunker(cfg Config) *Chunker {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Chunker{
		cfg:          cfg,
		chunkSamples: int(float64(cfg.SampleRate) * cfg.ChunkDuration.Seconds()),
		flushSamples: int(float64(cfg.SampleRate) * cfg.MinFlush.Seconds()),
		silenceFloor: int16(cfg.SilencePeak * 32767),
	}
}

// Push appends captured samples to the buffer.
func (c *Chunker) Push(samples []int16) {
	c.mu.Lock()
	c.buf = append(c.buf, samples...)
	c.mu.Unlock()
}

// PushBytes appends little-endian PCM16 bytes to the buffer.
func (c *Chunker) PushBytes(b []byte) {
	c.Push(PCM16FromBytes(b))
}

// DrainIfDue cuts one full chunk off the front of the buffer if enough audio
// has accumulated. Chunks whose peak amplitude stays below the silence floor
// are discarded and (nil, false) is returned; callers simply try again on the
// next capture callback.
func (c *Chunker) DrainIfDue() (*Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) < c.chunkSamples {
		return nil, false
	}

	samples := make([]int16, c.chunkSamples)
	copy(samples, c.buf[:c.chunkSamples])
	c.buf = c.buf[c.chunkSamples:]

	if peak(samples) < c.silenceFloor {
		c.silent++
		metrics.DefaultMetrics.ChunksSilent.Inc()
		return nil, false
	}
	return c.emit(samples, false), true
}

// Flush drains whatever partial audio remains, if it exceeds the minimum
// flush duration and is not silence. Shorter or silent remainders are
// discarded. The buffer is empty afterwards either way.
func (c *Chunker) Flush() (*Chunk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	samples := c.buf
	c.buf = nil

	if len(samples) < c.flushSamples {
		return nil, false
	}
	if peak(samples) < c.silenceFloor {
		c.silent++
		metrics.DefaultMetrics.ChunksSilent.Inc()
		return nil, false
	}
	return c.emit(samples, true), true
}

// Reset discards buffered audio and restarts the sequence counter.
func (c *Chunker) Reset() {
	c.mu.Lock()
	c.buf = nil
	c.seq = 0
	c.emitted = 0
	c.silent = 0
	c.mu.Unlock()
}

// Buffered returns the number of samples currently buffered.
func (c *Chunker) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Stats reports emitted and silence-discarded chunk counts.
func (c *Chunker) Stats() (emitted, silent uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emitted, c.silent
}

// emit builds a chunk; caller holds the mutex.
func (c *Chunker) emit(samples []int16, flushed bool) *Chunk {
	c.seq++
	c.emitted++
	return &Chunk{
		ID:         uuid.NewString(),
		Seq:        c.seq,
		Samples:    samples,
		SampleRate: c.cfg.SampleRate,
		Duration:   time.Duration(len(samples)) * time.Second / time.Duration(c.cfg.SampleRate),
		Flushed:    flushed,
	}
}

func peak(samples []int16) int16 {
	var max int16
	for _, s := range samples {
		if s < 0 {
			if s == -32768 {
				return 32767
			}
			s = -s
		}
		if s > max {
			max = s
		}
	}
	return max
}
