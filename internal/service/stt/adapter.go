// Package stt defines the interface for speech-to-text providers.
package stt

import (
	"context"
	"errors"
	"fmt"

	"ai-invoice-agent-service/internal/audio"
)

// MinChunkBytes is the smallest WAV payload worth sending: the 44-byte
// container header plus ~0.1s of 16kHz 16-bit audio. Anything smaller is
// rejected before the network round trip.
const MinChunkBytes = 44 + 3200

// ErrChunkTooSmall signals a chunk below MinChunkBytes. Not a provider
// failure; callers drop the chunk and move on.
var ErrChunkTooSmall = errors.New("audio chunk below minimum size")

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	// KindTransport covers network failures, non-2xx responses and timeouts.
	KindTransport ErrorKind = "transport"
	// KindUnauthorized covers 401/permission failures, typically an account
	// restriction. Surfaced once per cause; repeats are suppressed upstream.
	KindUnauthorized ErrorKind = "unauthorized"
	// KindBadResponse covers responses the client could not interpret.
	KindBadResponse ErrorKind = "bad_response"
)

// Error is a typed transcription failure with a human-readable message.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transcription %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("transcription %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// KindOf returns the error kind, or empty for non-stt errors.
func KindOf(err error) ErrorKind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsUnauthorized reports whether err is an account-restriction failure.
func IsUnauthorized(err error) bool {
	return KindOf(err) == KindUnauthorized
}

// Result holds one transcription outcome. An empty Text means the provider
// heard nothing usable; the caller discards the chunk silently.
type Result struct {
	Text string
}

// Adapter transcribes a single audio chunk. Implementations do not retry;
// the caller decides whether to surface failures and keep recording.
type Adapter interface {
	Name() string
	Transcribe(ctx context.Context, chunk *audio.Chunk) (Result, error)
}
