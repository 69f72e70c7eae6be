// Package openai provides an OpenAI Whisper speech-to-text adapter.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"ai-invoice-agent-service/internal/audio"
	"ai-invoice-agent-service/internal/service/stt"
)

// Adapter implements stt.Adapter using the OpenAI transcription endpoint.
type Adapter struct {
	client   *openai.Client
	language string
}

// New creates a Whisper adapter. baseURL overrides the API endpoint and is
// empty in production.
func New(apiKey, language, baseURL string) (*Adapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing OpenAI API key")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Adapter{
		client:   openai.NewClientWithConfig(cfg),
		language: language,
	}, nil
}

// Name identifies the provider.
func (a *Adapter) Name() string { return "openai" }

// Transcribe uploads one WAV chunk and returns the transcribed text.
func (a *Adapter) Transcribe(ctx context.Context, chunk *audio.Chunk) (stt.Result, error) {
	wav, err := chunk.Encode()
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindBadResponse, Message: "failed to encode chunk", Cause: err}
	}
	if len(wav) < stt.MinChunkBytes {
		return stt.Result{}, stt.ErrChunkTooSmall
	}

	resp, err := a.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(wav),
		Language: a.language,
	})
	if err != nil {
		return stt.Result{}, classify(err)
	}

	return stt.Result{Text: strings.TrimSpace(resp.Text)}, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return &stt.Error{
				Kind:    stt.KindUnauthorized,
				Message: "speech-to-text account restricted: " + apiErr.Message,
				Cause:   err,
			}
		}
		return &stt.Error{
			Kind:    stt.KindTransport,
			Message: fmt.Sprintf("speech-to-text service error (HTTP %d)", apiErr.HTTPStatusCode),
			Cause:   err,
		}
	}
	return &stt.Error{Kind: stt.KindTransport, Message: "speech-to-text request failed", Cause: err}
}
