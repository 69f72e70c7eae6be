// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"ai-invoice-agent-service/internal/audio"
	"ai-invoice-agent-service/internal/service/stt"
)

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text batch
// recognition, one request per chunk.
type Adapter struct {
	client   *speech.Client
	language string
}

// New creates a Google STT adapter.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context, language string) (*Adapter, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if language == "" || language == "en" {
		language = "en-US"
	}
	return &Adapter{client: c, language: language}, nil
}

// Name identifies the provider.
func (a *Adapter) Name() string { return "google" }

// Transcribe sends one chunk of LINEAR16 audio and joins the top
// alternatives of all results.
func (a *Adapter) Transcribe(ctx context.Context, chunk *audio.Chunk) (stt.Result, error) {
	pcm := chunk.PCMBytes()
	if 44+len(pcm) < stt.MinChunkBytes {
		return stt.Result{}, stt.ErrChunkTooSmall
	}

	resp, err := a.client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(chunk.SampleRate),
			LanguageCode:    a.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: pcm},
		},
	})
	if err != nil {
		return stt.Result{}, &stt.Error{Kind: stt.KindTransport, Message: "speech-to-text request failed", Cause: err}
	}

	var parts []string
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		if text := strings.TrimSpace(r.Alternatives[0].Transcript); text != "" {
			parts = append(parts, text)
		}
	}
	return stt.Result{Text: strings.Join(parts, " ")}, nil
}

// Close releases the underlying client.
func (a *Adapter) Close() error {
	return a.client.Close()
}
