// Package mock provides a scripted STT adapter for testing and local
// development without provider credentials.
package mock

import (
	"context"
	"sync"

	"ai-invoice-agent-service/internal/audio"
	"ai-invoice-agent-service/internal/service/stt"
)

// DefaultScript is the narration played back chunk by chunk, mirroring a
// technician talking through a job. It deliberately includes non-speech
// annotations and fillers so the sanitizer path gets exercised.
var DefaultScript = []string{
	"(music) Checking the engine bay",
	"um",
	"Installing new engine mount, forty five dollars",
	"Replacing the front brake pads as well",
	"Adding one hour of labor for the mount and pads",
	"(laughs)",
	"Okay, I'm done with the job",
}

// Adapter implements stt.Adapter with scripted responses. Each Transcribe
// call returns the next line; past the end it returns empty results. Err, if
// set, is returned for every call instead.
type Adapter struct {
	mu     sync.Mutex
	script []string
	idx    int

	// Err forces every call to fail with this error.
	Err error
}

// New creates a mock adapter playing back DefaultScript.
func New() *Adapter {
	return &Adapter{script: DefaultScript}
}

// NewScripted creates a mock adapter with a custom script.
func NewScripted(script []string) *Adapter {
	return &Adapter{script: script}
}

// Name identifies the provider.
func (a *Adapter) Name() string { return "mock" }

// Transcribe returns the next scripted line.
func (a *Adapter) Transcribe(ctx context.Context, chunk *audio.Chunk) (stt.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.Err != nil {
		return stt.Result{}, a.Err
	}
	if a.idx >= len(a.script) {
		return stt.Result{}, nil
	}
	text := a.script[a.idx]
	a.idx++
	return stt.Result{Text: text}, nil
}

// Calls returns how many lines have been consumed.
func (a *Adapter) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx
}
