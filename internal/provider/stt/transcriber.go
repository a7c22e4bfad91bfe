// Package stt provides speech-to-text collaborator clients.
package stt

import "context"

// Transcriber converts one captured utterance into text. An empty string
// with a nil error means no speech was recognized; a non-nil error means
// the service itself failed. Callers rely on that distinction.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Name() string
}

// Mock is a test double for Transcriber.
type Mock struct {
	TranscribeFunc func(ctx context.Context, audio []byte, mimeType string) (string, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audio, mimeType)
	}
	return "", nil
}
