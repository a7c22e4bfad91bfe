// Package tts provides text-to-speech collaborator clients.
package tts

import "context"

// Clip is one synthesized audio reply.
type Clip struct {
	Audio    []byte
	MimeType string
}

// Synthesizer turns reply text into speech audio. A nil clip or an error
// is tolerated by every caller: replies degrade to text-only.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*Clip, error)
	Name() string
}

// Mock is a test double for Synthesizer.
type Mock struct {
	SynthesizeFunc func(ctx context.Context, text string) (*Clip, error)
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) Synthesize(ctx context.Context, text string) (*Clip, error) {
	if m.SynthesizeFunc != nil {
		return m.SynthesizeFunc(ctx, text)
	}
	return &Clip{Audio: []byte("audio"), MimeType: "audio/mpeg"}, nil
}
