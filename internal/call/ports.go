package call

import (
	"context"

	"github.com/voxcoach/voxcoach/internal/domain"
)

// EffectKind names the short audio cues a call plays.
type EffectKind string

const (
	EffectRing      EffectKind = "ring"
	EffectConnect   EffectKind = "connect"
	EffectReconnect EffectKind = "reconnect"
	EffectEnd       EffectKind = "end"
)

// Player is the actual audio output device. Implementations must be safe
// to call from the controller goroutine; Stop interrupts a PlayClip in
// progress from any goroutine.
type Player interface {
	// Unlock primes the output channel with a silent clip. Called once
	// per call before any audible playback.
	Unlock(ctx context.Context) error
	// PlayEffect plays a named cue to completion.
	PlayEffect(ctx context.Context, kind EffectKind) error
	// PlayClip decodes and plays one audio buffer to completion.
	PlayClip(ctx context.Context, audio []byte, mimeType string) error
	// Stop interrupts the clip currently playing, if any.
	Stop()
}

// CoachClient sends finished transcripts to the coach gateway.
type CoachClient interface {
	Respond(ctx context.Context, req domain.TurnRequest) (*domain.AssistantTurn, error)
}
