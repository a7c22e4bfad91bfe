package call

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxcoach/voxcoach/internal/logging"
)

// Playback is the single shared output channel for all call audio: cue
// effects and assistant speech. It owns the mute flag and the one-time
// output unlock.
type Playback struct {
	player Player
	log    *logging.Logger

	unlockOnce sync.Once
	unlockErr  error

	muted atomic.Bool
}

// NewPlayback wraps a Player with the call playback policy.
func NewPlayback(player Player, log *logging.Logger) *Playback {
	return &Playback{player: player, log: log.Sub("playback")}
}

// Unlock primes the audio output. Only the first call reaches the player;
// later calls return the first result.
func (p *Playback) Unlock(ctx context.Context) error {
	p.unlockOnce.Do(func() {
		p.unlockErr = p.player.Unlock(ctx)
	})
	return p.unlockErr
}

// SetMuted flips the global mute flag. Muting hard-stops any speech
// already playing; effects mid-cue are short enough to run out.
func (p *Playback) SetMuted(muted bool) {
	p.muted.Store(muted)
	if muted {
		p.player.Stop()
	}
}

// Muted reports the mute flag.
func (p *Playback) Muted() bool { return p.muted.Load() }

// PlayEffect plays a cue to completion, or skips it entirely when muted.
// Effect faults are logged and swallowed so the call flow never stalls
// on a missing sound.
func (p *Playback) PlayEffect(ctx context.Context, kind EffectKind) {
	if p.muted.Load() {
		return
	}
	if err := p.player.PlayEffect(ctx, kind); err != nil {
		p.log.Warn().Err(err).Str("effect", string(kind)).Msg("effect playback failed")
	}
}

// PlaySpeech plays an assistant reply to completion, a hard timeout, or a
// playback fault. It always returns (never panics or blocks past the
// timeout); the boolean reports natural completion. Muted calls skip
// playback outright.
func (p *Playback) PlaySpeech(ctx context.Context, audio []byte, mimeType string, timeout time.Duration) bool {
	if p.muted.Load() || len(audio) == 0 {
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- p.player.PlayClip(pctx, audio, mimeType)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.log.Warn().Err(err).Msg("speech playback failed")
			return false
		}
		return true
	case <-pctx.Done():
		// Abandon a hung or overlong clip so the call never stalls.
		p.player.Stop()
		p.log.Warn().Dur("timeout", timeout).Msg("speech playback abandoned")
		return false
	}
}
