// Package audio implements microphone capture and silence-based utterance
// segmentation for the call client.
package audio

import "time"

// Policy holds the segmentation knobs. A capture ends once the talk floor
// has passed AND silence has held long enough, or unconditionally at the
// turn ceiling.
type Policy struct {
	SilenceThreshold float64       // normalized 0..1 energy below which a tick counts as silence
	MinRecord        time.Duration // talk floor: no cutoff before this much has elapsed
	SilenceHold      time.Duration // how long silence must hold before cutoff
	MaxTurn          time.Duration // hard ceiling regardless of ongoing speech
}

// StopCause says why a capture ended.
type StopCause int

const (
	StopNone    StopCause = iota
	StopSilence           // silence held after the talk floor
	StopCeiling           // hard ceiling reached
)

// Segmenter decides, tick by tick, when an utterance has ended. It is a
// pure policy object: callers feed it energy observations and clock
// readings, and it never touches the audio device itself.
type Segmenter struct {
	policy      Policy
	startedAt   time.Time
	lastVoiceAt time.Time
}

// NewSegmenter starts a segmentation window at now. The start counts as
// voice activity so a slow first word does not trip the silence hold.
func NewSegmenter(policy Policy, now time.Time) *Segmenter {
	return &Segmenter{
		policy:      policy,
		startedAt:   now,
		lastVoiceAt: now,
	}
}

// Observe records one energy reading. Readings above the threshold refresh
// the last-voice-activity mark.
func (s *Segmenter) Observe(level float64, now time.Time) {
	if level > s.policy.SilenceThreshold {
		s.lastVoiceAt = now
	}
}

// Done reports whether capture should stop at now, and why.
func (s *Segmenter) Done(now time.Time) (bool, StopCause) {
	elapsed := now.Sub(s.startedAt)
	if s.policy.MaxTurn > 0 && elapsed >= s.policy.MaxTurn {
		return true, StopCeiling
	}
	if elapsed <= s.policy.MinRecord {
		return false, StopNone
	}
	if now.Sub(s.lastVoiceAt) > s.policy.SilenceHold {
		return true, StopSilence
	}
	return false, StopNone
}

// StartedAt returns the window start.
func (s *Segmenter) StartedAt() time.Time { return s.startedAt }

// LastVoiceAt returns the most recent voice activity mark.
func (s *Segmenter) LastVoiceAt() time.Time { return s.lastVoiceAt }
