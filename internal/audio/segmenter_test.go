package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testPolicy() Policy {
	return Policy{
		SilenceThreshold: 0.02,
		MinRecord:        900 * time.Millisecond,
		SilenceHold:      1100 * time.Millisecond,
		MaxTurn:          30 * time.Second,
	}
}

func TestSegmenterNoCutoffBeforeTalkFloor(t *testing.T) {
	start := time.Now()
	seg := NewSegmenter(testPolicy(), start)

	// Total silence from the start: still no cutoff until the floor passes.
	for ms := 0; ms <= 890; ms += 70 {
		now := start.Add(time.Duration(ms) * time.Millisecond)
		seg.Observe(0.001, now)
		done, cause := seg.Done(now)
		assert.False(t, done, "must not stop at %dms", ms)
		assert.Equal(t, StopNone, cause)
	}
}

func TestSegmenterSilenceHoldAfterFloor(t *testing.T) {
	start := time.Now()
	seg := NewSegmenter(testPolicy(), start)

	// Voice until 1s, then silence.
	lastVoice := start.Add(1 * time.Second)
	seg.Observe(0.3, lastVoice)

	// Silence has held for 1.0s: not yet past the hold.
	now := lastVoice.Add(1000 * time.Millisecond)
	done, _ := seg.Done(now)
	assert.False(t, done)

	// One tick past the hold: stop, silence cause.
	now = lastVoice.Add(1170 * time.Millisecond)
	done, cause := seg.Done(now)
	assert.True(t, done)
	assert.Equal(t, StopSilence, cause)
}

func TestSegmenterBriefPauseMergesTurn(t *testing.T) {
	start := time.Now()
	seg := NewSegmenter(testPolicy(), start)

	// Speak, pause 800ms (below the hold), speak again.
	seg.Observe(0.2, start.Add(1200*time.Millisecond))
	now := start.Add(2000 * time.Millisecond)
	done, _ := seg.Done(now)
	assert.False(t, done, "pause below the hold must not end the turn")

	seg.Observe(0.2, now)
	done, _ = seg.Done(now.Add(500 * time.Millisecond))
	assert.False(t, done)
}

func TestSegmenterCeilingOverridesVoice(t *testing.T) {
	start := time.Now()
	seg := NewSegmenter(testPolicy(), start)

	// Continuous voice right up to the ceiling.
	now := start.Add(30 * time.Second)
	seg.Observe(0.5, now)

	done, cause := seg.Done(now)
	assert.True(t, done)
	assert.Equal(t, StopCeiling, cause)
}

func TestSegmenterVoiceRefreshesHold(t *testing.T) {
	start := time.Now()
	seg := NewSegmenter(testPolicy(), start)

	seg.Observe(0.3, start.Add(5*time.Second))
	assert.Equal(t, start.Add(5*time.Second), seg.LastVoiceAt())

	// Sub-threshold energy does not refresh.
	seg.Observe(0.01, start.Add(6*time.Second))
	assert.Equal(t, start.Add(5*time.Second), seg.LastVoiceAt())
}
