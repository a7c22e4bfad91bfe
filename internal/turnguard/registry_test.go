package turnguard

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.New(nil, "silent")
}

func newTestRegistry(window time.Duration) *Registry {
	return NewRegistry(window, 0, testLogger()) // no sweeper
}

func TestFingerprintNormalizesWhitespace(t *testing.T) {
	assert.Equal(t, Fingerprint("I feel stuck at work"), Fingerprint("  I feel stuck at work\n"))
	assert.NotEqual(t, Fingerprint("I feel stuck at work"), Fingerprint("I feel stuck at home"))
}

func TestDuplicateWithinWindow(t *testing.T) {
	r := newTestRegistry(2500 * time.Millisecond)
	defer r.Close()

	now := time.Now()
	fp := Fingerprint("I feel stuck at work")

	assert.False(t, r.Duplicate("c1|d1|", fp, now), "first sighting is not a duplicate")
	assert.True(t, r.Duplicate("c1|d1|", fp, now.Add(1*time.Second)))
	assert.True(t, r.Duplicate("c1|d1|", fp, now.Add(2500*time.Millisecond)))
}

func TestDuplicateOutsideWindow(t *testing.T) {
	r := newTestRegistry(2500 * time.Millisecond)
	defer r.Close()

	now := time.Now()
	fp := Fingerprint("hello")

	assert.False(t, r.Duplicate("k", fp, now))
	assert.False(t, r.Duplicate("k", fp, now.Add(3*time.Second)), "window elapsed, reprocess")
}

func TestDuplicateDifferentFingerprint(t *testing.T) {
	r := newTestRegistry(2500 * time.Millisecond)
	defer r.Close()

	now := time.Now()
	assert.False(t, r.Duplicate("k", Fingerprint("one"), now))
	assert.False(t, r.Duplicate("k", Fingerprint("two"), now.Add(time.Millisecond)), "new content is a new turn")
}

func TestDuplicateKeysAreIndependent(t *testing.T) {
	r := newTestRegistry(2500 * time.Millisecond)
	defer r.Close()

	now := time.Now()
	fp := Fingerprint("same words")
	assert.False(t, r.Duplicate("call1|dev1|", fp, now))
	assert.False(t, r.Duplicate("call2|dev1|", fp, now), "other call is unaffected")
}

func TestDoSharesConcurrentCallers(t *testing.T) {
	r := newTestRegistry(time.Second)
	defer r.Close()

	var executions atomic.Int32
	gate := make(chan struct{})

	fn := func() (*domain.AssistantTurn, error) {
		executions.Add(1)
		<-gate
		return &domain.AssistantTurn{Text: "one answer"}, nil
	}

	const callers = 8
	results := make([]*domain.AssistantTurn, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn, _, err := r.Do("k", fn)
			require.NoError(t, err)
			results[i] = turn
		}(i)
	}

	// Let all callers pile onto the key, then release the one execution.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load(), "exactly one generation pipeline may run")
	for _, turn := range results {
		require.NotNil(t, turn)
		assert.Equal(t, "one answer", turn.Text)
	}
}

func TestDoReleasesKeyOnFailure(t *testing.T) {
	r := newTestRegistry(time.Second)
	defer r.Close()

	boom := errors.New("provider down")
	_, _, err := r.Do("k", func() (*domain.AssistantTurn, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	// The key must be free again: a fresh call executes.
	turn, _, err := r.Do("k", func() (*domain.AssistantTurn, error) {
		return &domain.AssistantTurn{Text: "recovered"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", turn.Text)
}

func TestSweepEvictsStaleKeys(t *testing.T) {
	r := NewRegistry(20*time.Millisecond, 10*time.Millisecond, testLogger())
	defer r.Close()

	r.Duplicate("k1", Fingerprint("a"), time.Now())
	r.Duplicate("k2", Fingerprint("b"), time.Now())
	require.Equal(t, 2, r.Size())

	assert.Eventually(t, func() bool { return r.Size() == 0 },
		time.Second, 5*time.Millisecond, "stale keys must be swept")
}
