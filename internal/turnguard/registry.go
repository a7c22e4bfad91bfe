// Package turnguard guarantees at most one reply generation per logical
// utterance: a fingerprint-based duplicate check over a short window, and
// single-flight sharing of in-progress generations per call session.
package turnguard

import (
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/logging"
)

// Fingerprint hashes a transcript for duplicate detection. Leading and
// trailing whitespace does not change the identity of an utterance.
func Fingerprint(transcript string) uint64 {
	return xxhash.Sum64String(strings.TrimSpace(transcript))
}

type dedupeRecord struct {
	fingerprint uint64
	observedAt  time.Time
}

// Registry tracks recent turn fingerprints and in-flight generations,
// keyed by the (call, device, conversation) tuple. Keys are independent;
// there is no cross-key locking.
type Registry struct {
	window time.Duration
	log    *logging.Logger

	flight singleflight.Group

	mu   sync.Mutex
	seen map[string]dedupeRecord

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewRegistry creates a registry with the given dedupe window and starts a
// background sweep that evicts stale keys every sweepInterval. Close stops
// the sweep.
func NewRegistry(window, sweepInterval time.Duration, log *logging.Logger) *Registry {
	r := &Registry{
		window:    window,
		log:       log.Sub("turnguard"),
		seen:      make(map[string]dedupeRecord),
		stopSweep: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go r.sweepLoop(sweepInterval)
	}
	return r
}

// Close stops the background sweep. Idempotent.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopSweep) })
}

// Duplicate reports whether an identical transcript fingerprint was seen
// for key within the dedupe window. When it is not a duplicate, the new
// fingerprint is recorded, replacing whatever the key held before.
func (r *Registry) Duplicate(key string, fingerprint uint64, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.seen[key]
	if ok && rec.fingerprint == fingerprint && now.Sub(rec.observedAt) <= r.window {
		return true
	}
	r.seen[key] = dedupeRecord{fingerprint: fingerprint, observedAt: now}
	return false
}

// Do runs fn under the single-flight guard for key: concurrent callers on
// the same key attach to the one in-progress generation and all receive
// its result. The registration is released when fn settles, success or
// failure. shared reports whether the result came from another caller's
// execution.
func (r *Registry) Do(key string, fn func() (*domain.AssistantTurn, error)) (turn *domain.AssistantTurn, shared bool, err error) {
	v, err, shared := r.flight.Do(key, func() (any, error) {
		return fn()
	})
	if shared {
		r.log.Debug().Str("key", key).Msg("attached to in-flight generation")
	}
	if v == nil {
		return nil, shared, err
	}
	return v.(*domain.AssistantTurn), shared, err
}

// Size returns the number of tracked dedupe keys.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// sweepLoop evicts dedupe records older than the window so a long-running
// process does not accumulate keys from ended calls.
func (r *Registry) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopSweep:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-r.window)
			r.mu.Lock()
			var evicted int
			for key, rec := range r.seen {
				if rec.observedAt.Before(cutoff) {
					delete(r.seen, key)
					evicted++
				}
			}
			remaining := len(r.seen)
			r.mu.Unlock()
			if evicted > 0 {
				r.log.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("swept stale turn keys")
			}
		}
	}
}
