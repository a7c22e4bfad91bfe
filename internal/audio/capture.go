package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxcoach/voxcoach/internal/domain"
)

// ErrMicUnavailable marks a capture that failed because the microphone
// could not be read at all. Distinct from a silent capture, and fatal for
// the whole call rather than just the turn.
var ErrMicUnavailable = errors.New("microphone unavailable")

// CaptureConfig controls one capture run.
type CaptureConfig struct {
	Policy    Policy
	Tick      time.Duration // energy sampling interval
	ChunkSize int           // bytes per source read
	MimeType  string        // mime type recorded on the resulting utterance
}

// Capture records one utterance from src: it accumulates PCM chunks,
// samples energy every tick, and stops when the segmenter says the turn is
// over. The source is stopped on every exit path.
func Capture(ctx context.Context, src Source, cfg CaptureConfig) (domain.Utterance, error) {
	defer src.Stop()

	if cfg.Tick <= 0 {
		cfg.Tick = 70 * time.Millisecond
	}
	if cfg.ChunkSize < 256 {
		cfg.ChunkSize = 4096
	}
	if cfg.MimeType == "" {
		cfg.MimeType = "audio/pcm"
	}

	chunks := make(chan []byte, 32)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		for {
			buf := make([]byte, cfg.ChunkSize)
			n, err := src.Read(buf)
			if n > 0 {
				select {
				case chunks <- buf[:n]:
				case <-done:
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	seg := NewSegmenter(cfg.Policy, time.Now())
	ticker := time.NewTicker(cfg.Tick)
	defer ticker.Stop()

	var audio bytes.Buffer
	for {
		select {
		case <-ctx.Done():
			return domain.Utterance{}, ctx.Err()

		case chunk := <-chunks:
			audio.Write(chunk)
			seg.Observe(Level(chunk), time.Now())

		case err := <-readErr:
			return domain.Utterance{}, fmt.Errorf("%w: %v", ErrMicUnavailable, err)

		case now := <-ticker.C:
			if stop, _ := seg.Done(now); stop {
				return domain.Utterance{
					Audio:       audio.Bytes(),
					MimeType:    cfg.MimeType,
					StartedAt:   seg.StartedAt(),
					LastVoiceAt: seg.LastVoiceAt(),
					Duration:    now.Sub(seg.StartedAt()),
				}, nil
			}
		}
	}
}
