package call

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// FFPlayPlayer plays audio through an ffplay subprocess: named cue files
// from a sounds directory and in-memory reply clips over stdin.
type FFPlayPlayer struct {
	command   string
	soundsDir string

	mu      sync.Mutex
	current *os.Process
}

// NewFFPlayPlayer creates a player. soundsDir holds the cue files
// (ring.wav, connect.wav, reconnect.wav, end.wav).
func NewFFPlayPlayer(command, soundsDir string) *FFPlayPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &FFPlayPlayer{command: command, soundsDir: soundsDir}
}

// Unlock primes the output device with a short run of silence.
func (p *FFPlayPlayer) Unlock(ctx context.Context) error {
	// 100ms of 16kHz mono s16le silence.
	silence := make([]byte, 3200)
	return p.run(ctx, []string{"-f", "s16le", "-ar", "16000", "-i", "-"}, bytes.NewReader(silence))
}

// PlayEffect plays a named cue file to completion.
func (p *FFPlayPlayer) PlayEffect(ctx context.Context, kind EffectKind) error {
	path := filepath.Join(p.soundsDir, string(kind)+".wav")
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cue file missing: %w", err)
	}
	return p.run(ctx, []string{"-i", path}, nil)
}

// PlayClip plays one audio buffer to completion. ffplay sniffs the
// container, so the mime type is advisory only.
func (p *FFPlayPlayer) PlayClip(ctx context.Context, audio []byte, mimeType string) error {
	if len(audio) == 0 {
		return errors.New("empty clip")
	}
	return p.run(ctx, []string{"-i", "-"}, bytes.NewReader(audio))
}

// Stop kills the playback process currently running, if any.
func (p *FFPlayPlayer) Stop() {
	p.mu.Lock()
	proc := p.current
	p.mu.Unlock()
	if proc != nil {
		_ = proc.Kill()
	}
}

func (p *FFPlayPlayer) run(ctx context.Context, args []string, stdin *bytes.Reader) error {
	full := append([]string{"-nodisp", "-autoexit", "-loglevel", "quiet"}, args...)
	cmd := exec.CommandContext(ctx, p.command, full...)
	if stdin != nil {
		cmd.Stdin = stdin
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", p.command, err)
	}

	p.mu.Lock()
	p.current = cmd.Process
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	// A killed process is an interrupted playback, not a failure.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
