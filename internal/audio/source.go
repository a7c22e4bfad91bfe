package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// SourceConfig describes how the microphone should be captured.
type SourceConfig struct {
	SampleRate  int
	Channels    int
	InputFormat string // ffmpeg input format, e.g. "pulse", "avfoundation"
	InputDevice string
	Command     string // ffmpeg binary, defaults to "ffmpeg"
}

// Source is a live microphone stream delivering little-endian 16-bit PCM.
type Source interface {
	io.Reader
	Stop() error
}

// Opener creates microphone sources. The ffmpeg implementation is the
// default; tests substitute scripted sources.
type Opener interface {
	Open(ctx context.Context, cfg SourceConfig) (Source, error)
}

// FFmpegOpener captures microphone PCM by spawning ffmpeg.
type FFmpegOpener struct{}

// Open starts an ffmpeg capture process. An ffmpeg that exits immediately
// (no device, no permission) surfaces as an open error rather than a
// short read later.
func (FFmpegOpener) Open(ctx context.Context, cfg SourceConfig) (Source, error) {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	command := cfg.Command
	if command == "" {
		command = "ffmpeg"
	}

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", cfg.InputFormat,
		"-i", cfg.InputDevice,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		detail := strings.TrimSpace(stderr.String())
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, detail)
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &ffmpegSource{
		stdout:  stdout,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type ffmpegSource struct {
	stdout  io.ReadCloser
	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *ffmpegSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Stop interrupts ffmpeg and waits briefly for it to exit. Safe to call
// more than once.
func (s *ffmpegSource) Stop() error {
	s.stopOnce.Do(func() {
		if s.process != nil {
			_ = s.process.Signal(os.Interrupt)
		}
		select {
		case err, ok := <-s.waitErr:
			if ok {
				s.stopErr = normalizeStopErr(err)
			}
		case <-time.After(2 * time.Second):
			if s.process != nil {
				_ = s.process.Kill()
			}
			s.stopErr = <-s.waitErr
		}
		_ = s.stdout.Close()
	})
	return s.stopErr
}

// normalizeStopErr hides the expected exit status from an interrupted
// ffmpeg; anything else is a real failure.
func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}
