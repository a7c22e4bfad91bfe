package call

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxcoach/voxcoach/internal/audio"
	"github.com/voxcoach/voxcoach/internal/domain"
	"github.com/voxcoach/voxcoach/internal/logging"
	"github.com/voxcoach/voxcoach/internal/provider/stt"
)

// ErrAlreadyStarted is returned when Run is called on a live controller.
var ErrAlreadyStarted = errors.New("call already started")

// ControllerConfig tunes the turn loop.
type ControllerConfig struct {
	Tick              time.Duration // muted-poll and cancellation granularity
	RingDelay         time.Duration // fixed ring-to-connect delay
	ReconnectDelay    time.Duration // backoff after transient failures
	SpeechTimeout     time.Duration // hard bound on reply playback
	TranscribeTimeout time.Duration
	CoachTimeout      time.Duration

	Capture audio.CaptureConfig
	Mic     audio.SourceConfig
}

// Controller runs one coaching call: ring, connect, then the
// listen/capture/transcribe/think/speak loop until hangup or a fatal
// microphone failure.
type Controller struct {
	cfg      ControllerConfig
	session  domain.CallSession
	mic      audio.Opener
	stt      stt.Transcriber
	coach    CoachClient
	playback *Playback
	log      *logging.Logger

	mu        sync.Mutex
	state     domain.CallState
	capturing bool
	speaking  bool
	cancel    context.CancelFunc

	active atomic.Bool
}

// NewController wires a call controller. The session's identifiers travel
// with every coach request.
func NewController(
	cfg ControllerConfig,
	session domain.CallSession,
	mic audio.Opener,
	transcriber stt.Transcriber,
	coach CoachClient,
	playback *Playback,
	log *logging.Logger,
) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = 70 * time.Millisecond
	}
	if cfg.SpeechTimeout <= 0 {
		cfg.SpeechTimeout = 35 * time.Second
	}
	if cfg.TranscribeTimeout <= 0 {
		cfg.TranscribeTimeout = 30 * time.Second
	}
	if cfg.CoachTimeout <= 0 {
		cfg.CoachTimeout = 60 * time.Second
	}
	session.State = domain.CallIdle
	return &Controller{
		cfg:      cfg,
		session:  session,
		mic:      mic,
		stt:      transcriber,
		coach:    coach,
		playback: playback,
		log:      log.Sub("call"),
		state:    domain.CallIdle,
	}
}

// State returns the controller's current call state.
func (c *Controller) State() domain.CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Mute flips the speaker mute flag. Muting stops speech mid-playback.
func (c *Controller) Mute(muted bool) {
	c.playback.SetMuted(muted)
}

// Run executes the call until the context is cancelled, Hangup is called,
// or the microphone fails. It blocks for the duration of the call.
func (c *Controller) Run(ctx context.Context) error {
	if !c.active.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	callCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	c.session.StartedAt = time.Now()
	c.log.Info().
		Str("callId", c.session.CallID).
		Str("deviceId", c.session.DeviceID).
		Msg("call starting")

	// Ring and audio unlock happen inside the initiating action, before
	// any other audio.
	c.dispatch(callCtx, EventStart)

	if !c.sleep(callCtx, c.cfg.RingDelay) {
		c.Hangup()
		return nil
	}
	c.dispatch(callCtx, EventConnected)

	for c.active.Load() && !c.State().Terminal() {
		if callCtx.Err() != nil {
			c.Hangup()
			break
		}

		if c.playback.Muted() {
			c.dispatch(callCtx, EventMutedTick)
			c.sleep(callCtx, c.cfg.Tick)
			continue
		}

		c.runTurn(callCtx)
	}

	if !c.State().Terminal() {
		c.Hangup()
	}
	c.log.Info().Str("callId", c.session.CallID).Msg("call ended")
	return nil
}

// runTurn executes one listen-to-reply cycle.
func (c *Controller) runTurn(ctx context.Context) {
	utt, err := c.capture(ctx)
	if err != nil {
		if errors.Is(err, audio.ErrMicUnavailable) {
			c.log.Error().Err(err).Msg("microphone unavailable, ending call")
			c.dispatch(ctx, EventMicError)
			c.active.Store(false)
			return
		}
		// Context cancellation lands here; the outer loop ends the call.
		return
	}

	c.dispatch(ctx, EventCaptureDone)
	if utt.Empty() {
		c.dispatch(ctx, EventTranscriptEmpty)
		return
	}

	text, err := c.transcribe(ctx, utt)
	if err != nil {
		c.log.Warn().Err(err).Msg("transcription failed, reconnecting")
		c.reconnect(ctx, EventTranscribeError)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		// Noise without speech is a non-event.
		c.dispatch(ctx, EventTranscriptEmpty)
		return
	}

	c.dispatch(ctx, EventTranscriptOK)
	turn, err := c.requestReply(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Msg("coach request failed, reconnecting")
		c.reconnect(ctx, EventCoachError)
		return
	}
	if turn.Skipped {
		c.dispatch(ctx, EventReplyText)
		return
	}

	c.deliver(ctx, turn)
}

// capture records one utterance, holding the not-capturing/not-speaking
// guard for its duration. When the guard is already held the call is a
// no-op, never an error.
func (c *Controller) capture(ctx context.Context) (domain.Utterance, error) {
	if !c.tryBeginCapture() {
		return domain.Utterance{}, nil
	}
	defer c.endCapture()

	src, err := c.mic.Open(ctx, c.cfg.Mic)
	if err != nil {
		// A microphone that cannot open is as fatal as one that dies
		// mid-read.
		return domain.Utterance{}, fmt.Errorf("%w: %w", audio.ErrMicUnavailable, err)
	}
	return audio.Capture(ctx, src, c.cfg.Capture)
}

// tryBeginCapture takes the microphone-owner guard. Two captures, or a
// capture during speech playback, must never run at once.
func (c *Controller) tryBeginCapture() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.capturing || c.speaking || c.state.Terminal() {
		return false
	}
	c.capturing = true
	c.state, _ = Next(c.state, EventCaptureStart)
	return true
}

func (c *Controller) endCapture() {
	c.mu.Lock()
	c.capturing = false
	c.mu.Unlock()
}

func (c *Controller) transcribe(ctx context.Context, utt domain.Utterance) (string, error) {
	tctx, cancel := context.WithTimeout(ctx, c.cfg.TranscribeTimeout)
	defer cancel()
	return c.stt.Transcribe(tctx, utt.Audio, utt.MimeType)
}

func (c *Controller) requestReply(ctx context.Context, transcript string) (*domain.AssistantTurn, error) {
	rctx, cancel := context.WithTimeout(ctx, c.cfg.CoachTimeout)
	defer cancel()

	return c.coach.Respond(rctx, domain.TurnRequest{
		Transcript:     transcript,
		CallID:         c.session.CallID,
		DeviceID:       c.session.DeviceID,
		ConversationID: c.session.ConversationID,
		Source:         domain.SourceVoice,
		WantAudio:      !c.playback.Muted(),
	})
}

// deliver plays the reply audio when present and the speaker is live,
// then returns the call to listening.
func (c *Controller) deliver(ctx context.Context, turn *domain.AssistantTurn) {
	c.log.Info().Bool("usedKnowledge", turn.UsedKnowledge).Msg(turn.Text)

	speech := c.decodeAudio(turn)
	if len(speech) == 0 || c.playback.Muted() {
		c.dispatch(ctx, EventReplyText)
		return
	}

	c.dispatch(ctx, EventReplyAudio)
	c.setSpeaking(true)
	c.playback.PlaySpeech(ctx, speech, turn.MimeType, c.cfg.SpeechTimeout)
	c.setSpeaking(false)
	c.dispatch(ctx, EventSpeechEnded)
}

func (c *Controller) decodeAudio(turn *domain.AssistantTurn) []byte {
	if turn.AudioBase64 == "" {
		return nil
	}
	speech, err := base64.StdEncoding.DecodeString(turn.AudioBase64)
	if err != nil {
		c.log.Warn().Err(err).Msg("reply audio is not valid base64, playing nothing")
		return nil
	}
	return speech
}

func (c *Controller) setSpeaking(speaking bool) {
	c.mu.Lock()
	c.speaking = speaking
	c.mu.Unlock()
}

// Hangup ends the call from any state: flips the active flag, cancels
// in-flight work, and plays the end cue. Safe to call repeatedly; only
// the transition out of a live state produces the cue.
func (c *Controller) Hangup() {
	c.active.Store(false)
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.playback.player.Stop()

	// The call context is gone by now; the end cue gets its own bound.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.dispatch(ctx, EventHangup)
}

// reconnect plays the reconnect cue, backs off, and resumes listening.
func (c *Controller) reconnect(ctx context.Context, cause Event) {
	c.dispatch(ctx, cause)
	c.sleep(ctx, c.cfg.ReconnectDelay)
	c.dispatch(ctx, EventResume)
}

// dispatch advances the state machine and executes the resulting effects.
func (c *Controller) dispatch(ctx context.Context, event Event) {
	c.mu.Lock()
	next, effects := Next(c.state, event)
	prev := c.state
	c.state = next
	c.session.State = next
	c.mu.Unlock()

	if prev != next {
		c.log.Debug().
			Str("from", string(prev)).
			Str("to", string(next)).
			Str("event", string(event)).
			Msg("state transition")
	}

	for _, effect := range effects {
		c.runEffect(ctx, effect)
	}
}

func (c *Controller) runEffect(ctx context.Context, effect Effect) {
	switch effect {
	case EffectUnlockAudio:
		if err := c.playback.Unlock(ctx); err != nil {
			c.log.Warn().Err(err).Msg("audio unlock failed")
		}
	case EffectPlayRing:
		c.playback.PlayEffect(ctx, EffectRing)
	case EffectPlayConnect:
		c.playback.PlayEffect(ctx, EffectConnect)
	case EffectPlayReconnect:
		c.playback.PlayEffect(ctx, EffectReconnect)
	case EffectPlayEnd:
		c.playback.PlayEffect(ctx, EffectEnd)
	}
}

// sleep waits for d or the context, reporting whether the wait ran out
// naturally.
func (c *Controller) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
