// Package call implements the call-mode client: the turn state machine,
// the capture/transcribe/respond loop, and audio playback.
package call

import "github.com/voxcoach/voxcoach/internal/domain"

// Event is an input to the turn state machine.
type Event string

const (
	EventStart           Event = "start"
	EventConnected       Event = "connected"
	EventMutedTick       Event = "muted_tick"
	EventCaptureStart    Event = "capture_start"
	EventCaptureDone     Event = "capture_done"
	EventMicError        Event = "mic_error"
	EventTranscriptOK    Event = "transcript_ok"
	EventTranscriptEmpty Event = "transcript_empty"
	EventTranscribeError Event = "transcribe_error"
	EventReplyAudio      Event = "reply_audio"
	EventReplyText       Event = "reply_text"
	EventCoachError      Event = "coach_error"
	EventSpeechEnded     Event = "speech_ended"
	EventResume          Event = "resume"
	EventHangup          Event = "hangup"
)

// Effect is a side effect the interpreter must execute after a transition.
type Effect string

const (
	EffectUnlockAudio   Effect = "unlock_audio"
	EffectPlayRing      Effect = "play_ring"
	EffectPlayConnect   Effect = "play_connect"
	EffectPlayReconnect Effect = "play_reconnect"
	EffectPlayEnd       Effect = "play_end"
)

// Next is the pure transition function: given the current state and an
// event it returns the next state and the effects to run. Unknown
// combinations keep the current state with no effects, and nothing
// transitions out of Ended.
func Next(state domain.CallState, event Event) (domain.CallState, []Effect) {
	if state == domain.CallEnded {
		return state, nil
	}
	if event == EventHangup {
		return domain.CallEnded, []Effect{EffectPlayEnd}
	}

	switch state {
	case domain.CallIdle:
		if event == EventStart {
			return domain.CallRinging, []Effect{EffectUnlockAudio, EffectPlayRing}
		}

	case domain.CallRinging:
		if event == EventConnected {
			return domain.CallListening, []Effect{EffectPlayConnect}
		}

	case domain.CallListening:
		switch event {
		case EventMutedTick:
			return domain.CallListening, nil
		case EventCaptureStart:
			return domain.CallCapturing, nil
		}

	case domain.CallCapturing:
		switch event {
		case EventCaptureDone:
			return domain.CallTranscribing, nil
		case EventMicError:
			return domain.CallEnded, []Effect{EffectPlayEnd}
		}

	case domain.CallTranscribing:
		switch event {
		case EventTranscriptOK:
			return domain.CallThinking, nil
		case EventTranscriptEmpty:
			return domain.CallListening, nil
		case EventTranscribeError:
			return domain.CallReconnecting, []Effect{EffectPlayReconnect}
		}

	case domain.CallThinking:
		switch event {
		case EventReplyAudio:
			return domain.CallSpeaking, nil
		case EventReplyText:
			return domain.CallListening, nil
		case EventCoachError:
			return domain.CallReconnecting, []Effect{EffectPlayReconnect}
		}

	case domain.CallSpeaking:
		if event == EventSpeechEnded {
			return domain.CallListening, nil
		}

	case domain.CallReconnecting:
		if event == EventResume {
			return domain.CallListening, nil
		}
	}

	return state, nil
}
