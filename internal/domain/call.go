// Package domain holds the core types shared between the call client and
// the coach gateway.
package domain

import "time"

// CallState is the lifecycle state of a phone-style coaching call.
type CallState string

const (
	CallIdle         CallState = "idle"
	CallRinging      CallState = "ringing"
	CallListening    CallState = "listening"
	CallCapturing    CallState = "capturing"
	CallTranscribing CallState = "transcribing"
	CallThinking     CallState = "thinking"
	CallSpeaking     CallState = "speaking"
	CallReconnecting CallState = "reconnecting"
	CallEnded        CallState = "ended"
)

// Terminal reports whether the state permits no further transitions.
func (s CallState) Terminal() bool { return s == CallEnded }

// CallSession is one active or ended call. Owned exclusively by the turn
// controller; CallID and DeviceID travel with every coach request as the
// dedupe key components.
type CallSession struct {
	CallID         string
	DeviceID       string
	ConversationID string
	State          CallState
	StartedAt      time.Time
}

// Utterance is one captured, silence-bounded span of user speech.
// Discarded as soon as its transcription request is sent.
type Utterance struct {
	Audio       []byte
	MimeType    string
	StartedAt   time.Time
	LastVoiceAt time.Time
	Duration    time.Duration
}

// Empty reports whether no audio was captured.
func (u Utterance) Empty() bool { return len(u.Audio) == 0 }
