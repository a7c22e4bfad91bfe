package domain

import "time"

// TurnSource identifies how a turn request originated.
const (
	SourceVoice = "voice"
	SourceChat  = "chat"
)

// TurnRequest is the unit sent to the coach gateway: one transcribed
// utterance plus the identifiers that form its dedupe key.
type TurnRequest struct {
	Transcript     string `json:"transcript"`
	CallID         string `json:"call_id"`
	DeviceID       string `json:"device_id"`
	ConversationID string `json:"conversationId,omitempty"`
	Source         string `json:"source"` // "voice" | "chat"
	WantAudio      bool   `json:"want_audio"`
}

// Key returns the session tuple the dedupe and single-flight layers key on.
func (r TurnRequest) Key() string {
	return r.CallID + "|" + r.DeviceID + "|" + r.ConversationID
}

// AssistantTurn is the generated reply for one TurnRequest.
type AssistantTurn struct {
	Text          string `json:"text"`
	AssistantText string `json:"assistant_text"`
	AudioBase64   string `json:"audio_base64,omitempty"`
	MimeType      string `json:"mime,omitempty"`
	UsedKnowledge bool   `json:"usedKnowledge"`

	ConversationID string `json:"conversationId,omitempty"`
	CallID         string `json:"call_id,omitempty"`

	// Skipped marks a duplicate turn that was short-circuited without
	// generation.
	Skipped bool `json:"skipped_duplicate,omitempty"`
}

// HistoryMessage is one stored turn half, as consumed by the prompt builder.
// History lists are always ordered ascending by CreatedAt.
type HistoryMessage struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Role constants for history messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
