// Package llm defines the chat-completion client interface used by the
// coach reply pipeline.
package llm

import "context"

// Role constants for messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to a Complete call.
type CompletionRequest struct {
	Model           string    `json:"model,omitempty"`
	System          string    `json:"system,omitempty"`
	Messages        []Message `json:"messages"`
	MaxTokens       int       `json:"maxTokens,omitempty"`
	Temperature     *float64  `json:"temperature,omitempty"`
	PresencePenalty *float64  `json:"presencePenalty,omitempty"`
}

// CompletionResponse is the result of a completion.
type CompletionResponse struct {
	Content string `json:"content"`
	Model   string `json:"model,omitempty"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	InputTokens  int `json:"inputTokens"`
	OutputTokens int `json:"outputTokens"`
}

// Client is the interface all completion providers implement. Complete
// must honor ctx cancellation and deadlines.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Name() string
}
