package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// WSTranscriber streams an utterance over a realtime websocket
// transcription endpoint and collects the final segments. Used when the
// configured STT base URL has a ws:// or wss:// scheme.
type WSTranscriber struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	timeout  time.Duration
}

// NewWSTranscriber creates a websocket streaming transcription client.
func NewWSTranscriber(baseURL, apiKey, model, language string, timeout time.Duration) *WSTranscriber {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WSTranscriber{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		language: language,
		timeout:  timeout,
	}
}

func (t *WSTranscriber) Name() string { return "ws" }

// IsWebSocketURL reports whether a base URL selects the streaming client.
func IsWebSocketURL(baseURL string) bool {
	return strings.HasPrefix(baseURL, "ws://") || strings.HasPrefix(baseURL, "wss://")
}

// resultMessage is the realtime result frame (deepgram-style schema).
type resultMessage struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

const streamChunkSize = 8192

// Transcribe streams the audio in chunks, signals end of stream, and
// concatenates the final transcript segments.
func (t *WSTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	wsURL, err := t.buildURL(mimeType)
	if err != nil {
		return "", err
	}

	headers := http.Header{}
	if t.apiKey != "" {
		headers.Set("Authorization", "Token "+t.apiKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return "", fmt.Errorf("connecting to transcription stream: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context ends so the read loop unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	writeErr := make(chan error, 1)
	go func() {
		for off := 0; off < len(audio); off += streamChunkSize {
			end := off + streamChunkSize
			if end > len(audio) {
				end = len(audio)
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, audio[off:end]); err != nil {
				writeErr <- err
				return
			}
		}
		writeErr <- conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
	}()

	var segments []string
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if werr := <-writeErr; werr != nil {
				return "", fmt.Errorf("streaming audio: %w", werr)
			}
			if ctx.Err() != nil {
				return "", fmt.Errorf("transcription stream: %w", ctx.Err())
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				break
			}
			return "", fmt.Errorf("transcription stream: %w", err)
		}

		var result resultMessage
		if err := json.Unmarshal(msg, &result); err != nil {
			continue // non-result frames (metadata, keepalives)
		}
		if result.Type == "Metadata" {
			break // server signals end of results
		}
		if result.IsFinal && len(result.Channel.Alternatives) > 0 {
			if text := result.Channel.Alternatives[0].Transcript; text != "" {
				segments = append(segments, text)
			}
		}
	}

	return strings.Join(segments, " "), nil
}

func (t *WSTranscriber) buildURL(mimeType string) (string, error) {
	u, err := url.Parse(t.baseURL + "/listen")
	if err != nil {
		return "", fmt.Errorf("invalid transcription URL: %w", err)
	}
	q := u.Query()
	if t.model != "" {
		q.Set("model", t.model)
	}
	if t.language != "" {
		q.Set("language", t.language)
	}
	if strings.Contains(mimeType, "pcm") {
		q.Set("encoding", "linear16")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
