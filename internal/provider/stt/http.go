package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// HTTPTranscriber uploads whole utterances to a whisper-style
// transcription endpoint.
type HTTPTranscriber struct {
	baseURL  string
	apiKey   string
	model    string
	language string
	client   *http.Client
}

// NewHTTPTranscriber creates an HTTP transcription client.
func NewHTTPTranscriber(baseURL, apiKey, model, language string, timeout time.Duration) *HTTPTranscriber {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPTranscriber{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		model:    model,
		language: language,
		client:   &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTranscriber) Name() string { return "http" }

// Transcribe posts the audio as a multipart upload and returns the text.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", "utterance"+extensionFor(mimeType))
	if err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}
	if t.model != "" {
		_ = mw.WriteField("model", t.model)
	}
	if t.language != "" {
		_ = mw.WriteField("language", t.language)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("creating transcription request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading transcription response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcription API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("parsing transcription response: %w", err)
	}
	return result.Text, nil
}

func extensionFor(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "wav"):
		return ".wav"
	case strings.Contains(mimeType, "mp3") || strings.Contains(mimeType, "mpeg"):
		return ".mp3"
	case strings.Contains(mimeType, "webm"):
		return ".webm"
	default:
		return ".pcm"
	}
}
