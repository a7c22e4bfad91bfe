package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPSynthesizer posts reply text to a speech-synthesis endpoint and
// returns the audio bytes.
type HTTPSynthesizer struct {
	baseURL string
	apiKey  string
	voice   string
	format  string
	client  *http.Client
}

// NewHTTPSynthesizer creates a speech synthesis client. format selects the
// output container ("mp3" or "wav").
func NewHTTPSynthesizer(baseURL, apiKey, voice, format string, timeout time.Duration) *HTTPSynthesizer {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if format == "" {
		format = "mp3"
	}
	return &HTTPSynthesizer{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		voice:   voice,
		format:  format,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSynthesizer) Name() string { return "http" }

// Synthesize requests audio for text.
func (s *HTTPSynthesizer) Synthesize(ctx context.Context, text string) (*Clip, error) {
	payload, err := json.Marshal(map[string]string{
		"text":   text,
		"voice":  s.voice,
		"format": s.format,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/synthesize", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("xi-api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis API error (%d): %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading synthesis response: %w", err)
	}
	if len(audio) == 0 {
		return nil, nil
	}

	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = mimeForFormat(s.format)
	}
	return &Clip{Audio: audio, MimeType: mime}, nil
}

func mimeForFormat(format string) string {
	if format == "wav" {
		return "audio/wav"
	}
	return "audio/mpeg"
}
