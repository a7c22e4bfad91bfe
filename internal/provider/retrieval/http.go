package retrieval

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

// HTTPSearcher queries a vector-search service and concatenates the
// returned passages into one context block.
type HTTPSearcher struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

// NewHTTPSearcher creates a vector-search client.
func NewHTTPSearcher(baseURL, apiKey, collection string, timeout time.Duration) *HTTPSearcher {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &HTTPSearcher{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSearcher) Name() string { return "http" }

// Search posts a query and joins the matched passages with blank lines.
func (s *HTTPSearcher) Search(ctx context.Context, query string, topK int) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"query":      query,
		"collection": s.collection,
		"top_k":      topK,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/search", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API error (%d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Matches []struct {
			Text string `json:"text"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parsing search response: %w", err)
	}

	var passages []string
	for _, m := range result.Matches {
		if t := strings.TrimSpace(m.Text); t != "" {
			passages = append(passages, t)
		}
	}
	return strings.Join(passages, "\n\n"), nil
}
