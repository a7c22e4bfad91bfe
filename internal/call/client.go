package call

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/voxcoach/voxcoach/internal/domain"
)

// HTTPCoachClient talks to the coach gateway over HTTP.
type HTTPCoachClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPCoachClient creates a gateway client. The timeout covers the
// whole reply generation, which can take tens of seconds.
func NewHTTPCoachClient(baseURL string, timeout time.Duration) *HTTPCoachClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPCoachClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Respond sends one turn request and decodes the assistant turn.
func (c *HTTPCoachClient) Respond(ctx context.Context, req domain.TurnRequest) (*domain.AssistantTurn, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling turn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/coach", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating coach request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("coach request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("coach gateway error (%d): %s", resp.StatusCode, string(body))
	}

	var turn domain.AssistantTurn
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		return nil, fmt.Errorf("decoding assistant turn: %w", err)
	}
	return &turn, nil
}
