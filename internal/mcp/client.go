package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// StatusClient reads the running bot's status endpoint
type StatusClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewStatusClient creates a client for the bot listening at baseURL, e.g. http://127.0.0.1:9876
func NewStatusClient(baseURL string) *StatusClient {
	return &StatusClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// BotStatus mirrors the bot's /api/status payload
type BotStatus struct {
	State     string `json:"state"`
	Queued    int    `json:"queued"`
	BotID     string `json:"bot_id,omitempty"`
	UptimeSec int64  `json:"uptime_seconds"`
}

// Status fetches the bot's lifecycle status
func (c *StatusClient) Status(ctx context.Context) (*BotStatus, error) {
	var status BotStatus
	if err := c.get(ctx, "/api/status", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *StatusClient) get(ctx context.Context, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP GET failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
