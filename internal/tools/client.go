package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// Result is the outcome of one tool call as reported by the tool server.
type Result struct {
	CallID      string   `json:"call_id"`
	Content     string   `json:"content"`
	Success     bool     `json:"success"`
	SideEffects []string `json:"side_effects,omitempty"`
}

// ProducedAudio reports whether this tool call already generated speech,
// in which case the executor skips fallback synthesis.
func (r Result) ProducedAudio() bool {
	for _, effect := range r.SideEffects {
		if effect == "audio_generated" {
			return true
		}
	}
	return false
}

// Client executes tool calls against the external tool server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a tool server client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type executeRequest struct {
	ToolCalls []models.ToolCall `json:"tool_calls"`
}

type executeResponse struct {
	Results map[string]Result `json:"results"`
}

// ExecuteToolCalls sends the batch to the tool server and returns results
// keyed by call id. A transport failure fails the whole batch; the caller
// treats that as degraded, not fatal.
func (c *Client) ExecuteToolCalls(ctx context.Context, calls []models.ToolCall) (map[string]Result, error) {
	if len(calls) == 0 {
		return map[string]Result{}, nil
	}

	reqBody, err := json.Marshal(executeRequest{ToolCalls: calls})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tool calls: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/execute", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool server request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tool server error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode tool results: %w", err)
	}

	log.Printf("🔧 [TOOLS] Executed %d tool calls, %d results", len(calls), len(parsed.Results))
	return parsed.Results, nil
}
