package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// VoiceConfig selects the voice used for synthesis.
type VoiceConfig struct {
	VoiceID string `json:"voice_id"`
}

// GenerateResult is the synthesizer's reply.
type GenerateResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client talks to the audio synthesizer service. Synthesis is a best-effort
// side effect; a failure here never fails the event.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates an audio synthesizer client
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// GenerateAudio synthesizes and plays speech for the given text.
func (c *Client) GenerateAudio(ctx context.Context, text string, cfg VoiceConfig) (*GenerateResult, error) {
	reqBody, err := json.Marshal(generateRequest{Text: text, VoiceID: cfg.VoiceID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audio request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/generate", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("audio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("audio error (status %d): %s", resp.StatusCode, string(body))
	}

	var result GenerateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode audio response: %w", err)
	}

	log.Printf("🔊 [AUDIO] Generated speech for %d chars (success=%v)", len(text), result.Success)
	return &result, nil
}
