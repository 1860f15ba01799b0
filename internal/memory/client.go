package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	cache "github.com/patrickmn/go-cache"
)

// Recalled is one memory returned by semantic recall.
type Recalled struct {
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Client talks to the semantic-memory sidecar. Every operation is
// best-effort: callers log failures and move on.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	recallCache *cache.Cache
}

// NewClient creates a memory sidecar client. Recall results are cached
// briefly so repeated events in a busy chat don't hammer the sidecar.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		recallCache: cache.New(30*time.Second, 1*time.Minute),
	}
}

type recallRequest struct {
	Bank  string `json:"bank"`
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type recallResponse struct {
	Memories []Recalled `json:"memories"`
}

// Recall returns up to limit memories from a bank relevant to the query.
func (c *Client) Recall(ctx context.Context, bank, query string, limit int) ([]Recalled, error) {
	cacheKey := bank + "|" + query
	if cached, found := c.recallCache.Get(cacheKey); found {
		return cached.([]Recalled), nil
	}

	reqBody, err := json.Marshal(recallRequest{Bank: bank, Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recall request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/recall", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("memory recall failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("memory recall error (status %d): %s", resp.StatusCode, string(body))
	}

	var parsed recallResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode recall response: %w", err)
	}

	c.recallCache.Set(cacheKey, parsed.Memories, cache.DefaultExpiration)
	return parsed.Memories, nil
}

type embedRequest struct {
	Content  string                 `json:"content"`
	Bank     string                 `json:"bank"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Embed stores content into a memory bank with optional metadata.
func (c *Client) Embed(ctx context.Context, content, bank string, metadata map[string]interface{}) error {
	reqBody, err := json.Marshal(embedRequest{Content: content, Bank: bank, Metadata: metadata})
	if err != nil {
		return fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("memory embed failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("memory embed error (status %d): %s", resp.StatusCode, string(body))
	}

	log.Printf("🧠 [MEMORY] Embedded %d chars into bank %s", len(content), bank)
	return nil
}
