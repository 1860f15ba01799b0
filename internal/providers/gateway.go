package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mrrustybutter/orchestrator/internal/health"
	"github.com/mrrustybutter/orchestrator/internal/models"
)

// ProviderError is a transport, timeout or API failure from an LLM backend.
// The gateway surfaces it without retrying; the caller decides what to do.
type ProviderError struct {
	Provider   string
	StatusCode int
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s failed (status %d): %v", e.Provider, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("provider %s failed: %v", e.Provider, e.Cause)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// GenerateOptions are per-call knobs for GenerateResponse
type GenerateOptions struct {
	Tools       []map[string]interface{}
	Temperature float64
	MaxTokens   int
}

// Gateway is the uniform interface over all chat-completion providers.
// Coding-agent providers are handled by CodingAgent, not here.
type Gateway struct {
	registry *Registry
	health   *health.Service
	client   *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewGateway creates a gateway with a per-call timeout cap
func NewGateway(registry *Registry, healthSvc *health.Service, timeout time.Duration) *Gateway {
	return &Gateway{
		registry: registry,
		health:   healthSvc,
		client:   &http.Client{Timeout: timeout},
		limiters: make(map[string]*rate.Limiter),
	}
}

type chatRequest struct {
	Model       string                   `json:"model"`
	Messages    []models.ChatMessage     `json:"messages"`
	Tools       []map[string]interface{} `json:"tools,omitempty"`
	Temperature float64                  `json:"temperature,omitempty"`
	MaxTokens   int                      `json:"max_tokens,omitempty"`
	Stream      bool                     `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string            `json:"content"`
			ToolCalls []models.ToolCall `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage models.Usage `json:"usage"`
}

// GenerateResponse calls the provider's /chat/completions endpoint and
// normalizes the response. Tool calls are returned to the caller, never
// executed here. Failures surface as *ProviderError with no silent retry.
func (g *Gateway) GenerateResponse(ctx context.Context, providerName string, messages []models.ChatMessage, opts GenerateOptions) (*models.ChatResult, error) {
	provider, ok := g.registry.Get(providerName)
	if !ok {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("provider not registered")}
	}
	if provider.Type != models.ProviderTypeChat {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("provider is not a chat backend")}
	}
	if !provider.Configured() {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("provider has no credentials configured")}
	}

	if err := g.waitLimiter(ctx, provider); err != nil {
		return nil, &ProviderError{Provider: providerName, Cause: err}
	}

	tools := opts.Tools
	if !provider.SupportsTool {
		tools = nil
	}

	reqBody, err := json.Marshal(chatRequest{
		Model:       provider.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	})
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", provider.BaseURL+"/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		g.reportFailure(providerName, err.Error(), 0)
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		errMsg := string(body)
		log.Printf("⚠️ [GATEWAY] %s API error (status %d): %s", providerName, resp.StatusCode, truncate(errMsg, 300))
		g.reportFailure(providerName, errMsg, resp.StatusCode)
		return nil, &ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("API error: %s", truncate(errMsg, 500)),
		}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		g.reportFailure(providerName, err.Error(), 0)
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("failed to decode response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &ProviderError{Provider: providerName, Cause: fmt.Errorf("no choices in response")}
	}

	if g.health != nil {
		g.health.MarkHealthy(health.CapabilityChat, providerName)
	}

	log.Printf("✅ [GATEWAY] %s/%s responded in %v (%d tool calls)",
		providerName, provider.Model, time.Since(start).Round(time.Millisecond), len(parsed.Choices[0].Message.ToolCalls))

	return &models.ChatResult{
		Content:   parsed.Choices[0].Message.Content,
		ToolCalls: parsed.Choices[0].Message.ToolCalls,
		Usage:     parsed.Usage,
		Provider:  providerName,
		Model:     provider.Model,
	}, nil
}

// TestProvider runs a cheap probe against the provider's models endpoint.
// A failing probe is reported to the health service but is never fatal.
func (g *Gateway) TestProvider(ctx context.Context, providerName string) error {
	provider, ok := g.registry.Get(providerName)
	if !ok {
		return fmt.Errorf("provider not registered: %s", providerName)
	}
	if !provider.Configured() {
		return fmt.Errorf("provider %s has no credentials configured", providerName)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", provider.BaseURL+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		g.reportFailure(providerName, err.Error(), 0)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		g.reportFailure(providerName, string(body), resp.StatusCode)
		return fmt.Errorf("probe failed (status %d)", resp.StatusCode)
	}

	if g.health != nil {
		g.health.MarkHealthy(health.CapabilityChat, providerName)
	}
	return nil
}

// reportFailure feeds a provider failure into health tracking. Quota errors
// get a parsed cooldown, everything else counts toward the failure threshold.
func (g *Gateway) reportFailure(providerName, errMsg string, statusCode int) {
	if g.health == nil {
		return
	}
	if health.IsQuotaError(statusCode, errMsg) {
		cooldown := health.ParseCooldownDuration(statusCode, errMsg)
		g.health.SetCooldown(health.CapabilityChat, providerName, cooldown)
		log.Printf("[GATEWAY] Provider %s quota exceeded, cooldown %v", providerName, cooldown)
	} else {
		g.health.MarkUnhealthy(health.CapabilityChat, providerName, errMsg, statusCode)
	}
}

// waitLimiter blocks until the provider's rate limiter admits the call
func (g *Gateway) waitLimiter(ctx context.Context, provider models.Provider) error {
	if provider.RateLimitRPS <= 0 {
		return nil
	}

	g.mu.Lock()
	limiter, ok := g.limiters[provider.Name]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(provider.RateLimitRPS), 1)
		g.limiters[provider.Name] = limiter
	}
	g.mu.Unlock()

	return limiter.Wait(ctx)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
