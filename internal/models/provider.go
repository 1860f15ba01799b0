package models

// ProviderType distinguishes the two backend families the gateway speaks to.
type ProviderType string

const (
	ProviderTypeChat   ProviderType = "chat"   // OpenAI-compatible chat completions
	ProviderTypeCoding ProviderType = "coding" // external coding-agent process
)

// Provider is one configured LLM backend.
type Provider struct {
	Name         string       `json:"name"`
	Type         ProviderType `json:"type"`
	BaseURL      string       `json:"base_url,omitempty"`
	APIKey       string       `json:"api_key,omitempty"`
	Model        string       `json:"model,omitempty"`
	Command      string       `json:"command,omitempty"` // coding-agent binary
	Args         []string     `json:"args,omitempty"`
	Priority     int          `json:"priority,omitempty"` // higher = preferred
	SupportsTool bool         `json:"supports_tools,omitempty"`
	RateLimitRPS float64      `json:"rate_limit_rps,omitempty"`
}

// Configured reports whether the provider has the credentials or binary it
// needs to actually take traffic.
func (p *Provider) Configured() bool {
	switch p.Type {
	case ProviderTypeCoding:
		return p.Command != ""
	default:
		return p.BaseURL != "" && p.APIKey != ""
	}
}

// ProvidersConfig is the providers.json file structure.
type ProvidersConfig struct {
	Providers []Provider `json:"providers"`
}

// ChatMessage is one message in an OpenAI-compatible conversation.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a structured action request returned by a provider.
// The gateway never executes these; the executor hands them to the
// external tool-call handler.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction carries the function name and raw JSON arguments.
type ToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Usage is token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResult is the gateway's normalized response shape.
type ChatResult struct {
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Usage     Usage      `json:"usage"`
	Provider  string     `json:"provider"`
	Model     string     `json:"model"`
}
