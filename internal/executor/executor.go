package executor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mrrustybutter/orchestrator/internal/audio"
	"github.com/mrrustybutter/orchestrator/internal/memory"
	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/providers"
	"github.com/mrrustybutter/orchestrator/internal/tools"
)

// Gateway is the chat-completion surface the executor dispatches to.
type Gateway interface {
	GenerateResponse(ctx context.Context, provider string, messages []models.ChatMessage, opts providers.GenerateOptions) (*models.ChatResult, error)
}

// CodingBackend runs a coding-agent process to completion.
type CodingBackend interface {
	Run(ctx context.Context, provider models.Provider, role, prompt string, requiredTools []string) (string, error)
}

// ToolExecutor hands tool calls to the external tool-call handler.
type ToolExecutor interface {
	ExecuteToolCalls(ctx context.Context, calls []models.ToolCall) (map[string]tools.Result, error)
}

// MemoryStore is the best-effort semantic memory sidecar.
type MemoryStore interface {
	Recall(ctx context.Context, bank, query string, limit int) ([]memory.Recalled, error)
	Embed(ctx context.Context, content, bank string, metadata map[string]interface{}) error
}

// Synthesizer produces fallback speech when no tool call did.
type Synthesizer interface {
	GenerateAudio(ctx context.Context, text string, cfg audio.VoiceConfig) (*audio.GenerateResult, error)
}

// ProviderLookup resolves a provider name to its configuration.
type ProviderLookup func(name string) (models.Provider, bool)

// defaultToolDefinitions are the tool declarations offered to tool-capable
// providers; they mirror what the external tool server executes.
var defaultToolDefinitions = []map[string]interface{}{
	{
		"type": "function",
		"function": map[string]interface{}{
			"name":        "generate_speech",
			"description": "Speak the given text aloud on stream",
			"parameters": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"text": map[string]interface{}{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
	},
	{
		"type": "function",
		"function": map[string]interface{}{
			"name":        "set_avatar_expression",
			"description": "Change the on-stream avatar's expression",
			"parameters": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"expression": map[string]interface{}{"type": "string"},
				},
				"required": []string{"expression"},
			},
		},
	},
	{
		"type": "function",
		"function": map[string]interface{}{
			"name":        "browser_action",
			"description": "Perform a browser automation action (navigate, click, type)",
			"parameters": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"action": map[string]interface{}{"type": "string"},
					"target": map[string]interface{}{"type": "string"},
				},
				"required": []string{"action"},
			},
		},
	},
}

// Options configures an Executor
type Options struct {
	Gateway        Gateway
	Coding         CodingBackend
	Tools          ToolExecutor
	Memory         MemoryStore
	Audio          Synthesizer
	Lookup         ProviderLookup
	DefaultVoiceID string
	SidecarTimeout time.Duration // per memory/audio/tool call
	Temperature    float64
}

// Executor turns a routed event into a textual response, executing tool
// calls and audio side effects along the way.
type Executor struct {
	gateway        Gateway
	coding         CodingBackend
	tools          ToolExecutor
	memory         MemoryStore
	audio          Synthesizer
	lookup         ProviderLookup
	defaultVoiceID string
	sidecarTimeout time.Duration
	temperature    float64
}

// New creates an executor
func New(opts Options) *Executor {
	if opts.SidecarTimeout <= 0 {
		opts.SidecarTimeout = 15 * time.Second
	}
	if opts.Temperature <= 0 {
		opts.Temperature = 0.8
	}
	return &Executor{
		gateway:        opts.Gateway,
		coding:         opts.Coding,
		tools:          opts.Tools,
		memory:         opts.Memory,
		audio:          opts.Audio,
		lookup:         opts.Lookup,
		defaultVoiceID: opts.DefaultVoiceID,
		sidecarTimeout: opts.SidecarTimeout,
		temperature:    opts.Temperature,
	}
}

// Execute processes one routed event end to end. Only provider and internal
// failures return an error; tool and sidecar problems degrade to a
// text-only response with logging.
func (e *Executor) Execute(ctx context.Context, event *models.Event, routing models.RoutingDecision) (string, error) {
	provider, ok := e.lookup(routing.Provider)
	if !ok {
		return "", internalError(fmt.Errorf("routed provider %q is not registered", routing.Provider))
	}

	// Dispatch on the provider's backend family: a coding use case can land
	// on a chat provider when the coding agent is unavailable.
	if provider.Type == models.ProviderTypeCoding {
		return e.executeCoding(ctx, event, provider)
	}
	return e.executeChat(ctx, event, routing, provider)
}

func (e *Executor) executeCoding(ctx context.Context, event *models.Event, provider models.Provider) (string, error) {
	output, err := e.coding.Run(ctx, provider, "implementer", codingPrompt(event), []string{"file_edit", "shell"})
	if err != nil {
		return "", providerFailure(err)
	}

	e.storeInteraction(event, output)
	return output, nil
}

func (e *Executor) executeChat(ctx context.Context, event *models.Event, routing models.RoutingDecision, provider models.Provider) (string, error) {
	messages := buildMessages(event, routing.UseCase, e.recallContext(event))

	var toolDefs []map[string]interface{}
	if provider.SupportsTool && routing.UseCase != models.UseCaseFast {
		toolDefs = defaultToolDefinitions
	}

	result, err := e.gateway.GenerateResponse(ctx, routing.Provider, messages, providers.GenerateOptions{
		Tools:       toolDefs,
		Temperature: e.temperature,
	})
	if err != nil {
		return "", providerFailure(err)
	}

	audioProduced := false
	if len(result.ToolCalls) > 0 {
		audioProduced = e.runToolCalls(ctx, event, result.ToolCalls)
	}

	// Spoken use cases get fallback speech when no tool already produced it
	if routing.UseCase.Spoken() && !audioProduced && result.Content != "" {
		e.speak(event, result.Content)
	}

	e.storeInteraction(event, result.Content)
	return result.Content, nil
}

// runToolCalls executes the provider's tool calls and reports whether any
// produced audio. Failures are logged and swallowed: the event degrades to
// a text-only response instead of failing.
func (e *Executor) runToolCalls(ctx context.Context, event *models.Event, calls []models.ToolCall) bool {
	toolCtx, cancel := context.WithTimeout(ctx, e.sidecarTimeout)
	defer cancel()

	results, err := e.tools.ExecuteToolCalls(toolCtx, calls)
	if err != nil {
		log.Printf("⚠️ [EXECUTOR] Tool execution failed for event %s (degrading to text): %v", event.ID, err)
		return false
	}

	audioProduced := false
	for callID, result := range results {
		if !result.Success {
			log.Printf("⚠️ [EXECUTOR] Tool call %s failed for event %s: %s", callID, event.ID, result.Content)
			continue
		}
		if result.ProducedAudio() {
			audioProduced = true
		}
	}
	return audioProduced
}

// speak synthesizes fallback speech. Best-effort only.
func (e *Executor) speak(event *models.Event, text string) {
	if e.audio == nil {
		return
	}

	audioCtx, cancel := context.WithTimeout(context.Background(), e.sidecarTimeout)
	defer cancel()

	result, err := e.audio.GenerateAudio(audioCtx, text, audio.VoiceConfig{VoiceID: e.defaultVoiceID})
	if err != nil {
		log.Printf("⚠️ [EXECUTOR] Fallback speech failed for event %s: %v", event.ID, err)
		return
	}
	if !result.Success {
		log.Printf("⚠️ [EXECUTOR] Synthesizer rejected speech for event %s: %s", event.ID, result.Message)
	}
}

// recallContext pulls related memories for the event's source. Best-effort.
func (e *Executor) recallContext(event *models.Event) []string {
	if e.memory == nil || event.Message() == "" {
		return nil
	}

	recallCtx, cancel := context.WithTimeout(context.Background(), e.sidecarTimeout)
	defer cancel()

	memories, err := e.memory.Recall(recallCtx, event.Source, event.Message(), 3)
	if err != nil {
		log.Printf("⚠️ [EXECUTOR] Memory recall failed for event %s: %v", event.ID, err)
		return nil
	}

	contents := make([]string, 0, len(memories))
	for _, m := range memories {
		contents = append(contents, m.Content)
	}
	return contents
}

// storeInteraction embeds the input/output pair into memory. Best-effort.
func (e *Executor) storeInteraction(event *models.Event, response string) {
	if e.memory == nil || response == "" {
		return
	}

	embedCtx, cancel := context.WithTimeout(context.Background(), e.sidecarTimeout)
	defer cancel()

	content := fmt.Sprintf("Input: %s\nResponse: %s", userContent(event), response)
	if err := e.memory.Embed(embedCtx, content, event.Source, map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	}); err != nil {
		log.Printf("⚠️ [EXECUTOR] Memory store failed for event %s: %v", event.ID, err)
	}
}
