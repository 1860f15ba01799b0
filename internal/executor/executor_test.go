package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrrustybutter/orchestrator/internal/audio"
	"github.com/mrrustybutter/orchestrator/internal/memory"
	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/providers"
	"github.com/mrrustybutter/orchestrator/internal/tools"
)

type fakeGateway struct {
	result   *models.ChatResult
	err      error
	lastOpts providers.GenerateOptions
	lastMsgs []models.ChatMessage
	calls    int
}

func (g *fakeGateway) GenerateResponse(ctx context.Context, provider string, messages []models.ChatMessage, opts providers.GenerateOptions) (*models.ChatResult, error) {
	g.calls++
	g.lastOpts = opts
	g.lastMsgs = messages
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type fakeCoding struct {
	output string
	err    error
	calls  int
}

func (c *fakeCoding) Run(ctx context.Context, provider models.Provider, role, prompt string, requiredTools []string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.output, nil
}

type fakeTools struct {
	results map[string]tools.Result
	err     error
	calls   int
}

func (t *fakeTools) ExecuteToolCalls(ctx context.Context, calls []models.ToolCall) (map[string]tools.Result, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.results, nil
}

type fakeMemory struct {
	recalled  []memory.Recalled
	recallErr error
	embedded  []string
	embedErr  error
}

func (m *fakeMemory) Recall(ctx context.Context, bank, query string, limit int) ([]memory.Recalled, error) {
	if m.recallErr != nil {
		return nil, m.recallErr
	}
	return m.recalled, nil
}

func (m *fakeMemory) Embed(ctx context.Context, content, bank string, metadata map[string]interface{}) error {
	m.embedded = append(m.embedded, content)
	return m.embedErr
}

type fakeAudio struct {
	result *audio.GenerateResult
	err    error
	spoken []string
}

func (a *fakeAudio) GenerateAudio(ctx context.Context, text string, cfg audio.VoiceConfig) (*audio.GenerateResult, error) {
	a.spoken = append(a.spoken, text)
	if a.err != nil {
		return nil, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &audio.GenerateResult{Success: true}, nil
}

func lookupFor(providerList ...models.Provider) ProviderLookup {
	byName := make(map[string]models.Provider)
	for _, p := range providerList {
		byName[p.Name] = p
	}
	return func(name string) (models.Provider, bool) {
		p, ok := byName[name]
		return p, ok
	}
}

func chatProvider(name string, supportsTools bool) models.Provider {
	return models.Provider{
		Name:         name,
		Type:         models.ProviderTypeChat,
		BaseURL:      "https://api.test/v1",
		APIKey:       "key",
		Model:        "test-model",
		SupportsTool: supportsTools,
	}
}

func codingProvider(name string) models.Provider {
	return models.Provider{
		Name:    name,
		Type:    models.ProviderTypeCoding,
		Command: "agent",
	}
}

func chatEvent(message string) *models.Event {
	return &models.Event{
		ID:        "evt-1",
		Type:      "chat_message",
		Source:    "discord",
		Priority:  models.PriorityMedium,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"message": message, "user": "viewer42"},
	}
}

func TestExecuteChatHappyPath(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "hello viewer"}}
	mem := &fakeMemory{}
	exec := New(Options{
		Gateway: gateway,
		Memory:  mem,
		Lookup:  lookupFor(chatProvider("openai", false)),
	})

	response, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseFast,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if response != "hello viewer" {
		t.Errorf("Expected provider content, got %q", response)
	}
	if len(mem.embedded) != 1 {
		t.Errorf("Expected interaction stored in memory, got %d embeds", len(mem.embedded))
	}
}

func TestExecuteUnknownProvider(t *testing.T) {
	exec := New(Options{
		Gateway: &fakeGateway{},
		Lookup:  lookupFor(),
	})

	_, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "ghost", UseCase: models.UseCaseChat,
	})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Kind != KindInternal {
		t.Errorf("Expected internal TaskError, got %v", err)
	}
}

func TestExecuteProviderFailure(t *testing.T) {
	gateway := &fakeGateway{err: errors.New("connection refused")}
	exec := New(Options{
		Gateway: gateway,
		Lookup:  lookupFor(chatProvider("openai", false)),
	})

	_, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Kind != KindProviderFailure {
		t.Errorf("Expected provider failure, got %v", err)
	}
}

func TestToolsOfferedOnlyToCapableProviders(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "ok"}}
	exec := New(Options{
		Gateway: gateway,
		Lookup:  lookupFor(chatProvider("openai", true), chatProvider("groq", false)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(gateway.lastOpts.Tools) == 0 {
		t.Error("Expected tool definitions for a tool-capable provider")
	}

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "groq", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(gateway.lastOpts.Tools) != 0 {
		t.Error("Expected no tool definitions for a provider without tool support")
	}
}

func TestFastPathSkipsTools(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "ok"}}
	exec := New(Options{
		Gateway: gateway,
		Lookup:  lookupFor(chatProvider("openai", true)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseFast,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(gateway.lastOpts.Tools) != 0 {
		t.Error("Fast path should not offer tools")
	}
}

func TestToolFailureDegradesToText(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{
		Content: "doing it",
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Type: "function"},
		},
	}}
	toolExec := &fakeTools{err: errors.New("tool server down")}
	exec := New(Options{
		Gateway: gateway,
		Tools:   toolExec,
		Lookup:  lookupFor(chatProvider("openai", true)),
	})

	response, err := exec.Execute(context.Background(), chatEvent("do something"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	})
	if err != nil {
		t.Fatalf("Tool failure should not fail the event: %v", err)
	}
	if response != "doing it" {
		t.Errorf("Expected text response preserved, got %q", response)
	}
	if toolExec.calls != 1 {
		t.Errorf("Expected one tool execution attempt, got %d", toolExec.calls)
	}
}

func TestFallbackSpeechWhenNoToolProducedAudio(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "hello chat"}}
	synth := &fakeAudio{}
	exec := New(Options{
		Gateway:        gateway,
		Audio:          synth,
		Lookup:         lookupFor(chatProvider("openai", false)),
		DefaultVoiceID: "rusty",
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(synth.spoken) != 1 || synth.spoken[0] != "hello chat" {
		t.Errorf("Expected fallback speech with response text, got %v", synth.spoken)
	}
}

func TestNoFallbackSpeechWhenToolSpoke(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{
		Content: "said it aloud",
		ToolCalls: []models.ToolCall{
			{ID: "call-1", Type: "function"},
		},
	}}
	toolExec := &fakeTools{results: map[string]tools.Result{
		"call-1": {CallID: "call-1", Success: true, SideEffects: []string{"audio_generated"}},
	}}
	synth := &fakeAudio{}
	exec := New(Options{
		Gateway: gateway,
		Tools:   toolExec,
		Audio:   synth,
		Lookup:  lookupFor(chatProvider("openai", true)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("say hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(synth.spoken) != 0 {
		t.Errorf("Expected no fallback speech after tool produced audio, got %v", synth.spoken)
	}
}

func TestNoSpeechOnNonSpokenUseCase(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "internal note"}}
	synth := &fakeAudio{}
	exec := New(Options{
		Gateway: gateway,
		Audio:   synth,
		Lookup:  lookupFor(chatProvider("groq", false)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "groq", UseCase: models.UseCaseFast,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(synth.spoken) != 0 {
		t.Errorf("Fast path should not synthesize speech, got %v", synth.spoken)
	}
}

func TestRecalledMemoriesEnterThePrompt(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "ok"}}
	mem := &fakeMemory{recalled: []memory.Recalled{
		{Content: "viewer42 likes Go"},
	}}
	exec := New(Options{
		Gateway: gateway,
		Memory:  mem,
		Lookup:  lookupFor(chatProvider("openai", false)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi again"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	found := false
	for _, msg := range gateway.lastMsgs {
		if strings.Contains(msg.Content, "viewer42 likes Go") {
			found = true
		}
	}
	if !found {
		t.Error("Expected recalled memory to appear in the prompt")
	}
}

func TestMemoryFailureDoesNotFailEvent(t *testing.T) {
	gateway := &fakeGateway{result: &models.ChatResult{Content: "ok"}}
	mem := &fakeMemory{recallErr: errors.New("memory down"), embedErr: errors.New("memory down")}
	exec := New(Options{
		Gateway: gateway,
		Memory:  mem,
		Lookup:  lookupFor(chatProvider("openai", false)),
	})

	if _, err := exec.Execute(context.Background(), chatEvent("hi"), models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseChat,
	}); err != nil {
		t.Fatalf("Memory failure should not fail the event: %v", err)
	}
}

func TestCodingProviderUsesAgentBackend(t *testing.T) {
	coding := &fakeCoding{output: "patch applied"}
	gateway := &fakeGateway{result: &models.ChatResult{Content: "should not be used"}}
	exec := New(Options{
		Gateway: gateway,
		Coding:  coding,
		Lookup:  lookupFor(codingProvider("claude")),
	})

	event := chatEvent("fix the bug")
	event.Type = "code_request"
	response, err := exec.Execute(context.Background(), event, models.RoutingDecision{
		Provider: "claude", UseCase: models.UseCaseCoding,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if response != "patch applied" {
		t.Errorf("Expected coding agent output, got %q", response)
	}
	if coding.calls != 1 {
		t.Errorf("Expected one coding run, got %d", coding.calls)
	}
	if gateway.calls != 0 {
		t.Errorf("Coding provider should bypass the chat gateway, got %d calls", gateway.calls)
	}
}

func TestCodingUseCaseOnChatProviderUsesGateway(t *testing.T) {
	coding := &fakeCoding{output: "unused"}
	gateway := &fakeGateway{result: &models.ChatResult{Content: "here is the fix"}}
	exec := New(Options{
		Gateway: gateway,
		Coding:  coding,
		Lookup:  lookupFor(chatProvider("openai", true)),
	})

	event := chatEvent("fix the bug")
	event.Type = "code_request"
	response, err := exec.Execute(context.Background(), event, models.RoutingDecision{
		Provider: "openai", UseCase: models.UseCaseCoding,
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if response != "here is the fix" {
		t.Errorf("Expected chat fallback output, got %q", response)
	}
	if coding.calls != 0 {
		t.Errorf("Chat provider should not invoke the coding agent, got %d calls", coding.calls)
	}
}

func TestCodingAgentFailure(t *testing.T) {
	coding := &fakeCoding{err: errors.New("agent crashed")}
	exec := New(Options{
		Coding: coding,
		Lookup: lookupFor(codingProvider("claude")),
	})

	event := chatEvent("fix it")
	event.Type = "code_request"
	_, err := exec.Execute(context.Background(), event, models.RoutingDecision{
		Provider: "claude", UseCase: models.UseCaseCoding,
	})
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Kind != KindProviderFailure {
		t.Errorf("Expected provider failure from coding agent, got %v", err)
	}
}
