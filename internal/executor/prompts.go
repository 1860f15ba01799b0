package executor

import (
	"fmt"
	"strings"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// systemPrompts gives each use case its persona and constraints.
var systemPrompts = map[models.UseCase]string{
	models.UseCaseChat: "You are a live streaming assistant responding to chat. " +
		"Keep replies short, energetic and conversational. Never exceed two sentences unless asked.",
	models.UseCaseTools: "You are a streaming assistant with tools for avatar control, browser actions " +
		"and speech. Prefer calling a tool over describing what you would do.",
	models.UseCaseSocial: "You are a streaming assistant replying on social platforms. " +
		"Be witty and brief; match the platform's tone.",
	models.UseCaseFast: "You are a background assistant. Answer directly and concisely.",
	models.UseCaseCoding: "You are a coding agent working on the stream's codebase. " +
		"Narrate decisions briefly and produce working code.",
}

// buildMessages assembles the provider conversation for an event: system
// prompt for the use case, recalled memory context when available, and the
// user content from the event payload.
func buildMessages(event *models.Event, useCase models.UseCase, memories []string) []models.ChatMessage {
	system := systemPrompts[useCase]
	if system == "" {
		system = systemPrompts[models.UseCaseFast]
	}

	if len(memories) > 0 {
		system += "\n\nRelevant context from memory:\n- " + strings.Join(memories, "\n- ")
	}

	return []models.ChatMessage{
		{Role: "system", Content: system},
		{Role: "user", Content: userContent(event)},
	}
}

// userContent renders the event payload as the user turn.
func userContent(event *models.Event) string {
	msg := event.Message()
	user := event.User()

	switch {
	case msg != "" && user != "":
		return fmt.Sprintf("[%s] %s: %s", event.Source, user, msg)
	case msg != "":
		return fmt.Sprintf("[%s] %s", event.Source, msg)
	default:
		return fmt.Sprintf("[%s] %s event received", event.Source, event.Type)
	}
}

// codingPrompt renders the event as a task description for the coding agent.
func codingPrompt(event *models.Event) string {
	var b strings.Builder
	b.WriteString("Task from ")
	b.WriteString(event.Source)
	b.WriteString(":\n")
	if msg := event.Message(); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString(event.Type)
	}
	if event.Priority == models.PriorityCritical || event.Priority == models.PriorityHigh {
		b.WriteString("\n\nThis is urgent; prioritize a minimal working change.")
	}
	return b.String()
}
