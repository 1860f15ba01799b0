package router

import (
	"strings"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// preferenceOrder lists providers per use case, most preferred first.
// Selection filters this against the currently available provider set.
var preferenceOrder = map[models.UseCase][]string{
	models.UseCaseCoding: {"claude", "openai", "grok"},
	models.UseCaseChat:   {"openai", "grok", "groq"},
	models.UseCaseTools:  {"openai", "grok", "groq"},
	models.UseCaseSocial: {"grok", "openai", "groq"},
	models.UseCaseFast:   {"groq", "cerebras", "openai"},
}

// codingTypes are event types handled by the coding-agent backend.
var codingTypes = map[string]bool{
	"code_request":  true,
	"coding_task":   true,
	"dev_task":      true,
	"build_request": true,
}

// socialSources are origin platforms whose messages get the social treatment.
var socialSources = map[string]bool{
	"twitter":  true,
	"x":        true,
	"mastodon": true,
	"bluesky":  true,
}

// Route maps an inbound event to a provider and use case. It is pure and
// total: given the same event and the same available-provider set it always
// returns the same decision, and it never fails — when nothing matches it
// falls back to the fast path.
func Route(event *models.Event, available []string) models.RoutingDecision {
	useCase := classify(event)
	return models.RoutingDecision{
		Provider: selectProvider(useCase, available),
		UseCase:  useCase,
	}
}

// classify determines the use case from the event's type, payload and source.
func classify(event *models.Event) models.UseCase {
	eventType := strings.ToLower(event.Type)

	if codingTypes[eventType] || strings.Contains(eventType, "coding") {
		return models.UseCaseCoding
	}

	// User-facing interaction: anything carrying a message, or tagged as chat
	if event.Message() != "" || strings.Contains(eventType, "chat") || strings.Contains(eventType, "mention") {
		source := strings.ToLower(event.Source)
		switch {
		case socialSources[source]:
			return models.UseCaseSocial
		case source == "tools" || strings.Contains(eventType, "tool"):
			return models.UseCaseTools
		default:
			return models.UseCaseChat
		}
	}

	return models.UseCaseFast
}

// selectProvider picks the first preferred provider that is available.
// Falls back to the first available provider, then to the head of the
// preference order so the decision is always non-empty.
func selectProvider(useCase models.UseCase, available []string) string {
	prefs := preferenceOrder[useCase]

	availSet := make(map[string]bool, len(available))
	for _, name := range available {
		availSet[name] = true
	}

	for _, name := range prefs {
		if availSet[name] {
			return name
		}
	}

	if len(available) > 0 {
		return available[0]
	}

	return prefs[0]
}
