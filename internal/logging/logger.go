package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithEvent returns a logger with event context fields attached.
// Use this for all logging within one event's processing.
func WithEvent(eventID, eventType, source string) *slog.Logger {
	return slog.With(
		"event_id", eventID,
		"event_type", eventType,
		"source", source,
	)
}

// WithTask returns a logger scoped to a queue task within an event.
func WithTask(logger *slog.Logger, queue, useCase, provider string) *slog.Logger {
	return logger.With(
		"queue", queue,
		"use_case", useCase,
		"provider", provider,
	)
}
