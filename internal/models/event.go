package models

import "time"

// Priority orders how urgently an event should be handled. It is advisory:
// it influences provider selection, not queue ordering.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank returns the priority as an ordered integer (low < medium < high < critical).
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// EventStatus is the lifecycle state of an event.
// Transitions only move forward: pending -> processing -> completed|error.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusProcessing EventStatus = "processing"
	StatusCompleted  EventStatus = "completed"
	StatusError      EventStatus = "error"
)

// Terminal reports whether the status is a final state.
func (s EventStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Event is the unit of work flowing through the orchestrator.
// Core fields (ID, Type, Source, Priority, Timestamp, Data, Context) are
// immutable after ingestion; only the processing fields are mutated, and
// only by the scheduler task that owns the event.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Priority  Priority               `json:"priority"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Context   map[string]interface{} `json:"context,omitempty"`

	// Processing fields, owned by the scheduler.
	Status      EventStatus `json:"status"`
	Response    string      `json:"response,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"started_at,omitempty"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
	DurationMs  int64       `json:"duration_ms,omitempty"`
	Provider    string      `json:"provider,omitempty"`
	UseCase     UseCase     `json:"use_case,omitempty"`
}

// Message returns the "message" field of the event payload, if present.
func (e *Event) Message() string {
	if e.Data == nil {
		return ""
	}
	if msg, ok := e.Data["message"].(string); ok {
		return msg
	}
	return ""
}

// User returns the "user" field of the event payload, if present.
func (e *Event) User() string {
	if e.Data == nil {
		return ""
	}
	if user, ok := e.Data["user"].(string); ok {
		return user
	}
	return ""
}

// UseCase tags an event with the kind of handling it needs. It decides both
// which provider family answers it and which queue runs it.
type UseCase string

const (
	UseCaseCoding UseCase = "coding"
	UseCaseChat   UseCase = "chat"
	UseCaseTools  UseCase = "tools"
	UseCaseSocial UseCase = "social"
	UseCaseFast   UseCase = "fast"
)

// Spoken reports whether this use case produces audible output and therefore
// belongs on the serialized voice queue.
func (u UseCase) Spoken() bool {
	return u == UseCaseChat || u == UseCaseTools || u == UseCaseSocial
}

// RoutingDecision is the router's verdict for one event.
type RoutingDecision struct {
	Provider string  `json:"provider"`
	UseCase  UseCase `json:"use_case"`
}

// IngestRequest is the payload accepted by POST /api/events.
type IngestRequest struct {
	ID       string                 `json:"id,omitempty"`
	Source   string                 `json:"source"`
	Type     string                 `json:"type"`
	Priority Priority               `json:"priority,omitempty"`
	Data     map[string]interface{} `json:"data"`
	Context  map[string]interface{} `json:"context,omitempty"`
}

// IngestResponse is returned after an event is accepted.
type IngestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// StatusResponse is the orchestrator-wide status snapshot.
type StatusResponse struct {
	QueueSize          int      `json:"queueSize"`
	QueuePending       int      `json:"queuePending"`
	VoiceQueueSize     int      `json:"voiceQueueSize"`
	VoiceQueuePending  int      `json:"voiceQueuePending"`
	EventHistorySize   int      `json:"eventHistorySize"`
	AvailableProviders []string `json:"availableProviders"`
}

// StatusEvent is a status-change notification published on the status bus
// whenever an event transitions state.
type StatusEvent struct {
	Type      string      `json:"type"` // "queued", "processing", "processed", "failed"
	EventID   string      `json:"event_id"`
	Status    EventStatus `json:"status"`
	UseCase   UseCase     `json:"use_case,omitempty"`
	Provider  string      `json:"provider,omitempty"`
	Response  string      `json:"response,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
