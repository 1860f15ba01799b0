package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mrrustybutter/orchestrator/internal/logging"
	"github.com/mrrustybutter/orchestrator/internal/models"
	"github.com/mrrustybutter/orchestrator/internal/services"
)

// ErrDuplicateEvent is returned when an event id has already been queued.
// Re-submission of a known id is rejected for idempotency; callers wanting
// a retry must submit a fresh id.
var ErrDuplicateEvent = errors.New("event id already queued")

// ErrShutdown is returned when the scheduler is no longer accepting events
var ErrShutdown = errors.New("scheduler is shut down")

// ExecuteFunc processes one routed event and returns its textual response
type ExecuteFunc func(ctx context.Context, event *models.Event, routing models.RoutingDecision) (string, error)

// RouteFunc maps an event to a routing decision against current availability
type RouteFunc func(event *models.Event) models.RoutingDecision

// Archive persists terminal events evicted from the in-memory history
type Archive interface {
	Save(event *models.Event) error
	Get(id string) (*models.Event, error)
}

// Scheduler owns the two work queues and the event history. Construct one at
// process start and hand it to the HTTP layer — no ambient singletons.
type Scheduler struct {
	general *taskQueue
	voice   *taskQueue

	mu      sync.RWMutex
	history map[string]*models.Event

	route   RouteFunc
	execute ExecuteFunc
	bus     *services.StatusBus
	metrics *services.Metrics
	archive Archive // optional
}

// Options configures a Scheduler
type Options struct {
	QueueConcurrency      int
	VoiceQueueConcurrency int
	Route                 RouteFunc
	Execute               ExecuteFunc
	Bus                   *services.StatusBus
	Metrics               *services.Metrics
	Archive               Archive
}

// New creates a scheduler with its general and voice queues
func New(opts Options) *Scheduler {
	if opts.QueueConcurrency <= 0 {
		opts.QueueConcurrency = 5
	}
	if opts.VoiceQueueConcurrency <= 0 {
		opts.VoiceQueueConcurrency = 1
	}

	return &Scheduler{
		general: newTaskQueue("general", opts.QueueConcurrency),
		voice:   newTaskQueue("voice", opts.VoiceQueueConcurrency),
		history: make(map[string]*models.Event),
		route:   opts.Route,
		execute: opts.Execute,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		archive: opts.Archive,
	}
}

// QueueEvent records the event as pending, routes it, and submits it to the
// matching queue. Enqueue never blocks on execution: tasks beyond the
// concurrency limit wait in FIFO order inside the queue.
func (s *Scheduler) QueueEvent(event *models.Event) (models.RoutingDecision, error) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Priority == "" {
		event.Priority = models.PriorityMedium
	}

	routing := s.route(event)

	s.mu.Lock()
	if _, exists := s.history[event.ID]; exists {
		s.mu.Unlock()
		return routing, fmt.Errorf("%w: %s", ErrDuplicateEvent, event.ID)
	}
	event.Status = models.StatusPending
	event.Provider = routing.Provider
	event.UseCase = routing.UseCase
	s.history[event.ID] = event
	s.mu.Unlock()

	queue := s.general
	if routing.UseCase.Spoken() {
		queue = s.voice
	}

	if err := queue.Submit(func() { s.runTask(event.ID, routing) }); err != nil {
		s.mu.Lock()
		delete(s.history, event.ID)
		s.mu.Unlock()
		return routing, ErrShutdown
	}

	if s.metrics != nil {
		s.metrics.RecordEventQueued(string(routing.UseCase))
	}
	s.publish("queued", event.ID, models.StatusPending, routing, "", "")

	log.Printf("📥 [SCHEDULER] Queued event %s (%s/%s) on %s queue via %s",
		event.ID, event.Source, event.Type, queue.name, routing.Provider)
	return routing, nil
}

// runTask drives one event through processing to a terminal state. The
// queue slot is released when this returns, success or not.
func (s *Scheduler) runTask(eventID string, routing models.RoutingDecision) {
	event := s.markProcessing(eventID)
	if event == nil {
		return
	}
	queueName := "general"
	if routing.UseCase.Spoken() {
		queueName = "voice"
	}
	logger := logging.WithTask(logging.WithEvent(event.ID, event.Type, event.Source),
		queueName, string(routing.UseCase), routing.Provider)
	logger.Info("processing event")
	s.publish("processing", eventID, models.StatusProcessing, routing, "", "")

	start := time.Now()
	response, err := s.safeExecute(context.Background(), event, routing)
	duration := time.Since(start)

	if err != nil {
		s.markError(eventID, err.Error(), duration)
		if s.metrics != nil {
			s.metrics.RecordEventFailed(string(routing.UseCase))
		}
		s.publish("failed", eventID, models.StatusError, routing, "", err.Error())
		logger.Error("event failed", "duration", duration.Round(time.Millisecond), "error", err)
		return
	}

	s.markCompleted(eventID, response, duration)
	if s.metrics != nil {
		s.metrics.RecordEventProcessed(string(routing.UseCase), duration.Seconds())
	}
	s.publish("processed", eventID, models.StatusCompleted, routing, response, "")
	logger.Info("event completed", "duration", duration.Round(time.Millisecond))
}

// safeExecute runs the executor, converting a panic into an error so the
// event still reaches a terminal state and the slot is released normally.
func (s *Scheduler) safeExecute(ctx context.Context, event *models.Event, routing models.RoutingDecision) (response string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("internal error: %v", r)
		}
	}()
	return s.execute(ctx, event, routing)
}

// markProcessing transitions the event to processing. Returns a pointer to
// the stored event; the running task is its only writer from here on.
func (s *Scheduler) markProcessing(eventID string) *models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.history[eventID]
	if !ok || event.Status != models.StatusPending {
		return nil
	}
	event.Status = models.StatusProcessing
	event.StartedAt = time.Now()
	return event
}

func (s *Scheduler) markCompleted(eventID, response string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.history[eventID]
	if !ok || event.Status.Terminal() {
		return
	}
	event.Status = models.StatusCompleted
	event.Response = response
	event.CompletedAt = time.Now()
	event.DurationMs = duration.Milliseconds()
}

func (s *Scheduler) markError(eventID, errMsg string, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.history[eventID]
	if !ok || event.Status.Terminal() {
		return
	}
	event.Status = models.StatusError
	event.Error = errMsg
	event.CompletedAt = time.Now()
	event.DurationMs = duration.Milliseconds()
}

func (s *Scheduler) publish(notifType, eventID string, status models.EventStatus, routing models.RoutingDecision, response, errMsg string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(models.StatusEvent{
		Type:      notifType,
		EventID:   eventID,
		Status:    status,
		UseCase:   routing.UseCase,
		Provider:  routing.Provider,
		Response:  response,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// Get returns a copy of an event's current state, checking the in-memory
// history first and the archive for evicted terminal events.
func (s *Scheduler) Get(id string) (*models.Event, bool) {
	s.mu.RLock()
	event, ok := s.history[id]
	if ok {
		snapshot := *event
		s.mu.RUnlock()
		return &snapshot, true
	}
	s.mu.RUnlock()

	if s.archive != nil {
		if archived, err := s.archive.Get(id); err == nil && archived != nil {
			return archived, true
		}
	}
	return nil, false
}

// Status returns a snapshot of queue depths and history size without
// blocking either queue.
func (s *Scheduler) Status() models.StatusResponse {
	s.mu.RLock()
	historySize := len(s.history)
	s.mu.RUnlock()

	return models.StatusResponse{
		QueueSize:         s.general.Size(),
		QueuePending:      s.general.Pending(),
		VoiceQueueSize:    s.voice.Size(),
		VoiceQueuePending: s.voice.Pending(),
		EventHistorySize:  historySize,
	}
}

// GeneralSize returns the general queue's waiting count (services.QueueStats)
func (s *Scheduler) GeneralSize() int { return s.general.Size() }

// GeneralPending returns the general queue's in-flight count
func (s *Scheduler) GeneralPending() int { return s.general.Pending() }

// VoiceSize returns the voice queue's waiting count
func (s *Scheduler) VoiceSize() int { return s.voice.Size() }

// VoicePending returns the voice queue's in-flight count
func (s *Scheduler) VoicePending() int { return s.voice.Pending() }

// EvictTerminal archives and removes terminal events older than the cutoff.
// Returns the number evicted. In-flight events are never touched.
func (s *Scheduler) EvictTerminal(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)

	s.mu.Lock()
	var evictable []*models.Event
	for _, event := range s.history {
		if event.Status.Terminal() && !event.CompletedAt.IsZero() && event.CompletedAt.Before(cutoff) {
			evictable = append(evictable, event)
		}
	}
	s.mu.Unlock()

	evicted := 0
	for _, event := range evictable {
		if s.archive != nil {
			if err := s.archive.Save(event); err != nil {
				log.Printf("⚠️ [SCHEDULER] Failed to archive event %s: %v", event.ID, err)
				continue
			}
		}
		s.mu.Lock()
		delete(s.history, event.ID)
		s.mu.Unlock()
		evicted++
	}

	if evicted > 0 {
		log.Printf("🧹 [SCHEDULER] Evicted %d terminal events from history", evicted)
	}
	return evicted
}

// Shutdown stops accepting new events and waits for in-flight tasks to
// drain, up to the context deadline.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.general.Close()
	s.voice.Close()

	done := make(chan struct{})
	go func() {
		s.general.Wait()
		s.voice.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
