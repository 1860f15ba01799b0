package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

type fakeArchive struct {
	mu     sync.Mutex
	events map[string]*models.Event
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{events: make(map[string]*models.Event)}
}

func (a *fakeArchive) Save(event *models.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	snapshot := *event
	a.events[event.ID] = &snapshot
	return nil
}

func (a *fakeArchive) Get(id string) (*models.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if event, ok := a.events[id]; ok {
		snapshot := *event
		return &snapshot, nil
	}
	return nil, nil
}

func staticRoute(provider string, useCase models.UseCase) RouteFunc {
	return func(event *models.Event) models.RoutingDecision {
		return models.RoutingDecision{Provider: provider, UseCase: useCase}
	}
}

func testEvent(id string) *models.Event {
	return &models.Event{
		ID:        id,
		Type:      "chat_message",
		Source:    "discord",
		Priority:  models.PriorityMedium,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"message": "hello"},
	}
}

func waitForStatus(t *testing.T, sched *Scheduler, id string, want models.EventStatus) *models.Event {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if event, ok := sched.Get(id); ok && event.Status == want {
			return event
		}
		time.Sleep(5 * time.Millisecond)
	}
	event, _ := sched.Get(id)
	t.Fatalf("Event %s never reached status %s (last seen: %+v)", id, want, event)
	return nil
}

func TestQueueEventAssignsID(t *testing.T) {
	sched := New(Options{
		Route:   staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) { return "ok", nil },
	})

	event := testEvent("")
	if _, err := sched.QueueEvent(event); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	if event.ID == "" {
		t.Error("Expected an id to be assigned")
	}
}

func TestQueueEventLifecycle(t *testing.T) {
	sched := New(Options{
		Route: staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			return "the answer", nil
		},
	})

	routing, err := sched.QueueEvent(testEvent("evt-1"))
	if err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	if routing.Provider != "openai" {
		t.Errorf("Expected openai routing, got %s", routing.Provider)
	}

	event := waitForStatus(t, sched, "evt-1", models.StatusCompleted)
	if event.Response != "the answer" {
		t.Errorf("Expected response to be recorded, got %q", event.Response)
	}
	if event.Provider != "openai" {
		t.Errorf("Expected provider openai, got %s", event.Provider)
	}
	if event.CompletedAt.IsZero() {
		t.Error("Expected CompletedAt to be set")
	}
	if event.CompletedAt.Before(event.StartedAt) {
		t.Error("CompletedAt precedes StartedAt")
	}
}

func TestQueueEventDuplicateRejected(t *testing.T) {
	block := make(chan struct{})
	sched := New(Options{
		Route: staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			<-block
			return "ok", nil
		},
	})
	defer close(block)

	if _, err := sched.QueueEvent(testEvent("dup-1")); err != nil {
		t.Fatalf("First QueueEvent failed: %v", err)
	}
	_, err := sched.QueueEvent(testEvent("dup-1"))
	if !errors.Is(err, ErrDuplicateEvent) {
		t.Errorf("Expected ErrDuplicateEvent, got %v", err)
	}
}

func TestFailedEventRecordsError(t *testing.T) {
	sched := New(Options{
		Route: staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			return "", errors.New("provider exploded")
		},
	})

	if _, err := sched.QueueEvent(testEvent("fail-1")); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}

	event := waitForStatus(t, sched, "fail-1", models.StatusError)
	if event.Error != "provider exploded" {
		t.Errorf("Expected error message recorded, got %q", event.Error)
	}
	if event.Response != "" {
		t.Errorf("Failed event should have no response, got %q", event.Response)
	}
}

func TestPanicBecomesError(t *testing.T) {
	sched := New(Options{
		Route: staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			panic("executor bug")
		},
	})

	if _, err := sched.QueueEvent(testEvent("panic-1")); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}

	event := waitForStatus(t, sched, "panic-1", models.StatusError)
	if event.Error == "" {
		t.Error("Expected panic to be recorded as an error")
	}

	// The slot must be free for the next event
	if _, err := sched.QueueEvent(testEvent("panic-2")); err != nil {
		t.Fatalf("QueueEvent after panic failed: %v", err)
	}
	waitForStatus(t, sched, "panic-2", models.StatusError)
}

func TestFailureDoesNotAffectOtherEvents(t *testing.T) {
	sched := New(Options{
		QueueConcurrency: 2,
		Route:            staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			if e.ID == "bad" {
				return "", errors.New("boom")
			}
			return "fine", nil
		},
	})

	for _, id := range []string{"bad", "good-1", "good-2"} {
		if _, err := sched.QueueEvent(testEvent(id)); err != nil {
			t.Fatalf("QueueEvent(%s) failed: %v", id, err)
		}
	}

	waitForStatus(t, sched, "bad", models.StatusError)
	waitForStatus(t, sched, "good-1", models.StatusCompleted)
	waitForStatus(t, sched, "good-2", models.StatusCompleted)
}

func TestVoiceQueueSerializes(t *testing.T) {
	var active, peak int64
	sched := New(Options{
		QueueConcurrency:      5,
		VoiceQueueConcurrency: 1,
		Route:                 staticRoute("openai", models.UseCaseChat),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
			return "spoken", nil
		},
	})

	for i := 0; i < 6; i++ {
		if _, err := sched.QueueEvent(testEvent(fmt.Sprintf("voice-%d", i))); err != nil {
			t.Fatalf("QueueEvent failed: %v", err)
		}
	}
	for i := 0; i < 6; i++ {
		waitForStatus(t, sched, fmt.Sprintf("voice-%d", i), models.StatusCompleted)
	}

	if got := atomic.LoadInt64(&peak); got != 1 {
		t.Errorf("Voice responses overlapped: peak concurrency %d", got)
	}
}

func TestSpokenUseCasesGoToVoiceQueue(t *testing.T) {
	block := make(chan struct{})
	sched := New(Options{
		VoiceQueueConcurrency: 1,
		Route:                 staticRoute("openai", models.UseCaseSocial),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			<-block
			return "ok", nil
		},
	})
	defer close(block)

	for i := 0; i < 3; i++ {
		if _, err := sched.QueueEvent(testEvent(fmt.Sprintf("social-%d", i))); err != nil {
			t.Fatalf("QueueEvent failed: %v", err)
		}
	}

	// One in flight, two waiting, general queue untouched
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sched.VoicePending() != 1 {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sched.VoicePending(); got != 1 {
		t.Errorf("Expected 1 in-flight voice task, got %d", got)
	}
	if got := sched.VoiceSize(); got != 2 {
		t.Errorf("Expected 2 waiting voice tasks, got %d", got)
	}
	if sched.GeneralSize() != 0 || sched.GeneralPending() != 0 {
		t.Error("Spoken events leaked onto the general queue")
	}
}

func TestStatusSnapshot(t *testing.T) {
	block := make(chan struct{})
	sched := New(Options{
		QueueConcurrency: 1,
		Route:            staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			<-block
			return "ok", nil
		},
	})
	defer close(block)

	for i := 0; i < 4; i++ {
		if _, err := sched.QueueEvent(testEvent(fmt.Sprintf("snap-%d", i))); err != nil {
			t.Fatalf("QueueEvent failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && sched.GeneralPending() != 1 {
		time.Sleep(5 * time.Millisecond)
	}

	status := sched.Status()
	if status.QueuePending != 1 {
		t.Errorf("Expected 1 pending, got %d", status.QueuePending)
	}
	if status.QueueSize != 3 {
		t.Errorf("Expected 3 waiting, got %d", status.QueueSize)
	}
	if status.EventHistorySize != 4 {
		t.Errorf("Expected history size 4, got %d", status.EventHistorySize)
	}
}

func TestEvictTerminalArchivesOldEvents(t *testing.T) {
	archive := newFakeArchive()
	sched := New(Options{
		Route:   staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) { return "ok", nil },
		Archive: archive,
	})

	if _, err := sched.QueueEvent(testEvent("old-1")); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	waitForStatus(t, sched, "old-1", models.StatusCompleted)

	// Nothing old enough yet
	if got := sched.EvictTerminal(time.Hour); got != 0 {
		t.Errorf("Expected 0 evictions for fresh event, got %d", got)
	}

	if got := sched.EvictTerminal(0); got != 1 {
		t.Errorf("Expected 1 eviction, got %d", got)
	}

	// Still reachable through the archive fallback
	event, ok := sched.Get("old-1")
	if !ok {
		t.Fatal("Evicted event not found via archive")
	}
	if event.Status != models.StatusCompleted {
		t.Errorf("Archived event lost its status: %s", event.Status)
	}

	if sched.Status().EventHistorySize != 0 {
		t.Error("Expected empty in-memory history after eviction")
	}
}

func TestEvictTerminalSkipsInFlight(t *testing.T) {
	block := make(chan struct{})
	sched := New(Options{
		Route: staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			<-block
			return "ok", nil
		},
		Archive: newFakeArchive(),
	})
	defer close(block)

	if _, err := sched.QueueEvent(testEvent("inflight-1")); err != nil {
		t.Fatalf("QueueEvent failed: %v", err)
	}
	waitForStatus(t, sched, "inflight-1", models.StatusProcessing)

	if got := sched.EvictTerminal(0); got != 0 {
		t.Errorf("Evicted an in-flight event: %d", got)
	}
}

func TestShutdownRejectsNewEvents(t *testing.T) {
	sched := New(Options{
		Route:   staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) { return "ok", nil },
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	_, err := sched.QueueEvent(testEvent("late-1"))
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("Expected ErrShutdown, got %v", err)
	}
}

func TestShutdownDrainsInFlight(t *testing.T) {
	var done int64
	sched := New(Options{
		QueueConcurrency: 2,
		Route:            staticRoute("openai", models.UseCaseFast),
		Execute: func(ctx context.Context, e *models.Event, r models.RoutingDecision) (string, error) {
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt64(&done, 1)
			return "ok", nil
		},
	})

	for i := 0; i < 4; i++ {
		if _, err := sched.QueueEvent(testEvent(fmt.Sprintf("drain-%d", i))); err != nil {
			t.Fatalf("QueueEvent failed: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := sched.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown did not drain: %v", err)
	}
	if got := atomic.LoadInt64(&done); got != 4 {
		t.Errorf("Expected all 4 tasks drained, got %d", got)
	}
}
