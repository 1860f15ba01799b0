package services

import (
	"log"
	"sync"

	"github.com/mrrustybutter/orchestrator/internal/models"
)

// maxPendingNotifications is the maximum number of terminal notifications
// buffered while no subscriber is connected.
const maxPendingNotifications = 50

// bufferedTypes are the notification types worth keeping for subscribers
// that reconnect later. Transient transitions are not buffered.
var bufferedTypes = map[string]bool{
	"processed": true,
	"failed":    true,
}

// StatusBus is an in-memory pub/sub for event status-change notifications.
// It decouples queue processing from any transport — the scheduler publishes
// here and WebSocket clients (or a Redis mirror) subscribe. Terminal
// notifications are buffered while nobody is connected so a dashboard that
// reconnects can catch up.
type StatusBus struct {
	mu          sync.RWMutex
	subscribers map[string]chan models.StatusEvent // subID -> chan
	pending     []models.StatusEvent
}

// NewStatusBus creates a new status bus
func NewStatusBus() *StatusBus {
	return &StatusBus{
		subscribers: make(map[string]chan models.StatusEvent),
	}
}

// Subscribe creates a new notification channel. Returns a receive-only
// channel; call DrainPending separately to collect missed notifications.
func (b *StatusBus) Subscribe(subID string, bufSize int) <-chan models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.StatusEvent, bufSize)
	b.subscribers[subID] = ch

	log.Printf("[STATUS-BUS] Subscribe: %s (total=%d)", subID, len(b.subscribers))
	return ch
}

// Unsubscribe removes a subscription. The channel is NOT closed — the
// subscriber's goroutine should exit via its own done signal.
func (b *StatusBus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, subID)
	log.Printf("[STATUS-BUS] Unsubscribe: %s (remaining=%d)", subID, len(b.subscribers))
}

// Publish sends a notification to all subscribers. Non-blocking — a full
// subscriber channel drops the notification for that subscriber. Terminal
// notifications with no listener are buffered for later drain.
func (b *StatusBus) Publish(event models.StatusEvent) {
	b.mu.RLock()
	delivered := false
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
			delivered = true
		default:
			// subscriber is full, skip
		}
	}
	hasSubscribers := len(b.subscribers) > 0
	b.mu.RUnlock()

	if (!hasSubscribers || !delivered) && bufferedTypes[event.Type] {
		b.buffer(event)
	}
}

// DrainPending returns and clears the buffered notifications.
func (b *StatusBus) DrainPending() []models.StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.pending
	b.pending = nil

	if len(events) > 0 {
		log.Printf("[STATUS-BUS] Drained %d pending notifications", len(events))
	}
	return events
}

// SubscriberCount returns the number of active subscribers
func (b *StatusBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// PendingCount returns the number of buffered notifications
func (b *StatusBus) PendingCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.pending)
}

func (b *StatusBus) buffer(event models.StatusEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, event)
	if len(b.pending) > maxPendingNotifications {
		b.pending = b.pending[len(b.pending)-maxPendingNotifications:]
	}
}
