package handlers

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"

	"github.com/mrrustybutter/orchestrator/internal/services"
)

// WebSocketHandler streams event status changes to connected clients
type WebSocketHandler struct {
	bus *services.StatusBus
}

// NewWebSocketHandler creates a websocket status handler
func NewWebSocketHandler(bus *services.StatusBus) *WebSocketHandler {
	return &WebSocketHandler{bus: bus}
}

// Handle upgrades the connection and forwards status events until the client disconnects
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	subID := "ws-" + uuid.New().String()
	events := h.bus.Subscribe(subID, 64)
	defer h.bus.Unsubscribe(subID)

	log.Printf("🔌 [WS] Client connected: %s", subID)

	// Deliver anything that happened before the first subscriber arrived
	if missed := h.bus.DrainPending(); len(missed) > 0 {
		payload, err := json.Marshal(map[string]any{
			"type":   "missed_updates",
			"events": missed,
		})
		if err == nil {
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("⚠️ [WS] Failed to send missed updates to %s: %v", subID, err)
				return
			}
		}
	}

	done := make(chan struct{})

	// Reader loop: we ignore client messages but need the read pump
	// to detect disconnects
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("🔌 [WS] Client disconnected: %s", subID)
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			log.Printf("🔌 [WS] Client disconnected: %s", subID)
			return
		}
	}
}
