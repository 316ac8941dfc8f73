// Package realtime fans newly available or newly ingested parking spots
// out to websocket subscribers, replacing the channel-group broadcast of
// the previous stack with an in-process hub.
package realtime

import (
	"encoding/json"
	"sync"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/models"
	"github.com/gofiber/websocket/v2"
)

// spotUpdate is the wire shape of one live update.
type spotUpdate struct {
	Type string         `json:"type"`
	Data spotUpdateData `json:"data"`
}

type spotUpdateData struct {
	ID          uint    `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	IsAvailable bool    `json:"is_available"`
}

// Hub tracks websocket subscribers and broadcasts spot updates to all of
// them. Slow or dead clients are dropped, never waited on.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]chan []byte
	broadcast chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[*websocket.Conn]chan []byte),
		broadcast: make(chan []byte, 64),
	}
}

// Run pumps broadcast messages to subscribers; call once at bootstrap.
func (h *Hub) Run() {
	for msg := range h.broadcast {
		h.mu.RLock()
		for conn, out := range h.clients {
			select {
			case out <- msg:
			default:
				// Client not keeping up; drop the message for it
				_ = conn
			}
		}
		h.mu.RUnlock()
	}
}

// BroadcastSpot queues a parking_update event for all subscribers.
// Best effort: when the broadcast buffer is full the update is dropped.
func (h *Hub) BroadcastSpot(spot models.ParkingSpot) {
	msg, err := json.Marshal(spotUpdate{
		Type: "parking_update",
		Data: spotUpdateData{
			ID:          spot.ID,
			Name:        spot.Name,
			Latitude:    spot.Latitude,
			Longitude:   spot.Longitude,
			IsAvailable: spot.IsAvailable,
		},
	})
	if err != nil {
		logger.GetLogger("realtime").Warnf("Failed to marshal spot update: %v", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		logger.GetLogger("realtime").Warn("Broadcast buffer full, dropping spot update")
	}
}

// Handler serves one websocket subscriber until it disconnects.
func (h *Hub) Handler() func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		log := logger.GetLogger("realtime")

		out := make(chan []byte, 16)
		h.mu.Lock()
		h.clients[conn] = out
		h.mu.Unlock()
		log.Infof("Subscriber connected (%d total)", h.subscriberCount())

		defer func() {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			close(out)
			log.Infof("Subscriber disconnected (%d total)", h.subscriberCount())
		}()

		done := make(chan struct{})
		go func() {
			defer close(done)
			// Drain reads so close frames and pings are processed
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case msg := <-out:
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}
	}
}

func (h *Hub) subscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
