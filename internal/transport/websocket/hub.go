// Package websocket
package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"

	"cpumon/internal/core/event"
	"cpumon/internal/domain"
	"cpumon/internal/logger"
)

const EventSampleRecorded = "sample.recorded"

// Message is the frame pushed to browsers.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

type Hub struct {
	clients map[*Client]bool
	count   atomic.Int64

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	log logger.Logger
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		clients: make(map[*Client]bool),

		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 100),
		done:       make(chan struct{}),

		log: log,
	}
}

// Register forwards every SampleRecorded event on bus to connected clients.
func (h *Hub) Register(bus *event.Bus) {
	bus.Subscribe(domain.SampleRecorded{}, func(e any) {
		ev, ok := e.(domain.SampleRecorded)
		if !ok {
			return
		}
		h.Broadcast(&Message{Event: EventSampleRecorded, Payload: ev.Sample})
	})
}

// Run owns the client set until ctx is canceled. It always returns nil.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.log.Info("ws: hub shutting down")
			close(h.done)
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.count.Store(0)
			return nil

		case client := <-h.register:
			h.clients[client] = true
			h.count.Store(int64(len(h.clients)))
			h.log.Info("ws: client registered", "id", client.ID, "total_clients", len(h.clients))

		case client := <-h.unregister:
			if !h.clients[client] {
				continue
			}

			delete(h.clients, client)
			close(client.send)
			h.count.Store(int64(len(h.clients)))
			h.log.Info("ws: client unregistered", "id", client.ID, "total_clients", len(h.clients))

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Warn("ws: client channel full, dropping event", "id", client.ID)
				}
			}
		}
	}
}

// Broadcast never blocks the publisher; when the hub is saturated the
// message is dropped.
func (h *Hub) Broadcast(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("ws: failed to marshal event", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("ws: broadcast queue full, dropping event", "event", msg.Event)
	}
}

func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}
