// Package events pushes chat view changes to local UIs over websockets.
// A UI re-reads the control API for the room named in each update.
package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// Update says which part of the view changed. RoomID 0 means the room list.
type Update struct {
	RoomID int64     `json:"roomId"`
	State  string    `json:"state,omitempty"`
	At     time.Time `json:"at"`
}

// Client is one listening UI.
type Client interface {
	GetClientID() string
	// GetSendChannel returns the channel the hub delivers updates on.
	GetSendChannel() chan<- Update
	// Run starts the client's pumps.
	Run()
	// Close shuts the client down. The hub calls it exactly once.
	Close()
}

type Hub struct {
	RegisterCh   chan Client
	UnregisterCh chan Client

	mu      sync.Mutex
	clients map[string]Client

	broadcastCh chan Update
	done        chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		clients:      make(map[string]Client),
		broadcastCh:  make(chan Update, 64),
		done:         make(chan struct{}),
	}
}

// Publish queues an update for every client. It never blocks; when the
// queue is full the update is dropped.
func (h *Hub) Publish(u Update) {
	select {
	case h.broadcastCh <- u:
	default:
		log.Printf("WARNING: Event queue full, dropping update for room %d", u.RoomID)
	}
}

// Count returns the number of registered clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Run owns the client set until ctx ends, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.RegisterCh:
			h.mu.Lock()
			h.clients[client.GetClientID()] = client
			h.mu.Unlock()
			client.Run()

		case client := <-h.UnregisterCh:
			h.remove(client.GetClientID())

		case u := <-h.broadcastCh:
			for _, id := range h.ids() {
				h.mu.Lock()
				client, ok := h.clients[id]
				h.mu.Unlock()
				if !ok {
					continue
				}
				select {
				case client.GetSendChannel() <- u:
				default:
					log.Printf("WARNING: Event client %s is too slow, disconnecting", id)
					h.remove(id)
				}
			}

		case <-ctx.Done():
			for _, id := range h.ids() {
				h.remove(id)
			}
			return
		}
	}
}

func (h *Hub) ids() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.clients))
	for id := range h.clients {
		out = append(out, id)
	}
	return out
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	delete(h.clients, id)
	h.mu.Unlock()
	if ok {
		client.Close()
	}
}
