// Package sse fans user-facing notices out to connected event-stream
// clients. One client follows one session; several clients may follow
// sessions of the same identity (multiple tabs, devices).
package sse

import (
	"sync"

	"github.com/fieldmatch/fieldmatch/internal/domain/notice"
)

// Hub implements notice.Hub.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*notice.Client
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]*notice.Client)}
}

func (h *Hub) Register(client *notice.Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ClientID] = client
}

func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.Close()
		delete(h.clients, clientID)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SendToSession delivers a notice to every client following the session.
func (h *Hub) SendToSession(sessionKey string, n *notice.Notice) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := false
	for _, c := range h.clients {
		if c.SessionKey != sessionKey {
			continue
		}
		if !trySend(c, n) {
			return notice.ErrChannelFull
		}
		sent = true
	}
	if !sent {
		return notice.ErrClientNotFound
	}
	return nil
}

// BroadcastToIdentity delivers a notice to every session of an identity.
func (h *Hub) BroadcastToIdentity(identity string, n *notice.Notice) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.Identity == identity {
			trySend(c, n)
		}
	}
}

func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.Close()
		delete(h.clients, id)
	}
}

func trySend(c *notice.Client, n *notice.Notice) bool {
	select {
	case c.NoticeChan <- n:
		return true
	default:
		return false
	}
}
