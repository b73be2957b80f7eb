// Package notice models the user-facing notifications the core surfaces:
// counterpart transitions, write failures, and race outcomes. Every failure
// in the core degrades to a dismissible or retryable notice, never a crash.
package notice

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Type is the display severity of a notice.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeError   Type = "error"
)

var (
	ErrClientNotFound = errors.New("event client not found")
	ErrChannelFull    = errors.New("event client channel full")
)

// Notice is one user-facing notification.
type Notice struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// New builds a notice.
func New(typ Type, title, body string) *Notice {
	return &Notice{
		ID:        uuid.NewString(),
		Type:      typ,
		Title:     title,
		Body:      body,
		Timestamp: time.Now().UTC(),
	}
}

// WithPayload attaches structured data to the notice.
func (n *Notice) WithPayload(v any) *Notice {
	data, err := json.Marshal(v)
	if err == nil {
		n.Payload = data
	}
	return n
}

// Hub fans notices out to connected session clients.
type Hub interface {
	Register(client *Client)
	Unregister(clientID string)
	SendToSession(sessionKey string, n *Notice) error
	BroadcastToIdentity(identity string, n *Notice)
}

// Client is one live event stream consumer, keyed by the session it follows.
type Client struct {
	ClientID    string
	SessionKey  string
	Identity    string
	ConnectedAt time.Time
	NoticeChan  chan *Notice
}

// NewClient creates a client with a buffered notice channel.
func NewClient(sessionKey, identity string) *Client {
	return &Client{
		ClientID:    uuid.NewString(),
		SessionKey:  sessionKey,
		Identity:    identity,
		ConnectedAt: time.Now().UTC(),
		NoticeChan:  make(chan *Notice, 100),
	}
}

// Close closes the client's notice channel.
func (c *Client) Close() {
	close(c.NoticeChan)
}
