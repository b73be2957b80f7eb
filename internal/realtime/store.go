// Package realtime defines the shared realtime store the matching core is
// built on: a path-addressed key/value space with full-record replacing
// writes and prefix subscriptions that push full subtree snapshots. The
// store offers no transactions and no concurrency tokens; every write is
// unconditional last-write-wins.
package realtime

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	// PresencePrefix holds one record per live session.
	PresencePrefix = "presence/"
	// RequestPrefix holds one request slot per provider session key.
	RequestPrefix = "requests/"
)

// Snapshot is a full replacement view of one prefix subtree, keyed by the
// path suffix below the prefix. Delivery is at-least-once and unordered;
// consumers must treat each snapshot as authoritative-now, never as a diff.
type Snapshot map[string]json.RawMessage

// Store is the adapter boundary to the shared realtime store.
type Store interface {
	// Put replaces the record at path. Partial updates are not supported.
	Put(ctx context.Context, path string, record []byte) error
	// Remove deletes the record at path. Removing a missing path is not an error.
	Remove(ctx context.Context, path string) error
	// Subscribe delivers a full snapshot of the subtree under prefix on every
	// change, starting with the current state. The returned cancel function
	// stops delivery; in-flight writes are unaffected. The channel is closed
	// after cancellation or when ctx ends.
	Subscribe(ctx context.Context, prefix string) (<-chan Snapshot, func())
}

// PresencePath returns the store path of a session's presence record.
func PresencePath(sessionKey string) string {
	return PresencePrefix + SlotKey(sessionKey)
}

// RequestPath returns the store path of a provider's request slot.
func RequestPath(providerKey string) string {
	return RequestPrefix + SlotKey(providerKey)
}

// SlotKey keeps keys path-safe; dots appear in some identity providers' ids.
// Snapshot maps are keyed by slot key, so lookups must go through it too.
func SlotKey(key string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '/', '#', '$', '[', ']':
			return '_'
		}
		return r
	}, key)
}

// Clone returns an independent copy of a snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		c := make(json.RawMessage, len(v))
		copy(c, v)
		out[k] = c
	}
	return out
}
