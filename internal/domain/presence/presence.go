// Package presence models the live location record a session broadcasts
// through the realtime store. A session is the unit of presence ownership;
// an identity may own several concurrent sessions (tabs, devices), each with
// its own record. Counterparts must never assume uniqueness by identity,
// only by session key.
package presence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role determines which side of a match a session acts on.
type Role string

const (
	RoleProvider  Role = "provider"
	RoleRequester Role = "requester"
	RoleObserver  Role = "observer"
)

var ErrInvalidRole = errors.New("invalid presence role")

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleProvider:
		return RoleProvider, nil
	case RoleRequester:
		return RoleRequester, nil
	case RoleObserver:
		return RoleObserver, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

// Position is a single location sample.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Record is the full presence record written on every position sample and
// availability flip. Writes replace the whole record.
type Record struct {
	Identity    string    `json:"identity"`
	SessionKey  string    `json:"sessionKey"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"displayName"`
	Position    Position  `json:"position"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewSessionKey derives an ephemeral session key from identity and role plus
// a random suffix, so one identity can hold several live sessions.
func NewSessionKey(identity string, role Role) string {
	suffix := uuid.NewString()[:6]
	return fmt.Sprintf("%s_%s_%s", identity, role, suffix)
}

// Validate checks a record is complete enough to surface to counterparts.
func (r *Record) Validate() error {
	if r.Identity == "" {
		return errors.New("presence record missing identity")
	}
	if r.SessionKey == "" {
		return errors.New("presence record missing session key")
	}
	if _, err := ParseRole(string(r.Role)); err != nil {
		return err
	}
	return nil
}

// BelongsTo reports whether the record is owned by the given identity or
// session key. Self records are matched on either, since stale records from
// other sessions of the same identity may coexist in the store.
func (r *Record) BelongsTo(identity, sessionKey string) bool {
	return (identity != "" && r.Identity == identity) ||
		(sessionKey != "" && r.SessionKey == sessionKey)
}
