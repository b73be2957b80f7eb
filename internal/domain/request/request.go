// Package request models the negotiation slot a requester writes against a
// specific provider session key. One logical slot exists per provider key;
// the store resolves concurrent writers by last write, so a slot observed
// with an unexpected requester means the local request has been overwritten.
package request

import (
	"errors"
	"time"
)

// Status is the negotiation phase carried by a request slot.
type Status string

const (
	StatusPending            Status = "pending"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
	StatusCancelled          Status = "cancelled"
	StatusAwaitingSettlement Status = "awaiting_settlement"
	StatusSettled            Status = "settled"
)

var ErrInvalidTransition = errors.New("invalid request status transition")

// Record is the full request slot, replaced on every mutation by either
// party. BookingID links the slot to the external booking record once the
// provider accepts.
type Record struct {
	FromIdentity string    `json:"fromIdentity"`
	FromName     string    `json:"fromName,omitempty"`
	ToKey        string    `json:"toKey"`
	ToIdentity   string    `json:"toIdentity,omitempty"`
	Status       Status    `json:"status"`
	BookingID    string    `json:"bookingId,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CanTransitionTo validates a request status transition. Acceptance is a
// fork point consumed by the engagement lifecycle, not a terminal state.
func (r *Record) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusPending:            {StatusAccepted, StatusRejected, StatusCancelled},
		StatusAccepted:           {StatusAwaitingSettlement, StatusCancelled},
		StatusAwaitingSettlement: {StatusSettled, StatusCancelled},
		StatusRejected:           {},
		StatusCancelled:          {},
		StatusSettled:            {},
	}
	for _, s := range transitions[r.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the slot has reached a state after which it only
// awaits removal.
func (r *Record) Terminal() bool {
	switch r.Status {
	case StatusRejected, StatusCancelled, StatusSettled:
		return true
	}
	return false
}

// Live reports whether the slot still binds the provider to a counterpart.
func (r *Record) Live() bool {
	switch r.Status {
	case StatusPending, StatusAccepted, StatusAwaitingSettlement:
		return true
	}
	return false
}

// Stale reports whether the slot should be treated as implicitly abandoned.
// A requester that re-targets a different provider orphans its old slot
// without deleting it, so providers must not honor a pending slot forever.
func (r *Record) Stale(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(r.UpdatedAt) > ttl
}
