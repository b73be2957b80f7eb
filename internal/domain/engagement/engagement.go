// Package engagement models the active matched-pair transaction that follows
// an accepted request. A provider identity holds at most one non-terminal
// engagement at a time, and while one exists the provider's presence record
// must carry available=false.
package engagement

import (
	"errors"
	"time"
)

// Status is the lifecycle phase of an engagement.
type Status string

const (
	StatusAccepted           Status = "accepted"
	StatusInProgress         Status = "in_progress"
	StatusCompleted          Status = "completed"
	StatusAwaitingSettlement Status = "awaiting_settlement"
	StatusClosed             Status = "closed"
	StatusCancelled          Status = "cancelled"
)

var (
	ErrInvalidTransition = errors.New("invalid engagement status transition")
	// ErrAlreadyEngaged guards the at-most-one invariant; it is raised
	// locally before any store write.
	ErrAlreadyEngaged = errors.New("provider already holds a non-terminal engagement")
)

// Engagement is the matched-pair record owned jointly by provider and
// requester for the duration of the job.
type Engagement struct {
	ProviderIdentity  string    `json:"providerIdentity"`
	RequesterIdentity string    `json:"requesterIdentity"`
	ProviderKey       string    `json:"providerKey"`
	BookingID         string    `json:"bookingId"`
	Status            Status    `json:"status"`
	StartedAt         time.Time `json:"startedAt"`
}

// CanTransitionTo validates an engagement status transition. The in-progress
// phase is implicit: acceptance moves straight to work, so both accepted and
// in_progress may finish or cancel.
func (e *Engagement) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusAccepted:           {StatusInProgress, StatusCompleted, StatusAwaitingSettlement, StatusCancelled},
		StatusInProgress:         {StatusCompleted, StatusAwaitingSettlement, StatusCancelled},
		StatusCompleted:          {StatusAwaitingSettlement, StatusCancelled},
		StatusAwaitingSettlement: {StatusClosed, StatusCancelled},
		StatusClosed:             {},
		StatusCancelled:          {},
	}
	for _, s := range transitions[e.Status] {
		if s == target {
			return true
		}
	}
	return false
}

// Terminal reports whether the engagement no longer binds the pair.
func (e *Engagement) Terminal() bool {
	return e.Status == StatusClosed || e.Status == StatusCancelled
}

// Finish marks the work done and settlement due.
func (e *Engagement) Finish() error {
	if !e.CanTransitionTo(StatusAwaitingSettlement) {
		return ErrInvalidTransition
	}
	e.Status = StatusAwaitingSettlement
	return nil
}

// Close marks settlement complete.
func (e *Engagement) Close() error {
	if !e.CanTransitionTo(StatusClosed) {
		return ErrInvalidTransition
	}
	e.Status = StatusClosed
	return nil
}

// Cancel aborts the engagement from any non-terminal state.
func (e *Engagement) Cancel() error {
	if e.Terminal() {
		return ErrInvalidTransition
	}
	e.Status = StatusCancelled
	return nil
}
