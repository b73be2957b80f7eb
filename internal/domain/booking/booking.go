// Package booking models the authoritative booking/settlement record created
// when a provider accepts a request. The matching core persists the booking
// id on the request slot and drives the booking through completion, payment,
// and closure; everything else about settlement is external.
package booking

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
)

// Status is the settlement phase of a booking.
type Status string

const (
	StatusCreated   Status = "created"
	StatusCompleted Status = "completed"
	StatusPaid      Status = "paid"
	StatusClosed    Status = "closed"
	StatusCancelled Status = "cancelled"
)

var ErrInvalidTransition = errors.New("invalid booking status transition")

// Booking is one job's settlement record.
type Booking struct {
	ID                string            `json:"id"`
	ProviderIdentity  string            `json:"providerIdentity"`
	RequesterIdentity string            `json:"requesterIdentity"`
	ServiceType       string            `json:"serviceType"`
	Location          presence.Position `json:"location"`
	Price             float64           `json:"price"`
	Status            Status            `json:"status"`
	PaidAmount        float64           `json:"paidAmount,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	PaidAt            *time.Time        `json:"paidAt,omitempty"`
	ClosedAt          *time.Time        `json:"closedAt,omitempty"`
}

// New creates a booking in its initial state.
func New(providerIdentity, requesterIdentity, serviceType string, loc presence.Position, price float64) *Booking {
	return &Booking{
		ID:                uuid.NewString(),
		ProviderIdentity:  providerIdentity,
		RequesterIdentity: requesterIdentity,
		ServiceType:       serviceType,
		Location:          loc,
		Price:             price,
		Status:            StatusCreated,
		CreatedAt:         time.Now().UTC(),
	}
}

// CanTransitionTo validates a booking status transition.
func (b *Booking) CanTransitionTo(target Status) bool {
	transitions := map[Status][]Status{
		StatusCreated:   {StatusCompleted, StatusCancelled},
		StatusCompleted: {StatusPaid, StatusCancelled},
		StatusPaid:      {StatusClosed},
		StatusClosed:    {},
		StatusCancelled: {},
	}
	for _, s := range transitions[b.Status] {
		if s == target {
			return true
		}
	}
	return false
}
