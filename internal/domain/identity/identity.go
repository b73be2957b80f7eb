// Package identity models the stable principal behind any number of live
// sessions. Identity issuance is external; profiles only decorate an already
// established identity with a display name, contact fields, and the running
// rating aggregate used when browsing providers.
package identity

import (
	"errors"
	"time"
)

// AccountStatus is the coarse lifecycle of a profile.
type AccountStatus string

const (
	AccountActive   AccountStatus = "active"
	AccountBusy     AccountStatus = "busy"
	AccountInactive AccountStatus = "inactive"
)

var (
	ErrMissingIdentity = errors.New("identity is required")
	ErrProfileNotFound = errors.New("profile not found")
	// ErrProfileIncomplete is returned when an action requires a named
	// profile, such as sending a request.
	ErrProfileIncomplete = errors.New("profile has no display name")
)

// Profile is the persistent record for one identity.
type Profile struct {
	Identity    string        `json:"identity"`
	Name        string        `json:"name"`
	Email       string        `json:"email,omitempty"`
	Phone       string        `json:"phone,omitempty"`
	Role        string        `json:"role"`
	Category    *string       `json:"category,omitempty"`
	Rating      float64       `json:"rating"`
	RatingCount int           `json:"ratingCount"`
	Status      AccountStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// ApplyRating folds a new score into the running average.
func (p *Profile) ApplyRating(score int) {
	count := p.RatingCount + 1
	p.Rating = (p.Rating*float64(p.RatingCount) + float64(score)) / float64(count)
	p.RatingCount = count
}
