// Package rating models post-settlement feedback. Ratings are written only
// after a booking closes and feed the provider profile's running average.
package rating

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidScore = errors.New("rating score must be between 1 and 5")

// Rating is one piece of feedback tied to a closed booking.
type Rating struct {
	ID                string    `json:"id"`
	BookingID         string    `json:"bookingId"`
	ProviderIdentity  string    `json:"providerIdentity"`
	RequesterIdentity string    `json:"requesterIdentity"`
	Score             int       `json:"score"`
	Comment           string    `json:"comment,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// New validates the score and builds a rating.
func New(bookingID, providerIdentity, requesterIdentity string, score int, comment string) (*Rating, error) {
	if score < 1 || score > 5 {
		return nil, ErrInvalidScore
	}
	return &Rating{
		ID:                uuid.NewString(),
		BookingID:         bookingID,
		ProviderIdentity:  providerIdentity,
		RequesterIdentity: requesterIdentity,
		Score:             score,
		Comment:           comment,
		CreatedAt:         time.Now().UTC(),
	}, nil
}
