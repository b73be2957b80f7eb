package booking

import "context"

// Repository defines persistence for bookings.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id string) (*Booking, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	MarkPaid(ctx context.Context, id string, amount float64) error
	ListByProvider(ctx context.Context, providerIdentity string, limit int) ([]*Booking, error)
}
