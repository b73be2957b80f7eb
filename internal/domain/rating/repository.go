package rating

import "context"

// Repository defines persistence for ratings.
type Repository interface {
	Create(ctx context.Context, r *Rating) error
	ListByProvider(ctx context.Context, providerIdentity string, limit int) ([]*Rating, error)
}
