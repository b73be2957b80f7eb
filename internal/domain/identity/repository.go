package identity

import "context"

// Repository defines persistence for profiles.
type Repository interface {
	Upsert(ctx context.Context, p *Profile) error
	GetByIdentity(ctx context.Context, identity string) (*Profile, error)
	ListByRole(ctx context.Context, role string) ([]*Profile, error)
	ListByRoleAndCategory(ctx context.Context, role, category string) ([]*Profile, error)
	UpdateRating(ctx context.Context, identity string, rating float64, count int) error
}
