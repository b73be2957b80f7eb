package profile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/rating"
)

type stubProfileRepo struct {
	m map[string]*identity.Profile
}

func newStubProfileRepo() *stubProfileRepo {
	return &stubProfileRepo{m: make(map[string]*identity.Profile)}
}

func (r *stubProfileRepo) Upsert(_ context.Context, p *identity.Profile) error {
	c := *p
	r.m[p.Identity] = &c
	return nil
}

func (r *stubProfileRepo) GetByIdentity(_ context.Context, id string) (*identity.Profile, error) {
	p, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *stubProfileRepo) ListByRole(_ context.Context, role string) ([]*identity.Profile, error) {
	var out []*identity.Profile
	for _, p := range r.m {
		if p.Role == role {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *stubProfileRepo) ListByRoleAndCategory(ctx context.Context, role, category string) ([]*identity.Profile, error) {
	all, _ := r.ListByRole(ctx, role)
	var out []*identity.Profile
	for _, p := range all {
		if p.Category != nil && *p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubProfileRepo) UpdateRating(_ context.Context, id string, rate float64, count int) error {
	if p, ok := r.m[id]; ok {
		p.Rating = rate
		p.RatingCount = count
	}
	return nil
}

type stubRatingRepo struct {
	created []*rating.Rating
}

func (r *stubRatingRepo) Create(_ context.Context, rt *rating.Rating) error {
	c := *rt
	r.created = append(r.created, &c)
	return nil
}

func (r *stubRatingRepo) ListByProvider(_ context.Context, providerIdentity string, limit int) ([]*rating.Rating, error) {
	var out []*rating.Rating
	for _, rt := range r.created {
		if rt.ProviderIdentity == providerIdentity {
			out = append(out, rt)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func newTestService() (*Service, *stubProfileRepo, *stubRatingRepo) {
	profiles := newStubProfileRepo()
	ratings := &stubRatingRepo{}
	return NewService(profiles, ratings, zerolog.Nop()), profiles, ratings
}

func TestUpsertDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p := &identity.Profile{Identity: "pat", Name: "Pat", Role: "provider"}
	require.NoError(t, svc.Upsert(ctx, p))
	assert.Equal(t, identity.AccountActive, p.Status)
	assert.False(t, p.CreatedAt.IsZero())

	assert.ErrorIs(t, svc.Upsert(ctx, &identity.Profile{Name: "No ID"}), identity.ErrMissingIdentity)
}

func TestGetNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)
}

func TestRequireNamed(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, &identity.Profile{Identity: "anon", Role: "requester"}))
	_, err := svc.RequireNamed(ctx, "anon")
	assert.ErrorIs(t, err, identity.ErrProfileIncomplete)

	require.NoError(t, svc.Upsert(ctx, &identity.Profile{Identity: "riley", Name: "Riley", Role: "requester"}))
	p, err := svc.RequireNamed(ctx, "riley")
	require.NoError(t, err)
	assert.Equal(t, "Riley", p.Name)
}

func TestAddRatingUpdatesAggregate(t *testing.T) {
	svc, profiles, ratings := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Upsert(ctx, &identity.Profile{Identity: "pat", Name: "Pat", Role: "provider"}))

	require.NoError(t, svc.AddRating(ctx, "b1", "pat", "riley", 4, "good"))
	require.NoError(t, svc.AddRating(ctx, "b2", "pat", "casey", 2, "meh"))

	p := profiles.m["pat"]
	assert.Equal(t, 3.0, p.Rating)
	assert.Equal(t, 2, p.RatingCount)
	assert.Len(t, ratings.created, 2)

	assert.ErrorIs(t, svc.AddRating(ctx, "b3", "pat", "riley", 9, ""), rating.ErrInvalidScore)
}

func TestAddRatingUnknownProfileStillRecorded(t *testing.T) {
	svc, _, ratings := newTestService()
	require.NoError(t, svc.AddRating(context.Background(), "b1", "ghost", "riley", 5, ""))
	assert.Len(t, ratings.created, 1)
}

func TestListProvidersByCategory(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	cleaning := "cleaning"
	plumbing := "plumbing"

	require.NoError(t, svc.Upsert(ctx, &identity.Profile{Identity: "p1", Name: "P1", Role: "provider", Category: &cleaning}))
	require.NoError(t, svc.Upsert(ctx, &identity.Profile{Identity: "p2", Name: "P2", Role: "provider", Category: &plumbing}))

	out, err := svc.ListProvidersByCategory(ctx, "cleaning")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "p1", out[0].Identity)
}
