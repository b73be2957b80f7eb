// Command simulate drives a full match lifecycle against the in-memory
// store: two sessions meet, negotiate, engage, settle, and rate. It exists
// to exercise the core end to end without Redis or Postgres.
package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	appSession "github.com/fieldmatch/fieldmatch/internal/application/session"
	"github.com/fieldmatch/fieldmatch/internal/domain/booking"
	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/notice"
	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/domain/rating"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/memstore"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/sse"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	ctx := context.Background()

	store := memstore.New()
	hub := sse.NewHub()
	profileSvc := appProfile.NewService(newMemProfileRepo(), newMemRatingRepo(), logger)
	mgr := appSession.NewManager(store, newMemBookingRepo(), profileSvc, hub, "", 10*time.Minute, logger)

	must(profileSvc.Upsert(ctx, &identity.Profile{Identity: "provider-1", Name: "Pat", Role: "provider"}), logger)
	must(profileSvc.Upsert(ctx, &identity.Profile{Identity: "requester-1", Name: "Riley", Role: "requester"}), logger)

	provider, err := mgr.Start("provider-1", presence.RoleProvider, "Pat")
	must(err, logger)
	requester, err := mgr.Start("requester-1", presence.RoleRequester, "Riley")
	must(err, logger)

	watch(hub, provider.SessionKey(), "provider-1", logger)
	watch(hub, requester.SessionKey(), "requester-1", logger)

	provider.StartSharing()
	requester.StartSharing()
	provider.PushPosition(presence.Position{Lat: 52.52, Lng: 13.405})
	requester.PushPosition(presence.Position{Lat: 52.51, Lng: 13.40})
	settle := func() { time.Sleep(200 * time.Millisecond) }

	// Both records must land in the requester's table before browsing.
	deadline := time.After(2 * time.Second)
	candidates, err := requester.Candidates(ctx)
	must(err, logger)
	for len(candidates) < 2 {
		select {
		case <-requester.PresenceChanged():
		case <-deadline:
			logger.Fatal().Msg("presence never propagated")
		}
		candidates, err = requester.Candidates(ctx)
		must(err, logger)
	}
	logger.Info().Int("candidates", len(candidates)).Msg("requester browsing")

	_, err = requester.SendRequest(ctx, provider.SessionKey())
	must(err, logger)
	settle()

	_, err = provider.Accept(ctx, "cleaning", 45)
	must(err, logger)
	settle()

	must(provider.Finish(ctx), logger)
	settle()

	must(requester.Settle(ctx, 45), logger)
	settle()

	must(requester.Rate(ctx, 5, "spotless"), logger)
	settle()

	p, err := profileSvc.Get(ctx, "provider-1")
	must(err, logger)
	logger.Info().Float64("rating", p.Rating).Int("count", p.RatingCount).Msg("provider rated")

	mgr.StopAll(ctx)
	hub.Stop()
}

func must(err error, logger zerolog.Logger) {
	if err != nil {
		logger.Fatal().Err(err).Msg("scenario step failed")
	}
}

func watch(hub *sse.Hub, sessionKey, label string, logger zerolog.Logger) {
	client := notice.NewClient(sessionKey, label)
	hub.Register(client)
	go func() {
		for n := range client.NoticeChan {
			if n == nil {
				return
			}
			logger.Info().Str("who", label).Str("type", string(n.Type)).Str("title", n.Title).Msg(n.Body)
		}
	}()
}

// In-memory repositories keep the simulation self-contained.

type memProfileRepo struct {
	mu sync.Mutex
	m  map[string]*identity.Profile
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{m: make(map[string]*identity.Profile)}
}

func (r *memProfileRepo) Upsert(_ context.Context, p *identity.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *p
	r.m[p.Identity] = &c
	return nil
}

func (r *memProfileRepo) GetByIdentity(_ context.Context, id string) (*identity.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (r *memProfileRepo) ListByRole(_ context.Context, role string) ([]*identity.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*identity.Profile
	for _, p := range r.m {
		if p.Role == role {
			c := *p
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *memProfileRepo) ListByRoleAndCategory(ctx context.Context, role, category string) ([]*identity.Profile, error) {
	all, _ := r.ListByRole(ctx, role)
	var out []*identity.Profile
	for _, p := range all {
		if p.Category != nil && *p.Category == category {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memProfileRepo) UpdateRating(_ context.Context, id string, rate float64, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.m[id]; ok {
		p.Rating = rate
		p.RatingCount = count
	}
	return nil
}

type memBookingRepo struct {
	mu sync.Mutex
	m  map[string]*booking.Booking
}

func newMemBookingRepo() *memBookingRepo {
	return &memBookingRepo{m: make(map[string]*booking.Booking)}
}

func (r *memBookingRepo) Create(_ context.Context, b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *b
	r.m[b.ID] = &c
	return nil
}

func (r *memBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	c := *b
	return &c, nil
}

func (r *memBookingRepo) UpdateStatus(_ context.Context, id string, status booking.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[id]; ok {
		b.Status = status
	}
	return nil
}

func (r *memBookingRepo) MarkPaid(_ context.Context, id string, amount float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.m[id]; ok {
		b.Status = booking.StatusPaid
		b.PaidAmount = amount
		now := time.Now().UTC()
		b.PaidAt = &now
	}
	return nil
}

func (r *memBookingRepo) ListByProvider(_ context.Context, providerIdentity string, limit int) ([]*booking.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*booking.Booking
	for _, b := range r.m {
		if b.ProviderIdentity == providerIdentity {
			c := *b
			out = append(out, &c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

type memRatingRepo struct {
	mu sync.Mutex
	m  []*rating.Rating
}

func newMemRatingRepo() *memRatingRepo {
	return &memRatingRepo{}
}

func (r *memRatingRepo) Create(_ context.Context, rt *rating.Rating) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *rt
	r.m = append(r.m, &c)
	return nil
}

func (r *memRatingRepo) ListByProvider(_ context.Context, providerIdentity string, limit int) ([]*rating.Rating, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*rating.Rating
	for _, rt := range r.m {
		if rt.ProviderIdentity == providerIdentity {
			c := *rt
			out = append(out, &c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}
