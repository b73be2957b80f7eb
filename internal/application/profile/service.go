// Package profile manages the persistent identity records behind live
// sessions: enrollment, lookup for candidate screening, and the rating
// aggregate updated after each closed booking.
package profile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/rating"
)

// Service provides profile operations backed by the persistent store.
type Service struct {
	profileRepo identity.Repository
	ratingRepo  rating.Repository
	logger      zerolog.Logger
}

func NewService(profileRepo identity.Repository, ratingRepo rating.Repository, logger zerolog.Logger) *Service {
	return &Service{
		profileRepo: profileRepo,
		ratingRepo:  ratingRepo,
		logger:      logger.With().Str("service", "profile").Logger(),
	}
}

// Upsert creates or updates a profile. Missing status defaults to active.
func (s *Service) Upsert(ctx context.Context, p *identity.Profile) error {
	if strings.TrimSpace(p.Identity) == "" {
		return identity.ErrMissingIdentity
	}
	if p.Status == "" {
		p.Status = identity.AccountActive
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if err := s.profileRepo.Upsert(ctx, p); err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	s.logger.Info().Str("identity", p.Identity).Str("role", p.Role).Msg("profile upserted")
	return nil
}

// Get fetches a profile by identity.
func (s *Service) Get(ctx context.Context, id string) (*identity.Profile, error) {
	p, err := s.profileRepo.GetByIdentity(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p == nil {
		return nil, identity.ErrProfileNotFound
	}
	return p, nil
}

// RequireNamed returns the profile only when it carries a display name.
// Sending a request embeds the name in the slot record, so an unnamed
// profile cannot initiate one.
func (s *Service) RequireNamed(ctx context.Context, id string) (*identity.Profile, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) == "" {
		return nil, identity.ErrProfileIncomplete
	}
	return p, nil
}

// ListByRole lists profiles for one role.
func (s *Service) ListByRole(ctx context.Context, role string) ([]*identity.Profile, error) {
	profiles, err := s.profileRepo.ListByRole(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return profiles, nil
}

// ListProvidersByCategory lists provider profiles filtered by service
// category.
func (s *Service) ListProvidersByCategory(ctx context.Context, category string) ([]*identity.Profile, error) {
	profiles, err := s.profileRepo.ListByRoleAndCategory(ctx, "provider", category)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	return profiles, nil
}

// AddRating stores the feedback record and folds the score into the
// provider's running average. The two writes are independent; a failed
// aggregate update leaves the rating row in place and is retried by the
// next rating.
func (s *Service) AddRating(ctx context.Context, bookingID, providerIdentity, requesterIdentity string, score int, comment string) error {
	r, err := rating.New(bookingID, providerIdentity, requesterIdentity, score, comment)
	if err != nil {
		return err
	}
	if err := s.ratingRepo.Create(ctx, r); err != nil {
		return fmt.Errorf("failed to create rating: %w", err)
	}

	p, err := s.profileRepo.GetByIdentity(ctx, providerIdentity)
	if err != nil {
		return fmt.Errorf("failed to get provider profile: %w", err)
	}
	if p == nil {
		s.logger.Warn().Str("identity", providerIdentity).Msg("rating recorded for unknown profile")
		return nil
	}
	p.ApplyRating(score)
	if err := s.profileRepo.UpdateRating(ctx, p.Identity, p.Rating, p.RatingCount); err != nil {
		return fmt.Errorf("failed to update rating aggregate: %w", err)
	}
	s.logger.Info().
		Str("identity", providerIdentity).
		Int("score", score).
		Float64("rating", p.Rating).
		Msg("rating applied")
	return nil
}

// Ratings lists recent feedback for a provider.
func (s *Service) Ratings(ctx context.Context, providerIdentity string, limit int) ([]*rating.Rating, error) {
	if limit <= 0 {
		limit = 20
	}
	list, err := s.ratingRepo.ListByProvider(ctx, providerIdentity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ratings: %w", err)
	}
	return list, nil
}
