// Package engagement drives the accepted/active/settled/closed lifecycle of
// a matched pair and keeps the provider's availability coupled to it. All
// store writes are fire-and-forget: a failure is surfaced for manual retry
// and partially applied multi-step sequences are not rolled back.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appNegotiation "github.com/fieldmatch/fieldmatch/internal/application/negotiation"
	appPresence "github.com/fieldmatch/fieldmatch/internal/application/presence"
	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	"github.com/fieldmatch/fieldmatch/internal/domain/booking"
	"github.com/fieldmatch/fieldmatch/internal/domain/engagement"
	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/domain/request"
)

var (
	ErrNoEngagement  = errors.New("no active engagement")
	ErrNotSettleable = errors.New("engagement is not awaiting settlement")
	ErrNothingToRate = errors.New("no settled engagement to rate")
)

// Service is the lifecycle manager for one local session.
type Service struct {
	negotiator  *appNegotiation.Service
	publisher   *appPresence.Publisher
	bookingRepo booking.Repository
	profileSvc  *appProfile.Service
	logger      zerolog.Logger

	role       presence.Role
	identity   string
	sessionKey string

	mu  sync.Mutex
	eng *engagement.Engagement
}

func NewService(
	negotiator *appNegotiation.Service,
	publisher *appPresence.Publisher,
	bookingRepo booking.Repository,
	profileSvc *appProfile.Service,
	role presence.Role,
	identity, sessionKey string,
	logger zerolog.Logger,
) *Service {
	return &Service{
		negotiator:  negotiator,
		publisher:   publisher,
		bookingRepo: bookingRepo,
		profileSvc:  profileSvc,
		logger:      logger.With().Str("service", "engagement").Str("identity", identity).Logger(),
		role:        role,
		identity:    identity,
		sessionKey:  sessionKey,
	}
}

// Engagement returns a copy of the current engagement, or nil.
func (s *Service) Engagement() *engagement.Engagement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return nil
	}
	c := *s.eng
	return &c
}

// Accept takes the provider's inbound pending request, creates the booking
// record, flips availability off, and publishes acceptance. Refuses locally
// if a non-terminal engagement already exists; that check never reaches the
// store. A booking-creation failure after the acceptance write leaves an
// acceptance without a booking id, a known inconsistency window resolved by
// retry or cancel, not by rollback.
func (s *Service) Accept(ctx context.Context, serviceType string, price float64) (*engagement.Engagement, error) {
	inc := s.negotiator.Incoming()
	if inc == nil {
		return nil, appNegotiation.ErrNoRequest
	}
	if inc.Status != request.StatusPending {
		return nil, appNegotiation.ErrNotPending
	}

	s.mu.Lock()
	if s.eng != nil && !s.eng.Terminal() {
		s.mu.Unlock()
		return nil, engagement.ErrAlreadyEngaged
	}
	s.mu.Unlock()

	accepted := *inc
	if !accepted.CanTransitionTo(request.StatusAccepted) {
		return nil, request.ErrInvalidTransition
	}
	accepted.Status = request.StatusAccepted
	accepted.ToIdentity = s.identity
	accepted.UpdatedAt = time.Now().UTC()

	// The acceptance write goes first so the requester reacts promptly.
	if err := s.negotiator.Write(ctx, s.sessionKey, accepted); err != nil {
		return nil, err
	}
	if err := s.publisher.SetAvailable(ctx, false); err != nil {
		s.logger.Error().Err(err).Msg("availability flip failed, continuing")
	}

	b := booking.New(s.identity, inc.FromIdentity, serviceType, s.publisher.Record().Position, price)
	if err := s.bookingRepo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	accepted.BookingID = b.ID
	accepted.UpdatedAt = time.Now().UTC()
	if err := s.negotiator.Write(ctx, s.sessionKey, accepted); err != nil {
		return nil, err
	}
	s.negotiator.Adopt(accepted)

	eng := &engagement.Engagement{
		ProviderIdentity:  s.identity,
		RequesterIdentity: inc.FromIdentity,
		ProviderKey:       s.sessionKey,
		BookingID:         b.ID,
		Status:            engagement.StatusAccepted,
		StartedAt:         time.Now().UTC(),
	}
	s.mu.Lock()
	s.eng = eng
	s.mu.Unlock()

	c := *eng
	return &c, nil
}

// Finish marks the work done: booking completed, request awaiting
// settlement. Republishing the request slot is the sole signal to the
// requester that settlement is due.
func (s *Service) Finish(ctx context.Context) error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil || eng.Terminal() {
		return ErrNoEngagement
	}
	if !eng.CanTransitionTo(engagement.StatusAwaitingSettlement) {
		return engagement.ErrInvalidTransition
	}

	if err := s.bookingRepo.UpdateStatus(ctx, eng.BookingID, booking.StatusCompleted); err != nil {
		return fmt.Errorf("failed to complete booking: %w", err)
	}

	rec := request.Record{
		FromIdentity: eng.RequesterIdentity,
		ToKey:        eng.ProviderKey,
		ToIdentity:   eng.ProviderIdentity,
		Status:       request.StatusAwaitingSettlement,
		BookingID:    eng.BookingID,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.negotiator.Write(ctx, eng.ProviderKey, rec); err != nil {
		return err
	}
	s.negotiator.Adopt(rec)

	s.mu.Lock()
	err := s.eng.Finish()
	s.mu.Unlock()
	return err
}

// Settle is the requester's confirmation of payment: booking paid, request
// settled. The engagement closes locally; the provider clears its side when
// it observes the settled status.
func (s *Service) Settle(ctx context.Context, amount float64) error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil || eng.Terminal() {
		return ErrNoEngagement
	}
	if eng.Status != engagement.StatusAwaitingSettlement {
		return ErrNotSettleable
	}

	if err := s.bookingRepo.MarkPaid(ctx, eng.BookingID, amount); err != nil {
		return fmt.Errorf("failed to mark booking paid: %w", err)
	}

	rec := request.Record{
		FromIdentity: eng.RequesterIdentity,
		ToKey:        eng.ProviderKey,
		ToIdentity:   eng.ProviderIdentity,
		Status:       request.StatusSettled,
		BookingID:    eng.BookingID,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.negotiator.Write(ctx, eng.ProviderKey, rec); err != nil {
		return err
	}
	s.negotiator.Adopt(rec)

	s.mu.Lock()
	err := s.eng.Close()
	s.mu.Unlock()
	return err
}

// Cancel aborts the engagement from any non-terminal state, cascading to
// the request slot and the booking and restoring provider availability.
// The counterpart learns of it on its next snapshot; there is no
// synchronous acknowledgement.
func (s *Service) Cancel(ctx context.Context, reason string) error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil || eng.Terminal() {
		return ErrNoEngagement
	}

	rec := request.Record{
		FromIdentity: eng.RequesterIdentity,
		ToKey:        eng.ProviderKey,
		ToIdentity:   eng.ProviderIdentity,
		Status:       request.StatusCancelled,
		BookingID:    eng.BookingID,
		Reason:       reason,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.negotiator.Write(ctx, eng.ProviderKey, rec); err != nil {
		return err
	}
	s.negotiator.Adopt(rec)

	if eng.BookingID != "" {
		if err := s.bookingRepo.UpdateStatus(ctx, eng.BookingID, booking.StatusCancelled); err != nil {
			s.logger.Error().Err(err).Str("booking_id", eng.BookingID).Msg("booking cancel failed, continuing")
		}
	}
	if s.role == presence.RoleProvider {
		if err := s.publisher.SetAvailable(ctx, true); err != nil {
			s.logger.Error().Err(err).Msg("availability restore failed, continuing")
		}
	}

	s.mu.Lock()
	_ = s.eng.Cancel()
	s.eng = nil
	s.mu.Unlock()
	return nil
}

// CloseWithRating records the requester's feedback after settlement,
// closes the booking, removes the request slot, and clears local state.
func (s *Service) CloseWithRating(ctx context.Context, score int, comment string) error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil || eng.Status != engagement.StatusClosed {
		return ErrNothingToRate
	}

	if err := s.profileSvc.AddRating(ctx, eng.BookingID, eng.ProviderIdentity, eng.RequesterIdentity, score, comment); err != nil {
		return err
	}
	if err := s.bookingRepo.UpdateStatus(ctx, eng.BookingID, booking.StatusClosed); err != nil {
		s.logger.Error().Err(err).Str("booking_id", eng.BookingID).Msg("booking close failed, continuing")
	}
	if err := s.negotiator.Clear(ctx, eng.ProviderKey); err != nil {
		s.logger.Error().Err(err).Msg("request slot removal failed, continuing")
	}

	s.mu.Lock()
	s.eng = nil
	s.mu.Unlock()
	return nil
}

// OnAccepted reacts to an observed acceptance on the requester side,
// binding the local engagement to the provider named by the record.
func (s *Service) OnAccepted(rec request.Record) {
	if s.role != presence.RoleRequester {
		return
	}
	providerIdentity := rec.ToIdentity
	if providerIdentity == "" {
		providerIdentity = rec.ToKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng != nil && !s.eng.Terminal() {
		s.eng.BookingID = rec.BookingID
		return
	}
	s.eng = &engagement.Engagement{
		ProviderIdentity:  providerIdentity,
		RequesterIdentity: s.identity,
		ProviderKey:       rec.ToKey,
		BookingID:         rec.BookingID,
		Status:            engagement.StatusAccepted,
		StartedAt:         time.Now().UTC(),
	}
}

// OnAwaitingSettlement reacts to the provider finishing the job.
func (s *Service) OnAwaitingSettlement(rec request.Record) {
	if s.role != presence.RoleRequester {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil || s.eng.Terminal() {
		// Tolerate a missed acceptance (another tab accepted, reconnect).
		s.OnAcceptedLocked(rec)
	}
	if s.eng.BookingID == "" {
		s.eng.BookingID = rec.BookingID
	}
	_ = s.eng.Finish()
}

// OnSettled reacts to the requester settling: the provider clears its
// engagement and returns to the available pool.
func (s *Service) OnSettled(ctx context.Context, rec request.Record) {
	s.mu.Lock()
	cleared := s.eng != nil
	if s.role == presence.RoleProvider {
		s.eng = nil
	} else if s.eng != nil && !s.eng.Terminal() {
		_ = s.eng.Close()
	}
	s.mu.Unlock()

	if s.role == presence.RoleProvider && cleared {
		if err := s.publisher.SetAvailable(ctx, true); err != nil {
			s.logger.Error().Err(err).Msg("availability restore failed, continuing")
		}
	}
}

// OnCancelled reacts to a counterpart-initiated cancellation.
func (s *Service) OnCancelled(ctx context.Context, rec request.Record) {
	s.mu.Lock()
	had := s.eng != nil && !s.eng.Terminal()
	if s.eng != nil {
		_ = s.eng.Cancel()
	}
	s.eng = nil
	s.mu.Unlock()

	if s.role == presence.RoleProvider && had {
		if err := s.publisher.SetAvailable(ctx, true); err != nil {
			s.logger.Error().Err(err).Msg("availability restore failed, continuing")
		}
	}
}

// OnAcceptedLocked rebuilds engagement state from a record while s.mu is
// held. Callers must hold the lock.
func (s *Service) OnAcceptedLocked(rec request.Record) {
	providerIdentity := rec.ToIdentity
	if providerIdentity == "" {
		providerIdentity = rec.ToKey
	}
	s.eng = &engagement.Engagement{
		ProviderIdentity:  providerIdentity,
		RequesterIdentity: s.identity,
		ProviderKey:       rec.ToKey,
		BookingID:         rec.BookingID,
		Status:            engagement.StatusAccepted,
		StartedAt:         time.Now().UTC(),
	}
}
