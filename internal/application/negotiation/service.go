// Package negotiation mediates the request slot between one requester and
// one provider. The service holds the local actor's view of the requests
// subtree and applies the negotiation state machine to every incoming
// snapshot, treating each one as authoritative-now.
package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/domain/request"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

var (
	// ErrSlotTaken means the target provider's slot already holds a live
	// request from another requester. The store cannot enforce this; the
	// check runs against the latest observed snapshot and true races still
	// resolve last-write-wins.
	ErrSlotTaken = errors.New("provider already has an outstanding request")
	// ErrRequestOutstanding blocks a second outgoing request while one is live.
	ErrRequestOutstanding = errors.New("a request is already outstanding")
	ErrNoRequest          = errors.New("no request in progress")
	ErrNotPending         = errors.New("request is not pending")
)

// EventKind classifies a transition observed on the requests subtree.
type EventKind string

const (
	EventIncomingPending   EventKind = "incoming_pending"
	EventIncomingWithdrawn EventKind = "incoming_withdrawn"
	EventAccepted          EventKind = "accepted"
	EventRejected          EventKind = "rejected"
	EventCancelled         EventKind = "cancelled"
	EventAwaitingSettle    EventKind = "awaiting_settlement"
	EventSettled           EventKind = "settled"
	EventOverwritten       EventKind = "overwritten"
)

// Event is one observed transition, carrying the slot record that caused it.
type Event struct {
	Kind   EventKind
	Record request.Record
}

// Service runs the negotiation state machine for one local session.
type Service struct {
	store      realtime.Store
	logger     zerolog.Logger
	abandonTTL time.Duration

	role     presence.Role
	identity string
	slotKey  string // provider side: own slot under requests/

	mu       sync.Mutex
	table    map[string]request.Record
	outgoing *request.Record // requester side
	incoming *request.Record // provider side
}

func NewService(store realtime.Store, role presence.Role, identity, sessionKey string, abandonTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		store:      store,
		logger:     logger.With().Str("service", "negotiation").Str("identity", identity).Logger(),
		abandonTTL: abandonTTL,
		role:       role,
		identity:   identity,
		slotKey:    realtime.SlotKey(sessionKey),
		table:      make(map[string]request.Record),
	}
}

// Send writes a pending request into the target provider's slot. Fails
// closed when the local view shows the slot occupied by another live
// requester, or when this requester already has an outstanding request.
func (s *Service) Send(ctx context.Context, providerKey, displayName string) (*request.Record, error) {
	s.mu.Lock()
	if s.outgoing != nil && s.outgoing.Live() {
		s.mu.Unlock()
		return nil, ErrRequestOutstanding
	}
	cur, ok := s.table[realtime.SlotKey(providerKey)]
	if ok && cur.Live() && cur.FromIdentity != s.identity && !cur.Stale(time.Now(), s.abandonTTL) {
		s.mu.Unlock()
		return nil, ErrSlotTaken
	}
	s.mu.Unlock()

	rec := request.Record{
		FromIdentity: s.identity,
		FromName:     displayName,
		ToKey:        providerKey,
		Status:       request.StatusPending,
		UpdatedAt:    time.Now().UTC(),
	}
	if err := s.write(ctx, providerKey, rec); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.outgoing = &rec
	s.mu.Unlock()
	return &rec, nil
}

// CancelOutgoing withdraws the requester's live request.
func (s *Service) CancelOutgoing(ctx context.Context, reason string) error {
	s.mu.Lock()
	out := s.outgoing
	s.mu.Unlock()
	if out == nil {
		return ErrNoRequest
	}
	if !out.CanTransitionTo(request.StatusCancelled) {
		return request.ErrInvalidTransition
	}

	rec := *out
	rec.Status = request.StatusCancelled
	rec.Reason = reason
	rec.UpdatedAt = time.Now().UTC()
	if err := s.write(ctx, rec.ToKey, rec); err != nil {
		return err
	}

	s.mu.Lock()
	s.outgoing = nil
	s.mu.Unlock()
	return nil
}

// Reject declines the provider's inbound pending request.
func (s *Service) Reject(ctx context.Context) error {
	s.mu.Lock()
	inc := s.incoming
	s.mu.Unlock()
	if inc == nil {
		return ErrNoRequest
	}
	if inc.Status != request.StatusPending {
		return ErrNotPending
	}

	rec := *inc
	rec.Status = request.StatusRejected
	rec.UpdatedAt = time.Now().UTC()
	if err := s.write(ctx, s.slotKey, rec); err != nil {
		return err
	}

	s.mu.Lock()
	s.incoming = nil
	s.mu.Unlock()
	return nil
}

// Write publishes a mutated slot record; the engagement lifecycle uses it
// for accept/finish/settle/cancel transitions that it owns.
func (s *Service) Write(ctx context.Context, providerKey string, rec request.Record) error {
	return s.write(ctx, providerKey, rec)
}

// Clear deletes a provider's slot from the store and drops any local view
// of it. Used once a closed engagement has been rated and archived.
func (s *Service) Clear(ctx context.Context, providerKey string) error {
	if err := s.store.Remove(ctx, realtime.RequestPath(providerKey)); err != nil {
		return fmt.Errorf("request slot removal failed: %w", err)
	}
	s.mu.Lock()
	s.outgoing = nil
	s.incoming = nil
	s.mu.Unlock()
	return nil
}

// Adopt replaces the local slot view after a self-issued write, so command
// handlers observe the transition without waiting for the next snapshot.
func (s *Service) Adopt(rec request.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == presence.RoleProvider {
		if rec.Terminal() {
			s.incoming = nil
		} else {
			s.incoming = &rec
		}
		return
	}
	if rec.Terminal() {
		s.outgoing = nil
	} else {
		s.outgoing = &rec
	}
}

// Outgoing returns a copy of the requester's current request, if any.
func (s *Service) Outgoing() *request.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outgoing == nil {
		return nil
	}
	c := *s.outgoing
	return &c
}

// Incoming returns a copy of the provider's inbound request, if any.
func (s *Service) Incoming() *request.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.incoming == nil {
		return nil
	}
	c := *s.incoming
	return &c
}

// Reduce folds a requests snapshot into the local view and reports the
// transitions it implies. Snapshots are full replacements: every decision
// is made against the new state, never a diff of assumed prior state, so
// re-delivering an identical snapshot produces no spurious events.
func (s *Service) Reduce(snap realtime.Snapshot) []Event {
	table := make(map[string]request.Record, len(snap))
	for key, raw := range snap {
		var rec request.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable request record")
			continue
		}
		table[key] = rec
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = table

	if s.role == presence.RoleProvider {
		return s.reduceProvider(table)
	}
	return s.reduceRequester(table)
}

func (s *Service) reduceProvider(table map[string]request.Record) []Event {
	var events []Event
	cur, ok := table[s.slotKey]
	prev := s.incoming

	if !ok {
		// Slot removed: the negotiation closed out (settlement cleanup or
		// an explicit withdrawal).
		if prev != nil {
			events = append(events, Event{Kind: EventIncomingWithdrawn, Record: *prev})
			s.incoming = nil
		}
		return events
	}

	switch cur.Status {
	case request.StatusPending:
		if cur.Stale(time.Now(), s.abandonTTL) {
			// Implicitly abandoned by a requester who moved on; do not
			// surface it as actionable.
			if prev != nil {
				events = append(events, Event{Kind: EventIncomingWithdrawn, Record: cur})
				s.incoming = nil
			}
			return events
		}
		if prev == nil || prev.FromIdentity != cur.FromIdentity || prev.Status != cur.Status {
			events = append(events, Event{Kind: EventIncomingPending, Record: cur})
		}
		s.incoming = &cur
	case request.StatusAccepted:
		// Normally self-written; an echo from another session of the same
		// identity still needs to sync local state.
		if prev == nil || prev.Status != cur.Status {
			events = append(events, Event{Kind: EventAccepted, Record: cur})
		}
		s.incoming = &cur
	case request.StatusAwaitingSettlement:
		if prev == nil || prev.Status != cur.Status {
			events = append(events, Event{Kind: EventAwaitingSettle, Record: cur})
		}
		s.incoming = &cur
	case request.StatusSettled:
		if prev == nil || prev.Status != cur.Status {
			events = append(events, Event{Kind: EventSettled, Record: cur})
		}
		s.incoming = nil
	case request.StatusCancelled:
		if prev != nil {
			events = append(events, Event{Kind: EventCancelled, Record: cur})
		}
		s.incoming = nil
	case request.StatusRejected:
		s.incoming = nil
	}
	return events
}

func (s *Service) reduceRequester(table map[string]request.Record) []Event {
	var events []Event

	// Adopt the freshest slot written by this identity even if another
	// session issued it, so tabs sharing one identity converge.
	var cur *request.Record
	for _, rec := range table {
		if rec.FromIdentity != s.identity {
			continue
		}
		if cur == nil || rec.UpdatedAt.After(cur.UpdatedAt) {
			c := rec
			cur = &c
		}
	}

	prev := s.outgoing

	if prev != nil {
		if taken, ok := table[realtime.SlotKey(prev.ToKey)]; ok && taken.FromIdentity != s.identity && taken.Live() {
			// Our slot was overwritten by a competing requester; the store
			// resolved the race against us.
			events = append(events, Event{Kind: EventOverwritten, Record: taken})
			s.outgoing = nil
			prev = nil
		}
	}

	if cur == nil {
		if prev != nil && prev.Status == request.StatusSettled {
			s.outgoing = nil
		}
		return events
	}

	// Acceptance lands as two writes, the second adding the booking id, so
	// the comparison must see beyond the status to re-fire the event.
	changed := prev == nil || prev.Status != cur.Status || prev.ToKey != cur.ToKey ||
		prev.BookingID != cur.BookingID || prev.Reason != cur.Reason
	switch cur.Status {
	case request.StatusPending:
		s.outgoing = cur
	case request.StatusAccepted:
		if changed {
			events = append(events, Event{Kind: EventAccepted, Record: *cur})
		}
		s.outgoing = cur
	case request.StatusAwaitingSettlement:
		if changed {
			events = append(events, Event{Kind: EventAwaitingSettle, Record: *cur})
		}
		s.outgoing = cur
	case request.StatusRejected:
		if prev != nil {
			events = append(events, Event{Kind: EventRejected, Record: *cur})
		}
		s.outgoing = nil
	case request.StatusCancelled:
		if prev != nil {
			events = append(events, Event{Kind: EventCancelled, Record: *cur})
		}
		s.outgoing = nil
	case request.StatusSettled:
		if changed {
			events = append(events, Event{Kind: EventSettled, Record: *cur})
		}
		s.outgoing = nil
	}
	return events
}

func (s *Service) write(ctx context.Context, providerKey string, rec request.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal request record: %w", err)
	}
	if err := s.store.Put(ctx, realtime.RequestPath(providerKey), data); err != nil {
		s.logger.Error().Err(err).Str("provider_key", providerKey).Msg("request write failed")
		return fmt.Errorf("request write failed: %w", err)
	}
	return nil
}
