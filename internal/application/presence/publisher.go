package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

// Publisher owns the local session's presence record and republishes the
// full record on every position sample and availability flip. A failed
// write is logged and superseded by the next sample; nothing is queued.
type Publisher struct {
	store  realtime.Store
	logger zerolog.Logger

	mu      sync.Mutex
	rec     presence.Record
	sharing bool
}

// NewPublisher builds a publisher for one session. The record is not
// written until sharing starts.
func NewPublisher(store realtime.Store, rec presence.Record, logger zerolog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		logger: logger.With().Str("service", "presence-publisher").Str("session", rec.SessionKey).Logger(),
		rec:    rec,
	}
}

// StartSharing marks the session live. The first write happens on the next
// position sample so a record never surfaces without a position.
func (p *Publisher) StartSharing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sharing = true
}

// StopSharing removes the session's record from the store.
func (p *Publisher) StopSharing(ctx context.Context) error {
	p.mu.Lock()
	p.sharing = false
	key := p.rec.SessionKey
	p.mu.Unlock()

	if err := p.store.Remove(ctx, realtime.PresencePath(key)); err != nil {
		p.logger.Error().Err(err).Msg("failed to remove presence record")
		return fmt.Errorf("failed to stop sharing: %w", err)
	}
	return nil
}

// OnSample publishes the record with a fresh position. Samples arriving
// while sharing is off are dropped.
func (p *Publisher) OnSample(ctx context.Context, pos presence.Position) error {
	p.mu.Lock()
	if !p.sharing {
		p.mu.Unlock()
		return nil
	}
	p.rec.Position = pos
	p.rec.UpdatedAt = time.Now().UTC()
	rec := p.rec
	p.mu.Unlock()
	return p.publish(ctx, rec)
}

// SetAvailable flips availability and republishes immediately, so
// counterparts observe engagement-driven flips without waiting for the next
// position sample.
func (p *Publisher) SetAvailable(ctx context.Context, available bool) error {
	p.mu.Lock()
	p.rec.Available = available
	p.rec.UpdatedAt = time.Now().UTC()
	rec := p.rec
	sharing := p.sharing
	p.mu.Unlock()
	if !sharing {
		return nil
	}
	return p.publish(ctx, rec)
}

// Available reports the locally intended availability, which may lead the
// store by one publish cycle.
func (p *Publisher) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec.Available
}

// Record returns a copy of the current local record.
func (p *Publisher) Record() presence.Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rec
}

func (p *Publisher) publish(ctx context.Context, rec presence.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}
	if err := p.store.Put(ctx, realtime.PresencePath(rec.SessionKey), data); err != nil {
		p.logger.Error().Err(err).Msg("presence write failed")
		return fmt.Errorf("presence write failed: %w", err)
	}
	return nil
}
