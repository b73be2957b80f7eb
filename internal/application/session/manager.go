package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	appEngagement "github.com/fieldmatch/fieldmatch/internal/application/engagement"
	appNegotiation "github.com/fieldmatch/fieldmatch/internal/application/negotiation"
	appPresence "github.com/fieldmatch/fieldmatch/internal/application/presence"
	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	"github.com/fieldmatch/fieldmatch/internal/domain/booking"
	"github.com/fieldmatch/fieldmatch/internal/domain/notice"
	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

var ErrSessionNotFound = errors.New("session not found")

// Manager owns the live coordinators, one per session key.
type Manager struct {
	store       realtime.Store
	bookingRepo booking.Repository
	profiles    *appProfile.Service
	hub         notice.Hub
	screenExpr  string
	abandonTTL  time.Duration
	logger      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Coordinator
}

func NewManager(
	store realtime.Store,
	bookingRepo booking.Repository,
	profiles *appProfile.Service,
	hub notice.Hub,
	screenExpr string,
	abandonTTL time.Duration,
	logger zerolog.Logger,
) *Manager {
	return &Manager{
		store:       store,
		bookingRepo: bookingRepo,
		profiles:    profiles,
		hub:         hub,
		screenExpr:  screenExpr,
		abandonTTL:  abandonTTL,
		logger:      logger.With().Str("service", "session-manager").Logger(),
		sessions:    make(map[string]*Coordinator),
	}
}

// Start mints a fresh session key for the identity, wires a coordinator,
// and launches its loop. Multiple sessions per identity may coexist; stale
// ones are superseded by record freshness, never reconciled.
func (m *Manager) Start(identity string, role presence.Role, displayName string) (*Coordinator, error) {
	if identity == "" {
		return nil, errors.New("identity is required")
	}
	sessionKey := presence.NewSessionKey(identity, role)

	rec := presence.Record{
		Identity:    identity,
		SessionKey:  sessionKey,
		Role:        role,
		DisplayName: displayName,
		Available:   role == presence.RoleProvider,
		UpdatedAt:   time.Now().UTC(),
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	logger := m.logger.With().Str("session", sessionKey).Logger()
	publisher := appPresence.NewPublisher(m.store, rec, logger)
	aggregator := appPresence.NewAggregator(logger)
	negotiator := appNegotiation.NewService(m.store, role, identity, sessionKey, m.abandonTTL, logger)
	lifecycle := appEngagement.NewService(negotiator, publisher, m.bookingRepo, m.profiles, role, identity, sessionKey, logger)

	c := &Coordinator{
		sessionKey:  sessionKey,
		identity:    identity,
		displayName: displayName,
		role:        role,
		screenExpr:  m.screenExpr,
		store:       m.store,
		publisher:   publisher,
		aggregator:  aggregator,
		negotiator:  negotiator,
		lifecycle:   lifecycle,
		profiles:    m.profiles,
		hub:         m.hub,
		logger:      logger,
		posCh:       make(chan presence.Position, 1),
		done:        make(chan struct{}),
	}
	c.Start()

	m.mu.Lock()
	m.sessions[sessionKey] = c
	m.mu.Unlock()
	return c, nil
}

// Get looks up a live coordinator by session key.
func (m *Manager) Get(sessionKey string) (*Coordinator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[sessionKey]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Stop tears a session down and withdraws its presence record.
func (m *Manager) Stop(ctx context.Context, sessionKey string) error {
	m.mu.Lock()
	c, ok := m.sessions[sessionKey]
	delete(m.sessions, sessionKey)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	return c.Stop(ctx)
}

// StopAll tears down every live session, used on server shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	sessions := make([]*Coordinator, 0, len(m.sessions))
	for _, c := range m.sessions {
		sessions = append(sessions, c)
	}
	m.sessions = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, c := range sessions {
		if err := c.Stop(ctx); err != nil {
			m.logger.Error().Err(err).Str("session", c.SessionKey()).Msg("session stop failed")
		}
	}
}

// Count reports the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
