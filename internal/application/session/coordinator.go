// Package session ties one live session together: the presence publisher
// and aggregator, the negotiation state machine, the engagement lifecycle,
// and the notice stream, driven by a single goroutine per session.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	appEngagement "github.com/fieldmatch/fieldmatch/internal/application/engagement"
	appNegotiation "github.com/fieldmatch/fieldmatch/internal/application/negotiation"
	appPresence "github.com/fieldmatch/fieldmatch/internal/application/presence"
	appProfile "github.com/fieldmatch/fieldmatch/internal/application/profile"
	"github.com/fieldmatch/fieldmatch/internal/domain/engagement"
	"github.com/fieldmatch/fieldmatch/internal/domain/identity"
	"github.com/fieldmatch/fieldmatch/internal/domain/notice"
	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/domain/request"
	"github.com/fieldmatch/fieldmatch/internal/domain/visibility"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

var ErrCounterpartUnavailable = errors.New("counterpart location unavailable")

// Candidate is one presence record admitted by the visibility rules,
// decorated with the stored profile when one exists.
type Candidate struct {
	Record  presence.Record   `json:"record"`
	Profile *identity.Profile `json:"profile,omitempty"`
	Self    bool              `json:"self"`
}

// Coordinator runs one session. All snapshot handling happens on a single
// goroutine; command methods go through the underlying services, which
// carry their own locks.
type Coordinator struct {
	sessionKey  string
	identity    string
	displayName string
	role        presence.Role
	screenExpr  string

	store      realtime.Store
	publisher  *appPresence.Publisher
	aggregator *appPresence.Aggregator
	negotiator *appNegotiation.Service
	lifecycle  *appEngagement.Service
	profiles   *appProfile.Service
	hub        notice.Hub
	logger     zerolog.Logger

	posCh  chan presence.Position
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Start subscribes to both subtrees and launches the snapshot loop. The
// loop's lifetime is bound to Stop, not to the caller's context.
func (c *Coordinator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	presCh, cancelPres := c.store.Subscribe(ctx, realtime.PresencePrefix)
	reqCh, cancelReq := c.store.Subscribe(ctx, realtime.RequestPrefix)

	go c.run(ctx, presCh, reqCh, cancelPres, cancelReq)
	c.logger.Info().Msg("session started")
}

// Stop withdraws presence, halts the loop, and waits for it to drain.
func (c *Coordinator) Stop(ctx context.Context) error {
	err := c.publisher.StopSharing(ctx)
	c.once.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
	})
	<-c.done
	c.logger.Info().Msg("session stopped")
	return err
}

func (c *Coordinator) run(ctx context.Context, presCh, reqCh <-chan realtime.Snapshot, cancelPres, cancelReq func()) {
	defer close(c.done)
	defer cancelPres()
	defer cancelReq()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-presCh:
			if !ok {
				return
			}
			c.aggregator.Apply(snap)
		case snap, ok := <-reqCh:
			if !ok {
				return
			}
			for _, ev := range c.negotiator.Reduce(snap) {
				c.react(ctx, ev)
			}
		case pos := <-c.posCh:
			if err := c.publisher.OnSample(ctx, pos); err != nil {
				c.notify(notice.TypeError, "Location update failed", "The last position was not published. The next sample retries automatically.")
			}
		}
	}
}

// react turns one observed negotiation transition into lifecycle updates
// and a user-facing notice.
func (c *Coordinator) react(ctx context.Context, ev appNegotiation.Event) {
	switch ev.Kind {
	case appNegotiation.EventIncomingPending:
		name := ev.Record.FromName
		if name == "" {
			name = "A requester"
		}
		c.notifyRecord(notice.TypeInfo, "New request", name+" sent you a request.", ev.Record)

	case appNegotiation.EventIncomingWithdrawn:
		c.lifecycle.OnCancelled(ctx, ev.Record)
		c.notify(notice.TypeInfo, "Request withdrawn", "The request is no longer active.")

	case appNegotiation.EventAccepted:
		prev := c.lifecycle.Engagement()
		c.lifecycle.OnAccepted(ev.Record)
		// The provider's own accept echoes back here; it already got its
		// notice from Accept. The event can also re-fire when the booking
		// id lands, so only the first binding is announced.
		if c.role == presence.RoleRequester && (prev == nil || prev.Terminal()) {
			c.notifyRecord(notice.TypeSuccess, "Request accepted", "The provider accepted your request.", ev.Record)
		}

	case appNegotiation.EventRejected:
		c.notify(notice.TypeInfo, "Request rejected", "The provider declined your request.")

	case appNegotiation.EventCancelled:
		c.lifecycle.OnCancelled(ctx, ev.Record)
		body := "The engagement was cancelled."
		if ev.Record.Reason != "" {
			body = "Cancelled: " + ev.Record.Reason
		}
		c.notify(notice.TypeInfo, "Cancelled", body)

	case appNegotiation.EventAwaitingSettle:
		c.lifecycle.OnAwaitingSettlement(ev.Record)
		c.notify(notice.TypeInfo, "Job finished", "Settlement is due.")

	case appNegotiation.EventSettled:
		c.lifecycle.OnSettled(ctx, ev.Record)
		c.notify(notice.TypeSuccess, "Settled", "Settlement confirmed.")

	case appNegotiation.EventOverwritten:
		c.notifyRecord(notice.TypeError, "Provider taken", "The provider already accepted another request.", ev.Record)
	}
}

func (c *Coordinator) notify(typ notice.Type, title, body string) {
	c.deliver(notice.New(typ, title, body))
}

func (c *Coordinator) notifyRecord(typ notice.Type, title, body string, rec request.Record) {
	c.deliver(notice.New(typ, title, body).WithPayload(rec))
}

func (c *Coordinator) deliver(n *notice.Notice) {
	err := c.hub.SendToSession(c.sessionKey, n)
	if errors.Is(err, notice.ErrClientNotFound) {
		// No stream on this session; another tab of the same identity may
		// still be listening.
		c.hub.BroadcastToIdentity(c.identity, n)
		return
	}
	if err != nil {
		c.logger.Debug().Err(err).Str("title", n.Title).Msg("notice not delivered")
	}
}

// StartSharing marks the session live; the first presence write happens on
// the next position sample.
func (c *Coordinator) StartSharing() {
	c.publisher.StartSharing()
}

// StopSharing removes the session's presence record.
func (c *Coordinator) StopSharing(ctx context.Context) error {
	return c.publisher.StopSharing(ctx)
}

// PushPosition hands a position sample to the loop. Samples coalesce
// latest-wins when the loop is busy.
func (c *Coordinator) PushPosition(pos presence.Position) {
	select {
	case c.posCh <- pos:
	default:
		select {
		case <-c.posCh:
		default:
		}
		select {
		case c.posCh <- pos:
		default:
		}
	}
}

// SetAvailable flips the availability flag and republishes immediately.
func (c *Coordinator) SetAvailable(ctx context.Context, available bool) error {
	return c.publisher.SetAvailable(ctx, available)
}

// SendRequest targets a provider's slot with a pending request. The sender
// must hold a named profile, since the display name travels in the slot.
func (c *Coordinator) SendRequest(ctx context.Context, providerKey string) (*request.Record, error) {
	p, err := c.profiles.RequireNamed(ctx, c.identity)
	if err != nil {
		return nil, err
	}
	rec, err := c.negotiator.Send(ctx, providerKey, p.Name)
	if err != nil {
		return nil, err
	}
	c.notify(notice.TypeSuccess, "Request sent", "Waiting for the provider to respond.")
	return rec, nil
}

// Accept confirms the inbound request and opens the engagement.
func (c *Coordinator) Accept(ctx context.Context, serviceType string, price float64) (*engagement.Engagement, error) {
	eng, err := c.lifecycle.Accept(ctx, serviceType, price)
	if err != nil {
		return nil, err
	}
	c.notify(notice.TypeSuccess, "Request accepted", "You are now engaged with "+eng.RequesterIdentity+".")
	return eng, nil
}

// Reject declines the inbound pending request.
func (c *Coordinator) Reject(ctx context.Context) error {
	return c.negotiator.Reject(ctx)
}

// Cancel aborts whatever is in flight: the active engagement when one
// exists, otherwise the outgoing pending request.
func (c *Coordinator) Cancel(ctx context.Context, reason string) error {
	if reason == "" {
		if c.role == presence.RoleProvider {
			reason = "cancelled_by_provider"
		} else {
			reason = "cancelled_by_requester"
		}
	}
	if eng := c.lifecycle.Engagement(); eng != nil && !eng.Terminal() {
		return c.lifecycle.Cancel(ctx, reason)
	}
	return c.negotiator.CancelOutgoing(ctx, reason)
}

// Finish marks the provider's work done and settlement due.
func (c *Coordinator) Finish(ctx context.Context) error {
	return c.lifecycle.Finish(ctx)
}

// Settle records the requester's payment confirmation.
func (c *Coordinator) Settle(ctx context.Context, amount float64) error {
	return c.lifecycle.Settle(ctx, amount)
}

// Rate closes the settled engagement with feedback.
func (c *Coordinator) Rate(ctx context.Context, score int, comment string) error {
	return c.lifecycle.CloseWithRating(ctx, score, comment)
}

// Candidates returns the presence records this session may currently see,
// ordered by display name. Non-self candidates additionally pass the
// operator screening expression.
func (c *Coordinator) Candidates(ctx context.Context) ([]Candidate, error) {
	vc := c.visibilityContext()
	table := c.aggregator.Table()

	out := make([]Candidate, 0, len(table))
	for _, rec := range table {
		if !visibility.Visible(vc, rec) {
			continue
		}
		self := rec.BelongsTo(c.identity, c.sessionKey)

		var prof *identity.Profile
		if p, err := c.profiles.Get(ctx, rec.Identity); err == nil {
			prof = p
		} else if !errors.Is(err, identity.ErrProfileNotFound) {
			c.logger.Warn().Err(err).Str("identity", rec.Identity).Msg("profile lookup failed for candidate")
		}

		if !self {
			ok, err := visibility.Screen(c.screenExpr, rec, prof)
			if err != nil {
				c.logger.Warn().Err(err).Msg("screen expression failed, admitting candidate")
			} else if !ok {
				continue
			}
		}
		out = append(out, Candidate{Record: rec, Profile: prof, Self: self})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Record.DisplayName != out[j].Record.DisplayName {
			return out[i].Record.DisplayName < out[j].Record.DisplayName
		}
		return out[i].Record.SessionKey < out[j].Record.SessionKey
	})
	return out, nil
}

// CounterpartPosition returns the live position of the negotiation or
// engagement counterpart.
func (c *Coordinator) CounterpartPosition() (presence.Position, error) {
	switch c.role {
	case presence.RoleRequester:
		if out := c.negotiator.Outgoing(); out != nil && out.Live() {
			if rec, ok := c.aggregator.Get(out.ToKey); ok {
				return rec.Position, nil
			}
		}
	case presence.RoleProvider:
		vc := c.visibilityContext()
		if vc.CounterpartIdentity != "" {
			if rec, ok := c.aggregator.FindByIdentity(vc.CounterpartIdentity); ok {
				return rec.Position, nil
			}
		}
	}
	return presence.Position{}, ErrCounterpartUnavailable
}

// visibilityContext derives the narrowing inputs from the current
// negotiation and engagement state.
func (c *Coordinator) visibilityContext() visibility.Context {
	vc := visibility.Context{
		Role:       c.role,
		Identity:   c.identity,
		SessionKey: c.sessionKey,
	}
	switch c.role {
	case presence.RoleRequester:
		if out := c.negotiator.Outgoing(); out != nil && out.Live() {
			vc.RequestTargetKey = out.ToKey
		}
	case presence.RoleProvider:
		if eng := c.lifecycle.Engagement(); eng != nil && !eng.Terminal() {
			vc.CounterpartIdentity = eng.RequesterIdentity
		} else if inc := c.negotiator.Incoming(); inc != nil && inc.Live() {
			vc.CounterpartIdentity = inc.FromIdentity
		}
	}
	return vc
}

// SessionKey returns this session's key.
func (c *Coordinator) SessionKey() string { return c.sessionKey }

// Identity returns the owning identity.
func (c *Coordinator) Identity() string { return c.identity }

// Role returns the session role.
func (c *Coordinator) Role() presence.Role { return c.role }

// Presence returns a copy of the local presence record.
func (c *Coordinator) Presence() presence.Record { return c.publisher.Record() }

// PresenceChanged signals after each applied presence snapshot. The channel
// is coalescing, so readers re-check state rather than count signals.
func (c *Coordinator) PresenceChanged() <-chan struct{} { return c.aggregator.Changed() }

// Outgoing returns the requester-side slot view, if any.
func (c *Coordinator) Outgoing() *request.Record { return c.negotiator.Outgoing() }

// Incoming returns the provider-side slot view, if any.
func (c *Coordinator) Incoming() *request.Record { return c.negotiator.Incoming() }

// Engagement returns the active engagement, if any.
func (c *Coordinator) Engagement() *engagement.Engagement { return c.lifecycle.Engagement() }
