package negotiation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/domain/request"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/memstore"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

const providerKey = "pat_provider_abc"

func newRequester(store realtime.Store) *Service {
	return NewService(store, presence.RoleRequester, "riley", "riley_requester_xyz", 10*time.Minute, zerolog.Nop())
}

func newProvider(store realtime.Store) *Service {
	return NewService(store, presence.RoleProvider, "pat", providerKey, 10*time.Minute, zerolog.Nop())
}

func requestSnapshot(t *testing.T, recs map[string]request.Record) realtime.Snapshot {
	t.Helper()
	snap := make(realtime.Snapshot)
	for key, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		snap[key] = data
	}
	return snap
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestSendWritesPendingSlot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)

	rec, err := svc.Send(ctx, providerKey, "Riley")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.Status != request.StatusPending {
		t.Fatalf("expected pending, got %s", rec.Status)
	}
	if out := svc.Outgoing(); out == nil || out.ToKey != providerKey {
		t.Fatalf("outgoing not adopted: %+v", out)
	}

	ch, cancel := store.Subscribe(ctx, realtime.RequestPrefix)
	defer cancel()
	snap := <-ch
	if _, ok := snap[realtime.SlotKey(providerKey)]; !ok {
		t.Fatal("slot record missing from store")
	}
}

func TestSendFailsClosedOnOutstandingRequest(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)

	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := svc.Send(ctx, "other_provider_key", "Riley"); !errors.Is(err, ErrRequestOutstanding) {
		t.Fatalf("expected ErrRequestOutstanding, got %v", err)
	}
}

func TestSendFailsClosedOnOccupiedSlot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)

	// The latest snapshot shows another requester holding the slot.
	svc.Reduce(requestSnapshot(t, map[string]request.Record{
		realtime.SlotKey(providerKey): {
			FromIdentity: "someone-else",
			ToKey:        providerKey,
			Status:       request.StatusPending,
			UpdatedAt:    time.Now().UTC(),
		},
	}))

	if _, err := svc.Send(ctx, providerKey, "Riley"); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestSendIgnoresTerminalSlot(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)

	svc.Reduce(requestSnapshot(t, map[string]request.Record{
		realtime.SlotKey(providerKey): {
			FromIdentity: "someone-else",
			ToKey:        providerKey,
			Status:       request.StatusRejected,
			UpdatedAt:    time.Now().UTC(),
		},
	}))

	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("terminal slot should not block a new request: %v", err)
	}
}

func TestProviderSeesPendingOnce(t *testing.T) {
	store := memstore.New()
	svc := newProvider(store)

	snap := requestSnapshot(t, map[string]request.Record{
		realtime.SlotKey(providerKey): {
			FromIdentity: "riley",
			FromName:     "Riley",
			ToKey:        providerKey,
			Status:       request.StatusPending,
			UpdatedAt:    time.Now().UTC(),
		},
	})

	events := svc.Reduce(snap)
	if got := kinds(events); len(got) != 1 || got[0] != EventIncomingPending {
		t.Fatalf("expected one incoming_pending, got %v", got)
	}
	if inc := svc.Incoming(); inc == nil || inc.FromIdentity != "riley" {
		t.Fatalf("incoming not adopted: %+v", inc)
	}

	// Identical snapshot redelivered: no spurious events.
	if events := svc.Reduce(snap); len(events) != 0 {
		t.Fatalf("expected no events on redelivery, got %v", kinds(events))
	}
}

func TestProviderTreatsStalePendingAsWithdrawn(t *testing.T) {
	store := memstore.New()
	svc := newProvider(store)

	fresh := request.Record{
		FromIdentity: "riley",
		ToKey:        providerKey,
		Status:       request.StatusPending,
		UpdatedAt:    time.Now().UTC(),
	}
	svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): fresh}))

	stale := fresh
	stale.UpdatedAt = time.Now().Add(-time.Hour)
	events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): stale}))
	if got := kinds(events); len(got) != 1 || got[0] != EventIncomingWithdrawn {
		t.Fatalf("expected incoming_withdrawn, got %v", got)
	}
	if svc.Incoming() != nil {
		t.Fatal("stale request must not stay actionable")
	}
}

func TestProviderObservesSlotRemoval(t *testing.T) {
	store := memstore.New()
	svc := newProvider(store)

	svc.Reduce(requestSnapshot(t, map[string]request.Record{
		realtime.SlotKey(providerKey): {
			FromIdentity: "riley",
			ToKey:        providerKey,
			Status:       request.StatusPending,
			UpdatedAt:    time.Now().UTC(),
		},
	}))

	events := svc.Reduce(realtime.Snapshot{})
	if got := kinds(events); len(got) != 1 || got[0] != EventIncomingWithdrawn {
		t.Fatalf("expected incoming_withdrawn on removal, got %v", got)
	}
}

func TestRequesterObservesAcceptance(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)
	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}

	accepted := request.Record{
		FromIdentity: "riley",
		ToKey:        providerKey,
		ToIdentity:   "pat",
		Status:       request.StatusAccepted,
		BookingID:    "b1",
		UpdatedAt:    time.Now().UTC(),
	}
	events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): accepted}))
	if got := kinds(events); len(got) != 1 || got[0] != EventAccepted {
		t.Fatalf("expected accepted, got %v", got)
	}
	if out := svc.Outgoing(); out == nil || out.Status != request.StatusAccepted {
		t.Fatalf("outgoing not advanced: %+v", out)
	}
}

func TestRequesterReobservesAcceptanceWhenBookingLands(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)
	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// Acceptance lands as two writes: the status flip first, the booking
	// id on the rewrite. Both must surface as events.
	accepted := request.Record{
		FromIdentity: "riley",
		ToKey:        providerKey,
		ToIdentity:   "pat",
		Status:       request.StatusAccepted,
		UpdatedAt:    time.Now().UTC(),
	}
	events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): accepted}))
	if got := kinds(events); len(got) != 1 || got[0] != EventAccepted {
		t.Fatalf("expected accepted, got %v", got)
	}

	accepted.BookingID = "b1"
	accepted.UpdatedAt = time.Now().UTC()
	events = svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): accepted}))
	if got := kinds(events); len(got) != 1 || got[0] != EventAccepted {
		t.Fatalf("expected accepted to re-fire with booking id, got %v", got)
	}
	if events[0].Record.BookingID != "b1" {
		t.Fatalf("booking id lost: %+v", events[0].Record)
	}
	if out := svc.Outgoing(); out == nil || out.BookingID != "b1" {
		t.Fatalf("outgoing missing booking id: %+v", out)
	}

	// An unchanged redelivery stays silent.
	if events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): accepted})); len(events) != 0 {
		t.Fatalf("expected no events on redelivery, got %v", kinds(events))
	}
}

func TestRequesterDetectsOverwrite(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)
	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// A competing requester's write replaced ours; the store kept theirs.
	winner := request.Record{
		FromIdentity: "someone-else",
		ToKey:        providerKey,
		Status:       request.StatusPending,
		UpdatedAt:    time.Now().UTC(),
	}
	events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): winner}))
	if got := kinds(events); len(got) != 1 || got[0] != EventOverwritten {
		t.Fatalf("expected overwritten, got %v", got)
	}
	if svc.Outgoing() != nil {
		t.Fatal("lost request must clear locally")
	}
}

func TestRequesterObservesRejection(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)
	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}

	rejected := request.Record{
		FromIdentity: "riley",
		ToKey:        providerKey,
		Status:       request.StatusRejected,
		UpdatedAt:    time.Now().UTC(),
	}
	events := svc.Reduce(requestSnapshot(t, map[string]request.Record{realtime.SlotKey(providerKey): rejected}))
	if got := kinds(events); len(got) != 1 || got[0] != EventRejected {
		t.Fatalf("expected rejected, got %v", got)
	}
	if svc.Outgoing() != nil {
		t.Fatal("rejected request must clear locally")
	}
}

func TestRejectRequiresPending(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newProvider(store)

	if err := svc.Reject(ctx); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("expected ErrNoRequest, got %v", err)
	}

	svc.Adopt(request.Record{
		FromIdentity: "riley",
		ToKey:        providerKey,
		Status:       request.StatusAccepted,
		UpdatedAt:    time.Now().UTC(),
	})
	if err := svc.Reject(ctx); !errors.Is(err, ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}
}

func TestCancelOutgoing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	svc := newRequester(store)
	if _, err := svc.Send(ctx, providerKey, "Riley"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.CancelOutgoing(ctx, "changed my mind"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if svc.Outgoing() != nil {
		t.Fatal("cancelled request must clear locally")
	}

	ch, cancel := store.Subscribe(ctx, realtime.RequestPrefix)
	defer cancel()
	snap := <-ch
	var rec request.Record
	if err := json.Unmarshal(snap[realtime.SlotKey(providerKey)], &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Status != request.StatusCancelled || rec.Reason != "changed my mind" {
		t.Fatalf("unexpected slot state: %+v", rec)
	}
}
