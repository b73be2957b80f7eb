package presence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/infrastructure/memstore"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

func storedRecord(t *testing.T, store *memstore.Store, sessionKey string) (presence.Record, bool) {
	t.Helper()
	ch, cancel := store.Subscribe(context.Background(), realtime.PresencePrefix)
	defer cancel()
	snap := <-ch
	raw, ok := snap[realtime.SlotKey(sessionKey)]
	if !ok {
		return presence.Record{}, false
	}
	var rec presence.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return rec, true
}

func TestOnSampleRequiresSharing(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rec := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider}
	pub := NewPublisher(store, rec, zerolog.Nop())

	if err := pub.OnSample(ctx, presence.Position{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("sample while not sharing: %v", err)
	}
	if _, ok := storedRecord(t, store, "a_provider_1"); ok {
		t.Fatal("record surfaced before sharing started")
	}

	pub.StartSharing()
	if err := pub.OnSample(ctx, presence.Position{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("sample: %v", err)
	}
	got, ok := storedRecord(t, store, "a_provider_1")
	if !ok {
		t.Fatal("expected published record")
	}
	if got.Position.Lat != 1 || got.Position.Lng != 2 {
		t.Fatalf("unexpected position %+v", got.Position)
	}
}

func TestSetAvailableRepublishesImmediately(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rec := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider, Available: true}
	pub := NewPublisher(store, rec, zerolog.Nop())
	pub.StartSharing()
	if err := pub.OnSample(ctx, presence.Position{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("sample: %v", err)
	}

	if err := pub.SetAvailable(ctx, false); err != nil {
		t.Fatalf("set available: %v", err)
	}
	got, ok := storedRecord(t, store, "a_provider_1")
	if !ok {
		t.Fatal("expected record")
	}
	if got.Available {
		t.Fatal("availability flip not published")
	}
	if pub.Available() {
		t.Fatal("local view out of sync")
	}
}

func TestStopSharingRemovesRecord(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	rec := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider}
	pub := NewPublisher(store, rec, zerolog.Nop())
	pub.StartSharing()
	if err := pub.OnSample(ctx, presence.Position{Lat: 1, Lng: 2}); err != nil {
		t.Fatalf("sample: %v", err)
	}

	if err := pub.StopSharing(ctx); err != nil {
		t.Fatalf("stop sharing: %v", err)
	}
	if _, ok := storedRecord(t, store, "a_provider_1"); ok {
		t.Fatal("record still present after stop")
	}

	// Samples after stop are dropped.
	if err := pub.OnSample(ctx, presence.Position{Lat: 9, Lng: 9}); err != nil {
		t.Fatalf("sample after stop: %v", err)
	}
	if _, ok := storedRecord(t, store, "a_provider_1"); ok {
		t.Fatal("record republished after stop")
	}
}
