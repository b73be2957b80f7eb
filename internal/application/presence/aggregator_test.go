package presence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

func snapshotOf(t *testing.T, recs ...presence.Record) realtime.Snapshot {
	t.Helper()
	snap := make(realtime.Snapshot)
	for _, rec := range recs {
		data, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		snap[realtime.SlotKey(rec.SessionKey)] = data
	}
	return snap
}

func TestApplyReplacesWholesale(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	a := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider}
	b := presence.Record{Identity: "b", SessionKey: "b_provider_1", Role: presence.RoleProvider}

	agg.Apply(snapshotOf(t, a, b))
	if len(agg.Table()) != 2 {
		t.Fatalf("expected 2 records, got %d", len(agg.Table()))
	}

	// Next snapshot no longer contains b; it must vanish, not linger.
	agg.Apply(snapshotOf(t, a))
	table := agg.Table()
	if len(table) != 1 {
		t.Fatalf("expected 1 record after replacement, got %d", len(table))
	}
	if _, ok := agg.Get("b_provider_1"); ok {
		t.Fatal("removed record still resolvable")
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	a := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider}
	snap := snapshotOf(t, a)

	agg.Apply(snap)
	first := agg.Table()
	agg.Apply(snap)
	second := agg.Table()

	if len(first) != len(second) {
		t.Fatalf("tables differ: %d vs %d", len(first), len(second))
	}
	if first["a_provider_1"] != second["a_provider_1"] {
		t.Fatal("re-applying the same snapshot changed the table")
	}
}

func TestApplyDropsInvalidRecords(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	snap := realtime.Snapshot{
		"broken":  json.RawMessage(`{not json`),
		"no_role": json.RawMessage(`{"identity":"x","sessionKey":"k"}`),
	}
	agg.Apply(snap)
	if len(agg.Table()) != 0 {
		t.Fatal("invalid records must not surface")
	}
}

func TestFindByIdentityPrefersFreshest(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	old := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider, UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := presence.Record{Identity: "a", SessionKey: "a_provider_2", Role: presence.RoleProvider, UpdatedAt: time.Now()}
	agg.Apply(snapshotOf(t, old, fresh))

	rec, ok := agg.FindByIdentity("a")
	if !ok {
		t.Fatal("expected record for identity")
	}
	if rec.SessionKey != "a_provider_2" {
		t.Fatalf("expected freshest session, got %s", rec.SessionKey)
	}

	if _, ok := agg.FindByIdentity("nobody"); ok {
		t.Fatal("unexpected record for unknown identity")
	}
}

func TestChangedSignalCoalesces(t *testing.T) {
	agg := NewAggregator(zerolog.Nop())
	a := presence.Record{Identity: "a", SessionKey: "a_provider_1", Role: presence.RoleProvider}
	agg.Apply(snapshotOf(t, a))
	agg.Apply(snapshotOf(t, a))

	select {
	case <-agg.Changed():
	default:
		t.Fatal("expected pending change signal")
	}
	select {
	case <-agg.Changed():
		t.Fatal("signal must coalesce to one")
	default:
	}
}
