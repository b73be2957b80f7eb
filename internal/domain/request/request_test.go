package request

import (
	"testing"
	"time"
)

func TestCanTransitionTo(t *testing.T) {
	allowed := []struct {
		from, to Status
	}{
		{StatusPending, StatusAccepted},
		{StatusPending, StatusRejected},
		{StatusPending, StatusCancelled},
		{StatusAccepted, StatusAwaitingSettlement},
		{StatusAccepted, StatusCancelled},
		{StatusAwaitingSettlement, StatusSettled},
		{StatusAwaitingSettlement, StatusCancelled},
	}
	for _, tc := range allowed {
		r := Record{Status: tc.from}
		if !r.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be allowed", tc.from, tc.to)
		}
	}

	denied := []struct {
		from, to Status
	}{
		{StatusPending, StatusAwaitingSettlement},
		{StatusPending, StatusSettled},
		{StatusAccepted, StatusRejected},
		{StatusAccepted, StatusPending},
		{StatusRejected, StatusPending},
		{StatusCancelled, StatusAccepted},
		{StatusSettled, StatusCancelled},
	}
	for _, tc := range denied {
		r := Record{Status: tc.from}
		if r.CanTransitionTo(tc.to) {
			t.Fatalf("expected %s -> %s to be denied", tc.from, tc.to)
		}
	}
}

func TestTerminalAndLive(t *testing.T) {
	live := []Status{StatusPending, StatusAccepted, StatusAwaitingSettlement}
	for _, s := range live {
		r := Record{Status: s}
		if r.Terminal() {
			t.Fatalf("status %s should not be terminal", s)
		}
		if !r.Live() {
			t.Fatalf("status %s should be live", s)
		}
	}
	terminal := []Status{StatusRejected, StatusCancelled, StatusSettled}
	for _, s := range terminal {
		r := Record{Status: s}
		if !r.Terminal() {
			t.Fatalf("status %s should be terminal", s)
		}
		if r.Live() {
			t.Fatalf("status %s should not be live", s)
		}
	}
}

func TestStale(t *testing.T) {
	now := time.Now()
	r := Record{Status: StatusPending, UpdatedAt: now.Add(-15 * time.Minute)}
	if !r.Stale(now, 10*time.Minute) {
		t.Fatal("expected record older than ttl to be stale")
	}
	if r.Stale(now, 20*time.Minute) {
		t.Fatal("expected record within ttl to be fresh")
	}
	if r.Stale(now, 0) {
		t.Fatal("zero ttl disables staleness")
	}
}
