package presence

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/domain/presence"
	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

// Aggregator holds the full table of live presence records. Each incoming
// snapshot replaces the table wholesale rather than being merged, which
// sidesteps partial-update ordering bugs at the cost of rebuilding the
// table on every change.
type Aggregator struct {
	logger zerolog.Logger

	mu      sync.RWMutex
	table   map[string]presence.Record
	changed chan struct{}
}

func NewAggregator(logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		logger:  logger.With().Str("service", "presence-aggregator").Logger(),
		table:   make(map[string]presence.Record),
		changed: make(chan struct{}, 1),
	}
}

// Apply replaces the table with the contents of a presence snapshot.
// Records that fail to decode or validate are dropped, not surfaced.
// Applying the same snapshot twice yields the same table.
func (a *Aggregator) Apply(snap realtime.Snapshot) {
	table := make(map[string]presence.Record, len(snap))
	for key, raw := range snap {
		var rec presence.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("dropping undecodable presence record")
			continue
		}
		if err := rec.Validate(); err != nil {
			a.logger.Warn().Err(err).Str("key", key).Msg("dropping invalid presence record")
			continue
		}
		table[key] = rec
	}

	a.mu.Lock()
	a.table = table
	a.mu.Unlock()

	select {
	case a.changed <- struct{}{}:
	default:
	}
}

// Table returns a copy of the current table keyed by session key.
func (a *Aggregator) Table() map[string]presence.Record {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]presence.Record, len(a.table))
	for k, v := range a.table {
		out[k] = v
	}
	return out
}

// Get looks up one record by session key.
func (a *Aggregator) Get(sessionKey string) (presence.Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.table[realtime.SlotKey(sessionKey)]
	return rec, ok
}

// FindByIdentity returns the freshest record owned by an identity, if any.
// Multiple stale sessions per identity may coexist; the newest wins.
func (a *Aggregator) FindByIdentity(identity string) (presence.Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var best presence.Record
	found := false
	for _, rec := range a.table {
		if rec.Identity != identity {
			continue
		}
		if !found || rec.UpdatedAt.After(best.UpdatedAt) {
			best = rec
			found = true
		}
	}
	return best, found
}

// Changed signals after each applied snapshot; the channel is coalescing.
func (a *Aggregator) Changed() <-chan struct{} {
	return a.changed
}
