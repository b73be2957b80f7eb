// Package memstore is an in-memory realtime.Store used by tests, the
// scenario simulator, and store-less local runs. Snapshots are fanned out
// synchronously on every write with latest-wins coalescing per subscriber:
// a slow consumer skips intermediate snapshots but never observes an older
// snapshot after a newer one.
package memstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

// Store implements realtime.Store over a mutex-guarded map.
type Store struct {
	mu      sync.Mutex
	records map[string]json.RawMessage
	subs    map[int]*subscriber
	nextSub int
}

type subscriber struct {
	prefix string
	ch     chan realtime.Snapshot
	closed bool
}

func New() *Store {
	return &Store{
		records: make(map[string]json.RawMessage),
		subs:    make(map[int]*subscriber),
	}
}

func (s *Store) Put(ctx context.Context, path string, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := make(json.RawMessage, len(record))
	copy(c, record)
	s.records[path] = c
	s.fanout(path)
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[path]; !ok {
		return nil
	}
	delete(s.records, path)
	s.fanout(path)
	return nil
}

func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan realtime.Snapshot, func()) {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	sub := &subscriber{prefix: prefix, ch: make(chan realtime.Snapshot, 1)}
	s.subs[id] = sub
	sub.push(s.snapshotLocked(prefix))
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		delete(s.subs, id)
		close(sub.ch)
	}
	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return sub.ch, cancel
}

// fanout delivers fresh snapshots to every subscriber whose prefix covers
// path. Caller holds s.mu, which also serializes against cancellation so a
// push can never hit a closed channel.
func (s *Store) fanout(path string) {
	for _, sub := range s.subs {
		if !strings.HasPrefix(path, sub.prefix) {
			continue
		}
		sub.push(s.snapshotLocked(sub.prefix))
	}
}

func (s *Store) snapshotLocked(prefix string) realtime.Snapshot {
	snap := make(realtime.Snapshot)
	for path, rec := range s.records {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		c := make(json.RawMessage, len(rec))
		copy(c, rec)
		snap[strings.TrimPrefix(path, prefix)] = c
	}
	return snap
}

// push replaces any undelivered snapshot with the newer one.
func (sub *subscriber) push(snap realtime.Snapshot) {
	if sub.closed {
		return
	}
	for {
		select {
		case sub.ch <- snap:
			return
		default:
			select {
			case <-sub.ch:
			default:
			}
		}
	}
}
