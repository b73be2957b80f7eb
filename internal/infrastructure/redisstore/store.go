// Package redisstore implements realtime.Store on Redis. Records are JSON
// strings under prefixed keys; every write publishes the changed path on a
// shared pub/sub channel and subscribers rebuild the full prefix subtree
// (SCAN + MGET) on each event, which matches the store contract of pushing
// whole-subtree snapshots rather than diffs.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fieldmatch/fieldmatch/internal/realtime"
)

const (
	keyPrefix     = "rt:"
	changeChannel = "rt:changed"
)

// Store implements realtime.Store.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

func New(client *redis.Client, logger zerolog.Logger) *Store {
	return &Store{
		client: client,
		logger: logger.With().Str("component", "redisstore").Logger(),
	}
}

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *Store) Put(ctx context.Context, path string, record []byte) error {
	pipe := s.client.Pipeline()
	pipe.Set(ctx, keyPrefix+path, record, 0)
	pipe.Publish(ctx, changeChannel, path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put %s: %w", path, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, path string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, keyPrefix+path)
	pipe.Publish(ctx, changeChannel, path)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to remove %s: %w", path, err)
	}
	return nil
}

func (s *Store) Subscribe(ctx context.Context, prefix string) (<-chan realtime.Snapshot, func()) {
	out := make(chan realtime.Snapshot, 1)
	pubsub := s.client.Subscribe(ctx, changeChannel)

	go func() {
		defer close(out)

		snap, err := s.buildSnapshot(ctx, prefix)
		if err != nil {
			s.logger.Error().Err(err).Str("prefix", prefix).Msg("initial snapshot failed")
		} else {
			pushLatest(out, snap)
		}

		for msg := range pubsub.Channel() {
			if !strings.HasPrefix(msg.Payload, prefix) {
				continue
			}
			snap, err := s.buildSnapshot(ctx, prefix)
			if err != nil {
				s.logger.Error().Err(err).Str("prefix", prefix).Msg("snapshot rebuild failed")
				continue
			}
			pushLatest(out, snap)
		}
	}()

	cancel := func() {
		_ = pubsub.Close()
	}
	return out, cancel
}

func (s *Store) buildSnapshot(ctx context.Context, prefix string) (realtime.Snapshot, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, keyPrefix+prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", prefix, err)
	}

	snap := make(realtime.Snapshot, len(keys))
	if len(keys) == 0 {
		return snap, nil
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s records: %w", prefix, err)
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Key expired between SCAN and MGET.
			continue
		}
		snap[strings.TrimPrefix(keys[i], keyPrefix+prefix)] = json.RawMessage(str)
	}
	return snap, nil
}

// pushLatest replaces any undelivered snapshot so consumers always see the
// newest state. The subscription goroutine is the only sender.
func pushLatest(ch chan realtime.Snapshot, snap realtime.Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
