package breaker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each snapshot as JSON and swaps under WATCH.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(name string) string { return s.prefix + "breaker:" + name }

func (s *RedisStore) Load(ctx context.Context, name string) (Snapshot, error) {
	return s.read(ctx, s.client, name)
}

func (s *RedisStore) read(ctx context.Context, c redis.Cmdable, name string) (Snapshot, error) {
	raw, err := c.Get(ctx, s.key(name)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Fresh(name), nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, prev, next Snapshot) (bool, error) {
	payload, err := json.Marshal(next)
	if err != nil {
		return false, err
	}
	key := s.key(prev.Name)
	swapped := false
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := s.read(ctx, tx, prev.Name)
		if err != nil {
			return err
		}
		if stored.Version != prev.Version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err == nil {
			swapped = true
		}
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return swapped, err
}
