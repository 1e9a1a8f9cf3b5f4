package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one sorted set per actor scored by unix microseconds.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisStore expires idle actor keys after ttl, normally the widest window.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(actor string) string { return s.prefix + "ratelimit:" + actor }

func score(t time.Time) string { return strconv.FormatInt(t.UnixMicro(), 10) }

func (s *RedisStore) Append(ctx context.Context, actor string, at time.Time) error {
	k := s.key(actor)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(at.UnixMicro()), Member: uuid.NewString()})
	if s.ttl > 0 {
		pipe.PExpire(ctx, k, s.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Prune(ctx context.Context, actor string, cutoff time.Time) error {
	return s.client.ZRemRangeByScore(ctx, s.key(actor), "-inf", score(cutoff)).Err()
}

func (s *RedisStore) Since(ctx context.Context, actor string, cutoff time.Time) ([]time.Time, error) {
	zs, err := s.client.ZRangeByScoreWithScores(ctx, s.key(actor), &redis.ZRangeBy{
		Min: "(" + score(cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		out = append(out, time.UnixMicro(int64(z.Score)))
	}
	return out, nil
}
