// Package redis implements feedstore.Store on a Redis backend.
//
// Feeds are sorted sets (ZADD/ZREVRANGE/ZREMRANGEBYRANK), reblog
// shadow sets are plain sets (SADD/SREM/SMEMBERS). Every operation
// maps to a single Redis command, which is what gives the feed store
// its single-key atomicity.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vireo-social/vireo/internal/feedstore"
)

// Store implements feedstore.Store using a Redis client.
type Store struct {
	rdb *redis.Client
}

// compile-time interface check
var _ feedstore.Store = (*Store)(nil)

// New creates a Store over an existing Redis client. The caller owns
// client configuration; Close releases it.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Add(ctx context.Context, key, entryID string, score float64) error {
	if err := s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: entryID}).Err(); err != nil {
		return fmt.Errorf("feedstore: zadd %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key, entryID string) error {
	if err := s.rdb.ZRem(ctx, key, entryID).Err(); err != nil {
		return fmt.Errorf("feedstore: zrem %s: %w", key, err)
	}
	return nil
}

func (s *Store) Trim(ctx context.Context, key string, maxSize int64) error {
	// Members rank ascending by score, so removing ranks
	// [0, -maxSize-1] drops everything below the top maxSize.
	if err := s.rdb.ZRemRangeByRank(ctx, key, 0, -maxSize-1).Err(); err != nil {
		return fmt.Errorf("feedstore: zremrangebyrank %s: %w", key, err)
	}
	return nil
}

func (s *Store) RangeDesc(ctx context.Context, key string, start, stop int64) ([]feedstore.Entry, error) {
	zs, err := s.rdb.ZRevRangeWithScores(ctx, key, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("feedstore: zrevrange %s: %w", key, err)
	}
	entries := make([]feedstore.Entry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			id = fmt.Sprint(z.Member)
		}
		entries = append(entries, feedstore.Entry{ID: id, Score: z.Score})
	}
	return entries, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("feedstore: exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) Card(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("feedstore: zcard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	// DEL on absent keys succeeds, which keeps deletes re-runnable.
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("feedstore: del %v: %w", keys, err)
	}
	return nil
}

func (s *Store) SetAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("feedstore: sadd %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *Store) SetRemove(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.SRem(ctx, key, member).Result()
	if err != nil {
		return false, fmt.Errorf("feedstore: srem %s: %w", key, err)
	}
	return n == 1, nil
}

func (s *Store) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("feedstore: smembers %s: %w", key, err)
	}
	return members, nil
}

func (s *Store) SetCard(ctx context.Context, key string) (int64, error) {
	n, err := s.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("feedstore: scard %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", feedstore.ErrUnavailable, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}
