// Package presence tracks per-user online state in Redis. Marking online
// writes a last-seen key with a TTL; a user is online while the key lives.
// A lost offline signal therefore goes stale after the TTL instead of
// sticking online forever.
package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// Store keeps presence keys in Redis with TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New builds a Redis-backed presence store.
func New(addr, password string, ttl time.Duration) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

// MarkOnline refreshes the user's last-seen key. Clients call it on mount
// and on visibility changes, so the TTL keeps sliding while the tab lives.
func (s *Store) MarkOnline(ctx context.Context, userID int64) error {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return s.client.Set(ctx, key(userID), now, s.ttl).Err()
}

// MarkOffline drops the user's presence key immediately.
func (s *Store) MarkOffline(ctx context.Context, userID int64) error {
	err := s.client.Del(ctx, key(userID)).Err()
	if err != nil && err != redis.Nil {
		return err
	}
	return nil
}

// Online reports which of the given users currently hold a live presence
// key.
func (s *Store) Online(ctx context.Context, userIDs []int64) (map[int64]bool, error) {
	online := make(map[int64]bool, len(userIDs))
	if len(userIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = key(id)
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	for i, v := range vals {
		online[userIDs[i]] = v != nil
	}
	return online, nil
}

// IsOnline reports a single user's presence.
func (s *Store) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := s.client.Exists(ctx, key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
