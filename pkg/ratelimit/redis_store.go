package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const removalKeyPrefix = "device:removal:"

// RedisCooldownStore shares removal timestamps between instances.
// Keys expire with the cooldown window, so Redis holds no stale entries.
type RedisCooldownStore struct {
	client redis.UniversalClient
}

func NewRedisCooldownStore(client redis.UniversalClient) *RedisCooldownStore {
	return &RedisCooldownStore{client: client}
}

func (s *RedisCooldownStore) LastRemoval(ctx context.Context, userID string) (time.Time, bool, error) {
	val, err := s.client.Get(ctx, removalKeyPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(millis), true, nil
}

func (s *RedisCooldownStore) SetLastRemoval(ctx context.Context, userID string, at time.Time, ttl time.Duration) error {
	return s.client.Set(ctx, removalKeyPrefix+userID, strconv.FormatInt(at.UnixMilli(), 10), ttl).Err()
}
