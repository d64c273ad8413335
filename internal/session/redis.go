package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/p-n-ai/lesson-bot/internal/platform/cache"
)

// RedisStore keeps sessions as JSON values that expire after ttl of inactivity.
type RedisStore struct {
	cache *cache.Cache
	ttl   time.Duration
}

func NewRedisStore(c *cache.Cache, ttl time.Duration) (*RedisStore, error) {
	if c == nil || c.Client == nil {
		return nil, fmt.Errorf("cache is nil")
	}
	return &RedisStore{cache: c, ttl: ttl}, nil
}

func (r *RedisStore) key(userID int64) string {
	return r.cache.Key("session", strconv.FormatInt(userID, 10))
}

func (r *RedisStore) Get(ctx context.Context, userID int64) (*Session, error) {
	var s Session
	err := r.cache.GetJSON(ctx, r.key(userID), &s)
	if errors.Is(err, cache.ErrMiss) {
		return &Session{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || s.UserID == 0 {
		return fmt.Errorf("session user_id is required")
	}
	s.UpdatedAt = time.Now()
	if err := r.cache.SetJSON(ctx, r.key(s.UserID), s, r.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, userID int64) error {
	return r.cache.Delete(ctx, r.key(userID))
}
