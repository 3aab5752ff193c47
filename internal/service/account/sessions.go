package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sessions tracks live login sessions. A session outlives its access tokens
// and dies with logout or when the refresh TTL passes without a refresh.
type Sessions interface {
	Create(ctx context.Context, sessionID, userID uuid.UUID, ttl time.Duration) error
	// Touch extends the session TTL. Missing sessions yield ErrSessionNotFound.
	Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error
	Exists(ctx context.Context, sessionID uuid.UUID) (bool, error)
	Delete(ctx context.Context, sessionID uuid.UUID) (bool, error)
}

func redisKeySession(sessionID uuid.UUID) string { return "session:" + sessionID.String() }

type redisSessions struct {
	rdb *redis.Client
}

func NewRedisSessions(rdb *redis.Client) Sessions {
	return &redisSessions{rdb: rdb}
}

func (s *redisSessions) Create(ctx context.Context, sessionID, userID uuid.UUID, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, redisKeySession(sessionID), userID.String(), ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (s *redisSessions) Touch(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	ok, err := s.rdb.Expire(ctx, redisKeySession(sessionID), ttl).Result()
	if err != nil {
		return fmt.Errorf("extend session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

func (s *redisSessions) Exists(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	err := s.rdb.Get(ctx, redisKeySession(sessionID)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get session: %w", err)
	}
	return true, nil
}

func (s *redisSessions) Delete(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	n, err := s.rdb.Del(ctx, redisKeySession(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	return n > 0, nil
}
