package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	pasetotoken "github.com/echohealth/echo_backend/pkg/paseto"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 255
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 5 * time.Minute
)

// ResponseCache holds idempotency records. Reserve stores val only if key
// is absent.
type ResponseCache interface {
	Reserve(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Store(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type redisResponseCache struct {
	rdb *redis.Client
}

func NewRedisResponseCache(rdb *redis.Client) ResponseCache {
	return &redisResponseCache{rdb: rdb}
}

func (r *redisResponseCache) Reserve(ctx context.Context, key string, val []byte, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, key, val, ttl).Result()
}

func (r *redisResponseCache) Load(ctx context.Context, key string) ([]byte, bool, error) {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *redisResponseCache) Store(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return r.rdb.Set(ctx, key, val, ttl).Err()
}

func (r *redisResponseCache) Release(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, key).Err()
}

type storedResponse struct {
	InFlight    bool   `json:"in_flight,omitempty"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotency replays the first response recorded for the same user and
// Idempotency-Key header for ttl. Requests without the header pass through.
// A second request arriving while the first is still running gets 409.
//
// Server errors are not recorded so the client may retry, except 502 which
// reports a payout whose outcome is still pending.
func Idempotency(cache ResponseCache, ttl time.Duration) fiber.Handler {
	return func(c fiber.Ctx) error {
		key := c.Get(HeaderIdempotencyKey)
		if key == "" {
			return c.Next()
		}
		if len(key) > maxIdempotencyKeyLen {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Idempotency-Key is too long"})
		}
		claims, ok := pasetotoken.ClaimsFromFiber(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		ctx := c.Context()
		rkey := "idem:" + claims.UserID.String() + ":" + key

		marker, _ := json.Marshal(storedResponse{InFlight: true})
		acquired, err := cache.Reserve(ctx, rkey, marker, inFlightTTL)
		if err != nil {
			return err
		}
		if !acquired {
			return replay(c, cache, rkey)
		}

		if err := c.Next(); err != nil {
			_ = cache.Release(ctx, rkey)
			return err
		}

		status := c.Response().StatusCode()
		if status >= fiber.StatusInternalServerError && status != fiber.StatusBadGateway {
			_ = cache.Release(ctx, rkey)
			return nil
		}

		rec, _ := json.Marshal(storedResponse{
			Status:      status,
			ContentType: string(c.Response().Header.ContentType()),
			Body:        append([]byte(nil), c.Response().Body()...),
		})
		if err := cache.Store(ctx, rkey, rec, ttl); err != nil {
			slog.ErrorContext(ctx, "store idempotent response failed", "key", key, "err", err)
		}
		return nil
	}
}

func replay(c fiber.Ctx, cache ResponseCache, rkey string) error {
	raw, found, err := cache.Load(c.Context(), rkey)
	if err != nil {
		return err
	}
	if !found {
		// Expired between Reserve and Load.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "request with this Idempotency-Key is being processed"})
	}

	var rec storedResponse
	if err := json.Unmarshal(raw, &rec); err != nil {
		return err
	}
	if rec.InFlight {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "request with this Idempotency-Key is being processed"})
	}

	c.Set(HeaderReplayed, "true")
	if rec.ContentType != "" {
		c.Set(fiber.HeaderContentType, rec.ContentType)
	}
	return c.Status(rec.Status).Send(rec.Body)
}
