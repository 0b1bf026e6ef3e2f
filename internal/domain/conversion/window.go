package conversion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Window tracks each user's most recent successful conversion, feeding the
// rapid-succession fraud signal. A nil Window disables the signal.
type Window interface {
	Last(ctx context.Context, userID uuid.UUID) *time.Time
	Touch(ctx context.Context, userID uuid.UUID, at time.Time)
}

// RedisWindow keeps the timestamp under a key that expires with the window,
// so an absent key simply means "not rapid".
type RedisWindow struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisWindow(rdb *redis.Client, ttl time.Duration) *RedisWindow {
	return &RedisWindow{rdb: rdb, ttl: ttl}
}

func windowKey(userID uuid.UUID) string {
	return "conversion:last:" + userID.String()
}

func (w *RedisWindow) Last(ctx context.Context, userID uuid.UUID) *time.Time {
	raw, err := w.rdb.Get(ctx, windowKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("rapid-succession lookup failed, skipping signal")
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func (w *RedisWindow) Touch(ctx context.Context, userID uuid.UUID, at time.Time) {
	if err := w.rdb.Set(ctx, windowKey(userID), at.UTC().Format(time.RFC3339Nano), w.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("rapid-succession update failed")
	}
}
