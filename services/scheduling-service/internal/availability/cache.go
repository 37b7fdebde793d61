package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fureverhome/pawbook/services/scheduling-service/internal/model"
)

// MonthReservations maps each date of a month to its reserved slot times.
type MonthReservations map[model.Date][]model.TimeOfDay

// MonthCache stores month reads for calendar rendering. Entries may be stale
// and are never consulted when deciding whether a booking succeeds.
type MonthCache interface {
	Get(ctx context.Context, professionalID string, year int, month time.Month) (MonthReservations, bool, error)
	Set(ctx context.Context, professionalID string, year int, month time.Month, data MonthReservations) error
	Invalidate(ctx context.Context, professionalID string, year int, month time.Month) error
}

// NopCache disables month caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string, int, time.Month) (MonthReservations, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(context.Context, string, int, time.Month, MonthReservations) error { return nil }

func (NopCache) Invalidate(context.Context, string, int, time.Month) error { return nil }

// RedisMonthCache keeps one JSON document per professional and month.
type RedisMonthCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisMonthCache(rdb redis.Cmdable, ttl time.Duration) *RedisMonthCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisMonthCache{rdb: rdb, ttl: ttl, prefix: "pawbook:reserved"}
}

func (c *RedisMonthCache) key(professionalID string, year int, month time.Month) string {
	return fmt.Sprintf("%s:%s:%04d-%02d", c.prefix, professionalID, year, int(month))
}

func (c *RedisMonthCache) Get(ctx context.Context, professionalID string, year int, month time.Month) (MonthReservations, bool, error) {
	raw, err := c.rdb.Get(ctx, c.key(professionalID, year, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("month cache get: %w", err)
	}
	var data MonthReservations
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("month cache decode: %w", err)
	}
	return data, true, nil
}

func (c *RedisMonthCache) Set(ctx context.Context, professionalID string, year int, month time.Month, data MonthReservations) error {
	if data == nil {
		data = MonthReservations{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("month cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, c.key(professionalID, year, month), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("month cache set: %w", err)
	}
	return nil
}

func (c *RedisMonthCache) Invalidate(ctx context.Context, professionalID string, year int, month time.Month) error {
	if err := c.rdb.Del(ctx, c.key(professionalID, year, month)).Err(); err != nil {
		return fmt.Errorf("month cache invalidate: %w", err)
	}
	return nil
}
