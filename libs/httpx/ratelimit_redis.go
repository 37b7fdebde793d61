package httpx

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window limiter shared by every replica, so a
// requester cannot multiply their booking budget by spreading requests over
// instances.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int64
	window time.Duration
	prefix string
	keyFn  KeyFunc
}

// The script returns the window's hit count and its remaining lifetime in ms.
var fixedWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

func NewRedisRateLimiter(rdb redis.Scripter, limit int, window time.Duration, prefix string, keyFn KeyFunc) *RedisRateLimiter {
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "rl"
	}
	if keyFn == nil {
		keyFn = ClientIP
	}
	return &RedisRateLimiter{rdb: rdb, limit: int64(limit), window: window, prefix: prefix, keyFn: keyFn}
}

// Middleware rejects callers over the limit with 429 and Retry-After. When
// Redis is down, failOpen lets requests through instead of answering 503.
func (rl *RedisRateLimiter) Middleware(logger *slog.Logger, failOpen bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits, ttl, err := rl.hit(r.Context(), rl.prefix+":"+rl.keyFn(r))
			switch {
			case err != nil:
				if logger != nil {
					logger.Warn("rate limiter unavailable", "fail_open", failOpen, "err", err)
				}
				if !failOpen {
					WriteError(w, r, http.StatusServiceUnavailable, "rate_limiter_unavailable", "rate limiter unavailable")
					return
				}
			case hits > rl.limit:
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(ttl, rl.window)))
				WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (rl *RedisRateLimiter) hit(ctx context.Context, key string) (int64, time.Duration, error) {
	vals, err := fixedWindow.Run(ctx, rl.rdb, []string{key}, rl.window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("rate limit script returned %d values", len(vals))
	}
	return vals[0], time.Duration(vals[1]) * time.Millisecond, nil
}

// retryAfterSeconds rounds the remaining window up to whole seconds.
func retryAfterSeconds(ttl, window time.Duration) int {
	if ttl <= 0 {
		ttl = window
	}
	return int((ttl + time.Second - 1) / time.Second)
}
