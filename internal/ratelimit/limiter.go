package ratelimit

import (
	"context"
	"fmt"
	"time"

	"callbridge/pkg/utils"

	"github.com/redis/go-redis/v9"
)

const callbackWindow = time.Minute

// Limiter applies a fixed-window cap per key, backed by redis so the cap
// holds across service instances.
type Limiter struct {
	rdb       *redis.Client
	perMinute int
	prefix    string
}

func NewLimiter(rdb *redis.Client, prefix string, perMinute int) *Limiter {
	if perMinute < 0 {
		perMinute = 0
	}
	return &Limiter{rdb: rdb, perMinute: perMinute, prefix: prefix}
}

// Allow reports whether another request for key fits in the current window.
// When denied, retryAfter carries the remaining window duration.
func (l *Limiter) Allow(ctx context.Context, key string) (retryAfter time.Duration, allowed bool, err error) {
	if key == "" {
		return 0, false, fmt.Errorf("rate key is required")
	}
	if l.rdb == nil {
		return 0, false, fmt.Errorf("rate limiter redis client is nil")
	}
	if l.perMinute == 0 {
		return 0, true, nil
	}

	count, ttl, err := utils.IncrementWindow(ctx, l.rdb, l.prefix+":"+key, callbackWindow)
	if err != nil {
		return 0, false, err
	}
	if count > int64(l.perMinute) {
		if ttl <= 0 {
			ttl = callbackWindow
		}
		return ttl, false, nil
	}
	return 0, true, nil
}
