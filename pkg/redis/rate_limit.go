package redis

import (
	"context"
	"errors"
	"strconv"
	"time"
)

const rateLimitPrefix = "rate_limit"

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// RateLimiter exposes the fixed-window counter used by the storefront limiter.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Decision, error)
}

// FixedWindowAllow counts a hit against scope in the current wall-clock window.
// Each window gets its own key, so a counter that lost its TTL still stops
// counting once the window rolls over.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (Decision, error) {
	if c.store == nil {
		return Decision{}, errNotInitialized
	}
	if window <= 0 {
		return Decision{}, errors.New("rate limit window must be positive")
	}

	now := c.clock()
	start := now.Truncate(window)
	k := key(rateLimitPrefix, scope, strconv.FormatInt(start.Unix(), 10))

	count, err := c.store.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		if err := c.store.Expire(ctx, k, 2*window).Err(); err != nil {
			return Decision{}, err
		}
	}
	return Decision{
		Allowed:    count <= limit,
		Count:      count,
		RetryAfter: start.Add(window).Sub(now),
	}, nil
}
