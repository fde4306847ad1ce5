// ABOUTME: Per-bot fixed-window admission control for inbound gateway traffic
// ABOUTME: Counters live in the shared store so replicas agree on admission

package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CategoryWS is the rate limit category for inbound WebSocket frames.
const CategoryWS = "bot_ws"

// BucketStore is the shared counter the limiter increments. The
// increment must be atomic across gateway replicas.
type BucketStore interface {
	IncrRateBucket(ctx context.Context, key string, window time.Duration) (count int64, windowStart int64, err error)
}

// Result is the outcome of one admission check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration // only set when denied
}

// Limiter enforces a fixed-window limit per bot and category.
type Limiter struct {
	store  BucketStore
	limit  int
	window time.Duration
	logger *slog.Logger
}

// New creates a limiter with the given limit per window.
// Pass nil logger for default.
func New(store BucketStore, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger.With("component", "ratelimit"),
	}
}

// Check counts one request against the bot's bucket and reports whether
// it is admitted. Denials include the time until the window resets.
func (l *Limiter) Check(ctx context.Context, botUserID, category string) (*Result, error) {
	key := fmt.Sprintf("%s:%s", category, botUserID)

	count, windowStart, err := l.store.IncrRateBucket(ctx, key, l.window)
	if err != nil {
		return nil, fmt.Errorf("incrementing rate bucket: %w", err)
	}

	if count <= int64(l.limit) {
		return &Result{
			Allowed:   true,
			Limit:     l.limit,
			Remaining: l.limit - int(count),
		}, nil
	}

	retryAfter := time.Until(time.Unix(windowStart, 0).Add(l.window))
	if retryAfter < time.Second {
		// Bucket granularity is one second; never report zero
		retryAfter = time.Second
	}

	l.logger.Debug("rate limit exceeded",
		"bot_user_id", botUserID,
		"category", category,
		"retry_after", retryAfter)

	return &Result{
		Allowed:    false,
		Limit:      l.limit,
		RetryAfter: retryAfter,
	}, nil
}
