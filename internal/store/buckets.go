// ABOUTME: Fixed-window rate bucket counters as a single atomic upsert
// ABOUTME: Window rollover and increment happen in one statement

package store

import (
	"context"
	"fmt"
	"time"
)

// IncrRateBucket increments the fixed-window counter for key, rolling the
// window over when the configured duration has elapsed. The upsert is one
// statement so concurrent gateway replicas never double-count or race the
// rollover. Returns the post-increment count and the window start (unix
// seconds).
func (s *SQLiteStore) IncrRateBucket(ctx context.Context, key string, window time.Duration) (int64, int64, error) {
	now := time.Now().Unix()
	windowSecs := int64(window.Seconds())

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO rate_buckets (key, count, window_start) VALUES (?, 1, ?)
		ON CONFLICT(key) DO UPDATE SET
			count = CASE
				WHEN excluded.window_start - rate_buckets.window_start >= ? THEN 1
				ELSE rate_buckets.count + 1
			END,
			window_start = CASE
				WHEN excluded.window_start - rate_buckets.window_start >= ? THEN excluded.window_start
				ELSE rate_buckets.window_start
			END
		RETURNING count, window_start`,
		key, now, windowSecs, windowSecs)

	var count, windowStart int64
	if err := row.Scan(&count, &windowStart); err != nil {
		return 0, 0, fmt.Errorf("incrementing rate bucket: %w", err)
	}
	return count, windowStart, nil
}
