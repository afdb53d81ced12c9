package redis

import (
	"context"
	"time"

	"ai-playground/internal/domain/ports/repository"
)

var _ repository.ChatLimiter = (*RateLimiter)(nil)

// windowCounter counts hits in a fixed window; *Client implements it.
type windowCounter interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimiter caps chat requests per session in fixed windows.
type RateLimiter struct {
	counter windowCounter
	limit   int64
	window  time.Duration
}

// NewRateLimiter allows limit chat requests per session per window. A
// non-positive limit disables throttling.
func NewRateLimiter(counter windowCounter, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{counter: counter, limit: int64(limit), window: window}
}

func (r *RateLimiter) AllowChat(ctx context.Context, sessionID string) (bool, error) {
	if r.limit <= 0 {
		return true, nil
	}
	n, _, err := r.counter.Hit(ctx, rateKey(sessionID), r.window)
	if err != nil {
		return false, err
	}
	return n <= r.limit, nil
}

// rateKey lives beside the session keys but is left out of allKeys so that
// session writes never stretch the window.
func rateKey(sessionID string) string { return key(sessionID, "rate") }
