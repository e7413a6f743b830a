package utils

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitBackoff decides whether and how long to wait before retrying a
// request the upstream rejected for rate limiting.
type RateLimitBackoff struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// NewRateLimitBackoff creates a backoff with short defaults suited to an
// interactive answer.
func NewRateLimitBackoff() *RateLimitBackoff {
	return &RateLimitBackoff{
		MaxRetries: 2,
		BaseDelay:  time.Second,
		MaxDelay:   10 * time.Second,
	}
}

func containsRateLimitPhrases(s string) bool {
	s = strings.ToLower(s)
	return strings.Contains(s, "rate limit") ||
		strings.Contains(s, "too many requests") ||
		strings.Contains(s, "insufficient_quota") ||
		(strings.Contains(s, "quota") && strings.Contains(s, "exceeded"))
}

// IsRateLimited reports whether resp, or its error message, indicates a
// rate limit.
func (b *RateLimitBackoff) IsRateLimited(resp *http.Response, message string) bool {
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return message != "" && containsRateLimitPhrases(message)
}

// ShouldRetry reports whether another attempt is allowed after attempt
// (zero-based) failed.
func (b *RateLimitBackoff) ShouldRetry(attempt int) bool {
	return b != nil && attempt < b.MaxRetries
}

// Delay returns how long to wait before the retry following attempt.
// Retry-After wins over exponential backoff.
func (b *RateLimitBackoff) Delay(resp *http.Response, attempt int) time.Duration {
	if resp != nil {
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && seconds >= 0 {
				return b.capDelay(time.Duration(seconds) * time.Second)
			}
			if at, err := http.ParseTime(retryAfter); err == nil {
				return b.capDelay(time.Until(at))
			}
		}
	}
	return b.capDelay(b.BaseDelay << attempt)
}

func (b *RateLimitBackoff) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}

// Wait sleeps for d or until ctx is done.
func (b *RateLimitBackoff) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
