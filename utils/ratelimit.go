package utils

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"instafetch/internal"
)

// TokenBucketLimiter implements rate limiting using a token bucket.
// The media fetcher uses it to throttle bulk carousel downloads so a
// single resolution does not hammer the CDN.
type TokenBucketLimiter struct {
	rate       int64
	bucket     int64
	maxBucket  int64
	lastUpdate time.Time
	mutex      sync.Mutex
}

// NewTokenBucketLimiter creates a new rate limiter. A rate of zero or
// less disables limiting entirely.
func NewTokenBucketLimiter(bytesPerSecond int64) internal.RateLimiter {
	return &TokenBucketLimiter{
		rate:       bytesPerSecond,
		bucket:     bytesPerSecond,
		maxBucket:  bytesPerSecond,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until the specified number of bytes can be consumed
func (r *TokenBucketLimiter) Wait(ctx context.Context, n int) error {
	r.mutex.Lock()
	rate := r.rate
	r.mutex.Unlock()
	if rate <= 0 {
		return nil
	}

	for {
		r.mutex.Lock()
		r.refill()
		if r.bucket >= int64(n) {
			r.bucket -= int64(n)
			r.mutex.Unlock()
			return nil
		}
		deficit := int64(n) - r.bucket
		r.mutex.Unlock()

		wait := time.Duration(float64(deficit) / float64(rate) * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// SetRate updates the limiter's rate in bytes per second.
func (r *TokenBucketLimiter) SetRate(bytesPerSecond int64) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.rate = bytesPerSecond
	r.maxBucket = bytesPerSecond
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}
}

// refill adds tokens based on elapsed time. Caller must hold the mutex.
func (r *TokenBucketLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate)
	r.lastUpdate = now

	r.bucket += int64(float64(r.rate) * elapsed.Seconds())
	if r.bucket > r.maxBucket {
		r.bucket = r.maxBucket
	}
}

// ParseRateLimit parses human-readable rate strings like "500K", "1M",
// "2MB" or plain byte counts into bytes per second.
func ParseRateLimit(rateStr string) (int64, error) {
	rateStr = strings.TrimSpace(rateStr)
	if rateStr == "" {
		return 0, nil
	}

	if val, err := strconv.ParseInt(rateStr, 10, 64); err == nil {
		if val < 0 {
			return 0, fmt.Errorf("rate cannot be negative: %s", rateStr)
		}
		return val, nil
	}

	upper := strings.ToUpper(rateStr)
	numStr := rateStr
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"), strings.HasSuffix(upper, "K"):
		multiplier = 1024
		numStr = strings.TrimRight(rateStr, "kKbB")
	case strings.HasSuffix(upper, "MB"), strings.HasSuffix(upper, "M"):
		multiplier = 1024 * 1024
		numStr = strings.TrimRight(rateStr, "mMbB")
	case strings.HasSuffix(upper, "GB"), strings.HasSuffix(upper, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = strings.TrimRight(rateStr, "gGbB")
	case strings.HasSuffix(upper, "B"):
		numStr = strings.TrimRight(rateStr, "bB")
	default:
		return 0, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	base, err := strconv.ParseFloat(strings.TrimSpace(numStr), 64)
	if err != nil || base < 0 {
		return 0, fmt.Errorf("invalid rate format: %s", rateStr)
	}

	return int64(base * float64(multiplier)), nil
}
