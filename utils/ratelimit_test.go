package utils

import (
	"context"
	"testing"
	"time"
)

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		want        int64
		expectError bool
	}{
		{"empty_string", "", 0, false},
		{"plain_bytes", "1024", 1024, false},
		{"kilobytes_short", "500K", 500 * 1024, false},
		{"kilobytes_long", "500KB", 500 * 1024, false},
		{"megabytes_short", "1M", 1024 * 1024, false},
		{"megabytes_long", "2MB", 2 * 1024 * 1024, false},
		{"gigabytes", "1G", 1024 * 1024 * 1024, false},
		{"fractional_megabytes", "1.5M", int64(1.5 * 1024 * 1024), false},
		{"negative_value", "-5", 0, true},
		{"garbage", "fast", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRateLimit(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseRateLimit(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokenBucketLimiter_UnlimitedNeverBlocks(t *testing.T) {
	limiter := NewTokenBucketLimiter(0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	for i := 0; i < 100; i++ {
		if err := limiter.Wait(ctx, 1<<20); err != nil {
			t.Fatalf("unlimited limiter blocked: %v", err)
		}
	}
}

func TestTokenBucketLimiter_WaitRespectsContext(t *testing.T) {
	// One byte per second with an empty bucket forces a wait.
	limiter := NewTokenBucketLimiter(1)
	if err := limiter.Wait(context.Background(), 1); err != nil {
		t.Fatalf("initial consume failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := limiter.Wait(ctx, 1000)
	if err == nil {
		t.Fatalf("expected context deadline error, got nil")
	}
}

func TestTokenBucketLimiter_SetRate(t *testing.T) {
	limiter := NewTokenBucketLimiter(1)
	limiter.SetRate(0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// After disabling the limit, large consumes must pass immediately.
	if err := limiter.Wait(ctx, 1<<30); err != nil {
		t.Fatalf("disabled limiter blocked: %v", err)
	}
}
