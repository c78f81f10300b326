package ratelimit

import (
	"context"
	"testing"
	"time"

	"go-telegram-relay-bot/internal/config"
	"go.uber.org/zap"
)

func TestRateLimiter_AllowGuestMessage(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{
			GuestMessage: 1, // 1 per second
		},
	}
	logger := zap.NewNop()
	limiter := NewRateLimiter(nil, cfg, logger)

	ctx := context.Background()
	guestID := int64(123456)

	// First message should be allowed
	if !limiter.AllowGuestMessage(ctx, guestID) {
		t.Fatal("Should allow first guest message")
	}

	// Second message immediately should be rate limited
	if limiter.AllowGuestMessage(ctx, guestID) {
		t.Fatal("Should rate limit second guest message")
	}

	// Different guest should be allowed
	if !limiter.AllowGuestMessage(ctx, int64(789012)) {
		t.Fatal("Should allow message from different guest")
	}

	// Wait and should allow again
	time.Sleep(1100 * time.Millisecond)
	if !limiter.AllowGuestMessage(ctx, guestID) {
		t.Fatal("Should allow guest message after waiting")
	}
}

func TestRateLimiter_HigherLimit(t *testing.T) {
	cfg := &config.Config{
		RateLimit: config.RateLimitConfig{
			GuestMessage: 5,
		},
	}
	limiter := NewRateLimiter(nil, cfg, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !limiter.AllowGuestMessage(ctx, 1) {
			t.Fatalf("Should allow message %d", i+1)
		}
	}
	if limiter.AllowGuestMessage(ctx, 1) {
		t.Fatal("Should rate limit 6th message")
	}
}
