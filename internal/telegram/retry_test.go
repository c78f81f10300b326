package telegram

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRetryHandler_Success(t *testing.T) {
	handler := NewRetryHandler(3, 10*time.Millisecond, zap.NewNop())

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		return nil
	})

	if err != nil {
		t.Fatalf("Should succeed, got error: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("Should succeed on first attempt, got %d attempts", attempts)
	}
}

func TestRetryHandler_RetryableError(t *testing.T) {
	handler := NewRetryHandler(3, 10*time.Millisecond, zap.NewNop())

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("HTTP 503 Service Unavailable")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Should eventually succeed, got error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryHandler_NonRetryableError(t *testing.T) {
	handler := NewRetryHandler(3, 10*time.Millisecond, zap.NewNop())

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		return errors.New("HTTP 400 Bad Request")
	})

	if err == nil {
		t.Fatal("Should fail on non-retryable error")
	}
	if attempts != 1 {
		t.Fatalf("Non-retryable error should not be retried, got %d attempts", attempts)
	}
}

func TestRetryHandler_MaxAttemptsExceeded(t *testing.T) {
	handler := NewRetryHandler(3, 10*time.Millisecond, zap.NewNop())

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		return errors.New("HTTP 429 Too Many Requests")
	})

	if err == nil {
		t.Fatal("Should fail after max attempts")
	}
	if attempts != 3 {
		t.Fatalf("Expected 3 attempts, got %d", attempts)
	}
}
