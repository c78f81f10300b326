package telegram

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
)

// RetryHandler retries transient failures of administrative calls made at
// startup (webhook registration). The message path never retries: a
// delivery failure there is reported once and the update counts as
// handled.
type RetryHandler struct {
	maxAttempts int
	interval    time.Duration
	logger      *zap.Logger
}

func NewRetryHandler(maxAttempts int, interval time.Duration, logger *zap.Logger) *RetryHandler {
	return &RetryHandler{
		maxAttempts: maxAttempts,
		interval:    interval,
		logger:      logger,
	}
}

func (rh *RetryHandler) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < rh.maxAttempts; i++ {
		err := fn()
		if err == nil {
			if i > 0 {
				rh.logger.Info("Operation succeeded after retries",
					zap.Int("attempt", i+1))
			}
			return nil
		}

		lastErr = err

		if !rh.isRetryableError(err) {
			rh.logger.Warn("Non-retryable error encountered",
				zap.Error(err))
			return err
		}

		if i < rh.maxAttempts-1 {
			rh.logger.Debug("Retrying operation",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", rh.maxAttempts),
				zap.Error(err))

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(rh.interval):
			}
		}
	}

	rh.logger.Warn("Max retries exceeded",
		zap.Int("attempts", rh.maxAttempts),
		zap.Error(lastErr))
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (rh *RetryHandler) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	errStr := err.Error()
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests") {
		return true
	}

	if strings.Contains(errStr, "500") || strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") || strings.Contains(errStr, "504") {
		return true
	}

	return false
}
