// Package retry provides transient-error detection and exponential backoff
// for Microsoft Graph calls. Only idempotent reads should be wrapped;
// directory writes (application or grant creation) are never retried blindly.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// IsRetryableError determines if an error is transient and worth retrying.
// Returns true for network timeouts, Graph API throttling (429), and service
// unavailability (503/504). Context cancellation is never retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Check for context cancellation - never retry these
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Check for Azure SDK response errors
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		if respErr.StatusCode == 429 || respErr.StatusCode == 503 || respErr.StatusCode == 504 {
			return true
		}
	}

	// Check error message for common transient patterns
	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"timeout",
		"connection reset",
		"connection refused",
		"temporary failure",
		"try again",
		"i/o timeout",
		"no such host",
		"network is unreachable",
		"broken pipe",
		"connection timed out",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// WithBackoff wraps an operation with exponential backoff retry logic.
// The operation is retried up to maxRetries times with exponentially
// increasing delays (baseDelay * 2^attempt, capped at 30 seconds).
// Only errors identified by IsRetryableError are retried; context
// cancellation stops retries immediately.
func WithBackoff(ctx context.Context, logger *slog.Logger, maxRetries int, baseDelay time.Duration, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		lastErr = operation()

		// Success - return immediately
		if lastErr == nil {
			if attempt > 0 && logger != nil {
				logger.Info("operation succeeded after retries", "retries", attempt)
			}
			return nil
		}

		if !IsRetryableError(lastErr) {
			return lastErr
		}

		if attempt == maxRetries {
			return fmt.Errorf("operation failed after %d retries: %w", maxRetries, lastErr)
		}

		// Calculate exponential backoff delay (cap at 30 seconds)
		delay := baseDelay * time.Duration(1<<uint(attempt))
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}

		if logger != nil {
			logger.Warn("retryable error encountered",
				"attempt", attempt+1,
				"max", maxRetries,
				"delay", delay,
				"error", lastErr)
		}

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return lastErr
}
