package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "context canceled", err: context.Canceled, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "throttled 429", err: &azcore.ResponseError{StatusCode: http.StatusTooManyRequests}, want: true},
		{name: "service unavailable 503", err: &azcore.ResponseError{StatusCode: http.StatusServiceUnavailable}, want: true},
		{name: "gateway timeout 504", err: &azcore.ResponseError{StatusCode: http.StatusGatewayTimeout}, want: true},
		{name: "forbidden 403", err: &azcore.ResponseError{StatusCode: http.StatusForbidden}, want: false},
		{name: "wrapped 429", err: fmt.Errorf("call failed: %w", &azcore.ResponseError{StatusCode: 429}), want: true},
		{name: "timeout string", err: errors.New("dial tcp: i/o timeout"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "plain error", err: errors.New("invalid request"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableError(tt.err); got != tt.want {
				t.Errorf("IsRetryableError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithBackoffSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), discardLogger(), 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("WithBackoff() error: %v", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestWithBackoffRetriesTransient(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), discardLogger(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return &azcore.ResponseError{StatusCode: 429}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBackoff() error: %v", err)
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3", calls)
	}
}

func TestWithBackoffStopsOnPermanent(t *testing.T) {
	calls := 0
	permanent := errors.New("bad request")
	err := WithBackoff(context.Background(), discardLogger(), 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("operation called %d times, want 1", calls)
	}
}

func TestWithBackoffExhaustsRetries(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), discardLogger(), 2, time.Millisecond, func() error {
		calls++
		return &azcore.ResponseError{StatusCode: 503}
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("operation called %d times, want 3 (initial + 2 retries)", calls)
	}
}

func TestWithBackoffContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithBackoff(ctx, discardLogger(), 3, time.Second, func() error {
		return &azcore.ResponseError{StatusCode: 429}
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled in chain", err)
	}
}
