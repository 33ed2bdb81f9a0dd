package llm

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientErrors(t *testing.T) {
	calls := 0
	var slept []time.Duration
	cfg := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Sleep:       func(d time.Duration) { slept = append(slept, d) },
	}
	resp, err := Retry(context.Background(), cfg, func(context.Context) (Response, error) {
		calls++
		if calls < 3 {
			return Response{}, errors.New("transient")
		}
		return Response{Text: "ok"}, nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp.Text != "ok" {
		t.Fatalf("unexpected response %q", resp.Text)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 {
		t.Fatalf("expected 2 backoff sleeps, got %d", len(slept))
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	cfg := RetryConfig{
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		IsRetryable: func(error) bool { return false },
		Sleep:       func(time.Duration) {},
	}
	_, err := Retry(context.Background(), cfg, func(context.Context) (Response, error) {
		calls++
		return Response{}, errors.New("fatal")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected single attempt, got %d", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, RetryConfig{MaxAttempts: 3}, func(context.Context) (Response, error) {
		t.Fatalf("fn should not run with canceled context")
		return Response{}, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	if DefaultIsRetryable(nil) {
		t.Fatalf("nil should not be retryable")
	}
	if DefaultIsRetryable(context.Canceled) {
		t.Fatalf("canceled context should not be retryable")
	}
	if !DefaultIsRetryable(errors.New("transient")) {
		t.Fatalf("generic errors should be retryable")
	}
}
