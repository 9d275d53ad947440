package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

func TestExecuteRetriesTemporaryFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{
			Retryable:     errors.Is(err, errTemp),
			RecordFailure: true,
		}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	})

	errTemp := errors.New("temporary")
	classifier := func(error) ErrorClassification {
		return ErrorClassification{
			Retryable:     false,
			RecordFailure: true,
		}
	}

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errTemp
		}, classifier)
		if !errors.Is(err, errTemp) {
			t.Fatalf("expected temporary error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "op", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected open circuit to surface as temporary, got %v", err)
	}
}

func TestDoReturnsValueAfterRetry(t *testing.T) {
	exec := NewExecutor(Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     time.Millisecond,
		BreakerEnabled:      false,
	})

	attempts := 0
	got, err := Do(context.Background(), exec, "insert_outcome", func(context.Context) (int64, error) {
		attempts++
		if attempts == 1 {
			return 0, domain.WrapError(domain.ErrStoreUnavailable, "insert", errors.New("database is locked"))
		}
		return 7, nil
	}, nil)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got != 7 || attempts != 2 {
		t.Fatalf("expected value 7 after 2 attempts, got %d after %d", got, attempts)
	}
}

func TestDoWithNilExecutorCallsOnce(t *testing.T) {
	var exec *Executor
	got, err := Do(context.Background(), exec, "op", func(context.Context) (string, error) {
		return "ok", nil
	}, nil)
	if err != nil || got != "ok" {
		t.Fatalf("unexpected result %q %v", got, err)
	}
}

func TestDomainClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClassification
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "op", errors.New("bad")), want: ErrorClassification{}},
		{name: "canceled", err: context.Canceled, want: ErrorClassification{}},
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "store", err: domain.WrapError(domain.ErrStoreUnavailable, "op", errors.New("locked")), want: ErrorClassification{Retryable: true, RecordFailure: true}},
		{name: "unknown", err: errors.New("boom"), want: ErrorClassification{RecordFailure: true}},
	}
	for _, tc := range cases {
		if got := DomainClassifier(tc.err); got != tc.want {
			t.Fatalf("%s: expected %+v, got %+v", tc.name, tc.want, got)
		}
	}
}

func TestStateListenerSeesTransitions(t *testing.T) {
	var transitions []gobreaker.State
	exec := NewExecutor(Config{
		RetryMaxAttempts:    1,
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
	}).WithStateListener(func(_ string, _ gobreaker.State, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	_ = exec.Execute(context.Background(), "op", func(context.Context) error {
		return errors.New("boom")
	}, nil)
	if len(transitions) != 1 || transitions[0] != gobreaker.StateOpen {
		t.Fatalf("expected a single transition to open, got %v", transitions)
	}
}
