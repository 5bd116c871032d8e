package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		if calls < 3 {
			return Transient(errors.New("flaky"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	base := errors.New("still down")
	err := Do(context.Background(), fastPolicy(3), func() error {
		calls++
		return Transient(base)
	})
	if !errors.Is(err, base) {
		t.Fatalf("expected the last error back, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientFailsImmediately(t *testing.T) {
	calls := 0
	fatal := errors.New("bad request")
	err := Do(context.Background(), fastPolicy(5), func() error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("expected the error back, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-transient errors must not be retried, got %d calls", calls)
	}
}

func TestDo_ContextCancellationStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{MaxAttempts: 0, InitialWait: time.Hour, MaxWait: time.Hour, Multiplier: 1}, func() error {
		calls++
		cancel()
		return Transient(errors.New("flaky"))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestNoRetry_SingleAttempt(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), NoRetry(), func() error {
		calls++
		return Transient(errors.New("flaky"))
	})
	if calls != 1 {
		t.Errorf("NoRetry must make exactly one attempt, got %d", calls)
	}
}

func TestDoWithResult_ReturnsValue(t *testing.T) {
	calls := 0
	got, err := DoWithResult(context.Background(), fastPolicy(5), func() (string, error) {
		calls++
		if calls < 2 {
			return "", Transient(errors.New("flaky"))
		}
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("got (%q, %v)", got, err)
	}
}

func TestPolicy_WaitIsCapped(t *testing.T) {
	p := Policy{InitialWait: time.Second, MaxWait: 2 * time.Second, Multiplier: 10}
	if w := p.wait(5); w > 2*time.Second {
		t.Errorf("wait %v exceeds the cap", w)
	}
}

func TestIsTransient(t *testing.T) {
	if IsTransient(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}
	if !IsTransient(Transient(errors.New("x"))) {
		t.Error("wrapped errors are transient")
	}
	if Transient(nil) != nil {
		t.Error("Transient(nil) must be nil")
	}
}
