package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/thejerf/abtime"
)

func newTestGuard(t *testing.T) (*Guard, *miniredis.Miniredis, *abtime.ManualTime) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := abtime.NewManualAtTime(time.Unix(1700000000, 0))
	return New(rdb, "test", clock), mr, clock
}

func record(t *testing.T, g *Guard, address string, purpose Purpose, policy Policy, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		a, err := g.Check(context.Background(), address, purpose, policy)
		if err != nil {
			t.Fatalf("check %d: unexpected error %v", i+1, err)
		}
		if err := a.RecordAttempt(context.Background()); err != nil {
			t.Fatalf("record %d: %v", i+1, err)
		}
	}
}

func TestCheckUnthrottledWithoutCounter(t *testing.T) {
	g, mr, _ := newTestGuard(t)

	a, err := g.Check(context.Background(), "10.0.0.1", PurposeLogin, Policy{Max: 3, Window: 15 * time.Second})
	if err != nil || a == nil {
		t.Fatalf("expected allowed check, got %v", err)
	}
	if mr.Exists("test:at:login:10.0.0.1") {
		t.Fatal("check must not create a counter")
	}
}

func TestLockoutAfterMaxAttempts(t *testing.T) {
	g, _, _ := newTestGuard(t)
	ctx := context.Background()
	policy := Policy{Max: 3, Window: 15 * time.Second}

	record(t, g, "10.0.0.1", PurposeLogin, policy, 3)

	_, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy)
	if !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts, got %v", err)
	}
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Seconds() != 15 {
		t.Fatalf("expected 15s wait, got %+v", limitErr)
	}
}

func TestResetClearsLockout(t *testing.T) {
	g, mr, _ := newTestGuard(t)
	ctx := context.Background()
	policy := Policy{Max: 3, Window: 15 * time.Second}

	record(t, g, "10.0.0.1", PurposeLogin, policy, 3)
	if _, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected lockout, got %v", err)
	}

	// Reset through a capability minted for the same pair before the lockout.
	a := &Attempt{guard: g, key: g.key(PurposeLogin, "10.0.0.1")}
	if err := a.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if mr.Exists("test:at:login:10.0.0.1") {
		t.Fatal("expected counter to be deleted")
	}
	if _, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy); err != nil {
		t.Fatalf("expected check to pass after reset, got %v", err)
	}

	// Reset on an absent counter is a no-op.
	if err := a.Reset(ctx); err != nil {
		t.Fatalf("second reset: %v", err)
	}
}

func TestLockoutExpiresAfterWindow(t *testing.T) {
	g, _, clock := newTestGuard(t)
	ctx := context.Background()
	policy := Policy{Max: 3, Window: 15 * time.Second}

	record(t, g, "10.0.0.1", PurposeLogin, policy, 3)

	clock.Advance(10 * time.Second)
	_, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Seconds() != 5 {
		t.Fatalf("expected 5s remaining, got %v", err)
	}

	clock.Advance(5 * time.Second)
	if _, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy); err != nil {
		t.Fatalf("expected check to pass at the deadline, got %v", err)
	}
}

func TestEscalatingTiers(t *testing.T) {
	g, _, clock := newTestGuard(t)
	ctx := context.Background()
	policy := Policy{Max: 3, Window: 15 * time.Second}

	record(t, g, "10.0.0.1", PurposeLogin, policy, 3)
	clock.Advance(15 * time.Second)

	// Between multiples nothing is rejected, even right after an attempt.
	record(t, g, "10.0.0.1", PurposeLogin, policy, 3)

	// Sixth attempt: tier 2 locks for two windows.
	clock.Advance(16 * time.Second)
	_, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.Seconds() != 14 {
		t.Fatalf("expected 14s remaining in tier 2, got %v", err)
	}

	clock.Advance(14 * time.Second)
	if _, err := g.Check(ctx, "10.0.0.1", PurposeLogin, policy); err != nil {
		t.Fatalf("expected tier 2 lockout to end, got %v", err)
	}
}

func TestRemainingWaitRoundsUp(t *testing.T) {
	g, _, clock := newTestGuard(t)
	policy := Policy{Max: 1, Window: time.Minute}

	record(t, g, "10.0.0.1", PurposeEmailVerification, policy, 1)
	clock.Advance(500 * time.Millisecond)

	_, err := g.Check(context.Background(), "10.0.0.1", PurposeEmailVerification, policy)
	var limitErr *LimitError
	if !errors.As(err, &limitErr) || limitErr.RetryAfter != 60*time.Second {
		t.Fatalf("expected 60s rounded wait, got %v", err)
	}
}

func TestPurposesAndAddressesAreIndependent(t *testing.T) {
	g, _, _ := newTestGuard(t)
	ctx := context.Background()
	policy := Policy{Max: 1, Window: time.Minute}

	record(t, g, "10.0.0.1", PurposeLogin, policy, 1)

	if _, err := g.Check(ctx, "10.0.0.1", PurposePasswordReset, policy); err != nil {
		t.Fatalf("other purpose must be unaffected, got %v", err)
	}
	if _, err := g.Check(ctx, "10.0.0.2", PurposeLogin, policy); err != nil {
		t.Fatalf("other address must be unaffected, got %v", err)
	}
}

func TestRecordAttemptStoresCountAndLast(t *testing.T) {
	g, mr, clock := newTestGuard(t)
	policy := Policy{Max: 5, Window: time.Minute}

	record(t, g, "::1", PurposeLogin, policy, 2)

	if got := mr.HGet("test:at:login:::1", "count"); got != "2" {
		t.Fatalf("count = %q, want 2", got)
	}
	if got := mr.HGet("test:at:login:::1", "last"); got != "1700000000000" {
		t.Fatalf("last = %q, want %d", got, clock.Now().UnixMilli())
	}
}

func TestCheckRejectsInvalidPolicy(t *testing.T) {
	g, _, _ := newTestGuard(t)
	if _, err := g.Check(context.Background(), "a", PurposeLogin, Policy{Max: 0}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestRedisFailureIsWrapped(t *testing.T) {
	g, mr, _ := newTestGuard(t)
	mr.Close()

	_, err := g.Check(context.Background(), "a", PurposeLogin, Policy{Max: 3, Window: time.Second})
	if !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
