package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLimiter(maxTokens, rate int) (*Limiter, *fakeClock) {
	clk := &fakeClock{now: time.Unix(1700000000, 0)}
	l := New(Config{MaxTokens: maxTokens, RefillRate: rate, CleanupInterval: time.Minute}, clk)
	return l, clk
}

func TestCheck_ConsumesAndDenies(t *testing.T) {
	l, _ := newTestLimiter(10, 1)

	if !l.Check("a", 5) {
		t.Fatalf("expected first check to pass")
	}
	if !l.Check("a", 5) {
		t.Fatalf("expected second check to pass")
	}
	if l.Check("a", 1) {
		t.Fatalf("expected bucket to be empty")
	}
	if got := l.Tokens("a"); got != 0 {
		t.Fatalf("tokens = %d, want 0", got)
	}
}

func TestCheck_DenialLeavesTokensUnchanged(t *testing.T) {
	l, _ := newTestLimiter(10, 1)

	if !l.Check("a", 7) {
		t.Fatalf("expected check to pass")
	}
	if l.Check("a", 5) {
		t.Fatalf("expected check for 5 of 3 tokens to fail")
	}
	if got := l.Tokens("a"); got != 3 {
		t.Fatalf("tokens = %d, want 3", got)
	}
}

func TestCheck_RefillIsFloorOfElapsed(t *testing.T) {
	l, clk := newTestLimiter(100, 10)

	if !l.Check("a", 100) {
		t.Fatalf("expected full burst")
	}

	clk.Advance(2500 * time.Millisecond)
	if got := l.Tokens("a"); got != 25 {
		t.Fatalf("tokens after 2.5s = %d, want 25", got)
	}

	clk.Advance(50 * time.Millisecond)
	if got := l.Tokens("a"); got != 25 {
		t.Fatalf("tokens after sub-token interval = %d, want 25", got)
	}
}

func TestCheck_KeepsFractionalProgress(t *testing.T) {
	l, clk := newTestLimiter(10, 1)
	if !l.Check("a", 10) {
		t.Fatalf("expected full burst")
	}

	// Four checks 300ms apart: none crosses a whole token on its own, but
	// the bucket must refill once 1s has elapsed since the last refill.
	for i := 0; i < 3; i++ {
		clk.Advance(300 * time.Millisecond)
		if l.Check("a", 1) {
			t.Fatalf("check %d: expected denial before a whole token accrues", i)
		}
	}
	clk.Advance(300 * time.Millisecond)
	if !l.Check("a", 1) {
		t.Fatalf("expected a token after 1.2s")
	}
}

func TestCheck_CapsAtMaxTokens(t *testing.T) {
	l, clk := newTestLimiter(5, 5)
	if !l.Check("a", 1) {
		t.Fatalf("expected check to pass")
	}

	clk.Advance(time.Hour)
	if got := l.Tokens("a"); got != 5 {
		t.Fatalf("tokens = %d, want cap 5", got)
	}
}

func TestCheck_ZeroCostAlwaysAllowed(t *testing.T) {
	l, _ := newTestLimiter(0, 0)
	if !l.Check("a", 0) {
		t.Fatalf("expected zero-cost check to pass")
	}
	if l.Check("a", 1) {
		t.Fatalf("expected empty bucket to deny")
	}
}

func TestCheck_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(5, 0)
	if !l.Check("a", 5) {
		t.Fatalf("expected a to pass")
	}
	if !l.Check("b", 5) {
		t.Fatalf("expected b to have its own bucket")
	}
}

func TestCheck_ConcurrentNeverOverspends(t *testing.T) {
	l, _ := newTestLimiter(100, 0)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if l.Check("shared", 1) {
					allowed.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 100 {
		t.Fatalf("allowed = %d, want 100", got)
	}
	if got := l.Tokens("shared"); got != 0 {
		t.Fatalf("tokens = %d, want 0", got)
	}
}

func TestRemove(t *testing.T) {
	l, _ := newTestLimiter(5, 0)
	l.Check("a", 5)
	l.Remove("a")
	if l.Len() != 0 {
		t.Fatalf("expected bucket to be removed")
	}
	if !l.Check("a", 5) {
		t.Fatalf("expected a fresh bucket after removal")
	}
}

func TestSweep_RemovesIdleBuckets(t *testing.T) {
	l, clk := newTestLimiter(10, 1)
	l.Check("idle", 1)

	clk.Advance(30 * time.Second)
	l.Check("active", 1)

	clk.Advance(31 * time.Second)
	if n := l.Sweep(clk.Now()); n != 1 {
		t.Fatalf("swept %d buckets, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("expected only the active bucket to remain, have %d", l.Len())
	}
}

func TestSweep_KeepsRecentlyRefilledBucket(t *testing.T) {
	l, clk := newTestLimiter(10, 1)
	l.Check("a", 5)

	clk.Advance(50 * time.Second)
	l.Check("a", 1) // refills, moving lastRefill forward

	clk.Advance(20 * time.Second)
	if n := l.Sweep(clk.Now()); n != 0 {
		t.Fatalf("swept %d buckets, want 0", n)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	l := New(Config{MaxTokens: 1, RefillRate: 1, CleanupInterval: time.Millisecond}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}
