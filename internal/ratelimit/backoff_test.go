package ratelimit

import (
	"context"
	"testing"
	"time"
)

func newFixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	c := NewController(1*time.Second, 60*time.Second)
	c.SetClock(newFixedClock(time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)))

	// 连续限流：1s → 2s → 4s，严格翻倍
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		got := c.RecordThrottle()
		if got != w {
			t.Fatalf("throttle %d: backoff = %v, want %v", i+1, got, w)
		}
	}

	st := c.Snapshot()
	if st.ConsecutiveThrottles != 3 {
		t.Fatalf("ConsecutiveThrottles = %d, want 3", st.ConsecutiveThrottles)
	}

	// 继续限流直到触顶
	for i := 0; i < 10; i++ {
		c.RecordThrottle()
	}
	if got := c.Snapshot().CurrentBackoff; got != 60*time.Second {
		t.Fatalf("backoff after many throttles = %v, want cap 60s", got)
	}
}

func TestBackoffResetsToBaseAfterSuccess(t *testing.T) {
	c := NewController(1*time.Second, 60*time.Second)
	c.SetClock(newFixedClock(time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)))

	c.RecordThrottle()
	c.RecordThrottle()
	c.RecordThrottle() // 4s

	c.RecordSuccess()

	st := c.Snapshot()
	if st.ConsecutiveThrottles != 0 {
		t.Fatalf("ConsecutiveThrottles after success = %d, want 0", st.ConsecutiveThrottles)
	}
	if !st.BlockedUntil.IsZero() {
		t.Fatalf("BlockedUntil should be cleared after success, got %v", st.BlockedUntil)
	}

	// 成功后再次限流：从 base 重新起算，而不是从触顶前的值继续
	if got := c.RecordThrottle(); got != 1*time.Second {
		t.Fatalf("first throttle after success = %v, want base 1s", got)
	}
}

func TestBackoffDelayReflectsBlockedUntil(t *testing.T) {
	now := time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)
	c := NewController(2*time.Second, 60*time.Second)
	c.SetClock(newFixedClock(now))

	if d := c.Delay(); d != 0 {
		t.Fatalf("Delay before any throttle = %v, want 0", d)
	}

	c.RecordThrottle()
	if d := c.Delay(); d != 2*time.Second {
		t.Fatalf("Delay after throttle = %v, want 2s", d)
	}

	// 时钟推进到 blocked_until 之后，等待归零
	c.SetClock(newFixedClock(now.Add(3 * time.Second)))
	if d := c.Delay(); d != 0 {
		t.Fatalf("Delay after blocked_until elapsed = %v, want 0", d)
	}
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	c := NewController(10*time.Second, 60*time.Second)
	c.RecordThrottle() // 真实时钟下会阻塞 10s

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Wait(ctx); err == nil {
		t.Fatalf("Wait with cancelled context should return error")
	}
}

func TestWaitReturnsImmediatelyWhenNotBlocked(t *testing.T) {
	c := NewController(1*time.Second, 60*time.Second)

	done := make(chan struct{})
	go func() {
		_ = c.Wait(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("Wait should return immediately when not blocked")
	}
}
