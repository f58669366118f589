package messaging

import (
	"testing"
	"time"
)

// newTestBreaker 创建一个时间可控的熔断器
func newTestBreaker(config BreakerConfig) (*CircuitBreaker, *time.Time) {
	breaker := NewCircuitBreaker(config)
	now := time.Unix(1_700_000_000, 0)
	breaker.currentTime = func() time.Time { return now }
	return breaker, &now
}

func TestBreakerStartsClosed(t *testing.T) {
	breaker, _ := newTestBreaker(BreakerConfig{})

	if breaker.State() != StateClosed {
		t.Fatalf("初始状态应为 closed,实际为 %s", breaker.State())
	}
	if !breaker.CanAttempt() {
		t.Fatal("closed 状态应允许尝试")
	}
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	breaker, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Fatalf("未达阈值不应熔断,实际为 %s", breaker.State())
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("达到阈值应熔断,实际为 %s", breaker.State())
	}
	if breaker.CanAttempt() {
		t.Fatal("open 状态且未超时不应允许尝试")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	breaker, _ := newTestBreaker(BreakerConfig{FailureThreshold: 3})

	breaker.RecordFailure()
	breaker.RecordFailure()
	breaker.RecordSuccess()

	// 成功清零连续失败计数,之后需要再连续失败满阈值才会熔断
	breaker.RecordFailure()
	breaker.RecordFailure()
	if breaker.State() != StateClosed {
		t.Fatalf("成功后失败计数应清零,实际状态 %s", breaker.State())
	}

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("重新累计满阈值应熔断,实际状态 %s", breaker.State())
	}
}

func TestBreakerTransitionsToHalfOpenAfterTimeout(t *testing.T) {
	breaker, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("应已熔断,实际为 %s", breaker.State())
	}

	// 超时前不放行
	*now = now.Add(30 * time.Second)
	if breaker.CanAttempt() {
		t.Fatal("熔断超时前不应放行")
	}

	// 超时后 CanAttempt 触发惰性迁移到 half_open
	*now = now.Add(31 * time.Second)
	if !breaker.CanAttempt() {
		t.Fatal("熔断超时后应放行试探")
	}
	if breaker.State() != StateHalfOpen {
		t.Fatalf("应进入 half_open,实际为 %s", breaker.State())
	}
}

func TestBreakerClosesAfterSuccessThresholdInHalfOpen(t *testing.T) {
	breaker, now := newTestBreaker(BreakerConfig{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
	})

	breaker.RecordFailure()
	*now = now.Add(2 * time.Minute)
	breaker.CanAttempt()

	breaker.RecordSuccess()
	if breaker.State() != StateHalfOpen {
		t.Fatalf("一次成功不足以恢复,实际为 %s", breaker.State())
	}

	breaker.RecordSuccess()
	if breaker.State() != StateClosed {
		t.Fatalf("连续成功满阈值应恢复 closed,实际为 %s", breaker.State())
	}
}

func TestBreakerReopensOnFailureInHalfOpen(t *testing.T) {
	breaker, now := newTestBreaker(BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	breaker.RecordFailure()
	*now = now.Add(2 * time.Minute)
	breaker.CanAttempt()

	// half_open 状态下一次失败立刻回到 open
	breaker.RecordFailure()
	if breaker.State() != StateOpen {
		t.Fatalf("half_open 失败应回到 open,实际为 %s", breaker.State())
	}
	if breaker.CanAttempt() {
		t.Fatal("回到 open 后未超时不应放行")
	}
}

func TestBreakerSnapshot(t *testing.T) {
	breaker, _ := newTestBreaker(BreakerConfig{FailureThreshold: 5})

	breaker.RecordFailure()
	breaker.RecordFailure()

	snapshot := breaker.Snapshot()
	if snapshot.State != StateClosed {
		t.Fatalf("快照状态不符: %s", snapshot.State)
	}
	if snapshot.FailureCount != 2 {
		t.Fatalf("快照失败计数不符: %d", snapshot.FailureCount)
	}
}
