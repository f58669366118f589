package messaging

import (
	"sync"
	"time"
)

// ==================== 常量定义 ====================

// CircuitState 熔断器状态
type CircuitState string

const (
	StateClosed   CircuitState = "closed"    // 正常:允许尝试
	StateOpen     CircuitState = "open"      // 熔断:跳过尝试
	StateHalfOpen CircuitState = "half_open" // 试探:放行一次以探测恢复
)

// 熔断器默认配置
const (
	DefaultFailureThreshold = 5
	DefaultSuccessThreshold = 2
	DefaultBreakerTimeout   = 60 * time.Second
)

// ==================== 配置与快照 ====================

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	FailureThreshold int           // 连续失败多少次后打开
	SuccessThreshold int           // 半开状态下连续成功多少次后关闭
	Timeout          time.Duration // 打开后多久进入半开
}

// applyDefaults 填充零值配置
func (config BreakerConfig) applyDefaults() BreakerConfig {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultSuccessThreshold
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultBreakerTimeout
	}
	return config
}

// BreakerSnapshot 熔断器状态快照,用于健康巡检接口
type BreakerSnapshot struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time"`
}

// ==================== 熔断器 ====================

// CircuitBreaker 单个适配器的健康状态机
// 由编排器独占持有,在并发 send 调用之间共享,
// 所有状态变更都在互斥锁内完成
type CircuitBreaker struct {
	mu     sync.Mutex
	config BreakerConfig

	state           CircuitState
	failureCount    int
	successCount    int
	lastFailureTime time.Time

	// currentTime 可注入,便于测试时间相关的状态迁移
	currentTime func() time.Time
}

// NewCircuitBreaker 创建熔断器,初始状态为 CLOSED
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		config:      config.applyDefaults(),
		state:       StateClosed,
		currentTime: time.Now,
	}
}

// CanAttempt 判断是否允许发起一次尝试
// 这是编排器每次尝试前咨询的唯一闸门;除了惰性的
// OPEN→HALF_OPEN 迁移外没有其它副作用(不依赖后台定时器)
func (breaker *CircuitBreaker) CanAttempt() bool {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	switch breaker.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if breaker.currentTime().Sub(breaker.lastFailureTime) >= breaker.config.Timeout {
			breaker.state = StateHalfOpen
			breaker.successCount = 0
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess 记录一次成功
// 无条件清零失败计数;半开状态下累计连续成功,
// 达到阈值后回到 CLOSED
func (breaker *CircuitBreaker) RecordSuccess() {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	breaker.failureCount = 0

	if breaker.state == StateHalfOpen {
		breaker.successCount++
		if breaker.successCount >= breaker.config.SuccessThreshold {
			breaker.state = StateClosed
			breaker.successCount = 0
		}
		return
	}

	breaker.state = StateClosed
}

// RecordFailure 记录一次失败
// 清零连续成功计数,失败累计达到阈值后打开熔断
func (breaker *CircuitBreaker) RecordFailure() {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	breaker.failureCount++
	breaker.successCount = 0
	breaker.lastFailureTime = breaker.currentTime()

	if breaker.failureCount >= breaker.config.FailureThreshold {
		breaker.state = StateOpen
	}
}

// State 返回当前状态(只读)
func (breaker *CircuitBreaker) State() CircuitState {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()
	return breaker.state
}

// Snapshot 返回当前状态快照
func (breaker *CircuitBreaker) Snapshot() BreakerSnapshot {
	breaker.mu.Lock()
	defer breaker.mu.Unlock()

	return BreakerSnapshot{
		State:           breaker.state,
		FailureCount:    breaker.failureCount,
		SuccessCount:    breaker.successCount,
		LastFailureTime: breaker.lastFailureTime,
	}
}
