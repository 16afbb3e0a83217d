// Package resilience 外部调用的重试与熔断
package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断打开时拒绝调用
var ErrCircuitOpen = errors.New("circuit breaker is open")

// OpenError 带依赖名称的熔断错误，errors.Is(err, ErrCircuitOpen) 成立
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // Closed -> Open 的连续失败次数
	RecoveryTimeout  time.Duration // Open 状态持续时间（自最后一次失败起）
	HalfOpenMaxCalls int           // HalfOpen -> Closed 所需连续成功次数

	OnStateChange func(name string, from, to State)
	// Clock 测试可注入
	Clock func() time.Time
}

// Snapshot 熔断器状态快照
type Snapshot struct {
	Name            string    `json:"name"`
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
	Rejected        int64     `json:"rejected"`
}

// Breaker 熔断器，每类外部依赖一个实例，被所有会话共享
type Breaker struct {
	cfg BreakerConfig

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	rejected        int64
}

// NewBreaker 创建熔断器
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Name 依赖名称
func (b *Breaker) Name() string {
	return b.cfg.Name
}

// Execute 在熔断器允许时执行 fn；熔断打开时不调用 fn，直接返回 *OpenError
func (b *Breaker) Execute(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn()
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// State 当前状态（不触发状态迁移）
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 返回状态快照
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Name:            b.cfg.Name,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailureTime,
		Rejected:        b.rejected,
	}
}

// Reset 手动恢复到 Closed
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.rejected = 0
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.cfg.Clock().Sub(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
		b.transition(StateHalfOpen)
		b.successCount = 0
		return nil
	}

	b.rejected++
	return &OpenError{Name: b.cfg.Name}
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.HalfOpenMaxCalls {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
		}
	}
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = b.cfg.Clock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.successCount = 0
		b.transition(StateOpen)
	case StateOpen:
		// 半开窗口内并发调用的迟到失败
		b.failureCount++
	}
}

// transition 调用方必须持有锁
func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	log.Warn().
		Str("breaker", b.cfg.Name).
		Str("from", from.String()).
		Str("to", to.String()).
		Int("failures", b.failureCount).
		Msg("circuit breaker state changed")

	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}
