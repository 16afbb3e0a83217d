package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Invoker 重试 + 熔断组合，每次尝试都经过熔断器
type Invoker struct {
	breaker *Breaker
	policy  RetryPolicy
}

// NewInvoker 创建调用器
func NewInvoker(breaker *Breaker, policy RetryPolicy) *Invoker {
	retryIf := policy.RetryIf
	if retryIf == nil {
		retryIf = IsTransient
	}
	// 熔断打开后不再重试
	policy.RetryIf = func(err error) bool {
		return !errors.Is(err, ErrCircuitOpen) && retryIf(err)
	}

	if policy.OnRetry == nil {
		name := breaker.Name()
		policy.OnRetry = func(attempt int, err error, delay time.Duration) {
			log.Warn().
				Err(err).
				Str("breaker", name).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying external call")
		}
	}

	return &Invoker{breaker: breaker, policy: policy}
}

// Breaker 底层熔断器
func (i *Invoker) Breaker() *Breaker {
	return i.breaker
}

// Invoke 通过熔断器执行 fn 并按策略重试
func Invoke[T any](ctx context.Context, inv *Invoker, fn func(ctx context.Context) (T, error)) (T, error) {
	return Retry(ctx, inv.policy, func(ctx context.Context) (T, error) {
		var result T
		err := inv.breaker.Execute(func() error {
			var callErr error
			result, callErr = fn(ctx)
			return callErr
		})
		return result, err
	})
}

// InvokeErr 无返回值版本
func InvokeErr(ctx context.Context, inv *Invoker, fn func(ctx context.Context) error) error {
	_, err := Invoke(ctx, inv, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
