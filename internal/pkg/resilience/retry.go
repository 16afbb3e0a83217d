package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// RetryPolicy 重试策略
type RetryPolicy struct {
	MaxAttempts   int // 总尝试次数（含首次）
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool // 开启后实际等待时间为 50%~100%

	// RetryIf 返回 false 时立即返回错误，不再重试；为空时使用 IsTransient
	RetryIf func(err error) bool
	// OnRetry 每次重试前回调
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryPolicy 默认策略：3 次尝试，500ms 起步，指数退避，上限 5s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// Retry 按策略执行 fn，返回最后一次的结果或错误
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	retryIf := p.RetryIf
	if retryIf == nil {
		retryIf = IsTransient
	}

	var zero T
	delay := p.InitialDelay

	for attempt := 1; ; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		if attempt >= attempts || isPermanent(err) || !retryIf(err) {
			return zero, unwrapPermanent(err)
		}

		wait := delay
		if p.MaxDelay > 0 && wait > p.MaxDelay {
			wait = p.MaxDelay
		}
		if p.Jitter && wait > 0 {
			wait = time.Duration(float64(wait) * (0.5 + rand.Float64()*0.5))
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}

		if !sleepCtx(ctx, wait) {
			return zero, errors.Join(err, ctx.Err())
		}

		delay = time.Duration(float64(delay) * factor)
	}
}

// Do 无返回值版本
func Do(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// sleepCtx 等待 d，context 取消时提前返回 false
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
