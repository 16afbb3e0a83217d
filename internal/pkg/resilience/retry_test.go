package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2,
		Jitter:        true,
		RetryIf:       func(error) bool { return true },
	}
}

func TestRetry(t *testing.T) {
	Convey("Retry", t, func() {
		ctx := context.Background()

		Convey("失败后重试直到成功", func() {
			calls := 0
			got, err := Retry(ctx, fastPolicy(3), func(ctx context.Context) (string, error) {
				calls++
				if calls < 3 {
					return "", errBoom
				}
				return "ok", nil
			})
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "ok")
			So(calls, ShouldEqual, 3)
		})

		Convey("达到最大次数后返回最后一次错误", func() {
			calls := 0
			_, err := Retry(ctx, fastPolicy(4), func(ctx context.Context) (int, error) {
				calls++
				return 0, fmt.Errorf("attempt %d", calls)
			})
			So(calls, ShouldEqual, 4)
			So(err.Error(), ShouldEqual, "attempt 4")
		})

		Convey("谓词返回 false 时立即返回", func() {
			p := fastPolicy(5)
			p.RetryIf = func(error) bool { return false }
			calls := 0
			err := Do(ctx, p, func(ctx context.Context) error {
				calls++
				return errBoom
			})
			So(err, ShouldEqual, errBoom)
			So(calls, ShouldEqual, 1)
		})

		Convey("Permanent 错误不重试并被解包", func() {
			calls := 0
			err := Do(ctx, fastPolicy(5), func(ctx context.Context) error {
				calls++
				return Permanent(errBoom)
			})
			So(calls, ShouldEqual, 1)
			So(err, ShouldEqual, errBoom)
		})

		Convey("OnRetry 收到的等待时间不超过 MaxDelay", func() {
			p := fastPolicy(4)
			var delays []time.Duration
			p.OnRetry = func(attempt int, err error, d time.Duration) {
				delays = append(delays, d)
			}
			_ = Do(ctx, p, func(ctx context.Context) error { return errBoom })
			So(len(delays), ShouldEqual, 3)
			for _, d := range delays {
				So(d, ShouldBeLessThanOrEqualTo, 2*time.Millisecond)
				So(d, ShouldBeGreaterThanOrEqualTo, 500*time.Microsecond)
			}
		})

		Convey("context 取消后停止等待", func() {
			cctx, cancel := context.WithCancel(ctx)
			p := fastPolicy(10)
			p.InitialDelay = time.Hour
			p.MaxDelay = time.Hour
			p.Jitter = false
			p.OnRetry = func(int, error, time.Duration) { cancel() }

			err := Do(cctx, p, func(ctx context.Context) error { return errBoom })
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			So(errors.Is(err, errBoom), ShouldBeTrue)
		})
	})
}

func TestIsTransient(t *testing.T) {
	Convey("IsTransient", t, func() {
		So(IsTransient(nil), ShouldBeFalse)
		So(IsTransient(errors.New("429 Too Many Requests")), ShouldBeTrue)
		So(IsTransient(errors.New("provider overloaded")), ShouldBeTrue)
		So(IsTransient(fmt.Errorf("call: %w", context.DeadlineExceeded)), ShouldBeTrue)
		So(IsTransient(errors.New("invalid request: missing field")), ShouldBeFalse)
		So(IsTransient(Permanent(errors.New("timeout"))), ShouldBeFalse)
		So(IsTransient(Transient(errors.New("write failed"))), ShouldBeTrue)
		So(IsTransient(Transient(nil)), ShouldBeFalse)
		So(IsTransient(&OpenError{Name: "llm"}), ShouldBeFalse)
		So(IsTransient(context.Canceled), ShouldBeFalse)

		Convey("状态码只在 HTTP 上下文中识别", func() {
			So(IsTransient(errors.New("error, status code: 503, message: upstream busy")), ShouldBeTrue)
			So(IsTransient(errors.New("HTTP 502 Bad Gateway")), ShouldBeTrue)
			So(IsTransient(errors.New("max_tokens must be <= 4290")), ShouldBeFalse)
			So(IsTransient(errors.New("model not found: gpt-5030")), ShouldBeFalse)
		})

		Convey("特征词按词边界匹配", func() {
			So(IsTransient(errors.New("request blocked by content policy")), ShouldBeFalse)
			So(IsTransient(errors.New("field clock_skew is required")), ShouldBeFalse)
			So(IsTransient(errors.New("see the terms thereof")), ShouldBeFalse)
			So(IsTransient(errors.New("dial tcp: i/o timeout")), ShouldBeTrue)
			So(IsTransient(errors.New("Rate limited, retry later")), ShouldBeTrue)
			So(IsTransient(errors.New("write conflict during commit")), ShouldBeTrue)
		})

		Convey("EOF 按错误链识别", func() {
			So(IsTransient(fmt.Errorf("read body: %w", io.EOF)), ShouldBeTrue)
			So(IsTransient(fmt.Errorf("read body: %w", io.ErrUnexpectedEOF)), ShouldBeTrue)
		})

		Convey("默认策略下策略类错误只调用一次", func() {
			p := DefaultRetryPolicy()
			p.MaxAttempts = 3
			p.InitialDelay = time.Millisecond
			p.MaxDelay = time.Millisecond
			calls := 0
			err := Do(context.Background(), p, func(ctx context.Context) error {
				calls++
				return errors.New("request blocked by content policy")
			})
			So(err, ShouldNotBeNil)
			So(calls, ShouldEqual, 1)
		})
	})
}
