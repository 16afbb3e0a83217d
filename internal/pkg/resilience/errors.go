package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"regexp"
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 标记错误为不可重试（校验失败、输入格式错误等）
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }
func (e *transientError) Temporary() bool { return true }

// Transient 标记错误为可重试（驱动层已识别的网络错误、写冲突等）
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// unwrapPermanent 去掉 Permanent 包装，调用方拿到原始错误
func unwrapPermanent(err error) error {
	var p *permanentError
	if errors.As(err, &p) && err == error(p) {
		return p.err
	}
	return err
}

// transientPattern 瞬时错误特征（网络、限流、过载、写冲突），按词边界匹配
var transientPattern = regexp.MustCompile(`(?i)\b(?:timeout|timed out|connection reset|connection refused|broken pipe|rate limit(?:ed)?|too many requests|overloaded|temporarily unavailable|service unavailable|bad gateway|server is busy|write conflict|lock contention|lock timeout)\b`)

// transientStatus 只在 HTTP 状态码上下文中识别 429 / 5xx 网关错误
var transientStatus = regexp.MustCompile(`(?i)\b(?:status(?: code)?|http(?:/[0-9.]+)?|error code)\s*[:=]?\s*(?:429|502|503|504)\b`)

// IsTransient 判断错误是否可重试
func IsTransient(err error) bool {
	if err == nil || isPermanent(err) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var tmp interface{ Temporary() bool }
	if errors.As(err, &tmp) && tmp.Temporary() {
		return true
	}

	msg := err.Error()
	return transientPattern.MatchString(msg) || transientStatus.MatchString(msg)
}
