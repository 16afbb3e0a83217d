package ctxutil

import "context"

// 私有 key 类型，避免与其他包的 context key 冲突
type (
	requestIDKeyType struct{}
	operatorKeyType  struct{}
)

var (
	requestIDKey = requestIDKeyType{}
	operatorKey  = operatorKeyType{}
)

// WithRequestID 注入请求 ID（RequestID 中间件调用）
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 读取请求 ID，不存在时返回空串
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithOperator 注入运维操作者（Auth 中间件解析 JWT 成功后调用）
func WithOperator(ctx context.Context, operator string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, operatorKey, operator)
}

// Operator 读取运维操作者
// 返回值：
//   - string: 操作者名
//   - bool  : 是否存在
func Operator(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	op, ok := ctx.Value(operatorKey).(string)
	if !ok || op == "" {
		return "", false
	}
	return op, true
}
