package ctxutil

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestContextValues(t *testing.T) {
	Convey("请求 ID 与操作者", t, func() {
		ctx := context.Background()
		So(RequestID(ctx), ShouldBeEmpty)
		_, ok := Operator(ctx)
		So(ok, ShouldBeFalse)

		ctx = WithRequestID(ctx, "req-1")
		ctx = WithOperator(ctx, "ops")
		So(RequestID(ctx), ShouldEqual, "req-1")
		op, ok := Operator(ctx)
		So(ok, ShouldBeTrue)
		So(op, ShouldEqual, "ops")

		_, ok = Operator(WithOperator(context.Background(), ""))
		So(ok, ShouldBeFalse)
	})
}
