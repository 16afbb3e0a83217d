package component

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	. "github.com/smartystreets/goconvey/convey"
)

func prompt(dynamic string) []*schema.Message {
	static := schema.SystemMessage("static persona")
	static.Extra = map[string]any{ExtraCacheControl: CacheEphemeral}
	return []*schema.Message{static, schema.SystemMessage(dynamic), schema.UserMessage("hello")}
}

func TestMockChatModel(t *testing.T) {
	Convey("离线模型", t, func() {
		m := NewMockChatModel()
		ctx := context.Background()

		Convey("同一静态段第二次命中缓存", func() {
			r1, err := m.Generate(ctx, prompt("Stage: greeting (5%)"))
			So(err, ShouldBeNil)
			So(r1.ResponseMeta.Usage.PromptTokenDetails.CachedTokens, ShouldEqual, 0)

			r2, _ := m.Generate(ctx, prompt("Stage: greeting (5%)"))
			So(r2.ResponseMeta.Usage.PromptTokenDetails.CachedTokens, ShouldEqual, approxTokens("static persona"))
			So(r2.ResponseMeta.Usage.TotalTokens, ShouldEqual, r2.ResponseMeta.Usage.PromptTokens+r2.ResponseMeta.Usage.CompletionTokens)

			m.Forget()
			r3, _ := m.Generate(ctx, prompt("Stage: greeting (5%)"))
			So(r3.ResponseMeta.Usage.PromptTokenDetails.CachedTokens, ShouldEqual, 0)
		})

		Convey("没有缓存提示不计命中", func() {
			in := prompt("Stage: greeting (5%)")
			in[0].Extra = nil
			m.Generate(ctx, in)
			r, _ := m.Generate(ctx, in)
			So(r.ResponseMeta.Usage.PromptTokenDetails.CachedTokens, ShouldEqual, 0)
		})

		Convey("按阶段回复", func() {
			r, _ := m.Generate(ctx, prompt("## Flow\nStage: product_recommendation (50%)\n\n## Products\n1. Sleep Well - 590.00\n   Why: Targets sleep"))
			So(r.Content, ShouldContainSubstring, "Sleep Well (590.00)")

			r, _ = m.Generate(ctx, prompt("## Flow\nStage: order_collection (75%)\n\n## Order\nStep: phone | Items: 1 | Total: 450.00"))
			So(r.Content, ShouldContainSubstring, "phone number")

			r, _ = m.Generate(ctx, prompt("## Flow\nStage: order_collection (75%)"))
			So(r.Content, ShouldContainSubstring, "Which product")
		})

		Convey("流式与取消", func() {
			sr, err := m.Stream(ctx, prompt("Stage: complete (100%)"))
			So(err, ShouldBeNil)
			msg, err := sr.Recv()
			So(err, ShouldBeNil)
			So(msg.Content, ShouldContainSubstring, "Thank you")

			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err = m.Generate(cctx, prompt("x"))
			So(err, ShouldEqual, context.Canceled)

			_, err = m.Generate(ctx, nil)
			So(err, ShouldNotBeNil)
		})
	})
}
