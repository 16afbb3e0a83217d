package compress

import (
	"fmt"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"mint/internal/model"
)

type catalog []model.Product

func (c catalog) Products() []model.Product { return c }

type brokenCatalog struct{}

func (brokenCatalog) Products() []model.Product { panic("catalog unavailable") }

var products = catalog{{Name: "Fiber Plus", Price: 450}, {Name: "Sleep Well", Price: 590}}

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// history 生成 n 条交替的用户 / 助手消息
func history(n int, content func(i int) string) []model.Message {
	out := make([]model.Message, 0, n)
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.Message{Role: role, Content: content(i), Timestamp: base.Add(time.Duration(i) * time.Minute)})
	}
	return out
}

func plain(i int) string { return fmt.Sprintf("message %d", i) }

func newCompressor() *Compressor {
	return New(Options{OrderLevel: 8, PreserveDetails: true}, products)
}

func TestCompressor_Idempotence(t *testing.T) {
	Convey("历史不超过允许长度时原样返回", t, func() {
		c := newCompressor()
		cc := &model.ConversationContext{UserID: "u1", Stage: model.StageHealthInquiry}
		for n := 0; n <= 8; n++ {
			msgs := history(n, plain)
			out, outcome := c.Compress(msgs, cc, 4)
			So(out, ShouldResemble, msgs)
			So(outcome, ShouldEqual, OutcomeUnchanged)
		}
	})
}

func TestCompressor_NoDataLoss(t *testing.T) {
	Convey("订单缺少身份信息时任意长度都不压缩", t, func() {
		c := newCompressor()
		for _, stage := range []model.Stage{model.StageOrderCollection, model.StageProductRecommendation, model.StageGeneralSupport} {
			cc := &model.ConversationContext{UserID: "u1", Stage: stage}
			cc.Metadata.CurrentOrder = &model.Order{CustomerName: "Somchai", Phone: "0812345678"}
			for _, n := range []int{10, 30, 80} {
				msgs := history(n, plain)
				out, outcome := c.Compress(msgs, cc, 1)
				So(out, ShouldResemble, msgs)
				So(outcome, ShouldEqual, OutcomeGuarded)
			}
		}

		Convey("关闭 PreserveDetails 后正常压缩", func() {
			loose := New(Options{OrderLevel: 8}, products)
			cc := &model.ConversationContext{UserID: "u1", Stage: model.StageGreeting}
			cc.Metadata.CurrentOrder = &model.Order{}
			out, outcome := loose.Compress(history(30, plain), cc, 1)
			So(outcome, ShouldEqual, OutcomeCompressed)
			So(len(out), ShouldEqual, 12)
		})
	})
}

func TestCompressor_EffectiveLevel(t *testing.T) {
	Convey("按阶段调整压缩级别", t, func() {
		c := newCompressor()
		So(c.EffectiveLevel(&model.ConversationContext{Stage: model.StageHealthInquiry}, 4), ShouldEqual, 4)
		So(c.EffectiveLevel(&model.ConversationContext{Stage: model.StageOrderCollection}, 4), ShouldEqual, 8)
		So(c.EffectiveLevel(&model.ConversationContext{Stage: model.StageOrderConfirmation}, 10), ShouldEqual, 10)
		So(c.EffectiveLevel(nil, 0), ShouldEqual, 1)

		partial := &model.ConversationContext{Stage: model.StageProductRecommendation}
		partial.Metadata.CurrentOrder = &model.Order{}
		So(c.EffectiveLevel(partial, 2), ShouldEqual, 6)

		high := New(Options{OrderLevel: 12}, nil)
		So(high.EffectiveLevel(partial, 2), ShouldEqual, 9)

		partial.Metadata.CurrentOrder.Complete = true
		So(c.EffectiveLevel(partial, 2), ShouldEqual, 2)
	})
}

func TestCompressor_Compress(t *testing.T) {
	Convey("压缩 10 条历史（level=4，非订单阶段）", t, func() {
		c := newCompressor()
		cc := &model.ConversationContext{UserID: "u1", Stage: model.StageHealthInquiry}

		Convey("结果恰好 8 条：问候对 + 摘要 + 最近消息", func() {
			msgs := history(10, plain)
			out, outcome := c.Compress(msgs, cc, 4)

			So(outcome, ShouldEqual, OutcomeCompressed)
			So(out, ShouldHaveLength, 8)
			So(out[0], ShouldResemble, msgs[0])
			So(out[1], ShouldResemble, msgs[1])
			So(out[2].Role, ShouldEqual, model.RoleAssistant)
			So(out[2].Content, ShouldStartWith, SummaryMarker)
			So(out[2].Timestamp, ShouldEqual, msgs[4].Timestamp)
			So(out[3:], ShouldResemble, msgs[5:])
		})

		Convey("较早的健康 / 客户信息消息被原样保留", func() {
			msgs := history(10, func(i int) string {
				switch i {
				case 2:
					return "I have insomnia every night"
				case 3:
					return "I recommend Sleep Well for that"
				default:
					return plain(i)
				}
			})
			out, _ := c.Compress(msgs, cc, 4)
			So(out, ShouldHaveLength, 8)
			So(out[2].Content, ShouldEqual, "I have insomnia every night")
			So(out[3].Content, ShouldEqual, "I recommend Sleep Well for that")
			So(out[4].Content, ShouldStartWith, SummaryMarker)
			So(out[5:], ShouldResemble, msgs[7:])
		})

		Convey("原始切片不被修改", func() {
			msgs := history(20, plain)
			snapshot := append([]model.Message(nil), msgs...)
			_, _ = c.Compress(msgs, cc, 4)
			So(msgs, ShouldResemble, snapshot)
		})

		Convey("优先消息晚于折叠部分时摘要时间不倒退", func() {
			msgs := history(14, func(i int) string {
				if i == 7 {
					return "I have insomnia every night"
				}
				return plain(i)
			})
			// 以助手消息开头，第 7 条用户消息的回复落在最近窗口内
			for i := range msgs {
				if i%2 == 0 {
					msgs[i].Role = model.RoleAssistant
				} else {
					msgs[i].Role = model.RoleUser
				}
			}
			out, outcome := c.Compress(msgs, cc, 4)
			So(outcome, ShouldEqual, OutcomeCompressed)
			So(out, ShouldHaveLength, 8)
			So(out[0], ShouldResemble, msgs[7])
			So(out[1].Content, ShouldStartWith, SummaryMarker)
			So(out[1].Timestamp, ShouldEqual, msgs[7].Timestamp)
			for i := 1; i < len(out); i++ {
				So(out[i].Timestamp.Before(out[i-1].Timestamp), ShouldBeFalse)
			}
		})

		Convey("各种长度结果都等于允许长度", func() {
			for _, n := range []int{9, 11, 15, 40} {
				out, outcome := c.Compress(history(n, plain), cc, 4)
				So(outcome, ShouldEqual, OutcomeCompressed)
				So(out, ShouldHaveLength, 8)
			}
		})
	})
}

func TestCompressor_Summary(t *testing.T) {
	Convey("摘要内容", t, func() {
		c := newCompressor()
		cc := &model.ConversationContext{UserID: "u1", Stage: model.StageProductRecommendation}
		cc.Metadata.CurrentOrder = &model.Order{
			CustomerName: "Somchai Jaidee", Phone: "0812345678", Address: "99 Main Road",
			Step: model.OrderStepPayment,
		}
		cc.Metadata.CurrentOrder.AddItem("Fiber Plus", 1, 450)

		// 问候对之后的消息不含健康 / 订单 / 客户信息，全部折叠进摘要
		folded := []string{
			"hi", "hello, how can I help?",
			"my goal is to eat better", "I recommend Fiber Plus daily",
			"how much is Fiber Plus", "It is 450 baht",
		}
		msgs := history(20, func(i int) string {
			if i < len(folded) {
				return folded[i]
			}
			return plain(i)
		})
		// level=2 -> 订单进行中 -> 有效级别 6 -> allowed=12
		out, outcome := c.Compress(msgs, cc, 2)
		So(outcome, ShouldEqual, OutcomeCompressed)
		So(out, ShouldHaveLength, 12)

		var summary string
		for _, m := range out {
			if strings.HasPrefix(m.Content, SummaryMarker) {
				summary = m.Content
			}
		}
		So(summary, ShouldNotBeEmpty)
		So(summary, ShouldContainSubstring, "products: Fiber Plus")
		So(summary, ShouldContainSubstring, "customer: name=Somchai Jaidee; phone=0812345678; address=99 Main Road")
		So(summary, ShouldContainSubstring, "goal: my goal is to eat better")
		So(summary, ShouldContainSubstring, "recommended: I recommend Fiber Plus daily")
		So(summary, ShouldEndWith, "last turn: general")
		So(summary, ShouldContainSubstring, "order: step payment, 1 items, total 450.00")
		So(strings.Count(summary, " | "), ShouldBeGreaterThanOrEqualTo, 3)
	})
}

func TestCompressor_Fallback(t *testing.T) {
	Convey("内部异常时返回原历史", t, func() {
		c := New(Options{OrderLevel: 8, PreserveDetails: true}, brokenCatalog{})
		cc := &model.ConversationContext{UserID: "u1", Stage: model.StageHealthInquiry}
		msgs := history(20, plain)

		out, outcome := c.Compress(msgs, cc, 4)
		So(outcome, ShouldEqual, OutcomeFallback)
		So(out, ShouldResemble, msgs)
	})
}
