package flow

import (
	"mint/internal/model"
	"mint/internal/pkg/textrules"
)

// Input 阶段识别输入
type Input struct {
	Message       string
	PriorResponse string
	Current       model.Stage
	Order         *model.Order
}

// stageRule 有序规则，第一个命中者生效
type stageRule struct {
	name  string
	apply func(in Input) (model.Stage, bool)
}

// Classifier 对话阶段状态机
// 纯函数：相同的 (message, priorResponse, context) 总是得到相同阶段
type Classifier struct {
	rules []stageRule
}

// NewClassifier 创建阶段识别器
func NewClassifier() *Classifier {
	return &Classifier{rules: defaultRules()}
}

// Next 计算下一阶段，无规则命中时保持当前阶段
func (c *Classifier) Next(message, priorResponse string, cc *model.ConversationContext) model.Stage {
	in := Input{
		Message:       message,
		PriorResponse: priorResponse,
		Current:       model.StageGreeting,
	}
	if cc != nil {
		in.Current = cc.Stage.OrDefault()
		in.Order = cc.Metadata.CurrentOrder
	}

	for _, r := range c.rules {
		if next, ok := r.apply(in); ok {
			return next
		}
	}
	return in.Current
}

// Explain 返回命中的规则名（调试 / 日志用）
func (c *Classifier) Explain(message, priorResponse string, cc *model.ConversationContext) string {
	in := Input{Message: message, PriorResponse: priorResponse, Current: model.StageGreeting}
	if cc != nil {
		in.Current = cc.Stage.OrDefault()
		in.Order = cc.Metadata.CurrentOrder
	}
	for _, r := range c.rules {
		if _, ok := r.apply(in); ok {
			return r.name
		}
	}
	return "stay"
}

func defaultRules() []stageRule {
	return []stageRule{
		{
			name: "confirmation_closed",
			apply: func(in Input) (model.Stage, bool) {
				if in.Current == model.StageOrderConfirmation && textrules.Replies.Has(in.PriorResponse, textrules.ReplyClosing) {
					return model.StageComplete, true
				}
				return "", false
			},
		},
		{
			name: "reopen_after_complete",
			apply: func(in Input) (model.Stage, bool) {
				if in.Current != model.StageComplete || !textrules.IsFreshQuestion(in.Message) {
					return "", false
				}
				switch {
				case textrules.Intents.Has(in.Message, textrules.IntentOrder):
					return model.StageOrderCollection, true
				case textrules.Intents.Has(in.Message, textrules.IntentDiet):
					return model.StageDietConsultation, true
				default:
					return model.StageProductRecommendation, true
				}
			},
		},
		{
			name: "diet",
			apply: func(in Input) (model.Stage, bool) {
				if textrules.Intents.Has(in.Message, textrules.IntentDiet) {
					return model.StageDietConsultation, true
				}
				if in.Current == model.StageDietConsultation && textrules.Intents.Has(in.Message, textrules.IntentDietFollowUp) {
					return model.StageDietConsultation, true
				}
				return "", false
			},
		},
		{
			name: "order",
			apply: func(in Input) (model.Stage, bool) {
				if textrules.Intents.Has(in.Message, textrules.IntentOrder) ||
					textrules.Replies.Has(in.PriorResponse, textrules.ReplyAddressRequest) {
					return model.StageOrderCollection, true
				}
				return "", false
			},
		},
		{
			name: "order_confirm",
			apply: func(in Input) (model.Stage, bool) {
				if in.Current == model.StageOrderCollection &&
					in.Order.Active() && len(in.Order.Items) > 0 &&
					textrules.Intents.Has(in.Message, textrules.IntentAffirm) {
					return model.StageOrderConfirmation, true
				}
				return "", false
			},
		},
		{
			name: "health",
			apply: func(in Input) (model.Stage, bool) {
				if textrules.Health.Any(in.Message) {
					return model.StageHealthInquiry, true
				}
				return "", false
			},
		},
		{
			name: "product",
			apply: func(in Input) (model.Stage, bool) {
				if textrules.Intents.Has(in.Message, textrules.IntentProduct) ||
					textrules.Replies.Has(in.PriorResponse, textrules.ReplyRecommendation) {
					return model.StageProductRecommendation, true
				}
				return "", false
			},
		},
		{
			name: "greeting_advance",
			apply: func(in Input) (model.Stage, bool) {
				if in.Current == model.StageGreeting {
					return model.StageProductRecommendation, true
				}
				return "", false
			},
		},
	}
}
