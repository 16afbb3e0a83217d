package flow

import (
	"fmt"
	"strings"

	"mint/internal/model"
)

// Summary 流程摘要（供 PromptAssembler 使用）
type Summary struct {
	Stage               model.Stage     `json:"stage"`
	Progress            int             `json:"progress"`
	ConversationSummary string          `json:"conversation_summary"`
	CustomerProfile     CustomerProfile `json:"customer_profile"`
	OrderProgress       *OrderProgress  `json:"order_progress,omitempty"`
}

// CustomerProfile 客户画像
type CustomerProfile struct {
	HealthConcerns []string `json:"health_concerns,omitempty"`
	EatingHabits   []string `json:"eating_habits,omitempty"`
	DietGoal       string   `json:"diet_goal,omitempty"`
	Budget         string   `json:"budget,omitempty"`
}

// OrderProgress 订单进度
type OrderProgress struct {
	Step      string   `json:"step"`
	ItemCount int      `json:"item_count"`
	Total     float64  `json:"total"`
	Missing   []string `json:"missing,omitempty"`
	Complete  bool     `json:"complete"`
}

// Controller 流程摘要协作者的默认实现
type Controller struct{}

// NewController 创建流程控制器
func NewController() *Controller {
	return &Controller{}
}

// Summarize 根据上下文快照生成流程摘要
func (c *Controller) Summarize(cc *model.ConversationContext) Summary {
	stage := cc.Stage.OrDefault()
	md := cc.Metadata

	s := Summary{
		Stage:    stage,
		Progress: stage.Progress(),
		CustomerProfile: CustomerProfile{
			HealthConcerns: md.Preferences.HealthConditions,
			Budget:         md.Preferences.Budget,
		},
	}
	if md.DietProfile != nil {
		s.CustomerProfile.EatingHabits = md.DietProfile.EatingHabits
		s.CustomerProfile.DietGoal = md.DietProfile.Goal
	}
	if o := md.CurrentOrder; o != nil {
		s.OrderProgress = &OrderProgress{
			Step:      o.Step,
			ItemCount: o.ItemCount(),
			Total:     o.Total,
			Missing:   o.MissingIdentity(),
			Complete:  o.Complete,
		}
	}
	s.ConversationSummary = describe(s, md)
	return s
}

func describe(s Summary, md model.Metadata) string {
	var parts []string
	if len(s.CustomerProfile.HealthConcerns) > 0 {
		parts = append(parts, "concerned about "+strings.Join(s.CustomerProfile.HealthConcerns, ", "))
	}
	if len(md.MentionedProducts) > 0 {
		parts = append(parts, "interested in "+strings.Join(md.MentionedProducts, ", "))
	}
	if s.CustomerProfile.DietGoal != "" {
		parts = append(parts, "diet goal: "+s.CustomerProfile.DietGoal)
	}
	if op := s.OrderProgress; op != nil {
		if op.Complete {
			parts = append(parts, "order completed")
		} else {
			parts = append(parts, fmt.Sprintf("ordering (step %s, %d items)", op.Step, op.ItemCount))
		}
	}
	if len(parts) == 0 {
		return "new conversation, no details collected yet"
	}
	return "Customer " + strings.Join(parts, "; ")
}
