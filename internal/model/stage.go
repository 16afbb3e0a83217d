package model

// Stage 对话阶段
// 阶段并非严格线性，Complete 之后可以重新进入其他阶段
type Stage string

const (
	StageGreeting              Stage = "greeting"
	StageHealthInquiry         Stage = "health_inquiry"
	StageProductRecommendation Stage = "product_recommendation"
	StageDietConsultation      Stage = "diet_consultation"
	StageOrderCollection       Stage = "order_collection"
	StageOrderConfirmation     Stage = "order_confirmation"
	StageComplete              Stage = "complete"
	StageGeneralSupport        Stage = "general_support"
)

// Stages 全部阶段（按生命周期顺序）
var Stages = []Stage{
	StageGreeting,
	StageHealthInquiry,
	StageProductRecommendation,
	StageDietConsultation,
	StageOrderCollection,
	StageOrderConfirmation,
	StageComplete,
	StageGeneralSupport,
}

// stageProgress 各阶段对应的流程进度（百分比）
var stageProgress = map[Stage]int{
	StageGreeting:              5,
	StageHealthInquiry:         25,
	StageDietConsultation:      35,
	StageProductRecommendation: 50,
	StageGeneralSupport:        50,
	StageOrderCollection:       75,
	StageOrderConfirmation:     90,
	StageComplete:              100,
}

// Valid 是否为已知阶段
func (s Stage) Valid() bool {
	_, ok := stageProgress[s]
	return ok
}

// IsOrderStage 是否处于订单相关阶段
func (s Stage) IsOrderStage() bool {
	return s == StageOrderCollection || s == StageOrderConfirmation
}

// Progress 阶段进度百分比，未知阶段返回 0
func (s Stage) Progress() int {
	return stageProgress[s]
}

// OrDefault 空阶段视为 Greeting
func (s Stage) OrDefault() Stage {
	if s == "" {
		return StageGreeting
	}
	return s
}

func (s Stage) String() string {
	return string(s)
}
