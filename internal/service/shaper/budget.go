package shaper

import "mint/internal/model"

// Structure 结构变换类型
type Structure string

const (
	StructureNatural    Structure = "natural"
	StructureStructured Structure = "structured"
	StructureBullets    Structure = "bullets"
	StructureJSON       Structure = "json"
)

// Style 语言风格
type Style string

const (
	StyleFriendly     Style = "friendly"
	StyleProfessional Style = "professional"
	StyleBrief        Style = "brief"
)

// briefFactor 简短偏好对 token 预算的缩放
const briefFactor = 0.7

// Budget 单个阶段的回复预算
type Budget struct {
	MaxTokens    int       `json:"max_tokens"`
	Structure    Structure `json:"structure"`
	Style        Style     `json:"style"`
	IncludeEmoji bool      `json:"include_emoji"`
}

// budgets 阶段预算表，运行期只读
var budgets = map[model.Stage]Budget{
	model.StageGreeting:              {MaxTokens: 150, Structure: StructureNatural, Style: StyleFriendly, IncludeEmoji: true},
	model.StageHealthInquiry:         {MaxTokens: 300, Structure: StructureStructured, Style: StyleFriendly, IncludeEmoji: true},
	model.StageProductRecommendation: {MaxTokens: 400, Structure: StructureBullets, Style: StyleProfessional, IncludeEmoji: true},
	model.StageDietConsultation:      {MaxTokens: 450, Structure: StructureStructured, Style: StyleFriendly, IncludeEmoji: true},
	model.StageOrderCollection:       {MaxTokens: 250, Structure: StructureBullets, Style: StyleProfessional, IncludeEmoji: false},
	model.StageOrderConfirmation:     {MaxTokens: 300, Structure: StructureJSON, Style: StyleProfessional, IncludeEmoji: false},
	model.StageComplete:              {MaxTokens: 120, Structure: StructureNatural, Style: StyleFriendly, IncludeEmoji: true},
	model.StageGeneralSupport:        {MaxTokens: 300, Structure: StructureNatural, Style: StyleFriendly, IncludeEmoji: true},
}

// BudgetFor 阶段预算叠加用户偏好
func BudgetFor(stage model.Stage, prefs model.Preferences) Budget {
	b, ok := budgets[stage.OrDefault()]
	if !ok {
		b = budgets[model.StageGeneralSupport]
	}
	if prefs.Brief {
		b.MaxTokens = int(float64(b.MaxTokens) * briefFactor)
		b.Style = StyleBrief
	}
	if prefs.Emoji != nil {
		b.IncludeEmoji = *prefs.Emoji
	}
	return b
}

// weights 效率分四项权重：信息密度、亲和度、可执行性、清晰度
type weights struct {
	density, warmth, action, clarity float64
}

var stageWeights = map[model.Stage]weights{
	model.StageGreeting:              {0.15, 0.45, 0.15, 0.25},
	model.StageHealthInquiry:         {0.30, 0.25, 0.20, 0.25},
	model.StageProductRecommendation: {0.40, 0.15, 0.25, 0.20},
	model.StageDietConsultation:      {0.35, 0.20, 0.25, 0.20},
	model.StageOrderCollection:       {0.25, 0.10, 0.45, 0.20},
	model.StageOrderConfirmation:     {0.30, 0.10, 0.40, 0.20},
	model.StageComplete:              {0.15, 0.50, 0.10, 0.25},
	model.StageGeneralSupport:        {0.30, 0.25, 0.20, 0.25},
}
