// Package prompt 两段式提示词组装
//
// 静态段（人设 / 规范 / 价格规则）很少变化，标记为可缓存；
// 动态段每轮按需拼装实时时间、流程、记忆、订单与推荐信息。
package prompt

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"mint/internal/model"
	"mint/internal/service/flow"
)

// 各段 token 估算常量
const (
	StaticTokens          = 1800
	RealTimeTokens        = 60
	FlowTokens            = 120
	MemoryTokens          = 80
	OrderTokens           = 50
	RecommendationTokens  = 150
	RecommendationCeiling = 300
	NoMatchTokens         = 30

	maxRecommendations = 2
	maxBenefits        = 3
	maxMemoryProducts  = 3
)

// noMatchInstruction 没有匹配商品时的指令
const noMatchInstruction = "No matching product for this request. Continue the general consultation and ask about symptoms or goals; do not recommend any product."

// stageInstructions 各阶段的一行指令
var stageInstructions = map[model.Stage]string{
	model.StageGreeting:              "Greet warmly and ask what health concern brings the customer here.",
	model.StageHealthInquiry:         "Ask about symptoms, duration and severity before recommending anything.",
	model.StageProductRecommendation: "Recommend from the listed products only, with reasons and warnings.",
	model.StageDietConsultation:      "Give practical meal advice that fits the customer's habits and goal.",
	model.StageOrderCollection:       "Collect the next missing order detail. Ask for one field at a time.",
	model.StageOrderConfirmation:     "Summarise the full order and ask the customer to confirm.",
	model.StageComplete:              "Thank the customer. Offer help with anything else.",
	model.StageGeneralSupport:        "Answer the question helpfully and briefly.",
}

// Prompt 组装结果
type Prompt struct {
	Static  string
	Dynamic string
	// Cacheable 静态段可被模型服务缓存
	Cacheable bool
	// CacheKey 静态段指纹
	CacheKey      string
	TokenEstimate int
}

// Options 组装器参数
type Options struct {
	Static   string
	Location *time.Location
	Now      func() time.Time
}

// Assembler 提示词组装器
type Assembler struct {
	static   string
	cacheKey string
	loc      *time.Location
	now      func() time.Time
}

// NewAssembler 创建组装器
func NewAssembler(opts Options) *Assembler {
	if opts.Static == "" {
		opts.Static = defaultStatic
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Assembler{
		static:   opts.Static,
		cacheKey: Fingerprint(opts.Static),
		loc:      opts.Location,
		now:      opts.Now,
	}
}

// Fingerprint 静态段的 blake2b-256 指纹
func Fingerprint(static string) string {
	sum := blake2b.Sum256([]byte(static))
	return hex.EncodeToString(sum[:])
}

// CacheKey 当前静态段指纹
func (a *Assembler) CacheKey() string {
	return a.cacheKey
}

// Build 组装提示词，总是返回结果（动态段可以为空）
func (a *Assembler) Build(recs []model.Recommendation, cc *model.ConversationContext, summary *flow.Summary, includeRealTime bool) Prompt {
	p := Prompt{
		Static:        a.static,
		Cacheable:     true,
		CacheKey:      a.cacheKey,
		TokenEstimate: StaticTokens,
	}

	var blocks []string
	if includeRealTime {
		blocks = append(blocks, a.realTimeBlock())
		p.TokenEstimate += RealTimeTokens
	}
	if summary != nil {
		blocks = append(blocks, flowBlock(summary))
		p.TokenEstimate += FlowTokens
	}
	if cc != nil && !cc.Metadata.Empty() {
		blocks = append(blocks, memoryBlock(&cc.Metadata))
		p.TokenEstimate += MemoryTokens
	}
	if cc != nil && cc.Metadata.CurrentOrder != nil && len(cc.Metadata.CurrentOrder.Items) > 0 {
		blocks = append(blocks, orderBlock(cc.Metadata.CurrentOrder))
		p.TokenEstimate += OrderTokens
	}

	if len(recs) == 0 {
		blocks = append(blocks, "## Products\n"+noMatchInstruction)
		p.TokenEstimate += NoMatchTokens
	} else {
		if len(recs) > maxRecommendations {
			recs = recs[:maxRecommendations]
		}
		blocks = append(blocks, recommendationBlock(recs))
		p.TokenEstimate += min(len(recs)*RecommendationTokens, RecommendationCeiling)
	}

	p.Dynamic = strings.Join(blocks, "\n\n")
	return p
}

func (a *Assembler) realTimeBlock() string {
	now := a.now().In(a.loc)
	part, greeting := dayPart(now.Hour())
	return fmt.Sprintf("## Now\nLocal time: %s (%s, %s). Greeting \"%s\" is appropriate.",
		now.Format("Mon 2006-01-02 15:04"), a.loc.String(), part, greeting)
}

func dayPart(hour int) (string, string) {
	switch {
	case hour >= 5 && hour < 12:
		return "morning", "Good morning"
	case hour >= 12 && hour < 17:
		return "afternoon", "Good afternoon"
	case hour >= 17 && hour < 22:
		return "evening", "Good evening"
	default:
		return "late night", "Hello"
	}
}

func flowBlock(s *flow.Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## Flow\nStage: %s (%d%%)\nSummary: %s", s.Stage, s.Progress, s.ConversationSummary)
	if hc := s.CustomerProfile.HealthConcerns; len(hc) > 0 {
		fmt.Fprintf(&b, "\nHealth concerns: %s", strings.Join(hc, ", "))
	}
	if eh := s.CustomerProfile.EatingHabits; len(eh) > 0 {
		fmt.Fprintf(&b, "\nEating habits: %s", strings.Join(eh, "; "))
	}
	if ins, ok := stageInstructions[s.Stage]; ok {
		fmt.Fprintf(&b, "\nInstruction: %s", ins)
	}
	return b.String()
}

func memoryBlock(md *model.Metadata) string {
	var lines []string
	if n := len(md.MentionedProducts); n > 0 {
		recent := md.MentionedProducts[max(0, n-maxMemoryProducts):]
		lines = append(lines, "Mentioned products: "+strings.Join(recent, ", "))
	}
	if md.Preferences.Budget != "" {
		lines = append(lines, "Budget: "+md.Preferences.Budget)
	}
	if len(md.KeyPoints) > 0 {
		lines = append(lines, "Key points: "+strings.Join(md.KeyPoints, "; "))
	}
	return "## Memory\n" + strings.Join(lines, "\n")
}

func orderBlock(o *model.Order) string {
	return fmt.Sprintf("## Order\nStep: %s | Items: %d | Total: %.2f", o.Step, o.ItemCount(), o.Total)
}

func recommendationBlock(recs []model.Recommendation) string {
	var b strings.Builder
	b.WriteString("## Products")
	for i, r := range recs {
		fmt.Fprintf(&b, "\n%d. %s - %.2f\n   Why: %s", i+1, r.Product.Name, r.Product.Price, r.Reason)
		benefits := r.Benefits
		if len(benefits) == 0 {
			benefits = r.Product.Benefits
		}
		if len(benefits) > maxBenefits {
			benefits = benefits[:maxBenefits]
		}
		if len(benefits) > 0 {
			fmt.Fprintf(&b, "\n   Benefits: %s", strings.Join(benefits, "; "))
		}
		if r.Product.Dosage != "" {
			fmt.Fprintf(&b, "\n   Usage: %s", r.Product.Dosage)
		}
		if len(r.Product.Warnings) > 0 {
			fmt.Fprintf(&b, "\n   Warnings: %s", strings.Join(r.Product.Warnings, "; "))
		}
	}
	return b.String()
}
