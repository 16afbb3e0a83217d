// Package compress 对话历史压缩
//
// 历史超过允许长度时，保留少量优先消息和最近消息，中间部分折叠为一条摘要消息。
// 订单进行中且客户身份信息未收集完整时不压缩。
package compress

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"mint/internal/model"
	"mint/internal/pkg/logger"
	"mint/internal/pkg/textrules"
)

const (
	// SummaryMarker 摘要消息前缀
	SummaryMarker = "[CONTEXT SUMMARY]"

	// recentWindow 优先消息只在最近 6 条之前的消息中挑选
	recentWindow = 6
	// maxPriority 优先消息上限
	maxPriority = 6
	// minPartialLevel 部分完成订单的压缩级别下限
	minPartialLevel = 6
	maxSummaryKeys  = 5
)

// Outcome 压缩结果类型
type Outcome string

const (
	OutcomeUnchanged  Outcome = "unchanged"  // 未超过允许长度
	OutcomeGuarded    Outcome = "guarded"    // 身份信息未完整，跳过压缩
	OutcomeCompressed Outcome = "compressed" // 已压缩
	OutcomeFallback   Outcome = "fallback"   // 内部异常，返回原历史
)

// Catalog 已知商品名来源
type Catalog interface {
	Products() []model.Product
}

// Options 压缩参数
type Options struct {
	// OrderLevel 订单阶段使用的压缩级别
	OrderLevel int
	// PreserveDetails 订单身份信息未完整时禁止压缩
	PreserveDetails bool
}

// Compressor 上下文压缩器
type Compressor struct {
	opts    Options
	catalog Catalog
	logger  zerolog.Logger
}

// New 创建压缩器
func New(opts Options, catalog Catalog) *Compressor {
	if opts.OrderLevel < 1 {
		opts.OrderLevel = 8
	}
	return &Compressor{
		opts:    opts,
		catalog: catalog,
		logger:  logger.Component("compressor"),
	}
}

// Compress 按压缩级别压缩历史，返回压缩后的视图
// 原切片不会被修改
func (c *Compressor) Compress(messages []model.Message, cc *model.ConversationContext, level int) (out []model.Message, outcome Outcome) {
	if cc == nil {
		cc = &model.ConversationContext{}
	}

	if c.guarded(cc) {
		c.logger.Info().
			Str("user_id", cc.UserID).
			Str("stage", cc.Stage.String()).
			Strs("missing", cc.Metadata.CurrentOrder.MissingIdentity()).
			Int("messages", len(messages)).
			Msg("订单身份信息未完整，跳过压缩")
		return messages, OutcomeGuarded
	}

	allowed := c.EffectiveLevel(cc, level) * 2
	if len(messages) <= allowed {
		return messages, OutcomeUnchanged
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("user_id", cc.UserID).
				Interface("panic", r).
				Msg("压缩失败，返回原始历史")
			out, outcome = messages, OutcomeFallback
		}
	}()

	out = c.fold(messages, cc, allowed)
	c.logger.Debug().
		Str("user_id", cc.UserID).
		Int("before", len(messages)).
		Int("after", len(out)).
		Int("allowed", allowed).
		Msg("历史已压缩")
	return out, OutcomeCompressed
}

// guarded 订单进行中且缺少姓名 / 电话 / 地址
func (c *Compressor) guarded(cc *model.ConversationContext) bool {
	if !c.opts.PreserveDetails {
		return false
	}
	o := cc.Metadata.CurrentOrder
	return o.Active() && len(o.MissingIdentity()) > 0
}

// EffectiveLevel 按阶段调整压缩级别
func (c *Compressor) EffectiveLevel(cc *model.ConversationContext, level int) int {
	if level < 1 {
		level = 1
	}
	if cc == nil {
		return level
	}
	if cc.Stage.IsOrderStage() {
		return max(level, c.opts.OrderLevel)
	}
	if cc.Metadata.CurrentOrder.Active() {
		scaled := int(math.Ceil(float64(c.opts.OrderLevel) * 0.75))
		return max(level, max(scaled, minPartialLevel))
	}
	return level
}

func (c *Compressor) fold(messages []model.Message, cc *model.ConversationContext, allowed int) []model.Message {
	priority := c.priorityIndices(messages, max(0, min(maxPriority, allowed-2)))

	// 优先消息与最近消息不重叠；预留一个位置给摘要，结果恰好 allowed 条
	var recentStart int
	for {
		recentStart = len(messages) - (allowed - 1 - len(priority))
		kept := priority[:0:0]
		for _, i := range priority {
			if i < recentStart {
				kept = append(kept, i)
			}
		}
		if len(kept) == len(priority) {
			break
		}
		priority = kept
	}

	isPriority := make(map[int]bool, len(priority))
	for _, i := range priority {
		isPriority[i] = true
	}
	var folded []model.Message
	for i := 0; i < recentStart; i++ {
		if !isPriority[i] {
			folded = append(folded, messages[i])
		}
	}

	out := make([]model.Message, 0, allowed)
	for _, i := range priority {
		out = append(out, messages[i])
	}
	if len(folded) > 0 {
		// 摘要排在优先消息之后，时间戳不能早于它们
		at := folded[len(folded)-1].Timestamp
		if n := len(priority); n > 0 && messages[priority[n-1]].Timestamp.After(at) {
			at = messages[priority[n-1]].Timestamp
		}
		out = append(out, model.Message{
			Role:      model.RoleAssistant,
			Content:   c.summarize(folded, cc),
			Timestamp: at,
		})
	}
	return append(out, messages[recentStart:]...)
}

// priorityIndices 开场问候对 + 含健康 / 订单 / 客户信息的用户消息及其回复
func (c *Compressor) priorityIndices(messages []model.Message, limit int) []int {
	scanEnd := len(messages) - recentWindow
	if scanEnd <= 0 || limit <= 0 {
		return nil
	}

	picked := make(map[int]bool)
	var out []int
	take := func(idx ...int) {
		if len(out)+len(idx) > limit {
			idx = idx[:limit-len(out)]
		}
		for _, i := range idx {
			if !picked[i] {
				picked[i] = true
				out = append(out, i)
			}
		}
	}

	if scanEnd >= 2 && messages[0].Role == model.RoleUser && messages[1].Role == model.RoleAssistant {
		take(0, 1)
	}
	for i := 0; i < scanEnd && len(out) < limit; i++ {
		m := messages[i]
		if m.Role != model.RoleUser || picked[i] || !important(m.Content) {
			continue
		}
		if i+1 < scanEnd && messages[i+1].Role == model.RoleAssistant {
			take(i, i+1)
		} else {
			take(i)
		}
	}
	sort.Ints(out)
	return out
}

func important(text string) bool {
	return textrules.Health.Any(text) ||
		textrules.Intents.Has(text, textrules.IntentOrder) ||
		textrules.HasCustomerDetail(text)
}

// summarize 生成折叠部分的单行摘要
func (c *Compressor) summarize(folded []model.Message, cc *model.ConversationContext) string {
	var (
		health     []string
		seenHealth = map[string]bool{}
		keyPoints  []string
		lastUser   string
		mined      = textrules.CustomerDetails{}
		corpus     strings.Builder
	)

	for _, m := range folded {
		corpus.WriteString(m.Content)
		corpus.WriteByte('\n')

		if m.Role == model.RoleAssistant {
			if textrules.Replies.Has(m.Content, textrules.ReplyRecommendation) && len(keyPoints) < maxSummaryKeys {
				keyPoints = append(keyPoints, "recommended: "+clip(m.Content))
			}
			continue
		}

		lastUser = m.Content
		for _, h := range textrules.Health.Categories(m.Content) {
			if !seenHealth[h] {
				seenHealth[h] = true
				health = append(health, h)
			}
		}
		for k, v := range textrules.ExtractCustomer(m.Content) {
			if _, ok := mined[k]; !ok {
				mined[k] = v
			}
		}
		if len(keyPoints) < maxSummaryKeys {
			switch {
			case textrules.Intents.Has(m.Content, textrules.IntentGoal):
				keyPoints = append(keyPoints, "goal: "+clip(m.Content))
			case textrules.Intents.Has(m.Content, textrules.IntentBudget):
				keyPoints = append(keyPoints, "budget: "+clip(m.Content))
			}
		}
	}

	parts := []string{SummaryMarker}
	if len(health) > 0 {
		parts = append(parts, "health: "+strings.Join(health, ", "))
	}
	if products := c.productsIn(corpus.String()); len(products) > 0 {
		parts = append(parts, "products: "+strings.Join(products, ", "))
	}
	if customer := customerLine(cc.Metadata.CurrentOrder, mined); customer != "" {
		parts = append(parts, "customer: "+customer)
	}
	if len(keyPoints) > 0 {
		parts = append(parts, "key points: "+strings.Join(keyPoints, "; "))
	}
	parts = append(parts, "order: "+orderStatus(cc.Metadata.CurrentOrder))
	parts = append(parts, "last turn: "+textrules.ClassifyTurn(lastUser))
	return strings.Join(parts, " | ")
}

func (c *Compressor) productsIn(text string) []string {
	if c.catalog == nil {
		return nil
	}
	lower := strings.ToLower(text)
	var out []string
	for _, p := range c.catalog.Products() {
		if p.Name != "" && strings.Contains(lower, strings.ToLower(p.Name)) {
			out = append(out, p.Name)
		}
	}
	return out
}

// customerLine 优先使用订单中已确认的字段
func customerLine(o *model.Order, mined textrules.CustomerDetails) string {
	known := map[string]string{}
	if o != nil {
		known[textrules.FieldName] = o.CustomerName
		known[textrules.FieldPhone] = o.Phone
		known[textrules.FieldAddress] = o.Address
		known[textrules.FieldPayment] = o.PaymentMethod
		known[textrules.FieldShipping] = o.ShippingOption
	}

	var fields []string
	for _, f := range []string{textrules.FieldName, textrules.FieldPhone, textrules.FieldAddress, textrules.FieldPayment, textrules.FieldShipping} {
		v := strings.TrimSpace(known[f])
		if v == "" {
			v = mined[f]
		}
		if v != "" {
			fields = append(fields, f+"="+v)
		}
	}
	return strings.Join(fields, "; ")
}

func orderStatus(o *model.Order) string {
	switch {
	case o == nil:
		return "none"
	case o.Complete:
		return "complete"
	default:
		return fmt.Sprintf("step %s, %d items, total %.2f", o.Step, o.ItemCount(), o.Total)
	}
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= 60 {
		return s
	}
	return string(r[:60]) + "…"
}
