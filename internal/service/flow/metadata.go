package flow

import (
	"regexp"
	"strconv"
	"strings"

	"mint/internal/model"
	"mint/internal/pkg/textrules"
)

const (
	maxKeyPoints    = 5
	maxHabits       = 5
	snippetMaxRunes = 80
)

var (
	budgetPattern   = regexp.MustCompile(`(?i)(?:budget(?:\s+is)?|under|less than|not more than|around|max(?:imum)?)\s*(?:of\s*)?[$฿]?\s*(\d[\d,]*(?:\.\d+)?)`)
	quantityPattern = regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:x\s*)?(?:bottles?|boxes?|packs?|pcs|pieces|units|sets?)\b`)
)

// ProductSource 提供商品目录（名称与价格）
type ProductSource interface {
	Products() []model.Product
}

// MetadataUpdater 用规则表从用户消息中挖掘元数据
type MetadataUpdater struct {
	catalog ProductSource
}

// NewMetadataUpdater 创建元数据更新器
func NewMetadataUpdater(catalog ProductSource) *MetadataUpdater {
	return &MetadataUpdater{catalog: catalog}
}

// Apply 根据本轮消息与新阶段更新上下文元数据
func (u *MetadataUpdater) Apply(cc *model.ConversationContext, message string, stage model.Stage) {
	md := &cc.Metadata

	for _, c := range textrules.Health.Categories(message) {
		md.Preferences.AddCondition(c)
	}

	mentioned := u.mentionedProducts(message)
	for _, p := range mentioned {
		md.AddProduct(p.Name)
	}

	if m := budgetPattern.FindString(message); m != "" {
		md.Preferences.Budget = strings.TrimSpace(m)
	}
	if textrules.Intents.Has(message, textrules.IntentBrief) {
		md.Preferences.Brief = true
	}
	if textrules.Intents.Has(message, textrules.IntentNoEmoji) {
		off := false
		md.Preferences.Emoji = &off
	}
	if textrules.Intents.Has(message, textrules.IntentGoal) {
		md.KeyPoints = appendBounded(md.KeyPoints, "goal: "+snippet(message), maxKeyPoints)
	}

	if stage == model.StageDietConsultation {
		u.applyDiet(md, message)
	}

	u.applyOrder(md, message, stage, mentioned)
}

func (u *MetadataUpdater) applyDiet(md *model.Metadata, message string) {
	if md.DietProfile == nil {
		md.DietProfile = &model.DietProfile{}
	}
	if textrules.Intents.Has(message, textrules.IntentGoal) || textrules.Health.Has(message, textrules.HealthWeight) {
		md.DietProfile.Goal = snippet(message)
	}
	if textrules.Intents.Has(message, textrules.IntentDietFollowUp) {
		md.DietProfile.EatingHabits = appendBounded(md.DietProfile.EatingHabits, snippet(message), maxHabits)
	}
}

func (u *MetadataUpdater) applyOrder(md *model.Metadata, message string, stage model.Stage, mentioned []model.Product) {
	switch stage {
	case model.StageOrderCollection:
		if !md.CurrentOrder.Active() {
			md.CurrentOrder = &model.Order{Step: model.OrderStepItems}
		}
	case model.StageComplete:
		if md.CurrentOrder.Active() {
			md.CurrentOrder.Complete = true
			md.CurrentOrder.Step = model.OrderStepDone
		}
		return
	}

	order := md.CurrentOrder
	if !order.Active() {
		return
	}

	qty := 1
	if m := quantityPattern.FindStringSubmatch(message); len(m) == 2 {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			qty = n
		}
	}
	if stage == model.StageOrderCollection {
		switch {
		case len(mentioned) > 0:
			for _, p := range mentioned {
				order.AddItem(p.Name, qty, p.Price)
			}
		case len(order.Items) == 0 && len(md.MentionedProducts) > 0:
			// 下单时未点名商品，沿用最近提及的商品
			last := md.MentionedProducts[len(md.MentionedProducts)-1]
			order.AddItem(last, qty, u.priceOf(last))
		}
	}

	details := textrules.ExtractCustomer(message)
	fill := func(dst *string, field string) {
		if v, ok := details[field]; ok && strings.TrimSpace(*dst) == "" {
			*dst = v
		}
	}
	fill(&order.CustomerName, textrules.FieldName)
	fill(&order.Phone, textrules.FieldPhone)
	fill(&order.Address, textrules.FieldAddress)
	fill(&order.PaymentMethod, textrules.FieldPayment)
	fill(&order.ShippingOption, textrules.FieldShipping)

	if stage == model.StageOrderConfirmation {
		order.Step = model.OrderStepConfirm
		return
	}
	order.Step = nextOrderStep(order)
}

// nextOrderStep 第一个尚未收集的步骤
func nextOrderStep(o *model.Order) string {
	switch {
	case len(o.Items) == 0:
		return model.OrderStepItems
	case o.CustomerName == "":
		return model.OrderStepName
	case o.Phone == "":
		return model.OrderStepPhone
	case o.Address == "":
		return model.OrderStepAddress
	case o.PaymentMethod == "":
		return model.OrderStepPayment
	case o.ShippingOption == "":
		return model.OrderStepShipping
	default:
		return model.OrderStepConfirm
	}
}

func (u *MetadataUpdater) mentionedProducts(message string) []model.Product {
	if u.catalog == nil {
		return nil
	}
	lower := strings.ToLower(message)
	var out []model.Product
	for _, p := range u.catalog.Products() {
		if p.Name != "" && strings.Contains(lower, strings.ToLower(p.Name)) {
			out = append(out, p)
		}
	}
	return out
}

func (u *MetadataUpdater) priceOf(name string) float64 {
	if u.catalog == nil {
		return 0
	}
	for _, p := range u.catalog.Products() {
		if strings.EqualFold(p.Name, name) {
			return p.Price
		}
	}
	return 0
}

func appendBounded(list []string, item string, limit int) []string {
	for _, s := range list {
		if s == item {
			return list
		}
	}
	list = append(list, item)
	if len(list) > limit {
		list = list[len(list)-limit:]
	}
	return list
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= snippetMaxRunes {
		return s
	}
	return string(r[:snippetMaxRunes]) + "…"
}
