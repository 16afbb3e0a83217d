package model

import (
	"strings"
	"time"
)

// 消息角色
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ConversationContext 对话上下文
// 单轮处理期间由编排层独占，轮次之间由存储协作者加载 / 持久化
type ConversationContext struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Stage     Stage     `bson:"stage" json:"stage"`
	Messages  []Message `bson:"messages" json:"messages"`
	Metadata  Metadata  `bson:"metadata" json:"metadata"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// NewConversationContext 创建新用户的初始上下文
func NewConversationContext(userID string, now time.Time) *ConversationContext {
	return &ConversationContext{
		UserID:    userID,
		Stage:     StageGreeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Message 消息（追加后不可修改）
type Message struct {
	Role      string    `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// Append 追加一条消息，保证时间有序
func (c *ConversationContext) Append(role, content string, at time.Time) {
	if n := len(c.Messages); n > 0 && at.Before(c.Messages[n-1].Timestamp) {
		at = c.Messages[n-1].Timestamp
	}
	c.Messages = append(c.Messages, Message{Role: role, Content: content, Timestamp: at})
}

// LastAssistantReply 最近一条助手回复
func (c *ConversationContext) LastAssistantReply() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i].Content
		}
	}
	return ""
}

// Metadata 对话元数据
type Metadata struct {
	MentionedProducts []string     `bson:"mentioned_products,omitempty" json:"mentioned_products,omitempty"`
	Preferences       Preferences  `bson:"preferences" json:"preferences"`
	KeyPoints         []string     `bson:"key_points,omitempty" json:"key_points,omitempty"`
	CurrentOrder      *Order       `bson:"current_order,omitempty" json:"current_order,omitempty"`
	DietProfile       *DietProfile `bson:"diet_profile,omitempty" json:"diet_profile,omitempty"`
}

// Empty 元数据是否为空
func (m *Metadata) Empty() bool {
	return len(m.MentionedProducts) == 0 && m.Preferences.Budget == "" && len(m.KeyPoints) == 0
}

// AddProduct 记录提及的商品（去重）
func (m *Metadata) AddProduct(name string) {
	for _, p := range m.MentionedProducts {
		if strings.EqualFold(p, name) {
			return
		}
	}
	m.MentionedProducts = append(m.MentionedProducts, name)
}

// Preferences 用户偏好
type Preferences struct {
	Budget           string   `bson:"budget,omitempty" json:"budget,omitempty"`
	HealthConditions []string `bson:"health_conditions,omitempty" json:"health_conditions,omitempty"`
	Brief            bool     `bson:"brief,omitempty" json:"brief,omitempty"`
	// Emoji 显式设置时覆盖阶段默认值
	Emoji *bool `bson:"emoji,omitempty" json:"emoji,omitempty"`
}

// AddCondition 记录健康状况（去重）
func (p *Preferences) AddCondition(category string) {
	for _, c := range p.HealthConditions {
		if c == category {
			return
		}
	}
	p.HealthConditions = append(p.HealthConditions, category)
}

// 订单收集步骤
const (
	OrderStepItems    = "items"
	OrderStepName     = "name"
	OrderStepPhone    = "phone"
	OrderStepAddress  = "address"
	OrderStepPayment  = "payment"
	OrderStepShipping = "shipping"
	OrderStepConfirm  = "confirm"
	OrderStepDone     = "done"
)

// Order 进行中的订单
type Order struct {
	Items          []OrderItem `bson:"items" json:"items"`
	Total          float64     `bson:"total" json:"total"`
	CustomerName   string      `bson:"customer_name,omitempty" json:"customer_name,omitempty"`
	Phone          string      `bson:"phone,omitempty" json:"phone,omitempty"`
	Address        string      `bson:"address,omitempty" json:"address,omitempty"`
	PaymentMethod  string      `bson:"payment_method,omitempty" json:"payment_method,omitempty"`
	ShippingOption string      `bson:"shipping_option,omitempty" json:"shipping_option,omitempty"`
	Complete       bool        `bson:"complete" json:"complete"`
	Step           string      `bson:"step" json:"step"`
}

// OrderItem 订单明细
type OrderItem struct {
	ProductName string  `bson:"product_name" json:"product_name"`
	Quantity    int     `bson:"quantity" json:"quantity"`
	UnitPrice   float64 `bson:"unit_price" json:"unit_price"`
}

// Active 订单是否进行中
func (o *Order) Active() bool {
	return o != nil && !o.Complete
}

// MissingIdentity 缺失的客户身份字段（name / phone / address）
func (o *Order) MissingIdentity() []string {
	if o == nil {
		return nil
	}
	var missing []string
	if strings.TrimSpace(o.CustomerName) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(o.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(o.Address) == "" {
		missing = append(missing, "address")
	}
	return missing
}

// ItemCount 商品总件数
func (o *Order) ItemCount() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// AddItem 添加商品，已存在则累加数量，并重算总价
func (o *Order) AddItem(name string, qty int, price float64) {
	if qty <= 0 {
		qty = 1
	}
	found := false
	for i := range o.Items {
		if strings.EqualFold(o.Items[i].ProductName, name) {
			o.Items[i].Quantity += qty
			found = true
			break
		}
	}
	if !found {
		o.Items = append(o.Items, OrderItem{ProductName: name, Quantity: qty, UnitPrice: price})
	}
	o.Total = 0
	for _, it := range o.Items {
		o.Total += float64(it.Quantity) * it.UnitPrice
	}
}

// DietProfile 饮食档案
type DietProfile struct {
	Goal         string   `bson:"goal,omitempty" json:"goal,omitempty"`
	EatingHabits []string `bson:"eating_habits,omitempty" json:"eating_habits,omitempty"`
	Restrictions []string `bson:"restrictions,omitempty" json:"restrictions,omitempty"`
}

// Clone 深拷贝，存储层返回副本，避免调用方修改共享状态
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Metadata = c.Metadata.clone()
	return &out
}

func (m Metadata) clone() Metadata {
	out := m
	out.MentionedProducts = append([]string(nil), m.MentionedProducts...)
	out.KeyPoints = append([]string(nil), m.KeyPoints...)
	out.Preferences.HealthConditions = append([]string(nil), m.Preferences.HealthConditions...)
	if m.Preferences.Emoji != nil {
		v := *m.Preferences.Emoji
		out.Preferences.Emoji = &v
	}
	if m.CurrentOrder != nil {
		o := *m.CurrentOrder
		o.Items = append([]OrderItem(nil), m.CurrentOrder.Items...)
		out.CurrentOrder = &o
	}
	if m.DietProfile != nil {
		d := *m.DietProfile
		d.EatingHabits = append([]string(nil), m.DietProfile.EatingHabits...)
		d.Restrictions = append([]string(nil), m.DietProfile.Restrictions...)
		out.DietProfile = &d
	}
	return out
}
