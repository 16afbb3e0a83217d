package component

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/crypto/blake2b"
)

// 静态段缓存提示（写在 system 消息的 Extra 中）
const (
	ExtraCacheControl = "cache_control"
	ExtraCacheKey     = "cache_key"
	CacheEphemeral    = "ephemeral"
)

var (
	stageLine   = regexp.MustCompile(`(?m)^Stage: ([a-z_]+)`)
	stepLine    = regexp.MustCompile(`(?m)^Step: ([a-z]+)`)
	productLine = regexp.MustCompile(`(?m)^1\. (.+) - ([\d.]+)$`)
)

// MockChatModel 离线模型
// 按静态段指纹模拟前缀缓存：同一静态段第二次出现起计为缓存命中
type MockChatModel struct {
	mu   sync.Mutex
	seen map[[32]byte]struct{}
}

// NewMockChatModel 创建离线模型
func NewMockChatModel() *MockChatModel {
	return &MockChatModel{seen: make(map[[32]byte]struct{})}
}

// Generate 根据动态段里的阶段生成固定风格的回复
func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) == 0 {
		return nil, fmt.Errorf("mock model: empty input")
	}

	var dynamic, lastUser string
	promptTokens := 0
	for i, msg := range input {
		promptTokens += approxTokens(msg.Content)
		switch {
		case msg.Role == schema.System && i > 0:
			dynamic += msg.Content
		case msg.Role == schema.User:
			lastUser = msg.Content
		}
	}

	cached := 0
	if first := input[0]; first.Role == schema.System && cacheable(first) {
		key := blake2b.Sum256([]byte(first.Content))
		m.mu.Lock()
		if _, ok := m.seen[key]; ok {
			cached = approxTokens(first.Content)
		} else {
			m.seen[key] = struct{}{}
		}
		m.mu.Unlock()
	}

	reply := mockReply(dynamic, lastUser)
	completion := approxTokens(reply)
	out := schema.AssistantMessage(reply, nil)
	out.ResponseMeta = &schema.ResponseMeta{
		FinishReason: "stop",
		Usage: &schema.TokenUsage{
			PromptTokens:       promptTokens,
			PromptTokenDetails: schema.PromptTokenDetails{CachedTokens: cached},
			CompletionTokens:   completion,
			TotalTokens:        promptTokens + completion,
		},
	}
	return out, nil
}

// Stream 一次性返回完整回复
func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// Forget 清空已见过的静态段
func (m *MockChatModel) Forget() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = make(map[[32]byte]struct{})
}

func cacheable(msg *schema.Message) bool {
	if msg.Extra == nil {
		return false
	}
	v, _ := msg.Extra[ExtraCacheControl].(string)
	return v == CacheEphemeral
}

// approxTokens 粗略估算（约 4 字符 1 token）
func approxTokens(s string) int {
	return int(math.Ceil(float64(len([]rune(s))) / 4))
}

func mockReply(dynamic, lastUser string) string {
	stage := ""
	if m := stageLine.FindStringSubmatch(dynamic); m != nil {
		stage = m[1]
	}
	product, price := "", ""
	if m := productLine.FindStringSubmatch(dynamic); m != nil {
		product, price = strings.TrimSpace(m[1]), m[2]
	}

	switch stage {
	case "greeting", "":
		return "Hello and welcome! 😊 How are you feeling today? Tell me about any health concern and I will help you find the right option."
	case "health_inquiry":
		if product != "" {
			return fmt.Sprintf("Thanks for sharing. How long have you had this problem? %s could help, but I would like to understand a bit more first.", product)
		}
		return "Thanks for sharing. How long have you had this problem, and how severe is it?"
	case "diet_consultation":
		return "A balanced plate helps a lot: half vegetables, a quarter protein, a quarter whole grains. Drink plenty of water and avoid sugary snacks. Would you like a simple daily plan?"
	case "product_recommendation":
		if product != "" {
			return fmt.Sprintf("I recommend %s (%s). It matches what you described. Would you like to order it?", product, price)
		}
		return "I could not find a perfect match in our range. Could you tell me more about your goal?"
	case "order_collection":
		return orderQuestion(dynamic)
	case "order_confirmation":
		return "Thank you! Your order is confirmed and we will ship it soon. Anything else I can help with?"
	case "complete":
		return "Thank you so much! Take care and feel free to message me any time."
	default:
		if strings.Contains(strings.ToLower(lastUser), "?") {
			return "Good question. Let me help: could you share a little more detail so I can answer accurately?"
		}
		return "I am here to help. What would you like to know?"
	}
}

func orderQuestion(dynamic string) string {
	step := ""
	if m := stepLine.FindStringSubmatch(dynamic); m != nil {
		step = m[1]
	}
	switch step {
	case "name":
		return "Great choice! Could you tell me your full name for the order?"
	case "phone":
		return "Thank you. What is your phone number?"
	case "address":
		return "Got it. Please share your full delivery address."
	case "payment":
		return "How would you like to pay: bank transfer or cash on delivery?"
	case "shipping":
		return "Would you prefer standard or express shipping?"
	case "confirm":
		return "Everything is ready. Please confirm your order and I will place it."
	default:
		return "Which product would you like to order, and how many?"
	}
}
