package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"mint/internal/ai/component"
	"mint/internal/config"
	mintmodel "mint/internal/model"
)

// ErrEmptyReply 模型返回空内容
var ErrEmptyReply = errors.New("ai: empty reply")

// Client AI 能力层客户端
// 职责: 把静态段 / 动态段 / 历史转换成 ChatModel 消息，并回报用量与缓存命中
type Client struct {
	chatModel model.BaseChatModel
	maxTokens int
}

// NewClient 按配置创建 AI 客户端
func NewClient(ctx context.Context, cfg *config.AIConfig) (*Client, error) {
	if cfg.APIKey == "" && cfg.Provider != "mock" {
		log.Warn().Str("provider", cfg.Provider).Msg("AI API key not configured")
	}

	chatModel, err := component.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewClientWithModel(chatModel, cfg.Options.MaxTokens), nil
}

// NewClientWithModel 使用现成的 ChatModel
func NewClientWithModel(chatModel model.BaseChatModel, maxTokens int) *Client {
	return &Client{chatModel: chatModel, maxTokens: maxTokens}
}

// Request 单次模型调用
type Request struct {
	Static    string
	Dynamic   string
	Cacheable bool
	CacheKey  string
	// History 已压缩的历史，最后一条为本轮用户消息
	History   []mintmodel.Message
	MaxTokens int
}

// Reply 模型回复与用量
type Reply struct {
	Text         string
	InputTokens  int
	OutputTokens int
	CachedTokens int
	CacheHit     bool
}

// Send 调用模型
func (c *Client) Send(ctx context.Context, req Request) (Reply, error) {
	messages := buildMessages(req)

	var opts []model.Option
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	resp, err := c.chatModel.Generate(ctx, messages, opts...)
	if err != nil {
		return Reply{}, fmt.Errorf("generate: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return Reply{}, ErrEmptyReply
	}

	reply := Reply{Text: text}
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		reply.InputTokens = resp.ResponseMeta.Usage.PromptTokens
		reply.OutputTokens = resp.ResponseMeta.Usage.CompletionTokens
		reply.CachedTokens = resp.ResponseMeta.Usage.PromptTokenDetails.CachedTokens
	}
	reply.CacheHit = req.Cacheable && reply.CachedTokens > 0
	return reply, nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return nil
}

// buildMessages 静态段在最前（可缓存前缀），其后动态段与历史
func buildMessages(req Request) []*schema.Message {
	messages := make([]*schema.Message, 0, len(req.History)+2)

	static := schema.SystemMessage(req.Static)
	if req.Cacheable {
		static.Extra = map[string]any{
			component.ExtraCacheControl: component.CacheEphemeral,
			component.ExtraCacheKey:     req.CacheKey,
		}
	}
	messages = append(messages, static)
	if req.Dynamic != "" {
		messages = append(messages, schema.SystemMessage(req.Dynamic))
	}

	for _, m := range req.History {
		switch m.Role {
		case mintmodel.RoleUser:
			messages = append(messages, schema.UserMessage(m.Content))
		case mintmodel.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(m.Content, nil))
		}
	}
	return messages
}
