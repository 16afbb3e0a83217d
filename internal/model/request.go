package model

// ChatRequest 对话请求
type ChatRequest struct {
	UserID    string `json:"user_id" binding:"required"`
	MessageID string `json:"message_id,omitempty"` // 渠道消息 ID，用于重复投递去重
	Message   string `json:"message" binding:"required"`
}
