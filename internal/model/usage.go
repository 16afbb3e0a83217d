package model

import "time"

// UsageRecord 单轮 token / 费用记录（只追加）
type UsageRecord struct {
	ID            string    `bson:"_id,omitempty" json:"id"`
	UserID        string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Timestamp     time.Time `bson:"timestamp" json:"timestamp"`
	Stage         Stage     `bson:"stage" json:"stage"`
	StaticTokens  int       `bson:"static_tokens" json:"static_tokens"`
	DynamicTokens int       `bson:"dynamic_tokens" json:"dynamic_tokens"`
	HistoryTokens int       `bson:"history_tokens" json:"history_tokens"`
	OutputTokens  int       `bson:"output_tokens" json:"output_tokens"`
	CacheHit      bool      `bson:"cache_hit" json:"cache_hit"`
	CostUSD       float64   `bson:"cost_usd" json:"cost_usd"`
}

// InputTokens 输入 token 总数
func (r UsageRecord) InputTokens() int {
	return r.StaticTokens + r.DynamicTokens + r.HistoryTokens
}

// TotalTokens 输入 + 输出
func (r UsageRecord) TotalTokens() int {
	return r.InputTokens() + r.OutputTokens
}

// CacheStats 静态提示词缓存命中统计
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TokensSaved int64   `json:"tokens_saved"`
}
