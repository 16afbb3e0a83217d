package model

// ChatResponse 对话响应
type ChatResponse struct {
	Message       string       `json:"message"`
	Stage         Stage        `json:"stage"`
	TokenEstimate int          `json:"token_estimate"`
	Efficiency    float64      `json:"efficiency"`
	Duplicate     bool         `json:"duplicate,omitempty"`
	Usage         *UsageRecord `json:"usage,omitempty"`
}
