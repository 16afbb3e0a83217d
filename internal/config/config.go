package config

import (
	"errors"
	"fmt"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	AI           AIConfig           `mapstructure:"ai"`
	Log          LogConfig          `mapstructure:"log"`
	Mongo        MongoConfig        `mapstructure:"mongo"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Resilience   ResilienceConfig   `mapstructure:"resilience"`
	Pricing      PricingConfig      `mapstructure:"pricing"`
	Prompt       PromptConfig       `mapstructure:"prompt"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置
type AIConfig struct {
	Provider string          `mapstructure:"provider"` // openai, azure, ark, mock
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`  // 单个日志文件上限
	MaxBackups int    `mapstructure:"max_backups"`  // 保留的历史文件数
	MaxAgeDays int    `mapstructure:"max_age_days"` // 历史文件保留天数
	Compress   bool   `mapstructure:"compress"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 对话上下文缓存时间
}

// AuthConfig 运维接口认证配置
type AuthConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret"`
	TokenExpiry time.Duration `mapstructure:"token_expiry"`
}

// ConversationConfig 对话编排配置
type ConversationConfig struct {
	CompressionEnabled    bool          `mapstructure:"compression_enabled"`
	CompressionLevel      int           `mapstructure:"compression_level"`       // 基础压缩等级（保留的消息对数）
	OrderCompressionLevel int           `mapstructure:"order_compression_level"` // 订单阶段使用的压缩等级
	PreserveDetails       bool          `mapstructure:"preserve_details"`        // 客户信息未收集完整时禁止压缩
	IncludeRealTime       bool          `mapstructure:"include_real_time"`
	Timezone              string        `mapstructure:"timezone"`
	MaxMessageLength      int           `mapstructure:"max_message_length"`
	DedupTTL              time.Duration `mapstructure:"dedup_ttl"`
}

// ResilienceConfig 外部调用的重试与熔断配置
type ResilienceConfig struct {
	LLM     BreakerPolicyConfig `mapstructure:"llm"`
	Storage BreakerPolicyConfig `mapstructure:"storage"`
}

// BreakerPolicyConfig 单个依赖的重试 + 熔断参数
type BreakerPolicyConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	RecoveryTimeout  time.Duration `mapstructure:"recovery_timeout"`
	HalfOpenMaxCalls int           `mapstructure:"half_open_max_calls"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	InitialDelay     time.Duration `mapstructure:"initial_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	BackoffFactor    float64       `mapstructure:"backoff_factor"`
	Jitter           bool          `mapstructure:"jitter"`
}

// PricingConfig 模型计费（美元 / 每百万 token）
type PricingConfig struct {
	InputPerMTok     float64 `mapstructure:"input_per_mtok"`
	OutputPerMTok    float64 `mapstructure:"output_per_mtok"`
	CacheReadPerMTok float64 `mapstructure:"cache_read_per_mtok"`
}

// PromptConfig 提示词配置
type PromptConfig struct {
	StaticFile string `mapstructure:"static_file"` // 为空时使用内置静态提示词
}

// CatalogConfig 商品目录配置
type CatalogConfig struct {
	File string `mapstructure:"file"`
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Conversation.CompressionLevel < 1 {
		return errors.New("conversation.compression_level must be >= 1")
	}
	if c.Conversation.OrderCompressionLevel < c.Conversation.CompressionLevel {
		return errors.New("conversation.order_compression_level must be >= compression_level")
	}

	for name, p := range map[string]BreakerPolicyConfig{"llm": c.Resilience.LLM, "storage": c.Resilience.Storage} {
		if p.FailureThreshold < 1 || p.HalfOpenMaxCalls < 1 || p.MaxAttempts < 1 {
			return fmt.Errorf("resilience.%s: thresholds and attempts must be >= 1", name)
		}
	}

	if c.Pricing.InputPerMTok < 0 || c.Pricing.OutputPerMTok < 0 || c.Pricing.CacheReadPerMTok < 0 {
		return errors.New("pricing rates must not be negative")
	}

	return nil
}
