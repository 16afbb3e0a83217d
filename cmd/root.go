package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mint/internal/config"
	"mint/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint - conversational sales assistant orchestration",
	Long: `Mint runs the per-turn orchestration of a health-product sales assistant:
stage classification, context compression, cache-friendly prompt assembly,
response shaping and token cost accounting over a pluggable LLM.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.mint")
	}

	// 环境变量：MINT_AI_API_KEY 对应 ai.api_key
	viper.SetEnvPrefix("MINT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "120s")

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 1024)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)

	// MongoDB / Redis 为空时使用进程内存储
	viper.SetDefault("mongo.uri", "")
	viper.SetDefault("mongo.database", "mint")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.cache_ttl", "30m")

	// Auth
	viper.SetDefault("auth.jwt_secret", "")
	viper.SetDefault("auth.token_expiry", "24h")

	// Conversation
	viper.SetDefault("conversation.compression_enabled", true)
	viper.SetDefault("conversation.compression_level", 4)
	viper.SetDefault("conversation.order_compression_level", 8)
	viper.SetDefault("conversation.preserve_details", true)
	viper.SetDefault("conversation.include_real_time", true)
	viper.SetDefault("conversation.timezone", "UTC")
	viper.SetDefault("conversation.max_message_length", 4000)
	viper.SetDefault("conversation.dedup_ttl", "10m")

	// Resilience
	viper.SetDefault("resilience.llm.failure_threshold", 5)
	viper.SetDefault("resilience.llm.recovery_timeout", "60s")
	viper.SetDefault("resilience.llm.half_open_max_calls", 1)
	viper.SetDefault("resilience.llm.max_attempts", 3)
	viper.SetDefault("resilience.llm.initial_delay", "1s")
	viper.SetDefault("resilience.llm.max_delay", "30s")
	viper.SetDefault("resilience.llm.backoff_factor", 2.0)
	viper.SetDefault("resilience.llm.jitter", true)
	viper.SetDefault("resilience.storage.failure_threshold", 3)
	viper.SetDefault("resilience.storage.recovery_timeout", "30s")
	viper.SetDefault("resilience.storage.half_open_max_calls", 1)
	viper.SetDefault("resilience.storage.max_attempts", 2)
	viper.SetDefault("resilience.storage.initial_delay", "500ms")
	viper.SetDefault("resilience.storage.max_delay", "5s")
	viper.SetDefault("resilience.storage.backoff_factor", 2.0)
	viper.SetDefault("resilience.storage.jitter", true)

	// Pricing (USD / 百万 token)
	viper.SetDefault("pricing.input_per_mtok", 3.0)
	viper.SetDefault("pricing.output_per_mtok", 15.0)
	viper.SetDefault("pricing.cache_read_per_mtok", 0.3)

	// 为空时使用内置文本 / 目录
	viper.SetDefault("prompt.static_file", "")
	viper.SetDefault("catalog.file", "")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
