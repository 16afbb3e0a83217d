package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"mint/internal/ai"
	"mint/internal/config"
	"mint/internal/pkg/cache"
	"mint/internal/pkg/mongodb"
	"mint/internal/pkg/resilience"
	"mint/internal/repository"
	"mint/internal/service"
	"mint/internal/service/compress"
	"mint/internal/service/flow"
	"mint/internal/service/prompt"
	"mint/internal/service/recommend"
	"mint/internal/service/shaper"
	"mint/internal/service/usage"
)

const (
	// 启动时从 usage_records 回放的时间窗口
	ledgerRestoreWindow = 30 * 24 * time.Hour
	ledgerRestoreLimit  = 10000
)

// App 进程级依赖，启动时构造一次
type App struct {
	Orchestrator *service.Orchestrator
	Mongo        *mongodb.Client   // 未配置时为 nil
	Redis        *cache.RedisCache // 未配置时为 nil
	LLM          *ai.Client
}

// Build 按配置组装依赖
// MongoDB / Redis 均为可选：连接失败时记录告警并退化为进程内存储 / 去重
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	static, err := prompt.LoadStatic(cfg.Prompt.StaticFile)
	if err != nil {
		return nil, err
	}
	catalog, err := recommend.LoadCatalog(cfg.Catalog.File)
	if err != nil {
		return nil, err
	}
	loc := time.UTC
	if cfg.Conversation.Timezone != "" {
		if loc, err = time.LoadLocation(cfg.Conversation.Timezone); err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", cfg.Conversation.Timezone, err)
		}
	}

	app := &App{}

	var (
		store     repository.Store = repository.NewMemoryStore()
		usageRepo *repository.UsageRepo
		dedup     service.Deduper
	)

	if cfg.Mongo.URI != "" {
		client, err := mongodb.New(&cfg.Mongo)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to MongoDB, conversations kept in memory")
		} else {
			app.Mongo = client
			log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

			convRepo := repository.NewConversationRepo(client.Database())
			usageRepo = repository.NewUsageRepo(client.Database())
			if err := mongodb.EnsureAllIndexes(ctx, client.Database(), convRepo, usageRepo); err != nil {
				log.Warn().Err(err).Msg("failed to ensure indexes")
			}
			store = convRepo
		}
	}

	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without cache")
		} else {
			app.Redis = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")

			store = repository.NewCachedStore(store, rc, cfg.Redis.CacheTTL)
			dedup = cache.NewDeduper(rc, cfg.Conversation.DedupTTL)
		}
	}

	llm, err := ai.NewClient(ctx, &cfg.AI)
	if err != nil {
		_ = app.Close(ctx)
		return nil, fmt.Errorf("init llm client: %w", err)
	}
	app.LLM = llm
	log.Info().Str("provider", cfg.AI.Provider).Str("model", cfg.AI.Model).Msg("initialized LLM client")

	monitor := prompt.NewCacheMonitor()
	ledger := usage.NewLedger(usage.Pricing{
		InputPerMTok:     cfg.Pricing.InputPerMTok,
		OutputPerMTok:    cfg.Pricing.OutputPerMTok,
		CacheReadPerMTok: cfg.Pricing.CacheReadPerMTok,
	}, usage.WithLocation(loc), usage.WithCacheMetrics(monitor))

	deps := service.Deps{
		Store:          store,
		LLM:            llm,
		Recommender:    recommend.NewRecommender(catalog),
		Dedup:          dedup,
		Ledger:         ledger,
		CacheMonitor:   monitor,
		Assembler:      prompt.NewAssembler(prompt.Options{Static: static, Location: loc}),
		Shaper:         shaper.New(),
		Compressor:     compress.New(compress.Options{OrderLevel: cfg.Conversation.OrderCompressionLevel, PreserveDetails: cfg.Conversation.PreserveDetails}, catalog),
		Classifier:     flow.NewClassifier(),
		Metadata:       flow.NewMetadataUpdater(catalog),
		Flow:           flow.NewController(),
		LLMInvoker:     newInvoker("llm", cfg.Resilience.LLM),
		StorageInvoker: newInvoker("storage", cfg.Resilience.Storage),
	}
	if usageRepo != nil {
		deps.Usage = usageRepo
		restoreLedger(ctx, ledger, usageRepo)
	}

	app.Orchestrator = service.NewOrchestrator(deps, service.Options{
		CompressionEnabled: cfg.Conversation.CompressionEnabled,
		CompressionLevel:   cfg.Conversation.CompressionLevel,
		IncludeRealTime:    cfg.Conversation.IncludeRealTime,
		MaxMessageLength:   cfg.Conversation.MaxMessageLength,
		DedupTTL:           cfg.Conversation.DedupTTL,
	})
	return app, nil
}

// restoreLedger 用持久化的用量记录预热台账，失败只影响统计
func restoreLedger(ctx context.Context, ledger *usage.Ledger, repo *repository.UsageRepo) {
	records, err := repo.List(ctx, time.Now().Add(-ledgerRestoreWindow), ledgerRestoreLimit)
	if err != nil {
		log.Warn().Err(err).Msg("failed to restore usage ledger")
		return
	}
	ledger.Restore(records)
	log.Info().Int("records", len(records)).Msg("usage ledger restored")
}

func newInvoker(name string, p config.BreakerPolicyConfig) *resilience.Invoker {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             name,
		FailureThreshold: p.FailureThreshold,
		RecoveryTimeout:  p.RecoveryTimeout,
		HalfOpenMaxCalls: p.HalfOpenMaxCalls,
	})
	policy := resilience.DefaultRetryPolicy()
	if p.MaxAttempts > 0 {
		policy.MaxAttempts = p.MaxAttempts
	}
	if p.InitialDelay > 0 {
		policy.InitialDelay = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		policy.MaxDelay = p.MaxDelay
	}
	if p.BackoffFactor > 0 {
		policy.BackoffFactor = p.BackoffFactor
	}
	policy.Jitter = p.Jitter
	return resilience.NewInvoker(breaker, policy)
}

// Close 释放外部连接
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.LLM != nil {
		errs = append(errs, a.LLM.Close())
	}
	if a.Mongo != nil {
		errs = append(errs, a.Mongo.Close(ctx))
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
