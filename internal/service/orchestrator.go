// Package service 对话编排
//
// Orchestrator 是单轮处理的组合根：加载上下文 → 判定阶段 → 更新元数据 → 压缩历史 →
// 推荐 / 流程摘要 → 组装提示词 → 调用模型 → 整形 → 记账 → 保存。
// 所有外部调用（模型、存储）都经过 resilience.Invoker。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"mint/internal/ai"
	"mint/internal/model"
	"mint/internal/pkg/logger"
	"mint/internal/pkg/resilience"
	"mint/internal/repository"
	"mint/internal/service/compress"
	"mint/internal/service/flow"
	"mint/internal/service/prompt"
	"mint/internal/service/recommend"
	"mint/internal/service/shaper"
	"mint/internal/service/usage"
)

var (
	// ErrInvalidMessage 请求不合法（空消息、超长等），不重试
	ErrInvalidMessage = errors.New("invalid message")
	// ErrServiceUnavailable 依赖熔断中
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

const (
	apologyReply     = "Sorry, something went wrong on our side. Please try again in a moment."
	unavailableReply = "Sorry, our assistant is very busy right now. Please try again in a few minutes."
	defaultMaxLength = 4000
)

// LLM 模型协作者
type LLM interface {
	Send(ctx context.Context, req ai.Request) (ai.Reply, error)
}

// Recommender 推荐协作者
type Recommender interface {
	Recommend(ctx context.Context, a model.Assessment, prefs model.Preferences) ([]model.Recommendation, error)
}

// UsageSink 用量记录持久化
type UsageSink interface {
	Append(ctx context.Context, rec model.UsageRecord) error
}

// Deps 编排依赖，进程启动时构造一次
type Deps struct {
	Store       repository.Store
	LLM         LLM
	Recommender Recommender
	Usage       UsageSink // 可选
	Dedup       Deduper   // 可选，默认进程内去重

	Ledger       *usage.Ledger
	CacheMonitor *prompt.CacheMonitor
	Assembler    *prompt.Assembler
	Shaper       *shaper.Shaper
	Compressor   *compress.Compressor
	Classifier   *flow.Classifier
	Metadata     *flow.MetadataUpdater
	Flow         *flow.Controller

	LLMInvoker     *resilience.Invoker
	StorageInvoker *resilience.Invoker
}

// Options 编排参数
type Options struct {
	CompressionEnabled bool
	CompressionLevel   int
	IncludeRealTime    bool
	MaxMessageLength   int
	DedupTTL           time.Duration
	Now                func() time.Time
}

// TurnResult 单轮结果
type TurnResult struct {
	Reply         string             `json:"reply"`
	Stage         model.Stage        `json:"stage"`
	TokenEstimate int                `json:"token_estimate"`
	Efficiency    float64            `json:"efficiency"`
	Compression   compress.Outcome   `json:"compression,omitempty"`
	Failed        bool               `json:"failed,omitempty"`
	Duplicate     bool               `json:"duplicate,omitempty"`
	Usage         *model.UsageRecord `json:"usage,omitempty"`
}

// Orchestrator 单轮编排
type Orchestrator struct {
	deps  Deps
	opts  Options
	locks *KeyedMutex
	group singleflight.Group
	log   zerolog.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = defaultMaxLength
	}
	if opts.CompressionLevel < 1 {
		opts.CompressionLevel = 4
	}
	if deps.Dedup == nil {
		deps.Dedup = NewMemoryDeduper(opts.DedupTTL, opts.Now)
	}
	return &Orchestrator{
		deps:  deps,
		opts:  opts,
		locks: NewKeyedMutex(),
		log:   logger.Component("orchestrator"),
	}
}

// HandleTurn 处理一条用户消息
// 失败时 TurnResult.Reply 为致歉文案，error 说明原因；已有的上下文（如进行中的订单）不会被改动
func (o *Orchestrator) HandleTurn(ctx context.Context, userID, messageID, message string) (TurnResult, error) {
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if err := o.validate(userID, message); err != nil {
		return TurnResult{}, err
	}

	if messageID == "" {
		return o.serialized(ctx, userID, message)
	}

	// 同一消息并发重投只处理一次
	v, err, _ := o.group.Do(userID+"/"+messageID, func() (any, error) {
		return o.deduped(ctx, userID, messageID, message)
	})
	return v.(TurnResult), err
}

func (o *Orchestrator) validate(userID, message string) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: user id is required", ErrInvalidMessage)
	case message == "":
		return fmt.Errorf("%w: message is empty", ErrInvalidMessage)
	case !utf8.ValidString(message):
		return fmt.Errorf("%w: message is not valid UTF-8", ErrInvalidMessage)
	case utf8.RuneCountInString(message) > o.opts.MaxMessageLength:
		return fmt.Errorf("%w: message exceeds %d characters", ErrInvalidMessage, o.opts.MaxMessageLength)
	}
	return nil
}

func (o *Orchestrator) deduped(ctx context.Context, userID, messageID, message string) (TurnResult, error) {
	claimed, err := o.deps.Dedup.Claim(ctx, userID, messageID)
	if err != nil {
		// 去重不可用时照常处理
		o.log.Warn().Err(err).Str("user_id", userID).Str("message_id", messageID).Msg("dedup claim failed")
		claimed = true
	}
	if !claimed {
		o.log.Info().Str("user_id", userID).Str("message_id", messageID).Msg("duplicate delivery skipped")
		return o.duplicate(ctx, userID), nil
	}

	res, err := o.serialized(ctx, userID, message)
	if err != nil {
		// 失败的消息允许重投
		if relErr := o.deps.Dedup.Release(context.WithoutCancel(ctx), userID, messageID); relErr != nil {
			o.log.Warn().Err(relErr).Str("user_id", userID).Str("message_id", messageID).Msg("dedup release failed")
		}
	}
	return res, err
}

// duplicate 重复投递时返回最近一次回复
func (o *Orchestrator) duplicate(ctx context.Context, userID string) TurnResult {
	res := TurnResult{Duplicate: true}
	unlock := o.locks.Lock(userID)
	defer unlock()

	cc, err := o.load(ctx, userID)
	if err != nil || cc == nil {
		return res
	}
	res.Stage = cc.Stage
	res.Reply = cc.LastAssistantReply()
	return res
}

func (o *Orchestrator) serialized(ctx context.Context, userID, message string) (TurnResult, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()
	return o.turn(ctx, userID, message)
}

func (o *Orchestrator) turn(ctx context.Context, userID, message string) (TurnResult, error) {
	started := o.opts.Now()
	log := o.log.With().Str("user_id", userID).Logger()

	cc, err := o.load(ctx, userID)
	if err != nil {
		return o.fail(log, "", "load", err)
	}
	if cc == nil {
		cc = model.NewConversationContext(userID, started)
	}

	prior := cc.LastAssistantReply()
	stage := o.classify(log, message, prior, cc)
	cc.Stage = stage
	log = log.With().Str("stage", string(stage)).Logger()

	o.safely(log, "metadata", func() { o.deps.Metadata.Apply(cc, message, stage) })
	cc.Append(model.RoleUser, message, started)

	history := cc.Messages
	outcome := compress.OutcomeUnchanged
	if o.opts.CompressionEnabled {
		history, outcome = o.deps.Compressor.Compress(cc.Messages, cc, o.opts.CompressionLevel)
		if outcome != compress.OutcomeUnchanged {
			log.Debug().Str("outcome", string(outcome)).Int("from", len(cc.Messages)).Int("to", len(history)).Msg("history compressed")
		}
	}

	recs, summary := o.gather(ctx, log, cc, message)
	p := o.deps.Assembler.Build(recs, cc, &summary, o.opts.IncludeRealTime)
	prefs := cc.Metadata.Preferences
	budget := shaper.BudgetFor(stage, prefs)

	reply, err := resilience.Invoke(ctx, o.deps.LLMInvoker, func(ctx context.Context) (ai.Reply, error) {
		return o.deps.LLM.Send(ctx, ai.Request{
			Static:    p.Static,
			Dynamic:   p.Dynamic,
			Cacheable: p.Cacheable,
			CacheKey:  p.CacheKey,
			History:   history,
			MaxTokens: budget.MaxTokens,
		})
	})
	if err != nil {
		return o.fail(log, stage, "llm", err)
	}

	shaped := o.deps.Shaper.Shape(reply.Text, stage, prefs)
	if shaped.Content == "" {
		return o.fail(log, stage, "shape", errors.New("shaped reply is empty"))
	}

	u := usage.Usage{
		StaticTokens:  shaper.EstimateTokens(p.Static),
		DynamicTokens: shaper.EstimateTokens(p.Dynamic),
		HistoryTokens: historyTokens(history),
		OutputTokens:  reply.OutputTokens,
		CacheHit:      reply.CacheHit,
	}
	if u.OutputTokens <= 0 {
		u.OutputTokens = shaped.TokenEstimate
	}
	// 服务端上报了输入总量时以它为准，各段仍按估算比例拆分
	u = u.ScaledTo(reply.InputTokens)
	rec := o.deps.Ledger.Record(userID, stage, u)
	if o.deps.CacheMonitor != nil {
		o.deps.CacheMonitor.Observe(p.CacheKey, reply.CacheHit, reply.CachedTokens)
	}

	finished := o.opts.Now()
	cc.Append(model.RoleAssistant, shaped.Content, finished)
	cc.UpdatedAt = finished

	// 回复已生成，保存失败只记录日志，回复照常返回
	saveErr := resilience.InvokeErr(ctx, o.deps.StorageInvoker, func(ctx context.Context) error {
		return o.deps.Store.Save(ctx, cc)
	})
	if saveErr != nil {
		log.Error().Err(saveErr).Msg("failed to save conversation")
	}
	o.persistUsage(ctx, log, rec)

	log.Info().
		Int("input_tokens", rec.InputTokens()).
		Int("output_tokens", rec.OutputTokens).
		Bool("cache_hit", rec.CacheHit).
		Float64("cost_usd", rec.CostUSD).
		Str("compression", string(outcome)).
		Dur("elapsed", finished.Sub(started)).
		Msg("turn completed")

	return TurnResult{
		Reply:         shaped.Content,
		Stage:         stage,
		TokenEstimate: shaped.TokenEstimate,
		Efficiency:    shaped.Efficiency,
		Compression:   outcome,
		Usage:         &rec,
	}, nil
}

// load 未找到返回 (nil, nil)，不计入熔断失败
func (o *Orchestrator) load(ctx context.Context, userID string) (*model.ConversationContext, error) {
	return resilience.Invoke(ctx, o.deps.StorageInvoker, func(ctx context.Context) (*model.ConversationContext, error) {
		cc, err := o.deps.Store.Load(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return cc, err
	})
}

// classify 判定失败时沿用原阶段
func (o *Orchestrator) classify(log zerolog.Logger, message, prior string, cc *model.ConversationContext) (stage model.Stage) {
	stage = cc.Stage.OrDefault()
	o.safely(log, "classifier", func() { stage = o.deps.Classifier.Next(message, prior, cc) })
	return stage
}

// gather 并发获取推荐与流程摘要；推荐失败时使用空推荐
func (o *Orchestrator) gather(ctx context.Context, log zerolog.Logger, cc *model.ConversationContext, message string) ([]model.Recommendation, flow.Summary) {
	var (
		recs    []model.Recommendation
		summary flow.Summary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if o.deps.Recommender == nil {
			return nil
		}
		o.safely(log, "recommender", func() {
			r, err := o.deps.Recommender.Recommend(gctx, recommend.AssessmentFrom(cc, message), cc.Metadata.Preferences)
			if err != nil {
				log.Warn().Err(err).Msg("recommendation failed, continuing without products")
				return
			}
			recs = r
		})
		return nil
	})
	g.Go(func() error {
		o.safely(log, "flow", func() { summary = o.deps.Flow.Summarize(cc) })
		return nil
	})
	_ = g.Wait()

	if summary.Stage == "" {
		summary = flow.Summary{Stage: cc.Stage.OrDefault(), Progress: cc.Stage.OrDefault().Progress()}
	}
	return recs, summary
}

func (o *Orchestrator) persistUsage(ctx context.Context, log zerolog.Logger, rec model.UsageRecord) {
	if o.deps.Usage == nil {
		return
	}
	err := resilience.InvokeErr(ctx, o.deps.StorageInvoker, func(ctx context.Context) error {
		return o.deps.Usage.Append(ctx, rec)
	})
	if err != nil {
		log.Warn().Err(err).Str("record_id", rec.ID).Msg("failed to persist usage record")
	}
}

// safely 启发式组件出错不影响本轮
func (o *Orchestrator) safely(log zerolog.Logger, component string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("component", component).Interface("panic", r).Msg("heuristic component failed, using fallback")
		}
	}()
	fn()
}

func (o *Orchestrator) fail(log zerolog.Logger, stage model.Stage, step string, err error) (TurnResult, error) {
	res := TurnResult{Failed: true, Stage: stage, Reply: apologyReply}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		log.Warn().Err(err).Str("step", step).Msg("turn rejected, dependency unavailable")
		res.Reply = unavailableReply
		return res, fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	}
	log.Error().Err(err).Str("step", step).Msg("turn failed")
	return res, fmt.Errorf("%s: %w", step, err)
}

func historyTokens(history []model.Message) int {
	n := 0
	for _, m := range history {
		n += shaper.EstimateTokens(m.Content)
	}
	return n
}

// Analytics 用量统计快照
func (o *Orchestrator) Analytics() usage.Analytics {
	return o.deps.Ledger.Analytics()
}

// Export 导出统计与原始记录
func (o *Orchestrator) Export() usage.Export {
	return o.deps.Ledger.Export()
}

// ResetMetrics 清空台账与缓存统计（测试 / 运维）
func (o *Orchestrator) ResetMetrics() {
	o.deps.Ledger.Reset()
	if o.deps.CacheMonitor != nil {
		o.deps.CacheMonitor.Reset()
	}
}

// Breakers 熔断器状态
func (o *Orchestrator) Breakers() []resilience.Snapshot {
	return []resilience.Snapshot{
		o.deps.LLMInvoker.Breaker().Snapshot(),
		o.deps.StorageInvoker.Breaker().Snapshot(),
	}
}
