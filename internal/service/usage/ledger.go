// Package usage token 用量与费用台账
//
// 每轮记录一条 UsageRecord，并维护总量、分阶段均值、按天汇总（最多 30 天）、
// 缓存节省，以及基于最近 7 天的费用预测与趋势判断。
package usage

import (
	"sort"
	"sync"
	"time"

	"mint/internal/model"
	"mint/internal/pkg/id"
)

const (
	maxDailyBuckets     = 30
	projectionWindow    = 7
	trendWindow         = 7
	defaultCachedPrefix = 1800
	defaultMaxRecords   = 10000
)

// Pricing 计费单价（美元 / 每百万 token）
type Pricing struct {
	InputPerMTok     float64 `json:"input_per_mtok"`
	OutputPerMTok    float64 `json:"output_per_mtok"`
	CacheReadPerMTok float64 `json:"cache_read_per_mtok"`
}

// DefaultPricing 默认单价
func DefaultPricing() Pricing {
	return Pricing{InputPerMTok: 3.00, OutputPerMTok: 15.00, CacheReadPerMTok: 0.30}
}

// Usage 单轮用量
type Usage struct {
	StaticTokens  int
	DynamicTokens int
	HistoryTokens int
	OutputTokens  int
	CacheHit      bool
}

// InputTokens 输入 token 总数
func (u Usage) InputTokens() int {
	return u.StaticTokens + u.DynamicTokens + u.HistoryTokens
}

// ScaledTo 按估算比例把输入拆分缩放到服务端上报的总量，取整余数计入历史段
func (u Usage) ScaledTo(total int) Usage {
	est := u.InputTokens()
	if total <= 0 || est == total {
		return u
	}
	if est == 0 {
		u.DynamicTokens = total
		return u
	}
	static := u.StaticTokens * total / est
	dynamic := u.DynamicTokens * total / est
	u.StaticTokens, u.DynamicTokens, u.HistoryTokens = static, dynamic, total-static-dynamic
	return u
}

// CacheMetricsSource 缓存统计来源
type CacheMetricsSource interface {
	CacheStats() model.CacheStats
}

// Option 台账选项
type Option func(*Ledger)

// WithClock 注入时钟
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLocation 按天汇总使用的时区
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.loc = loc }
}

// WithCacheMetrics 接入缓存统计
func WithCacheMetrics(src CacheMetricsSource) Option {
	return func(l *Ledger) { l.cache = src }
}

// WithCachedPrefix 可缓存前缀的 token 数上限
func WithCachedPrefix(tokens int) Option {
	return func(l *Ledger) { l.cachedPrefix = tokens }
}

// WithMaxRecords 内存中保留的原始记录上限
func WithMaxRecords(n int) Option {
	return func(l *Ledger) { l.maxRecords = n }
}

type stageAccumulator struct {
	count     int64
	avgTokens float64
	avgCost   float64
}

// Ledger 用量台账，并发安全
type Ledger struct {
	mu sync.RWMutex

	pricing      Pricing
	cache        CacheMetricsSource
	now          func() time.Time
	loc          *time.Location
	cachedPrefix int
	maxRecords   int

	records      []model.UsageRecord
	turns        int64
	inputTokens  int64
	outputTokens int64
	totalCost    float64
	cacheHits    int64
	// 未接入缓存统计时用自身记录估算节省
	savedTokens int64
	stages      map[model.Stage]*stageAccumulator
	daily       []DailyBucket
}

// NewLedger 创建台账
func NewLedger(pricing Pricing, opts ...Option) *Ledger {
	l := &Ledger{
		pricing:      pricing,
		now:          time.Now,
		loc:          time.UTC,
		cachedPrefix: defaultCachedPrefix,
		maxRecords:   defaultMaxRecords,
		stages:       make(map[model.Stage]*stageAccumulator),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Cost 按计费公式计算单轮费用
func (l *Ledger) Cost(u Usage) float64 {
	input := float64(u.InputTokens())
	output := float64(u.OutputTokens) / 1e6 * l.pricing.OutputPerMTok
	if u.CacheHit {
		static := float64(u.StaticTokens)
		return static/1e6*l.pricing.CacheReadPerMTok + (input-static)/1e6*l.pricing.InputPerMTok + output
	}
	return input/1e6*l.pricing.InputPerMTok + output
}

// Record 记录一轮用量
func (l *Ledger) Record(userID string, stage model.Stage, u Usage) model.UsageRecord {
	// 命中缓存时静态段不超过可缓存前缀
	if u.CacheHit && l.cachedPrefix > 0 && u.StaticTokens > l.cachedPrefix {
		u.DynamicTokens += u.StaticTokens - l.cachedPrefix
		u.StaticTokens = l.cachedPrefix
	}

	rec := model.UsageRecord{
		ID:            id.New(),
		UserID:        userID,
		Timestamp:     l.now(),
		Stage:         stage,
		StaticTokens:  u.StaticTokens,
		DynamicTokens: u.DynamicTokens,
		HistoryTokens: u.HistoryTokens,
		OutputTokens:  u.OutputTokens,
		CacheHit:      u.CacheHit,
		CostUSD:       l.Cost(u),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyLocked(rec)
	return rec
}

// Restore 用持久化的历史记录预热台账（启动时调用，按时间顺序回放）
func (l *Ledger) Restore(records []model.UsageRecord) {
	sorted := append([]model.UsageRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, rec := range sorted {
		l.applyLocked(rec)
	}
}

func (l *Ledger) applyLocked(rec model.UsageRecord) {
	l.records = append(l.records, rec)
	if l.maxRecords > 0 && len(l.records) > l.maxRecords {
		l.records = l.records[len(l.records)-l.maxRecords:]
	}

	l.turns++
	l.inputTokens += int64(rec.InputTokens())
	l.outputTokens += int64(rec.OutputTokens)
	l.totalCost += rec.CostUSD
	if rec.CacheHit {
		l.cacheHits++
		l.savedTokens += int64(rec.StaticTokens)
	}

	acc, ok := l.stages[rec.Stage]
	if !ok {
		acc = &stageAccumulator{}
		l.stages[rec.Stage] = acc
	}
	acc.count++
	acc.avgTokens += (float64(rec.TotalTokens()) - acc.avgTokens) / float64(acc.count)
	acc.avgCost += (rec.CostUSD - acc.avgCost) / float64(acc.count)

	l.addDaily(rec)
}

func (l *Ledger) addDaily(rec model.UsageRecord) {
	day := rec.Timestamp.In(l.loc).Format(time.DateOnly)
	if n := len(l.daily); n > 0 && l.daily[n-1].Date == day {
		b := &l.daily[n-1]
		b.Turns++
		b.Tokens += int64(rec.TotalTokens())
		b.Cost += rec.CostUSD
		return
	}
	l.daily = append(l.daily, DailyBucket{
		Date:   day,
		Turns:  1,
		Tokens: int64(rec.TotalTokens()),
		Cost:   rec.CostUSD,
	})
	if len(l.daily) > maxDailyBuckets {
		l.daily = l.daily[len(l.daily)-maxDailyBuckets:]
	}
}

// Reset 清空全部统计（测试 / 运维）
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = nil
	l.turns, l.inputTokens, l.outputTokens, l.cacheHits, l.savedTokens = 0, 0, 0, 0, 0
	l.totalCost = 0
	l.stages = make(map[model.Stage]*stageAccumulator)
	l.daily = nil
}

// Records 原始记录副本
func (l *Ledger) Records() []model.UsageRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]model.UsageRecord(nil), l.records...)
}
