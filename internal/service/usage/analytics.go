package usage

import (
	"time"

	"mint/internal/model"
)

// Trend 趋势
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// trendThreshold 前后半段均值变化不足 5% 视为平稳
const trendThreshold = 0.05

// DailyBucket 按天汇总
type DailyBucket struct {
	Date   string  `json:"date" bson:"date"`
	Turns  int     `json:"turns" bson:"turns"`
	Tokens int64   `json:"tokens" bson:"tokens"`
	Cost   float64 `json:"cost" bson:"cost"`
}

// StageStats 分阶段统计
type StageStats struct {
	Count     int64   `json:"count"`
	AvgTokens float64 `json:"avg_tokens"`
	AvgCost   float64 `json:"avg_cost"`
}

// Optimization 缓存带来的节省
type Optimization struct {
	CacheHits      int64   `json:"cache_hits"`
	CacheHitRate   float64 `json:"cache_hit_rate"`
	TokensSaved    int64   `json:"tokens_saved"`
	CostSaved      float64 `json:"cost_saved"`
	SavingsPercent float64 `json:"savings_percent"`
}

// Amounts 各周期费用
type Amounts struct {
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
	Yearly  float64 `json:"yearly"`
}

// Projection 费用预测
type Projection struct {
	Amounts
	WithOptimization Amounts `json:"with_optimization"`
	BasedOnDays      int     `json:"based_on_days"`
}

// EfficiencyMetrics 成本效率
type EfficiencyMetrics struct {
	TokensPerDollar float64 `json:"tokens_per_dollar"`
	CostPerTurn     float64 `json:"cost_per_turn"`
}

// Analytics 台账快照
type Analytics struct {
	TotalTurns        int64                      `json:"total_turns"`
	TotalInputTokens  int64                      `json:"total_input_tokens"`
	TotalOutputTokens int64                      `json:"total_output_tokens"`
	TotalTokens       int64                      `json:"total_tokens"`
	TotalCost         float64                    `json:"total_cost"`
	AvgTokensPerTurn  float64                    `json:"avg_tokens_per_turn"`
	AvgCostPerTurn    float64                    `json:"avg_cost_per_turn"`
	ByStage           map[model.Stage]StageStats `json:"by_stage"`
	Daily             []DailyBucket              `json:"daily"`
	Optimization      Optimization               `json:"optimization"`
	Projection        Projection                 `json:"projection"`
	Efficiency        EfficiencyMetrics          `json:"efficiency"`
	CostTrend         Trend                      `json:"cost_trend"`
	TokenTrend        Trend                      `json:"token_trend"`
	GeneratedAt       time.Time                  `json:"generated_at"`
}

// Export 导出数据
type Export struct {
	Summary    Analytics           `json:"summary"`
	Records    []model.UsageRecord `json:"records"`
	ExportedAt time.Time           `json:"exported_at"`
}

// Analytics 生成快照
func (l *Ledger) Analytics() Analytics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.analyticsLocked()
}

// Projection 基于最近 7 天均值的费用预测
func (l *Ledger) Projection() Projection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.projectionLocked(l.optimizationLocked())
}

// Efficiency 成本效率
func (l *Ledger) Efficiency() EfficiencyMetrics {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.efficiencyLocked()
}

// Export 导出快照与原始记录
func (l *Ledger) Export() Export {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Export{
		Summary:    l.analyticsLocked(),
		Records:    append([]model.UsageRecord(nil), l.records...),
		ExportedAt: l.now(),
	}
}

func (l *Ledger) analyticsLocked() Analytics {
	a := Analytics{
		TotalTurns:        l.turns,
		TotalInputTokens:  l.inputTokens,
		TotalOutputTokens: l.outputTokens,
		TotalTokens:       l.inputTokens + l.outputTokens,
		TotalCost:         l.totalCost,
		ByStage:           make(map[model.Stage]StageStats, len(l.stages)),
		Daily:             append([]DailyBucket(nil), l.daily...),
		GeneratedAt:       l.now(),
	}
	if l.turns > 0 {
		a.AvgTokensPerTurn = float64(a.TotalTokens) / float64(l.turns)
		a.AvgCostPerTurn = l.totalCost / float64(l.turns)
	}
	for stage, acc := range l.stages {
		a.ByStage[stage] = StageStats{Count: acc.count, AvgTokens: acc.avgTokens, AvgCost: acc.avgCost}
	}

	a.Optimization = l.optimizationLocked()
	a.Projection = l.projectionLocked(a.Optimization)
	a.Efficiency = l.efficiencyLocked()

	costs, tokens := l.trendSeriesLocked()
	a.CostTrend = ClassifyTrend(costs)
	a.TokenTrend = ClassifyTrend(tokens)
	return a
}

func (l *Ledger) optimizationLocked() Optimization {
	o := Optimization{CacheHits: l.cacheHits, TokensSaved: l.savedTokens}
	if l.turns > 0 {
		o.CacheHitRate = float64(l.cacheHits) / float64(l.turns)
	}
	if l.cache != nil {
		s := l.cache.CacheStats()
		o.CacheHits = s.Hits
		o.CacheHitRate = s.HitRate
		o.TokensSaved = s.TokensSaved
	}

	o.CostSaved = float64(o.TokensSaved) * (l.pricing.InputPerMTok - l.pricing.CacheReadPerMTok) / 1e6
	if o.CostSaved < 0 {
		o.CostSaved = 0
	}
	if hypothetical := l.totalCost + o.CostSaved; hypothetical > 0 {
		o.SavingsPercent = o.CostSaved / hypothetical * 100
	}
	return o
}

func (l *Ledger) projectionLocked(o Optimization) Projection {
	window := l.recentDaysLocked(projectionWindow)
	p := Projection{BasedOnDays: len(window)}
	if len(window) == 0 {
		return p
	}

	sum := 0.0
	for _, b := range window {
		sum += b.Cost
	}
	p.Amounts = scale(sum / float64(len(window)))
	p.WithOptimization = scale(p.Daily * (1 - o.SavingsPercent/100))
	return p
}

func scale(daily float64) Amounts {
	return Amounts{Daily: daily, Weekly: daily * 7, Monthly: daily * 30, Yearly: daily * 365}
}

func (l *Ledger) efficiencyLocked() EfficiencyMetrics {
	var e EfficiencyMetrics
	if l.totalCost > 0 {
		e.TokensPerDollar = float64(l.inputTokens+l.outputTokens) / l.totalCost
	}
	if l.turns > 0 {
		e.CostPerTurn = l.totalCost / float64(l.turns)
	}
	return e
}

func (l *Ledger) trendSeriesLocked() (costs, tokens []float64) {
	for _, b := range l.recentDaysLocked(trendWindow) {
		costs = append(costs, b.Cost)
		tokens = append(tokens, float64(b.Tokens))
	}
	return costs, tokens
}

// recentDaysLocked 截至今天的最近 n 个自然日，空闲日补零桶
// 起点不早于第一条记录所在日，没有任何记录时返回 nil
func (l *Ledger) recentDaysLocked(n int) []DailyBucket {
	if len(l.daily) == 0 || n <= 0 {
		return nil
	}
	now := l.now().In(l.loc)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, l.loc)
	if last, err := time.ParseInLocation(time.DateOnly, l.daily[len(l.daily)-1].Date, l.loc); err == nil && last.After(end) {
		end = last
	}
	start := end.AddDate(0, 0, -(n - 1))
	if first, err := time.ParseInLocation(time.DateOnly, l.daily[0].Date, l.loc); err == nil && first.After(start) {
		start = first
	}

	byDate := make(map[string]DailyBucket, len(l.daily))
	for _, b := range l.daily {
		byDate[b.Date] = b
	}
	out := make([]DailyBucket, 0, n)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		date := d.Format(time.DateOnly)
		b, ok := byDate[date]
		if !ok {
			b = DailyBucket{Date: date}
		}
		out = append(out, b)
	}
	return out
}

// ClassifyTrend 比较前半段与后半段均值，变化超过 5% 才算上升 / 下降
func ClassifyTrend(values []float64) Trend {
	n := len(values)
	if n < 2 {
		return TrendStable
	}
	first, second := mean(values[:n/2]), mean(values[n/2:])
	if first == 0 {
		if second > 0 {
			return TrendIncreasing
		}
		return TrendStable
	}
	change := (second - first) / first
	switch {
	case change > trendThreshold:
		return TrendIncreasing
	case change < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
