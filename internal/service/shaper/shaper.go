// Package shaper 回复整形
//
// 按阶段预算约束模型回复：结构变换、语言压缩、token 截断，并计算效率分。
// 效率分只用于统计分析，不参与任何流程决策。
package shaper

import (
	"strings"
	"sync"
	"unicode"

	"github.com/go-ego/gse"

	"mint/internal/model"
)

// Result 整形结果
type Result struct {
	Content       string  `json:"content"`
	TokenEstimate int     `json:"token_estimate"`
	Efficiency    float64 `json:"efficiency"`
	Truncated     bool    `json:"truncated"`
	Budget        Budget  `json:"budget"`
}

// Tokenizer 分词函数
type Tokenizer func(text string) []string

// Shaper 回复整形器
type Shaper struct {
	tokenize Tokenizer
}

// Option 整形器选项
type Option func(*Shaper)

// WithTokenizer 指定分词函数
func WithTokenizer(t Tokenizer) Option {
	return func(s *Shaper) { s.tokenize = t }
}

// New 创建整形器，默认使用 gse 分词
func New(opts ...Option) *Shaper {
	s := &Shaper{tokenize: segmenterTokenize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	segOnce   sync.Once
	segmenter *gse.Segmenter
)

// segmenterTokenize gse 分词，词典加载失败时按空白切分
func segmenterTokenize(text string) []string {
	segOnce.Do(func() {
		var seg gse.Segmenter
		if err := seg.LoadDict(); err == nil {
			segmenter = &seg
		}
	})
	if segmenter == nil {
		return strings.Fields(text)
	}
	return segmenter.Cut(text, false)
}

// Shape 按阶段预算整形回复
func (s *Shaper) Shape(raw string, stage model.Stage, prefs model.Preferences) Result {
	b := BudgetFor(stage, prefs)

	text := applyStructure(strings.TrimSpace(raw), b.Structure)
	text = compact(text, b)

	res := Result{Budget: b}
	res.Content, res.Truncated = truncate(text, b.MaxTokens)
	res.TokenEstimate = EstimateTokens(res.Content)
	res.Efficiency = s.efficiency(res.Content, stage, res.TokenEstimate)
	return res
}

// truncate 在不超过预算的最后一个完整句子处截断，一句都放不下时按字符截断
func truncate(text string, maxTokens int) (string, bool) {
	if EstimateTokens(text) <= maxTokens {
		return text, false
	}

	var b strings.Builder
	fitted := ""
	for _, sentence := range splitSentences(text) {
		b.WriteString(sentence)
		candidate := strings.TrimSpace(b.String())
		if EstimateTokens(candidate) > maxTokens {
			break
		}
		fitted = candidate
	}
	if fitted != "" {
		return fitted, true
	}

	runes := []rune(text)
	n := int(float64(maxTokens) * charsPerToken)
	if n > len(runes) {
		n = len(runes)
	}
	for n > 0 && EstimateTokens(strings.TrimSpace(string(runes[:n]))) > maxTokens {
		n--
	}
	return strings.TrimSpace(string(runes[:n])), true
}

var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "to": true, "of": true, "in": true, "on": true,
	"at": true, "for": true, "with": true, "it": true, "this": true, "that": true, "i": true, "you": true,
	"we": true, "they": true, "he": true, "she": true, "so": true, "very": true, "just": true, "really": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true, "can": true, "will": true,
	"would": true, "your": true, "my": true, "our": true, "its": true, "as": true, "if": true, "then": true,
	"的": true, "了": true, "是": true, "在": true, "和": true, "就": true, "都": true, "也": true,
}

var (
	warmMarkers   = []string{"thank", "glad", "happy to", "please", "hope", "take care", "welcome", "great", "of course", "sure"}
	actionMarkers = []string{"you can", "try", "take ", "order", "confirm", "let me know", "reply", "send", "choose", "would you like", "please share"}
)

// efficiency (加权子分数 * 100) / token 数
func (s *Shaper) efficiency(text string, stage model.Stage, tokens int) float64 {
	if tokens <= 0 || strings.TrimSpace(text) == "" {
		return 0
	}
	w, ok := stageWeights[stage.OrDefault()]
	if !ok {
		w = stageWeights[model.StageGeneralSupport]
	}

	lower := strings.ToLower(text)
	_, emoji := countRunes(text)

	density := s.density(text)

	warm := 0.0
	for _, m := range warmMarkers {
		warm += float64(strings.Count(lower, m))
	}
	warmth := clamp01((warm + float64(emoji)*0.5) / 3)

	act := float64(strings.Count(text, "?"))
	for _, m := range actionMarkers {
		act += float64(strings.Count(lower, m))
	}
	actionability := act / 3
	if stage.IsOrderStage() {
		actionability *= 1.5
	}
	actionability = clamp01(actionability)

	clarity := 1.0
	if sentences := nonEmpty(splitSentences(text)); len(sentences) > 0 {
		avg := float64(len(strings.Fields(text))) / float64(len(sentences))
		if avg > 15 {
			clarity = clamp01(1 - (avg-15)/25)
		}
	}

	score := w.density*density + w.warmth*warmth + w.action*actionability + w.clarity*clarity
	return score * 100 / float64(tokens)
}

// density 非停用词占比
func (s *Shaper) density(text string) float64 {
	total, content := 0, 0
	for _, tok := range s.tokenize(text) {
		tok = strings.ToLower(strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
		}))
		if tok == "" {
			continue
		}
		total++
		if !stopwords[tok] {
			content++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(content) / float64(total)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
