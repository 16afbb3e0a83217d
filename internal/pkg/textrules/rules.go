// Package textrules 声明式文本规则表
//
// 所有关键词类启发式（健康关注点、意图、客户信息）都以 [{category, patterns}] 的形式定义，
// 每条消息只扫描一遍，阶段识别与上下文压缩共用同一套规则。
package textrules

import (
	"regexp"
	"strings"
)

// Rule 单条规则：一个类别 + 若干匹配模式
type Rule struct {
	Category string
	re       *regexp.Regexp
}

// NewRule 用关键词（整词 / 短语，忽略大小写）创建规则
func NewRule(category string, keywords ...string) Rule {
	quoted := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(kw)))
	}
	return Rule{
		Category: category,
		re:       regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`),
	}
}

// NewPatternRule 用原始正则创建规则
func NewPatternRule(category string, pattern string) Rule {
	return Rule{Category: category, re: regexp.MustCompile(pattern)}
}

// Match 规则是否命中
func (r Rule) Match(text string) bool {
	return r.re.MatchString(text)
}

// Table 规则表，按定义顺序求值
type Table []Rule

// Categories 返回命中的全部类别（按表顺序，去重）
func (t Table) Categories(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t {
		if seen[r.Category] {
			continue
		}
		if r.Match(text) {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return out
}

// First 第一个命中的类别
func (t Table) First(text string) (string, bool) {
	for _, r := range t {
		if r.Match(text) {
			return r.Category, true
		}
	}
	return "", false
}

// Any 是否有任意规则命中
func (t Table) Any(text string) bool {
	_, ok := t.First(text)
	return ok
}

// Has 指定类别是否命中
func (t Table) Has(text, category string) bool {
	for _, r := range t {
		if r.Category == category && r.Match(text) {
			return true
		}
	}
	return false
}
