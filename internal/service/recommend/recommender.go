// Package recommend 基于商品目录的推荐
package recommend

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"mint/internal/model"
	"mint/internal/pkg/textrules"
)

const (
	maxResults  = 5
	maxBenefits = 3
	// minScore 低于此分数不推荐
	minScore = 0.2
)

var amountPattern = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// Recommender 推荐协作者
type Recommender struct {
	catalog *Catalog
}

// NewRecommender 创建推荐器
func NewRecommender(catalog *Catalog) *Recommender {
	return &Recommender{catalog: catalog}
}

// Catalog 使用的目录
func (r *Recommender) Catalog() *Catalog {
	return r.catalog
}

// Recommend 按健康评估与偏好排序推荐
// 评估中的症状、状况、目标都会先归一到健康类别，再与商品标签匹配
func (r *Recommender) Recommend(ctx context.Context, a model.Assessment, prefs model.Preferences) ([]model.Recommendation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.catalog == nil {
		return nil, nil
	}

	wanted := categories(a)
	if len(wanted) == 0 {
		return nil, nil
	}
	budget, hasBudget := parseBudget(prefs.Budget)

	var out []model.Recommendation
	for _, p := range r.catalog.Products() {
		matched := matchTags(p.Tags, wanted)
		if len(matched) == 0 {
			continue
		}
		score := float64(len(matched)) / float64(len(wanted))
		// 症状越严重，首要类别越重要
		if a.Severity == "severe" && matched[0] == wanted[0] {
			score += 0.1
		}
		if hasBudget {
			if p.Price > budget {
				continue
			}
			score += 0.05
		}
		if score > 1 {
			score = 1
		}
		if score < minScore {
			continue
		}

		benefits := p.Benefits
		if len(benefits) > maxBenefits {
			benefits = benefits[:maxBenefits]
		}
		out = append(out, model.Recommendation{
			Product:        p,
			RelevanceScore: score,
			Reason:         reason(matched, p, hasBudget),
			Benefits:       benefits,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RelevanceScore != out[j].RelevanceScore {
			return out[i].RelevanceScore > out[j].RelevanceScore
		}
		if out[i].Product.Price != out[j].Product.Price {
			return out[i].Product.Price < out[j].Product.Price
		}
		return out[i].Product.Name < out[j].Product.Name
	})
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

// categories 评估中的全部健康类别（按出现顺序去重）
func categories(a model.Assessment) []string {
	var out []string
	seen := map[string]bool{}
	add := func(c string) {
		if c != "" && !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, c := range a.Conditions {
		add(c)
	}
	for _, group := range [][]string{a.Symptoms, a.Goals} {
		for _, text := range group {
			for _, c := range textrules.Health.Categories(text) {
				add(c)
			}
		}
	}
	return out
}

func matchTags(tags, wanted []string) []string {
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[strings.ToLower(t)] = true
	}
	var matched []string
	for _, w := range wanted {
		if tagSet[w] {
			matched = append(matched, w)
		}
	}
	return matched
}

// parseBudget 从预算描述中取最后一个数字
func parseBudget(s string) (float64, bool) {
	nums := amountPattern.FindAllString(s, -1)
	if len(nums) == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(nums[len(nums)-1], ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func reason(matched []string, p model.Product, withinBudget bool) string {
	labels := make([]string, 0, len(matched))
	for _, m := range matched {
		labels = append(labels, strings.ReplaceAll(m, "_", " "))
	}
	r := fmt.Sprintf("Targets %s", strings.Join(labels, " and "))
	if p.Description != "" {
		r += ": " + strings.TrimSuffix(p.Description, ".")
	}
	if withinBudget {
		r += " (within budget)"
	}
	return r
}

// AssessmentFrom 从对话元数据与本轮消息构造健康评估
func AssessmentFrom(cc *model.ConversationContext, message string) model.Assessment {
	a := model.Assessment{Symptoms: []string{message}}
	if cc == nil {
		return a
	}
	a.Conditions = append(a.Conditions, cc.Metadata.Preferences.HealthConditions...)
	if d := cc.Metadata.DietProfile; d != nil && d.Goal != "" {
		a.Goals = append(a.Goals, d.Goal)
	}
	for _, kp := range cc.Metadata.KeyPoints {
		if strings.HasPrefix(kp, "goal:") {
			a.Goals = append(a.Goals, strings.TrimSpace(strings.TrimPrefix(kp, "goal:")))
		}
	}
	return a
}
