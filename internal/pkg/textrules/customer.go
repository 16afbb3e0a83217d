package textrules

import (
	"regexp"
	"strings"
)

// 客户信息字段
const (
	FieldName     = "name"
	FieldPhone    = "phone"
	FieldAddress  = "address"
	FieldPayment  = "payment"
	FieldShipping = "shipping"
)

// FieldRule 客户信息抽取规则，取第一个捕获组
type FieldRule struct {
	Field string
	re    *regexp.Regexp
	// normalize 对捕获值做归一化，可为空
	normalize func(string) string
}

// Extract 抽取字段值
func (r FieldRule) Extract(text string) (string, bool) {
	m := r.re.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	v := strings.TrimSpace(strings.TrimRight(m[1], ".,;!"))
	if r.normalize != nil {
		v = r.normalize(v)
	}
	return v, v != ""
}

// CustomerRules 客户信息规则表（同字段多条规则时先命中者优先）
var CustomerRules = []FieldRule{
	{Field: FieldName, re: regexp.MustCompile(`(?:[Mm]y name is|[Nn]ame\s*:|[Tt]his is|I'm|I am)\s+([A-Z][a-zA-Z'\-]+(?:\s+[A-Z][a-zA-Z'\-]+)?)`)},
	{Field: FieldPhone, re: regexp.MustCompile(`(\+?\d[\d\-\s]{7,14}\d)`), normalize: normalizePhone},
	{Field: FieldAddress, re: regexp.MustCompile(`(?i)(?:address\s*(?:is|:)|deliver(?:y)? to|ship to|send (?:it )?to|i live at)\s*([^\n]{6,160})`)},
	{Field: FieldAddress, re: regexp.MustCompile(`(?i)\b(\d{1,5}[/\-]?\d*\s+[\w\s.,\-/]{3,120}\b(?:street|st|road|rd|avenue|ave|lane|soi|moo|district|village|city)\b[\w\s.,\-]{0,60})`)},
	{Field: FieldPayment, re: regexp.MustCompile(`(?i)\b(cash on delivery|cod|bank transfer|transfer|credit card|debit card|card|promptpay|paypal)\b`), normalize: normalizePayment},
	{Field: FieldShipping, re: regexp.MustCompile(`(?i)\b(express|standard|next[- ]day|same[- ]day|pickup|pick up|ems)\b`), normalize: strings.ToLower},
}

// CustomerDetails 抽取出的客户信息
type CustomerDetails map[string]string

// ExtractCustomer 一次扫描抽取全部字段
func ExtractCustomer(text string) CustomerDetails {
	out := CustomerDetails{}
	for _, r := range CustomerRules {
		if _, done := out[r.Field]; done {
			continue
		}
		if v, ok := r.Extract(text); ok {
			out[r.Field] = v
		}
	}
	return out
}

// HasCustomerDetail 文本是否包含任意客户信息
func HasCustomerDetail(text string) bool {
	for _, r := range CustomerRules {
		if r.Field == FieldShipping || r.Field == FieldPayment {
			continue
		}
		if _, ok := r.Extract(text); ok {
			return true
		}
	}
	return false
}

func normalizePhone(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	digits := strings.TrimPrefix(b.String(), "+")
	if len(digits) < 9 || len(digits) > 15 {
		return ""
	}
	return b.String()
}

func normalizePayment(s string) string {
	switch strings.ToLower(s) {
	case "cod", "cash on delivery":
		return "cod"
	case "transfer", "bank transfer", "promptpay":
		return "bank_transfer"
	case "card", "credit card", "debit card":
		return "card"
	default:
		return strings.ToLower(s)
	}
}
