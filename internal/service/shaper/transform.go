package shaper

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"
)

var (
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	listMarker   = regexp.MustCompile(`(?m)^[ \t]*(?:[*•+·–]|\d+[.)])[ \t]+`)
	bulletLine   = regexp.MustCompile(`(?m)^- `)
)

// phrase 替换规则
type phrase struct {
	re   *regexp.Regexp
	with string
}

func phrases(pairs ...string) []phrase {
	out := make([]phrase, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, phrase{
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(pairs[i]) + `\b`),
			with: pairs[i+1],
		})
	}
	return out
}

// compactPhrases 冗长表达 -> 简洁表达
var compactPhrases = phrases(
	"in order to", "to",
	"due to the fact that", "because",
	"at this point in time", "now",
	"at the present time", "now",
	"please do not hesitate to", "feel free to",
	"it is important to note that", "note:",
	"a large number of", "many",
	"in the event that", "if",
	"for the purpose of", "for",
	"on a daily basis", "daily",
	"with regard to", "about",
	"is able to", "can",
)

// briefAbbreviations 简短风格下的缩写
var briefAbbreviations = phrases(
	"for example", "e.g.",
	"that is to say", "i.e.",
	"approximately", "~",
	"minutes", "min",
	"hours", "hrs",
	"information", "info",
	"milligrams", "mg",
	"tablespoon", "tbsp",
	"teaspoon", "tsp",
)

// emojiRule 结尾情绪词 -> emoji
type emojiRule struct {
	re    *regexp.Regexp
	emoji string
}

var trailingEmoji = []emojiRule{
	{regexp.MustCompile(`(?i)\b(thank|thanks|grateful)\b`), "🙏"},
	{regexp.MustCompile(`(?i)\b(welcome|glad|happy)\b`), "😊"},
	{regexp.MustCompile(`(?i)\b(sleep|rest|relax)\b`), "😴"},
	{regexp.MustCompile(`(?i)\b(healthy|health|strong|energy)\b`), "💪"},
	{regexp.MustCompile(`(?i)\b(care|hope|wish)\b`), "💚"},
}

// applyStructure 按结构类型变换
func applyStructure(text string, s Structure) string {
	switch s {
	case StructureStructured:
		return structure(cleanNatural(text))
	case StructureBullets:
		return normalizeBullets(text)
	case StructureJSON:
		return prettyJSON(text)
	default:
		return cleanNatural(text)
	}
}

// cleanNatural 去掉 markdown 标记并整理空白
func cleanNatural(text string) string {
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBold.ReplaceAllString(text, "$1")
	return tidy(text)
}

// structure 无列表的多句段落改为 引导句 + 列表
func structure(text string) string {
	if bulletLine.MatchString(text) || listMarker.MatchString(text) || strings.Contains(text, "\n") {
		return normalizeBullets(text)
	}
	sentences := nonEmpty(splitSentences(text))
	if len(sentences) < 3 {
		return text
	}
	var b strings.Builder
	b.WriteString(sentences[0])
	rest := sentences[1:]
	// 结尾的问句保留在列表之外
	var closing string
	if last := rest[len(rest)-1]; strings.HasSuffix(last, "?") {
		closing, rest = last, rest[:len(rest)-1]
	}
	for _, s := range rest {
		b.WriteString("\n- ")
		b.WriteString(s)
	}
	if closing != "" {
		b.WriteString("\n")
		b.WriteString(closing)
	}
	return b.String()
}

// normalizeBullets 列表符号统一为 "- "
func normalizeBullets(text string) string {
	text = mdBold.ReplaceAllString(text, "$1")
	text = listMarker.ReplaceAllString(text, "- ")
	return tidy(text)
}

// prettyJSON 检测到 JSON 对象时格式化，否则原样返回
func prettyJSON(text string) string {
	start, end := strings.Index(text, "{"), strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return tidy(text)
	}
	candidate := text[start : end+1]
	if !json.Valid([]byte(candidate)) {
		return tidy(text)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(candidate), "", "  "); err != nil {
		return tidy(text)
	}
	return strings.TrimSpace(text[:start] + buf.String() + text[end+1:])
}

// compact 短语替换、缩写、结尾 emoji
func compact(text string, b Budget) string {
	if b.Structure == StructureJSON && json.Valid([]byte(strings.TrimSpace(text))) {
		return text
	}
	for _, p := range compactPhrases {
		text = p.re.ReplaceAllString(text, p.with)
	}
	if b.Style == StyleBrief {
		for _, p := range briefAbbreviations {
			text = p.re.ReplaceAllString(text, p.with)
		}
	}
	if !b.IncludeEmoji {
		return stripEmoji(text)
	}
	if endsWithEmoji(text) {
		return text
	}
	sentences := nonEmpty(splitSentences(text))
	if len(sentences) == 0 {
		return text
	}
	last := sentences[len(sentences)-1]
	for _, r := range trailingEmoji {
		if r.re.MatchString(last) {
			return strings.TrimRight(text, " \n") + " " + r.emoji
		}
	}
	return text
}

func tidy(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = collapseSpaces(text)
	text = multiNewline.ReplaceAllString(text, "\n\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func collapseSpaces(text string) string {
	return multiSpace.ReplaceAllString(text, " ")
}

// splitSentences 按句末标点和换行切分，切片拼接后等于原文
func splitSentences(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isTerminator(r) {
			continue
		}
		// 连续的终止符与其后的空白归入同一句
		j := i + 1
		for j < len(runes) && isTerminator(runes[j]) {
			j++
		}
		for j < len(runes) && (runes[j] == ' ' || runes[j] == '\t' || runes[j] == '\n' || isEmoji(runes[j]) || isEmojiJoiner(runes[j])) {
			j++
		}
		out = append(out, string(runes[start:j]))
		start = j
		i = j - 1
	}
	if start < len(runes) {
		out = append(out, string(runes[start:]))
	}
	return out
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n', '。', '！', '？':
		return true
	}
	return false
}

func nonEmpty(parts []string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
