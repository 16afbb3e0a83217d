package shaper

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	charsPerToken  = 3.5
	tokensPerEmoji = 1.5
)

// isEmoji 常见 emoji 区段
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x1F000 && r <= 0x1F2FF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r == 0x2B50 || r == 0x2B55:
		return true
	}
	return false
}

// isEmojiJoiner 变体选择符与零宽连接符，不计长度
func isEmojiJoiner(r rune) bool {
	return r == 0xFE0F || r == 0x200D
}

// countRunes 返回非 emoji 字符数与 emoji 数
func countRunes(text string) (plain, emoji int) {
	for _, r := range text {
		switch {
		case isEmojiJoiner(r):
		case isEmoji(r):
			emoji++
		default:
			plain++
		}
	}
	return plain, emoji
}

// EstimateTokens 按字符数估算 token：非 emoji 字符 / 3.5 + emoji * 1.5，向上取整
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	plain, emoji := countRunes(text)
	return int(math.Ceil(float64(plain)/charsPerToken + float64(emoji)*tokensPerEmoji))
}

// stripEmoji 去掉全部 emoji 及其后多余的空格
func stripEmoji(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	dropped := false
	for _, r := range text {
		if isEmoji(r) || isEmojiJoiner(r) {
			dropped = true
			continue
		}
		if dropped && r == ' ' {
			if out := b.String(); out == "" || strings.HasSuffix(out, " ") || strings.HasSuffix(out, "\n") {
				continue
			}
		}
		dropped = false
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

// endsWithEmoji 末尾（忽略空白）是否为 emoji
func endsWithEmoji(text string) bool {
	text = strings.TrimRight(text, " \t\n")
	for text != "" {
		r, size := utf8.DecodeLastRuneInString(text)
		if isEmojiJoiner(r) {
			text = text[:len(text)-size]
			continue
		}
		return isEmoji(r)
	}
	return false
}
