package utils

import (
	"strings"
)

// markdownV2Reserved is the full set of characters Telegram's MarkdownV2
// mode reserves outside code spans.
const markdownV2Reserved = "_*[]()~`>#+-=|{}.!\\"

// EscapeMarkdownV2 escapes every MarkdownV2-reserved character so
// user-controlled text (usernames, stored messages) cannot inject or break
// formatting.
func EscapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if strings.ContainsRune(markdownV2Reserved, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeMarkdownV2Code escapes the characters reserved inside an inline
// code span: backtick and backslash.
func EscapeMarkdownV2Code(text string) string {
	text = strings.ReplaceAll(text, "\\", "\\\\")
	text = strings.ReplaceAll(text, "`", "\\`")
	return text
}
