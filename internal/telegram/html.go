package telegram

import "strings"

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// EscapeHTML escapes text for Telegram's HTML parse mode.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}

func Bold(s string) string { return "<b>" + EscapeHTML(s) + "</b>" }
func Code(s string) string { return "<code>" + EscapeHTML(s) + "</code>" }
func Pre(s string) string  { return "<pre>" + EscapeHTML(s) + "</pre>" }

// MaxMessageLen is Telegram's limit for a text message, in UTF-16 units.
// Truncate counts runes, which is never more than that for BMP text.
const MaxMessageLen = 4096

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
