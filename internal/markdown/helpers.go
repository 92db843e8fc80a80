// Package markdown builds Telegram MarkdownV2 fragments.
package markdown

import (
	"strings"

	tgbot "github.com/go-telegram/bot"
)

// Inside the (...) part of an inline link only these two need escaping.
// See https://core.telegram.org/bots/api#markdownv2-style.
var linkURLReplacer = strings.NewReplacer(`\`, `\\`, `)`, `\)`)

// Escape escapes text outside of links and code blocks.
func Escape(text string) string {
	return tgbot.EscapeMarkdown(text)
}

// EscapeURL escapes u for use as an inline link target.
func EscapeURL(u string) string {
	return linkURLReplacer.Replace(u)
}

// Link renders an inline link, using the URL as text when title is empty.
func Link(title string, u string) string {
	if strings.TrimSpace(title) == "" {
		title = u
	}

	return "[" + Escape(title) + "](" + EscapeURL(u) + ")"
}

// Truncate shortens s to at most maxRunes runes, marking the cut with "...".
func Truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	return strings.TrimSpace(string(runes[:maxRunes])) + "..."
}
