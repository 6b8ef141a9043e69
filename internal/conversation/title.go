// ABOUTME: Derives a conversation title from its first user message
// ABOUTME: Trimmed text, cut to a fixed rune count with an ellipsis when longer

package conversation

import (
	"strings"
	"unicode/utf8"
)

// titleMaxRunes is how much of the first user message becomes the title.
const titleMaxRunes = 30

// DeriveTitle builds a conversation title from the first user message: its
// first 30 characters, with "..." appended when it was cut.
func DeriveTitle(firstUserMessage string) string {
	text := strings.TrimSpace(firstUserMessage)
	if utf8.RuneCountInString(text) <= titleMaxRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleMaxRunes]) + "..."
}
