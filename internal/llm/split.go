package llm

import (
	"strings"
	"unicode/utf8"
)

// DiscordMessageLimit is the maximum content length of a single chat message.
const DiscordMessageLimit = 2000

// SplitMessage cuts text into chunks of at most limit characters, preferring
// paragraph, then line, then word boundaries. Blank chunks are dropped.
func SplitMessage(text string, limit int) []string {
	if limit < 1 {
		limit = DiscordMessageLimit
	}
	remaining := strings.TrimSpace(text)
	chunks := []string{}
	for remaining != "" {
		if utf8.RuneCountInString(remaining) <= limit {
			chunks = append(chunks, remaining)
			break
		}
		head := prefixRunes(remaining, limit)
		cut := lastBoundary(head)
		if cut <= 0 {
			cut = len(head)
		}
		chunk := strings.TrimSpace(remaining[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		remaining = strings.TrimSpace(remaining[cut:])
	}
	return chunks
}

func prefixRunes(text string, count int) string {
	index := 0
	for position := range text {
		if index == count {
			return text[:position]
		}
		index++
	}
	return text
}

func lastBoundary(head string) int {
	for _, separator := range []string{"\n\n", "\n", " "} {
		if position := strings.LastIndex(head, separator); position > 0 {
			return position + len(separator)
		}
	}
	return -1
}
