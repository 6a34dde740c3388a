package threadctx

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMaxMessages = 50
	DefaultMaxChars    = 2000

	DefaultHistoryChars = 8000
)

type Author struct {
	ID          string
	Username    string
	DisplayName string
	Bot         bool
}

// Label prefers the display name and falls back to the raw username.
func (a Author) Label() string {
	if name := strings.TrimSpace(a.DisplayName); name != "" {
		return name
	}
	if name := strings.TrimSpace(a.Username); name != "" {
		return name
	}
	return strings.TrimSpace(a.ID)
}

type Message struct {
	ID          string
	ChannelID   string
	GuildID     string
	ReferenceID string
	Author      Author
	Content     string
}

type Entry struct {
	Author string
	Text   string
}

type Budget struct {
	MaxMessages int
	MaxChars    int
}

func DefaultBudget() Budget {
	return Budget{MaxMessages: DefaultMaxMessages, MaxChars: DefaultMaxChars}
}

func (b Budget) normalized() Budget {
	if b.MaxMessages < 1 {
		b.MaxMessages = DefaultMaxMessages
	}
	if b.MaxChars < 1 {
		b.MaxChars = DefaultMaxChars
	}
	return b
}

type Fetcher interface {
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)
}

type Collector struct {
	fetcher Fetcher
	logger  *slog.Logger
}

func New(fetcher Fetcher, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{fetcher: fetcher, logger: logger}
}

// Collect walks the reply chain above start and returns it oldest first.
// The walk stops at the first message without a parent, at the first failed
// fetch, or before the entry that would exceed either budget bound.
func (c *Collector) Collect(ctx context.Context, start Message, budget Budget) []Entry {
	budget = budget.normalized()
	collected := make([]Entry, 0, 8)
	totalChars := 0
	current := start
	for remaining := budget.MaxMessages; remaining > 0; remaining-- {
		parentID := strings.TrimSpace(current.ReferenceID)
		if parentID == "" {
			break
		}
		if c.fetcher == nil {
			break
		}
		channelID := current.ChannelID
		parent, err := c.fetcher.FetchMessage(ctx, channelID, parentID)
		if err != nil {
			c.logger.Warn(
				"thread context fetch failed, using partial context",
				"error", err,
				"channel_id", channelID,
				"message_id", parentID,
				"collected", len(collected),
			)
			break
		}
		if parent.ChannelID == "" {
			parent.ChannelID = channelID
		}
		size := utf8.RuneCountInString(parent.Content)
		if totalChars+size > budget.MaxChars {
			break
		}
		collected = append(collected, Entry{Author: parent.Author.Label(), Text: parent.Content})
		totalChars += size
		current = parent
	}
	reverse(collected)
	return collected
}

// Recent turns a channel listing, newest first, into entries oldest first.
// Messages without text are skipped and the oldest messages are dropped once
// maxChars would be exceeded.
func Recent(newestFirst []Message, maxChars int) []Entry {
	if maxChars < 1 {
		maxChars = DefaultHistoryChars
	}
	collected := make([]Entry, 0, len(newestFirst))
	totalChars := 0
	for _, message := range newestFirst {
		content := strings.TrimSpace(message.Content)
		if content == "" {
			continue
		}
		size := utf8.RuneCountInString(content)
		if totalChars+size > maxChars {
			break
		}
		collected = append(collected, Entry{Author: message.Author.Label(), Text: content})
		totalChars += size
	}
	reverse(collected)
	return collected
}

func reverse(entries []Entry) {
	for left, right := 0, len(entries)-1; left < right; left, right = left+1, right-1 {
		entries[left], entries[right] = entries[right], entries[left]
	}
}

// Chars sums the character count of every entry.
func Chars(entries []Entry) int {
	total := 0
	for _, entry := range entries {
		total += utf8.RuneCountInString(entry.Text)
	}
	return total
}
