package mention

import (
	"strings"
)

// broadcastMarkers are matched case-insensitively against the raw text.
var broadcastMarkers = []string{"@everyone", "@here", "@role"}

const roleMentionPrefix = "<@&"

// Tokens returns the plain and nickname mention forms for a user id.
func Tokens(botID string) []string {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return nil
	}
	return []string{"<@" + botID + ">", "<@!" + botID + ">"}
}

// Addressed reports whether the event names the bot, either through the
// platform's resolved mentions or through a literal mention token.
func Addressed(event Event, botID string) bool {
	botID = strings.TrimSpace(botID)
	if botID == "" {
		return false
	}
	if event.MentionsEveryone {
		return true
	}
	for _, id := range event.MentionedUserIDs {
		if strings.TrimSpace(id) == botID {
			return true
		}
	}
	for _, token := range Tokens(botID) {
		if strings.Contains(event.Message.Content, token) {
			return true
		}
	}
	return false
}

func HasBroadcast(text string) bool {
	lower := strings.ToLower(text)
	for _, marker := range broadcastMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func HasRoleMention(event Event) bool {
	if len(event.RoleMentionIDs) > 0 {
		return true
	}
	return strings.Contains(event.Message.Content, roleMentionPrefix)
}

// StripMention removes every mention token for botID and trims the result.
func StripMention(text, botID string) string {
	for _, token := range Tokens(botID) {
		text = strings.ReplaceAll(text, token, "")
	}
	return strings.TrimSpace(text)
}
