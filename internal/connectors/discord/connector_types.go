package discord

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/dwizi/einstein/internal/mention"
	"github.com/dwizi/einstein/internal/threadctx"
)

type gatewayEnvelope struct {
	Op int             `json:"op"`
	T  string          `json:"t"`
	S  *int64          `json:"s"`
	D  json.RawMessage `json:"d"`
}

type discordHello struct {
	HeartbeatIntervalMS int64 `json:"heartbeat_interval"`
}

type discordReady struct {
	User   discordAuthor        `json:"user"`
	Guilds []discordGuildCreate `json:"guilds"`
}

type discordMessage struct {
	ID                string                   `json:"id"`
	ChannelID         string                   `json:"channel_id"`
	GuildID           string                   `json:"guild_id"`
	Content           string                   `json:"content"`
	Author            discordAuthor            `json:"author"`
	Member            *discordMember           `json:"member"`
	Mentions          []discordAuthor          `json:"mentions"`
	MentionRoles      []string                 `json:"mention_roles"`
	MentionEveryone   bool                     `json:"mention_everyone"`
	MessageReference  *discordMessageReference `json:"message_reference"`
	ReferencedMessage *discordMessage          `json:"referenced_message"`
}

type discordMessageReference struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

type discordMember struct {
	Nick        string        `json:"nick"`
	User        discordAuthor `json:"user"`
	Permissions string        `json:"permissions"`
}

const (
	permissionAdministrator = 1 << 3
	permissionManageGuild   = 1 << 5
)

// canManageGuild reads the member's resolved permission bitset, which Discord
// only sends on interactions.
func (m discordMember) canManageGuild() bool {
	bits, err := strconv.ParseUint(strings.TrimSpace(m.Permissions), 10, 64)
	if err != nil {
		return false
	}
	return bits&(permissionAdministrator|permissionManageGuild) != 0
}

type discordAuthor struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"`
	Bot        bool   `json:"bot"`
}

const channelTypeGuildText = 0

type discordGuildCreate struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	SystemChannelID string           `json:"system_channel_id"`
	Unavailable     bool             `json:"unavailable"`
	Channels        []discordChannel `json:"channels"`
}

type discordChannel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	Position int    `json:"position"`
}

// welcomeChannels lists where a welcome may go: the system channel first,
// then the text channels in sidebar order.
func (g discordGuildCreate) welcomeChannels() []string {
	text := make([]discordChannel, 0, len(g.Channels))
	for _, channel := range g.Channels {
		if channel.Type == channelTypeGuildText {
			text = append(text, channel)
		}
	}
	sort.SliceStable(text, func(i, j int) bool { return text[i].Position < text[j].Position })

	seen := map[string]struct{}{}
	candidates := make([]string, 0, len(text)+1)
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" {
			return
		}
		if _, exists := seen[id]; exists {
			return
		}
		seen[id] = struct{}{}
		candidates = append(candidates, id)
	}
	add(g.SystemChannelID)
	for _, channel := range text {
		add(channel.ID)
	}
	return candidates
}

type discordInteractionCreate struct {
	ID            string                 `json:"id"`
	ApplicationID string                 `json:"application_id"`
	Type          int                    `json:"type"`
	Token         string                 `json:"token"`
	ChannelID     string                 `json:"channel_id"`
	GuildID       string                 `json:"guild_id"`
	Data          discordInteractionData `json:"data"`
	Member        discordMember          `json:"member"`
	User          discordAuthor          `json:"user"`
}

func (interaction discordInteractionCreate) userID() string {
	if strings.TrimSpace(interaction.Member.User.ID) != "" {
		return strings.TrimSpace(interaction.Member.User.ID)
	}
	return strings.TrimSpace(interaction.User.ID)
}

// intOption parses an integer option, returning fallback when it is absent
// or not positive.
func (interaction discordInteractionCreate) intOption(name string, fallback int) int {
	value, err := strconv.Atoi(interaction.option(name))
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func (interaction discordInteractionCreate) option(name string) string {
	for _, option := range interaction.Data.Options {
		if option.Name == name {
			return strings.TrimSpace(option.valueAsString())
		}
	}
	return ""
}

type discordInteractionData struct {
	Name    string                     `json:"name"`
	Options []discordInteractionOption `json:"options"`
}

type discordInteractionOption struct {
	Name  string `json:"name"`
	Type  int    `json:"type"`
	Value any    `json:"value"`
}

func (option discordInteractionOption) valueAsString() string {
	switch value := option.Value.(type) {
	case nil:
		return ""
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", value)
	}
}

func (m discordMessage) toThreadMessage() threadctx.Message {
	message := threadctx.Message{
		ID:        strings.TrimSpace(m.ID),
		ChannelID: strings.TrimSpace(m.ChannelID),
		GuildID:   strings.TrimSpace(m.GuildID),
		Content:   m.Content,
		Author: threadctx.Author{
			ID:          strings.TrimSpace(m.Author.ID),
			Username:    strings.TrimSpace(m.Author.Username),
			DisplayName: displayName(m.Author, m.Member),
			Bot:         m.Author.Bot,
		},
	}
	switch {
	case m.MessageReference != nil && strings.TrimSpace(m.MessageReference.MessageID) != "":
		message.ReferenceID = strings.TrimSpace(m.MessageReference.MessageID)
	case m.ReferencedMessage != nil:
		message.ReferenceID = strings.TrimSpace(m.ReferencedMessage.ID)
	}
	return message
}

func (m discordMessage) toEvent() mention.Event {
	event := mention.Event{
		Message:          m.toThreadMessage(),
		RoleMentionIDs:   m.MentionRoles,
		MentionsEveryone: m.MentionEveryone,
	}
	for _, user := range m.Mentions {
		if id := strings.TrimSpace(user.ID); id != "" {
			event.MentionedUserIDs = append(event.MentionedUserIDs, id)
		}
	}
	return event
}

func displayName(author discordAuthor, member *discordMember) string {
	if member != nil && strings.TrimSpace(member.Nick) != "" {
		return strings.TrimSpace(member.Nick)
	}
	return strings.TrimSpace(author.GlobalName)
}
