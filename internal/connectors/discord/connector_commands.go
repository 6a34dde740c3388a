package discord

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dwizi/einstein/internal/llm"
	"github.com/dwizi/einstein/internal/mention"
	"github.com/dwizi/einstein/internal/prompts"
)

const (
	interactionTypeCommand = 2

	responseChannelMessage = 4
	responseDeferred       = 5

	messageFlagEphemeral = 1 << 6

	optionTypeString  = 3
	optionTypeInteger = 4

	questionOption  = "question"
	textOption      = "text"
	statementOption = "statement"
	messagesOption  = "messages"
)

type commandOption struct {
	Type        int
	Name        string
	Description string
	Required    bool
	MaxValue    int
}

type slashCommand struct {
	Name        string
	Description string
	Options     []commandOption
	// ManagersOnly hides the command from members without Manage Server.
	ManagersOnly bool
}

func slashCommands() []slashCommand {
	messages := commandOption{
		Type:        optionTypeInteger,
		Name:        messagesOption,
		Description: fmt.Sprintf("How many recent messages to read (default %d)", mention.DefaultRecentMessages),
		MaxValue:    mention.MaxRecentMessages,
	}
	return []slashCommand{
		{
			Name:        helpCommand,
			Description: "Show what Einstein can do",
		},
		{
			Name:        askCommand,
			Description: "Ask Einstein a question",
			Options: []commandOption{
				{Type: optionTypeString, Name: questionOption, Description: "What do you want to know?", Required: true},
			},
		},
		{
			Name:        summarizeCommand,
			Description: "Summarize some text, or the recent messages in this channel",
			Options: []commandOption{
				{Type: optionTypeString, Name: textOption, Description: "Text to summarize; leave empty for the channel"},
				messages,
			},
		},
		{
			Name:        factCheckCommand,
			Description: "Fact check a statement",
			Options: []commandOption{
				{Type: optionTypeString, Name: statementOption, Description: "The statement to check", Required: true},
			},
		},
		{
			Name:        factCheckHistoryCommand,
			Description: "Fact check the recent messages in this channel",
			Options:     []commandOption{messages},
		},
		{
			Name:         syncCommand,
			Description:  "Refresh Einstein's slash commands",
			ManagersOnly: true,
		},
	}
}

func (c *Connector) syncCommands(ctx context.Context) error {
	applicationID, err := c.resolveApplicationID(ctx)
	if err != nil {
		return err
	}
	payload := buildCommandPayload(slashCommands())
	if len(c.commandGuildIDs) == 0 {
		return c.do(ctx, http.MethodPut, fmt.Sprintf("/applications/%s/commands", applicationID), payload, nil)
	}
	for _, guildID := range c.commandGuildIDs {
		path := fmt.Sprintf("/applications/%s/guilds/%s/commands", applicationID, url.PathEscape(guildID))
		if err := c.do(ctx, http.MethodPut, path, payload, nil); err != nil {
			return fmt.Errorf("sync commands for guild %s: %w", guildID, err)
		}
	}
	return nil
}

func (c *Connector) resolveApplicationID(ctx context.Context) (string, error) {
	if applicationID := strings.TrimSpace(c.knownApplicationID()); applicationID != "" {
		return applicationID, nil
	}
	var application struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodGet, "/oauth2/applications/@me", nil, &application); err != nil {
		return "", fmt.Errorf("discord application lookup: %w", err)
	}
	applicationID := strings.TrimSpace(application.ID)
	if applicationID == "" {
		return "", fmt.Errorf("discord application lookup returned empty id")
	}
	c.mu.Lock()
	c.applicationID = applicationID
	c.mu.Unlock()
	return applicationID, nil
}

func buildCommandPayload(commands []slashCommand) []map[string]any {
	payload := make([]map[string]any, 0, len(commands))
	for _, command := range commands {
		entry := map[string]any{
			"name":        command.Name,
			"description": command.Description,
			"type":        1,
		}
		if command.ManagersOnly {
			entry["default_member_permissions"] = strconv.Itoa(permissionManageGuild)
			entry["dm_permission"] = false
		}
		if len(command.Options) > 0 {
			options := make([]map[string]any, 0, len(command.Options))
			for _, option := range command.Options {
				item := map[string]any{
					"type":        option.Type,
					"name":        option.Name,
					"description": option.Description,
					"required":    option.Required,
				}
				if option.Type == optionTypeInteger {
					item["min_value"] = 1
					if option.MaxValue > 0 {
						item["max_value"] = option.MaxValue
					}
				}
				options = append(options, item)
			}
			entry["options"] = options
		}
		payload = append(payload, entry)
	}
	return payload
}

func (c *Connector) handleInteractionCreate(ctx context.Context, interaction discordInteractionCreate) error {
	if interaction.Type != interactionTypeCommand {
		return nil
	}
	name := strings.ToLower(strings.TrimSpace(interaction.Data.Name))
	switch name {
	case helpCommand:
		text := c.helpText()
		if text == "" {
			text = "Mention me with a question, or use /einstein."
		}
		return c.respondInteraction(ctx, interaction, responseChannelMessage, text)
	case askCommand, summarizeCommand, factCheckCommand, factCheckHistoryCommand:
		return c.answerInteraction(ctx, interaction, commandRequest(name, interaction))
	case syncCommand:
		return c.syncInteraction(ctx, interaction)
	default:
		return c.respondInteraction(ctx, interaction, responseChannelMessage, "Unsupported command.")
	}
}

// commandRequest maps a slash command's options onto a dispatcher request.
// Summarize reads the channel only when no text was given.
func commandRequest(name string, interaction discordInteractionCreate) mention.CommandRequest {
	req := mention.CommandRequest{
		Command:   name,
		UserID:    interaction.userID(),
		ChannelID: strings.TrimSpace(interaction.ChannelID),
	}
	switch name {
	case askCommand:
		req.Prompt = interaction.option(questionOption)
	case summarizeCommand:
		req.Template = prompts.TemplateSummarize
		req.Prompt = interaction.option(textOption)
		if req.Prompt == "" {
			req.RecentMessages = interaction.intOption(messagesOption, mention.DefaultRecentMessages)
		}
	case factCheckCommand:
		req.Template = prompts.TemplateFactCheck
		req.Prompt = interaction.option(statementOption)
	case factCheckHistoryCommand:
		req.Template = prompts.TemplateFactCheckHistory
		req.RecentMessages = interaction.intOption(messagesOption, mention.DefaultRecentMessages)
	}
	return req
}

// answerInteraction acknowledges within Discord's deadline and delivers the
// answer chunks as follow-up messages.
func (c *Connector) answerInteraction(ctx context.Context, interaction discordInteractionCreate, req mention.CommandRequest) error {
	if err := c.respondInteraction(ctx, interaction, responseDeferred, ""); err != nil {
		return err
	}
	if c.handler == nil {
		return nil
	}
	c.handler.HandleCommand(ctx, req, &followupReplier{connector: c, interaction: interaction})
	return nil
}

// syncInteraction re-registers the slash commands for a member who may manage
// the server. Every answer is visible only to the caller.
func (c *Connector) syncInteraction(ctx context.Context, interaction discordInteractionCreate) error {
	if !interaction.Member.canManageGuild() {
		return c.respondEphemeral(ctx, interaction, responseChannelMessage, "You need the Manage Server permission to sync commands.")
	}
	if err := c.respondEphemeral(ctx, interaction, responseDeferred, ""); err != nil {
		return err
	}
	replier := &followupReplier{connector: c, interaction: interaction, flags: messageFlagEphemeral}
	if err := c.syncCommands(ctx); err != nil {
		c.logger.Error("discord command sync failed", "error", err, "user_id", interaction.userID(), "guild_id", interaction.GuildID)
		return replier.Reply(ctx, "Command sync failed: "+err.Error())
	}
	c.logger.Info("discord commands synced on request", "user_id", interaction.userID(), "guild_id", interaction.GuildID, "commands", len(slashCommands()))
	return replier.Reply(ctx, fmt.Sprintf("Synced %d commands.", len(slashCommands())))
}

func (c *Connector) respondInteraction(ctx context.Context, interaction discordInteractionCreate, responseType int, content string) error {
	return c.postInteractionResponse(ctx, interaction, responseType, content, 0)
}

func (c *Connector) respondEphemeral(ctx context.Context, interaction discordInteractionCreate, responseType int, content string) error {
	return c.postInteractionResponse(ctx, interaction, responseType, content, messageFlagEphemeral)
}

func (c *Connector) postInteractionResponse(ctx context.Context, interaction discordInteractionCreate, responseType int, content string, flags int) error {
	if strings.TrimSpace(interaction.ID) == "" || strings.TrimSpace(interaction.Token) == "" {
		return fmt.Errorf("missing interaction id or token")
	}
	body := map[string]any{"type": responseType}
	data := map[string]any{}
	if content != "" {
		data["content"] = clip(content)
		data["allowed_mentions"] = map[string]any{"parse": []string{}}
	}
	if flags != 0 {
		data["flags"] = flags
	}
	if len(data) > 0 {
		body["data"] = data
	}
	path := fmt.Sprintf("/interactions/%s/%s/callback", url.PathEscape(interaction.ID), url.PathEscape(interaction.Token))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

type followupReplier struct {
	connector   *Connector
	interaction discordInteractionCreate
	flags       int
}

func (r *followupReplier) Reply(ctx context.Context, text string) error {
	applicationID := strings.TrimSpace(r.interaction.ApplicationID)
	if applicationID == "" {
		applicationID = r.connector.knownApplicationID()
	}
	if applicationID == "" {
		return fmt.Errorf("missing application id for interaction follow-up")
	}
	body := map[string]any{
		"content":          clip(text),
		"allowed_mentions": map[string]any{"parse": []string{}},
	}
	if r.flags != 0 {
		body["flags"] = r.flags
	}
	path := fmt.Sprintf("/webhooks/%s/%s", url.PathEscape(applicationID), url.PathEscape(r.interaction.Token))
	return r.connector.do(ctx, http.MethodPost, path, body, nil)
}

func clip(content string) string {
	chunks := llm.SplitMessage(strings.TrimSpace(content), llm.DiscordMessageLimit)
	if len(chunks) == 0 {
		return ""
	}
	return chunks[0]
}
