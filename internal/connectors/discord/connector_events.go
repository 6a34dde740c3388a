package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

func (c *Connector) dispatch(ctx context.Context, eventType string, data json.RawMessage) {
	switch eventType {
	case "READY":
		var ready discordReady
		if err := json.Unmarshal(data, &ready); err != nil {
			c.logger.Error("decode ready failed", "error", err)
			return
		}
		c.setBotUserID(ready.User.ID)
		// Guilds listed in READY were joined before this session; their
		// GUILD_CREATE is not a join and gets no welcome.
		for _, guild := range ready.Guilds {
			c.markWelcomed(strings.TrimSpace(guild.ID))
		}
		c.logger.Info("discord session ready", "bot_user_id", ready.User.ID, "guild_count", len(ready.Guilds))
	case "MESSAGE_CREATE":
		var message discordMessage
		if err := json.Unmarshal(data, &message); err != nil {
			c.logger.Error("decode message create failed", "error", err)
			return
		}
		c.spawn(ctx, "message", func(taskCtx context.Context) error {
			c.handleMessageCreate(taskCtx, message)
			return nil
		})
	case "GUILD_CREATE":
		var guild discordGuildCreate
		if err := json.Unmarshal(data, &guild); err != nil {
			c.logger.Error("decode guild create failed", "error", err)
			return
		}
		c.spawn(ctx, "welcome", func(taskCtx context.Context) error {
			return c.handleGuildCreate(taskCtx, guild)
		})
	case "INTERACTION_CREATE":
		var interaction discordInteractionCreate
		if err := json.Unmarshal(data, &interaction); err != nil {
			c.logger.Error("decode interaction create failed", "error", err)
			return
		}
		c.spawn(ctx, "interaction", func(taskCtx context.Context) error {
			return c.handleInteractionCreate(taskCtx, interaction)
		})
	}
}

// spawn runs one inbound event on its own goroutine. A failing or panicking
// task is logged and never reaches the session loop or other tasks.
func (c *Connector) spawn(ctx context.Context, kind string, task func(context.Context) error) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		defer func() {
			if recovered := recover(); recovered != nil {
				c.logger.Error("discord event task panicked", "kind", kind, "error", fmt.Sprint(recovered))
			}
		}()
		if err := task(ctx); err != nil {
			c.logger.Error("discord event task failed", "kind", kind, "error", err)
		}
	}()
}

func (c *Connector) handleMessageCreate(ctx context.Context, message discordMessage) {
	if c.handler == nil {
		return
	}
	c.handler.Handle(ctx, message.toEvent())
}

// handleGuildCreate welcomes a newly joined guild in its system channel, or
// in the first text channel the bot may write to.
func (c *Connector) handleGuildCreate(ctx context.Context, guild discordGuildCreate) error {
	guildID := strings.TrimSpace(guild.ID)
	if guildID == "" || guild.Unavailable {
		return nil
	}
	candidates := guild.welcomeChannels()
	if len(candidates) == 0 {
		return nil
	}
	text := c.welcomeText()
	if text == "" {
		return nil
	}
	if !c.markWelcomed(guildID) {
		return nil
	}
	for _, channelID := range candidates {
		err := c.sendChannelMessage(ctx, channelID, text, "")
		if err == nil {
			c.logger.Info("welcome message sent", "guild_id", guildID, "channel_id", channelID)
			return nil
		}
		if !errors.Is(err, ErrForbidden) {
			return fmt.Errorf("send welcome to guild %s: %w", guildID, err)
		}
		c.logger.Debug("welcome channel not writable", "guild_id", guildID, "channel_id", channelID)
	}
	c.logger.Warn("no writable channel for welcome message", "guild_id", guildID, "candidates", len(candidates))
	return nil
}
