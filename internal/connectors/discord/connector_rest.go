package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dwizi/einstein/internal/threadctx"
)

const (
	userAgent = "einstein/0.1"

	maxMessageListing = 100
)

// FetchMessage loads one message by id. It backs reply-thread collection.
func (c *Connector) FetchMessage(ctx context.Context, channelID, messageID string) (threadctx.Message, error) {
	channelID = strings.TrimSpace(channelID)
	messageID = strings.TrimSpace(messageID)
	if channelID == "" || messageID == "" {
		return threadctx.Message{}, fmt.Errorf("channel id and message id are required")
	}
	var message discordMessage
	path := fmt.Sprintf("/channels/%s/messages/%s", url.PathEscape(channelID), url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodGet, path, nil, &message); err != nil {
		return threadctx.Message{}, fmt.Errorf("fetch discord message %s: %w", messageID, err)
	}
	result := message.toThreadMessage()
	if result.ChannelID == "" {
		result.ChannelID = channelID
	}
	return result, nil
}

// RecentMessages lists up to limit of the channel's latest messages, newest
// first. Discord caps a single listing at 100.
func (c *Connector) RecentMessages(ctx context.Context, channelID string, limit int) ([]threadctx.Message, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return nil, fmt.Errorf("channel id is required")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxMessageListing {
		limit = maxMessageListing
	}
	var listing []discordMessage
	path := fmt.Sprintf("/channels/%s/messages?limit=%d", url.PathEscape(channelID), limit)
	if err := c.do(ctx, http.MethodGet, path, nil, &listing); err != nil {
		return nil, fmt.Errorf("list discord messages in %s: %w", channelID, err)
	}
	messages := make([]threadctx.Message, 0, len(listing))
	for _, message := range listing {
		result := message.toThreadMessage()
		if result.ChannelID == "" {
			result.ChannelID = channelID
		}
		messages = append(messages, result)
	}
	return messages, nil
}

// Reply posts text as a reply to target without pinging anyone.
func (c *Connector) Reply(ctx context.Context, target threadctx.Message, text string) error {
	return c.sendChannelMessage(ctx, target.ChannelID, text, target.ID)
}

func (c *Connector) Typing(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel id is required")
	}
	path := fmt.Sprintf("/channels/%s/typing", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Connector) sendChannelMessage(ctx context.Context, channelID, content, replyTo string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return fmt.Errorf("channel id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	body := map[string]any{
		"content":          content,
		"allowed_mentions": map[string]any{"parse": []string{}},
	}
	if strings.TrimSpace(replyTo) != "" {
		body["message_reference"] = map[string]any{
			"message_id":         strings.TrimSpace(replyTo),
			"fail_if_not_exists": false,
		}
	}
	path := fmt.Sprintf("/channels/%s/messages", url.PathEscape(channelID))
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Connector) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, reader)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(path, "/interactions/") && !strings.HasPrefix(path, "/webhooks/") {
		req.Header.Set("Authorization", "Bot "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return statusError(method, path, res.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode discord response: %w", err)
	}
	return nil
}

func statusError(method, path string, status int, body string) error {
	var sentinel error
	switch status {
	case http.StatusNotFound:
		sentinel = ErrNotFound
	case http.StatusForbidden:
		sentinel = ErrForbidden
	case http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	}
	if sentinel != nil {
		return fmt.Errorf("%w: %s %s status=%d body=%s", sentinel, method, path, status, body)
	}
	return fmt.Errorf("discord request failed: %s %s status=%d body=%s", method, path, status, body)
}
