package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dwizi/einstein/internal/threadctx"
)

type PromptRenderer interface {
	SystemPrompt() string
	RenderPrompt(name, prompt string, history []threadctx.Entry) (string, error)
}

// Generator turns a prompt plus history into reply chunks that each fit in
// one chat message. The template name picks the model prompt; empty means a
// plain question.
type Generator struct {
	responder Responder
	prompts   PromptRenderer
	limit     int
	logger    *slog.Logger
}

func NewGenerator(responder Responder, prompts PromptRenderer, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		responder: responder,
		prompts:   prompts,
		limit:     DiscordMessageLimit,
		logger:    logger,
	}
}

func (g *Generator) Generate(ctx context.Context, template, prompt string, history []threadctx.Entry) ([]string, error) {
	if g.responder == nil {
		return nil, fmt.Errorf("%w: no provider configured", ErrUnavailable)
	}
	text := strings.TrimSpace(prompt)
	system := ""
	if g.prompts != nil {
		rendered, err := g.prompts.RenderPrompt(template, text, history)
		if err != nil {
			return nil, fmt.Errorf("render %s prompt: %w", templateLabel(template), err)
		}
		text = rendered
		system = g.prompts.SystemPrompt()
	}
	reply, err := g.responder.Reply(ctx, MessageInput{
		Text:         text,
		SystemPrompt: system,
	})
	if err != nil {
		return nil, err
	}
	chunks := SplitMessage(reply, g.limit)
	if len(chunks) == 0 {
		return nil, ErrEmptyResponse
	}
	g.logger.Debug("generated reply", "template", templateLabel(template), "chunks", len(chunks), "history", len(history), "reply_len", len(reply))
	return chunks, nil
}

func templateLabel(name string) string {
	if strings.TrimSpace(name) == "" {
		return "question"
	}
	return name
}
