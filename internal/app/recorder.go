package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/dwizi/einstein/internal/mention"
	"github.com/dwizi/einstein/internal/store"
)

type interactionStore interface {
	RecordInteraction(ctx context.Context, input store.RecordInteractionInput) (store.Interaction, error)
}

// interactionRecorder writes every non-ignored outcome to the audit log.
type interactionRecorder struct {
	store  interactionStore
	logger *slog.Logger
}

func newInteractionRecorder(sqlStore interactionStore, logger *slog.Logger) *interactionRecorder {
	return &interactionRecorder{store: sqlStore, logger: logger}
}

func (r *interactionRecorder) Observe(ctx context.Context, outcome mention.Outcome) {
	if r.store == nil || outcome.State == mention.StateIgnored {
		return
	}
	input := store.RecordInteractionInput{
		ID:              outcome.RequestID,
		Connector:       connectorForCommand(outcome.Command),
		ChannelID:       outcome.ChannelID,
		MessageID:       outcome.MessageID,
		UserID:          outcome.UserID,
		Command:         outcome.Command,
		Outcome:         string(outcome.State),
		PromptChars:     outcome.PromptChars,
		ContextMessages: outcome.ContextMessages,
		ReplyCount:      outcome.Replies,
		Duration:        outcome.Duration,
	}
	if outcome.Err != nil {
		input.ErrorMessage = outcome.Err.Error()
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := r.store.RecordInteraction(writeCtx, input); err != nil {
		r.logger.Error("record interaction failed", "error", err, "request_id", outcome.RequestID)
	}
}

func connectorForCommand(command string) string {
	if command == CommandAsk {
		return "cli"
	}
	return "discord"
}
