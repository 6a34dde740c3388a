package llm

import (
	"context"
	"errors"
)

var (
	ErrUnavailable   = errors.New("llm unavailable")
	ErrEmptyResponse = errors.New("llm returned an empty response")
)

type MessageInput struct {
	FromUserID   string
	DisplayName  string
	Text         string
	SystemPrompt string
}

type Responder interface {
	Reply(ctx context.Context, input MessageInput) (string, error)
}
