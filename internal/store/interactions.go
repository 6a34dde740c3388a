package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInteractionNotFound = errors.New("interaction not found")

type Interaction struct {
	ID              string
	Connector       string
	ChannelID       string
	MessageID       string
	UserID          string
	Command         string
	Outcome         string
	PromptChars     int
	ContextMessages int
	ReplyCount      int
	ErrorMessage    string
	Duration        time.Duration
	CreatedAt       time.Time
}

type RecordInteractionInput struct {
	ID              string
	Connector       string
	ChannelID       string
	MessageID       string
	UserID          string
	Command         string
	Outcome         string
	PromptChars     int
	ContextMessages int
	ReplyCount      int
	ErrorMessage    string
	Duration        time.Duration
	CreatedAt       time.Time
}

type ListInteractionsInput struct {
	UserID string
	Limit  int
}

func (s *Store) RecordInteraction(ctx context.Context, input RecordInteractionInput) (Interaction, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	command := strings.TrimSpace(input.Command)
	if command == "" {
		return Interaction{}, fmt.Errorf("interaction command is required")
	}
	outcome := strings.TrimSpace(input.Outcome)
	if outcome == "" {
		return Interaction{}, fmt.Errorf("interaction outcome is required")
	}
	connector := strings.TrimSpace(input.Connector)
	if connector == "" {
		connector = "unknown"
	}
	createdAt := input.CreatedAt.UTC()
	if input.CreatedAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO interactions (
			id, connector, channel_id, message_id, user_id, command, outcome,
			prompt_chars, context_messages, reply_count, error_message, duration_ms, created_at_unix
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		connector,
		strings.TrimSpace(input.ChannelID),
		strings.TrimSpace(input.MessageID),
		strings.TrimSpace(input.UserID),
		command,
		outcome,
		input.PromptChars,
		input.ContextMessages,
		input.ReplyCount,
		strings.TrimSpace(input.ErrorMessage),
		input.Duration.Milliseconds(),
		createdAt.Unix(),
	)
	if err != nil {
		return Interaction{}, fmt.Errorf("insert interaction: %w", err)
	}
	return s.LookupInteraction(ctx, id)
}

func (s *Store) LookupInteraction(ctx context.Context, id string) (Interaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+interactionColumns+` FROM interactions WHERE id = ?`, strings.TrimSpace(id))
	interaction, err := scanInteraction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Interaction{}, ErrInteractionNotFound
	}
	if err != nil {
		return Interaction{}, fmt.Errorf("lookup interaction: %w", err)
	}
	return interaction, nil
}

// ListInteractions returns the newest interactions first.
func (s *Store) ListInteractions(ctx context.Context, input ListInteractionsInput) ([]Interaction, error) {
	limit := input.Limit
	if limit < 1 || limit > 500 {
		limit = 20
	}
	query := `SELECT ` + interactionColumns + ` FROM interactions`
	args := []any{}
	if userID := strings.TrimSpace(input.UserID); userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY created_at_unix DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	results := []Interaction{}
	for rows.Next() {
		interaction, err := scanInteraction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		results = append(results, interaction)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	return results, nil
}

const interactionColumns = `id, connector, channel_id, message_id, user_id, command, outcome,
	prompt_chars, context_messages, reply_count, error_message, duration_ms, created_at_unix`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (Interaction, error) {
	var (
		interaction   Interaction
		durationMS    int64
		createdAtUnix int64
	)
	err := row.Scan(
		&interaction.ID,
		&interaction.Connector,
		&interaction.ChannelID,
		&interaction.MessageID,
		&interaction.UserID,
		&interaction.Command,
		&interaction.Outcome,
		&interaction.PromptChars,
		&interaction.ContextMessages,
		&interaction.ReplyCount,
		&interaction.ErrorMessage,
		&durationMS,
		&createdAtUnix,
	)
	if err != nil {
		return Interaction{}, err
	}
	interaction.Duration = time.Duration(durationMS) * time.Millisecond
	interaction.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
	return interaction, nil
}
