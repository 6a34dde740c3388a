// Package mention turns "bot was addressed" events into replies: it applies
// the ignore rules, the per-user cooldown, gathers reply-thread context, asks
// the generator and delivers the answer chunks in order.
package mention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dwizi/einstein/internal/cooldown"
	"github.com/dwizi/einstein/internal/threadctx"
)

const (
	CommandMention = "mention"

	DefaultGenerateTimeout = 90 * time.Second
	DefaultRecentMessages  = 50
	MaxRecentMessages      = 100
)

var (
	ErrNoReply   = errors.New("generator returned no reply chunks")
	ErrNoHistory = errors.New("no recent messages to read")
)

type Event struct {
	Message          threadctx.Message
	MentionedUserIDs []string
	RoleMentionIDs   []string
	MentionsEveryone bool
}

type Platform interface {
	Reply(ctx context.Context, target threadctx.Message, text string) error
	Typing(ctx context.Context, channelID string) error
}

// Replier delivers one reply for a request that has no triggering message,
// such as a slash command or a local question.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

type Gate interface {
	CheckAndRecord(subjectKey string, window time.Duration) time.Duration
}

type Collector interface {
	Collect(ctx context.Context, start threadctx.Message, budget threadctx.Budget) []threadctx.Entry
}

// ChannelReader lists the latest messages of a channel, newest first.
type ChannelReader interface {
	RecentMessages(ctx context.Context, channelID string, limit int) ([]threadctx.Message, error)
}

type Generator interface {
	Generate(ctx context.Context, template, prompt string, history []threadctx.Entry) ([]string, error)
}

type Messages interface {
	CooldownMessage(remaining time.Duration) string
	EmptyPromptMessage() string
	EmptyCommandMessage(command string) string
	ErrorMessage(err error) string
}

type Observer interface {
	Observe(ctx context.Context, outcome Outcome)
}

type Config struct {
	BotUserID       func() string
	CooldownWindow  time.Duration
	Budget          threadctx.Budget
	HistoryChars    int
	GenerateTimeout time.Duration
}

type Dispatcher struct {
	platform  Platform
	gate      Gate
	collector Collector
	generator Generator
	messages  Messages
	observer  Observer
	reader    ChannelReader
	cfg       Config
	logger    *slog.Logger
}

type Option func(*Dispatcher)

func WithChannelReader(reader ChannelReader) Option {
	return func(d *Dispatcher) {
		d.reader = reader
	}
}

func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

func New(platform Platform, gate Gate, collector Collector, generator Generator, messages Messages, cfg Config, logger *slog.Logger, opts ...Option) *Dispatcher {
	if cfg.CooldownWindow <= 0 {
		cfg.CooldownWindow = cooldown.DefaultWindow
	}
	if cfg.Budget.MaxMessages < 1 || cfg.Budget.MaxChars < 1 {
		cfg.Budget = threadctx.DefaultBudget()
	}
	if cfg.HistoryChars < 1 {
		cfg.HistoryChars = threadctx.DefaultHistoryChars
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = DefaultGenerateTimeout
	}
	if cfg.BotUserID == nil {
		cfg.BotUserID = func() string { return "" }
	}
	if messages == nil {
		messages = defaultMessages{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	dispatcher := &Dispatcher{
		platform:  platform,
		gate:      gate,
		collector: collector,
		generator: generator,
		messages:  messages,
		cfg:       cfg,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(dispatcher)
		}
	}
	return dispatcher
}

// Handle processes one inbound message event. Every failure is turned into at
// most one user-visible reply; nothing escapes to the caller.
func (d *Dispatcher) Handle(ctx context.Context, event Event) (outcome Outcome) {
	started := time.Now()
	message := event.Message
	outcome = Outcome{
		RequestID: uuid.NewString(),
		Command:   CommandMention,
		UserID:    message.Author.ID,
		ChannelID: message.ChannelID,
		MessageID: message.ID,
	}
	logger := d.logger.With(
		"request_id", outcome.RequestID,
		"channel_id", message.ChannelID,
		"message_id", message.ID,
		"user_id", message.Author.ID,
	)
	defer func() {
		outcome.Duration = time.Since(started)
		d.finish(ctx, logger, outcome)
	}()

	botID := strings.TrimSpace(d.cfg.BotUserID())
	if botID != "" && message.Author.ID == botID {
		outcome.State, outcome.Reason = StateIgnored, ReasonSelf
		return outcome
	}
	if !Addressed(event, botID) {
		outcome.State, outcome.Reason = StateIgnored, ReasonNotAddressed
		return outcome
	}
	if HasBroadcast(message.Content) {
		outcome.State, outcome.Reason = StateIgnored, ReasonBroadcast
		return outcome
	}
	if HasRoleMention(event) {
		outcome.State, outcome.Reason = StateIgnored, ReasonRoleMention
		return outcome
	}

	reply := func(ctx context.Context, text string) error {
		return d.platform.Reply(ctx, message, text)
	}
	d.answer(ctx, logger, &outcome, request{
		prompt:  StripMention(message.Content, botID),
		typing:  message.ChannelID,
		context: &message,
	}, reply)
	return outcome
}

type CommandRequest struct {
	Command   string
	UserID    string
	ChannelID string
	Prompt    string
	// Template names the model prompt; empty is a plain question.
	Template string
	// RecentMessages, when positive, reads that many of the channel's latest
	// messages as history. The prompt may then be empty.
	RecentMessages int
}

// HandleCommand answers a command without a triggering message. The command
// name scopes the cooldown, so each command has its own budget.
func (d *Dispatcher) HandleCommand(ctx context.Context, req CommandRequest, replier Replier) (outcome Outcome) {
	started := time.Now()
	command := strings.ToLower(strings.TrimSpace(req.Command))
	if command == "" {
		command = CommandMention
	}
	outcome = Outcome{
		RequestID: uuid.NewString(),
		Command:   command,
		UserID:    req.UserID,
		ChannelID: req.ChannelID,
	}
	logger := d.logger.With(
		"request_id", outcome.RequestID,
		"channel_id", req.ChannelID,
		"user_id", req.UserID,
		"command", command,
	)
	defer func() {
		outcome.Duration = time.Since(started)
		d.finish(ctx, logger, outcome)
	}()
	var reply func(context.Context, string) error
	if replier != nil {
		reply = replier.Reply
	}
	recent := req.RecentMessages
	if recent > MaxRecentMessages {
		recent = MaxRecentMessages
	}
	d.answer(ctx, logger, &outcome, request{
		template: strings.TrimSpace(req.Template),
		prompt:   strings.TrimSpace(req.Prompt),
		typing:   req.ChannelID,
		recent:   recent,
		command:  true,
	}, reply)
	return outcome
}

type request struct {
	template string
	prompt   string
	typing   string
	context  *threadctx.Message
	recent   int
	command  bool
}

func (d *Dispatcher) answer(ctx context.Context, logger *slog.Logger, outcome *Outcome, req request, reply func(context.Context, string) error) {
	if d.gate != nil {
		remaining := d.gate.CheckAndRecord(cooldown.Key(outcome.UserID, outcome.Command), d.cfg.CooldownWindow)
		if remaining > 0 {
			outcome.State = StateCooldownBlocked
			outcome.Remaining = remaining
			d.send(ctx, logger, outcome, reply, d.messages.CooldownMessage(remaining))
			return
		}
	}

	outcome.PromptChars = len([]rune(req.prompt))
	if req.prompt == "" && req.recent < 1 {
		outcome.State = StateEmptyPrompt
		text := d.messages.EmptyPromptMessage()
		if req.command {
			text = d.messages.EmptyCommandMessage(outcome.Command)
		}
		d.send(ctx, logger, outcome, reply, text)
		return
	}

	outcome.State = StateGenerating
	if err := d.generate(ctx, logger, outcome, req, reply); err != nil {
		outcome.State = StateFailed
		outcome.Err = err
		logger.Error("mention reply failed", "error", err, "replies_sent", outcome.Replies)
		d.send(ctx, logger, outcome, reply, d.messages.ErrorMessage(err))
		return
	}
	outcome.State = StateReplied
}

func (d *Dispatcher) generate(ctx context.Context, logger *slog.Logger, outcome *Outcome, req request, reply func(context.Context, string) error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic while answering: %v", recovered)
		}
	}()

	if d.platform != nil && strings.TrimSpace(req.typing) != "" {
		if typingErr := d.platform.Typing(ctx, req.typing); typingErr != nil {
			logger.Debug("typing indicator failed", "error", typingErr)
		}
	}

	generateCtx, cancel := context.WithTimeout(ctx, d.cfg.GenerateTimeout)
	defer cancel()

	var history []threadctx.Entry
	switch {
	case req.recent > 0:
		history, err = d.channelHistory(generateCtx, req.typing, req.recent)
		if err != nil {
			return err
		}
	case req.context != nil && d.collector != nil:
		history = d.collector.Collect(generateCtx, *req.context, d.cfg.Budget)
	}
	outcome.ContextMessages = len(history)

	if d.generator == nil {
		return ErrNoReply
	}
	chunks, err := d.generator.Generate(generateCtx, req.template, req.prompt, history)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return ErrNoReply
	}
	if reply == nil {
		return fmt.Errorf("no reply target")
	}
	for index, chunk := range chunks {
		if err := reply(ctx, chunk); err != nil {
			return fmt.Errorf("send reply chunk %d of %d: %w", index+1, len(chunks), err)
		}
		outcome.Replies++
	}
	return nil
}

// channelHistory reads the channel's latest messages, leaving out the bot's
// own replies.
func (d *Dispatcher) channelHistory(ctx context.Context, channelID string, limit int) ([]threadctx.Entry, error) {
	if d.reader == nil || strings.TrimSpace(channelID) == "" {
		return nil, fmt.Errorf("%w: channel history unavailable", ErrNoHistory)
	}
	messages, err := d.reader.RecentMessages(ctx, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("read recent messages: %w", err)
	}
	botID := strings.TrimSpace(d.cfg.BotUserID())
	kept := make([]threadctx.Message, 0, len(messages))
	for _, message := range messages {
		if botID != "" && message.Author.ID == botID {
			continue
		}
		kept = append(kept, message)
	}
	history := threadctx.Recent(kept, d.cfg.HistoryChars)
	if len(history) == 0 {
		return nil, ErrNoHistory
	}
	return history, nil
}

func (d *Dispatcher) send(ctx context.Context, logger *slog.Logger, outcome *Outcome, reply func(context.Context, string) error, text string) {
	if strings.TrimSpace(text) == "" || reply == nil {
		return
	}
	if err := reply(ctx, text); err != nil {
		logger.Error("send reply failed", "error", err, "state", string(outcome.State))
		if outcome.Err == nil {
			outcome.Err = err
		}
		return
	}
	outcome.Replies++
}

func (d *Dispatcher) finish(ctx context.Context, logger *slog.Logger, outcome Outcome) {
	if outcome.State == StateIgnored {
		logger.Debug("mention ignored", "reason", string(outcome.Reason))
	} else {
		logger.Info(
			"mention handled",
			"state", string(outcome.State),
			"replies", outcome.Replies,
			"context_messages", outcome.ContextMessages,
			"duration_ms", outcome.Duration.Milliseconds(),
		)
	}
	if d.observer != nil {
		d.observer.Observe(ctx, outcome)
	}
}

type defaultMessages struct{}

func (defaultMessages) CooldownMessage(remaining time.Duration) string {
	return fmt.Sprintf("Please wait %.1f seconds before using this command again.", remaining.Seconds())
}

func (defaultMessages) EmptyPromptMessage() string {
	return "Please provide a question after mentioning me."
}

func (defaultMessages) EmptyCommandMessage(command string) string {
	return "Please provide some text for the " + command + " command."
}

func (defaultMessages) ErrorMessage(err error) string {
	if err == nil {
		return "Error: unknown error"
	}
	return "Error: " + err.Error()
}
