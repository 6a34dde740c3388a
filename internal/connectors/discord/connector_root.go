// Package discord connects the mention dispatcher to Discord: a gateway
// session for inbound events and the REST API for fetching, replying and
// typing.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dwizi/einstein/internal/heartbeat"
	"github.com/dwizi/einstein/internal/mention"
)

const (
	connectorName = "discord"
	componentName = "connector:discord"

	helpCommand             = "help"
	askCommand              = "einstein"
	summarizeCommand        = "summarize"
	factCheckCommand        = "factcheck"
	factCheckHistoryCommand = "factcheckhistory"
	syncCommand             = "sync"

	discordIntentGuilds          = 1 << 0
	discordIntentGuildMessages   = 1 << 9
	discordIntentDirectMessages  = 1 << 12
	discordIntentMessageContents = 1 << 15
)

var (
	ErrNotFound    = errors.New("discord resource not found")
	ErrForbidden   = errors.New("discord request forbidden")
	ErrRateLimited = errors.New("discord rate limited")
)

// Handler receives inbound mentions and slash commands that need the model.
type Handler interface {
	Handle(ctx context.Context, event mention.Event) mention.Outcome
	HandleCommand(ctx context.Context, req mention.CommandRequest, replier mention.Replier) mention.Outcome
}

type Texts interface {
	HelpText() string
	WelcomeText() string
}

type Connector struct {
	token           string
	apiBase         string
	gatewayURL      string
	commandSync     bool
	commandGuildIDs []string
	applicationID   string
	handler         Handler
	texts           Texts
	httpClient      *http.Client
	logger          *slog.Logger
	reporter        heartbeat.Reporter

	mu        sync.RWMutex
	botUserID string
	welcomed  map[string]struct{}

	inflight sync.WaitGroup
}

type Option func(*Connector)

func WithCommandSync(enabled bool) Option {
	return func(connector *Connector) {
		connector.commandSync = enabled
	}
}

func WithCommandGuildIDs(guildIDs []string) Option {
	return func(connector *Connector) {
		clean := make([]string, 0, len(guildIDs))
		seen := map[string]struct{}{}
		for _, guildID := range guildIDs {
			value := strings.TrimSpace(guildID)
			if value == "" {
				continue
			}
			if _, exists := seen[value]; exists {
				continue
			}
			seen[value] = struct{}{}
			clean = append(clean, value)
		}
		connector.commandGuildIDs = clean
	}
}

func WithApplicationID(applicationID string) Option {
	return func(connector *Connector) {
		connector.applicationID = strings.TrimSpace(applicationID)
	}
}

func WithTexts(texts Texts) Option {
	return func(connector *Connector) {
		connector.texts = texts
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(connector *Connector) {
		if client != nil {
			connector.httpClient = client
		}
	}
}

func New(token, apiBase, gatewayURL string, logger *slog.Logger, opts ...Option) *Connector {
	if strings.TrimSpace(apiBase) == "" {
		apiBase = "https://discord.com/api/v10"
	}
	if strings.TrimSpace(gatewayURL) == "" {
		gatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"
	}
	if logger == nil {
		logger = slog.Default()
	}
	connector := &Connector{
		token:       strings.TrimSpace(token),
		apiBase:     strings.TrimRight(strings.TrimSpace(apiBase), "/"),
		gatewayURL:  strings.TrimSpace(gatewayURL),
		commandSync: true,
		httpClient:  &http.Client{Timeout: 12 * time.Second},
		logger:      logger,
		welcomed:    map[string]struct{}{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(connector)
		}
	}
	return connector
}

func (c *Connector) Name() string {
	return connectorName
}

func (c *Connector) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	c.reporter = reporter
}

// SetHandler must be called before Start. The dispatcher needs the connector
// as its platform, so it cannot be passed to New.
func (c *Connector) SetHandler(handler Handler) {
	c.handler = handler
}

// BotUserID is the id learned from the last READY event, empty before that.
func (c *Connector) BotUserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.botUserID
}

func (c *Connector) setBotUserID(id string) {
	c.mu.Lock()
	c.botUserID = strings.TrimSpace(id)
	c.mu.Unlock()
}

// markWelcomed reports whether the guild had not been welcomed yet.
func (c *Connector) markWelcomed(guildID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, done := c.welcomed[guildID]; done {
		return false
	}
	c.welcomed[guildID] = struct{}{}
	return true
}

func (c *Connector) knownApplicationID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.applicationID
}

func (c *Connector) helpText() string {
	if c.texts == nil {
		return ""
	}
	return strings.TrimSpace(c.texts.HelpText())
}

func (c *Connector) welcomeText() string {
	if c.texts == nil {
		return ""
	}
	return strings.TrimSpace(c.texts.WelcomeText())
}
