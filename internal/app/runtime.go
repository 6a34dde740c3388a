package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dwizi/einstein/internal/config"
	"github.com/dwizi/einstein/internal/connectors"
	"github.com/dwizi/einstein/internal/connectors/discord"
	"github.com/dwizi/einstein/internal/cooldown"
	"github.com/dwizi/einstein/internal/heartbeat"
	"github.com/dwizi/einstein/internal/llm"
	"github.com/dwizi/einstein/internal/mention"
	"github.com/dwizi/einstein/internal/prompts"
	"github.com/dwizi/einstein/internal/store"
	"github.com/dwizi/einstein/internal/threadctx"
)

// CommandAsk scopes the cooldown of questions asked from the command line.
const CommandAsk = "ask"

type Runtime struct {
	cfg              config.Config
	logger           *slog.Logger
	store            *store.Store
	prompts          *prompts.Manager
	gate             *cooldown.Gate
	dispatcher       *mention.Dispatcher
	connectors       []connectors.Connector
	sweeper          *cooldownSweeper
	httpServer       *http.Server
	heartbeat        *heartbeat.Registry
	heartbeatMonitor *heartbeat.Monitor
}

func New(cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	sqlStore, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := sqlStore.AutoMigrate(context.Background()); err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	promptManager, err := prompts.NewManager(cfg.PromptsFile, logger.With("component", "prompts"))
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	registry := heartbeat.NewRegistry()
	connector := discord.New(
		cfg.DiscordToken,
		cfg.DiscordAPIBase,
		cfg.DiscordGatewayURL,
		logger.With("component", "discord-connector"),
		discord.WithCommandSync(cfg.CommandSyncEnabled),
		discord.WithCommandGuildIDs(cfg.DiscordCommandGuilds),
		discord.WithApplicationID(cfg.DiscordApplicationID),
		discord.WithTexts(promptManager),
	)

	gate := cooldown.New(nil)
	responder := newResponder(cfg, logger.With("component", "llm"))
	generator := llm.NewGenerator(responder, promptManager, logger.With("component", "generator"))
	collector := threadctx.New(connector, logger.With("component", "thread-context"))
	dispatcher := mention.New(
		connector,
		gate,
		collector,
		generator,
		promptManager,
		mention.Config{
			BotUserID:      connector.BotUserID,
			CooldownWindow: secondsToDuration(cfg.CooldownSeconds),
			Budget: threadctx.Budget{
				MaxMessages: cfg.ContextMaxMessages,
				MaxChars:    cfg.ContextMaxChars,
			},
			HistoryChars:    cfg.HistoryMaxChars,
			GenerateTimeout: time.Duration(cfg.GenerateTimeoutSec) * time.Second,
		},
		logger.With("component", "mention-dispatcher"),
		mention.WithObserver(newInteractionRecorder(sqlStore, logger.With("component", "interaction-recorder"))),
		mention.WithChannelReader(connector),
	)
	connector.SetHandler(dispatcher)

	window := secondsToDuration(cfg.CooldownSeconds)
	if window <= 0 {
		window = cooldown.DefaultWindow
	}
	sweeper := &cooldownSweeper{
		gate:      gate,
		schedule:  cfg.CooldownSweepSchedule,
		retention: time.Duration(cfg.CooldownRetentionFactor) * window,
		logger:    logger.With("component", "cooldown-sweeper"),
		reporter:  registry,
	}

	runtime := &Runtime{
		cfg:        cfg,
		logger:     logger,
		store:      sqlStore,
		prompts:    promptManager,
		gate:       gate,
		dispatcher: dispatcher,
		connectors: []connectors.Connector{connector},
		sweeper:    sweeper,
		heartbeat:  registry,
	}
	for _, conn := range runtime.connectors {
		conn.SetHeartbeatReporter(registry)
	}
	runtime.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           runtime.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	if cfg.HeartbeatEnabled {
		runtime.heartbeatMonitor = heartbeat.NewMonitor(registry, heartbeat.MonitorConfig{
			Interval:   time.Duration(cfg.HeartbeatIntervalSec) * time.Second,
			StaleAfter: runtime.staleAfter(),
			Logger:     logger.With("component", "heartbeat-monitor"),
		})
	}
	return runtime, nil
}

func (r *Runtime) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/healthz", r.heartbeat.Handler(r.staleAfter()))
	return mux
}

func (r *Runtime) staleAfter() time.Duration {
	return time.Duration(r.cfg.HeartbeatStaleSec) * time.Second
}

// Ask answers one question through the same dispatcher the connector uses.
func (r *Runtime) Ask(ctx context.Context, userID, question string, replier mention.Replier) mention.Outcome {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "local"
	}
	return r.dispatcher.HandleCommand(ctx, mention.CommandRequest{
		Command: CommandAsk,
		UserID:  userID,
		Prompt:  question,
	}, replier)
}

func (r *Runtime) Store() *store.Store {
	return r.store
}

func newResponder(cfg config.Config, logger *slog.Logger) llm.Responder {
	timeout := time.Duration(cfg.LLMTimeoutSec) * time.Second
	switch cfg.LLMProvider {
	case "openai":
		return openaiResponder(cfg, timeout, logger)
	case "anthropic":
		if cfg.LLMAPIKey == "" {
			logger.Warn("llm disabled, anthropic api key missing")
			return nil
		}
		return anthropicResponder(cfg, timeout, logger)
	default:
		if cfg.LLMAPIKey == "" {
			logger.Warn("llm disabled, gemini api key missing")
			return nil
		}
		return geminiResponder(cfg, timeout, logger)
	}
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
