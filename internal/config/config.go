package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Environment string
	HTTPAddr    string
	DataDir     string
	DBPath      string
	PromptsFile string

	DiscordToken         string
	DiscordAPIBase       string
	DiscordGatewayURL    string
	DiscordApplicationID string
	DiscordCommandGuilds []string
	CommandSyncEnabled   bool

	LLMProvider   string
	LLMBaseURL    string
	LLMAPIKey     string
	LLMModel      string
	LLMTimeoutSec int

	CooldownSeconds         float64
	CooldownSweepSchedule   string
	CooldownRetentionFactor int

	ContextMaxMessages int
	ContextMaxChars    int
	HistoryMaxChars    int
	GenerateTimeoutSec int

	HeartbeatEnabled     bool
	HeartbeatIntervalSec int
	HeartbeatStaleSec    int
}

func FromEnv() Config {
	dataDir := stringOrDefault("EINSTEIN_DATA_DIR", "/data")
	dbPath := stringOrDefault("EINSTEIN_DB_PATH", filepath.Join(dataDir, "einstein", "interactions.sqlite"))
	provider := providerOrDefault("EINSTEIN_LLM_PROVIDER", "gemini")

	return Config{
		Environment: stringOrDefault("EINSTEIN_ENV", "development"),
		HTTPAddr:    stringOrDefault("EINSTEIN_HTTP_ADDR", ":8080"),
		DataDir:     dataDir,
		DBPath:      dbPath,
		PromptsFile: strings.TrimSpace(os.Getenv("EINSTEIN_PROMPTS_FILE")),

		DiscordToken:         firstNonEmpty(os.Getenv("EINSTEIN_DISCORD_TOKEN"), os.Getenv("DISCORD_TOKEN")),
		DiscordAPIBase:       stringOrDefault("EINSTEIN_DISCORD_API_BASE", "https://discord.com/api/v10"),
		DiscordGatewayURL:    stringOrDefault("EINSTEIN_DISCORD_GATEWAY_URL", "wss://gateway.discord.gg/?v=10&encoding=json"),
		DiscordApplicationID: strings.TrimSpace(os.Getenv("EINSTEIN_DISCORD_APPLICATION_ID")),
		DiscordCommandGuilds: csvList(os.Getenv("EINSTEIN_DISCORD_COMMAND_GUILD_IDS")),
		CommandSyncEnabled:   boolOrDefault("EINSTEIN_COMMAND_SYNC_ENABLED", true),

		LLMProvider:   provider,
		LLMBaseURL:    strings.TrimSpace(os.Getenv("EINSTEIN_LLM_BASE_URL")),
		LLMAPIKey:     llmAPIKey(provider),
		LLMModel:      stringOrDefault("EINSTEIN_LLM_MODEL", defaultModel(provider)),
		LLMTimeoutSec: intOrDefault("EINSTEIN_LLM_TIMEOUT_SECONDS", 60),

		CooldownSeconds:         floatOrDefault("EINSTEIN_COOLDOWN_SECONDS", 5),
		CooldownSweepSchedule:   stringOrDefault("EINSTEIN_COOLDOWN_SWEEP_SCHEDULE", "@every 10m"),
		CooldownRetentionFactor: intOrDefault("EINSTEIN_COOLDOWN_RETENTION_FACTOR", 10),

		ContextMaxMessages: intOrDefault("EINSTEIN_CONTEXT_MAX_MESSAGES", 50),
		ContextMaxChars:    intOrDefault("EINSTEIN_CONTEXT_MAX_CHARS", 2000),
		HistoryMaxChars:    intOrDefault("EINSTEIN_HISTORY_MAX_CHARS", 8000),
		GenerateTimeoutSec: intOrDefault("EINSTEIN_GENERATE_TIMEOUT_SECONDS", 90),

		HeartbeatEnabled:     boolOrDefault("EINSTEIN_HEARTBEAT_ENABLED", true),
		HeartbeatIntervalSec: intOrDefault("EINSTEIN_HEARTBEAT_INTERVAL_SECONDS", 30),
		HeartbeatStaleSec:    intOrDefault("EINSTEIN_HEARTBEAT_STALE_SECONDS", 120),
	}
}

// llmAPIKey prefers the explicit key and falls back to the provider's
// conventional variable name.
func llmAPIKey(provider string) string {
	explicit := os.Getenv("EINSTEIN_LLM_API_KEY")
	switch provider {
	case "openai":
		return firstNonEmpty(explicit, os.Getenv("OPENAI_API_KEY"))
	case "anthropic":
		return firstNonEmpty(explicit, os.Getenv("ANTHROPIC_API_KEY"))
	default:
		return firstNonEmpty(explicit, os.Getenv("GEMINI_API_KEY"))
	}
}

func defaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	default:
		return "gemini-2.0-flash"
	}
}

func providerOrDefault(name, fallback string) string {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	switch value {
	case "gemini", "openai", "anthropic":
		return value
	default:
		return fallback
	}
}

func stringOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func intOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}

func boolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func floatOrDefault(name string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func csvList(raw string) []string {
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
