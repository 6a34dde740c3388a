package app

import (
	"log/slog"
	"time"

	"github.com/dwizi/einstein/internal/config"
	"github.com/dwizi/einstein/internal/llm"
	"github.com/dwizi/einstein/internal/llm/anthropic"
	"github.com/dwizi/einstein/internal/llm/gemini"
	"github.com/dwizi/einstein/internal/llm/openai"
)

func geminiResponder(cfg config.Config, timeout time.Duration, logger *slog.Logger) llm.Responder {
	return gemini.New(gemini.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: timeout,
	}, logger)
}

func openaiResponder(cfg config.Config, timeout time.Duration, logger *slog.Logger) llm.Responder {
	return openai.New(openai.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: timeout,
	}, logger)
}

func anthropicResponder(cfg config.Config, timeout time.Duration, logger *slog.Logger) llm.Responder {
	return anthropic.New(anthropic.Config{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMBaseURL,
		Model:   cfg.LLMModel,
		Timeout: timeout,
	}, logger)
}
