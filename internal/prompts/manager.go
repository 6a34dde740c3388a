package prompts

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dwizi/einstein/internal/threadctx"
)

type Manager struct {
	path   string
	logger *slog.Logger

	mu  sync.RWMutex
	set Set
}

func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	set, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Manager{
		path:   strings.TrimSpace(path),
		logger: logger,
		set:    set,
	}, nil
}

func (m *Manager) Current() Set {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set
}

// Reload swaps in the file's current contents. On error the previous set
// stays active.
func (m *Manager) Reload() error {
	set, err := Load(m.path)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.set = set
	m.mu.Unlock()
	return nil
}

func (m *Manager) SystemPrompt() string {
	return m.Current().System
}

func (m *Manager) RenderPrompt(name, prompt string, history []threadctx.Entry) (string, error) {
	return m.Current().Render(name, prompt, history)
}

func (m *Manager) CooldownMessage(remaining time.Duration) string {
	text, err := m.Current().RenderCooldown(remaining)
	if err != nil {
		m.logger.Error("render cooldown message failed", "error", err)
		return fmt.Sprintf("Please wait %.1f seconds before using this command again.", remaining.Seconds())
	}
	return text
}

func (m *Manager) ErrorMessage(cause error) string {
	text, err := m.Current().RenderError(cause)
	if err != nil || strings.TrimSpace(text) == "" {
		message := "unknown error"
		if cause != nil {
			message = cause.Error()
		}
		return "Error: " + message
	}
	return text
}

func (m *Manager) EmptyPromptMessage() string {
	return m.Current().EmptyPrompt
}

func (m *Manager) EmptyCommandMessage(command string) string {
	text, err := m.Current().RenderEmptyCommand(command)
	if err != nil || strings.TrimSpace(text) == "" {
		return "Please provide some text for the " + strings.TrimSpace(command) + " command."
	}
	return text
}

func (m *Manager) HelpText() string {
	return m.Current().Help
}

func (m *Manager) WelcomeText() string {
	return m.Current().Welcome
}

// Watch reloads the prompts file whenever it changes until ctx is done.
// The parent directory is watched so editors that replace the file by rename
// are still picked up.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(m.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch prompts dir %s: %w", dir, err)
	}
	m.logger.Info("prompts watcher started", "path", m.path)

	target := filepath.Clean(m.path)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("prompts watcher stopped")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := m.Reload(); err != nil {
				m.logger.Error("prompts reload failed, keeping previous prompts", "error", err, "path", m.path)
				continue
			}
			m.logger.Info("prompts reloaded", "path", m.path, "op", event.Op.String())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				m.logger.Error("prompts watcher error", "error", err)
			}
		}
	}
}
