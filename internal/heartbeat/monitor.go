package heartbeat

import (
	"context"
	"log/slog"
	"time"
)

type Transition struct {
	Component string
	FromState string
	ToState   string
	Message   string
	Error     string
}

type MonitorConfig struct {
	Interval     time.Duration
	StaleAfter   time.Duration
	Logger       *slog.Logger
	OnTransition func(context.Context, Transition)
}

// Monitor polls a registry and reports component state changes.
type Monitor struct {
	registry *Registry
	cfg      MonitorConfig
	previous map[string]string
}

func NewMonitor(registry *Registry, cfg MonitorConfig) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Monitor{registry: registry, cfg: cfg, previous: map[string]string{}}
}

func (m *Monitor) Start(ctx context.Context) error {
	if m.registry == nil {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	m.cfg.Logger.Info("heartbeat monitor started", "interval", m.cfg.Interval.String(), "stale_after", m.cfg.StaleAfter.String())
	for {
		m.evaluate(ctx)
		select {
		case <-ctx.Done():
			m.cfg.Logger.Info("heartbeat monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) evaluate(ctx context.Context) {
	for _, item := range m.registry.Snapshot(m.cfg.StaleAfter).Components {
		before, seen := m.previous[item.Name]
		m.previous[item.Name] = item.State
		if !seen || before == item.State {
			continue
		}
		transition := Transition{
			Component: item.Name,
			FromState: before,
			ToState:   item.State,
			Message:   item.Message,
			Error:     item.Error,
		}
		if IsDegradedState(item.State) {
			m.cfg.Logger.Warn("component degraded", "component", item.Name, "from", before, "to", item.State, "error", item.Error)
		} else {
			m.cfg.Logger.Info("component state changed", "component", item.Name, "from", before, "to", item.State)
		}
		if m.cfg.OnTransition != nil {
			m.cfg.OnTransition(ctx, transition)
		}
	}
}

func IsDegradedState(state string) bool {
	return state == StateDegraded || state == StateStale
}
