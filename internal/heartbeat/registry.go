package heartbeat

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	StateStarting = "starting"
	StateHealthy  = "healthy"
	StateDegraded = "degraded"
	StateDisabled = "disabled"
	StateStopped  = "stopped"
	StateStale    = "stale"
)

type Reporter interface {
	Starting(component, message string)
	Beat(component, message string)
	Degrade(component, message string, err error)
	Disabled(component, message string)
	Stopped(component, message string)
}

type ComponentStatus struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	LastBeatAt time.Time `json:"last_beat_at"`
}

type Snapshot struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Overall     string            `json:"overall"`
	Components  []ComponentStatus `json:"components"`
}

type Registry struct {
	mu         sync.RWMutex
	now        func() time.Time
	components map[string]ComponentStatus
}

func NewRegistry() *Registry {
	return &Registry{
		now:        func() time.Time { return time.Now().UTC() },
		components: map[string]ComponentStatus{},
	}
}

func (r *Registry) Starting(component, message string) {
	r.set(component, StateStarting, message, nil)
}

func (r *Registry) Beat(component, message string) {
	r.set(component, StateHealthy, message, nil)
}

func (r *Registry) Degrade(component, message string, err error) {
	r.set(component, StateDegraded, message, err)
}

func (r *Registry) Disabled(component, message string) {
	r.set(component, StateDisabled, message, nil)
}

func (r *Registry) Stopped(component, message string) {
	r.set(component, StateStopped, message, nil)
}

func (r *Registry) set(component, state, message string, err error) {
	name := strings.ToLower(strings.TrimSpace(component))
	if name == "" {
		return
	}
	status := ComponentStatus{
		Name:       name,
		State:      state,
		Message:    strings.TrimSpace(message),
		LastBeatAt: r.now(),
	}
	if err != nil {
		status.Error = strings.TrimSpace(err.Error())
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if state != StateHealthy {
		if previous, ok := r.components[name]; ok {
			status.LastBeatAt = previous.LastBeatAt
		}
	}
	r.components[name] = status
}

// Snapshot marks healthy or starting components stale once their last beat is
// older than staleAfter. A zero staleAfter disables staleness.
func (r *Registry) Snapshot(staleAfter time.Duration) Snapshot {
	now := r.now()
	r.mu.RLock()
	items := make([]ComponentStatus, 0, len(r.components))
	for _, status := range r.components {
		if staleAfter > 0 && (status.State == StateHealthy || status.State == StateStarting) && now.Sub(status.LastBeatAt) > staleAfter {
			status.State = StateStale
		}
		items = append(items, status)
	}
	r.mu.RUnlock()

	sort.Slice(items, func(left, right int) bool {
		return items[left].Name < items[right].Name
	})
	return Snapshot{
		GeneratedAt: now,
		Overall:     overall(items),
		Components:  items,
	}
}

func overall(items []ComponentStatus) string {
	if len(items) == 0 {
		return "unknown"
	}
	starting := false
	active := false
	for _, item := range items {
		switch item.State {
		case StateDegraded, StateStale:
			return StateDegraded
		case StateStarting:
			starting = true
			active = true
		case StateHealthy:
			active = true
		}
	}
	if starting {
		return StateStarting
	}
	if !active {
		return "idle"
	}
	return StateHealthy
}

// Handler serves the current snapshot as JSON. Degraded runtimes answer 503.
func (r *Registry) Handler(staleAfter time.Duration) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		snapshot := r.Snapshot(staleAfter)
		w.Header().Set("Content-Type", "application/json")
		if snapshot.Overall == StateDegraded {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(snapshot)
	})
}
