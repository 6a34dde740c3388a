package cooldown

import (
	"strings"
	"sync"
	"time"
)

const DefaultWindow = 5 * time.Second

type Clock func() time.Time

type Gate struct {
	mu       sync.Mutex
	now      Clock
	lastUsed map[string]time.Time
}

func New(now Clock) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{
		now:      now,
		lastUsed: map[string]time.Time{},
	}
}

// Key joins a user identity and an action name. Actions never share budgets.
func Key(userID, action string) string {
	return strings.TrimSpace(userID) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// CheckAndRecord reports how long the subject still has to wait. A zero
// result means the call was allowed and its time recorded. Denied calls leave
// the stored time untouched.
func (g *Gate) CheckAndRecord(subjectKey string, window time.Duration) time.Duration {
	if window <= 0 {
		window = DefaultWindow
	}
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if last, ok := g.lastUsed[subjectKey]; ok {
		elapsed := now.Sub(last)
		if elapsed < window {
			return window - elapsed
		}
	}
	g.lastUsed[subjectKey] = now
	return 0
}

// Sweep drops entries last used more than olderThan ago and returns how many
// were removed.
func (g *Gate) Sweep(olderThan time.Duration) int {
	if olderThan <= 0 {
		return 0
	}
	cutoff := g.now().Add(-olderThan)

	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for key, last := range g.lastUsed {
		if last.Before(cutoff) {
			delete(g.lastUsed, key)
			removed++
		}
	}
	return removed
}

func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.lastUsed)
}

func (g *Gate) lastUsedAt(subjectKey string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastUsed[subjectKey]
	return last, ok
}
