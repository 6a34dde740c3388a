package connectors

import (
	"context"

	"github.com/dwizi/einstein/internal/heartbeat"
)

// Connector is a chat platform session the runtime supervises. Start blocks
// until ctx is done and returns nil on a clean shutdown.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
	SetHeartbeatReporter(reporter heartbeat.Reporter)
}
