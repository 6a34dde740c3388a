package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dwizi/einstein/internal/cooldown"
	"github.com/dwizi/einstein/internal/heartbeat"
)

const sweeperComponent = "cooldown-sweeper"

var sweepScheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// cooldownSweeper evicts cooldown entries that are long past their window so
// the gate does not grow with every user ever seen.
type cooldownSweeper struct {
	gate      *cooldown.Gate
	schedule  string
	retention time.Duration
	logger    *slog.Logger
	reporter  heartbeat.Reporter
}

func (s *cooldownSweeper) Start(ctx context.Context) error {
	schedule, err := sweepScheduleParser.Parse(strings.TrimSpace(s.schedule))
	if err != nil {
		return fmt.Errorf("parse cooldown sweep schedule %q: %w", s.schedule, err)
	}
	scheduler := cron.New()
	scheduler.Schedule(schedule, cron.FuncJob(s.sweep))
	scheduler.Start()
	s.logger.Info("cooldown sweeper started", "schedule", s.schedule, "retention", s.retention.String())

	<-ctx.Done()
	<-scheduler.Stop().Done()
	s.logger.Info("cooldown sweeper stopped")
	return nil
}

func (s *cooldownSweeper) sweep() {
	evicted := s.gate.Sweep(s.retention)
	if s.reporter != nil {
		s.reporter.Beat(sweeperComponent, fmt.Sprintf("evicted %d entries", evicted))
	}
	s.logger.Debug("cooldown sweep finished", "evicted", evicted, "remaining", s.gate.Len())
}
