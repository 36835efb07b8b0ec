package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically evicts expired sessions from a Store on a cron
// schedule, independent of the opportunistic eviction Store.Create
// performs on every call.
type Sweeper struct {
	store    Store
	logger   *slog.Logger
	cron     *cron.Cron
	schedule string
}

// NewSweeper builds a Sweeper that runs every interval (e.g. "@every
// 1m"). Start must be called to begin the schedule.
func NewSweeper(store Store, interval string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if interval == "" {
		interval = "@every 1m"
	}
	return &Sweeper{
		store:    store,
		logger:   logger.With("component", "session_sweeper"),
		cron:     cron.New(),
		schedule: interval,
	}
}

// Start registers the sweep job and begins the cron scheduler's own
// goroutine.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.schedule, func() {
		removed := s.store.Sweep()
		if removed > 0 {
			s.logger.Info("swept expired sessions", "removed", removed, "remaining", s.store.Len())
		}
	})
	if err != nil {
		return fmt.Errorf("register sweep job: %w", err)
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule, waiting for any in-flight sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
