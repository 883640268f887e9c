package session

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper expires due rooms and purges old messages on a fixed interval
type Sweeper struct {
	c        *Coordinator
	interval time.Duration
	log      *slog.Logger
	extra    []func(ctx context.Context)
}

func NewSweeper(c *Coordinator, interval time.Duration, log *slog.Logger, extra ...func(ctx context.Context)) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{c: c, interval: interval, log: log, extra: extra}
}

// Run blocks until ctx is done
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("sweeper started", "interval", s.interval)

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return nil
		}
	}
}

// Sweep runs one pass. Failures are logged and retried next tick.
func (s *Sweeper) Sweep(ctx context.Context) {
	expired, err := s.c.ExpireDue(ctx)
	if err != nil {
		s.log.Error("failed to expire rooms", "error", err)
	}

	purged, err := s.c.PurgeMessages(ctx)
	if err != nil {
		s.log.Error("failed to purge messages", "error", err)
	}

	for _, fn := range s.extra {
		fn(ctx)
	}

	if expired > 0 || purged > 0 {
		s.log.Info("sweep finished", "expired_rooms", expired, "purged_messages", purged)
	}
}
