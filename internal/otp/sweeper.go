package otp

import (
	"context"
	"log/slog"
	"time"
)

const DefaultSweepInterval = time.Hour

// Sweeper calls Store.Sweep on a fixed interval until its context ends.
type Sweeper struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(store *Store, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: store, interval: interval, logger: logger.With("component", "otp-sweeper")}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.store.clock.NewTicker(s.interval)
	defer ticker.Stop()
	s.logger.Info("sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-ticker.Chan():
			n, err := s.store.Sweep(ctx)
			if err != nil {
				s.logger.Warn("sweep failed", "removed", n, "err", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired codes removed", "removed", n)
			}
		}
	}
}
