// Package keepalive pings the service's own public URL so that hosts which
// idle inactive instances keep it warm.
package keepalive

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultInterval = 14 * time.Minute

type Pinger struct {
	url      string
	interval time.Duration
	client   *http.Client
	clock    clockwork.Clock
	logger   *slog.Logger
}

// NewPinger returns a pinger for url. A nil client uses a 10s timeout
// client and a nil clock means wall time.
func NewPinger(url string, interval time.Duration, client *http.Client, clock clockwork.Clock, logger *slog.Logger) *Pinger {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Pinger{url: url, interval: interval, client: client, clock: clock, logger: logger.With("component", "keepalive")}
}

// Run pings on every tick until ctx is cancelled.
func (p *Pinger) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			p.ping(ctx)
		}
	}
}

func (p *Pinger) ping(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.logger.Error("bad keep-alive url", "url", p.url, "err", err)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("keep-alive ping failed", "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	p.logger.Debug("keep-alive ping", "status", resp.StatusCode)
}
