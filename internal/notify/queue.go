package notify

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/iliyamo/portfolio-backend/internal/queue"
)

// EventPublisher is satisfied by queue.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.OtpRequestedEvent) error
}

// QueueSender hands codes to the broker; the queue consumer mails them.
type QueueSender struct {
	pub   EventPublisher
	ttl   time.Duration
	clock clockwork.Clock
}

func NewQueueSender(pub EventPublisher, ttl time.Duration, clock clockwork.Clock) *QueueSender {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &QueueSender{pub: pub, ttl: ttl, clock: clock}
}

func (s *QueueSender) Send(ctx context.Context, address, code string) error {
	return s.pub.Publish(ctx, queue.OtpRequestedEvent{
		Email:       address,
		Code:        code,
		ExpiresIn:   int(s.ttl.Minutes()),
		RequestedAt: s.clock.Now().UTC(),
	})
}
