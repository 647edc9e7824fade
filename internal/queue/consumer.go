package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrEventExpired marks an event whose code expired before it was consumed.
var ErrEventExpired = errors.New("otp event expired")

// Deliverer hands a code to the user, typically over SMTP.
type Deliverer interface {
	Send(ctx context.Context, address, code string) error
}

// Consumer reads OTP events and delivers them. It reconnects with
// exponential backoff until its context is cancelled.
type Consumer struct {
	url         string
	queue       string
	deliver     Deliverer
	sendTimeout time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
}

func NewConsumer(url, queue string, deliver Deliverer, sendTimeout time.Duration, logger *slog.Logger) *Consumer {
	if queue == "" {
		queue = DefaultOtpQueue
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Consumer{url: url, queue: queue, deliver: deliver, sendTimeout: sendTimeout,
		clock: clockwork.NewRealClock(), logger: logger.With("component", "otp-consumer")}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("failed to dial broker", "err", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("set QoS failed", "err", err)
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			err := c.handle(ctx, d.Body)
			if errors.Is(err, ErrEventExpired) {
				c.logger.Info("dropping expired otp event", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			if err != nil {
				c.logger.Warn("handle message failed", "err", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var ev OtpRequestedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Email == "" || ev.Code == "" {
		return errors.New("event without email or code")
	}
	if ev.ExpiresIn > 0 && !ev.RequestedAt.IsZero() {
		deadline := ev.RequestedAt.Add(time.Duration(ev.ExpiresIn) * time.Minute)
		if !c.clock.Now().Before(deadline) {
			return fmt.Errorf("%w: %s requested at %s", ErrEventExpired, ev.Email, ev.RequestedAt.Format(time.RFC3339))
		}
	}
	sendCtx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	if err := c.deliver.Send(sendCtx, ev.Email, ev.Code); err != nil {
		return fmt.Errorf("deliver to %s: %w", ev.Email, err)
	}
	c.logger.Info("otp delivered", "email", ev.Email)
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
