package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher dials the broker per publish. OTP traffic is low and a short
// lived connection keeps the request path free of reconnect state.
type Publisher struct {
	url         string
	queue       string
	dialTimeout time.Duration
	logger      *slog.Logger
}

func NewPublisher(url, queue string, dialTimeout time.Duration, logger *slog.Logger) *Publisher {
	if queue == "" {
		queue = DefaultOtpQueue
	}
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	return &Publisher{url: url, queue: queue, dialTimeout: dialTimeout, logger: logger.With("component", "otp-publisher")}
}

// Publish sends a persistent JSON message to the OTP queue.
func (p *Publisher) Publish(ctx context.Context, ev OtpRequestedEvent) error {
	conn, err := amqp.DialConfig(p.url, amqp.Config{Dial: amqp.DefaultDial(p.dialTimeout)})
	if err != nil {
		p.logger.Warn("dial failed", "err", err)
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// durable so messages survive broker restarts
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.logger.Warn("publish failed", "err", err)
		return fmt.Errorf("rabbitmq publish: %w", err)
	}
	return nil
}
