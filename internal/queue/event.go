// Package queue carries OTP notifications over RabbitMQ: the publisher
// used by the request path and the consumer that delivers queued codes.
package queue

import "time"

// DefaultOtpQueue is the durable queue OTP events are routed to.
const DefaultOtpQueue = "otp.requested"

// OtpRequestedEvent is published when a registration needs a code mailed
// out. It holds everything the consumer needs without touching the database.
type OtpRequestedEvent struct {
	Email       string    `json:"email"`
	Code        string    `json:"code"`
	ExpiresIn   int       `json:"expires_in_minutes"`
	RequestedAt time.Time `json:"requested_at"`
}
