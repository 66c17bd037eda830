// Package notify delivers one-time codes out of band. Delivery failures are
// surfaced to the operator via logs only: the persisted code stays valid, and
// no retry happens at this layer.
package notify

import (
	"context"
	"log/slog"
	"strings"
)

// Sender performs out-of-band delivery of a one-time code to a channel (an
// email address or a phone number).
type Sender interface {
	Deliver(ctx context.Context, channel, code string) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, channel, code string) error

func (f SenderFunc) Deliver(ctx context.Context, channel, code string) error {
	return f(ctx, channel, code)
}

// Router dispatches to the email or SMS sender based on the channel shape.
type Router struct {
	email Sender
	sms   Sender
}

// NewRouter builds a channel router. Either sender may be nil; delivery to a
// channel without a configured sender returns nil after logging would have
// happened upstream — the code remains claimable via support channels.
func NewRouter(email, sms Sender) *Router {
	return &Router{email: email, sms: sms}
}

func (r *Router) Deliver(ctx context.Context, channel, code string) error {
	if strings.Contains(channel, "@") {
		if r.email == nil {
			return nil
		}
		return r.email.Deliver(ctx, channel, code)
	}
	if r.sms == nil {
		return nil
	}
	return r.sms.Deliver(ctx, channel, code)
}

// LogSender writes codes to the structured log instead of delivering them.
// Development and test use only.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Deliver(ctx context.Context, channel, code string) error {
	s.logger.InfoContext(ctx, "one-time code generated (log delivery)",
		"channel", channel,
		"code", code,
	)
	return nil
}
