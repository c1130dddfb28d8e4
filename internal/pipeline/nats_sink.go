package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	natsConnectTimeout   = 5 * time.Second
	natsReconnectBufSize = 256 * 1024
)

// publisher is the subset of *nats.Conn used by NATSSink.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes sample events as JSON to a NATS subject.
// Params: connection and subject.
// Returns: event sink implementation.
type NATSSink struct {
	pub       publisher
	subject   string
	closeFn   func()
	closeOnce sync.Once
}

// NewNATSSink connects to NATS and returns a publishing sink.
// An unreachable server does not fail construction: the client keeps
// retrying in background and buffers publishes until the buffer is full.
// Params: url server URL; subject publish subject; name connection name; logger connection diagnostics.
// Returns: sink or error for malformed URLs.
func NewNATSSink(url, subject, name string, logger *slog.Logger) (*NATSSink, error) {
	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(natsConnectTimeout),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectBufSize(natsReconnectBufSize),
		nats.ConnectHandler(func(c *nats.Conn) {
			logger.Info("nats connected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %q: %w", url, err)
	}

	return newNATSSinkWithPublisher(conn, subject, conn.Close), nil
}

// newNATSSinkWithPublisher builds sink over an existing publisher.
// Params: pub message publisher; subject target subject; closeFn optional release hook.
// Returns: sink instance.
func newNATSSinkWithPublisher(pub publisher, subject string, closeFn func()) *NATSSink {
	return &NATSSink{
		pub:     pub,
		subject: strings.TrimSpace(subject),
		closeFn: closeFn,
	}
}

// Consume publishes one event.
// Params: ctx is checked for cancellation; event payload.
// Returns: marshal or publish error.
func (s *NATSSink) Consume(ctx context.Context, event Event) error {
	if ctx != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.pub.Publish(s.subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

// Close releases the NATS connection.
// Params: none.
// Returns: none.
func (s *NATSSink) Close() {
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}
