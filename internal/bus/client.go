// Package bus wraps the NATS connection used for in-vehicle messaging:
// media-session signals flow in from the car platform, wake and ducking
// notifications flow out to diagnostics and UI consumers.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bluehawana/carbot-js-ai-sub001/internal/config"
)

const connectTimeout = 5 * time.Second

// Client wraps a NATS connection with minimal JSON publish/subscribe
// helpers. A nil *Client is safe to use everywhere and turns all operations
// into no-ops, so components work unchanged without a bus (tests, bench
// rigs).
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

// Connect dials the configured NATS server.
func Connect(cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("carbot"),
		nats.Timeout(connectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to %q: %w", cfg.URL, err)
	}
	log.Info("connected to NATS", slog.String("url", cfg.URL))
	return &Client{conn: conn, log: log}, nil
}

// Close drains and closes the connection.
func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	_ = c.conn.Drain()
	c.conn.Close()
}

// Healthy reports whether the connection is established.
func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// Conn exposes the raw connection for subscribers.
func (c *Client) Conn() *nats.Conn {
	if c == nil {
		return nil
	}
	return c.conn
}

// PublishJSON marshals v and publishes it on subject. Publish failures are
// logged, not returned: bus notifications are observability surface, and a
// flaky gateway must not fail a speech transaction.
func (c *Client) PublishJSON(subject string, v any) {
	if c == nil || c.conn == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("bus: marshal message", "subject", subject, "err", err)
		return
	}
	if err := c.conn.Publish(subject, data); err != nil {
		c.log.Warn("bus: publish", "subject", subject, "err", err)
	}
}

// SubscribeJSON subscribes to subject and decodes each message into a fresh
// T before invoking handler. Undecodable messages are logged and dropped.
func SubscribeJSON[T any](c *Client, subject string, handler func(T)) (*nats.Subscription, error) {
	if c == nil || c.conn == nil {
		return nil, nil
	}
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		var v T
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			c.log.Warn("bus: decode message", "subject", subject, "err", err)
			return
		}
		handler(v)
	})
	if err != nil {
		return nil, fmt.Errorf("bus: subscribe %q: %w", subject, err)
	}
	return sub, nil
}
