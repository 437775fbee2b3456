// Package natsclient wraps the NATS JetStream connection used for
// fire-and-forget notification publishing.
package natsclient

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Config holds NATS connection settings.
type Config struct {
	URL  string
	Name string // connection name shown in server monitoring
}

// Client is a publishing-only JetStream client.
type Client struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// Connect dials the NATS server and initializes a JetStream context.
func Connect(cfg Config) (*Client, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Client{conn: conn, js: js}, nil
}

// Publish sends data to a subject, waiting for JetStream acknowledgement.
func (c *Client) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := c.js.Publish(subject, data, nats.Context(ctx))
	return err
}

// Close drains in-flight messages and closes the connection.
func (c *Client) Close() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Drain()
}
