package natsclient

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/wahidkadwaikar/sync-storage/errors"
)

// Client manages one NATS connection and its JetStream context.
type Client struct {
	url           string
	clientName    string
	timeout       time.Duration
	maxReconnects int
	reconnectWait time.Duration
	username      string
	password      string
	token         string
	logger        *slog.Logger

	mu   sync.Mutex
	conn *nats.Conn
	js   jetstream.JetStream
}

// New builds an unconnected client for the given server URL. Call Connect
// before using it.
func New(url string, opts ...Option) (*Client, error) {
	c := &Client{
		url:           url,
		clientName:    "sync-storage",
		timeout:       5 * time.Second,
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.Wrap(err, "natsclient", "New", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	return c, nil
}

// Connect dials the server and creates the JetStream context. Safe to call
// once; a second call on a live connection is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "natsclient", "Connect", "context check")
	}

	// The dial itself is bounded by the configured timeout; honour an
	// earlier context deadline when the caller set one.
	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.Timeout(timeout),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.logger.Info("nats connection closed")
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return errors.Wrap(err, "natsclient", "Connect", "dial server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.Wrap(err, "natsclient", "Connect", "create jetstream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("nats connected", "url", conn.ConnectedUrl())
	return nil
}

// EnsureKeyValue returns the named KV bucket, creating it when absent.
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.Lock()
	js := c.js
	c.mu.Unlock()
	if js == nil {
		return nil, errors.New(errors.KindInternal, "natsclient", "EnsureKeyValue", "not connected")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "natsclient", "EnsureKeyValue", "provision bucket")
	}
	return kv, nil
}

// IsConnected reports whether the underlying connection is live.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && c.conn.IsConnected()
}

// RTT measures a round trip to the server.
func (c *Client) RTT() (time.Duration, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return 0, errors.New(errors.KindInternal, "natsclient", "RTT", "not connected")
	}
	return conn.RTT()
}

// Conn exposes the raw connection for tests and advanced callers.
func (c *Client) Conn() *nats.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// Close drains and closes the connection. Idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
	c.conn = nil
	c.js = nil
	return nil
}
