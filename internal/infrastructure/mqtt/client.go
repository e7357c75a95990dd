package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
)

// Logger is the logging the client needs. *logging.Logger satisfies it.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client publishes dpmcore events and receives remote commands.
//
// All methods are safe for concurrent use.
type Client struct {
	client   pahomqtt.Client
	cfg      config.MQTTConfig
	clientID string

	connected atomic.Bool
	published atomic.Uint64
	failed    atomic.Uint64

	mu            sync.Mutex
	subscriptions map[string]subscription
	onConnect     func()
	onDisconnect  func(err error)
	logger        Logger
}

// Stats is a point-in-time view of the client for health reporting.
type Stats struct {
	Connected     bool   `json:"connected"`
	ClientID      string `json:"client_id"`
	Published     uint64 `json:"published"`
	Failed        uint64 `json:"failed"`
	Subscriptions int    `json:"subscriptions"`
}

func newClient(cfg config.MQTTConfig) *Client {
	return &Client{
		cfg:           cfg,
		clientID:      resolveClientID(cfg),
		subscriptions: make(map[string]subscription),
		logger:        noopLogger{},
	}
}

// Connect makes a single connection attempt and announces the client as
// online on dpmcore/system/status.
//
// Parameters:
//   - cfg: MQTT configuration from config.yaml
//
// Returns:
//   - *Client: Connected client; paho reconnects it if the link drops later
//   - error: ErrConnectionFailed if the broker cannot be reached
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := newClient(cfg)

	opts := buildClientOptions(cfg, c.clientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		c.client.Disconnect(0)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnect handler runs asynchronously; callers may publish as
	// soon as Connect returns.
	c.connected.Store(true)
	return c, nil
}

// ConnectWithRetry calls Connect until it succeeds, retrying with
// exponential backoff between cfg.Reconnect.InitialDelay and MaxDelay.
// MaxAttempts bounds the number of attempts; zero retries until ctx is done.
//
// Parameters:
//   - ctx: Stops retrying when cancelled
//   - cfg: MQTT configuration from config.yaml
//   - logger: Receives a warning per failed attempt; may be nil
//
// Returns:
//   - *Client: Connected client
//   - error: The last connection error once retries are exhausted
func ConnectWithRetry(ctx context.Context, cfg config.MQTTConfig, logger Logger) (*Client, error) {
	if logger == nil {
		logger = noopLogger{}
	}

	var (
		client  *Client
		attempt int
	)
	op := func() error {
		attempt++
		c, err := Connect(cfg)
		if err != nil {
			logger.Warn("MQTT connect attempt failed", "attempt", attempt, "error", err)
			return err
		}
		client = c
		return nil
	}

	if err := backoff.Retry(op, retryPolicy(ctx, cfg.Reconnect)); err != nil {
		return nil, err
	}
	client.SetLogger(logger)
	return client, nil
}

// retryPolicy builds the backoff used by ConnectWithRetry.
func retryPolicy(ctx context.Context, rc config.MQTTReconnectConfig) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if rc.InitialDelay > 0 {
		b.InitialInterval = time.Duration(rc.InitialDelay) * time.Second
	}
	if rc.MaxDelay > 0 {
		b.MaxInterval = time.Duration(rc.MaxDelay) * time.Second
	}
	b.MaxElapsedTime = 0

	var policy backoff.BackOff = b
	if rc.MaxAttempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(rc.MaxAttempts-1))
	}
	return backoff.WithContext(policy, ctx)
}

// await waits for a paho token with the default timeout.
func await(t pahomqtt.Token) error {
	if !t.WaitTimeout(defaultTokenTimeout) {
		return fmt.Errorf("timeout after %v", defaultTokenTimeout)
	}
	return t.Error()
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.announce(statusOnline, "")

	c.mu.Lock()
	fn := c.onConnect
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	c.mu.Lock()
	fn := c.onDisconnect
	c.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

// announce publishes the retained status message.
func (c *Client) announce(status, reason string) {
	t := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, statusPayload(c.clientID, status, reason))
	if err := await(t); err != nil {
		c.log().Warn("failed to publish MQTT status", "status", status, "error", err)
	}
}

// Close announces a graceful shutdown and disconnects. It is safe to call
// on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.announce(statusOffline, reasonShutdown)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck returns ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// Stats returns connection and publish counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	subs := len(c.subscriptions)
	c.mu.Unlock()
	return Stats{
		Connected:     c.IsConnected(),
		ClientID:      c.clientID,
		Published:     c.published.Load(),
		Failed:        c.failed.Load(),
		Subscriptions: subs,
	}
}

// SetOnConnect sets a callback run after every (re)connection.
func (c *Client) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the connection is lost.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors. nil discards them.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}
