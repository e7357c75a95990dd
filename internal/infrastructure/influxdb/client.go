package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client records callback latencies, transition durations and DVFS steps.
// Writes are batched and never block the caller; failures are reported
// through the SetOnError callback.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	connected atomic.Bool
	dropped   atomic.Uint64

	mu      sync.Mutex
	onError func(err error)
}

// Option adjusts the client at connect time.
type Option func(*influxdb2.Options)

// WithDefaultTag adds a tag to every point, such as the site ID.
func WithDefaultTag(key, value string) Option {
	return func(o *influxdb2.Options) { o.AddDefaultTag(key, value) }
}

// Connect pings the server and sets up the batching write API.
//
// Parameters:
//   - cfg: InfluxDB configuration from config.yaml
//   - opts: Extra client options
//
// Returns:
//   - *Client: Connected client
//   - error: ErrDisabled, or ErrConnectionFailed if the ping fails
func Connect(cfg config.InfluxDBConfig, opts ...Option) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive
	options := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(time.Duration(flush) * time.Second / time.Millisecond)).
		SetPrecision(time.Microsecond)
	for _, o := range opts {
		o(options)
	}
	ic := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	if err := ping(ctx, ic); err != nil {
		ic.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		client:   ic,
		writeAPI: ic.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.connected.Store(true)
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

// ConnectWithRetry calls Connect with exponential backoff until it
// succeeds, attempts are exhausted, or ctx is cancelled. ErrDisabled is
// returned immediately.
//
// Parameters:
//   - ctx: Stops retrying when cancelled
//   - cfg: InfluxDB configuration from config.yaml
//   - attempts: Maximum number of attempts; zero retries until ctx is done
//   - opts: Passed to Connect
//
// Returns:
//   - *Client: Connected client
//   - error: The last connection error
func ConnectWithRetry(ctx context.Context, cfg config.InfluxDBConfig, attempts int, opts ...Option) (*Client, error) {
	var client *Client
	op := func() error {
		c, err := Connect(cfg, opts...)
		if errors.Is(err, ErrDisabled) {
			return backoff.Permanent(err)
		}
		if err != nil {
			return err
		}
		client = c
		return nil
	}

	var policy backoff.BackOff = backoff.NewExponentialBackOff()
	if attempts > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(attempts-1))
	}
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return client, nil
}

func ping(ctx context.Context, ic influxdb2.Client) error {
	healthy, err := ic.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.Lock()
		fn := c.onError
		c.mu.Unlock()
		if fn != nil {
			fn(err)
		}
	}
}

// write queues p, or counts it as dropped after Close.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		c.dropped.Add(1)
		return
	}
	c.writeAPI.WritePoint(p)
}

// Close flushes pending points and closes the client. It is safe on a
// zero Client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.connected.Swap(false) {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := ping(ctx, c.client); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// IsConnected reports whether the client accepts writes.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Dropped returns the number of points discarded because the client was
// closed.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush blocks until every queued point has been sent. It does nothing
// after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writeAPI.Flush()
	}
}
