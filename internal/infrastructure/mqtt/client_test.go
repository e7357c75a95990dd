package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
)

// testConfig returns an MQTT configuration pointing at a port nothing
// listens on. None of these tests need a broker.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1,
			ClientID: "dpmcore-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
			MaxAttempts:  1,
		},
	}
}

// disconnectedClient returns a client that was never connected.
func disconnectedClient() *Client {
	return newClient(testConfig())
}

type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) counts() (errs, warns int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors), len(l.warns)
}

// fakeMessage implements pahomqtt.Message.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

// ─── Topics ───────────────────────────────────────────────────────

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"Event", Topics{}.Event("callback"), "dpmcore/events/callback"},
		{"Command", Topics{}.Command("transition"), "dpmcore/command/transition"},
		{"SystemStatus", Topics{}.SystemStatus(), "dpmcore/system/status"},
		{"AllEvents", Topics{}.AllEvents(), "dpmcore/events/#"},
		{"AllCommands", Topics{}.AllCommands(), "dpmcore/command/+"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.want)
			}
		})
	}
}

// ─── Options ──────────────────────────────────────────────────────

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.Port = 1883
	cfg.Auth.Username = "dpm"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg, "bench-1")
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "bench-1" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "dpm" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect || opts.ConnectRetry {
		t.Errorf("AutoReconnect = %v, ConnectRetry = %v, want true/false", opts.AutoReconnect, opts.ConnectRetry)
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}

	cfg.Broker.TLS = true
	opts = buildClientOptions(cfg, "bench-1")
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not set")
	}
}

func TestBuildClientOptions_Will(t *testing.T) {
	opts := buildClientOptions(testConfig(), "bench-1")

	if !opts.WillEnabled || opts.WillTopic != "dpmcore/system/status" || !opts.WillRetained {
		t.Errorf("will = enabled:%v topic:%q retained:%v", opts.WillEnabled, opts.WillTopic, opts.WillRetained)
	}
	var will statusMessage
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload is not JSON: %v", err)
	}
	if will.Status != statusOffline || will.Reason != reasonConnection || will.ClientID != "bench-1" {
		t.Errorf("will = %+v", will)
	}
}

func TestStatusPayload(t *testing.T) {
	var m statusMessage
	if err := json.Unmarshal(statusPayload("dpm-1", statusOnline, ""), &m); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if m.Status != statusOnline || m.ClientID != "dpm-1" || m.Timestamp == "" || m.Reason != "" {
		t.Errorf("payload = %+v", m)
	}
}

func TestResolveClientID(t *testing.T) {
	cfg := testConfig()
	if got := resolveClientID(cfg); got != "dpmcore-test" {
		t.Errorf("resolveClientID() = %q", got)
	}
	cfg.Broker.ClientID = ""
	if got := resolveClientID(cfg); !strings.HasPrefix(got, "dpmcore-") || got == "dpmcore-" {
		t.Errorf("resolveClientID() without ID = %q", got)
	}
}

// ─── Publish / Subscribe validation ──────────────────────────────

func TestPublish_Validation(t *testing.T) {
	c := disconnectedClient()
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", []byte("x"), 1, ErrInvalidTopic},
		{"wildcard topic", "dpmcore/events/+", []byte("x"), 1, ErrInvalidTopic},
		{"invalid qos", "dpmcore/events/x", []byte("x"), 3, ErrInvalidQoS},
		{"oversized payload", "dpmcore/events/x", make([]byte, maxPayloadSize+1), 1, ErrPayloadTooLarge},
		{"not connected", "dpmcore/events/x", []byte("x"), 1, ErrNotConnected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPublishEvent(t *testing.T) {
	c := disconnectedClient()

	if err := c.PublishEvent("dvfs", map[string]int{"step": 1}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishEvent() error = %v, want ErrNotConnected", err)
	}
	err := c.PublishEvent("dvfs", make(chan int))
	if !errors.Is(err, ErrPublishFailed) || !strings.Contains(err.Error(), "dvfs") {
		t.Errorf("PublishEvent(chan) error = %v, want ErrPublishFailed", err)
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := disconnectedClient()
	handler := func(string, []byte) error { return nil }

	if err := c.Subscribe("", 1, handler); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v", err)
	}
	if err := c.Subscribe("dpmcore/command/+", 3, handler); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("invalid qos error = %v", err)
	}
	if err := c.Subscribe("dpmcore/command/+", 1, nil); !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("nil handler error = %v", err)
	}
	if err := c.Subscribe("dpmcore/command/+", 1, handler); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected error = %v", err)
	}
	if c.HasSubscription("dpmcore/command/+") {
		t.Error("failed subscribe was tracked")
	}
}

func TestValidateFilter(t *testing.T) {
	tests := []struct {
		filter string
		valid  bool
	}{
		{"dpmcore/command/+", true},
		{"dpmcore/events/#", true},
		{"#", true},
		{"+/status", true},
		{"dpmcore/command/transition", true},
		{"", false},
		{"dpmcore/#/x", false},
		{"dpmcore/cmd+", false},
		{"dpmcore/ev#", false},
	}
	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			err := validateFilter(tt.filter)
			if (err == nil) != tt.valid {
				t.Errorf("validateFilter(%q) = %v, want valid=%v", tt.filter, err, tt.valid)
			}
			if err != nil && !errors.Is(err, ErrInvalidTopic) {
				t.Errorf("error = %v, want ErrInvalidTopic", err)
			}
		})
	}
}

// ─── Handler wrapping ─────────────────────────────────────────────

func TestWrapHandler(t *testing.T) {
	c := disconnectedClient()
	logger := &mockLogger{}
	c.SetLogger(logger)

	var got string
	ok := c.wrapHandler(func(topic string, payload []byte) error {
		got = topic + "=" + string(payload)
		return nil
	})
	ok(nil, fakeMessage{topic: "dpmcore/command/dvfs", payload: []byte(`{}`)})
	if got != "dpmcore/command/dvfs={}" {
		t.Errorf("handler saw %q", got)
	}

	failing := c.wrapHandler(func(string, []byte) error { return errors.New("boom") })
	failing(nil, fakeMessage{topic: "t"})

	panicking := c.wrapHandler(func(string, []byte) error { panic("bad") })
	panicking(nil, fakeMessage{topic: "t"})

	errs, warns := logger.counts()
	if errs != 1 || warns != 1 {
		t.Errorf("logged errors=%d warns=%d, want 1 and 1", errs, warns)
	}
}

func TestClient_NilLogger(t *testing.T) {
	c := disconnectedClient()
	c.SetLogger(nil)
	if _, ok := c.log().(noopLogger); !ok {
		t.Errorf("log() = %T after SetLogger(nil), want noopLogger", c.log())
	}
	// Must not panic without a logger.
	c.wrapHandler(func(string, []byte) error { panic("bad") })(nil, fakeMessage{topic: "t"})
}

// ─── Connection ───────────────────────────────────────────────────

func TestIsConnected_InitialState(t *testing.T) {
	if disconnectedClient().IsConnected() {
		t.Error("IsConnected() = true for a client that never connected")
	}
}

func TestStats(t *testing.T) {
	c := disconnectedClient()
	_ = c.Publish("dpmcore/events/x", []byte("x"), 1, false)

	st := c.Stats()
	if st.Connected || st.ClientID != "dpmcore-test" {
		t.Errorf("Stats() = %+v", st)
	}
	if st.Published != 0 || st.Failed != 0 {
		t.Errorf("rejected publish was counted: %+v", st)
	}
}

func TestHealthCheck_Disconnected(t *testing.T) {
	c := disconnectedClient()
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v", err)
	}
}

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestConnect_BrokerRefused(t *testing.T) {
	_, err := Connect(testConfig())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 2
	logger := &mockLogger{}

	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), cfg, logger)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("ConnectWithRetry() error = %v, want ErrConnectionFailed", err)
	}
	if _, warns := logger.counts(); warns != 2 {
		t.Errorf("attempts logged = %d, want 2", warns)
	}
	if time.Since(start) > 30*time.Second {
		t.Error("ConnectWithRetry() took too long")
	}
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 0

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := ConnectWithRetry(ctx, cfg, nil); err == nil {
		t.Fatal("ConnectWithRetry() with cancelled context should fail")
	}
}

func TestRetryPolicy(t *testing.T) {
	rc := config.MQTTReconnectConfig{InitialDelay: 2, MaxDelay: 4, MaxAttempts: 3}
	b := retryPolicy(context.Background(), rc)
	b.Reset()

	var n int
	for b.NextBackOff() != backoff.Stop {
		n++
		if n > 10 {
			break
		}
	}
	if n != 2 {
		t.Errorf("retries = %d, want 2 (3 attempts)", n)
	}
}
