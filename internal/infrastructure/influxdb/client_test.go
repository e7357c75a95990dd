package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/influxdb"
)

// fakeInflux answers /ping and records line protocol posted to
// /api/v2/write.
type fakeInflux struct {
	mu      sync.Mutex
	lines   []string
	healthy bool
}

func (f *fakeInflux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ping", "/health":
		if !f.healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case "/api/v2/write":
		body, _ := io.ReadAll(r.Body) //nolint:errcheck // test server
		f.mu.Lock()
		f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeInflux) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func startFake(t *testing.T, healthy bool) (*fakeInflux, config.InfluxDBConfig) {
	t.Helper()
	fake := &fakeInflux{healthy: healthy}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return fake, config.InfluxDBConfig{
		Enabled:       true,
		URL:           srv.URL,
		Token:         "test-token",
		Org:           "dpmcore",
		Bucket:        "power",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	_, err := influxdb.Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	_, cfg := startFake(t, false)
	_, err := influxdb.Connect(cfg)
	if !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnectWithRetry_Disabled(t *testing.T) {
	start := time.Now()
	_, err := influxdb.ConnectWithRetry(context.Background(), config.InfluxDBConfig{}, 5)
	if !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("ConnectWithRetry() error = %v, want ErrDisabled", err)
	}
	if time.Since(start) > time.Second {
		t.Error("ConnectWithRetry() retried a permanent error")
	}
}

func TestConnectWithRetry_Cancelled(t *testing.T) {
	_, cfg := startFake(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := influxdb.ConnectWithRetry(ctx, cfg, 0); err == nil {
		t.Fatal("ConnectWithRetry() with cancelled context should fail")
	}
}

func TestWriteAndFlush(t *testing.T) {
	fake, cfg := startFake(t, true)
	client, err := influxdb.ConnectWithRetry(context.Background(), cfg, 1, influxdb.WithDefaultTag("site", "bench-1"))
	if err != nil {
		t.Fatalf("ConnectWithRetry() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	at := time.Unix(1700000000, 0)
	client.WriteCallback(influxdb.CallbackSample{
		Device: "mmc0", Driver: "sdhci", Phase: "suspend", Level: "bus",
		Duration: 3 * time.Millisecond, At: at,
	})
	client.WriteTransition("suspend", "ok", 40*time.Millisecond, at)
	client.WriteDVFSStep(influxdb.StepSample{From: 0, To: 1, ClockMHz: 266, VoltageUV: 1000000, Utilisation: 200, Reason: "utilisation", At: at})
	client.Flush()

	lines := fake.written()
	if len(lines) != 3 {
		t.Fatalf("written %d lines, want 3: %q", len(lines), lines)
	}
	for _, l := range lines {
		if !strings.Contains(l, "site=bench-1") {
			t.Errorf("line missing default tag: %q", l)
		}
	}
	for _, prefix := range []string{"dpm_callback,", "dpm_transition,", "dvfs_step,"} {
		found := false
		for _, l := range lines {
			if strings.HasPrefix(l, prefix) {
				found = true
			}
		}
		if !found {
			t.Errorf("no line with prefix %q in %q", prefix, lines)
		}
	}
}

func TestClose(t *testing.T) {
	fake, cfg := startFake(t, true)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close")
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v", err)
	}

	// Writes after Close are dropped.
	client.WriteTransition("suspend", "ok", time.Millisecond, time.Now())
	client.Flush()
	if n := len(fake.written()); n != 0 {
		t.Errorf("written %d lines after Close", n)
	}
	if client.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", client.Dropped())
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestClose_Nil(t *testing.T) {
	client := &influxdb.Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on zero client error = %v", err)
	}
	client.Flush()
}

func TestSetOnError(t *testing.T) {
	_, cfg := startFake(t, true)
	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
	client.SetOnError(func(error) {})
	client.SetOnError(nil)
}
