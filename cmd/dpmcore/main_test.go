package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testManifest = `
devices:
  - name: soc
    driver: soc-bus
  - name: i2c0
    parent: soc
    driver: i2c-s3c
    class: i2c
  - name: mmc0
    parent: soc
    driver: sdhci
    async: true
  - name: gpu
    parent: soc
    driver: mali
`

const failingManifest = `
devices:
  - name: soc
  - name: gpu
    parent: soc
  - name: mmc0
    parent: soc
    fail:
      suspend: EIO
`

// writeFixture writes a manifest and a config pointing at it and returns
// the config path.
func writeFixture(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()

	manifestPath := filepath.Join(dir, "devices.yaml")
	if err := os.WriteFile(manifestPath, []byte(manifest), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	cfg := `
site:
  id: test
power:
  workers: 4
  watchdog_timeout: 5s
  manifest: ` + manifestPath + `
database:
  path: ` + filepath.Join(dir, "dpmcore.db") + `
logging:
  level: error
  output: stderr
`
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return cfgPath
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// ─── validate ───────────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(testManifest), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	out, err := runCmd(t, "validate", "--manifest", path)
	if err != nil {
		t.Fatalf("validate error = %v", err)
	}
	if !strings.Contains(out, "4 devices (1 async) OK") {
		t.Errorf("output = %q", out)
	}
}

func TestValidate_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	bad := "devices:\n  - name: a\n    parent: missing\n"
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}

	if _, err := runCmd(t, "validate", "--manifest", path); err == nil {
		t.Error("validate accepted a manifest with an unknown parent")
	}
}

func TestValidate_MissingFile(t *testing.T) {
	if _, err := runCmd(t, "validate", "--manifest", filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("validate accepted a missing manifest")
	}
}

// ─── cycle ──────────────────────────────────────────────────────────

func TestCycle(t *testing.T) {
	cfgPath := writeFixture(t, testManifest)

	out, err := runCmd(t, "--config", cfgPath, "cycle", "--event", "suspend", "--trace")
	if err != nil {
		t.Fatalf("cycle error = %v\n%s", err, out)
	}

	for _, want := range []string{"transition ", "ok", "prepare", "complete", "mmc0", "gpu", "dvfs:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCycle_Failure(t *testing.T) {
	cfgPath := writeFixture(t, failingManifest)

	out, err := runCmd(t, "--config", cfgPath, "cycle", "--sync")
	if err == nil {
		t.Fatalf("cycle succeeded with a failing device:\n%s", out)
	}
	if !strings.Contains(err.Error(), "suspend failed") {
		t.Errorf("error = %v", err)
	}
	if !strings.Contains(out, "failed device: mmc0") {
		t.Errorf("output missing failed device:\n%s", out)
	}
}

func TestCycle_UnknownEvent(t *testing.T) {
	cfgPath := writeFixture(t, testManifest)

	if _, err := runCmd(t, "--config", cfgPath, "cycle", "--event", "nap"); err == nil {
		t.Error("cycle accepted an unknown event")
	}
}

// ─── config ─────────────────────────────────────────────────────────

func TestMissingConfig(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "config.yaml")

	for _, sub := range []string{"serve", "cycle"} {
		t.Run(sub, func(t *testing.T) {
			_, err := runCmd(t, "--config", missing, sub)
			if err == nil || !strings.Contains(err.Error(), "loading config") {
				t.Errorf("%s error = %v, want loading config error", sub, err)
			}
		})
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv(configEnv, "/etc/dpmcore/config.yaml")
	if got := defaultConfig(); got != "/etc/dpmcore/config.yaml" {
		t.Errorf("defaultConfig() = %q", got)
	}
}

func TestVersion(t *testing.T) {
	out, err := runCmd(t, "--version")
	if err != nil {
		t.Fatalf("--version error = %v", err)
	}
	if !strings.Contains(out, version) {
		t.Errorf("output = %q, want version %q", out, version)
	}
}

func TestCycle_DVFSDeviceMissing(t *testing.T) {
	manifest := "devices:\n  - name: soc\n"
	cfgPath := writeFixture(t, manifest)

	_, err := runCmd(t, "--config", cfgPath, "cycle")
	if err == nil || !strings.Contains(err.Error(), `dvfs device "gpu"`) {
		t.Errorf("error = %v, want missing dvfs device", err)
	}
}
