package device

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleManifest = `
devices:
  - name: soc
    driver: soc-bus
  - name: i2c0
    parent: soc
    driver: i2c-s3c
    bus: platform
    class: i2c
  - name: mmc0
    parent: soc
    driver: sdhci
    async: true
    wakeup: true
    latency:
      suspend: 20ms
      resume: 1ms
    fail:
      resume_noirq: EIO
`

func TestParseManifest(t *testing.T) {
	defs, err := ParseManifest([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("ParseManifest() error = %v", err)
	}
	if len(defs) != 3 {
		t.Fatalf("got %d definitions, want 3", len(defs))
	}

	mmc := defs[2]
	if mmc.Parent != "soc" || !mmc.Async || !mmc.Wakeup {
		t.Errorf("mmc0 = %+v", mmc)
	}
	if mmc.Latency["suspend"] != 20*time.Millisecond {
		t.Errorf("suspend latency = %v, want 20ms", mmc.Latency["suspend"])
	}
	if mmc.Fail["resume_noirq"] != "EIO" {
		t.Errorf("fail = %v", mmc.Fail)
	}
	if defs[1].Class != "i2c" {
		t.Errorf("i2c0 class = %q", defs[1].Class)
	}
}

func TestLoadManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.yaml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0o600); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	defs, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	if defs[0].Name != "soc" {
		t.Errorf("first device = %q, want soc", defs[0].Name)
	}

	if _, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadManifest() on missing file should fail")
	}
}

func TestParseManifest_BadYAML(t *testing.T) {
	_, err := ParseManifest([]byte("devices: [name: {"))
	if !errors.Is(err, ErrInvalidManifest) {
		t.Errorf("error = %v, want ErrInvalidManifest", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		defs    []Definition
		wantErr error
	}{
		{
			name:    "empty",
			defs:    nil,
			wantErr: ErrInvalidManifest,
		},
		{
			name:    "missing name",
			defs:    []Definition{{Driver: "x"}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "padded name",
			defs:    []Definition{{Name: " soc"}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "name too long",
			defs:    []Definition{{Name: strings.Repeat("a", maxNameLength+1)}},
			wantErr: ErrInvalidName,
		},
		{
			name:    "duplicate",
			defs:    []Definition{{Name: "a"}, {Name: "a"}},
			wantErr: ErrDuplicateName,
		},
		{
			name:    "parent after child",
			defs:    []Definition{{Name: "child", Parent: "root"}, {Name: "root"}},
			wantErr: ErrUnknownParent,
		},
		{
			name:    "unknown latency phase",
			defs:    []Definition{{Name: "a", Latency: map[string]time.Duration{"freeze": time.Millisecond}}},
			wantErr: ErrUnknownPhase,
		},
		{
			name:    "negative latency",
			defs:    []Definition{{Name: "a", Latency: map[string]time.Duration{"suspend": -time.Millisecond}}},
			wantErr: ErrInvalidManifest,
		},
		{
			name:    "unknown errno",
			defs:    []Definition{{Name: "a", Fail: map[string]string{"suspend": "ENOPE"}}},
			wantErr: ErrUnknownErrno,
		},
		{
			name:    "unknown hang phase",
			defs:    []Definition{{Name: "a", Hang: "sleep"}},
			wantErr: ErrUnknownPhase,
		},
		{
			name:    "hang on resume",
			defs:    []Definition{{Name: "stuck", Hang: "resume"}},
			wantErr: ErrUnguardedHang,
		},
		{
			name:    "hang on prepare",
			defs:    []Definition{{Name: "stuck", Hang: "prepare"}},
			wantErr: ErrUnguardedHang,
		},
		{
			name:    "hang on suspend_noirq",
			defs:    []Definition{{Name: "stuck", Hang: "suspend_noirq"}},
			wantErr: ErrUnguardedHang,
		},
		{
			name:    "hang on complete",
			defs:    []Definition{{Name: "stuck", Hang: "complete"}},
			wantErr: ErrUnguardedHang,
		},
		{
			name: "valid tree",
			defs: []Definition{
				{Name: "root"},
				{Name: "child", Parent: "root", Fail: map[string]string{"prepare": "EAGAIN"}, Hang: "suspend"},
			},
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.defs)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
