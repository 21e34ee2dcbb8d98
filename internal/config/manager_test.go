package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
logging:
  level: debug
  console: true
driver:
  tick_interval: 5ms
  op_queue: 64
journal:
  enabled: true
  path: ./test.db
  keep: 10
jobs:
  - name: beat
    schedule: "* * * * *"
    program: pulse
    ticks: 3
    delay: 20ms
`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("level = %q", cfg.Logging.Level)
	}
	if cfg.TickInterval() != 5*time.Millisecond {
		t.Fatalf("tick = %v", cfg.TickInterval())
	}
	if cfg.OpQueue() != 64 {
		t.Fatalf("op queue = %d", cfg.OpQueue())
	}
	if len(cfg.Jobs) != 1 || cfg.Jobs[0].DelayOrZero() != 20*time.Millisecond {
		t.Fatalf("jobs = %+v", cfg.Jobs)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"logging":{"level":"info","console":true,"file":{"enabled":false}},"driver":{}}`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TickInterval() != defaultTickInterval {
		t.Fatalf("tick = %v, want default", cfg.TickInterval())
	}
	if cfg.OpQueue() != defaultOpQueue {
		t.Fatalf("op queue = %d, want default", cfg.OpQueue())
	}
	if cfg.Journal.KeepOrDefault() != defaultJournalKeep {
		t.Fatalf("keep = %d, want default", cfg.Journal.KeepOrDefault())
	}
}

func TestLoadRejections(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown field", file: "c.json", body: `{"driver":{"tick":"5ms"}}`},
		{name: "trailing data", file: "c.json", body: `{"driver":{}} {"x":1}`},
		{name: "bad duration", file: "c.json", body: `{"driver":{"tick_interval":"soon"}}`},
		{name: "negative duration", file: "c.json", body: `{"driver":{"tick_interval":"-5ms"}}`},
		{name: "journal without path", file: "c.json", body: `{"journal":{"enabled":true}}`},
		{name: "job missing schedule", file: "c.json", body: `{"jobs":[{"name":"a","program":"pulse"}]}`},
		{name: "job unknown program name ok but duplicate", file: "c.json", body: `{"jobs":[{"name":"a","schedule":"* * * * *","program":"pulse"},{"name":"a","schedule":"* * * * *","program":"pulse"}]}`},
		{name: "bad yaml", file: "c.yaml", body: "driver: [unclosed"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.file, tt.body)
			if _, err := NewManager(path).Load(); err == nil {
				t.Fatalf("Load(%s) should fail", tt.name)
			}
		})
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationField("x", " 1s "); err != nil || d != time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatal("negative should fail")
	}
	if d, err := ParseDurationOrDefault("x", "", 5*time.Second); err != nil || d != 5*time.Second {
		t.Fatalf("default: got %v, %v", d, err)
	}
}

func TestHashConfigStable(t *testing.T) {
	t.Parallel()
	a := &Config{Driver: DriverConfig{TickInterval: "5ms"}}
	b := &Config{Driver: DriverConfig{TickInterval: "5ms"}}
	c := &Config{Driver: DriverConfig{TickInterval: "6ms"}}

	if hashConfig(a) != hashConfig(b) {
		t.Fatal("equal configs should hash equal")
	}
	if hashConfig(a) == hashConfig(c) {
		t.Fatal("different configs should hash differently")
	}
	if hashConfig(nil) != 0 {
		t.Fatal("nil config hashes to 0")
	}
}
