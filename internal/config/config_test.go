package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	yaml := `
target:
  command: ["/usr/bin/launcher", "--url", "{url}"]
  process_name: RobloxPlayer
logs:
  dir: /tmp/roblox-logs
  max_age: 30s
  max_attempts: 3
tailer:
  liveness_interval: 250ms
server:
  enabled: true
  port: 9090
  privacy:
    mask_pids: true
history:
  enabled: false
rules:
  - name: GameJoining
    match: "! Joining game"
  - name: GameJoinedEntry
    pattern: 'serverId: ([0-9.]+)\|[0-9]+'
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if !cfg.Server.Enabled {
		t.Error("Server.Enabled = false, want true")
	}
	if !cfg.Server.Privacy.MaskPIDs || cfg.Server.Privacy.MaskLogPaths {
		t.Errorf("Server.Privacy = %+v, want only pids masked", cfg.Server.Privacy)
	}
	if cfg.History.Enabled {
		t.Error("History.Enabled = true, want false")
	}
	if cfg.History.Limit != 20 {
		t.Errorf("History.Limit = %d, want default 20", cfg.History.Limit)
	}
	if cfg.Logs.Dir != "/tmp/roblox-logs" {
		t.Errorf("Logs.Dir = %q, want /tmp/roblox-logs", cfg.Logs.Dir)
	}
	if cfg.Logs.MaxAge != 30*time.Second {
		t.Errorf("Logs.MaxAge = %v, want 30s", cfg.Logs.MaxAge)
	}
	if cfg.Logs.MaxAttempts != 3 {
		t.Errorf("Logs.MaxAttempts = %d, want 3", cfg.Logs.MaxAttempts)
	}
	if cfg.Tailer.LivenessInterval != 250*time.Millisecond {
		t.Errorf("Tailer.LivenessInterval = %v, want 250ms", cfg.Tailer.LivenessInterval)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[1].Pattern != `serverId: ([0-9.]+)\|[0-9]+` {
		t.Errorf("Rules = %+v", cfg.Rules)
	}

	// Defaults should still be applied for unspecified fields.
	if cfg.Logs.RetryDelay != time.Second {
		t.Errorf("Logs.RetryDelay = %v, want default 1s", cfg.Logs.RetryDelay)
	}
	if cfg.Tailer.DiagnosticCooldown != 10*time.Second {
		t.Errorf("Tailer.DiagnosticCooldown = %v, want default 10s", cfg.Tailer.DiagnosticCooldown)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() on missing file should return error")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("LoadOrDefault() error: %v", err)
	}
	if cfg.Server.Port != 8730 {
		t.Errorf("Server.Port = %d, want default 8730", cfg.Server.Port)
	}
	if cfg.Tailer.LivenessInterval != 500*time.Millisecond {
		t.Errorf("Tailer.LivenessInterval = %v, want default 500ms", cfg.Tailer.LivenessInterval)
	}
	if cfg.Logs.MaxAge != 15*time.Second {
		t.Errorf("Logs.MaxAge = %v, want default 15s", cfg.Logs.MaxAge)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("Load() with invalid YAML should return error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"empty command", func(c *Config) { c.Target.Command = nil }, "target.command"},
		{"no process name", func(c *Config) { c.Target.ProcessName = "" }, "target.process_name"},
		{"zero attempts", func(c *Config) { c.Logs.MaxAttempts = 0 }, "logs.max_attempts"},
		{"zero max age", func(c *Config) { c.Logs.MaxAge = 0 }, "logs.max_age"},
		{"backoff cap below base", func(c *Config) { c.Tailer.RestartBackoffCap = time.Millisecond }, "restart_backoff_cap"},
		{"bad port when enabled", func(c *Config) { c.Server.Enabled = true; c.Server.Port = 0 }, "server.port"},
		{"bad port when disabled", func(c *Config) { c.Server.Port = 0 }, ""},
		{"zero history limit", func(c *Config) { c.History.Limit = 0 }, "history.limit"},
		{"rule with both", func(c *Config) {
			c.Rules = []RuleConfig{{Name: "X", Match: "a", Pattern: "b"}}
		}, "exactly one of"},
		{"rule with neither", func(c *Config) {
			c.Rules = []RuleConfig{{Name: "X"}}
		}, "exactly one of"},
		{"rule without name", func(c *Config) {
			c.Rules = []RuleConfig{{Match: "a"}}
		}, "name must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLaunchCommand(t *testing.T) {
	cfg := defaultConfig()
	cfg.Target.Command = []string{"launcher", "--url", URLPlaceholder, "--quiet"}
	cfg.Target.DefaultURL = "roblox-player:"

	got := cfg.LaunchCommand("roblox://placeId=1818")
	want := []string{"launcher", "--url", "roblox://placeId=1818", "--quiet"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LaunchCommand() = %v, want %v", got, want)
	}

	got = cfg.LaunchCommand("")
	if got[2] != "roblox-player:" {
		t.Errorf("LaunchCommand(\"\") url = %q, want default", got[2])
	}
	if cfg.Target.Command[2] != URLPlaceholder {
		t.Error("LaunchCommand must not modify the configured argv")
	}
}

func TestGenerateToken(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}
	if len(tok) != 32 { // 16 bytes = 32 hex chars
		t.Errorf("token length = %d, want 32", len(tok))
	}

	tok2, _ := GenerateToken()
	if tok == tok2 {
		t.Error("two generated tokens should not be identical")
	}
}
