package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// URLPlaceholder is replaced with the launch URL in Target.Command.
const URLPlaceholder = "{url}"

type Config struct {
	Target  TargetConfig  `yaml:"target"`
	Logs    LogsConfig    `yaml:"logs"`
	Tailer  TailerConfig  `yaml:"tailer"`
	Server  ServerConfig  `yaml:"server"`
	History HistoryConfig `yaml:"history"`
	Log     LogConfig     `yaml:"log"`
	Rules   []RuleConfig  `yaml:"rules"`
}

// TargetConfig describes how the game client is launched and how its
// process is recognised in the process table.
type TargetConfig struct {
	Command     []string      `yaml:"command"`
	DefaultURL  string        `yaml:"default_url"`
	ProcessName string        `yaml:"process_name"`
	PIDAttempts int           `yaml:"pid_attempts"`
	PIDInterval time.Duration `yaml:"pid_interval"`
}

type LogsConfig struct {
	Dir         string        `yaml:"dir"`
	Pattern     string        `yaml:"pattern"`
	MaxAge      time.Duration `yaml:"max_age"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

type TailerConfig struct {
	// Command is the helper argv. Empty means "<own executable> tail".
	Command              []string      `yaml:"command"`
	LivenessInterval     time.Duration `yaml:"liveness_interval"`
	DiagnosticCooldown   time.Duration `yaml:"diagnostic_cooldown"`
	RestartBackoff       time.Duration `yaml:"restart_backoff"`
	RestartBackoffCap    time.Duration `yaml:"restart_backoff_cap"`
	MaxRestartsPerMinute int           `yaml:"max_restarts_per_minute"`
}

type ServerConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AuthToken      string   `yaml:"auth_token"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxConnections int      `yaml:"max_connections"`
	// BroadcastThrottle batches events for websocket clients.
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
	SnapshotInterval  time.Duration `yaml:"snapshot_interval"`
	Privacy           PrivacyConfig `yaml:"privacy"`
}

// PrivacyConfig controls what websocket and HTTP clients get to see.
type PrivacyConfig struct {
	MaskSessionIDs bool `yaml:"mask_session_ids"`
	MaskPIDs       bool `yaml:"mask_pids"`
	MaskLogPaths   bool `yaml:"mask_log_paths"`
	MaskTargetURLs bool `yaml:"mask_target_urls"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"` // defaults to $XDG_STATE_HOME/gamewatch
	Limit   int    `yaml:"limit"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// RuleConfig is one classification rule as written in YAML. Exactly one of
// Match or Pattern is set.
type RuleConfig struct {
	Name    string `yaml:"name"`
	Match   string `yaml:"match"`
	Pattern string `yaml:"pattern"`
}

func defaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Target: TargetConfig{
			Command:     []string{"open", URLPlaceholder},
			DefaultURL:  "roblox-player:",
			ProcessName: "RobloxPlayer",
			PIDAttempts: 20,
			PIDInterval: 500 * time.Millisecond,
		},
		Logs: LogsConfig{
			Dir:         filepath.Join(home, "Library", "Logs", "Roblox"),
			Pattern:     "*Player*.log",
			MaxAge:      15 * time.Second,
			MaxAttempts: 15,
			RetryDelay:  time.Second,
		},
		Tailer: TailerConfig{
			LivenessInterval:     500 * time.Millisecond,
			DiagnosticCooldown:   10 * time.Second,
			RestartBackoff:       250 * time.Millisecond,
			RestartBackoffCap:    5 * time.Second,
			MaxRestartsPerMinute: 10,
		},
		Server: ServerConfig{
			Port:              8730,
			Host:              "127.0.0.1",
			MaxConnections:    16,
			BroadcastThrottle: 50 * time.Millisecond,
			SnapshotInterval:  5 * time.Second,
		},
		History: HistoryConfig{
			Enabled: true,
			Limit:   20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, except a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaultConfig(), nil
	}
	return cfg, err
}

// Validate rejects values the supervisor cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Target.Command) == 0 {
		errs = append(errs, errors.New("target.command must not be empty"))
	}
	if c.Target.ProcessName == "" {
		errs = append(errs, errors.New("target.process_name must not be empty"))
	}
	if c.Target.PIDAttempts < 1 {
		errs = append(errs, fmt.Errorf("target.pid_attempts must be >= 1, got %d", c.Target.PIDAttempts))
	}
	if c.Logs.Dir == "" {
		errs = append(errs, errors.New("logs.dir must not be empty"))
	}
	if c.Logs.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("logs.max_attempts must be >= 1, got %d", c.Logs.MaxAttempts))
	}
	if c.Logs.MaxAge <= 0 {
		errs = append(errs, errors.New("logs.max_age must be positive"))
	}
	if c.Tailer.LivenessInterval <= 0 {
		errs = append(errs, errors.New("tailer.liveness_interval must be positive"))
	}
	if c.Tailer.MaxRestartsPerMinute < 1 {
		errs = append(errs, fmt.Errorf("tailer.max_restarts_per_minute must be >= 1, got %d", c.Tailer.MaxRestartsPerMinute))
	}
	if c.Tailer.RestartBackoffCap < c.Tailer.RestartBackoff {
		errs = append(errs, errors.New("tailer.restart_backoff_cap must be >= tailer.restart_backoff"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.History.Limit < 1 {
		errs = append(errs, fmt.Errorf("history.limit must be >= 1, got %d", c.History.Limit))
	}
	for i, r := range c.Rules {
		if r.Name == "" {
			errs = append(errs, fmt.Errorf("rules[%d]: name must not be empty", i))
		}
		if (r.Match == "") == (r.Pattern == "") {
			errs = append(errs, fmt.Errorf("rules[%d] %q: exactly one of match or pattern is required", i, r.Name))
		}
	}
	return errors.Join(errs...)
}

// LaunchCommand returns Target.Command with the URL substituted.
func (c *Config) LaunchCommand(url string) []string {
	if url == "" {
		url = c.Target.DefaultURL
	}
	argv := make([]string, 0, len(c.Target.Command))
	for _, arg := range c.Target.Command {
		if arg == URLPlaceholder {
			arg = url
		}
		argv = append(argv, arg)
	}
	return argv
}

// GenerateToken returns a random hex token for the websocket server.
func GenerateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
