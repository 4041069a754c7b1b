// Package config holds the daemon configuration loaded from the data
// directory's config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/menuvox/menuvox/internal/defaults"

	"gopkg.in/yaml.v3"
)

// Config holds the full daemon configuration.
type Config struct {
	// DataDir is the platform data directory holding config, profiles,
	// logs and the history database.
	DataDir string `yaml:"data_dir"`

	Profile   ProfileConfig   `yaml:"profile"`
	Detection DetectionConfig `yaml:"detection"`
	Capture   CaptureConfig   `yaml:"capture"`
	OCR       OCRConfig       `yaml:"ocr"`
	Speech    SpeechConfig    `yaml:"speech"`
	Pointer   PointerConfig   `yaml:"pointer"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	History   HistoryConfig   `yaml:"history"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ProfileConfig selects the menu profile and its reload behavior.
type ProfileConfig struct {
	Path  string `yaml:"path"`  // Profile JSON path (empty = <data_dir>/profiles/default.json)
	Watch bool   `yaml:"watch"` // Reload automatically when the file changes
}

// DetectionConfig tunes the adaptive detection loop.
type DetectionConfig struct {
	IntervalMs    int  `yaml:"interval_ms"`     // Base polling interval (default: 50)
	MaxIntervalMs int  `yaml:"max_interval_ms"` // Backed-off ceiling (default: 500)
	IdleThreshold int  `yaml:"idle_threshold"`  // No-change ticks before backing off (default: 20)
	AutoStart     bool `yaml:"auto_start"`      // Start detecting on launch
}

// CaptureConfig tunes the screen capture service.
type CaptureConfig struct {
	CacheTTLMs  int `yaml:"cache_ttl_ms"` // Whole-frame cache lifetime (default: 50)
	DemoteAfter int `yaml:"demote_after"` // Consecutive failures before backend demotion (default: 3)
}

// OCRConfig tunes text recognition.
type OCRConfig struct {
	Languages       []string `yaml:"languages"`         // Tesseract languages (default: eng)
	CacheTTLMs      int      `yaml:"cache_ttl_ms"`      // Per-region result cache lifetime (default: 500)
	MaxCacheEntries int      `yaml:"max_cache_entries"` // Region cache capacity (default: 64)
}

// SpeechConfig tunes the announcement queue and synthesizer.
type SpeechConfig struct {
	Enabled           bool   `yaml:"enabled"`             // Speak announcements (default: true)
	Voice             string `yaml:"voice"`               // Synthesizer voice (empty = platform default)
	MinGapMs          int    `yaml:"min_gap_ms"`          // Minimum spacing between utterance starts (default: 100)
	ReinitCooldownSec int    `yaml:"reinit_cooldown_sec"` // Engine reinit rate limit after faults (default: 5)
}

// PointerConfig tunes pointer control.
type PointerConfig struct {
	Enabled bool `yaml:"enabled"` // Move and click the pointer (default: true)
}

// NotifyConfig mirrors menu changes as desktop notifications.
type NotifyConfig struct {
	Enabled bool `yaml:"enabled"` // Show native toasts on menu changes (default: false)
}

// ServerConfig configures the local control API.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"` // Serve the HTTP API and websocket feed
	Host    string `yaml:"host"`    // Bind address (default: 127.0.0.1)
	Port    int    `yaml:"port"`    // Listen port (default: 27800)
}

// HistoryConfig configures the announcement history store.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`        // Record announcements and menu changes
	RetentionDays int    `yaml:"retention_days"` // Rows older than this are pruned (default: 30)
	PruneSchedule string `yaml:"prune_schedule"` // Cron spec for pruning (default: "0 3 * * *")
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // Console level: debug, info, warn, error (default: info)
	File       string `yaml:"file"`        // JSON log path (empty = <data_dir>/logs/menuvox.log)
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotate after this size (default: 10)
	MaxBackups int    `yaml:"max_backups"` // Rotated files kept (default: 3)
	Console    bool   `yaml:"console"`     // Also log to stderr (default: true)
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Profile: ProfileConfig{
			Watch: true,
		},
		Detection: DetectionConfig{
			IntervalMs:    50,
			MaxIntervalMs: 500,
			IdleThreshold: 20,
			AutoStart:     true,
		},
		Capture: CaptureConfig{
			CacheTTLMs:  50,
			DemoteAfter: 3,
		},
		OCR: OCRConfig{
			Languages:       []string{"eng"},
			CacheTTLMs:      500,
			MaxCacheEntries: 64,
		},
		Speech: SpeechConfig{
			Enabled:           true,
			MinGapMs:          100,
			ReinitCooldownSec: 5,
		},
		Pointer: PointerConfig{
			Enabled: true,
		},
		Notify: NotifyConfig{
			Enabled: false,
		},
		Server: ServerConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    27800,
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 30,
			PruneSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			Console:    true,
		},
	}
}

// DefaultDataDir returns the platform-appropriate data directory.
func DefaultDataDir() string {
	dir, err := defaults.DataDir()
	if err != nil {
		return ".menuvox"
	}
	return dir
}

// Load loads config from the data directory's config.yaml. A missing file
// yields the defaults.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := filepath.Join(cfg.DataDir, "config.yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	return parse(data, cfg)
}

// LoadFrom loads config from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parse(data, cfg)
}

// LoadFromBytes loads config from raw YAML, over the defaults. Used for the
// embedded fallback config.
func LoadFromBytes(data []byte) (*Config, error) {
	return parse(data, DefaultConfig())
}

func parse(data []byte, cfg *Config) (*Config, error) {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.DataDir = expandPath(os.ExpandEnv(cfg.DataDir))
	cfg.Profile.Path = expandPath(os.ExpandEnv(cfg.Profile.Path))
	cfg.Logging.File = expandPath(os.ExpandEnv(cfg.Logging.File))

	return cfg, nil
}

// Save writes the config to the data directory's config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	configPath := filepath.Join(c.DataDir, "config.yaml")
	return os.WriteFile(configPath, data, 0644)
}

// ProfilePath returns the profile path, falling back to the default profile
// under the data directory.
func (c *Config) ProfilePath() string {
	if c.Profile.Path != "" {
		return c.Profile.Path
	}
	return filepath.Join(c.DataDir, "profiles", "default.json")
}

// DBPath returns the path to the history database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "data", "menuvox.db")
}

// LogFile returns the JSON log path, falling back to the data directory.
func (c *Config) LogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(c.DataDir, "logs", "menuvox.log")
}

// ListenAddr returns the control API bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DetectionInterval returns the base polling interval.
func (c *Config) DetectionInterval() time.Duration {
	return time.Duration(c.Detection.IntervalMs) * time.Millisecond
}

// DetectionMaxInterval returns the backed-off polling ceiling.
func (c *Config) DetectionMaxInterval() time.Duration {
	return time.Duration(c.Detection.MaxIntervalMs) * time.Millisecond
}

// CaptureCacheTTL returns the whole-frame cache lifetime.
func (c *Config) CaptureCacheTTL() time.Duration {
	return time.Duration(c.Capture.CacheTTLMs) * time.Millisecond
}

// OCRCacheTTL returns the per-region OCR cache lifetime.
func (c *Config) OCRCacheTTL() time.Duration {
	return time.Duration(c.OCR.CacheTTLMs) * time.Millisecond
}

// SpeechMinGap returns the minimum spacing between utterance starts.
func (c *Config) SpeechMinGap() time.Duration {
	return time.Duration(c.Speech.MinGapMs) * time.Millisecond
}

// SpeechReinitCooldown returns the synthesizer reinit rate limit.
func (c *Config) SpeechReinitCooldown() time.Duration {
	return time.Duration(c.Speech.ReinitCooldownSec) * time.Second
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
