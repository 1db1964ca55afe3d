package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Server contains bind address and externally visible URL.
type Server struct {
	Bind string `toml:"bind"`
	// PublicURL prefixes download links. Empty leaves them relative to the
	// server root.
	PublicURL string `toml:"public_url"`
}

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	WorkDir  string `toml:"work_dir"`
	ServeDir string `toml:"serve_dir"`
}

// Limits bounds what a single client may ask of the service.
type Limits struct {
	MaxUploadBytes   int64 `toml:"max_upload_bytes"`
	MaxClipSeconds   int   `toml:"max_clip_seconds"`
	Workers          int   `toml:"workers"`
	UploadTTLSeconds int   `toml:"upload_ttl_seconds"`
	MinSize          int   `toml:"min_size"`
	MaxSize          int   `toml:"max_size"`
}

// Artifacts controls how long finished clips stay downloadable.
type Artifacts struct {
	TTLSeconds             int    `toml:"ttl_seconds"`
	SigningKey             string `toml:"signing_key"`
	JanitorIntervalSeconds int    `toml:"janitor_interval_seconds"`
}

// Encoding contains ffmpeg settings.
type Encoding struct {
	FFmpegPath       string `toml:"ffmpeg_path"`
	FFprobePath      string `toml:"ffprobe_path"`
	DefaultEncoder   string `toml:"default_encoder"`
	DefaultSize      int    `toml:"default_size"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps"`
	MaxMB            int    `toml:"max_mb"`
	DeliveryMaxMB    int    `toml:"delivery_max_mb"`
}

// Delivery contains Telegram delivery settings.
type Delivery struct {
	TelegramAPIBase string `toml:"telegram_api_base"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Retention controls how long failure records are kept.
type Retention struct {
	FailureDays int `toml:"failure_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// Config encapsulates all configuration values for Roundify.
type Config struct {
	Server    Server    `toml:"server"`
	Paths     Paths     `toml:"paths"`
	Limits    Limits    `toml:"limits"`
	Artifacts Artifacts `toml:"artifacts"`
	Encoding  Encoding  `toml:"encoding"`
	Delivery  Delivery  `toml:"delivery"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/roundify/config.toml")
}

// Load reads the TOML file at path (or the default location when path is
// empty), applies environment overrides and validates the result. A missing
// file at the default location is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	} else {
		expanded, err := expandPath(path)
		if err != nil {
			return nil, err
		}
		path = expanded
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays the environment variables the service has always
// honoured on top of file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("ROUNDIFY_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("ROUNDIFY_WORK_DIR"); v != "" {
		c.Paths.WorkDir = v
	}
	if v := os.Getenv("ROUNDIFY_SERVE_DIR"); v != "" {
		c.Paths.ServeDir = v
	}
	if v := os.Getenv("ROUNDIFY_BIND"); v != "" {
		c.Server.Bind = v
	}
	if v := os.Getenv("ROUNDIFY_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("ROUNDIFY_SIGNING_KEY"); v != "" {
		c.Artifacts.SigningKey = v
	}
	c.Limits.Workers = envInt("ROUNDIFY_JOBS", c.Limits.Workers)
	c.Artifacts.TTLSeconds = envInt("TTL_SECONDS", c.Artifacts.TTLSeconds)
	c.Limits.MaxClipSeconds = envInt("MAX_CLIP_SECONDS", c.Limits.MaxClipSeconds)
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.ServeDir, err = expandPath(c.Paths.ServeDir); err != nil {
		return fmt.Errorf("paths.serve_dir: %w", err)
	}
	c.Server.PublicURL = strings.TrimRight(strings.TrimSpace(c.Server.PublicURL), "/")
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Encoding.DefaultEncoder = strings.ToLower(strings.TrimSpace(c.Encoding.DefaultEncoder))
	return nil
}

// EnsureDirectories creates the data, work and serve directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.ServeDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Clean(path), nil
}
