package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"roundify/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ROUNDIFY_DATA_DIR", "ROUNDIFY_WORK_DIR", "ROUNDIFY_SERVE_DIR", "ROUNDIFY_BIND",
		"ROUNDIFY_PUBLIC_URL", "ROUNDIFY_SIGNING_KEY", "ROUNDIFY_JOBS", "TTL_SECONDS", "MAX_CLIP_SECONDS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0:8000" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Limits.MaxUploadBytes != 600<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.Limits.MaxUploadBytes)
	}
	if cfg.Limits.MaxClipSeconds != 60 || cfg.Artifacts.TTLSeconds != 60 {
		t.Fatalf("unexpected clip/ttl defaults: %d/%d", cfg.Limits.MaxClipSeconds, cfg.Artifacts.TTLSeconds)
	}
	if cfg.Encoding.MaxMB != 100 || cfg.Encoding.DeliveryMaxMB != 8 {
		t.Fatalf("unexpected size caps: %d/%d", cfg.Encoding.MaxMB, cfg.Encoding.DeliveryMaxMB)
	}
	if cfg.Encoding.DefaultEncoder != "round" || cfg.Encoding.DefaultSize != 640 {
		t.Fatalf("unexpected encoder defaults: %q/%d", cfg.Encoding.DefaultEncoder, cfg.Encoding.DefaultSize)
	}
	if cfg.Server.PublicURL != "" {
		t.Fatalf("expected empty public url, got %q", cfg.Server.PublicURL)
	}
}

func TestLoadExplicitFileAndEnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[server]
bind = "127.0.0.1:9000"
public_url = "https://clips.example.com/"

[paths]
data_dir = "` + filepath.ToSlash(filepath.Join(dir, "data")) + `"

[limits]
max_clip_seconds = 30

[encoding]
default_encoder = " TRIM "

[logging]
level = "DEBUG"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TTL_SECONDS", "120")
	t.Setenv("ROUNDIFY_JOBS", "4")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" {
		t.Fatalf("unexpected bind: %q", cfg.Server.Bind)
	}
	if cfg.Server.PublicURL != "https://clips.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Server.PublicURL)
	}
	if cfg.Limits.MaxClipSeconds != 30 {
		t.Fatalf("expected max clip from file, got %d", cfg.Limits.MaxClipSeconds)
	}
	if cfg.Artifacts.TTLSeconds != 120 || cfg.Limits.Workers != 4 {
		t.Fatalf("expected env overrides, got ttl=%d workers=%d", cfg.Artifacts.TTLSeconds, cfg.Limits.Workers)
	}
	if cfg.Encoding.DefaultEncoder != "trim" || cfg.Logging.Level != "debug" {
		t.Fatalf("expected normalized values, got %q/%q", cfg.Encoding.DefaultEncoder, cfg.Logging.Level)
	}
	if got := cfg.Paths.CredentialsDBPath(); got != filepath.Join(dir, "data", "credentials.db") {
		t.Fatalf("unexpected credentials path: %q", got)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	clearEnv(t)
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected error for missing explicit config")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"short key", func(c *config.Config) { c.Artifacts.SigningKey = "short" }, "signing_key"},
		{"zero ttl", func(c *config.Config) { c.Artifacts.TTLSeconds = 0 }, "ttl_seconds"},
		{"size range", func(c *config.Config) { c.Limits.MinSize = 2000 }, "min_size"},
		{"default size", func(c *config.Config) { c.Encoding.DefaultSize = 10 }, "default_size"},
		{"level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestJanitorIntervalNeverBelowTTL(t *testing.T) {
	cfg := config.Default()
	cfg.Artifacts.JanitorIntervalSeconds = 10
	cfg.Artifacts.TTLSeconds = 300
	if got := cfg.JanitorInterval(); got != 300*time.Second {
		t.Fatalf("expected interval raised to ttl, got %v", got)
	}
	cfg.Artifacts.JanitorIntervalSeconds = 600
	if got := cfg.JanitorInterval(); got != 600*time.Second {
		t.Fatalf("expected configured interval, got %v", got)
	}
}
