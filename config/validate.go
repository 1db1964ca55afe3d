package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinSigningKeyBytes is the shortest accepted HS256 download signing key.
const MinSigningKeyBytes = 32

// Validate reports the first configuration value that cannot work.
func (c *Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Server.Bind) == "" {
		problems = append(problems, "server.bind must be set")
	}
	if c.Paths.DataDir == "" || c.Paths.WorkDir == "" || c.Paths.ServeDir == "" {
		problems = append(problems, "paths.data_dir, paths.work_dir and paths.serve_dir must be set")
	}
	if c.Limits.MaxUploadBytes <= 0 {
		problems = append(problems, "limits.max_upload_bytes must be positive")
	}
	if c.Limits.MaxClipSeconds <= 0 {
		problems = append(problems, "limits.max_clip_seconds must be positive")
	}
	if c.Limits.Workers <= 0 {
		problems = append(problems, "limits.workers must be positive")
	}
	if c.Limits.MinSize <= 0 || c.Limits.MaxSize < c.Limits.MinSize {
		problems = append(problems, "limits.min_size must be positive and not above limits.max_size")
	}
	if c.Encoding.DefaultSize < c.Limits.MinSize || c.Encoding.DefaultSize > c.Limits.MaxSize {
		problems = append(problems, "encoding.default_size must lie within limits.min_size..limits.max_size")
	}
	if c.Artifacts.TTLSeconds <= 0 {
		problems = append(problems, "artifacts.ttl_seconds must be positive")
	}
	if key := c.Artifacts.SigningKey; key != "" && len(key) < MinSigningKeyBytes {
		problems = append(problems, fmt.Sprintf("artifacts.signing_key must be at least %d bytes", MinSigningKeyBytes))
	}
	if c.Encoding.MaxMB <= 0 || c.Encoding.DeliveryMaxMB <= 0 {
		problems = append(problems, "encoding.max_mb and encoding.delivery_max_mb must be positive")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// ArtifactTTL returns the artifact lifetime as a duration.
func (c *Config) ArtifactTTL() time.Duration {
	return time.Duration(c.Artifacts.TTLSeconds) * time.Second
}

// JanitorInterval returns how often expired state is swept: the configured
// interval, but never more often than the artifact TTL.
func (c *Config) JanitorInterval() time.Duration {
	interval := time.Duration(c.Artifacts.JanitorIntervalSeconds) * time.Second
	if ttl := c.ArtifactTTL(); interval < ttl {
		interval = ttl
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return interval
}

// UploadTTL returns how long an upload may wait for a conversion request.
func (c *Config) UploadTTL() time.Duration {
	return time.Duration(c.Limits.UploadTTLSeconds) * time.Second
}

// FailureRetention returns how long failure records are kept.
func (c *Config) FailureRetention() time.Duration {
	return time.Duration(c.Retention.FailureDays) * 24 * time.Hour
}

// DeliveryTimeout returns the Telegram request timeout.
func (c *Config) DeliveryTimeout() time.Duration {
	if c.Delivery.TimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.Delivery.TimeoutSeconds) * time.Second
}
