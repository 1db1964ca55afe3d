package job

import (
	"fmt"
	"math"
	"strings"

	"roundify/config"
	"roundify/models"
)

// NormalizeOptions fills defaults into o and checks it against the source
// and the configured limits. Errors wrap ErrInvalidOptions.
func NormalizeOptions(cfg *config.Config, src models.SourceMeta, o models.ClipOptions) (models.ClipOptions, error) {
	o.Encoder = strings.ToLower(strings.TrimSpace(o.Encoder))
	if o.Encoder == "" {
		o.Encoder = cfg.Encoding.DefaultEncoder
	}

	if o.Size == 0 {
		o.Size = cfg.Encoding.DefaultSize
	}
	o.Size &^= 1 // yuv420p needs even dimensions
	if o.Size < cfg.Limits.MinSize || o.Size > cfg.Limits.MaxSize {
		return o, fmt.Errorf("%w: size must be between %d and %d", ErrInvalidOptions, cfg.Limits.MinSize, cfg.Limits.MaxSize)
	}

	if !finite(o.Duration) || !finite(o.Offset) {
		return o, fmt.Errorf("%w: duration and offset must be numbers", ErrInvalidOptions)
	}
	if o.Duration <= 0 {
		return o, fmt.Errorf("%w: duration must be positive", ErrInvalidOptions)
	}
	if o.Duration > float64(cfg.Limits.MaxClipSeconds) {
		return o, fmt.Errorf("%w: Duration cannot exceed %d seconds.", ErrInvalidOptions, cfg.Limits.MaxClipSeconds)
	}
	if o.Offset < 0 {
		return o, fmt.Errorf("%w: offset cannot be negative", ErrInvalidOptions)
	}
	if o.Offset+o.Duration > src.Duration {
		return o, fmt.Errorf("%w: offset + duration (%.3f s) exceeds the video length (%.3f s)", ErrInvalidOptions, o.Offset+o.Duration, src.Duration)
	}

	o.Token = strings.TrimSpace(o.Token)
	o.Chat = strings.TrimSpace(o.Chat)
	if o.Token == "" || o.Chat == "" {
		o.Token, o.Chat = "", ""
	}
	o.StorageKey = strings.TrimSpace(o.StorageKey)
	return o, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
