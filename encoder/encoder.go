package encoder

import (
	"context"
	"os/exec"
	"sync"

	"roundify/logger"
)

// ProgressFunc receives the elapsed output time in milliseconds.
type ProgressFunc func(ms int64)

// EncodeFunc is the function signature for any encoder
type EncodeFunc func(ctx context.Context, input, output string, opts EncodeOptions, onProgress ProgressFunc) error

// EncodeOptions describe one clip.
type EncodeOptions struct {
	FFmpegPath string
	Offset     float64 // seconds into the source
	Duration   float64 // clip length in seconds
	Size       int     // square side for round, longest side for trim
	VideoKbps  int
	AudioKbps  int
}

var (
	registryMu sync.RWMutex
	// Registry maps encoder name → encoder function
	Registry = map[string]EncodeFunc{}
)

// Register adds encoder if the underlying command exists, logs status
func Register(name string, cmdName string, fn EncodeFunc) bool {
	if _, err := exec.LookPath(cmdName); err != nil {
		logger.Warnf("encoder [%s] skipped: command '%s' not found in PATH", name, cmdName)
		return false
	}
	Set(name, fn)
	logger.Debugf("encoder [%s] registered (command: %s)", name, cmdName)
	return true
}

// Set installs fn under name without checking for a binary.
func Set(name string, fn EncodeFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	Registry[name] = fn
}

// Get looks an encoder up by name.
func Get(name string) (EncodeFunc, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := Registry[name]
	return fn, ok
}

// Names lists the registered encoders.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(Registry))
	for name := range Registry {
		names = append(names, name)
	}
	return names
}

// RegisterDefaults registers the ffmpeg-backed encoders.
func RegisterDefaults(ffmpegPath string) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	Register("round", ffmpegPath, EncodeRound)
	Register("trim", ffmpegPath, EncodeTrim)
}
