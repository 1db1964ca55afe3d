// Package probe reads stream metadata from uploaded videos with ffprobe.
package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"roundify/models"
)

// ErrNotVideo is returned when the file parses but carries no usable video.
var ErrNotVideo = errors.New("no video stream")

// Prober extracts metadata from a local file.
type Prober func(ctx context.Context, path string) (models.SourceMeta, error)

// Result is the subset of ffprobe's JSON output the service reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Duration  string `json:"duration"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// New returns a Prober running the given ffprobe binary.
func New(binary string) Prober {
	return func(ctx context.Context, path string) (models.SourceMeta, error) {
		result, err := Inspect(ctx, binary, path)
		if err != nil {
			return models.SourceMeta{}, err
		}
		meta, err := result.Meta()
		if err != nil {
			return models.SourceMeta{}, err
		}
		meta.Filename = filepath.Base(path)
		if meta.Size == 0 {
			if info, statErr := os.Stat(path); statErr == nil {
				meta.Size = info.Size()
			}
		}
		return meta, nil
	}
}

// Inspect executes ffprobe against path and decodes the JSON response.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, errors.New("ffprobe inspect: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{}, fmt.Errorf("ffprobe inspect: %w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Result{}, fmt.Errorf("ffprobe inspect: %w", err)
	}
	return Parse(output)
}

// Parse decodes raw ffprobe JSON.
func Parse(output []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, fmt.Errorf("ffprobe parse: %w", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, falling back to the
// video stream's, or 0 when neither parses.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	if v, ok := r.VideoStream(); ok {
		if d := parseFloat(v.Duration); d > 0 {
			return d
		}
	}
	return 0
}

// SizeBytes returns the reported container size, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	size := parseFloat(r.Format.Size)
	if size <= 0 {
		return 0
	}
	return int64(size)
}

// Meta converts the result into upload metadata. A file without a sized
// video stream or a positive duration is rejected with ErrNotVideo.
func (r Result) Meta() (models.SourceMeta, error) {
	v, ok := r.VideoStream()
	if !ok || v.Width <= 0 || v.Height <= 0 {
		return models.SourceMeta{}, ErrNotVideo
	}
	duration := r.DurationSeconds()
	if duration <= 0 {
		return models.SourceMeta{}, fmt.Errorf("%w: zero duration", ErrNotVideo)
	}
	return models.SourceMeta{
		Filename: filepath.Base(r.Format.Filename),
		Duration: duration,
		Width:    v.Width,
		Height:   v.Height,
		Size:     r.SizeBytes(),
	}, nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}
