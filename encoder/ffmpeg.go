package encoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"roundify/logger"
)

// MinVideoKbps is the floor for computed video bitrates.
const MinVideoKbps = 200

// VideoBitrate returns the video bitrate in kbit/s that keeps a clip of
// clipSec seconds under maxMB megabytes once audioKbps is accounted for.
func VideoBitrate(maxMB int, clipSec float64, audioKbps int) int {
	if clipSec <= 0 {
		return MinVideoKbps
	}
	kbps := int(float64(maxMB)*8192/clipSec) - audioKbps
	if kbps < MinVideoKbps {
		return MinVideoKbps
	}
	return kbps
}

// ParseProgressLine reads one `key=value` line of ffmpeg -progress output
// and returns the elapsed output time in milliseconds. ffmpeg reports both
// out_time_ms and out_time_us in microseconds.
func ParseProgressLine(line string) (int64, bool) {
	key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	switch key {
	case "out_time_ms", "out_time_us":
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return us / 1000, true
	default:
		return 0, false
	}
}

// scanProgress forwards parsed progress until r is exhausted.
func scanProgress(r io.Reader, onProgress ProgressFunc) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ms, ok := ParseProgressLine(scanner.Text()); ok && onProgress != nil {
			onProgress(ms)
		}
	}
	return scanner.Err()
}

func clipArgs(input string, opts EncodeOptions) []string {
	return []string{
		"-y",
		"-ss", formatSeconds(opts.Offset),
		"-t", formatSeconds(opts.Duration),
		"-i", input,
	}
}

func outputArgs(output string, opts EncodeOptions) []string {
	audio := opts.AudioKbps
	if audio <= 0 {
		audio = 128
	}
	return []string{
		"-c:v", "libx264",
		"-b:v", fmt.Sprintf("%dk", opts.VideoKbps),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", audio),
		"-progress", "pipe:1",
		"-nostats",
		"-f", "mp4",
		output,
	}
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// runFFmpeg executes ffmpeg with args, streaming progress to onProgress.
// The process is killed when ctx is cancelled.
func runFFmpeg(ctx context.Context, binary string, args []string, onProgress ProgressFunc) error {
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	var stderrBuf strings.Builder
	cmd.Stderr = &limitedWriter{w: &stderrBuf, remaining: 8 << 10}

	logger.Debugf("running %s %s", binary, strings.Join(args, " "))
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}

	scanErr := scanProgress(stdout, onProgress)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffmpeg execution: %w - %s", err, strings.TrimSpace(stderrBuf.String()))
	}
	if scanErr != nil {
		return fmt.Errorf("ffmpeg progress: %w", scanErr)
	}
	return nil
}

// limitedWriter keeps the first bytes of ffmpeg's stderr for error messages.
type limitedWriter struct {
	w         io.Writer
	remaining int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if l.remaining <= 0 {
		return n, nil
	}
	if len(p) > l.remaining {
		p = p[:l.remaining]
	}
	l.remaining -= len(p)
	if _, err := l.w.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}
