package encoder

import (
	"context"
	"fmt"
)

// RoundFilter crops the centre square and scales it to size×size.
func RoundFilter(size int) string {
	return fmt.Sprintf(`crop='min(iw\,ih)':min(iw\,ih),setsar=1,scale=%d:%d`, size, size)
}

// RoundArgs builds the ffmpeg arguments for a square video-note clip.
func RoundArgs(input, output string, opts EncodeOptions) []string {
	args := clipArgs(input, opts)
	args = append(args, "-vf", RoundFilter(opts.Size))
	return append(args, outputArgs(output, opts)...)
}

// EncodeRound cuts the clip and crops it to a square.
func EncodeRound(ctx context.Context, input, output string, opts EncodeOptions, onProgress ProgressFunc) error {
	return runFFmpeg(ctx, opts.FFmpegPath, RoundArgs(input, output, opts), onProgress)
}
