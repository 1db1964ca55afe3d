package encoder

import (
	"context"
	"fmt"
)

// TrimFilter fits the longest side to size keeping the aspect ratio. Both
// dimensions stay even for yuv420p.
func TrimFilter(size int) string {
	return fmt.Sprintf("scale='if(gte(iw,ih),%d,-2)':'if(gte(iw,ih),-2,%d)',setsar=1", size, size)
}

// TrimArgs builds the ffmpeg arguments for a plain clip.
func TrimArgs(input, output string, opts EncodeOptions) []string {
	args := clipArgs(input, opts)
	args = append(args, "-vf", TrimFilter(opts.Size))
	return append(args, outputArgs(output, opts)...)
}

// EncodeTrim cuts the clip without cropping.
func EncodeTrim(ctx context.Context, input, output string, opts EncodeOptions, onProgress ProgressFunc) error {
	return runFFmpeg(ctx, opts.FFmpegPath, TrimArgs(input, output, opts), onProgress)
}
