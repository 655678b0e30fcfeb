package audio

import (
	"context"

	"github.com/voicenote-dev/voicenote/internal/ffmpeg"
)

// runFFmpegOutput is the production runner implementation.
func runFFmpegOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return ffmpeg.RunOutput(ctx, ffmpegPath, args)
}
