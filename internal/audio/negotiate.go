package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// trialDuration caps each trial capture. One second is long enough for the
// backend to open the device and fail on a bad address, short enough to keep
// negotiation responsive.
const trialDuration = time.Second

// formatCandidates returns the input address syntaxes to try for a device, in
// order. Which syntax a given FFmpeg build accepts for audio-only capture
// varies by OS, driver, and build; there is no capability query for it, so
// negotiation is trial-and-error.
func formatCandidates(format string, d Device) []string {
	switch format {
	case "avfoundation":
		return []string{
			":" + d.Index,     // bare colon + index (no video track)
			"none:" + d.Index, // explicit none-device + index
			d.Index,           // raw index (older builds)
		}
	case "dshow":
		return []string{
			"audio=" + d.Name,
			"audio=" + d.Index,
		}
	default:
		return []string{
			"hw:" + d.Index,
			"plughw:" + d.Index,
			"default",
		}
	}
}

// NegotiateFormat finds an input address the capture backend accepts for the
// device by running capped trial captures to a throwaway file. Returns the
// first candidate that completes without error, or ErrNoWorkingFormat when
// all candidates fail. The throwaway file is removed regardless of outcome.
func (c *Catalog) NegotiateFormat(ctx context.Context, d Device) (string, error) {
	for _, candidate := range formatCandidates(c.format, d) {
		if c.tryCapture(ctx, c.format, candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: device %s (%s)", ErrNoWorkingFormat, d.Index, d.Name)
}

// tryCapture runs one short trial capture and reports whether it succeeded.
func (c *Catalog) tryCapture(ctx context.Context, format, inputArg string) bool {
	trial := filepath.Join(os.TempDir(), fmt.Sprintf("voicenote-trial-%d.wav", time.Now().UnixNano()))
	defer func() { _ = os.Remove(trial) }()

	args := []string{
		"-y",
		"-f", format,
		"-i", inputArg,
		"-t", fmt.Sprintf("%g", trialDuration.Seconds()),
		"-ac", "1",
		trial,
	}

	_, err := c.run.RunOutput(ctx, c.ffmpegPath, args)
	return err == nil
}
