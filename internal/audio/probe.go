package audio

import (
	"context"
	"regexp"
	"strconv"
	"strings"
)

// streamInfoPattern matches the audio stream line FFmpeg prints when it opens
// a device, e.g.:
//
//	Stream #0:0: Audio: pcm_f32le, 48000 Hz, mono, flt, 1536 kb/s
var streamInfoPattern = regexp.MustCompile(`Audio:.*?(\d+)\s*Hz,\s*([^,]+)`)

// channelsPattern matches explicit channel counts like "2 channels".
var channelsPattern = regexp.MustCompile(`^(\d+)\s+channels`)

// ProbeCapabilities queries a device's native sample rate, channel count, and
// layout by opening it for a near-zero-length capture and parsing the stream
// info the backend prints. Best-effort: any failure yields empty capabilities,
// never an error - callers treat unknown fields as "use defaults".
// inputArg must be an address previously returned by NegotiateFormat for the
// device; an un-negotiated address fails the open and probes as unknown.
func (c *Catalog) ProbeCapabilities(ctx context.Context, inputArg string) DeviceCapabilities {
	args := []string{
		"-f", c.format,
		"-i", inputArg,
		"-t", "0.1",
		"-f", "null", "-",
	}

	stderr, err := c.run.RunOutput(ctx, c.ffmpegPath, args)
	if err != nil && stderr == "" {
		return DeviceCapabilities{}
	}

	return parseStreamInfo(stderr)
}

// parseStreamInfo extracts capabilities from FFmpeg stream info output.
func parseStreamInfo(stderr string) DeviceCapabilities {
	m := streamInfoPattern.FindStringSubmatch(stderr)
	if m == nil {
		return DeviceCapabilities{}
	}

	var caps DeviceCapabilities
	if rate, err := strconv.Atoi(m[1]); err == nil {
		caps.SampleRate = rate
	}

	layout := strings.TrimSpace(m[2])
	caps.ChannelLayout = layout
	caps.Channels = channelsFromLayout(layout)

	return caps
}

// channelsFromLayout maps a layout token to a channel count, 0 if unknown.
func channelsFromLayout(layout string) int {
	switch layout {
	case "mono":
		return 1
	case "stereo":
		return 2
	}
	if m := channelsPattern.FindStringSubmatch(layout); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	return 0
}
