package audio

import (
	"context"
	"regexp"
	"runtime"
	"strings"
)

// Device is one host-exposed audio input endpoint from a single enumeration.
// Index is host-assigned and not stable across reboots; never cache it.
type Device struct {
	Index string
	Name  string
}

// DeviceCapabilities holds best-effort probe results.
// Zero values mean "unknown", not literal zero.
type DeviceCapabilities struct {
	SampleRate    int
	Channels      int
	ChannelLayout string
}

// runner runs short FFmpeg invocations and returns their stderr output.
// Satisfied by *ffmpeg.Executor; tests inject fakes.
type runner interface {
	RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error)
}

// fallbackDeviceIndex is returned by DetectBestDevice when enumeration fails
// or nothing matches the priority list. Index 0 is the first audio device on
// every backend that numbers its devices.
const fallbackDeviceIndex = "0"

// DefaultDevicePriorities orders device-name substrings from most to least
// preferred. Wireless headsets beat built-in microphones; overridable via config.
var DefaultDevicePriorities = []string{
	"airpods",
	"macbook pro microphone",
	"built-in",
}

// Catalog enumerates capture devices and negotiates working input formats.
type Catalog struct {
	ffmpegPath string
	format     string // FFmpeg input format for the host backend.
	run        runner
	priorities []string
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithRunner sets the FFmpeg command runner.
func WithRunner(r runner) CatalogOption {
	return func(c *Catalog) { c.run = r }
}

// WithInputFormat overrides the host backend format (for testing).
func WithInputFormat(format string) CatalogOption {
	return func(c *Catalog) { c.format = format }
}

// WithPriorities sets the device-name priority list for DetectBestDevice.
func WithPriorities(p []string) CatalogOption {
	return func(c *Catalog) {
		if len(p) > 0 {
			c.priorities = p
		}
	}
}

// NewCatalog creates a Catalog using the given FFmpeg binary.
func NewCatalog(ffmpegPath string, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		ffmpegPath: ffmpegPath,
		format:     HostInputFormat(),
		priorities: DefaultDevicePriorities,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.run == nil {
		c.run = defaultRunner{}
	}
	return c
}

// HostInputFormat returns the FFmpeg input format for the current OS.
func HostInputFormat() string {
	switch runtime.GOOS {
	case "darwin":
		return "avfoundation"
	case "windows":
		return "dshow"
	default:
		return "alsa"
	}
}

// listDevicesArgs returns FFmpeg arguments to list audio devices for the given format.
// The listing is written to stderr and the invocation exits non-zero; both are normal.
func listDevicesArgs(format string) []string {
	switch format {
	case "avfoundation":
		return []string{"-f", "avfoundation", "-list_devices", "true", "-i", ""}
	case "dshow":
		return []string{"-f", "dshow", "-list_devices", "true", "-i", "dummy"}
	default:
		// ALSA has no -list_devices mode; a null trial still prints card info.
		return []string{"-f", "alsa", "-i", "default", "-t", "0", "-f", "null", "-"}
	}
}

// devicePattern matches "[0] MacBook Pro Microphone" shaped listing lines.
var devicePattern = regexp.MustCompile(`\[(\d+)\]\s+(.+)$`)

// Enumerate returns the audio input devices reported by the capture backend,
// in listing order. Parse or invocation failures yield an empty list, never an
// error: enumeration is a best-effort view and callers fall back to defaults.
func (c *Catalog) Enumerate(ctx context.Context) []Device {
	stderr, err := c.run.RunOutput(ctx, c.ffmpegPath, listDevicesArgs(c.format))
	if err != nil && stderr == "" {
		return nil
	}

	return parseDeviceListing(c.format, stderr)
}

// parseDeviceListing extracts "[index] name" entries from the audio section of
// an FFmpeg device listing.
func parseDeviceListing(format, stderr string) []Device {
	audioHeader, videoHeader := sectionHeaders(format)

	var devices []Device
	inAudioSection := audioHeader == ""

	for _, line := range strings.Split(stderr, "\n") {
		if audioHeader != "" && strings.Contains(line, audioHeader) {
			inAudioSection = true
			continue
		}
		if videoHeader != "" && strings.Contains(line, videoHeader) {
			inAudioSection = false
			continue
		}
		if !inAudioSection {
			continue
		}
		if m := devicePattern.FindStringSubmatch(line); m != nil {
			devices = append(devices, Device{Index: m[1], Name: strings.TrimSpace(m[2])})
		}
	}
	return devices
}

// sectionHeaders returns the listing section markers for a backend.
func sectionHeaders(format string) (audio, video string) {
	switch format {
	case "avfoundation":
		return "AVFoundation audio devices", "AVFoundation video devices"
	case "dshow":
		return "DirectShow audio devices", "DirectShow video devices"
	default:
		return "", ""
	}
}

// DetectBestDevice scans the device listing for the first name matching the
// priority list and returns its index. It never blocks on trial captures and
// never fails: when enumeration is empty or nothing matches, it returns the
// fixed fallback index and leaves liveness verification to the session.
func (c *Catalog) DetectBestDevice(ctx context.Context) string {
	devices := c.Enumerate(ctx)
	if len(devices) == 0 {
		return fallbackDeviceIndex
	}

	for _, want := range c.priorities {
		for _, d := range devices {
			if strings.Contains(strings.ToLower(d.Name), strings.ToLower(want)) {
				return d.Index
			}
		}
	}
	return fallbackDeviceIndex
}

// FindWorkingDevice enumerates devices and negotiates each in listing order,
// returning the first device that accepts a known input format.
func (c *Catalog) FindWorkingDevice(ctx context.Context) (Device, string, error) {
	devices := c.Enumerate(ctx)
	if len(devices) == 0 {
		return Device{}, "", ErrNoDevices
	}

	for _, d := range devices {
		if format, err := c.NegotiateFormat(ctx, d); err == nil {
			return d, format, nil
		}
	}
	return Device{}, "", ErrNoWorkingFormat
}

// defaultRunner delegates to the ffmpeg package's executor.
type defaultRunner struct{}

func (defaultRunner) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return runFFmpegOutput(ctx, ffmpegPath, args)
}
