// Package prefs persists the operator's audio device choice between runs.
//
// The preference is a hint, not a guarantee: device indices shift across
// reboots, so readers must re-verify the device before trusting it.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voicenote-dev/voicenote/internal/audio"
)

// fileName is the preference file inside the voicenote config directory.
const fileName = "devices.json"

// DevicePreference is the persisted device choice written by the interactive
// selector and read back as a hint before each capture session.
type DevicePreference struct {
	AudioDevice     string `json:"audioDevice"`
	AudioDeviceName string `json:"audioDeviceName"`
	SampleRate      int    `json:"sampleRate,omitempty"`
	Channels        int    `json:"channels,omitempty"`
	ChannelLayout   string `json:"channelLayout,omitempty"`
}

// Capabilities returns the stored capability fields as DeviceCapabilities.
func (p DevicePreference) Capabilities() audio.DeviceCapabilities {
	return audio.DeviceCapabilities{
		SampleRate:    p.SampleRate,
		Channels:      p.Channels,
		ChannelLayout: p.ChannelLayout,
	}
}

// FromCapabilities builds a preference for a device with probed capabilities.
func FromCapabilities(d audio.Device, caps audio.DeviceCapabilities) DevicePreference {
	return DevicePreference{
		AudioDevice:     d.Index,
		AudioDeviceName: d.Name,
		SampleRate:      caps.SampleRate,
		Channels:        caps.Channels,
		ChannelLayout:   caps.ChannelLayout,
	}
}

// DefaultPath returns the per-user preference file location.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/voicenote.
func DefaultPath() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voicenote", fileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "voicenote", fileName), nil
}

// Load reads the preference file at path.
// A missing file means "no preference configured" and returns (nil, nil);
// callers must handle nil rather than treat it as an error.
func Load(path string) (*DevicePreference, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is constructed from config dir
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read device preference: %w", err)
	}

	var pref DevicePreference
	if err := json.Unmarshal(data, &pref); err != nil {
		return nil, fmt.Errorf("parse device preference %s: %w", path, err)
	}
	return &pref, nil
}

// Save writes the preference to path, creating parent directories as needed.
func Save(path string, pref DevicePreference) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil { // #nosec G301 -- user config dir
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(pref, "", "  ")
	if err != nil {
		return fmt.Errorf("encode device preference: %w", err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil { // #nosec G306 -- user config file
		return fmt.Errorf("write device preference: %w", err)
	}
	return nil
}
