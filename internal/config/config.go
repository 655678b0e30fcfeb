// Package config loads user configuration from ~/.config/voicenote/config.toml
// with environment-variable overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultMaxDurationSeconds is the hard recording ceiling when unconfigured.
const DefaultMaxDurationSeconds = 300

// Config holds user configuration.
type Config struct {
	// NotesDir is where finished notes (audio + transcript) are stored.
	NotesDir string
	// MaxDurationSeconds is the hard ceiling handed to the capture subprocess.
	MaxDurationSeconds int
	// DevicePriorities orders device-name substrings for auto-detection.
	DevicePriorities []string
	// FFmpegPath overrides FFmpeg resolution when set.
	FFmpegPath string
	// KeepTempFiles retains the session temp directory for post-mortem inspection.
	KeepTempFiles bool
	// OpenAIAPIKey authenticates the transcription call.
	OpenAIAPIKey string
}

type fileConfig struct {
	NotesDir           string   `toml:"notes_dir"`
	MaxDurationSeconds int      `toml:"max_duration_seconds"`
	DevicePriorities   []string `toml:"device_priorities"`
	FFmpegPath         string   `toml:"ffmpeg_path"`
	KeepTempFiles      bool     `toml:"keep_temp_files"`
}

// Load reads the config file (if present) and applies env overrides.
// A missing file is not an error; defaults apply.
func Load() (Config, error) {
	cfg := Config{
		NotesDir:           defaultNotesDir(),
		MaxDurationSeconds: DefaultMaxDurationSeconds,
	}

	if path := filePath(); path != "" {
		var fc fileConfig
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return cfg, err
		}
		if fc.NotesDir != "" {
			cfg.NotesDir = expandTilde(fc.NotesDir)
		}
		if fc.MaxDurationSeconds > 0 {
			cfg.MaxDurationSeconds = fc.MaxDurationSeconds
		}
		cfg.DevicePriorities = fc.DevicePriorities
		cfg.FFmpegPath = expandTilde(fc.FFmpegPath)
		cfg.KeepTempFiles = fc.KeepTempFiles
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VOICENOTE_NOTES_DIR"); v != "" {
		cfg.NotesDir = expandTilde(v)
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.OpenAIAPIKey = v
	}
}

// Dir returns the configuration directory path.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config/voicenote.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "voicenote")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "voicenote")
}

// filePath returns the config file path, or "" when it does not exist.
func filePath() string {
	d := Dir()
	if d == "" {
		return ""
	}
	path := filepath.Join(d, "config.toml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func defaultNotesDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "voicenotes")
	}
	return "voicenotes"
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
