package cli

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/config"
	"github.com/voicenote-dev/voicenote/internal/ffmpeg"
	"github.com/voicenote-dev/voicenote/internal/prefs"
	"github.com/voicenote-dev/voicenote/internal/session"
	"github.com/voicenote-dev/voicenote/internal/transcribe"
)

// Env holds injectable dependencies for CLI commands.
// This is the central injection point for testing commands in isolation.
// Use DefaultEnv() or NewEnv() to create a valid instance.
type Env struct {
	// I/O and environment
	Stderr io.Writer
	Stdin  io.Reader
	Now    func() time.Time

	// Collaborators
	ConfigLoader   ConfigLoader
	FFmpegResolver FFmpegResolver
	PrefsPath      func() (string, error)
	NewCatalog     func(ffmpegPath string, priorities []string) DeviceCatalog
	NewSession     func(cfg session.Config, log zerolog.Logger, stderr io.Writer) SessionRunner
	NewTranscriber func(apiKey string) transcribe.Transcriber
}

// ConfigLoader loads user configuration.
type ConfigLoader interface {
	Load() (config.Config, error)
}

// FFmpegResolver resolves the path to the FFmpeg binary.
type FFmpegResolver interface {
	Resolve(configured string) (string, error)
}

// DeviceCatalog enumerates devices and negotiates working input formats.
type DeviceCatalog interface {
	Enumerate(ctx context.Context) []audio.Device
	NegotiateFormat(ctx context.Context, d audio.Device) (string, error)
	DetectBestDevice(ctx context.Context) string
	FindWorkingDevice(ctx context.Context) (audio.Device, string, error)
	ProbeCapabilities(ctx context.Context, inputArg string) audio.DeviceCapabilities
}

// SessionRunner runs one capture attempt.
type SessionRunner interface {
	Run(ctx context.Context) (session.Result, error)
}

// EnvOption configures an Env.
type EnvOption func(*Env)

// WithStderr sets the stderr writer.
func WithStderr(w io.Writer) EnvOption {
	return func(e *Env) { e.Stderr = w }
}

// WithStdin sets the operator input reader.
func WithStdin(r io.Reader) EnvOption {
	return func(e *Env) { e.Stdin = r }
}

// WithNow sets the time provider.
func WithNow(fn func() time.Time) EnvOption {
	return func(e *Env) { e.Now = fn }
}

// WithConfigLoader sets the config loader.
func WithConfigLoader(l ConfigLoader) EnvOption {
	return func(e *Env) { e.ConfigLoader = l }
}

// WithFFmpegResolver sets the FFmpeg resolver.
func WithFFmpegResolver(r FFmpegResolver) EnvOption {
	return func(e *Env) { e.FFmpegResolver = r }
}

// WithPrefsPath sets the device-preference file locator.
func WithPrefsPath(fn func() (string, error)) EnvOption {
	return func(e *Env) { e.PrefsPath = fn }
}

// WithCatalogFactory sets the device catalog factory.
func WithCatalogFactory(fn func(ffmpegPath string, priorities []string) DeviceCatalog) EnvOption {
	return func(e *Env) { e.NewCatalog = fn }
}

// WithSessionFactory sets the capture session factory.
func WithSessionFactory(fn func(cfg session.Config, log zerolog.Logger, stderr io.Writer) SessionRunner) EnvOption {
	return func(e *Env) { e.NewSession = fn }
}

// WithTranscriberFactory sets the transcriber factory.
func WithTranscriberFactory(fn func(apiKey string) transcribe.Transcriber) EnvOption {
	return func(e *Env) { e.NewTranscriber = fn }
}

// DefaultEnv returns an Env with production defaults.
func DefaultEnv() *Env {
	return &Env{
		Stderr:         os.Stderr,
		Stdin:          os.Stdin,
		Now:            time.Now,
		ConfigLoader:   defaultConfigLoader{},
		FFmpegResolver: ffmpeg.NewResolver(),
		PrefsPath:      prefs.DefaultPath,
		NewCatalog: func(ffmpegPath string, priorities []string) DeviceCatalog {
			return audio.NewCatalog(ffmpegPath, audio.WithPriorities(priorities))
		},
		NewSession: func(cfg session.Config, log zerolog.Logger, stderr io.Writer) SessionRunner {
			return session.NewController(cfg, log, session.WithStderr(stderr))
		},
		NewTranscriber: func(apiKey string) transcribe.Transcriber {
			return transcribe.NewOpenAITranscriber(openai.NewClient(apiKey))
		},
	}
}

// NewEnv creates an Env with the given options applied to defaults.
func NewEnv(opts ...EnvOption) *Env {
	env := DefaultEnv()
	for _, opt := range opts {
		opt(env)
	}
	return env
}

// defaultConfigLoader implements ConfigLoader using the config package.
type defaultConfigLoader struct{}

func (defaultConfigLoader) Load() (config.Config, error) {
	return config.Load()
}
