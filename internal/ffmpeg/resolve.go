package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
)

// Environment variable for a custom ffmpeg path.
const envFFmpegPath = "FFMPEG_PATH"

// ---------------------------------------------------------------------------
// Resolver - testable FFmpeg resolution with dependency injection
// ---------------------------------------------------------------------------

// envProvider abstracts environment and path lookup operations.
type envProvider interface {
	Getenv(key string) string
	LookPath(file string) (string, error)
	Stat(name string) (os.FileInfo, error)
}

// osEnvProvider implements envProvider using os and exec packages.
type osEnvProvider struct{}

func (osEnvProvider) Getenv(key string) string              { return os.Getenv(key) }
func (osEnvProvider) LookPath(file string) (string, error)  { return exec.LookPath(file) }
func (osEnvProvider) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

var _ envProvider = osEnvProvider{}

// Resolver finds the FFmpeg binary.
type Resolver struct {
	env  envProvider
	goos string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvProvider sets the environment provider implementation.
func WithEnvProvider(e envProvider) ResolverOption {
	return func(r *Resolver) { r.env = e }
}

// WithGOOS sets the target platform (for testing cross-platform help text).
func WithGOOS(goos string) ResolverOption {
	return func(r *Resolver) { r.goos = goos }
}

// NewResolver creates a Resolver with the given options.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		env:  osEnvProvider{},
		goos: runtime.GOOS,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve finds ffmpeg using the following precedence:
//  1. configured explicit path (error if set but invalid)
//  2. FFMPEG_PATH environment variable (error if set but invalid)
//  3. System PATH
func (r *Resolver) Resolve(configured string) (string, error) {
	if configured != "" {
		if _, err := r.env.Stat(configured); err != nil {
			return "", fmt.Errorf("%w: configured path %q does not exist", ErrNotFound, configured)
		}
		return configured, nil
	}

	if envPath := r.env.Getenv(envFFmpegPath); envPath != "" {
		if _, err := r.env.Stat(envPath); err != nil {
			return "", fmt.Errorf("%w: %s is set to %q but binary not found", ErrNotFound, envFFmpegPath, envPath)
		}
		return envPath, nil
	}

	if path, err := r.env.LookPath("ffmpeg"); err == nil {
		return path, nil
	}

	return "", fmt.Errorf("%w\n\n%s", ErrNotFound, r.installInstructions())
}

// installInstructions returns platform-specific instructions.
func (r *Resolver) installInstructions() string {
	switch r.goos {
	case "darwin":
		return `To install FFmpeg:
  brew install ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "linux":
		return `To install FFmpeg:
  Ubuntu/Debian: sudo apt install ffmpeg
  Fedora:        sudo dnf install ffmpeg
  Arch:          sudo pacman -S ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	case "windows":
		return `To install FFmpeg:
  winget install ffmpeg

Or set FFMPEG_PATH environment variable to your ffmpeg.exe.`
	default:
		return `To install FFmpeg, download from https://ffmpeg.org/download.html
Or set FFMPEG_PATH environment variable to your ffmpeg binary.`
	}
}
