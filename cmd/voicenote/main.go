package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/cli"
	"github.com/voicenote-dev/voicenote/internal/ffmpeg"
	"github.com/voicenote-dev/voicenote/internal/session"
	"github.com/voicenote-dev/voicenote/internal/transcribe"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Exit codes.
const (
	ExitOK            = 0
	ExitGeneral       = 1
	ExitUsage         = 2
	ExitSetup         = 3
	ExitCapture       = 4
	ExitTranscription = 5
	ExitInterrupt     = 130
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// Context with signal cancellation. SIGINT during a recording is handled
	// by the session itself; this covers everything outside a session.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:     "voicenote",
		Short:   "Record, transcribe, and store voice notes",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.RecordCmd(env))
	rootCmd.AddCommand(cli.DevicesCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors: missing tooling or no usable device.
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, cli.ErrNoDevice) ||
		errors.Is(err, audio.ErrNoDevices) || errors.Is(err, audio.ErrNoWorkingFormat) {
		return ExitSetup
	}

	// Capture errors: the session started but could not produce a recording.
	if errors.Is(err, session.ErrStartFailure) {
		return ExitCapture
	}

	if errors.Is(err, transcribe.ErrTranscription) {
		return ExitTranscription
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate
// Cobra usage errors. Cobra doesn't expose typed errors, so string matching
// is the only reliable approach.
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"unknown command",
	"flag needs an argument",
	"invalid argument",
	"accepts ",
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
