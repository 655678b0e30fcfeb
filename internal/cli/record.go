package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/format"
	"github.com/voicenote-dev/voicenote/internal/logging"
	"github.com/voicenote-dev/voicenote/internal/notes"
	"github.com/voicenote-dev/voicenote/internal/prefs"
	"github.com/voicenote-dev/voicenote/internal/session"
)

// captureFileName is the raw capture artifact inside the session temp directory.
const captureFileName = "capture.wav"

// recordOptions holds the validated options for the record command.
type recordOptions struct {
	device       string
	maxDuration  int
	dryRun       bool
	debug        bool
	keepTemp     bool
	noTranscribe bool
}

// RecordCmd creates the record command.
// The env parameter provides injectable dependencies for testing.
func RecordCmd(env *Env) *cobra.Command {
	var opts recordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note and transcribe it",
		Long: `Record a voice note from the microphone, then transcribe and store it.

While recording: ENTER finishes, E extends by 30 seconds, C (or Ctrl+C) cancels.
The device is chosen from the saved preference (voicenote devices --select),
then by name priority, then by trial captures against each listed device.`,
		Example: `  voicenote record
  voicenote record --device 2 --max-duration 600
  voicenote record --no-transcribe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(cmd.Context(), env, opts)
		},
	}

	cmd.Flags().StringVar(&opts.device, "device", "", "Audio device index (overrides saved preference)")
	cmd.Flags().IntVar(&opts.maxDuration, "max-duration", 0, "Hard recording ceiling in seconds (default from config)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print the capture command without recording")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Show capture subprocess diagnostics")
	cmd.Flags().BoolVar(&opts.keepTemp, "keep-temp", false, "Keep the session temp directory for inspection")
	cmd.Flags().BoolVar(&opts.noTranscribe, "no-transcribe", false, "Store the audio without transcribing")

	return cmd
}

// runRecord executes one record-transcribe-store cycle.
func runRecord(ctx context.Context, env *Env, opts recordOptions) error {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}
	if opts.maxDuration > 0 {
		cfg.MaxDurationSeconds = opts.maxDuration
	}
	if opts.keepTemp {
		cfg.KeepTempFiles = true
	}

	log := logging.New(env.Stderr, opts.debug)

	ffmpegPath, err := env.FFmpegResolver.Resolve(cfg.FFmpegPath)
	if err != nil {
		return err
	}

	catalog := env.NewCatalog(ffmpegPath, cfg.DevicePriorities)

	device, inputArg, caps, err := chooseDevice(ctx, env, catalog, opts.device)
	if err != nil {
		return err
	}
	if caps == (audio.DeviceCapabilities{}) {
		caps = catalog.ProbeCapabilities(ctx, inputArg)
	}
	log.Debug().
		Str("device", device.Index).
		Str("name", device.Name).
		Str("input", inputArg).
		Int("sample_rate", caps.SampleRate).
		Int("channels", caps.Channels).
		Msg("selected capture device")

	tempDir, err := os.MkdirTemp("", "voicenote-*")
	if err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}

	sessionCfg := session.Config{
		FFmpegPath:         ffmpegPath,
		BackendFormat:      audio.HostInputFormat(),
		InputAddress:       inputArg,
		Capabilities:       caps,
		MaxDurationSeconds: cfg.MaxDurationSeconds,
		OutputPath:         filepath.Join(tempDir, captureFileName),
		TempDir:            tempDir,
		KeepTempFiles:      cfg.KeepTempFiles,
		DryRun:             opts.dryRun,
	}

	result, err := env.NewSession(sessionCfg, log, env.Stderr).Run(ctx)
	if err != nil {
		// The session removes its own temp dir on failure; this covers
		// runners that error out before their cleanup takes ownership.
		if !cfg.KeepTempFiles {
			_ = os.RemoveAll(tempDir)
		}
		return err
	}
	if opts.dryRun {
		// No capture attempt ran; nothing inside the session directory.
		_ = os.RemoveAll(tempDir)
		return nil
	}
	if result.Cancelled {
		return nil
	}

	transcript := transcribeCapture(ctx, env, cfg.OpenAIAPIKey, result.AudioFilePath, opts.noTranscribe)

	note, err := notes.NewStore(cfg.NotesDir, notes.WithNow(env.Now)).Save(result.AudioFilePath, transcript)
	if err != nil {
		return fmt.Errorf("store note: %w", err)
	}

	// The capture artifact is copied into the note; the session directory is
	// no longer needed unless retention was requested.
	if !cfg.KeepTempFiles {
		_ = os.RemoveAll(tempDir)
	}

	fmt.Fprintf(env.Stderr, "Note saved: %s (%s)\n", note.AudioPath, format.Size(fileSize(note.AudioPath)))
	if note.TranscriptPath != "" {
		fmt.Fprintf(env.Stderr, "Transcript: %s\n", note.TranscriptPath)
	}
	if transcript != "" {
		fmt.Fprintf(env.Stderr, "\n%s\n", transcript)
	}
	return nil
}

// transcribeCapture returns the transcript text, or "" when transcription is
// skipped or fails. Transcription failures never lose the recording; the audio
// note is stored regardless.
func transcribeCapture(ctx context.Context, env *Env, apiKey, audioPath string, skip bool) string {
	if skip {
		return ""
	}
	if apiKey == "" {
		fmt.Fprintf(env.Stderr, "Warning: %v; storing audio without transcript\n", ErrAPIKeyMissing)
		return ""
	}

	text, err := env.NewTranscriber(apiKey).Transcribe(ctx, audioPath)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: transcription failed: %v; storing audio without transcript\n", err)
		return ""
	}
	return text
}

// chooseDevice picks the capture device and negotiates its input address.
//
// Precedence: the --device flag, then the saved preference (re-verified
// against the current listing, since indices shift across reboots), then
// name-priority auto-detection, then a trial capture against every listed
// device. Saved capabilities ride along only when the preferred device is
// still present under the same name.
func chooseDevice(ctx context.Context, env *Env, catalog DeviceCatalog, flagDevice string) (audio.Device, string, audio.DeviceCapabilities, error) {
	if flagDevice != "" {
		d := resolveListed(ctx, catalog, flagDevice)
		inputArg, err := catalog.NegotiateFormat(ctx, d)
		if err != nil {
			return audio.Device{}, "", audio.DeviceCapabilities{},
				fmt.Errorf("%w: device %s did not accept any input format", ErrNoDevice, flagDevice)
		}
		return d, inputArg, audio.DeviceCapabilities{}, nil
	}

	if d, inputArg, caps, ok := fromPreference(ctx, env, catalog); ok {
		return d, inputArg, caps, nil
	}

	d := resolveListed(ctx, catalog, catalog.DetectBestDevice(ctx))
	if inputArg, err := catalog.NegotiateFormat(ctx, d); err == nil {
		return d, inputArg, audio.DeviceCapabilities{}, nil
	}

	d, inputArg, err := catalog.FindWorkingDevice(ctx)
	if err != nil {
		return audio.Device{}, "", audio.DeviceCapabilities{},
			fmt.Errorf("%w: %v\nCheck microphone permissions or run: voicenote devices --select", ErrNoDevice, err)
	}
	return d, inputArg, audio.DeviceCapabilities{}, nil
}

// fromPreference tries the saved device preference. A stale or unusable
// preference is reported and skipped, never fatal.
func fromPreference(ctx context.Context, env *Env, catalog DeviceCatalog) (audio.Device, string, audio.DeviceCapabilities, bool) {
	path, err := env.PrefsPath()
	if err != nil {
		return audio.Device{}, "", audio.DeviceCapabilities{}, false
	}
	pref, err := prefs.Load(path)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: %v\n", err)
		return audio.Device{}, "", audio.DeviceCapabilities{}, false
	}
	if pref == nil {
		return audio.Device{}, "", audio.DeviceCapabilities{}, false
	}

	d, sameName := verifyPreference(ctx, catalog, *pref)
	inputArg, err := catalog.NegotiateFormat(ctx, d)
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: saved device %q is unavailable; auto-detecting\n", pref.AudioDeviceName)
		return audio.Device{}, "", audio.DeviceCapabilities{}, false
	}

	caps := audio.DeviceCapabilities{}
	if sameName {
		caps = pref.Capabilities()
	}
	return d, inputArg, caps, true
}

// verifyPreference maps a saved preference onto the current device listing.
// Name match wins over index match; sameName reports whether the saved
// capabilities still describe the device we resolved to.
func verifyPreference(ctx context.Context, catalog DeviceCatalog, pref prefs.DevicePreference) (audio.Device, bool) {
	devices := catalog.Enumerate(ctx)

	for _, d := range devices {
		if d.Name == pref.AudioDeviceName {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Index == pref.AudioDevice {
			return d, false
		}
	}
	// Listing unavailable: trust the saved index and let negotiation decide.
	return audio.Device{Index: pref.AudioDevice, Name: pref.AudioDeviceName}, true
}

// resolveListed returns the listed device with the given index, keeping its
// name for diagnostics, or a bare-index device when the listing lacks it.
func resolveListed(ctx context.Context, catalog DeviceCatalog, index string) audio.Device {
	for _, d := range catalog.Enumerate(ctx) {
		if d.Index == index {
			return d
		}
	}
	return audio.Device{Index: index}
}

// fileSize returns the size of a file in bytes, 0 if unreadable.
func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
