package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// DevicesCmd creates the devices command.
// Lists audio input devices; with --select, tests each one and saves the choice.
func DevicesCmd(env *Env) *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List and select audio input devices",
		Long: `List the audio input devices detected by FFmpeg.

With --select, each device is trial-tested, the working ones are offered for
selection, and the choice is saved for future record sessions.`,
		Example: `  voicenote devices
  voicenote devices --select`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if interactive {
				return runSelectDevice(cmd.Context(), env)
			}
			return runListDevices(cmd.Context(), env)
		},
	}

	cmd.Flags().BoolVar(&interactive, "select", false, "Interactively test devices and save the choice")

	return cmd
}

// runListDevices resolves FFmpeg and lists available audio devices.
func runListDevices(ctx context.Context, env *Env) error {
	catalog, err := newCatalog(env)
	if err != nil {
		return err
	}

	devices := catalog.Enumerate(ctx)
	if len(devices) == 0 {
		fmt.Fprintln(env.Stderr, "No audio input devices found.")
		fmt.Fprintln(env.Stderr, "Check microphone permissions for your terminal application.")
		return nil
	}

	for _, d := range devices {
		fmt.Fprintf(env.Stderr, "[%s] %s\n", d.Index, d.Name)
	}
	return nil
}

// newCatalog loads config, resolves FFmpeg, and builds the device catalog.
func newCatalog(env *Env) (DeviceCatalog, error) {
	cfg, err := env.ConfigLoader.Load()
	if err != nil {
		fmt.Fprintf(env.Stderr, "Warning: failed to load config: %v\n", err)
	}

	ffmpegPath, err := env.FFmpegResolver.Resolve(cfg.FFmpegPath)
	if err != nil {
		return nil, err
	}

	return env.NewCatalog(ffmpegPath, cfg.DevicePriorities), nil
}
