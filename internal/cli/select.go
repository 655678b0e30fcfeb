package cli

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/prefs"
)

// trialConcurrency bounds parallel trial captures during selection. Opening
// many devices at once trips exclusive-access backends, so keep it small.
const trialConcurrency = 2

// testedDevice is one device with its trial-capture outcome.
type testedDevice struct {
	device   audio.Device
	inputArg string
	working  bool
}

// runSelectDevice tests every listed device, prompts the operator for a
// choice among the working ones, and persists it as the device preference.
func runSelectDevice(ctx context.Context, env *Env) error {
	catalog, err := newCatalog(env)
	if err != nil {
		return err
	}

	devices := catalog.Enumerate(ctx)
	if len(devices) == 0 {
		fmt.Fprintln(env.Stderr, "No audio input devices found.")
		fmt.Fprintln(env.Stderr, "Check microphone permissions for your terminal application, then retry.")
		return nil
	}

	fmt.Fprintf(env.Stderr, "Testing %d device(s)...\n", len(devices))
	tested := testDevices(ctx, catalog, devices)

	working := 0
	for _, t := range tested {
		status := "FAILED"
		if t.working {
			status = "OK"
			working++
		}
		fmt.Fprintf(env.Stderr, "  [%s] %-40s %s\n", t.device.Index, t.device.Name, status)
	}
	if working == 0 {
		fmt.Fprintln(env.Stderr, "No device passed a trial capture.")
		fmt.Fprintln(env.Stderr, "Check microphone permissions or close applications using the microphone.")
		return nil
	}

	choice, err := promptChoice(env, tested)
	if err != nil {
		return err
	}

	caps := catalog.ProbeCapabilities(ctx, choice.inputArg)
	pref := prefs.FromCapabilities(choice.device, caps)

	path, err := env.PrefsPath()
	if err != nil {
		return err
	}
	if err := prefs.Save(path, pref); err != nil {
		return err
	}

	fmt.Fprintf(env.Stderr, "Saved device preference: [%s] %s\n", choice.device.Index, choice.device.Name)
	return nil
}

// testDevices runs a bounded-concurrency trial capture against every device,
// preserving listing order in the result.
func testDevices(ctx context.Context, catalog DeviceCatalog, devices []audio.Device) []testedDevice {
	tested := make([]testedDevice, len(devices))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(trialConcurrency)

	for i, d := range devices {
		i, d := i, d
		g.Go(func() error {
			inputArg, err := catalog.NegotiateFormat(ctx, d)
			tested[i] = testedDevice{device: d, inputArg: inputArg, working: err == nil}
			return nil
		})
	}
	// Workers never return errors; Wait only orders the writes above.
	_ = g.Wait()

	return tested
}

// promptChoice reads the operator's selection, re-prompting on invalid input.
// "q" or end of input aborts the selection.
func promptChoice(env *Env, tested []testedDevice) (testedDevice, error) {
	byIndex := make(map[string]testedDevice, len(tested))
	for _, t := range tested {
		if t.working {
			byIndex[t.device.Index] = t
		}
	}

	scanner := bufio.NewScanner(env.Stdin)
	for {
		fmt.Fprint(env.Stderr, "Select a device index (q to quit): ")
		if !scanner.Scan() {
			return testedDevice{}, ErrSelectionAborted
		}

		input := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(input, "q") {
			return testedDevice{}, ErrSelectionAborted
		}
		if _, err := strconv.Atoi(input); err != nil {
			fmt.Fprintf(env.Stderr, "Not a device index: %q\n", input)
			continue
		}

		choice, ok := byIndex[input]
		if !ok {
			fmt.Fprintf(env.Stderr, "Device %s is not in the working list\n", input)
			continue
		}
		return choice, nil
	}
}
