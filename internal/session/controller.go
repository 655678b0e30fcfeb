package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/ffmpeg"
	"github.com/voicenote-dev/voicenote/internal/format"
)

// Timing constants for one attempt.
const (
	// startGraceWindow: a non-zero exit this soon after spawn means the
	// device is busy, denied, or misaddressed - not a normal finish.
	startGraceWindow = 2 * time.Second

	// stopGrace is how long the subprocess gets to finalize the file after a
	// graceful stop request before it is killed.
	stopGrace = 200 * time.Millisecond

	// flushWait gives the OS time to flush the finished file to disk before
	// it is verified.
	flushWait = 500 * time.Millisecond
)

// Config is the immutable input to one capture attempt.
type Config struct {
	FFmpegPath         string
	BackendFormat      string // FFmpeg input format, e.g. "avfoundation".
	InputAddress       string // negotiated device address, passed through verbatim
	Capabilities       audio.DeviceCapabilities
	MaxDurationSeconds int
	OutputPath         string
	// TempDir is the session working directory; removed by cleanup except on
	// a normal finish (the artifact inside is still needed for transcription)
	// or when KeepTempFiles asks for post-mortem retention.
	TempDir       string
	KeepTempFiles bool
	DryRun        bool
}

// Result is produced exactly once per attempt, after cleanup has run.
// Transcript stays empty here; transcription is a separate later step.
type Result struct {
	Transcript    string
	AudioFilePath string
	Cancelled     bool
}

// process is the controller's view of the capture subprocess.
type process interface {
	Done() <-chan error
	Stop(grace time.Duration)
	StderrTail() string
}

// starter spawns the capture subprocess.
type starter func(ffmpegPath string, args []string, log zerolog.Logger) (process, error)

// Controller owns one recording attempt: it spawns the capture subprocess,
// multiplexes countdown / keyboard / process-exit / signal events into a
// single guarded state machine, and always finishes through cleanup.
// Attempts are single-shot; retrying means constructing a new Controller.
type Controller struct {
	cfg   Config
	state *State
	log   zerolog.Logger

	start        starter
	open         func() (*console, error)
	signals      chan os.Signal
	notifySignal bool
	tickInterval time.Duration
	graceWindow  time.Duration
	stopGrace    time.Duration
	flushWait    time.Duration
	stderr       io.Writer
	now          func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithStarter sets the subprocess starter (for testing).
func WithStarter(s starter) Option {
	return func(c *Controller) { c.start = s }
}

// WithConsole sets the console opener (for testing).
func WithConsole(open func() (*console, error)) Option {
	return func(c *Controller) { c.open = open }
}

// WithKeys feeds keyboard bytes from a channel instead of the terminal.
func WithKeys(keys <-chan byte) Option {
	return func(c *Controller) {
		c.open = func() (*console, error) {
			return &console{keys: keys, restore: func() {}}, nil
		}
	}
}

// WithSignals injects the OS signal channel (for testing).
func WithSignals(ch chan os.Signal) Option {
	return func(c *Controller) {
		c.signals = ch
		c.notifySignal = false
	}
}

// WithTickInterval overrides the 1 Hz countdown tick (for testing).
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) { c.tickInterval = d }
}

// WithTimings overrides the grace-window / stop / flush timings (for testing).
func WithTimings(grace, stop, flush time.Duration) Option {
	return func(c *Controller) {
		c.graceWindow = grace
		c.stopGrace = stop
		c.flushWait = flush
	}
}

// WithStderr sets the writer for operator-facing messages.
func WithStderr(w io.Writer) Option {
	return func(c *Controller) { c.stderr = w }
}

// WithNow sets the time provider (for testing).
func WithNow(fn func() time.Time) Option {
	return func(c *Controller) { c.now = fn }
}

// NewController creates the controller for one attempt.
func NewController(cfg Config, log zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:   cfg,
		state: NewState(cfg.MaxDurationSeconds),
		log:   log,

		start:        defaultStarter,
		open:         openConsole,
		signals:      make(chan os.Signal, 1),
		notifySignal: true,
		tickInterval: time.Second,
		graceWindow:  startGraceWindow,
		stopGrace:    stopGrace,
		flushWait:    flushWait,
		stderr:       os.Stderr,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// defaultStarter spawns a real FFmpeg capture.
func defaultStarter(ffmpegPath string, args []string, log zerolog.Logger) (process, error) {
	return ffmpeg.StartCapture(ffmpegPath, args, log)
}

// buildCaptureArgs constructs the capture argument vector. Mono 16-bit PCM is
// the target encoding unless probed capabilities say otherwise; the hard
// duration ceiling is enforced by FFmpeg itself via -t.
func buildCaptureArgs(cfg Config) []string {
	args := []string{
		"-y",
		"-f", cfg.BackendFormat,
		"-i", cfg.InputAddress,
		"-t", strconv.Itoa(cfg.MaxDurationSeconds),
	}
	if cfg.Capabilities.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(cfg.Capabilities.SampleRate))
	}
	channels := 1
	if cfg.Capabilities.Channels > 1 {
		channels = cfg.Capabilities.Channels
	}
	args = append(args,
		"-ac", strconv.Itoa(channels),
		"-c:a", "pcm_s16le",
		cfg.OutputPath,
	)
	return args
}

// Run executes the attempt and returns its terminal outcome. Context
// cancellation is treated like an OS interrupt. Cancellation by the operator
// is a normal outcome (Result.Cancelled), not an error; start failures return
// ErrStartFailure with remediation guidance.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	args := buildCaptureArgs(c.cfg)

	if c.cfg.DryRun {
		fmt.Fprintf(c.stderr, "dry run: %s %s\n", c.cfg.FFmpegPath, strings.Join(args, " "))
		return Result{}, nil
	}

	// Cleanup exists before anything is acquired so that failures during
	// spawn or console acquisition still release whatever came before them
	// and remove the session temp directory.
	cleanup := c.newCleanup()
	defer cleanup.run()

	proc, err := c.start(c.cfg.FFmpegPath, args, c.log)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStartFailure, err)
	}
	cleanup.proc = proc

	cons, err := c.open()
	if err != nil {
		return Result{}, fmt.Errorf("acquire console: %w", err)
	}
	cleanup.cons = cons

	if c.notifySignal {
		signal.Notify(c.signals, os.Interrupt)
	}

	c.state.StartRecording()
	startedAt := c.now()

	fmt.Fprintf(c.stderr, "Recording... ENTER to finish, E to extend, C to cancel\r\n")

	ticker := time.NewTicker(c.tickInterval)
	defer ticker.Stop()

	for c.state.Phase() == PhaseRecording {
		select {
		case <-ticker.C:
			remaining, expired := c.state.Tick()
			fmt.Fprintf(c.stderr, "\r%s remaining  ", format.Countdown(remaining))
			if expired {
				c.state.Commit(PhaseFinishing)
			}

		case b := <-cons.keys:
			c.handleKey(b)

		case err := <-proc.Done():
			cleanup.procExited()
			if err != nil && c.now().Sub(startedAt) < c.graceWindow {
				c.state.Commit(PhaseFailed)
			} else {
				// Hit the hard ceiling (or finished on its own): a normal stop.
				c.state.Commit(PhaseFinishing)
			}

		case <-c.signals:
			c.state.Commit(PhaseCancelling)

		case <-ctx.Done():
			c.state.Commit(PhaseCancelling)
		}
	}

	fmt.Fprintf(c.stderr, "\r\n")

	cleanup.stopProcess()

	result, err := c.resolve(proc)

	// Cleanup runs fully before the result is returned to the caller.
	cleanup.run()
	return result, err
}

// handleKey dispatches one raw keyboard byte; unrecognized bytes are ignored.
func (c *Controller) handleKey(b byte) {
	switch b {
	case keyCR, keyLF:
		c.state.Commit(PhaseFinishing)
	case 'e', 'E':
		if intended, ok := c.state.Extend(); ok {
			fmt.Fprintf(c.stderr, "\rextended to %s  \r\n", format.Countdown(intended))
		} else {
			fmt.Fprintf(c.stderr, "\rat maximum duration (%s)  \r\n", format.Countdown(c.cfg.MaxDurationSeconds))
		}
	case 'c', 'C', keyETX:
		c.state.Commit(PhaseCancelling)
	}
}

// resolve turns the committed phase into the attempt's outcome.
func (c *Controller) resolve(proc process) (Result, error) {
	switch c.state.Phase() {
	case PhaseFinishing:
		// Give the backend a moment to flush the container to disk.
		time.Sleep(c.flushWait)
		if err := verifyOutput(c.cfg.OutputPath); err != nil {
			return Result{}, c.startFailure(proc, err)
		}
		fmt.Fprintf(c.stderr, "Recording saved: %s\n", c.cfg.OutputPath)
		return Result{AudioFilePath: c.cfg.OutputPath}, nil

	case PhaseCancelling:
		// No artifact on cancel.
		_ = os.Remove(c.cfg.OutputPath)
		fmt.Fprintln(c.stderr, "Recording cancelled.")
		return Result{Cancelled: true}, nil

	default:
		return Result{}, c.startFailure(proc, fmt.Errorf("capture process exited during startup"))
	}
}

// verifyOutput checks that the output file exists and is non-empty.
func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("output file missing: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}

// startFailure builds the attempt-fatal error, distinguishing a busy or
// inaccessible device from a misconfigured tool, with remediation guidance.
func (c *Controller) startFailure(proc process, cause error) error {
	tail := proc.StderrTail()

	diagnosis := "capture tool misconfigured"
	lower := strings.ToLower(tail)
	if strings.Contains(lower, "busy") || strings.Contains(lower, "permission") ||
		strings.Contains(lower, "denied") || strings.Contains(lower, "input/output error") {
		diagnosis = "device busy or inaccessible"
	}

	if c.log.GetLevel() <= zerolog.DebugLevel && tail != "" {
		c.log.Debug().Msg(tail)
	}

	return fmt.Errorf("%w: %s: %v\nTry another device (voicenote devices --select), "+
		"check microphone permissions, or close applications using the microphone",
		ErrStartFailure, diagnosis, cause)
}
