package session

// Notes:
// - The controller is exercised with a fake subprocess and injected keyboard,
//   signal, and timing sources; no real FFmpeg or terminal is involved.
// - Timings are shrunk so event-loop tests complete in milliseconds.

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/voicenote-dev/voicenote/internal/audio"
)

// fakeProc implements process for controller tests.
type fakeProc struct {
	done  chan error
	tail  string
	stops atomic.Int32
}

func newFakeProc() *fakeProc {
	return &fakeProc{done: make(chan error, 1)}
}

func (f *fakeProc) Done() <-chan error { return f.done }
func (f *fakeProc) StderrTail() string { return f.tail }
func (f *fakeProc) Stop(time.Duration) { f.stops.Add(1) }

// exit makes the fake process exit with err.
func (f *fakeProc) exit(err error) { f.done <- err }

// harness wires a controller with fake event sources.
type harness struct {
	proc    *fakeProc
	keys    chan byte
	signals chan os.Signal
	starts  atomic.Int32
	out     strings.Builder
	outMu   sync.Mutex
}

// lockedWriter serializes harness output writes across goroutines.
type lockedWriter struct{ h *harness }

func (w lockedWriter) Write(p []byte) (int, error) {
	w.h.outMu.Lock()
	defer w.h.outMu.Unlock()
	return w.h.out.Write(p)
}

func (h *harness) output() string {
	h.outMu.Lock()
	defer h.outMu.Unlock()
	return h.out.String()
}

func newHarness(t *testing.T, cfg Config, extra ...Option) (*Controller, *harness) {
	t.Helper()

	h := &harness{
		proc:    newFakeProc(),
		keys:    make(chan byte),
		signals: make(chan os.Signal, 1),
	}

	opts := []Option{
		WithStarter(func(_ string, _ []string, _ zerolog.Logger) (process, error) {
			h.starts.Add(1)
			return h.proc, nil
		}),
		WithKeys(h.keys),
		WithSignals(h.signals),
		WithTickInterval(5 * time.Millisecond),
		WithTimings(2*time.Second, time.Millisecond, time.Millisecond),
		WithStderr(lockedWriter{h}),
	}
	opts = append(opts, extra...)

	return NewController(cfg, zerolog.New(io.Discard), opts...), h
}

// writeOutput creates a non-empty capture file as the fake subprocess would.
func writeOutput(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("RIFFdata"), 0644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		FFmpegPath:         "/usr/bin/ffmpeg",
		BackendFormat:      "avfoundation",
		InputAddress:       ":1",
		MaxDurationSeconds: 300,
		OutputPath:         filepath.Join(t.TempDir(), "capture.wav"),
	}
}

func TestRunFinishOnEnter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctrl, h := newHarness(t, cfg)
	writeOutput(t, cfg.OutputPath)

	go func() { h.keys <- '\r' }()

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Cancelled {
		t.Error("Cancelled = true, want false")
	}
	if result.AudioFilePath != cfg.OutputPath {
		t.Errorf("AudioFilePath = %q, want %q", result.AudioFilePath, cfg.OutputPath)
	}
	if got := h.proc.stops.Load(); got != 1 {
		t.Errorf("process stopped %d times, want 1", got)
	}
}

func TestRunCancelOnKeypress(t *testing.T) {
	t.Parallel()

	for _, key := range []byte{'c', 'C', 0x03} {
		key := key
		t.Run(string(rune(key)), func(t *testing.T) {
			t.Parallel()

			cfg := testConfig(t)
			ctrl, h := newHarness(t, cfg)
			writeOutput(t, cfg.OutputPath)

			go func() { h.keys <- key }()

			result, err := ctrl.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !result.Cancelled {
				t.Error("Cancelled = false, want true")
			}
			if result.AudioFilePath != "" {
				t.Errorf("AudioFilePath = %q, want empty on cancel", result.AudioFilePath)
			}
			if _, err := os.Stat(cfg.OutputPath); !errors.Is(err, os.ErrNotExist) {
				t.Error("output artifact survived a cancelled attempt")
			}
		})
	}
}

func TestRunCancelOnSignal(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctrl, h := newHarness(t, cfg)

	go func() { h.signals <- os.Interrupt }()

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Cancelled {
		t.Error("Cancelled = false, want true")
	}
}

func TestRunEarlyExitIsStartFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctrl, h := newHarness(t, cfg)
	h.proc.tail = "[avfoundation] Input/output error: device is busy"

	// Non-zero exit 500ms-equivalent after spawn, well inside the grace window.
	go func() { h.proc.exit(errors.New("exit status 1")) }()

	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrStartFailure) {
		t.Fatalf("Run() error = %v, want ErrStartFailure", err)
	}
	if !strings.Contains(err.Error(), "busy or inaccessible") {
		t.Errorf("error lacks busy-device diagnosis: %v", err)
	}
	if !strings.Contains(err.Error(), "voicenote devices --select") {
		t.Errorf("error lacks remediation guidance: %v", err)
	}
}

func TestRunCleanExitAfterGraceWindowFinishes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	// Zero grace window: the exit is past the early-failure threshold, which
	// models the subprocess reaching its hard duration ceiling.
	ctrl, h := newHarness(t, cfg, WithTimings(0, time.Millisecond, time.Millisecond))
	writeOutput(t, cfg.OutputPath)

	go func() { h.proc.exit(nil) }()

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Cancelled || result.AudioFilePath == "" {
		t.Errorf("result = %+v, want finished with artifact", result)
	}
	if got := h.proc.stops.Load(); got != 0 {
		t.Errorf("process stopped %d times after self-exit, want 0", got)
	}
}

func TestRunMissingOutputIsStartFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t) // output file never written
	ctrl, h := newHarness(t, cfg)

	go func() { h.keys <- '\n' }()

	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrStartFailure) {
		t.Fatalf("Run() error = %v, want ErrStartFailure", err)
	}
}

func TestRunEmptyOutputIsStartFailure(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctrl, h := newHarness(t, cfg)
	if err := os.WriteFile(cfg.OutputPath, nil, 0644); err != nil {
		t.Fatal(err)
	}

	go func() { h.keys <- '\r' }()

	_, err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrStartFailure) {
		t.Fatalf("Run() error = %v, want ErrStartFailure", err)
	}
}

// TestRunExtendThenFinish covers the documented operator flow: with a 60s
// ceiling, one extension raises the intended duration to 60 and ENTER still
// finishes normally.
func TestRunExtendThenFinish(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxDurationSeconds = 60
	ctrl, h := newHarness(t, cfg)
	writeOutput(t, cfg.OutputPath)

	go func() {
		h.keys <- 'E'
		h.keys <- '\r'
	}()

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Cancelled {
		t.Error("Cancelled = true, want false")
	}
	if got := ctrl.state.Intended(); got != 60 {
		t.Errorf("Intended() = %d, want 60", got)
	}
	if !strings.Contains(h.output(), "extended to 1:00") {
		t.Errorf("output lacks extension notice:\n%s", h.output())
	}
}

func TestRunExtendAtCapWarns(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxDurationSeconds = 30 // initial window already at the ceiling
	ctrl, h := newHarness(t, cfg)
	writeOutput(t, cfg.OutputPath)

	go func() {
		h.keys <- 'e'
		h.keys <- '\r'
	}()

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Cancelled {
		t.Error("Cancelled = true, want false")
	}
	if !strings.Contains(h.output(), "at maximum duration") {
		t.Errorf("output lacks at-cap warning:\n%s", h.output())
	}
}

func TestRunCountdownExpiryFinishes(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.MaxDurationSeconds = 2 // countdown clamps to 2 ticks
	ctrl, _ := newHarness(t, cfg)
	writeOutput(t, cfg.OutputPath)

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Cancelled || result.AudioFilePath == "" {
		t.Errorf("result = %+v, want finished with artifact", result)
	}
}

func TestRunDryRunDoesNotSpawn(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.DryRun = true
	ctrl, h := newHarness(t, cfg)

	result, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.AudioFilePath != "" || result.Cancelled {
		t.Errorf("dry run result = %+v, want zero value", result)
	}
	if got := h.starts.Load(); got != 0 {
		t.Errorf("subprocess started %d times in dry run, want 0", got)
	}
	if !strings.Contains(h.output(), "-f avfoundation") {
		t.Errorf("dry run output lacks argument vector:\n%s", h.output())
	}
}

func TestRunContextCancelled(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	ctrl, _ := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !result.Cancelled {
		t.Error("Cancelled = false, want true on context cancellation")
	}
}

func TestCleanupRemovesTempDirExceptOnFinish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		finish   bool
		keep     bool
		wantGone bool
	}{
		{name: "cancelled removes temp dir", finish: false, wantGone: true},
		{name: "finished retains artifact dir", finish: true, wantGone: false},
		{name: "retention flag wins", finish: false, keep: true, wantGone: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tempDir := filepath.Join(t.TempDir(), "session")
			if err := os.MkdirAll(tempDir, 0750); err != nil {
				t.Fatal(err)
			}

			cfg := testConfig(t)
			cfg.TempDir = tempDir
			cfg.KeepTempFiles = tt.keep
			cfg.OutputPath = filepath.Join(tempDir, "capture.wav")
			ctrl, h := newHarness(t, cfg)

			if tt.finish {
				writeOutput(t, cfg.OutputPath)
				go func() { h.keys <- '\r' }()
			} else {
				go func() { h.keys <- 'c' }()
			}

			if _, err := ctrl.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			_, err := os.Stat(tempDir)
			gone := errors.Is(err, os.ErrNotExist)
			if gone != tt.wantGone {
				t.Errorf("temp dir gone = %v, want %v", gone, tt.wantGone)
			}
		})
	}
}

func TestRunSpawnErrorRemovesTempDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		keep     bool
		wantGone bool
	}{
		{name: "spawn failure removes temp dir", wantGone: true},
		{name: "retention flag wins on spawn failure", keep: true, wantGone: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tempDir := filepath.Join(t.TempDir(), "session")
			if err := os.MkdirAll(tempDir, 0750); err != nil {
				t.Fatal(err)
			}

			cfg := testConfig(t)
			cfg.TempDir = tempDir
			cfg.KeepTempFiles = tt.keep
			cfg.OutputPath = filepath.Join(tempDir, "capture.wav")
			ctrl, _ := newHarness(t, cfg, WithStarter(func(string, []string, zerolog.Logger) (process, error) {
				return nil, errors.New("spawn failed")
			}))

			_, err := ctrl.Run(context.Background())
			if !errors.Is(err, ErrStartFailure) {
				t.Fatalf("Run() error = %v, want ErrStartFailure", err)
			}

			_, err = os.Stat(tempDir)
			gone := errors.Is(err, os.ErrNotExist)
			if gone != tt.wantGone {
				t.Errorf("temp dir gone = %v, want %v", gone, tt.wantGone)
			}
		})
	}
}

func TestRunConsoleErrorStopsProcessAndRemovesTempDir(t *testing.T) {
	t.Parallel()

	tempDir := filepath.Join(t.TempDir(), "session")
	if err := os.MkdirAll(tempDir, 0750); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.TempDir = tempDir
	cfg.OutputPath = filepath.Join(tempDir, "capture.wav")
	ctrl, h := newHarness(t, cfg, WithConsole(func() (*console, error) {
		return nil, errors.New("no terminal")
	}))

	if _, err := ctrl.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want console acquisition failure")
	}

	if got := h.proc.stops.Load(); got != 1 {
		t.Errorf("process stopped %d times, want 1", got)
	}
	if _, err := os.Stat(tempDir); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp dir survived a failed console acquisition")
	}
}

func TestBuildCaptureArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{
			name: "defaults to mono 16-bit PCM",
			cfg: Config{
				BackendFormat:      "avfoundation",
				InputAddress:       ":1",
				MaxDurationSeconds: 300,
				OutputPath:         "/tmp/out.wav",
			},
			want: []string{"-y", "-f", "avfoundation", "-i", ":1", "-t", "300",
				"-ac", "1", "-c:a", "pcm_s16le", "/tmp/out.wav"},
		},
		{
			name: "probed capabilities tune the invocation",
			cfg: Config{
				BackendFormat:      "avfoundation",
				InputAddress:       "none:0",
				MaxDurationSeconds: 60,
				OutputPath:         "/tmp/out.wav",
				Capabilities:       audio.DeviceCapabilities{SampleRate: 48000, Channels: 2},
			},
			want: []string{"-y", "-f", "avfoundation", "-i", "none:0", "-t", "60",
				"-ar", "48000", "-ac", "2", "-c:a", "pcm_s16le", "/tmp/out.wav"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := buildCaptureArgs(tt.cfg)
			if len(got) != len(tt.want) {
				t.Fatalf("buildCaptureArgs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("arg[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
