package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// failureKeywords mark stderr lines that indicate a capture problem.
// Matching lines are surfaced at warn level regardless of debug mode;
// everything else is debug-only noise (progress, stream info).
var failureKeywords = []string{"error", "failed", "permission", "busy", "device"}

func isFailureLine(line string) bool {
	lower := strings.ToLower(line)
	for _, kw := range failureKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Capture is a handle to a running FFmpeg recording process.
// The process is started with stdin piped (for the 'q' quit command),
// stdout discarded, and stderr drained line-by-line into the logger.
type Capture struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	done  chan error

	stderrMu   sync.Mutex
	stderrTail []string
}

// Done returns a channel that receives the process's Wait error exactly once.
func (c *Capture) Done() <-chan error {
	return c.done
}

// StderrTail returns the most recent captured stderr lines for diagnostics.
func (c *Capture) StderrTail() string {
	c.stderrMu.Lock()
	defer c.stderrMu.Unlock()
	return strings.Join(c.stderrTail, "\n")
}

// Stop asks FFmpeg to exit gracefully by writing 'q' to its stdin, which lets
// it finalize the output container, then kills the process if it has not
// exited within grace. Safe to call after the process has already exited.
func (c *Capture) Stop(grace time.Duration) {
	_, _ = io.WriteString(c.stdin, "q")
	_ = c.stdin.Close()

	select {
	case err := <-c.done:
		c.done <- err
	case <-time.After(grace):
		_ = c.cmd.Process.Kill()
		c.done <- <-c.done
	}
}

// maxStderrTail bounds the diagnostic buffer; FFmpeg repeats progress lines
// at a high rate and only the most recent output matters for error reports.
const maxStderrTail = 40

// StartCapture spawns FFmpeg with the given arguments for a recording session.
// Stdout is discarded; stderr is drained line-by-line into log (debug level,
// warn for lines matching failure keywords) and retained for StderrTail.
func StartCapture(ffmpegPath string, args []string, log zerolog.Logger) (*Capture, error) {
	cmd := exec.Command(ffmpegPath, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	c := &Capture{
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan error, 2),
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			c.stderrMu.Lock()
			c.stderrTail = append(c.stderrTail, line)
			if len(c.stderrTail) > maxStderrTail {
				c.stderrTail = c.stderrTail[1:]
			}
			c.stderrMu.Unlock()

			if isFailureLine(line) {
				log.Warn().Str("source", "ffmpeg").Msg(line)
			} else {
				log.Debug().Str("source", "ffmpeg").Msg(line)
			}
		}
	}()

	go func() {
		<-drained // Stderr must be fully read before Wait releases the pipes.
		c.done <- cmd.Wait()
	}()

	return c, nil
}

// ---------------------------------------------------------------------------
// Executor - testable FFmpeg execution with dependency injection
// ---------------------------------------------------------------------------

// runOutputFn is the function type for running a command and capturing output.
type runOutputFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs short FFmpeg invocations (device listing, trial captures,
// metadata probes) with injectable dependencies.
type Executor struct {
	runOutput runOutputFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunOutput sets a custom runOutput function (for testing).
func WithRunOutput(fn runOutputFn) ExecutorOption {
	return func(e *Executor) { e.runOutput = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		runOutput: defaultRunOutput,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes FFmpeg and captures its stderr output.
// FFmpeg writes most diagnostic output (including device lists, probe info) to stderr.
func (e *Executor) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return e.runOutput(ctx, ffmpegPath, args)
}

// defaultRunOutput is the production implementation.
// Returns stderr output even when the command fails, since FFmpeg often returns
// non-zero exit codes for valid operations (e.g., -list_devices returns 1).
func defaultRunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	// Return stderr output regardless of error - it contains the useful data.
	return stderr.String(), err
}

// ---------------------------------------------------------------------------
// Package-level facade - shared default executor for callers without DI needs
// ---------------------------------------------------------------------------

var (
	defaultExecutor     *Executor
	defaultExecutorOnce sync.Once
)

func getDefaultExecutor() *Executor {
	defaultExecutorOnce.Do(func() {
		defaultExecutor = NewExecutor()
	})
	return defaultExecutor
}

// RunOutput executes FFmpeg and captures its stderr output using the default executor.
func RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return getDefaultExecutor().RunOutput(ctx, ffmpegPath, args)
}
