package ffmpeg

import (
	"context"
	"errors"
	"testing"
)

func TestIsFailureLine(t *testing.T) {
	t.Parallel()

	tests := []struct {
		line string
		want bool
	}{
		{"[avfoundation] Error opening input device", true},
		{"Device or resource busy", true},
		{"Permission denied", true},
		{"size=     256KiB time=00:00:08.36 bitrate= 250.7kbits/s", false},
		{"Stream #0:0: Audio: pcm_s16le, 48000 Hz, mono", false},
	}

	for _, tt := range tests {
		if got := isFailureLine(tt.line); got != tt.want {
			t.Errorf("isFailureLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestExecutorRunOutput(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotArgs []string

	e := NewExecutor(WithRunOutput(func(_ context.Context, path string, args []string) (string, error) {
		gotPath = path
		gotArgs = args
		return "listing output", errors.New("exit status 1")
	}))

	out, err := e.RunOutput(context.Background(), "/usr/bin/ffmpeg", []string{"-list_devices", "true"})

	// Stderr output is returned even on failure; device listings exit non-zero.
	if out != "listing output" {
		t.Errorf("RunOutput() = %q", out)
	}
	if err == nil {
		t.Error("RunOutput() error = nil, want propagated exit error")
	}
	if gotPath != "/usr/bin/ffmpeg" || len(gotArgs) != 2 {
		t.Errorf("forwarded call = %q %v", gotPath, gotArgs)
	}
}
