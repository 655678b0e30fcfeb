package cli

import (
	"bytes"
	"context"
	"sync"

	"github.com/voicenote-dev/voicenote/internal/audio"
	"github.com/voicenote-dev/voicenote/internal/config"
	"github.com/voicenote-dev/voicenote/internal/session"
)

// ---------------------------------------------------------------------------
// syncBuffer - thread-safe bytes.Buffer for concurrent command output
// ---------------------------------------------------------------------------

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ---------------------------------------------------------------------------
// Mock ConfigLoader
// ---------------------------------------------------------------------------

type mockConfigLoader struct {
	LoadFunc func() (config.Config, error)
}

func (m *mockConfigLoader) Load() (config.Config, error) {
	if m.LoadFunc != nil {
		return m.LoadFunc()
	}
	return config.Config{MaxDurationSeconds: 300, NotesDir: "notes"}, nil
}

// ---------------------------------------------------------------------------
// Mock FFmpegResolver
// ---------------------------------------------------------------------------

type mockFFmpegResolver struct {
	ResolveFunc func(configured string) (string, error)
}

func (m *mockFFmpegResolver) Resolve(configured string) (string, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(configured)
	}
	return "/usr/bin/ffmpeg", nil
}

// ---------------------------------------------------------------------------
// Mock DeviceCatalog
// ---------------------------------------------------------------------------

type mockCatalog struct {
	EnumerateFunc         func(ctx context.Context) []audio.Device
	NegotiateFormatFunc   func(ctx context.Context, d audio.Device) (string, error)
	DetectBestDeviceFunc  func(ctx context.Context) string
	FindWorkingDeviceFunc func(ctx context.Context) (audio.Device, string, error)
	ProbeFunc             func(ctx context.Context, inputArg string) audio.DeviceCapabilities
}

func (m *mockCatalog) Enumerate(ctx context.Context) []audio.Device {
	if m.EnumerateFunc != nil {
		return m.EnumerateFunc(ctx)
	}
	return nil
}

func (m *mockCatalog) NegotiateFormat(ctx context.Context, d audio.Device) (string, error) {
	if m.NegotiateFormatFunc != nil {
		return m.NegotiateFormatFunc(ctx, d)
	}
	return ":" + d.Index, nil
}

func (m *mockCatalog) DetectBestDevice(ctx context.Context) string {
	if m.DetectBestDeviceFunc != nil {
		return m.DetectBestDeviceFunc(ctx)
	}
	return "0"
}

func (m *mockCatalog) FindWorkingDevice(ctx context.Context) (audio.Device, string, error) {
	if m.FindWorkingDeviceFunc != nil {
		return m.FindWorkingDeviceFunc(ctx)
	}
	return audio.Device{}, "", audio.ErrNoDevices
}

func (m *mockCatalog) ProbeCapabilities(ctx context.Context, inputArg string) audio.DeviceCapabilities {
	if m.ProbeFunc != nil {
		return m.ProbeFunc(ctx, inputArg)
	}
	return audio.DeviceCapabilities{}
}

var _ DeviceCatalog = (*mockCatalog)(nil)

// ---------------------------------------------------------------------------
// Mock SessionRunner
// ---------------------------------------------------------------------------

type mockSession struct {
	RunFunc func(ctx context.Context) (session.Result, error)
}

func (m *mockSession) Run(ctx context.Context) (session.Result, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	return session.Result{}, nil
}

// ---------------------------------------------------------------------------
// Mock Transcriber
// ---------------------------------------------------------------------------

type mockTranscriber struct {
	TranscribeFunc func(ctx context.Context, audioPath string) (string, error)
}

func (m *mockTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, audioPath)
	}
	return "mock transcript", nil
}
