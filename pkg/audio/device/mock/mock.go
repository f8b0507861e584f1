// Package mock provides in-memory implementations of the device stream
// interfaces for tests. Capture frames are delivered synchronously via
// [CaptureStream.Deliver]; playback output is pulled via
// [PlaybackStream.Pull]. Neither touches real hardware.
package mock

import (
	"sync"

	"github.com/budbridge-io/budbridge/pkg/audio"
	"github.com/budbridge-io/budbridge/pkg/audio/device"
)

// Compile-time interface assertions.
var (
	_ device.CaptureStream  = (*CaptureStream)(nil)
	_ device.PlaybackStream = (*PlaybackStream)(nil)
)

// CaptureStream is a scripted capture device.
type CaptureStream struct {
	// Fmt is the format reported by Format().
	Fmt audio.Format

	// StartErr, when non-nil, is returned from Start.
	StartErr error

	mu       sync.Mutex
	onFrames func([]float32)
	started  bool
	stopped  bool
}

func (m *CaptureStream) Format() audio.Format { return m.Fmt }

func (m *CaptureStream) Start(onFrames func(samples []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.onFrames = onFrames
	m.started = true
	return nil
}

func (m *CaptureStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.onFrames = nil
	return nil
}

// Deliver invokes the registered capture callback with samples, simulating
// one audio-subsystem callback. It is a no-op before Start or after Stop.
func (m *CaptureStream) Deliver(samples []float32) {
	m.mu.Lock()
	cb := m.onFrames
	m.mu.Unlock()
	if cb != nil {
		cb(samples)
	}
}

// Started reports whether Start has been called successfully.
func (m *CaptureStream) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Stopped reports whether Stop has been called.
func (m *CaptureStream) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// PlaybackStream is a pull-driven playback device.
type PlaybackStream struct {
	// Fmt is the format reported by Format().
	Fmt audio.Format

	// StartErr, when non-nil, is returned from Start.
	StartErr error

	mu      sync.Mutex
	fill    func([]float32)
	started bool
	stopped bool
}

func (m *PlaybackStream) Format() audio.Format { return m.Fmt }

func (m *PlaybackStream) Start(fill func(out []float32)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StartErr != nil {
		return m.StartErr
	}
	m.fill = fill
	m.started = true
	return nil
}

func (m *PlaybackStream) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.fill = nil
	return nil
}

// Pull simulates one output callback requesting n interleaved samples.
// Returns all zeroes when the stream is not started.
func (m *PlaybackStream) Pull(n int) []float32 {
	out := make([]float32, n)
	m.mu.Lock()
	fill := m.fill
	m.mu.Unlock()
	if fill != nil {
		fill(out)
	}
	return out
}

// Started reports whether Start has been called successfully.
func (m *PlaybackStream) Started() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.started
}

// Stopped reports whether Stop has been called.
func (m *PlaybackStream) Stopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}
