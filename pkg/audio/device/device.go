// Package device abstracts the host audio subsystem behind two narrow stream
// interfaces so that the bridge core never touches a hardware API directly.
//
// The two primary abstractions are:
//
//   - [CaptureStream] — delivers batches of float32 samples to a callback at
//     the device's own cadence.
//   - [PlaybackStream] — invokes a fill callback whenever the device needs
//     more output samples.
//
// The production implementation is backed by miniaudio (via
// github.com/gen2brain/malgo); device/mock provides scripted in-memory
// streams for tests. Callbacks run on the audio subsystem's thread and must
// return quickly without blocking.
package device

import "github.com/budbridge-io/budbridge/pkg/audio"

// CaptureStream is an open capture device ready to deliver audio.
//
// Start registers onFrames as the capture callback. The sample slice passed
// to the callback is interleaved by channel in the stream's [audio.Format]
// and is only valid for the duration of the call — implementations may reuse
// the backing array between invocations.
type CaptureStream interface {
	// Format reports the native sample rate and channel count the stream
	// delivers.
	Format() audio.Format

	// Start begins capture. It returns an error if the device cannot be
	// started; the callback is never invoked after Stop returns.
	Start(onFrames func(samples []float32)) error

	// Stop halts capture. Safe to call more than once.
	Stop() error
}

// PlaybackStream is an open output device ready to consume audio.
//
// The fill callback must write exactly len(out) interleaved samples in the
// stream's [audio.Format], substituting silence when no data is available.
type PlaybackStream interface {
	// Format reports the sample rate and channel count the stream expects.
	Format() audio.Format

	// Start begins playback, pulling samples through fill at the device's
	// cadence.
	Start(fill func(out []float32)) error

	// Stop halts playback. Safe to call more than once.
	Stop() error
}

// Info describes one enumerable audio device.
type Info struct {
	// Name is the human-readable device name reported by the backend.
	Name string

	// IsDefault marks the backend's default device for its direction.
	IsDefault bool
}
