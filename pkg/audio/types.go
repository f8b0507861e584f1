// Package audio provides the PCM primitives shared by the capture pipeline,
// the network transport, and the playback path: sample-format conversion,
// little-endian wire encoding, and the amplitude heuristic used for
// diagnostics counters.
//
// All functions operate on plain slices and perform no I/O, which keeps them
// safe to call from real-time audio callbacks.
package audio

import "fmt"

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable description, e.g. "48000Hz stereo".
func (f Format) String() string {
	ch := "mono"
	if f.Channels == 2 {
		ch = "stereo"
	} else if f.Channels > 2 {
		ch = fmt.Sprintf("%dch", f.Channels)
	}
	return fmt.Sprintf("%dHz %s", f.SampleRate, ch)
}
