package bridge

import (
	"fmt"

	"github.com/budbridge-io/budbridge/pkg/audio"
)

// CapturePipeline converts raw float32 frames from the capture device into
// 16-bit mono PCM blocks at the target sample rate and hands each block to
// the outbound queue.
//
// Process runs inside the audio subsystem's capture callback, so every step
// is allocation-bounded and nothing ever blocks: a full outbound queue means
// the block is silently dropped. Dropping is preferred over glitching or
// stalling capture.
type CapturePipeline struct {
	native   audio.Format
	ratio    int
	out      *Queue[[]int16]
	counters *Counters
}

// NewCapturePipeline validates the capture format and prepares the
// conversion parameters. Devices with more than two channels are rejected;
// the downmix policy is only defined for mono and stereo.
func NewCapturePipeline(native audio.Format, targetRate int, out *Queue[[]int16], counters *Counters) (*CapturePipeline, error) {
	if native.Channels != 1 && native.Channels != 2 {
		return nil, fmt.Errorf("capture: unsupported channel count %d (want 1 or 2)", native.Channels)
	}
	if native.SampleRate <= 0 {
		return nil, fmt.Errorf("capture: invalid sample rate %d", native.SampleRate)
	}
	if targetRate <= 0 {
		return nil, fmt.Errorf("capture: invalid target rate %d", targetRate)
	}
	return &CapturePipeline{
		native:   native,
		ratio:    audio.DecimationRatio(native.SampleRate, targetRate),
		out:      out,
		counters: counters,
	}, nil
}

// Ratio returns the decimation step derived from the native and target
// sample rates.
func (p *CapturePipeline) Ratio() int { return p.ratio }

// Process converts one capture batch and attempts to enqueue the resulting
// block. The batch is borrowed from the device callback and is not retained.
func (p *CapturePipeline) Process(batch []float32) {
	p.counters.CaptureCallbacks.Add(1)
	if len(batch) == 0 {
		return
	}

	mono := batch
	if p.native.Channels == 2 {
		mono = audio.DownmixStereo(batch)
	}
	block := audio.Quantize(audio.Decimate(mono, p.ratio))

	// Full queue: drop the newest block. Never counted per event, only
	// observable through counter deltas.
	p.out.TryPush(block)
}
