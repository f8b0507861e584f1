package bridge

import (
	"sync"
	"time"

	"github.com/budbridge-io/budbridge/pkg/audio"
)

// JitterBuffer absorbs arrival-time variance between the network receiver
// and the output callback. It is a bounded ring of mono float samples:
// the feeder appends at the tail, the output callback drains from the head.
//
// The capacity caps worst-case buffered latency. When an append would
// exceed it, the oldest samples are evicted — late audio is sacrificed
// rather than letting latency grow without bound. Draining an empty buffer
// yields silence; an underrun is never an error and never stalls.
//
// A single mutex guards the ring. It is held only for the duration of an
// append or drain, never across I/O, so neither real-time callback can be
// delayed by more than the other's memory copy.
type JitterBuffer struct {
	mu   sync.Mutex
	data []float32
	head int
	size int
}

// JitterCapacity translates a buffered-latency window at the given sample
// rate into a sample count, with a floor of one sample.
func JitterCapacity(sampleRate int, window time.Duration) int {
	n := int(int64(sampleRate) * int64(window) / int64(time.Second))
	if n < 1 {
		n = 1
	}
	return n
}

// NewJitterBuffer creates a buffer holding at most capacity samples.
func NewJitterBuffer(capacity int) *JitterBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &JitterBuffer{data: make([]float32, capacity)}
}

// Append converts the received PCM samples to float range and appends them,
// evicting from the head whatever exceeds capacity.
func (j *JitterBuffer) Append(samples []int16) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, s := range samples {
		j.push(audio.Dequantize(s))
	}
}

// push appends one sample, overwriting the oldest when full. Caller holds
// the mutex.
func (j *JitterBuffer) push(v float32) {
	j.data[(j.head+j.size)%len(j.data)] = v
	if j.size < len(j.data) {
		j.size++
	} else {
		j.head = (j.head + 1) % len(j.data)
	}
}

// Drain fills out with buffered samples, one popped mono sample per output
// frame, substituting silence when the buffer runs dry. For a stereo output
// the mono sample is duplicated into both channel slots; no stereo
// information is carried end-to-end.
func (j *JitterBuffer) Drain(out []float32, channels int) {
	if channels < 1 {
		channels = 1
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := 0; i < len(out); i += channels {
		v := j.pop()
		for c := 0; c < channels && i+c < len(out); c++ {
			out[i+c] = v
		}
	}
}

// pop removes and returns the oldest sample, or 0 when empty. Caller holds
// the mutex.
func (j *JitterBuffer) pop() float32 {
	if j.size == 0 {
		return 0
	}
	v := j.data[j.head]
	j.head = (j.head + 1) % len(j.data)
	j.size--
	return v
}

// Len returns the number of buffered samples.
func (j *JitterBuffer) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.size
}

// Cap returns the buffer's fixed capacity.
func (j *JitterBuffer) Cap() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.data)
}
