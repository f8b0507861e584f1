package bridge

import "sync/atomic"

// Counters is the per-session metrics object shared by the capture callback,
// the network loop, and any observer. Each counter has exactly one producer
// role; reads never block. Values are monotonic within a session and reset
// to zero when a new connection attempt begins, never retroactively.
//
// The counters are constructed with the session rather than held in package
// state, so repeated connect/disconnect cycles (or multiple bridges in one
// process) cannot bleed into each other.
type Counters struct {
	PacketsSent       atomic.Uint64
	PacketsReceived   atomic.Uint64
	SentWithAudio     atomic.Uint64
	ReceivedWithAudio atomic.Uint64
	CaptureCallbacks  atomic.Uint64
}

// Reset zeroes all counters. Called on each Connecting transition.
func (c *Counters) Reset() {
	c.PacketsSent.Store(0)
	c.PacketsReceived.Store(0)
	c.SentWithAudio.Store(0)
	c.ReceivedWithAudio.Store(0)
	c.CaptureCallbacks.Store(0)
}

// Snapshot is a point-in-time copy of the counter set, suitable for JSON
// status responses and metrics export. Interleaving across threads is
// approximate by design — the counters exist for trend observation, not
// accounting.
type Snapshot struct {
	PacketsSent       uint64 `json:"packets_sent"`
	PacketsReceived   uint64 `json:"packets_received"`
	SentWithAudio     uint64 `json:"sent_with_audio"`
	ReceivedWithAudio uint64 `json:"received_with_audio"`
	CaptureCallbacks  uint64 `json:"capture_callbacks"`
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		PacketsSent:       c.PacketsSent.Load(),
		PacketsReceived:   c.PacketsReceived.Load(),
		SentWithAudio:     c.SentWithAudio.Load(),
		ReceivedWithAudio: c.ReceivedWithAudio.Load(),
		CaptureCallbacks:  c.CaptureCallbacks.Load(),
	}
}
