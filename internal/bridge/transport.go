package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/budbridge-io/budbridge/pkg/audio"
)

const (
	// DefaultChunkBytes caps a datagram payload comfortably below common
	// path MTU so IP fragmentation never occurs. Must be even: a datagram
	// carries a whole number of 16-bit samples.
	DefaultChunkBytes = 1400

	// DefaultPollInterval is the sleep between poll-loop iterations. Short
	// enough to keep both directions low-latency, long enough to bound CPU.
	DefaultPollInterval = 100 * time.Microsecond

	// recvBufSize covers the largest possible UDP payload.
	recvBufSize = 65536
)

// TransportConfig carries the socket and pacing parameters for one session.
type TransportConfig struct {
	// Dest is the peer address audio is sent to.
	Dest *net.UDPAddr

	// ListenPort is the fixed local port inbound audio arrives on.
	// Port 0 binds an ephemeral port (used by tests).
	ListenPort int

	// ChunkBytes is the maximum datagram payload. Zero means
	// [DefaultChunkBytes].
	ChunkBytes int

	// PollInterval is the loop yield. Zero means [DefaultPollInterval].
	PollInterval time.Duration
}

// Transport owns the session's two UDP sockets and the single poll loop
// that services them. The loop is deliberately busy-polling rather than
// event-driven: both queues need symmetric low-latency service and neither
// socket operation may ever block the other.
//
// The wire format is raw little-endian 16-bit PCM with no header, sequence
// number, or length prefix. Receivers infer structure purely from datagram
// length and must tolerate loss, duplication, and reordering.
type Transport struct {
	send *net.UDPConn
	recv *net.UDPConn
	dest *net.UDPAddr

	outbound *Queue[[]int16]
	inbound  *Queue[[]int16]
	counters *Counters

	chunk int
	poll  time.Duration

	warnRecv sync.Once
	warnSend sync.Once
}

// NewTransport binds the send socket to an ephemeral local port and the
// receive socket to cfg.ListenPort. Bind failures are setup errors and
// fatal to the connection attempt.
func NewTransport(cfg TransportConfig, outbound, inbound *Queue[[]int16], counters *Counters) (*Transport, error) {
	if cfg.Dest == nil {
		return nil, fmt.Errorf("transport: no destination address")
	}
	chunk := cfg.ChunkBytes
	if chunk == 0 {
		chunk = DefaultChunkBytes
	}
	if chunk < 2 || chunk%2 != 0 {
		return nil, fmt.Errorf("transport: chunk size %d must be a positive even byte count", chunk)
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = DefaultPollInterval
	}

	recv, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: cfg.ListenPort})
	if err != nil {
		return nil, fmt.Errorf("transport: bind receive port %d: %w", cfg.ListenPort, err)
	}
	send, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("transport: bind send socket: %w", err)
	}

	return &Transport{
		send:     send,
		recv:     recv,
		dest:     cfg.Dest,
		outbound: outbound,
		inbound:  inbound,
		counters: counters,
		chunk:    chunk,
		poll:     poll,
	}, nil
}

// LocalAddr returns the receive socket's bound address.
func (t *Transport) LocalAddr() net.Addr { return t.recv.LocalAddr() }

// Run services both directions until ctx is cancelled. Transient I/O errors
// are logged and never fatal; queue-full drops are silent. On exit nothing
// in flight is flushed — datagrams in transit are simply abandoned.
func (t *Transport) Run(ctx context.Context) error {
	buf := make([]byte, recvBufSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		t.receiveOne(buf)
		t.sendOne()

		time.Sleep(t.poll)
	}
}

// Close releases both sockets. Call after Run has returned.
func (t *Transport) Close() error {
	sendErr := t.send.Close()
	recvErr := t.recv.Close()
	if recvErr != nil {
		return recvErr
	}
	return sendErr
}

// receiveOne attempts a single non-blocking datagram read and pushes the
// decoded samples toward playback.
func (t *Transport) receiveOne(buf []byte) {
	// An already-expired deadline turns the read into a poll.
	_ = t.recv.SetReadDeadline(time.Now())
	n, _, err := t.recv.ReadFromUDP(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return
		}
		t.warnRecv.Do(func() {
			slog.Warn("bridge: receive error (further occurrences logged at debug)", "err", err)
		})
		slog.Debug("bridge: receive error", "err", err)
		return
	}

	t.counters.PacketsReceived.Add(1)
	samples := audio.DecodeLE(buf[:n])
	if audio.HasAudio(samples) {
		t.counters.ReceivedWithAudio.Add(1)
	}

	// Full inbound queue: drop the datagram silently.
	t.inbound.TryPush(samples)
}

// sendOne pops at most one outbound block, fragments it into datagrams of
// at most the chunk size, and sends each chunk independently. There are no
// boundary markers — the receiver cannot reconstruct block boundaries.
func (t *Transport) sendOne() {
	block, ok := t.outbound.TryPop()
	if !ok {
		return
	}
	if audio.HasAudio(block) {
		t.counters.SentWithAudio.Add(1)
	}

	payload := audio.EncodeLE(block)
	for off := 0; off < len(payload); off += t.chunk {
		end := off + t.chunk
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := t.send.WriteToUDP(payload[off:end], t.dest); err != nil {
			t.warnSend.Do(func() {
				slog.Warn("bridge: send error (further occurrences logged at debug)", "err", err)
			})
			slog.Debug("bridge: send error", "err", err)
			continue
		}
		t.counters.PacketsSent.Add(1)
	}
}
