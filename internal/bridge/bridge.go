// Package bridge implements the audio-network core: the capture pipeline,
// the bounded queues linking real-time audio callbacks to the network loop,
// the UDP packetization transport, and the playback jitter buffer, wired
// together per session by [Bridge].
//
// Three execution contexts run for the lifetime of a session — the capture
// callback, the output callback, and the network poll loop — and none of
// them ever waits on another through a blocking lock. They communicate only
// through the two bounded queues and the jitter buffer.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/budbridge-io/budbridge/internal/observe"
	"github.com/budbridge-io/budbridge/pkg/audio/device"
)

// State is the orchestrator's lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Config holds the session parameters. Zero values select the defaults
// matching the historical wire contract: 48 kHz mono, 50 ms of jitter
// absorption, queues of 4 blocks, ports 4810/4811, 1400-byte chunks.
type Config struct {
	// TargetRate is the mono PCM sample rate both ends agreed on
	// out-of-band. It is not negotiated on the wire.
	TargetRate int

	// JitterWindow is the maximum audio buffered ahead of playback.
	JitterWindow time.Duration

	// QueueCapacity bounds both the outbound and inbound block queues.
	QueueCapacity int

	// ListenPort is the fixed local port peer audio arrives on.
	ListenPort int

	// SendPort is the peer port audio is sent to when the destination
	// address carries no explicit port.
	SendPort int

	// ChunkBytes caps the datagram payload size.
	ChunkBytes int

	// PollInterval is the network loop yield.
	PollInterval time.Duration
}

const (
	DefaultTargetRate    = 48000
	DefaultJitterWindow  = 50 * time.Millisecond
	DefaultQueueCapacity = 4
	DefaultListenPort    = 4810
	DefaultSendPort      = 4811
)

func (c Config) withDefaults() Config {
	if c.TargetRate == 0 {
		c.TargetRate = DefaultTargetRate
	}
	if c.JitterWindow == 0 {
		c.JitterWindow = DefaultJitterWindow
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.SendPort == 0 {
		c.SendPort = DefaultSendPort
	}
	if c.ChunkBytes == 0 {
		c.ChunkBytes = DefaultChunkBytes
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	// ListenPort 0 stays 0 only when explicitly requested via
	// WithEphemeralListenPort (tests); the zero Config gets the fixed port.
	return c
}

// session holds everything torn down on disconnect.
type session struct {
	cancel    context.CancelFunc
	group     *errgroup.Group
	transport *Transport
}

// Bridge wires one capture stream, one playback stream, and one peer
// address into a live audio session, and owns the session's lifecycle.
// All exported methods are safe for concurrent use.
type Bridge struct {
	cfg      Config
	capture  device.CaptureStream
	playback device.PlaybackStream
	counters *Counters

	ephemeralListen bool

	mu   sync.Mutex // guards state transitions and sess
	sess *session

	state     atomic.Int32
	connected atomic.Bool

	statusMu sync.Mutex
	status   string
}

// Option configures a [Bridge] during construction.
type Option func(*Bridge)

// WithEphemeralListenPort makes the transport bind an OS-assigned receive
// port instead of the fixed well-known one. Used by tests that run two
// bridges on one host.
func WithEphemeralListenPort() Option {
	return func(b *Bridge) { b.ephemeralListen = true }
}

// New creates a Bridge in the Idle state. The device streams are opened by
// the caller and remain owned by the bridge until Disconnect.
func New(cfg Config, capture device.CaptureStream, playback device.PlaybackStream, opts ...Option) *Bridge {
	b := &Bridge{
		cfg:      cfg.withDefaults(),
		capture:  capture,
		playback: playback,
		counters: &Counters{},
		status:   "idle",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// State returns the current lifecycle state.
func (b *Bridge) State() State { return State(b.state.Load()) }

// Connected reports whether a session is live.
func (b *Bridge) Connected() bool { return b.connected.Load() }

// Status returns the human-readable status line. Only setup errors and the
// final disconnect ever change it; transient conditions are visible only
// through counter trends.
func (b *Bridge) Status() string {
	b.statusMu.Lock()
	defer b.statusMu.Unlock()
	return b.status
}

func (b *Bridge) setStatus(s string) {
	b.statusMu.Lock()
	b.status = s
	b.statusMu.Unlock()
}

// Counters returns a snapshot of the session counters.
func (b *Bridge) Counters() Snapshot { return b.counters.Snapshot() }

// ListenAddr returns the receive socket address of the live session, or nil
// when idle.
func (b *Bridge) ListenAddr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sess == nil {
		return nil
	}
	return b.sess.transport.LocalAddr()
}

// Connect starts a session toward dest (a host or host:port). An empty
// destination is a validation error: it is reported through the status
// string and causes no state change. Any setup failure tears the partial
// session down exactly like an explicit disconnect and returns the bridge
// to Idle.
func (b *Bridge) Connect(ctx context.Context, dest string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if State(b.state.Load()) != StateIdle {
		return fmt.Errorf("bridge: cannot connect while %s", b.State())
	}

	dest = strings.TrimSpace(dest)
	if dest == "" {
		b.setStatus("no destination selected")
		return errors.New("bridge: empty destination")
	}
	if b.capture == nil || b.playback == nil {
		b.setStatus("no audio devices selected")
		return errors.New("bridge: missing capture or playback device")
	}

	_, span := observe.StartSpan(ctx, "bridge.connect")
	defer span.End()
	span.SetAttributes(attribute.String("peer", dest))

	b.state.Store(int32(StateConnecting))
	b.counters.Reset()
	b.setStatus("connecting to " + dest)

	fail := func(err error) error {
		span.RecordError(err)
		b.connected.Store(false)
		b.state.Store(int32(StateIdle))
		b.setStatus("error: " + err.Error())
		slog.Error("bridge: connect failed", "peer", dest, "err", err)
		return err
	}

	addr, err := b.resolveDest(dest)
	if err != nil {
		return fail(err)
	}

	captureFmt := b.capture.Format()
	playbackFmt := b.playback.Format()
	if playbackFmt.Channels != 1 && playbackFmt.Channels != 2 {
		return fail(fmt.Errorf("playback: unsupported channel count %d (want 1 or 2)", playbackFmt.Channels))
	}

	outbound := NewQueue[[]int16](b.cfg.QueueCapacity)
	inbound := NewQueue[[]int16](b.cfg.QueueCapacity)
	jitter := NewJitterBuffer(JitterCapacity(b.cfg.TargetRate, b.cfg.JitterWindow))

	pipeline, err := NewCapturePipeline(captureFmt, b.cfg.TargetRate, outbound, b.counters)
	if err != nil {
		return fail(err)
	}

	listenPort := b.cfg.ListenPort
	if listenPort == 0 && !b.ephemeralListen {
		listenPort = DefaultListenPort
	}
	transport, err := NewTransport(TransportConfig{
		Dest:         addr,
		ListenPort:   listenPort,
		ChunkBytes:   b.cfg.ChunkBytes,
		PollInterval: b.cfg.PollInterval,
	}, outbound, inbound, b.counters)
	if err != nil {
		return fail(err)
	}

	// The session outlives the connect call's context.
	runCtx, cancel := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(runCtx)

	group.Go(func() error {
		return transport.Run(groupCtx)
	})
	group.Go(func() error {
		// Jitter feeder: the only blocking consumer in the system. It
		// moves decoded blocks from the inbound queue into the buffer
		// the output callback drains.
		for {
			samples, ok := inbound.Pop(groupCtx)
			if !ok {
				return nil
			}
			jitter.Append(samples)
		}
	})

	if err := b.capture.Start(pipeline.Process); err != nil {
		cancel()
		_ = group.Wait()
		transport.Close()
		return fail(fmt.Errorf("start capture: %w", err))
	}
	if err := b.playback.Start(func(out []float32) {
		jitter.Drain(out, playbackFmt.Channels)
	}); err != nil {
		_ = b.capture.Stop()
		cancel()
		_ = group.Wait()
		transport.Close()
		return fail(fmt.Errorf("start playback: %w", err))
	}

	b.sess = &session{cancel: cancel, group: group, transport: transport}
	b.state.Store(int32(StateConnected))
	b.connected.Store(true)
	b.setStatus(fmt.Sprintf("connected to %s (%s)", dest, captureFmt))
	slog.Info("bridge: connected",
		"peer", addr.String(),
		"capture", captureFmt.String(),
		"playback", playbackFmt.String(),
		"target_rate", b.cfg.TargetRate,
		"decimation", pipeline.Ratio(),
	)
	return nil
}

// Disconnect stops the live session: audio streams first, then the network
// loop, then the sockets. Shutdown latency is bounded by the poll interval
// plus one audio-callback period — cancellation is cooperative, nothing is
// preempted. Calling Disconnect while idle is a no-op.
func (b *Bridge) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if State(b.state.Load()) != StateConnected {
		return nil
	}
	b.state.Store(int32(StateDisconnecting))
	sess := b.sess
	b.sess = nil

	var errs []error
	if err := b.capture.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}
	if err := b.playback.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop playback: %w", err))
	}

	sess.cancel()
	if err := sess.group.Wait(); err != nil {
		errs = append(errs, err)
	}
	if err := sess.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	b.connected.Store(false)
	b.state.Store(int32(StateIdle))
	b.setStatus("disconnected")
	slog.Info("bridge: disconnected")
	return errors.Join(errs...)
}

// resolveDest turns a host or host:port string into a UDP address, applying
// the configured send port when none is given.
func (b *Bridge) resolveDest(dest string) (*net.UDPAddr, error) {
	hostport := dest
	if _, _, err := net.SplitHostPort(dest); err != nil {
		hostport = net.JoinHostPort(dest, strconv.Itoa(b.cfg.SendPort))
	}
	addr, err := net.ResolveUDPAddr("udp", hostport)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", dest, err)
	}
	return addr, nil
}
