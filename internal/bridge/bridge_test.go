package bridge_test

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/budbridge-io/budbridge/internal/bridge"
	"github.com/budbridge-io/budbridge/pkg/audio"
	"github.com/budbridge-io/budbridge/pkg/audio/device/mock"
)

func newMockBridge(cfg bridge.Config) (*bridge.Bridge, *mock.CaptureStream, *mock.PlaybackStream) {
	capture := &mock.CaptureStream{Fmt: audio.Format{SampleRate: 48000, Channels: 1}}
	playback := &mock.PlaybackStream{Fmt: audio.Format{SampleRate: 48000, Channels: 2}}
	return bridge.New(cfg, capture, playback, bridge.WithEphemeralListenPort()), capture, playback
}

func TestBridge_EmptyDestinationIsNoStateChange(t *testing.T) {
	t.Parallel()
	b, _, _ := newMockBridge(bridge.Config{})

	if err := b.Connect(context.Background(), "   "); err == nil {
		t.Fatal("expected error for an empty destination")
	}
	if b.State() != bridge.StateIdle {
		t.Errorf("state = %v, want idle after a validation failure", b.State())
	}
	if b.Connected() {
		t.Error("connected = true after a validation failure")
	}
	if got := b.Status(); got != "no destination selected" {
		t.Errorf("status = %q, want the validation message", got)
	}
}

func TestBridge_ConnectDisconnectLifecycle(t *testing.T) {
	t.Parallel()
	b, capture, playback := newMockBridge(bridge.Config{})

	if err := b.Connect(context.Background(), "127.0.0.1:4811"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if b.State() != bridge.StateConnected || !b.Connected() {
		t.Fatalf("state = %v connected = %v, want a live session", b.State(), b.Connected())
	}
	if !capture.Started() || !playback.Started() {
		t.Error("both device streams must be started on connect")
	}
	if got := b.Status(); !strings.HasPrefix(got, "connected to 127.0.0.1:4811") {
		t.Errorf("status = %q, want a connected message", got)
	}
	if b.ListenAddr() == nil {
		t.Error("a live session must expose its receive address")
	}

	// A second connect while live is rejected.
	if err := b.Connect(context.Background(), "10.0.0.9"); err == nil {
		t.Error("expected error connecting while already connected")
	}

	if err := b.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if b.State() != bridge.StateIdle || b.Connected() {
		t.Errorf("state = %v connected = %v, want idle", b.State(), b.Connected())
	}
	if !capture.Stopped() || !playback.Stopped() {
		t.Error("both device streams must be stopped on disconnect")
	}
	if got := b.Status(); got != "disconnected" {
		t.Errorf("status = %q, want disconnected", got)
	}

	// Disconnect while idle is a no-op.
	if err := b.Disconnect(); err != nil {
		t.Errorf("idle Disconnect = %v, want nil", err)
	}
}

func TestBridge_ConnectResetsCounters(t *testing.T) {
	t.Parallel()
	b, capture, _ := newMockBridge(bridge.Config{})

	if err := b.Connect(context.Background(), "127.0.0.1:4811"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	capture.Deliver(make([]float32, 480))
	if got := b.Counters().CaptureCallbacks; got != 1 {
		t.Fatalf("capture callbacks = %d, want 1", got)
	}
	if err := b.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	if err := b.Connect(context.Background(), "127.0.0.1:4811"); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	defer b.Disconnect()

	if got := b.Counters().CaptureCallbacks; got != 0 {
		t.Errorf("capture callbacks after reconnect = %d, want 0 (reset)", got)
	}
}

func TestBridge_StartFailureTearsDownToIdle(t *testing.T) {
	t.Parallel()
	capture := &mock.CaptureStream{
		Fmt:      audio.Format{SampleRate: 48000, Channels: 1},
		StartErr: context.DeadlineExceeded,
	}
	playback := &mock.PlaybackStream{Fmt: audio.Format{SampleRate: 48000, Channels: 2}}
	b := bridge.New(bridge.Config{}, capture, playback, bridge.WithEphemeralListenPort())

	if err := b.Connect(context.Background(), "127.0.0.1:4811"); err == nil {
		t.Fatal("expected connect to fail when capture cannot start")
	}
	if b.State() != bridge.StateIdle {
		t.Errorf("state = %v, want idle after a failed connect", b.State())
	}
	if got := b.Status(); !strings.HasPrefix(got, "error: ") {
		t.Errorf("status = %q, want an error message", got)
	}
}

// TestBridge_EndToEnd exercises the full path: capture callback → downmix →
// quantize → UDP → decode → jitter buffer → playback callback, using a raw
// UDP socket as the remote peer.
func TestBridge_EndToEnd(t *testing.T) {
	t.Parallel()

	peer, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatalf("bind peer socket: %v", err)
	}
	defer peer.Close()
	peerPort := peer.LocalAddr().(*net.UDPAddr).Port

	capture := &mock.CaptureStream{Fmt: audio.Format{SampleRate: 48000, Channels: 2}}
	playback := &mock.PlaybackStream{Fmt: audio.Format{SampleRate: 48000, Channels: 2}}
	b := bridge.New(bridge.Config{SendPort: peerPort}, capture, playback, bridge.WithEphemeralListenPort())

	// A bare host must get the configured send port appended.
	if err := b.Connect(context.Background(), "127.0.0.1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer b.Disconnect()

	// Outbound: one stereo batch at constant 0.5 both channels → mono 0.5.
	batch := make([]float32, 960)
	for i := range batch {
		batch[i] = 0.5
	}
	capture.Deliver(batch)

	peer.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 65536)
	n, _, err := peer.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	samples := audio.DecodeLE(buf[:n])
	if len(samples) != 480 {
		t.Errorf("peer got %d samples, want 480 (960 stereo downmixed)", len(samples))
	}
	for i, s := range samples {
		if s != 16383 {
			t.Fatalf("sample[%d] = %d, want 16383", i, s)
		}
	}

	// Inbound: send a block of known samples to the bridge's receive port.
	dest := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: b.ListenAddr().(*net.UDPAddr).Port}
	inSamples := monotonic(1000, 200)
	if _, err := peer.WriteToUDP(audio.EncodeLE(inSamples), dest); err != nil {
		t.Fatalf("peer write: %v", err)
	}

	// Wait for the received audio to surface through the playback callback.
	deadline := time.After(5 * time.Second)
	for {
		out := playback.Pull(4)
		if out[0] != 0 {
			// First stereo frame carries the first received sample on
			// both channels.
			want := float32(1000) / 32768
			if out[0] != want || out[1] != want {
				t.Fatalf("first frame = [%v %v], want both %v", out[0], out[1], want)
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("received audio never reached the playback stream")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	snap := b.Counters()
	if snap.PacketsSent == 0 || snap.PacketsReceived == 0 {
		t.Errorf("counters = %+v, want sent and received both non-zero", snap)
	}
	if snap.SentWithAudio == 0 || snap.ReceivedWithAudio == 0 {
		t.Errorf("counters = %+v, want with-audio counts non-zero", snap)
	}
}
