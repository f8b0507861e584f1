package statusd_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/budbridge-io/budbridge/internal/bridge"
	"github.com/budbridge-io/budbridge/internal/health"
	"github.com/budbridge-io/budbridge/internal/peers"
	"github.com/budbridge-io/budbridge/internal/statusd"
)

// fakeBridge implements statusd.Bridge with scripted behaviour.
type fakeBridge struct {
	mu         sync.Mutex
	state      bridge.State
	status     string
	connectErr error
	lastDest   string
}

func (f *fakeBridge) Connect(_ context.Context, dest string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.lastDest = dest
	f.state = bridge.StateConnected
	f.status = "connected to " + dest
	return nil
}

func (f *fakeBridge) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != bridge.StateConnected {
		return errors.New("not connected")
	}
	f.state = bridge.StateIdle
	f.status = "disconnected"
	return nil
}

func (f *fakeBridge) State() bridge.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeBridge) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeBridge) Connected() bool { return f.State() == bridge.StateConnected }

func (f *fakeBridge) LastDest() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastDest
}

func (f *fakeBridge) Counters() bridge.Snapshot { return bridge.Snapshot{PacketsSent: 42} }

// fakeResolver resolves any name to itself and "" to a fixed default.
type fakeResolver struct {
	def peers.Peer
	err error
}

func (f fakeResolver) Resolve(name string) (peers.Peer, error) {
	if f.err != nil {
		return peers.Peer{}, f.err
	}
	if name == "" {
		return f.def, nil
	}
	return peers.Peer{Name: name, Addr: name}, nil
}

func newTestServer(t *testing.T, b statusd.Bridge, r statusd.Resolver) *httptest.Server {
	t.Helper()
	srv := statusd.New(":0", b, r, health.New(), nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestStatus_ReturnsSnapshot(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{state: bridge.StateIdle, status: "idle"}
	ts := newTestServer(t, fb, fakeResolver{})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		State     string          `json:"state"`
		Status    string          `json:"status"`
		Connected bool            `json:"connected"`
		Counters  bridge.Snapshot `json:"counters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.State != "idle" {
		t.Errorf("state = %q, want idle", body.State)
	}
	if body.Connected {
		t.Error("connected = true, want false")
	}
	if body.Counters.PacketsSent != 42 {
		t.Errorf("packets_sent = %d, want 42", body.Counters.PacketsSent)
	}
}

func TestConnect_ResolvesPeerName(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{state: bridge.StateIdle}
	ts := newTestServer(t, fb, fakeResolver{def: peers.Peer{Name: "phone", Addr: "192.168.1.20:4811"}})

	resp, err := http.Post(ts.URL+"/api/connect", "application/json", strings.NewReader(`{"peer":""}`))
	if err != nil {
		t.Fatalf("POST /api/connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if fb.LastDest() != "192.168.1.20:4811" {
		t.Errorf("bridge connected to %q, want the default peer address", fb.lastDest)
	}
}

func TestConnect_BridgeErrorReturns409(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{connectErr: errors.New("already connected")}
	ts := newTestServer(t, fb, fakeResolver{def: peers.Peer{Addr: "10.0.0.1"}})

	resp, err := http.Post(ts.URL+"/api/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
}

func TestConnect_ResolverErrorReturns400(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{}
	ts := newTestServer(t, fb, fakeResolver{err: peers.ErrNoDefault})

	resp, err := http.Post(ts.URL+"/api/connect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/connect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDisconnect_Lifecycle(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{state: bridge.StateConnected, status: "connected"}
	ts := newTestServer(t, fb, fakeResolver{})

	resp, err := http.Post(ts.URL+"/api/disconnect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/disconnect: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if fb.State() != bridge.StateIdle {
		t.Errorf("bridge state = %v, want idle", fb.State())
	}

	// A second disconnect has no session to tear down.
	resp2, err := http.Post(ts.URL+"/api/disconnect", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/disconnect (second): %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusConflict {
		t.Errorf("second disconnect status = %d, want 409", resp2.StatusCode)
	}
}

func TestStatusLive_StreamsSnapshots(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{state: bridge.StateConnected, status: "connected to 10.0.0.1:4811"}
	ts := newTestServer(t, fb, fakeResolver{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/status/live"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// First frame arrives immediately, the next after the push interval.
	for i := 0; i < 2; i++ {
		var frame struct {
			State     string `json:"state"`
			Connected bool   `json:"connected"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if frame.State != "connected" || !frame.Connected {
			t.Errorf("frame %d = %+v, want connected state", i, frame)
		}
	}
}

func TestMetricsEndpoint_Serves(t *testing.T) {
	t.Parallel()
	fb := &fakeBridge{}
	ts := newTestServer(t, fb, fakeResolver{})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
