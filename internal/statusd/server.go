// Package statusd serves the bridge control and status HTTP API, including a
// WebSocket live-status stream, Prometheus metrics, and health probes.
package statusd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/budbridge-io/budbridge/internal/bridge"
	"github.com/budbridge-io/budbridge/internal/health"
	"github.com/budbridge-io/budbridge/internal/observe"
	"github.com/budbridge-io/budbridge/internal/peers"
)

// livePushInterval is how often the WebSocket live stream pushes a status
// snapshot to each subscriber.
const livePushInterval = 500 * time.Millisecond

// Bridge is the subset of the bridge API the status server drives.
type Bridge interface {
	Connect(ctx context.Context, dest string) error
	Disconnect() error
	State() bridge.State
	Status() string
	Connected() bool
	Counters() bridge.Snapshot
}

// Resolver maps a peer name (or empty string for the default peer) to a
// registry entry.
type Resolver interface {
	Resolve(name string) (peers.Peer, error)
}

// Server is the bridge status and control HTTP server.
type Server struct {
	addr     string
	bridge   Bridge
	resolver Resolver
	health   *health.Handler
	metrics  *observe.Metrics
}

// New creates a status server listening on addr once [Server.Run] is called.
func New(addr string, b Bridge, r Resolver, h *health.Handler, m *observe.Metrics) *Server {
	return &Server{addr: addr, bridge: b, resolver: r, health: h, metrics: m}
}

// Handler builds the full route table:
//
//	GET  /healthz          — liveness probe
//	GET  /readyz           — readiness probe
//	GET  /metrics          — Prometheus exposition
//	GET  /api/status       — one-shot JSON status snapshot
//	GET  /api/status/live  — WebSocket status stream (every 500ms)
//	POST /api/connect      — connect to a peer
//	POST /api/disconnect   — tear down the active session
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/live", s.handleStatusLive)
	mux.HandleFunc("POST /api/connect", s.handleConnect)
	mux.HandleFunc("POST /api/disconnect", s.handleDisconnect)
	return observe.Middleware(s.metrics)(mux)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	slog.Info("status server listening", "addr", s.addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("statusd: serve: %w", err)
	}
}

// statusResponse is the JSON body for /api/status and each live-stream frame.
type statusResponse struct {
	State     string          `json:"state"`
	Status    string          `json:"status"`
	Connected bool            `json:"connected"`
	Counters  bridge.Snapshot `json:"counters"`
}

func (s *Server) snapshot() statusResponse {
	return statusResponse{
		State:     s.bridge.State().String(),
		Status:    s.bridge.Status(),
		Connected: s.bridge.Connected(),
		Counters:  s.bridge.Counters(),
	}
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// connectRequest is the JSON body for the connect endpoint.
type connectRequest struct {
	// Peer is a registry name or a literal "host[:port]" address. Empty
	// selects the default peer.
	Peer string `json:"peer"`
}

// handleConnect handles POST /api/connect.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	peer, err := s.resolver.Resolve(req.Peer)
	if err != nil {
		http.Error(w, "resolve peer: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.bridge.Connect(r.Context(), peer.Addr); err != nil {
		http.Error(w, "connect: "+err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleDisconnect handles POST /api/disconnect.
func (s *Server) handleDisconnect(w http.ResponseWriter, _ *http.Request) {
	if err := s.bridge.Disconnect(); err != nil {
		http.Error(w, "disconnect: "+err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleStatusLive handles GET /api/status/live. It upgrades to a WebSocket
// and pushes a status snapshot every [livePushInterval] until the client
// disconnects.
func (s *Server) handleStatusLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Debug("live status: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()
	ticker := time.NewTicker(livePushInterval)
	defer ticker.Stop()

	// Send an immediate frame so clients don't wait a full interval for
	// their first snapshot.
	if err := wsjson.Write(ctx, conn, s.snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, s.snapshot()); err != nil {
				// Client went away; nothing to log at this level.
				return
			}
		}
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode failed"}`, http.StatusInternalServerError)
	}
}
