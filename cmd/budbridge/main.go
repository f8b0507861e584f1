// Command budbridge runs the host side of the BudBridge audio bridge: it
// captures local audio, streams it to a mobile peer over UDP, and plays the
// peer's audio back, all controlled through a small HTTP status API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/budbridge-io/budbridge/internal/bridge"
	"github.com/budbridge-io/budbridge/internal/config"
	"github.com/budbridge-io/budbridge/internal/health"
	"github.com/budbridge-io/budbridge/internal/observe"
	"github.com/budbridge-io/budbridge/internal/peers"
	"github.com/budbridge-io/budbridge/internal/statusd"
	"github.com/budbridge-io/budbridge/pkg/audio"
	"github.com/budbridge-io/budbridge/pkg/audio/device"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "budbridge.yaml", "path to the YAML configuration file")
	peerFlag := flag.String("peer", "", "peer to connect to at startup (registry name or host[:port])")
	connectOnStart := flag.Bool("connect-on-start", false, "connect to the default peer at startup")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "budbridge: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	// ── Audio backend ─────────────────────────────────────────────────────────
	backend, err := device.NewBackend()
	if err != nil {
		slog.Error("failed to initialise audio backend", "err", err)
		return 1
	}
	defer backend.Close()

	if *listDevices {
		return printDevices(backend)
	}

	slog.Info("budbridge starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"receive_port", cfg.Network.ReceivePort,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "budbridge",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Audio streams ─────────────────────────────────────────────────────────
	capture, err := backend.OpenCapture(cfg.Audio.CaptureDevice, audio.Format{
		SampleRate: cfg.Audio.CaptureSampleRate,
		Channels:   cfg.Audio.CaptureChannels,
	})
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return 1
	}
	playback, err := backend.OpenPlayback(cfg.Audio.PlaybackDevice, audio.Format{
		SampleRate: cfg.Audio.TargetSampleRate,
		Channels:   cfg.Audio.PlaybackChannels,
	})
	if err != nil {
		slog.Error("failed to open playback device", "err", err)
		return 1
	}

	// ── Peer registry ─────────────────────────────────────────────────────────
	store, err := peers.NewStore(cfg.Peers.File)
	if err != nil {
		slog.Error("failed to load peer registry", "err", err)
		return 1
	}

	// ── Bridge ────────────────────────────────────────────────────────────────
	br := bridge.New(bridge.Config{
		TargetRate:    cfg.Audio.TargetSampleRate,
		JitterWindow:  cfg.Audio.JitterWindow(),
		QueueCapacity: cfg.Audio.QueueCapacity,
		ListenPort:    cfg.Network.ReceivePort,
		SendPort:      cfg.Network.SendPort,
		ChunkBytes:    cfg.Network.ChunkBytes,
		PollInterval:  cfg.Network.PollInterval(),
	}, capture, playback)

	unregister, err := observe.RegisterBridgeObserver(nil, func() observe.BridgeStats {
		snap := br.Counters()
		return observe.BridgeStats{
			PacketsSent:       snap.PacketsSent,
			PacketsReceived:   snap.PacketsReceived,
			SentWithAudio:     snap.SentWithAudio,
			ReceivedWithAudio: snap.ReceivedWithAudio,
			CaptureCallbacks:  snap.CaptureCallbacks,
			Connected:         br.Connected(),
		}
	})
	if err != nil {
		slog.Error("failed to register bridge metrics", "err", err)
		return 1
	}
	defer unregister.Unregister()

	metrics, err := observe.NewMetrics(nil)
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			slog.SetDefault(newLogger(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PeersFileChanged {
			if err := store.ReloadFrom(d.NewPeersFile); err != nil {
				slog.Warn("peer registry reload failed", "file", d.NewPeersFile, "err", err)
			} else {
				slog.Info("peer registry reloaded", "file", d.NewPeersFile)
			}
		}
	})
	if err == nil {
		defer watcher.Stop()
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config watcher disabled", "err", err)
	}

	// ── Status server ─────────────────────────────────────────────────────────
	checks := health.New(
		health.Func("audio", func(_ context.Context) error {
			if capture == nil || playback == nil {
				return errors.New("audio devices not open")
			}
			return nil
		}),
		health.Func("transport", func(_ context.Context) error {
			if br.Connected() && br.ListenAddr() == nil {
				return errors.New("session has no receive socket")
			}
			return nil
		}),
	)
	srv := statusd.New(cfg.Server.ListenAddr, br, store, checks, metrics)

	// ── Initial connection (optional) ─────────────────────────────────────────
	peer, autoConnect, err := startupPeer(store, *peerFlag, *connectOnStart)
	if err != nil {
		slog.Error("cannot resolve startup peer", "err", err)
		return 1
	}
	if autoConnect {
		if err := br.Connect(ctx, peer.Addr); err != nil {
			slog.Error("initial connect failed", "peer", peer.Addr, "err", err)
			return 1
		}
	} else {
		slog.Info("started idle — waiting for /api/connect")
	}

	slog.Info("budbridge ready — press Ctrl+C to shut down")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return srv.Run(groupCtx) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	if br.Connected() {
		if err := br.Disconnect(); err != nil {
			slog.Warn("disconnect error", "err", err)
		}
	}
	slog.Info("goodbye")
	return 0
}

// startupPeer decides whether the daemon connects right after boot. An
// explicit -peer always connects; -connect-on-start connects to the default
// peer. With neither, the daemon starts idle and waits for /api/connect.
func startupPeer(store *peers.Store, peerFlag string, connectOnStart bool) (peers.Peer, bool, error) {
	if peerFlag == "" && !connectOnStart {
		return peers.Peer{}, false, nil
	}
	p, err := store.Resolve(peerFlag)
	if err != nil {
		return peers.Peer{}, false, err
	}
	return p, true, nil
}

// loadConfig reads the config file at path, falling back to the built-in
// defaults when the file does not exist.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// printDevices lists capture and playback devices on stdout.
func printDevices(backend *device.Backend) int {
	captures, err := backend.CaptureDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "budbridge: list capture devices: %v\n", err)
		return 1
	}
	playbacks, err := backend.PlaybackDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "budbridge: list playback devices: %v\n", err)
		return 1
	}

	fmt.Println("Capture devices:")
	for _, d := range captures {
		marker := "  "
		if d.IsDefault {
			marker = "* "
		}
		fmt.Printf("  %s%s\n", marker, d.Name)
	}
	fmt.Println("Playback devices:")
	for _, d := range playbacks {
		marker := "  "
		if d.IsDefault {
			marker = "* "
		}
		fmt.Printf("  %s%s\n", marker, d.Name)
	}
	return 0
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
