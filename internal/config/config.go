// Package config provides the configuration schema, loader, and file watcher
// for the BudBridge audio bridge.
package config

import "time"

// LogLevel controls log verbosity for the bridge daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for BudBridge.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Audio   AudioConfig   `yaml:"audio"`
	Network NetworkConfig `yaml:"network"`
	Peers   PeersConfig   `yaml:"peers"`
}

// ServerConfig holds settings for the status HTTP server and logging.
type ServerConfig struct {
	// ListenAddr is the TCP address the status server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// AudioConfig holds capture, playback, and resampling settings.
type AudioConfig struct {
	// TargetSampleRate is the mono sample rate carried on the wire, in Hz.
	TargetSampleRate int `yaml:"target_sample_rate"`

	// JitterWindowMS sizes the playback jitter buffer, in milliseconds of
	// audio at the target sample rate.
	JitterWindowMS int `yaml:"jitter_window_ms"`

	// QueueCapacity bounds the capture and playback hand-off queues,
	// counted in sample blocks.
	QueueCapacity int `yaml:"queue_capacity"`

	// CaptureDevice names the input device to open. Empty selects the
	// system default.
	CaptureDevice string `yaml:"capture_device"`

	// PlaybackDevice names the output device to open. Empty selects the
	// system default.
	PlaybackDevice string `yaml:"playback_device"`

	// CaptureSampleRate is the rate the capture device is opened at, in Hz.
	// Rates above the target are decimated down on the capture path.
	CaptureSampleRate int `yaml:"capture_sample_rate"`

	// CaptureChannels is the capture channel count (1 or 2). Stereo input
	// is downmixed to mono before transmission.
	CaptureChannels int `yaml:"capture_channels"`

	// PlaybackChannels is the playback channel count (1 or 2). Received
	// mono audio is duplicated across stereo outputs.
	PlaybackChannels int `yaml:"playback_channels"`
}

// NetworkConfig holds the UDP transport settings.
type NetworkConfig struct {
	// ReceivePort is the local UDP port incoming audio arrives on.
	ReceivePort int `yaml:"receive_port"`

	// SendPort is the remote UDP port outgoing audio is sent to when a
	// peer address omits an explicit port.
	SendPort int `yaml:"send_port"`

	// ChunkBytes is the maximum UDP payload size per datagram. Must be
	// even, since payloads carry little-endian int16 samples.
	ChunkBytes int `yaml:"chunk_bytes"`

	// PollIntervalUS is the transport loop sleep between send/receive
	// attempts, in microseconds.
	PollIntervalUS int `yaml:"poll_interval_us"`
}

// PeersConfig locates the persistent peer registry.
type PeersConfig struct {
	// File is the path of the YAML peer registry. Empty disables persistence.
	File string `yaml:"file"`
}

// JitterWindow returns the jitter buffer window as a duration.
func (a AudioConfig) JitterWindow() time.Duration {
	return time.Duration(a.JitterWindowMS) * time.Millisecond
}

// PollInterval returns the transport poll interval as a duration.
func (n NetworkConfig) PollInterval() time.Duration {
	return time.Duration(n.PollIntervalUS) * time.Microsecond
}

// Default returns a config populated with the built-in defaults: 48 kHz
// target rate, a 50 ms jitter window, receive port 4810, send port 4811,
// and 1400-byte chunks.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   LogInfo,
		},
		Audio: AudioConfig{
			TargetSampleRate:  48000,
			JitterWindowMS:    50,
			QueueCapacity:     4,
			CaptureSampleRate: 48000,
			CaptureChannels:   2,
			PlaybackChannels:  2,
		},
		Network: NetworkConfig{
			ReceivePort:    4810,
			SendPort:       4811,
			ChunkBytes:     1400,
			PollIntervalUS: 100,
		},
	}
}
