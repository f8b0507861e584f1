package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied to unset fields. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills zero-valued fields with the built-in defaults.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = def.Server.ListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.Audio.TargetSampleRate == 0 {
		cfg.Audio.TargetSampleRate = def.Audio.TargetSampleRate
	}
	if cfg.Audio.JitterWindowMS == 0 {
		cfg.Audio.JitterWindowMS = def.Audio.JitterWindowMS
	}
	if cfg.Audio.QueueCapacity == 0 {
		cfg.Audio.QueueCapacity = def.Audio.QueueCapacity
	}
	if cfg.Audio.CaptureSampleRate == 0 {
		cfg.Audio.CaptureSampleRate = def.Audio.CaptureSampleRate
	}
	if cfg.Audio.CaptureChannels == 0 {
		cfg.Audio.CaptureChannels = def.Audio.CaptureChannels
	}
	if cfg.Audio.PlaybackChannels == 0 {
		cfg.Audio.PlaybackChannels = def.Audio.PlaybackChannels
	}
	if cfg.Network.ReceivePort == 0 {
		cfg.Network.ReceivePort = def.Network.ReceivePort
	}
	if cfg.Network.SendPort == 0 {
		cfg.Network.SendPort = def.Network.SendPort
	}
	if cfg.Network.ChunkBytes == 0 {
		cfg.Network.ChunkBytes = def.Network.ChunkBytes
	}
	if cfg.Network.PollIntervalUS == 0 {
		cfg.Network.PollIntervalUS = def.Network.PollIntervalUS
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Audio.TargetSampleRate <= 0 {
		errs = append(errs, fmt.Errorf("audio.target_sample_rate %d must be positive", cfg.Audio.TargetSampleRate))
	}
	if cfg.Audio.JitterWindowMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.jitter_window_ms %d must be positive", cfg.Audio.JitterWindowMS))
	}
	if cfg.Audio.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("audio.queue_capacity %d must be positive", cfg.Audio.QueueCapacity))
	}
	if cfg.Audio.CaptureSampleRate < cfg.Audio.TargetSampleRate {
		errs = append(errs, fmt.Errorf("audio.capture_sample_rate %d must be at least the target rate %d", cfg.Audio.CaptureSampleRate, cfg.Audio.TargetSampleRate))
	}
	if cfg.Audio.CaptureChannels < 1 || cfg.Audio.CaptureChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.capture_channels %d must be 1 or 2", cfg.Audio.CaptureChannels))
	}
	if cfg.Audio.PlaybackChannels < 1 || cfg.Audio.PlaybackChannels > 2 {
		errs = append(errs, fmt.Errorf("audio.playback_channels %d must be 1 or 2", cfg.Audio.PlaybackChannels))
	}

	if err := validatePort("network.receive_port", cfg.Network.ReceivePort); err != nil {
		errs = append(errs, err)
	}
	if err := validatePort("network.send_port", cfg.Network.SendPort); err != nil {
		errs = append(errs, err)
	}
	if cfg.Network.ChunkBytes < 2 || cfg.Network.ChunkBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("network.chunk_bytes %d must be an even number of bytes, at least 2", cfg.Network.ChunkBytes))
	}
	if cfg.Network.ChunkBytes > 65507 {
		errs = append(errs, fmt.Errorf("network.chunk_bytes %d exceeds the maximum UDP payload of 65507", cfg.Network.ChunkBytes))
	}
	if cfg.Network.PollIntervalUS <= 0 {
		errs = append(errs, fmt.Errorf("network.poll_interval_us %d must be positive", cfg.Network.PollIntervalUS))
	}

	return errors.Join(errs...)
}

func validatePort(field string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s %d is out of range [1, 65535]", field, port)
	}
	return nil
}
