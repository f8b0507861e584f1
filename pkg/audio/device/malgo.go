package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/budbridge-io/budbridge/pkg/audio"
)

// Backend owns a miniaudio context and opens capture/playback streams on it.
// One Backend per process is sufficient; streams opened from it may be
// started and stopped independently.
type Backend struct {
	ctx *malgo.AllocatedContext
}

// NewBackend initialises the miniaudio context for the host platform.
func NewBackend() (*Backend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, fmt.Errorf("device: init context: %w", err)
	}
	return &Backend{ctx: ctx}, nil
}

// Close tears down the miniaudio context. All streams opened from this
// backend must be stopped first.
func (b *Backend) Close() error {
	err := b.ctx.Uninit()
	b.ctx.Free()
	if err != nil {
		return fmt.Errorf("device: uninit context: %w", err)
	}
	return nil
}

// CaptureDevices lists the available capture devices.
func (b *Backend) CaptureDevices() ([]Info, error) {
	return b.devices(malgo.Capture)
}

// PlaybackDevices lists the available playback devices.
func (b *Backend) PlaybackDevices() ([]Info, error) {
	return b.devices(malgo.Playback)
}

func (b *Backend) devices(kind malgo.DeviceType) ([]Info, error) {
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	out := make([]Info, 0, len(infos))
	for _, info := range infos {
		out = append(out, Info{
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return out, nil
}

// OpenCapture prepares a capture stream on the named device in the given
// format. An empty name selects the backend's default capture device. The
// device is not started until [CaptureStream.Start] is called.
func (b *Backend) OpenCapture(name string, format audio.Format) (CaptureStream, error) {
	id, err := b.lookup(malgo.Capture, name)
	if err != nil {
		return nil, err
	}
	return &malgoCapture{ctx: b.ctx, id: id, format: format}, nil
}

// OpenPlayback prepares a playback stream on the named device in the given
// format. An empty name selects the backend's default playback device.
func (b *Backend) OpenPlayback(name string, format audio.Format) (PlaybackStream, error) {
	id, err := b.lookup(malgo.Playback, name)
	if err != nil {
		return nil, err
	}
	return &malgoPlayback{ctx: b.ctx, id: id, format: format}, nil
}

// lookup resolves a device name to its backend ID. A nil return with no
// error means "use the default device".
func (b *Backend) lookup(kind malgo.DeviceType, name string) (*malgo.DeviceID, error) {
	if name == "" {
		return nil, nil
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("device: enumerate: %w", err)
	}
	for _, info := range infos {
		if info.Name() == name {
			id := info.ID
			return &id, nil
		}
	}
	return nil, fmt.Errorf("device: no %v device named %q", kind, name)
}

type malgoCapture struct {
	ctx    *malgo.AllocatedContext
	id     *malgo.DeviceID
	format audio.Format

	mu      sync.Mutex
	dev     *malgo.Device
	scratch []float32
}

func (c *malgoCapture) Format() audio.Format { return c.format }

func (c *malgoCapture) Start(onFrames func(samples []float32)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev != nil {
		return fmt.Errorf("device: capture already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatF32
	cfg.Capture.Channels = uint32(c.format.Channels)
	cfg.SampleRate = uint32(c.format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if c.id != nil {
		cfg.Capture.DeviceID = c.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			n := int(frameCount) * c.format.Channels
			if cap(c.scratch) < n {
				c.scratch = make([]float32, n)
			}
			samples := c.scratch[:n]
			decodeF32LE(input, samples)
			onFrames(samples)
		},
	}

	dev, err := malgo.InitDevice(c.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("device: init capture: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start capture: %w", err)
	}
	c.dev = dev
	return nil
}

func (c *malgoCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dev == nil {
		return nil
	}
	err := c.dev.Stop()
	c.dev.Uninit()
	c.dev = nil
	if err != nil {
		return fmt.Errorf("device: stop capture: %w", err)
	}
	return nil
}

type malgoPlayback struct {
	ctx    *malgo.AllocatedContext
	id     *malgo.DeviceID
	format audio.Format

	mu      sync.Mutex
	dev     *malgo.Device
	scratch []float32
}

func (p *malgoPlayback) Format() audio.Format { return p.format }

func (p *malgoPlayback) Start(fill func(out []float32)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return fmt.Errorf("device: playback already started")
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatF32
	cfg.Playback.Channels = uint32(p.format.Channels)
	cfg.SampleRate = uint32(p.format.SampleRate)
	cfg.Alsa.NoMMap = 1
	if p.id != nil {
		cfg.Playback.DeviceID = p.id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			n := int(frameCount) * p.format.Channels
			if cap(p.scratch) < n {
				p.scratch = make([]float32, n)
			}
			samples := p.scratch[:n]
			fill(samples)
			encodeF32LE(samples, output)
		},
	}

	dev, err := malgo.InitDevice(p.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("device: init playback: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return fmt.Errorf("device: start playback: %w", err)
	}
	p.dev = dev
	return nil
}

func (p *malgoPlayback) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	err := p.dev.Stop()
	p.dev.Uninit()
	p.dev = nil
	if err != nil {
		return fmt.Errorf("device: stop playback: %w", err)
	}
	return nil
}

// decodeF32LE reads little-endian float32 samples from raw into dst.
func decodeF32LE(raw []byte, dst []float32) {
	for i := range dst {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		dst[i] = math.Float32frombits(bits)
	}
}

// encodeF32LE writes samples into raw as little-endian float32.
func encodeF32LE(samples []float32, raw []byte) {
	for i, s := range samples {
		binary.LittleEndian.PutUint32(raw[i*4:], math.Float32bits(s))
	}
}
