// Package malgo implements the capture backend on top of miniaudio via
// github.com/gen2brain/malgo. It is the only package that touches real audio
// hardware.
//
// On Windows, render devices are captured through WASAPI loopback. On other
// platforms only true capture devices are exposed; system audio requires a
// virtual loopback input (BlackHole, PulseAudio monitor sources) which then
// shows up as a regular capture device.
package malgo

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

const (
	// Streams are opened at a fixed format; miniaudio converts from the
	// device's native format internally. The engine downstream handles the
	// resample to its target rate and the mono downmix.
	openSampleRate = 48000
	openChannels   = 2

	// defaultQueueDepth bounds the callback-to-consumer chunk queue. The
	// audio thread drops chunks rather than block when the queue is full.
	defaultQueueDepth = 8
)

// Device ID strings carry the endpoint direction so StartCapture knows
// whether to open a loopback or a plain capture stream.
const (
	renderIDPrefix  = "render:"
	captureIDPrefix = "capture:"
)

// stereoMixNames are the device name fragments that identify driver-provided
// mix-capture inputs, lowercased for matching.
var stereoMixNames = []string{"stereo mix", "what u hear", "wave out mix", "loopback", "monitor"}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger used for miniaudio messages and drop warnings.
func WithLogger(log *slog.Logger) Option {
	return func(b *Backend) { b.log = log }
}

// WithQueueDepth sets the capacity of each stream's chunk queue.
func WithQueueDepth(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.queueDepth = n
		}
	}
}

// Backend captures audio through miniaudio. Construct with [New] and release
// with Close; the backend owns one miniaudio context shared by all streams.
type Backend struct {
	ctx        *malgo.AllocatedContext
	log        *slog.Logger
	queueDepth int
}

// New initialises a miniaudio context.
func New(opts ...Option) (*Backend, error) {
	b := &Backend{
		log:        slog.Default(),
		queueDepth: defaultQueueDepth,
	}
	for _, opt := range opts {
		opt(b)
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		b.log.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return nil, fmt.Errorf("init miniaudio context: %w", err)
	}
	b.ctx = ctx
	return b, nil
}

// Close releases the miniaudio context. Streams must be stopped first.
func (b *Backend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

// EnumerateDevices lists render endpoints (only where native loopback works)
// followed by capture endpoints. The list is rebuilt on every call.
func (b *Backend) EnumerateDevices() ([]audio.Device, error) {
	var devices []audio.Device

	if platformCapability().NativeLoopback {
		infos, err := b.ctx.Devices(malgo.Playback)
		if err != nil {
			return nil, fmt.Errorf("enumerate render devices: %w", err)
		}
		for _, info := range infos {
			name := info.Name()
			isDefault := info.IsDefault != 0
			if isDefault {
				name += " (Default Output)"
			}
			devices = append(devices, audio.Device{
				ID:             renderIDPrefix + hex.EncodeToString(info.ID[:]),
				Name:           name,
				IsDefault:      isDefault,
				SampleRate:     openSampleRate,
				Channels:       openChannels,
				DeviceType:     audio.DeviceRender,
				LoopbackMethod: audio.MethodRenderLoopback,
			})
		}
	}

	infos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		method := audio.MethodCaptureDevice
		if isStereoMixName(info.Name()) {
			method = audio.MethodStereoMix
		}
		devices = append(devices, audio.Device{
			ID:             captureIDPrefix + hex.EncodeToString(info.ID[:]),
			Name:           info.Name(),
			IsDefault:      info.IsDefault != 0,
			SampleRate:     openSampleRate,
			Channels:       openChannels,
			DeviceType:     audio.DeviceCapture,
			LoopbackMethod: method,
		})
	}

	return devices, nil
}

// StartCapture opens the device behind the given ID and starts delivering
// chunks. Render IDs open a loopback stream and fail with
// [capture.ErrUnsupported] on platforms without native loopback.
func (b *Backend) StartCapture(deviceID string) (*capture.Stream, error) {
	kind, id, err := parseDeviceID(deviceID)
	if err != nil {
		return nil, err
	}

	var config malgo.DeviceConfig
	switch kind {
	case audio.DeviceRender:
		if !platformCapability().NativeLoopback {
			return nil, fmt.Errorf("loopback capture of render device %q: %w", deviceID, capture.ErrUnsupported)
		}
		config = malgo.DefaultDeviceConfig(malgo.Loopback)
	case audio.DeviceCapture:
		config = malgo.DefaultDeviceConfig(malgo.Capture)
	}
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = openChannels
	config.Capture.DeviceID = id.Pointer()
	config.SampleRate = openSampleRate

	chunks := make(chan []byte, b.queueDepth)
	errs := make(chan error, 1)

	var (
		closeOnce sync.Once
		stopping  atomic.Bool
		dropped   atomic.Int64
	)
	closeChannels := func() {
		closeOnce.Do(func() {
			close(chunks)
			close(errs)
		})
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, frameCount uint32) {
			if len(input) == 0 {
				return
			}
			// The backend reuses its buffer after the callback returns.
			chunk := make([]byte, len(input))
			copy(chunk, input)
			select {
			case chunks <- chunk:
			default:
				// Never block the audio thread.
				dropped.Add(1)
			}
		},
		Stop: func() {
			// Fires on any device stop, including our own teardown. Only an
			// unexpected stop is an error.
			if stopping.Load() {
				return
			}
			select {
			case errs <- fmt.Errorf("device %q stopped unexpectedly", deviceID):
			default:
			}
			closeChannels()
		},
	}

	dev, err := malgo.InitDevice(b.ctx.Context, config, callbacks)
	if err != nil {
		return nil, mapDeviceErr(fmt.Errorf("open device %q: %w", deviceID, err))
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, fmt.Errorf("start device %q: %w", deviceID, err)
	}

	b.log.Info("capture stream opened",
		"device", deviceID,
		"sample_rate", openSampleRate,
		"channels", openChannels,
		"format", audio.FormatF32.String())

	stop := func() error {
		stopping.Store(true)
		err := dev.Stop()
		dev.Uninit()
		closeChannels()
		if n := dropped.Load(); n > 0 {
			b.log.Warn("chunks dropped during capture", "device", deviceID, "dropped", n)
		}
		return err
	}
	return capture.NewStream(openSampleRate, openChannels, audio.FormatF32, chunks, errs, stop), nil
}

// Capability reports what the running platform can do.
func (b *Backend) Capability() capture.Capability {
	return platformCapability()
}

func parseDeviceID(s string) (audio.DeviceType, malgo.DeviceID, error) {
	var (
		kind audio.DeviceType
		id   malgo.DeviceID
		raw  string
	)
	switch {
	case strings.HasPrefix(s, renderIDPrefix):
		kind, raw = audio.DeviceRender, strings.TrimPrefix(s, renderIDPrefix)
	case strings.HasPrefix(s, captureIDPrefix):
		kind, raw = audio.DeviceCapture, strings.TrimPrefix(s, captureIDPrefix)
	default:
		return kind, id, fmt.Errorf("malformed device ID %q: %w", s, capture.ErrDeviceNotFound)
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) > len(id) {
		return kind, id, fmt.Errorf("malformed device ID %q: %w", s, capture.ErrDeviceNotFound)
	}
	copy(id[:], decoded)
	return kind, id, nil
}

func isStereoMixName(name string) bool {
	lower := strings.ToLower(name)
	for _, fragment := range stereoMixNames {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

// mapDeviceErr folds miniaudio's no-such-device failure into the package
// sentinel so callers can branch on it.
func mapDeviceErr(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "no device") {
		return fmt.Errorf("%w: %v", capture.ErrDeviceNotFound, err)
	}
	return err
}

// Ensure Backend implements capture.Backend at compile time.
var _ capture.Backend = (*Backend)(nil)
