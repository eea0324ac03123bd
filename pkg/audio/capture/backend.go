// Package capture defines the platform-neutral capture backend interface and
// the stream type that carries raw audio out of it.
//
// The two primary abstractions are:
//
//   - [Backend] — enumerates capturable devices and opens a [Stream] on one.
//   - [Stream] — a live capture session: a channel of raw PCM chunks plus the
//     negotiated format and an idempotent stop handle.
//
// Platform adapters (capture/malgo for real hardware, capture/mock for tests)
// implement [Backend]. The package lives under pkg/ because alternative
// backends are expected to implement it.
package capture

import (
	"errors"
	"sync"

	"github.com/earshot-dev/earshot/pkg/audio"
)

// Sentinel errors returned by backend operations. Backends wrap
// platform-specific failures with context but keep these in the chain so
// callers can branch with errors.Is.
var (
	// ErrDeviceNotFound reports that the requested device ID was absent at
	// open time.
	ErrDeviceNotFound = errors.New("capture: device not found")

	// ErrUnsupported reports that the platform cannot perform the requested
	// capture mode (e.g. render-device loopback without native OS support).
	// It is surfaced immediately, never silently downgraded.
	ErrUnsupported = errors.New("capture: operation not supported on this platform")
)

// Capability describes what kind of loopback capture the running platform
// can do. It feeds the diagnostics report and user-facing guidance.
type Capability struct {
	// Platform is the human-readable OS name.
	Platform string `json:"platform"`

	// NativeLoopback reports whether render devices can be captured without
	// extra software.
	NativeLoopback bool `json:"native_loopback"`

	// RecommendedSetup is a short instruction for getting system audio
	// flowing on this platform.
	RecommendedSetup string `json:"recommended_setup"`

	// Limitations describes what this platform cannot do, empty when there
	// are none worth mentioning.
	Limitations string `json:"limitations,omitempty"`
}

// Backend is the abstraction over one platform's audio capture subsystem.
//
// Implementations must be safe for concurrent use.
type Backend interface {
	// EnumerateDevices lists the capturable endpoints currently present.
	// The list is built fresh on every call — devices can appear and
	// disappear, so results are never cached. On platforms without native
	// loopback only true input devices are returned.
	EnumerateDevices() ([]audio.Device, error)

	// StartCapture opens the device with the given ID and returns a live
	// [Stream]. Fails with [ErrDeviceNotFound] if the ID does not resolve,
	// [ErrUnsupported] if the device's capture mode is impossible on this
	// platform, or a wrapped platform error otherwise.
	StartCapture(deviceID string) (*Stream, error)

	// Capability reports the platform's loopback capability.
	Capability() Capability
}

// FindDeviceByID re-enumerates and linearly searches for the device with the
// given ID. It returns (nil, nil) — not an error — when the device is absent,
// since disappearing devices are an expected condition.
func FindDeviceByID(b Backend, id string) (*audio.Device, error) {
	devices, err := b.EnumerateDevices()
	if err != nil {
		return nil, err
	}
	for i := range devices {
		if devices[i].ID == id {
			return &devices[i], nil
		}
	}
	return nil, nil
}

// Stream is a live capture session on one device.
//
// Chunks delivers bursts of interleaved samples in the stream's native
// format. Chunk sizes vary with OS delivery; consumers must not assume a
// fixed size. The channel is closed when the underlying source ends.
//
// Errs delivers transient read errors (the stream keeps running) and is
// closed on fatal termination. Both channels are owned by the backend.
//
// A Stream is owned by exactly one consumer for its lifetime; [Stream.Stop]
// is the only way to request teardown.
type Stream struct {
	// SampleRate and Channels are the format negotiated at open time, which
	// may differ from the device's advertised native format.
	SampleRate int
	Channels   int

	// Format is the bit layout of the samples in each chunk.
	Format audio.SampleFormat

	// Chunks yields raw interleaved PCM deliveries.
	Chunks <-chan []byte

	// Errs yields transient read errors while the stream stays alive.
	Errs <-chan error

	stopOnce sync.Once
	stop     func() error
	stopErr  error
}

// NewStream assembles a Stream around backend-owned channels and a teardown
// function. stop may be nil for sources with nothing to release.
func NewStream(sampleRate, channels int, format audio.SampleFormat, chunks <-chan []byte, errs <-chan error, stop func() error) *Stream {
	return &Stream{
		SampleRate: sampleRate,
		Channels:   channels,
		Format:     format,
		Chunks:     chunks,
		Errs:       errs,
		stop:       stop,
	}
}

// Stop tears down the platform stream. It is idempotent: the underlying
// teardown runs exactly once and later calls return the same result, so a
// stop racing a self-terminated stream never double-frees OS resources.
func (s *Stream) Stop() error {
	s.stopOnce.Do(func() {
		if s.stop != nil {
			s.stopErr = s.stop()
		}
	})
	return s.stopErr
}
