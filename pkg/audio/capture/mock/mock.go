// Package mock provides a test double for the capture package interfaces.
//
// Use Backend to verify which devices the caller enumerates and opens, and to
// feed controlled chunk and error sequences into the capture pipeline.
//
// Example:
//
//	b := &mock.Backend{
//	    DevicesResult: []audio.Device{{ID: "dev-1", DeviceType: audio.DeviceRender}},
//	}
//	stream, _ := b.StartCapture("dev-1")
//	b.ChunksCh <- rawPCM
//	close(b.ChunksCh)
package mock

import (
	"sync"
	"time"

	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

// Backend is a mock implementation of capture.Backend.
type Backend struct {
	mu sync.Mutex

	// DevicesResult is returned by every EnumerateDevices call.
	DevicesResult []audio.Device

	// EnumerateErr, if non-nil, is returned as the error from EnumerateDevices.
	EnumerateErr error

	// StartErr, if non-nil, is returned as the error from StartCapture.
	StartErr error

	// StartDelay makes StartCapture sleep before doing anything, simulating
	// a slow device open. Set it before the first call; it is read unlocked.
	StartDelay time.Duration

	// StreamSampleRate, StreamChannels and StreamFormat describe the stream
	// returned by StartCapture. Rate and channels default to 48000 Hz stereo
	// when zero; the zero StreamFormat is s16le.
	StreamSampleRate int
	StreamChannels   int
	StreamFormat     audio.SampleFormat

	// ChunksCh and ErrsCh are the channels wired into the returned stream.
	// If nil at the first StartCapture call they are created with capacity 16.
	// Callers own these channels and are responsible for sending to and
	// closing them in tests.
	ChunksCh chan []byte
	ErrsCh   chan error

	// StopErr, if non-nil, is returned by the stream's Stop.
	StopErr error

	// CapabilityResult is returned by Capability.
	CapabilityResult capture.Capability

	// --- Call records ---

	// EnumerateCallCount is the number of EnumerateDevices calls.
	EnumerateCallCount int

	// StartCalls records the device ID of every StartCapture call in order.
	StartCalls []string

	// StopCallCount is the number of times a returned stream's teardown ran.
	StopCallCount int
}

// EnumerateDevices records the call and returns DevicesResult, EnumerateErr.
func (b *Backend) EnumerateDevices() ([]audio.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EnumerateCallCount++
	if b.EnumerateErr != nil {
		return nil, b.EnumerateErr
	}
	out := make([]audio.Device, len(b.DevicesResult))
	copy(out, b.DevicesResult)
	return out, nil
}

// StartCapture records the call and returns a stream fed by ChunksCh and
// ErrsCh, or StartErr if set.
func (b *Backend) StartCapture(deviceID string) (*capture.Stream, error) {
	if b.StartDelay > 0 {
		time.Sleep(b.StartDelay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.StartCalls = append(b.StartCalls, deviceID)
	if b.StartErr != nil {
		return nil, b.StartErr
	}
	if b.ChunksCh == nil {
		b.ChunksCh = make(chan []byte, 16)
	}
	if b.ErrsCh == nil {
		b.ErrsCh = make(chan error, 16)
	}
	rate, channels := b.StreamSampleRate, b.StreamChannels
	if rate == 0 {
		rate = 48000
	}
	if channels == 0 {
		channels = 2
	}
	return capture.NewStream(rate, channels, b.StreamFormat, b.ChunksCh, b.ErrsCh, func() error {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.StopCallCount++
		return b.StopErr
	}), nil
}

// Capability returns CapabilityResult.
func (b *Backend) Capability() capture.Capability {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CapabilityResult
}

// StartCallCount returns the number of StartCapture calls. Thread-safe.
func (b *Backend) StartCallCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.StartCalls)
}

// StopCount returns the number of completed stream teardowns. Thread-safe.
func (b *Backend) StopCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.StopCallCount
}

// ResetCalls clears all recorded calls. Thread-safe.
func (b *Backend) ResetCalls() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.EnumerateCallCount = 0
	b.StartCalls = nil
	b.StopCallCount = 0
}

// Ensure Backend implements capture.Backend at compile time.
var _ capture.Backend = (*Backend)(nil)
