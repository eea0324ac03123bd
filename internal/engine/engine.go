// Package engine runs the capture session: it owns the single active
// capture, pulls raw audio off the platform stream, normalises it to mono at
// the target rate, maintains the sliding transcription window, and emits
// chunk and level events through the bridge.
//
// Only one capture session can be active at a time (enforced by mutex).
// All exported methods are safe for concurrent use.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/earshot-dev/earshot/internal/bridge"
	"github.com/earshot-dev/earshot/internal/diag"
	"github.com/earshot-dev/earshot/internal/observe"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

// Status describes the current capture session.
type Status struct {
	Capturing bool      `json:"capturing"`
	DeviceID  string    `json:"device_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// ManagerConfig holds all dependencies for a [Manager].
type ManagerConfig struct {
	// Backend opens the platform capture streams. Required.
	Backend capture.Backend

	// Emitter receives chunk, level, and lifecycle events. Required.
	Emitter bridge.Emitter

	// Capture tunes the loop. The zero value means [DefaultCaptureConfig].
	Capture CaptureConfig

	// Diagnostics is the optional audio trace sink.
	Diagnostics *diag.Logger

	// Metrics defaults to [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Manager manages the lifecycle of capture sessions.
type Manager struct {
	mu        sync.Mutex
	capturing bool
	starting  bool
	deviceID  string
	startedAt time.Time
	stop      chan struct{}
	done      chan struct{}

	// Dependencies injected at construction.
	backend capture.Backend
	emitter bridge.Emitter
	cfg     CaptureConfig
	diag    *diag.Logger
	metrics *observe.Metrics
}

// NewManager creates a Manager with the given dependencies.
func NewManager(cfg ManagerConfig) *Manager {
	capCfg := cfg.Capture
	if capCfg == (CaptureConfig{}) {
		capCfg = DefaultCaptureConfig()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Manager{
		backend: cfg.Backend,
		emitter: cfg.Emitter,
		cfg:     capCfg,
		diag:    cfg.Diagnostics,
		metrics: metrics,
	}
}

// Start begins capturing from the device with the given ID. The platform
// stream is opened synchronously so open failures surface here; processing
// then continues on a background goroutine until [Manager.Stop] or a fatal
// stream condition.
//
// Returns an error if a capture is already in progress or another Start is
// still opening its stream. A previous session that ended on its own
// (stream error, device gone) does not block a new Start; its state is
// reset here.
func (m *Manager) Start(deviceID string) error {
	m.mu.Lock()
	if m.capturing {
		select {
		case <-m.done:
			// Previous loop exited on its own; clear the stale session.
			m.resetLocked(m.done)
		default:
			active := m.deviceID
			m.mu.Unlock()
			return fmt.Errorf("engine: capture already in progress (device=%s)", active)
		}
	}
	if m.starting {
		m.mu.Unlock()
		return fmt.Errorf("engine: capture already starting")
	}
	m.starting = true
	m.mu.Unlock()

	m.diag.Event("CAPTURE", "starting capture", "device_id", deviceID)

	// Best-effort device record for the trace; the ID alone is authoritative.
	if dev, err := capture.FindDeviceByID(m.backend, deviceID); err == nil && dev != nil {
		m.diag.DeviceSelected(*dev)
	}

	// Enumeration and the stream open run unlocked; device opens can take
	// hundreds of milliseconds and must not stall Status or Stop. The
	// starting flag keeps concurrent Starts out in the meantime.
	stream, err := m.backend.StartCapture(deviceID)

	m.mu.Lock()
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		m.diag.Error("CAPTURE", "start failed", err, "device_id", deviceID)
		return fmt.Errorf("engine: start capture on %q: %w", deviceID, err)
	}

	stop := make(chan struct{}, 1)
	done := make(chan struct{})

	m.capturing = true
	m.deviceID = deviceID
	m.startedAt = time.Now()
	m.stop = stop
	m.done = done
	m.mu.Unlock()

	go m.run(stream, deviceID, stop, done)

	slog.Info("capture started",
		"device_id", deviceID,
		"sample_rate", stream.SampleRate,
		"channels", stream.Channels,
		"format", stream.Format.String(),
	)
	return nil
}

// Stop signals the capture loop and waits for it to finish. Calling Stop
// with no active session is a no-op; concurrent Stops all return once the
// loop has exited.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if !m.capturing {
		m.mu.Unlock()
		return nil
	}
	stop, done := m.stop, m.done
	m.mu.Unlock()

	select {
	case stop <- struct{}{}:
	default:
	}
	<-done

	m.mu.Lock()
	m.resetLocked(done)
	m.mu.Unlock()
	return nil
}

// IsActive reports whether a capture loop is currently running.
func (m *Manager) IsActive() bool {
	return m.Status().Capturing
}

// Status returns the current session state. A session whose loop has exited
// is reported as not capturing even before the next Start resets it.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.capturing {
		return Status{}
	}
	select {
	case <-m.done:
		return Status{}
	default:
	}
	return Status{Capturing: true, DeviceID: m.deviceID, StartedAt: m.startedAt}
}

// resetLocked clears session state, but only if it still belongs to the
// session identified by done. A racing Start may already have installed a
// new session; that one must not be clobbered.
func (m *Manager) resetLocked(done chan struct{}) {
	if m.done != done {
		return
	}
	m.capturing = false
	m.deviceID = ""
	m.startedAt = time.Time{}
	m.stop = nil
	m.done = nil
}
