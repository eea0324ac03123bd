package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/earshot-dev/earshot/internal/config"
	"github.com/earshot-dev/earshot/internal/engine"
	"github.com/earshot-dev/earshot/internal/store"
	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

// deviceProbeTimeout is how long a device probe waits for the first audio
// delivery before declaring the device silent.
const deviceProbeTimeout = 2 * time.Second

// transcriptionTestTimeout bounds the synthetic transcription run.
const transcriptionTestTimeout = 30 * time.Second

// ErrNoDevice is returned by StartCapture when no device was requested and
// none could be auto-selected.
var ErrNoDevice = errors.New("app: no capture device available")

// Devices lists the capturable devices currently present.
func (a *App) Devices() ([]audio.Device, error) {
	devices, err := a.backend.EnumerateDevices()
	if err != nil {
		return nil, fmt.Errorf("app: enumerate devices: %w", err)
	}
	return devices, nil
}

// AutoSelect enumerates devices and returns the best capture target, or nil
// when nothing is available.
func (a *App) AutoSelect() (*audio.Device, error) {
	dev, err := capture.AutoSelectBestDevice(a.backend)
	if err != nil {
		return nil, fmt.Errorf("app: auto-select device: %w", err)
	}
	if dev != nil {
		a.diag.DeviceSelected(*dev)
	}
	return dev, nil
}

// TestDevice reports whether the device currently exists. It re-enumerates
// on every call and opens no stream; devices come and go, so a positive
// answer is only as fresh as the enumeration behind it.
func (a *App) TestDevice(deviceID string) (bool, error) {
	dev, err := capture.FindDeviceByID(a.backend, deviceID)
	if err != nil {
		return false, fmt.Errorf("app: test device: %w", err)
	}
	return dev != nil, nil
}

// DeviceProbeResult reports whether a short probe capture on a device
// delivered audio, and what it sounded like.
type DeviceProbeResult struct {
	DeviceID   string      `json:"device_id"`
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	SampleRate int         `json:"sample_rate,omitempty"`
	Channels   int         `json:"channels,omitempty"`
	Level      audio.Level `json:"level"`
}

// ProbeDevice opens a short probe capture on the device and reports whether
// it delivered audio within [deviceProbeTimeout]. It refuses to run while a
// real capture session is active; two consumers cannot share one device.
func (a *App) ProbeDevice(ctx context.Context, deviceID string) (DeviceProbeResult, error) {
	if a.manager.IsActive() {
		return DeviceProbeResult{}, errors.New("app: cannot probe device while capture is active")
	}

	res := DeviceProbeResult{DeviceID: deviceID}

	stream, err := a.backend.StartCapture(deviceID)
	if err != nil {
		a.diag.Error("DEVICE_PROBE", "open failed", err, "device_id", deviceID)
		res.Message = "failed to open device: " + err.Error()
		return res, nil
	}
	defer stream.Stop()

	res.SampleRate = stream.SampleRate
	res.Channels = stream.Channels

	timeout := time.NewTimer(deviceProbeTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		case <-timeout.C:
			res.Message = "device opened but delivered no audio"
			a.diag.Event("DEVICE_PROBE", res.Message, "device_id", deviceID)
			return res, nil
		case err, ok := <-stream.Errs:
			if !ok {
				res.Message = "stream ended before delivering audio"
				return res, nil
			}
			a.diag.Error("DEVICE_PROBE", "stream error", err, "device_id", deviceID)
		case chunk, ok := <-stream.Chunks:
			if !ok {
				res.Message = "stream ended before delivering audio"
				return res, nil
			}
			samples, err := audio.Convert(chunk, stream.Format, stream.Channels)
			if err != nil {
				res.Message = "device delivered undecodable audio: " + err.Error()
				return res, nil
			}
			res.Success = true
			res.Level = audio.Measure(samples)
			res.Message = fmt.Sprintf("received %d samples", len(samples))
			a.diag.BufferAnalysis("device-probe", samples, stream.SampleRate)
			return res, nil
		}
	}
}

// StartCapture begins a capture session. An empty deviceID is resolved
// through the persisted device settings: an explicitly selected device wins,
// otherwise auto-selection runs when enabled.
func (a *App) StartCapture(deviceID string) (engine.Status, error) {
	if deviceID == "" {
		resolved, err := a.resolveDevice()
		if err != nil {
			return engine.Status{}, err
		}
		deviceID = resolved
	}

	if err := a.manager.Start(deviceID); err != nil {
		return engine.Status{}, err
	}
	if a.worker != nil {
		a.worker.BeginSession(deviceID)
	}
	return a.manager.Status(), nil
}

// resolveDevice picks the capture device from settings or auto-selection.
func (a *App) resolveDevice() (string, error) {
	settings, err := config.LoadSettings(a.settingsPath)
	if err != nil {
		a.log.Warn("load device settings failed, falling back to auto-select", "err", err)
		settings = config.DefaultDeviceSettings()
	}

	if settings.SelectedDeviceID != "" {
		return settings.SelectedDeviceID, nil
	}
	if !settings.AutoSelect {
		return "", ErrNoDevice
	}

	dev, err := capture.AutoSelectBestDevice(a.backend)
	if err != nil {
		return "", fmt.Errorf("app: auto-select device: %w", err)
	}
	if dev == nil {
		return "", ErrNoDevice
	}
	return dev.ID, nil
}

// StopCapture ends the active capture session, if any.
func (a *App) StopCapture() error {
	return a.manager.Stop()
}

// CaptureStatus reports the current capture session state.
func (a *App) CaptureStatus() engine.Status {
	return a.manager.Status()
}

// Settings returns the persisted device settings.
func (a *App) Settings() (config.DeviceSettings, error) {
	return config.LoadSettings(a.settingsPath)
}

// SaveSettings persists the device settings.
func (a *App) SaveSettings(s config.DeviceSettings) error {
	return config.SaveSettings(a.settingsPath, s)
}

// Segments returns the stored transcript segments of one session in capture
// order. Fails when no transcript store is configured.
func (a *App) Segments(ctx context.Context, sessionID string) ([]store.Segment, error) {
	if a.store == nil {
		return nil, errors.New("app: no transcript store configured")
	}
	return a.store.BySession(ctx, sessionID)
}

// DiagnosisReport is the result of probing the audio subsystem.
type DiagnosisReport struct {
	Capability      capture.Capability `json:"capability"`
	Devices         []audio.Device     `json:"devices"`
	EnumerateError  string             `json:"enumerate_error,omitempty"`
	Recommendations []string           `json:"recommendations"`
}

// Diagnose probes the audio subsystem: platform capability, current device
// list, and actionable recommendations when something looks wrong.
func (a *App) Diagnose() DiagnosisReport {
	report := DiagnosisReport{Capability: a.backend.Capability()}

	devices, err := a.backend.EnumerateDevices()
	if err != nil {
		report.EnumerateError = err.Error()
		report.Recommendations = append(report.Recommendations,
			"Device enumeration failed; check that an audio subsystem is running and accessible.")
	}
	report.Devices = devices

	if err == nil && len(devices) == 0 {
		report.Recommendations = append(report.Recommendations,
			"No audio devices found. "+report.Capability.RecommendedSetup)
	}

	var renders, stereoMix int
	for _, d := range devices {
		switch {
		case d.DeviceType == audio.DeviceRender:
			renders++
		case d.LoopbackMethod == audio.MethodStereoMix:
			stereoMix++
		}
	}
	if len(devices) > 0 && renders == 0 && stereoMix == 0 {
		if report.Capability.NativeLoopback {
			report.Recommendations = append(report.Recommendations,
				"Only microphones were found; system audio capture needs an output device.")
		} else {
			report.Recommendations = append(report.Recommendations,
				"Only microphones were found; system audio capture is unavailable. "+report.Capability.RecommendedSetup)
		}
	}

	if len(report.Recommendations) == 0 {
		report.Recommendations = append(report.Recommendations, "Audio system looks healthy.")
	}

	a.diag.Event("DIAGNOSIS", "audio system probed",
		"platform", report.Capability.Platform,
		"native_loopback", report.Capability.NativeLoopback,
		"devices", len(devices),
		"enumerate_error", report.EnumerateError,
	)
	return report
}

// TranscriptionTestResult reports the outcome of a synthetic transcription
// run.
type TranscriptionTestResult struct {
	Success    bool    `json:"success"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	DurationMS int64   `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// TestTranscription feeds two seconds of a quiet 440 Hz tone through the
// configured transcriber, verifying the model loads and produces a result.
// The tone is not speech; any non-error completion counts as success.
func (a *App) TestTranscription(ctx context.Context) (TranscriptionTestResult, error) {
	if a.transcriber == nil {
		return TranscriptionTestResult{}, errors.New("app: no transcriber configured")
	}

	rate := a.cfg.Capture.TargetRate
	samples := testTone(440, 0.1, rate, 2*rate)
	a.diag.BufferAnalysis("transcription-test", samples, rate)

	ctx, cancel := context.WithTimeout(ctx, transcriptionTestTimeout)
	defer cancel()

	start := time.Now()
	t, err := a.transcriber.Transcribe(ctx, samples, rate)
	elapsed := time.Since(start)

	res := TranscriptionTestResult{
		Text:       t.Text,
		Confidence: t.Confidence,
		DurationMS: elapsed.Milliseconds(),
	}
	if err != nil {
		res.Error = err.Error()
		a.diag.TranscriptionAttempt("", 0, elapsed, false)
		return res, nil
	}
	res.Success = true
	a.diag.TranscriptionAttempt(t.Text, t.Confidence, elapsed, true)
	return res, nil
}

// testTone generates n samples of a sine tone at the given frequency and
// amplitude.
func testTone(freq float64, amplitude float32, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}
