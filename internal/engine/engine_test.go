package engine_test

import (
	"encoding/base64"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/earshot-dev/earshot/internal/bridge"
	"github.com/earshot-dev/earshot/internal/engine"
	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/audio/capture/mock"
)

// testConfig shrinks the loop's timing so tests complete quickly while
// keeping the same trigger structure as the defaults.
func testConfig() engine.CaptureConfig {
	cfg := engine.DefaultCaptureConfig()
	cfg.WindowDuration = time.Second
	cfg.MinAudio = 250 * time.Millisecond
	cfg.MinInterval = 10 * time.Millisecond
	cfg.LevelInterval = 5 * time.Millisecond
	cfg.FailureBudget = 3
	return cfg
}

// newTestManager wires a manager to a mock backend delivering 48 kHz stereo
// f32 audio.
func newTestManager(cfg engine.CaptureConfig) (*engine.Manager, *mock.Backend, *bridge.Recorder) {
	backend := &mock.Backend{
		StreamSampleRate: 48000,
		StreamChannels:   2,
		StreamFormat:     audio.FormatF32,
		ChunksCh:         make(chan []byte, 64),
		ErrsCh:           make(chan error, 64),
	}
	rec := &bridge.Recorder{}
	m := engine.NewManager(engine.ManagerConfig{
		Backend: backend,
		Emitter: rec,
		Capture: cfg,
	})
	return m, backend, rec
}

// stereoTone produces n frames of interleaved stereo f32le bytes carrying a
// sine tone at the given amplitude.
func stereoTone(freq float64, amplitude float32, rate, n int) []byte {
	samples := make([]float32, n*2)
	for i := 0; i < n; i++ {
		v := amplitude * float32(math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		samples[i*2] = v
		samples[i*2+1] = v
	}
	return audio.EncodeF32LE(samples)
}

func stereoSilence(n int) []byte {
	return make([]byte, n*2*4)
}

// newMonoTestManager wires a manager to a mock backend delivering mono f32
// audio already at the target rate, so the loop processes samples untouched.
func newMonoTestManager(cfg engine.CaptureConfig) (*engine.Manager, *mock.Backend, *bridge.Recorder) {
	backend := &mock.Backend{
		StreamSampleRate: cfg.TargetRate,
		StreamChannels:   1,
		StreamFormat:     audio.FormatF32,
		ChunksCh:         make(chan []byte, 64),
		ErrsCh:           make(chan error, 64),
	}
	rec := &bridge.Recorder{}
	m := engine.NewManager(engine.ManagerConfig{
		Backend: backend,
		Emitter: rec,
		Capture: cfg,
	})
	return m, backend, rec
}

// constMono produces n mono f32le samples at a constant amplitude.
func constMono(amplitude float32, n int) []byte {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = amplitude
	}
	return audio.EncodeF32LE(samples)
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestStartRejectsSecondCapture(t *testing.T) {
	m, backend, _ := newTestManager(testConfig())

	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer m.Stop()

	if err := m.Start("dev-2"); err == nil {
		t.Fatal("second Start succeeded, want error")
	}
	if got := backend.StartCallCount(); got != 1 {
		t.Errorf("backend opened %d times, want 1", got)
	}
}

func TestStopWithoutStartIsNoOp(t *testing.T) {
	m, _, rec := newTestManager(testConfig())
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop on idle manager: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("repeated Stop: %v", err)
	}
	if len(rec.Events()) != 0 {
		t.Errorf("idle Stop emitted %d events, want 0", len(rec.Events()))
	}
}

func TestStopJoinsLoopAndTearsDownOnce(t *testing.T) {
	m, backend, rec := newTestManager(testConfig())
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	finished := make(chan struct{})
	go func() {
		_ = m.Stop()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Stop did not return within 500ms")
	}

	if got := backend.StopCount(); got != 1 {
		t.Errorf("stream teardown ran %d times, want 1", got)
	}
	// A second Stop after the loop ended changes nothing.
	if err := m.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if got := backend.StopCount(); got != 1 {
		t.Errorf("teardown count after second Stop = %d, want 1", got)
	}

	ended := rec.ByName(engine.EventCaptureEnded)
	if len(ended) != 1 {
		t.Fatalf("got %d ended events, want 1", len(ended))
	}
	payload := ended[0].Payload.(engine.EndedPayload)
	if payload.Reason != engine.ReasonStopped {
		t.Errorf("end reason = %q, want %q", payload.Reason, engine.ReasonStopped)
	}
	if m.IsActive() {
		t.Error("manager still active after Stop")
	}
}

func TestToneProducesChunkEvent(t *testing.T) {
	cfg := testConfig()
	m, backend, rec := newTestManager(cfg)
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	// Half a second of tone at 48 kHz resamples to 8000 samples at 16 kHz,
	// past the 250 ms emission floor. Delivered in bursts with pauses so the
	// interval gate opens.
	for i := 0; i < 10; i++ {
		backend.ChunksCh <- stereoTone(440, 0.1, 48000, 2400)
		time.Sleep(8 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventChunkReady)) > 0
	}, "no audio-chunk-ready event for a clearly audible tone")

	chunk := rec.ByName(engine.EventChunkReady)[0].Payload.(engine.ChunkPayload)
	if chunk.SampleRate != 16000 || chunk.Channels != 1 || chunk.BitsPerSample != 32 {
		t.Errorf("chunk format = %d Hz / %d ch / %d bit, want 16000/1/32",
			chunk.SampleRate, chunk.Channels, chunk.BitsPerSample)
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Audio)
	if err != nil {
		t.Fatalf("chunk audio is not valid base64: %v", err)
	}
	samples, err := audio.DecodeF32LE(raw)
	if err != nil {
		t.Fatalf("chunk audio is not f32le: %v", err)
	}
	if len(samples) == 0 || len(samples) > cfg.TargetRate {
		t.Errorf("chunk carries %d samples, want 1..%d", len(samples), cfg.TargetRate)
	}
	// The tone's energy must survive the pipeline; amplitude 0.1 has RMS
	// ~0.0707, far above the silence gate.
	if rms := audio.Measure(samples).RMS; rms < 0.05 {
		t.Errorf("chunk RMS = %f, want > 0.05", rms)
	}

	if len(rec.ByName(engine.EventLevel)) == 0 {
		t.Error("no audio-level events emitted while capturing")
	}
}

func TestSilenceEmitsNoChunk(t *testing.T) {
	m, backend, rec := newTestManager(testConfig())
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		backend.ChunksCh <- stereoSilence(2400)
		time.Sleep(8 * time.Millisecond)
	}

	// Levels keep flowing during silence; that is how the UI shows the meter
	// at zero.
	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventLevel)) > 0
	}, "no audio-level events during silence")

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(rec.ByName(engine.EventChunkReady)); got != 0 {
		t.Errorf("silence produced %d chunk events, want 0", got)
	}
}

func TestStatusDoesNotBlockDuringSlowOpen(t *testing.T) {
	m, backend, _ := newTestManager(testConfig())
	backend.StartDelay = 300 * time.Millisecond

	started := make(chan error, 1)
	go func() { started <- m.Start("dev-1") }()

	// Land inside the open, then make sure the manager still answers.
	time.Sleep(50 * time.Millisecond)
	t0 := time.Now()
	if got := m.Status(); got.Capturing {
		t.Error("capturing reported before the stream opened")
	}
	if waited := time.Since(t0); waited > 100*time.Millisecond {
		t.Errorf("Status blocked %v during the device open", waited)
	}

	// A concurrent Start during the open is rejected without a second open.
	if err := m.Start("dev-2"); err == nil {
		t.Error("Start during an in-flight open succeeded, want error")
	}

	if err := <-started; err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := backend.StartCallCount(); got != 1 {
		t.Errorf("backend opened %d times, want 1", got)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestSilenceGateClosedAtExactThreshold(t *testing.T) {
	cfg := testConfig()
	// 0.25 is exactly representable, so a constant 0.25 buffer has an RMS of
	// exactly the threshold. The gate is strict: equal means silent.
	cfg.SilenceRMS = 0.25

	m, backend, rec := newMonoTestManager(cfg)
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < 10; i++ {
		backend.ChunksCh <- constMono(0.25, 800)
		time.Sleep(12 * time.Millisecond)
	}

	// Levels still flow; only the chunk trigger is gated.
	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventLevel)) > 0
	}, "no audio-level events at the gate boundary")

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := len(rec.ByName(engine.EventChunkReady)); got != 0 {
		t.Errorf("RMS exactly at the threshold produced %d chunk events, want 0", got)
	}
}

func TestSilenceGateOpensJustAboveThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.SilenceRMS = 0.25

	m, backend, rec := newMonoTestManager(cfg)
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer m.Stop()

	// One ULP-ish step above the threshold: 0.25 + 2^-10, still exact.
	for i := 0; i < 10; i++ {
		backend.ChunksCh <- constMono(0.2509765625, 800)
		time.Sleep(12 * time.Millisecond)
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventChunkReady)) > 0
	}, "no chunk event for audio just above the silence gate")
}

func TestFailureBudgetEndsCapture(t *testing.T) {
	cfg := testConfig()
	m, backend, rec := newTestManager(cfg)
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	for i := 0; i < cfg.FailureBudget+1; i++ {
		backend.ErrsCh <- errors.New("device read failed")
	}

	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventCaptureEnded)) > 0
	}, "capture did not end after exhausting the failure budget")

	payload := rec.ByName(engine.EventCaptureEnded)[0].Payload.(engine.EndedPayload)
	if payload.Reason != engine.ReasonStreamError {
		t.Errorf("end reason = %q, want %q", payload.Reason, engine.ReasonStreamError)
	}
	if payload.Error == "" {
		t.Error("ended payload missing the fatal error")
	}
	if m.IsActive() {
		t.Error("manager reports active after fatal stream error")
	}

	// The dead session must not block a fresh Start.
	backend.ChunksCh = make(chan []byte, 64)
	backend.ErrsCh = make(chan error, 64)
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start after self-terminated session: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStreamClosureEndsCapture(t *testing.T) {
	m, backend, rec := newTestManager(testConfig())
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	close(backend.ChunksCh)

	waitFor(t, 2*time.Second, func() bool {
		return len(rec.ByName(engine.EventCaptureEnded)) > 0
	}, "capture did not end after stream closure")

	payload := rec.ByName(engine.EventCaptureEnded)[0].Payload.(engine.EndedPayload)
	if payload.Reason != engine.ReasonStreamClosed {
		t.Errorf("end reason = %q, want %q", payload.Reason, engine.ReasonStreamClosed)
	}
	if got := m.Status(); got.Capturing {
		t.Error("status reports capturing after stream closure")
	}
}

func TestStatusReportsDevice(t *testing.T) {
	m, _, _ := newTestManager(testConfig())
	if got := m.Status(); got.Capturing {
		t.Fatal("idle manager reports capturing")
	}

	if err := m.Start("render:feed"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	got := m.Status()
	if !got.Capturing || got.DeviceID != "render:feed" {
		t.Errorf("Status = %+v, want capturing on render:feed", got)
	}
	if got.StartedAt.IsZero() {
		t.Error("StartedAt not set")
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartFailsWhenBackendFails(t *testing.T) {
	backend := &mock.Backend{StartErr: errors.New("device busy")}
	rec := &bridge.Recorder{}
	m := engine.NewManager(engine.ManagerConfig{
		Backend: backend,
		Emitter: rec,
		Capture: testConfig(),
	})

	if err := m.Start("dev-1"); err == nil {
		t.Fatal("Start succeeded with failing backend")
	}
	if m.IsActive() {
		t.Error("manager active after failed Start")
	}
	// A failed open leaves the manager reusable.
	backend.StartErr = nil
	if err := m.Start("dev-1"); err != nil {
		t.Fatalf("Start after backend recovered: %v", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
