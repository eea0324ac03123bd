package engine

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

// run is the capture loop. It owns the stream for its whole lifetime and
// performs teardown exactly once, whether it exits on a stop request, an
// exhausted failure budget, or stream closure. done is closed last, after
// the audio-capture-ended event has been emitted.
func (m *Manager) run(stream *capture.Stream, deviceID string, stop <-chan struct{}, done chan<- struct{}) {
	ctx := context.Background()
	reason := ReasonStopped
	var endErr error

	m.metrics.ActiveCaptures.Add(ctx, 1)

	defer func() {
		if err := stream.Stop(); err != nil {
			slog.Warn("stream teardown error", "device_id", deviceID, "err", err)
		}
		m.metrics.ActiveCaptures.Add(ctx, -1)

		payload := EndedPayload{Device: deviceID, Reason: reason}
		if endErr != nil {
			payload.Error = endErr.Error()
		}
		m.emitter.Emit(EventCaptureEnded, payload)
		m.diag.Event("CAPTURE", "capture ended", "device_id", deviceID, "reason", reason)
		slog.Info("capture ended", "device_id", deviceID, "reason", reason, "err", endErr)
		close(done)
	}()

	proc := &audio.Processor{TargetRate: m.cfg.TargetRate}
	buf := newSlidingBuffer(m.cfg.windowSamples())
	minSamples := m.cfg.minAudioSamples()

	start := time.Now()
	lastChunk := start
	lastLevel := start
	var totalSamples uint64
	failures := 0

	chunks, errs := stream.Chunks, stream.Errs

	for {
		select {
		case <-stop:
			return

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			failures++
			m.metrics.RecordCaptureError(ctx, "stream")
			m.diag.Error("CAPTURE", "stream error", err, "device_id", deviceID, "consecutive", failures)
			slog.Warn("transient stream error", "device_id", deviceID, "consecutive", failures, "err", err)
			if failures > m.cfg.FailureBudget {
				reason, endErr = ReasonStreamError, err
				m.metrics.RecordCaptureError(ctx, "fatal")
				return
			}

		case raw, ok := <-chunks:
			if !ok {
				reason = ReasonStreamClosed
				return
			}

			t0 := time.Now()
			samples, err := proc.Process(raw, stream.Format, stream.Channels, stream.SampleRate)
			if err != nil {
				failures++
				m.metrics.RecordCaptureError(ctx, "convert")
				slog.Warn("audio conversion error", "device_id", deviceID, "consecutive", failures, "err", err)
				if failures > m.cfg.FailureBudget {
					reason, endErr = ReasonStreamError, err
					m.metrics.RecordCaptureError(ctx, "fatal")
					return
				}
				continue
			}
			// A good delivery works the budget back down.
			if failures > 0 {
				failures--
			}
			m.metrics.ProcessDuration.Record(ctx, time.Since(t0).Seconds())

			if len(samples) == 0 {
				continue
			}
			totalSamples += uint64(len(samples))
			m.metrics.SamplesProcessed.Add(ctx, int64(len(samples)))
			buf.Append(samples)

			now := time.Now()

			if buf.Len() >= minSamples && now.Sub(lastChunk) > m.cfg.MinInterval {
				if buf.RMS() > m.cfg.SilenceRMS {
					m.emitChunk(buf, now.Sub(start))
					lastChunk = now
					buf.Shift()
				}
			}

			if now.Sub(lastLevel) > m.cfg.LevelInterval {
				elapsed := now.Sub(start).Seconds()
				var sps uint32
				if elapsed > 0 {
					sps = uint32(float64(totalSamples) / elapsed)
				}
				m.emitter.Emit(EventLevel, LevelPayload{
					Level:         audio.Measure(samples),
					Capturing:     true,
					SamplesPerSec: sps,
					Device:        deviceID,
				})
				m.metrics.LevelEvents.Add(ctx, 1)
				lastLevel = now
			}
		}
	}
}

// emitChunk publishes the current window as an audio-chunk-ready event.
func (m *Manager) emitChunk(buf *slidingBuffer, sinceStart time.Duration) {
	window := buf.Window()
	m.diag.BufferAnalysis("chunk-emitted", window, m.cfg.TargetRate)
	m.emitter.Emit(EventChunkReady, ChunkPayload{
		Audio:         base64.StdEncoding.EncodeToString(audio.EncodeF32LE(window)),
		SampleRate:    m.cfg.TargetRate,
		Channels:      1,
		BitsPerSample: 32,
		Timestamp:     sinceStart.Milliseconds(),
	})
	m.metrics.ChunksEmitted.Add(context.Background(), 1)
}
