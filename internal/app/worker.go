package app

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/earshot-dev/earshot/internal/bridge"
	"github.com/earshot-dev/earshot/internal/diag"
	"github.com/earshot-dev/earshot/internal/engine"
	"github.com/earshot-dev/earshot/internal/observe"
	"github.com/earshot-dev/earshot/internal/store"
	"github.com/earshot-dev/earshot/pkg/audio"
	"github.com/earshot-dev/earshot/pkg/provider/stt"
)

// EventTranscriptFinal carries a finalised transcript segment produced by the
// in-process transcription worker.
const EventTranscriptFinal = "transcript-final"

// TranscriptFinalPayload is the wire payload of [EventTranscriptFinal].
type TranscriptFinalPayload struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Device     string  `json:"device"`
	Timestamp  int64   `json:"timestamp"`
}

// workerQueueDepth bounds the chunks waiting for transcription. Recognition
// is slower than capture; chunks beyond the queue are dropped, never queued
// unboundedly. The sliding window overlap means a dropped chunk's audio
// largely reappears in the next one.
const workerQueueDepth = 4

// transcribeTimeout bounds a single recognition call.
const transcribeTimeout = 30 * time.Second

// workerConfig holds the dependencies of a [worker].
type workerConfig struct {
	Transcriber stt.Transcriber
	Store       store.Store
	Emitter     bridge.Emitter
	Diagnostics *diag.Logger
	Metrics     *observe.Metrics
	Log         *slog.Logger
}

// worker transcribes chunk events in-process. It implements [bridge.Emitter]
// so it can sit in the engine's emitter tee: chunk events are queued for
// recognition, everything else is ignored. Emit never blocks.
type worker struct {
	transcriber stt.Transcriber
	store       store.Store
	emitter     bridge.Emitter
	diag        *diag.Logger
	metrics     *observe.Metrics
	log         *slog.Logger

	jobs chan engine.ChunkPayload

	mu        sync.Mutex
	sessionID string
	deviceID  string
	dropped   int64
}

func newWorker(cfg workerConfig) *worker {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &worker{
		transcriber: cfg.Transcriber,
		store:       cfg.Store,
		emitter:     cfg.Emitter,
		diag:        cfg.Diagnostics,
		metrics:     metrics,
		log:         log,
		jobs:        make(chan engine.ChunkPayload, workerQueueDepth),
	}
}

// BeginSession starts a new storage session for the given device. Segments
// produced from now on carry the new session ID.
func (w *worker) BeginSession(deviceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessionID = "session-" + time.Now().UTC().Format("20060102-150405")
	w.deviceID = deviceID
}

// session returns the current session and device IDs.
func (w *worker) session() (sessionID, deviceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID, w.deviceID
}

// Emit queues chunk-ready events for transcription and ignores everything
// else. When the queue is full the chunk is dropped.
func (w *worker) Emit(event string, payload any) {
	if event != engine.EventChunkReady {
		return
	}
	chunk, ok := payload.(engine.ChunkPayload)
	if !ok {
		return
	}
	select {
	case w.jobs <- chunk:
	default:
		w.mu.Lock()
		w.dropped++
		n := w.dropped
		w.mu.Unlock()
		w.log.Debug("transcription queue full, chunk dropped", "dropped_total", n)
	}
}

// Run processes queued chunks until ctx is cancelled.
func (w *worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-w.jobs:
			w.process(ctx, chunk)
		}
	}
}

// process decodes one chunk, runs recognition, stores the segment, and
// re-emits it as a transcript-final event. Failures are logged and dropped;
// the worker never stops over a single bad chunk.
func (w *worker) process(ctx context.Context, chunk engine.ChunkPayload) {
	raw, err := base64.StdEncoding.DecodeString(chunk.Audio)
	if err != nil {
		w.log.Warn("undecodable chunk audio", "err", err)
		return
	}
	samples, err := audio.DecodeF32LE(raw)
	if err != nil {
		w.log.Warn("misaligned chunk audio", "err", err)
		return
	}

	tctx, cancel := context.WithTimeout(ctx, transcribeTimeout)
	defer cancel()

	start := time.Now()
	t, err := w.transcriber.Transcribe(tctx, samples, chunk.SampleRate)
	elapsed := time.Since(start)
	w.metrics.STTDuration.Record(ctx, elapsed.Seconds())
	if err != nil {
		w.diag.TranscriptionAttempt("", 0, elapsed, false)
		w.log.Warn("transcription failed", "err", err, "samples", len(samples))
		return
	}
	w.diag.TranscriptionAttempt(t.Text, t.Confidence, elapsed, true)
	if t.Text == "" {
		return
	}

	sessionID, deviceID := w.session()

	if w.store != nil {
		seg := store.Segment{
			SessionID:   sessionID,
			Text:        t.Text,
			Confidence:  t.Confidence,
			DeviceID:    deviceID,
			TimestampMS: chunk.Timestamp,
		}
		if _, err := w.store.Add(ctx, seg); err != nil {
			w.log.Warn("store transcript segment", "err", err)
		}
	}

	w.emitter.Emit(EventTranscriptFinal, TranscriptFinalPayload{
		Text:       t.Text,
		Confidence: t.Confidence,
		Device:     deviceID,
		Timestamp:  chunk.Timestamp,
	})
}

var _ bridge.Emitter = (*worker)(nil)
