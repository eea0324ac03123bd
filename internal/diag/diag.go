// Package diag writes an append-only, structured diagnostics trace of the
// audio pipeline to a dedicated file, separate from application logs. The
// trace is meant to be attached to bug reports: every entry carries a
// category and a message plus optional structured data.
//
// All writes are best-effort. A failing or unconfigured sink never disturbs
// the capture path.
package diag

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/earshot-dev/earshot/pkg/audio"
)

// Logger appends categorised diagnostic entries to a single sink. The zero
// value discards everything; construct with [Open] or [New]. Safe for
// concurrent use.
type Logger struct {
	mu   sync.Mutex
	slog *slog.Logger
}

// Open truncates and opens the diagnostics file at path, creating parent
// directories as needed. The session header is written immediately.
func Open(path string) (*Logger, func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("diag: create log dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("diag: open log file: %w", err)
	}
	l := New(f)
	l.Event("SESSION", "diagnostics started", "path", path)
	return l, f.Close, nil
}

// New wraps an arbitrary writer. Entries are JSON lines via slog.
func New(w io.Writer) *Logger {
	return &Logger{
		slog: slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})),
	}
}

// Event appends one entry. args are alternating key/value pairs as in slog.
// A nil or zero-value Logger is a no-op.
func (l *Logger) Event(category, message string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slog == nil {
		return
	}
	all := make([]any, 0, len(args)+2)
	all = append(all, "category", category)
	all = append(all, args...)
	l.slog.Info(message, all...)
}

// Error appends an error entry.
func (l *Logger) Error(category, message string, err error, args ...any) {
	if err != nil {
		args = append(args, "err", err.Error())
	}
	l.Event(category, message, args...)
}

// BufferAnalysis records amplitude statistics of a sample buffer at a named
// pipeline stage, assuming the engine's 16 kHz mono domain for the duration.
func (l *Logger) BufferAnalysis(stage string, samples []float32, sampleRate int) {
	if l == nil {
		return
	}
	if len(samples) == 0 {
		l.Event("BUFFER", stage, "samples", 0)
		return
	}
	level := audio.Measure(samples)
	durationMS := 0
	if sampleRate > 0 {
		durationMS = len(samples) * 1000 / sampleRate
	}
	l.Event("BUFFER", stage,
		"samples", len(samples),
		"rms", level.RMS,
		"db", level.DB,
		"max_amplitude", level.Peak,
		"min", level.Min,
		"max", level.Max,
		"duration_ms", durationMS,
	)
}

// DeviceSelected records the device a capture session opened.
func (l *Logger) DeviceSelected(dev audio.Device) {
	if l == nil {
		return
	}
	l.Event("DEVICE", "selected",
		"id", dev.ID,
		"name", dev.Name,
		"type", string(dev.DeviceType),
		"loopback_method", string(dev.LoopbackMethod),
		"sample_rate", dev.SampleRate,
		"channels", dev.Channels,
	)
}

// TranscriptionAttempt records the outcome of a transcription test.
func (l *Logger) TranscriptionAttempt(text string, confidence float64, elapsed time.Duration, success bool) {
	if l == nil {
		return
	}
	category := "TRANSCRIPTION_SUCCESS"
	if !success {
		category = "TRANSCRIPTION_FAILED"
	}
	l.Event(category, text,
		"confidence", confidence,
		"duration_ms", elapsed.Milliseconds(),
		"length", len(text),
	)
}
