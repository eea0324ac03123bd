// Package stt defines the Transcriber interface for speech-to-text backends.
//
// The capture pipeline deals in normalised mono float32 audio at a fixed
// sample rate, so the interface is deliberately one-shot: hand over a
// finished window of samples, get text back. Streaming recognisers can be
// adapted by buffering, but the pipeline never requires it.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Transcript is one recognition result.
type Transcript struct {
	// Text is the recognised text, trimmed.
	Text string `json:"text"`

	// Confidence is the recogniser's confidence in [0, 1], or 0 when the
	// backend does not report one.
	Confidence float64 `json:"confidence"`
}

// Transcriber converts a window of mono float32 samples into text.
type Transcriber interface {
	// Transcribe runs recognition over the samples at the given rate. An
	// empty Transcript with a nil error means the audio contained no speech.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Transcript, error)
}
