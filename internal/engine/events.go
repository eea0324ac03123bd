package engine

import "github.com/earshot-dev/earshot/pkg/audio"

// Event names emitted by the capture loop.
const (
	// EventChunkReady carries a base64-encoded f32le mono chunk ready for
	// transcription.
	EventChunkReady = "audio-chunk-ready"

	// EventLevel carries periodic amplitude statistics while capturing.
	EventLevel = "audio-level"

	// EventCaptureEnded announces that the capture loop has exited, for any
	// reason.
	EventCaptureEnded = "audio-capture-ended"
)

// Reasons reported in [EndedPayload].
const (
	// ReasonStopped means the session was stopped by request.
	ReasonStopped = "stopped"

	// ReasonStreamError means the transient-failure budget was exhausted.
	ReasonStreamError = "stream-error"

	// ReasonStreamClosed means the platform stream ended on its own (device
	// unplugged, backend shut down).
	ReasonStreamClosed = "stream-closed"
)

// ChunkPayload is the wire payload of [EventChunkReady]. Audio is standard
// base64 over little-endian float32 samples; Timestamp is milliseconds since
// capture start.
type ChunkPayload struct {
	Audio         string `json:"audio"`
	SampleRate    int    `json:"sample_rate"`
	Channels      int    `json:"channels"`
	BitsPerSample int    `json:"bits_per_sample"`
	Timestamp     int64  `json:"timestamp"`
}

// LevelPayload is the wire payload of [EventLevel]. SamplesPerSec is the
// observed post-normalisation throughput since capture start.
type LevelPayload struct {
	Level         audio.Level `json:"level"`
	Capturing     bool        `json:"capturing"`
	SamplesPerSec uint32      `json:"samples_per_sec"`
	Device        string      `json:"device"`
}

// EndedPayload is the wire payload of [EventCaptureEnded].
type EndedPayload struct {
	Device string `json:"device"`
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}
