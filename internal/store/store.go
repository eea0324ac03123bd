// Package store persists finalised transcript segments. The interface is
// small on purpose: the transcription worker appends, the command surface
// reads back by session.
package store

import (
	"context"
	"time"
)

// Segment is one stored transcript segment.
type Segment struct {
	// ID is assigned by the store on Add.
	ID int64 `json:"id"`

	// SessionID groups segments of one capture session.
	SessionID string `json:"session_id"`

	// Text is the recognised text.
	Text string `json:"text"`

	// Confidence is the recogniser's confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// DeviceID is the capture device the audio came from.
	DeviceID string `json:"device_id"`

	// TimestampMS is milliseconds since capture start, taken from the chunk
	// that produced this segment.
	TimestampMS int64 `json:"timestamp_ms"`

	// CreatedAt is when the segment was stored.
	CreatedAt time.Time `json:"created_at"`
}

// Store persists transcript segments.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Add persists a segment and returns it with ID and CreatedAt set.
	Add(ctx context.Context, seg Segment) (Segment, error)

	// BySession returns all segments of a session in capture order.
	BySession(ctx context.Context, sessionID string) ([]Segment, error)

	// Close releases the underlying resources.
	Close() error
}
