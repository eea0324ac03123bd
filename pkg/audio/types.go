// Package audio holds the sample-domain types and pure processing functions
// shared by the capture backends and the capture engine: PCM decoding,
// mono downmix, fixed-ratio resampling, and level metering.
//
// Everything in this package is allocation-bounded and free of platform
// dependencies; the platform-specific parts live under audio/capture.
package audio

// SampleFormat identifies the bit layout of raw interleaved PCM samples as
// delivered by a capture backend.
type SampleFormat int

const (
	// FormatS16 is 16-bit signed little-endian integer PCM.
	FormatS16 SampleFormat = iota

	// FormatS32 is 32-bit signed little-endian integer PCM.
	FormatS32

	// FormatF32 is 32-bit little-endian IEEE-754 float PCM in [-1, 1].
	FormatF32
)

// BytesPerSample returns the size of a single sample in bytes.
func (f SampleFormat) BytesPerSample() int {
	if f == FormatS16 {
		return 2
	}
	return 4
}

// BitsPerSample returns the size of a single sample in bits.
func (f SampleFormat) BitsPerSample() int {
	return f.BytesPerSample() * 8
}

// String returns the conventional short name of the format.
func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "s16le"
	case FormatS32:
		return "s32le"
	case FormatF32:
		return "f32le"
	default:
		return "unknown"
	}
}

// DeviceType classifies which direction an audio endpoint faces.
type DeviceType string

const (
	// DeviceRender is an output endpoint (speakers, headphones). Render
	// devices are captured via loopback — listening to what is being played.
	DeviceRender DeviceType = "render"

	// DeviceCapture is a true input endpoint (microphone, or a
	// loopback-capable input such as "Stereo Mix").
	DeviceCapture DeviceType = "capture"
)

// LoopbackMethod records how a device achieves loopback capture. It exists
// for diagnostics and UI explanation, not for control flow inside the
// backends.
type LoopbackMethod string

const (
	// MethodRenderLoopback taps a render device's output stream directly
	// (WASAPI loopback on Windows).
	MethodRenderLoopback LoopbackMethod = "render-loopback"

	// MethodStereoMix uses a driver-provided mix-capture input device.
	MethodStereoMix LoopbackMethod = "stereo-mix"

	// MethodCaptureDevice is a plain input device (microphone); no loopback
	// is involved.
	MethodCaptureDevice LoopbackMethod = "capture-device"
)

// Device describes one capturable audio endpoint.
//
// Devices are constructed fresh on every enumeration call and are never
// mutated; they carry no identity beyond the opaque ID, which is stable
// within a platform session and is the key for lookup.
type Device struct {
	// ID is a platform-stable opaque identifier, unique within a session.
	ID string `json:"id"`

	// Name is a human-readable label, possibly annotated (e.g.
	// "Speakers (Default Output)").
	Name string `json:"name"`

	// IsDefault reports whether this is the platform default device for its
	// direction.
	IsDefault bool `json:"is_default"`

	// SampleRate and Channels describe the device's native format. They are
	// informational; the format actually negotiated is reported on the
	// capture stream at open time.
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`

	// DeviceType says whether this is a render or capture endpoint.
	DeviceType DeviceType `json:"device_type"`

	// LoopbackMethod records how this device achieves loopback.
	LoopbackMethod LoopbackMethod `json:"loopback_method"`
}

// Level holds the amplitude statistics of a sample buffer as computed by
// [Measure]. It is serialised as-is into audio-level events.
type Level struct {
	RMS  float32 `json:"rms"`
	DB   float32 `json:"db"`
	Peak float32 `json:"peak"`
	Min  float32 `json:"min"`
	Max  float32 `json:"max"`
}
