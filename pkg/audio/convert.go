package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// Scaling constants for integer PCM. 16-bit samples divide by 32768, 32-bit
// samples by 2^31, so full-scale input maps to ±1.0.
const (
	s16Scale = 1.0 / 32768.0
	s32Scale = 1.0 / 2147483648.0
)

// Convert decodes raw interleaved PCM bytes into mono float32 samples at the
// source rate.
//
// 16-bit and 32-bit integer samples are scaled by their maximum magnitude;
// 32-bit float samples pass through unchanged (assumed already in [-1, 1]).
// Multi-channel input is downmixed by averaging the channels of each frame,
// which preserves signal energy better than selecting a single channel.
//
// The byte length must be a multiple of the frame size
// (BytesPerSample × channels); misaligned input is rejected with an error so
// a corrupted delivery never silently shifts the sample phase.
func Convert(raw []byte, format SampleFormat, channels int) ([]float32, error) {
	if channels <= 0 {
		return nil, fmt.Errorf("audio: invalid channel count %d", channels)
	}
	frameSize := format.BytesPerSample() * channels
	if len(raw)%frameSize != 0 {
		return nil, fmt.Errorf("audio: %d bytes not aligned to frame size %d (%s, %d ch)",
			len(raw), frameSize, format, channels)
	}

	frames := len(raw) / frameSize
	out := make([]float32, frames)

	for i := range frames {
		var sum float32
		base := i * frameSize
		for c := range channels {
			off := base + c*format.BytesPerSample()
			sum += decodeSample(raw[off:], format)
		}
		out[i] = sum / float32(channels)
	}
	return out, nil
}

// decodeSample reads one sample starting at b[0] and normalises it to [-1, 1].
func decodeSample(b []byte, format SampleFormat) float32 {
	switch format {
	case FormatS16:
		return float32(int16(binary.LittleEndian.Uint16(b))) * s16Scale
	case FormatS32:
		return float32(int32(binary.LittleEndian.Uint32(b))) * s32Scale
	default:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
}

// EncodeF32LE serialises samples as little-endian float32 bytes, the wire
// layout carried inside audio-chunk-ready events.
func EncodeF32LE(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

// DecodeF32LE is the inverse of [EncodeF32LE]. The byte length must be a
// multiple of four.
func DecodeF32LE(raw []byte) ([]float32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("audio: %d bytes not aligned to float32 samples", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out, nil
}

// Processor converts raw capture deliveries into mono samples at a fixed
// target rate. Create one per stream; it is not designed for shared use
// across goroutines.
//
// When resampling a chunk fails (e.g. the chunk is too short for the filter
// window) the source-rate samples are passed through instead of being
// dropped — continuity is preferred over correctness in that rare case, and
// the first occurrence is logged.
type Processor struct {
	// TargetRate is the output sample rate in Hz.
	TargetRate int

	warnedResample sync.Once
}

// Process decodes, downmixes, and resamples one raw chunk. If the source
// rate already matches the target rate, resampling is skipped entirely.
func (p *Processor) Process(raw []byte, format SampleFormat, channels, sourceRate int) ([]float32, error) {
	mono, err := Convert(raw, format, channels)
	if err != nil {
		return nil, err
	}
	if sourceRate == p.TargetRate {
		return mono, nil
	}

	out, err := Resample(mono, sourceRate, p.TargetRate)
	if err != nil {
		p.warnedResample.Do(func() {
			slog.Warn("audio: resample failed, passing source-rate samples through",
				"source_rate", sourceRate,
				"target_rate", p.TargetRate,
				"samples", len(mono),
				"err", err,
			)
		})
		return mono, nil
	}
	return out, nil
}
