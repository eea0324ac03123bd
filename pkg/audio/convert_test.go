package audio_test

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/earshot-dev/earshot/pkg/audio"
)

// s16Bytes converts int16 samples to little-endian bytes.
func s16Bytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// sineF32 generates amplitude·sin(2πf·t) at the given rate.
func sineF32(freq float64, amplitude float32, rate, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / float64(rate)
		out[i] = amplitude * float32(math.Sin(2*math.Pi*freq*t))
	}
	return out
}

func TestConvertS16RoundTripRMS(t *testing.T) {
	const n = 16000
	want := sineF32(440, 0.5, 16000, n)

	pcm := make([]int16, n)
	for i, s := range want {
		pcm[i] = int16(s * 32767)
	}

	got, err := audio.Convert(s16Bytes(pcm), audio.FormatS16, 1)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(got) != n {
		t.Fatalf("expected %d samples, got %d", n, len(got))
	}

	wantRMS := audio.Measure(want).RMS
	gotRMS := audio.Measure(got).RMS
	if diff := math.Abs(float64(wantRMS - gotRMS)); diff > 0.01 {
		t.Errorf("RMS mismatch after 16-bit round trip: want %f, got %f (diff %f)", wantRMS, gotRMS, diff)
	}
}

func TestConvertStereoDownmixCancels(t *testing.T) {
	// Channel A constant +1.0, channel B constant -1.0: averaging must
	// produce exactly zero mono samples.
	const frames = 64
	raw := make([]byte, frames*8)
	for i := range frames {
		binary.LittleEndian.PutUint32(raw[i*8:], math.Float32bits(1.0))
		binary.LittleEndian.PutUint32(raw[i*8+4:], math.Float32bits(-1.0))
	}

	got, err := audio.Convert(raw, audio.FormatF32, 2)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(got) != frames {
		t.Fatalf("expected %d frames, got %d", frames, len(got))
	}
	for i, s := range got {
		if s != 0 {
			t.Fatalf("frame %d: expected 0, got %f", i, s)
		}
	}
}

func TestConvertS32Scaling(t *testing.T) {
	raw := make([]byte, 8)
	maxSample := int32(math.MaxInt32)
	minSample := int32(math.MinInt32)
	binary.LittleEndian.PutUint32(raw[0:], uint32(maxSample))
	binary.LittleEndian.PutUint32(raw[4:], uint32(minSample))

	got, err := audio.Convert(raw, audio.FormatS32, 1)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if got[0] < 0.999 || got[0] > 1.0 {
		t.Errorf("max int32 should map near +1.0, got %f", got[0])
	}
	if got[1] != -1.0 {
		t.Errorf("min int32 should map to -1.0, got %f", got[1])
	}
}

func TestConvertF32Passthrough(t *testing.T) {
	want := []float32{0.25, -0.5, 1.0, -1.0}
	got, err := audio.Convert(audio.EncodeF32LE(want), audio.FormatF32, 1)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}
}

func TestConvertRejectsMisalignedInput(t *testing.T) {
	// 5 bytes cannot hold a whole s16 stereo frame (4 bytes per frame).
	if _, err := audio.Convert(make([]byte, 5), audio.FormatS16, 2); err == nil {
		t.Fatal("expected error for misaligned input")
	}
	if _, err := audio.Convert(make([]byte, 8), audio.FormatS16, 0); err == nil {
		t.Fatal("expected error for zero channels")
	}
}

func TestEncodeDecodeF32LE(t *testing.T) {
	want := sineF32(100, 0.3, 8000, 123)
	got, err := audio.DecodeF32LE(audio.EncodeF32LE(want))
	if err != nil {
		t.Fatalf("DecodeF32LE: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}

	if _, err := audio.DecodeF32LE(make([]byte, 6)); err == nil {
		t.Fatal("expected error for misaligned byte length")
	}
}

func TestProcessorSkipsResampleAtTargetRate(t *testing.T) {
	p := &audio.Processor{TargetRate: 16000}
	in := sineF32(440, 0.1, 16000, 1600)

	got, err := p.Process(audio.EncodeF32LE(in), audio.FormatF32, 1, 16000)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("identity path changed length: got %d, want %d", len(got), len(in))
	}
}

func TestProcessorResamples48kTo16k(t *testing.T) {
	p := &audio.Processor{TargetRate: 16000}
	in := sineF32(440, 0.2, 48000, 4800) // 100 ms

	got, err := p.Process(audio.EncodeF32LE(in), audio.FormatF32, 1, 48000)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if want := 1600; len(got) != want {
		t.Fatalf("expected %d output samples, got %d", want, len(got))
	}
}

func TestProcessorFallsBackOnShortChunk(t *testing.T) {
	p := &audio.Processor{TargetRate: 16000}
	in := []float32{0.1, 0.2, 0.3} // far below the resampler's window

	got, err := p.Process(audio.EncodeF32LE(in), audio.FormatF32, 1, 48000)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(got) != len(in) {
		t.Fatalf("fallback should pass the chunk through unresampled: got %d samples, want %d", len(got), len(in))
	}
}
