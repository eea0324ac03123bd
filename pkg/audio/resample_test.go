package audio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/earshot-dev/earshot/pkg/audio"
)

func TestResampleIdentity(t *testing.T) {
	for _, rate := range []int{8000, 16000, 44100, 48000} {
		in := sineF32(440, 0.5, rate, 256)
		got, err := audio.Resample(in, rate, rate)
		if err != nil {
			t.Fatalf("rate %d: %v", rate, err)
		}
		if len(got) != len(in) {
			t.Fatalf("rate %d: length changed from %d to %d", rate, len(in), len(got))
		}
		for i := range in {
			if got[i] != in[i] {
				t.Fatalf("rate %d: sample %d changed from %f to %f", rate, i, in[i], got[i])
			}
		}
	}
}

func TestResampleOutputLength(t *testing.T) {
	tests := []struct {
		src, dst, n, want int
	}{
		{48000, 16000, 4800, 1600},
		{44100, 16000, 4410, 1600},
		{16000, 48000, 1600, 4800},
		{32000, 16000, 640, 320},
	}
	for _, tc := range tests {
		got, err := audio.Resample(make([]float32, tc.n), tc.src, tc.dst)
		if err != nil {
			t.Fatalf("%d->%d: %v", tc.src, tc.dst, err)
		}
		if len(got) != tc.want {
			t.Errorf("%d->%d with %d samples: got %d output samples, want %d",
				tc.src, tc.dst, tc.n, len(got), tc.want)
		}
	}
}

func TestResamplePreservesToneEnergy(t *testing.T) {
	// A 440 Hz tone is far below Nyquist at both rates, so downsampling
	// should preserve its RMS closely.
	in := sineF32(440, 0.5, 48000, 9600) // 200 ms
	out, err := audio.Resample(in, 48000, 16000)
	if err != nil {
		t.Fatalf("Resample: %v", err)
	}

	inRMS := audio.Measure(in).RMS
	outRMS := audio.Measure(out).RMS
	if diff := math.Abs(float64(inRMS - outRMS)); diff > 0.01 {
		t.Errorf("tone energy not preserved: in RMS %f, out RMS %f", inRMS, outRMS)
	}
}

func TestResampleChunkTooShort(t *testing.T) {
	_, err := audio.Resample(make([]float32, 8), 48000, 16000)
	if !errors.Is(err, audio.ErrChunkTooShort) {
		t.Fatalf("expected ErrChunkTooShort, got %v", err)
	}
}

func TestResampleInvalidRates(t *testing.T) {
	if _, err := audio.Resample(make([]float32, 128), 0, 16000); err == nil {
		t.Fatal("expected error for zero source rate")
	}
	if _, err := audio.Resample(make([]float32, 128), 48000, -1); err == nil {
		t.Fatal("expected error for negative target rate")
	}
}
