package audio

import "math"

// dbFloor is reported for silent buffers, where the true level would be -inf.
const dbFloor = -60.0

// Measure computes the amplitude statistics of a sample buffer. It is used
// both for UI level meters and, via the RMS field, as the transcription
// silence gate (same formula, different threshold).
//
// DB is 20·log10(RMS); a buffer with zero RMS reports the -60 dB floor
// instead of -inf. An empty buffer measures as silence.
func Measure(samples []float32) Level {
	if len(samples) == 0 {
		return Level{DB: dbFloor}
	}

	var sumSquares float64
	var peak float32
	min, max := samples[0], samples[0]
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
		if a := abs32(s); a > peak {
			peak = a
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}

	rms := float32(math.Sqrt(sumSquares / float64(len(samples))))
	db := float32(dbFloor)
	if rms > 0 {
		db = float32(20 * math.Log10(float64(rms)))
	}

	return Level{RMS: rms, DB: db, Peak: peak, Min: min, Max: max}
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
