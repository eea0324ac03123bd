package engine

import "math"

// slidingBuffer accumulates normalised mono samples for the transcription
// window. It keeps at most 2× the window; on overflow the oldest samples are
// evicted down to exactly one window. Not safe for concurrent use — it is
// owned by the capture loop goroutine.
type slidingBuffer struct {
	samples []float32
	window  int
}

func newSlidingBuffer(window int) *slidingBuffer {
	return &slidingBuffer{window: window}
}

// Append adds samples and evicts from the front if the buffer exceeds twice
// the window. Eviction copies into a fresh backing array so the old one can
// be collected.
func (b *slidingBuffer) Append(samples []float32) {
	b.samples = append(b.samples, samples...)
	if len(b.samples) > b.window*2 {
		kept := make([]float32, b.window)
		copy(kept, b.samples[len(b.samples)-b.window:])
		b.samples = kept
	}
}

// Len returns the number of buffered samples.
func (b *slidingBuffer) Len() int {
	return len(b.samples)
}

// RMS computes the root mean square over the whole buffer.
func (b *slidingBuffer) RMS() float64 {
	if len(b.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range b.samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(b.samples)))
}

// Window returns a copy of the oldest window-or-fewer samples, the portion
// emitted as a transcription chunk.
func (b *slidingBuffer) Window() []float32 {
	n := min(len(b.samples), b.window)
	out := make([]float32, n)
	copy(out, b.samples[:n])
	return out
}

// Shift drops the oldest half window, producing 50% overlap between
// consecutive chunks. A buffer shorter than half a window is left as is.
func (b *slidingBuffer) Shift() {
	half := b.window / 2
	if len(b.samples) <= half {
		return
	}
	kept := make([]float32, len(b.samples)-half)
	copy(kept, b.samples[half:])
	b.samples = kept
}
