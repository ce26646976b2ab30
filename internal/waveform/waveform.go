// Package waveform derives a fixed-length amplitude trace from a content
// seed. The trace is purely decorative but must be stable: the same seed
// renders the same shape in every context, on every platform, forever.
package waveform

import "unicode/utf16"

// DefaultLength is the number of samples rendered per message bubble.
const DefaultLength = 50

// Generate maps seed to a deterministic sequence of amplitudes in [0, 1].
// An empty seed yields an all-zero trace of the requested length.
func Generate(seed string, length int) []float64 {
	if length < 0 {
		length = 0
	}
	data := make([]float64, length)
	if seed == "" {
		return data
	}

	draw := mulberry32(uint32(fold32(seed)))

	// Exponential smoothing keeps adjacent samples visually continuous.
	last := 0.5
	for i := range data {
		last = last*0.7 + draw()*0.3
		data[i] = last
	}
	return data
}

// fold32 collapses the seed into a 32-bit integer with a rolling
// multiply-add hash (h*31 + unit with wraparound). It folds UTF-16 code
// units, surrogate halves included, so the trace matches what a JavaScript
// renderer derives from the same string.
func fold32(seed string) int32 {
	var h int32
	for _, unit := range utf16.Encode([]rune(seed)) {
		h = (h << 5) - h + int32(unit)
	}
	return h
}

// mulberry32 is a tiny deterministic PRNG; successive calls return values
// in [0, 1).
func mulberry32(a uint32) func() float64 {
	return func() float64 {
		a += 0x6D2B79F5
		t := (a ^ (a >> 15)) * (a | 1)
		t = (t + (t^(t>>7))*(t|61)) ^ t
		return float64(t^(t>>14)) / 4294967296
	}
}
