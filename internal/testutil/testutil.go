// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic audio blocks and reference tables so
// the extractor, tracker and pipeline tests exercise the same inputs.
package testutil

import (
	"math"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Silence returns n zero samples.
func Silence(n int) []int16 {
	return make([]int16, n)
}

// Sine returns n samples of a sine wave at freq Hz with the given peak
// amplitude.
func Sine(freq, amplitude float64, sampleRate, n int) []int16 {
	return Chord([]float64{freq}, amplitude, sampleRate, n)
}

// Chord returns n samples of equally weighted sine waves whose summed peak
// does not exceed amplitude.
func Chord(freqs []float64, amplitude float64, sampleRate, n int) []int16 {
	out := make([]int16, n)
	if len(freqs) == 0 {
		return out
	}
	per := amplitude / float64(len(freqs))
	for i := range out {
		var v float64
		for _, f := range freqs {
			v += per * math.Sin(2*math.Pi*f*float64(i)/float64(sampleRate))
		}
		out[i] = clamp16(v)
	}
	return out
}

// Constant returns n samples all equal to v.
func Constant(v int16, n int) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func clamp16(v float64) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(math.Round(v))
}

// NoteFrequency returns the equal-tempered frequency of a MIDI note.
func NoteFrequency(note int) float64 {
	return 440 * math.Pow(2, float64(note-69)/12)
}

// BlockFrames returns a reference table of length n in which each run of
// hold frames carries a single active pitch class, cycling through all
// twelve classes. Consecutive runs never share a class.
func BlockFrames(n, hold int) [][12]float64 {
	if hold < 1 {
		hold = 1
	}
	frames := make([][12]float64, n)
	for i := range frames {
		frames[i][(i/hold)%12] = 1
	}
	return frames
}

// UniformFrames returns n frames with every component set to v.
func UniformFrames(n int, v float64) [][12]float64 {
	frames := make([][12]float64, n)
	for i := range frames {
		for k := range frames[i] {
			frames[i][k] = v
		}
	}
	return frames
}

// PairFrames returns a reference table in which each run of hold frames
// carries two active pitch classes. The first 66 runs all use distinct
// pairs, so stretches of the table are only similar to themselves.
func PairFrames(n, hold int) [][12]float64 {
	if hold < 1 {
		hold = 1
	}
	var pairs [][2]int
	for a := 0; a < 12; a++ {
		for b := a + 1; b < 12; b++ {
			pairs = append(pairs, [2]int{a, b})
		}
	}
	frames := make([][12]float64, n)
	for i := range frames {
		p := pairs[(i/hold)%len(pairs)]
		frames[i][p[0]] = 1
		frames[i][p[1]] = 1
	}
	return frames
}
