package testutil

import (
	"errors"
	"math"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	t.Parallel()
	AssertError(t, errors.New("boom"))
}

func TestSilence(t *testing.T) {
	t.Parallel()
	s := Silence(64)
	if len(s) != 64 {
		t.Fatalf("len = %d, want 64", len(s))
	}
	for i, v := range s {
		if v != 0 {
			t.Fatalf("sample %d = %d, want 0", i, v)
		}
	}
}

func TestSinePeak(t *testing.T) {
	t.Parallel()
	s := Sine(1000, 8000, 44100, 4410)
	var peak int16
	for _, v := range s {
		if v > peak {
			peak = v
		}
	}
	if peak < 7900 || peak > 8000 {
		t.Errorf("peak = %d, want close to 8000", peak)
	}
}

func TestChordClamps(t *testing.T) {
	t.Parallel()
	s := Chord([]float64{100, 200}, 1e6, 8000, 800)
	for _, v := range s {
		if v == math.MinInt16 || v == math.MaxInt16 {
			return
		}
	}
	t.Error("expected clamped samples for an oversized amplitude")
}

func TestNoteFrequency(t *testing.T) {
	t.Parallel()
	if got := NoteFrequency(69); got != 440 {
		t.Errorf("NoteFrequency(69) = %f, want 440", got)
	}
	if got := NoteFrequency(81); math.Abs(got-880) > 1e-9 {
		t.Errorf("NoteFrequency(81) = %f, want 880", got)
	}
}

func TestBlockFrames(t *testing.T) {
	t.Parallel()
	frames := BlockFrames(30, 3)
	for i, f := range frames {
		want := (i / 3) % 12
		if f[want] != 1 {
			t.Fatalf("frame %d: class %d not active", i, want)
		}
		var sum float64
		for _, v := range f {
			sum += v
		}
		if sum != 1 {
			t.Fatalf("frame %d: sum = %f, want 1", i, sum)
		}
	}
}

func TestUniformFrames(t *testing.T) {
	t.Parallel()
	for _, f := range UniformFrames(4, 0.25) {
		for _, v := range f {
			if v != 0.25 {
				t.Fatalf("component = %f, want 0.25", v)
			}
		}
	}
}
