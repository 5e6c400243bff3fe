// Package chroma turns fixed-length windows of 16-bit PCM audio into
// 12-component pitch-class profiles.
package chroma

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/page.turner/internal/config"
)

// NumChroma is the number of pitch classes in a Vector.
const NumChroma = 12

// NoteNames labels the Vector components, starting at C.
var NoteNames = [NumChroma]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// normalizeFloor is the largest component below which a profile is left
// unnormalized.
const normalizeFloor = 1e-3

// Vector is a pitch-class profile. Component 0 is C.
type Vector [NumChroma]float64

// Norm returns the Euclidean length of v. Norm and Dot loop over the
// array directly so they stay on the stack in the per-frame path.
func (v *Vector) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Dot returns the inner product of v and o.
func (v *Vector) Dot(o *Vector) float64 {
	var sum float64
	for i := range v {
		sum += v[i] * o[i]
	}
	return sum
}

// Dominant returns the index of the largest component, or -1 for an
// all-zero vector.
func (v Vector) Dominant() int {
	idx := floats.MaxIdx(v[:])
	if v[idx] <= 0 {
		return -1
	}
	return idx
}

// IsZero reports whether every component is zero.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// Settings holds the extraction constants. They are fixed for the
// lifetime of an Extractor.
type Settings struct {
	WindowSize int
	SampleRate int
	NoiseFloor float64
	MinBin     int
}

// DefaultSettings returns the settings the firmware ships with.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.EmptyTuningConfig())
}

// SettingsFromConfig extracts the feature settings from a tuning config.
func SettingsFromConfig(cfg *config.TuningConfig) Settings {
	return Settings{
		WindowSize: cfg.GetWindowSize(),
		SampleRate: cfg.GetSampleRate(),
		NoiseFloor: cfg.GetNoiseFloor(),
		MinBin:     cfg.GetMinBin(),
	}
}

// BinFrequency returns the centre frequency of transform bin i.
func (s Settings) BinFrequency(i int) float64 {
	return float64(i) * float64(s.SampleRate) / float64(s.WindowSize)
}

// Extractor computes chroma vectors. All working memory is allocated up
// front so Extract does not allocate. An Extractor is not safe for
// concurrent use.
type Extractor struct {
	settings Settings
	fft      *fourier.FFT

	window []float64
	frame  []float64
	coeffs []complex128

	// bins[i] is the pitch class of transform bin i, or -1 for bins that
	// are not mapped.
	bins []int
}

// NewExtractor precomputes the analysis window, the transform plan and the
// bin to pitch-class table.
func NewExtractor(s Settings) (*Extractor, error) {
	n := s.WindowSize
	if n < 16 || n&(n-1) != 0 {
		return nil, fmt.Errorf("window size must be a power of two >= 16, got %d", n)
	}
	if s.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", s.SampleRate)
	}
	if s.MinBin < 1 || s.MinBin >= n/2 {
		return nil, fmt.Errorf("min bin must be in [1, %d), got %d", n/2, s.MinBin)
	}

	e := &Extractor{
		settings: s,
		fft:      fourier.NewFFT(n),
		window:   HannWindow(n),
		frame:    make([]float64, n),
		coeffs:   make([]complex128, n/2+1),
		bins:     make([]int, n/2),
	}
	for i := range e.bins {
		e.bins[i] = -1
		if i >= s.MinBin {
			e.bins[i] = PitchClass(s.BinFrequency(i))
		}
	}
	return e, nil
}

// Settings returns the constants the extractor was built with.
func (e *Extractor) Settings() Settings { return e.settings }

// Extract returns the normalized chroma vector of one analysis window.
// samples must hold exactly WindowSize samples.
func (e *Extractor) Extract(samples []int16) Vector {
	if len(samples) != len(e.frame) {
		panic(fmt.Sprintf("chroma: got %d samples, want %d", len(samples), len(e.frame)))
	}
	for i, s := range samples {
		e.frame[i] = float64(s) * e.window[i]
	}
	e.fft.Coefficients(e.coeffs, e.frame)

	var out Vector
	for i, pc := range e.bins {
		if pc < 0 {
			continue
		}
		c := e.coeffs[i]
		mag := math.Hypot(real(c), imag(c))
		if mag < e.settings.NoiseFloor {
			continue
		}
		out[pc] += mag
	}
	return Normalize(out)
}

// Normalize scales v so its largest component is 1. Vectors whose largest
// component is at or below the normalization floor are returned unchanged.
func Normalize(v Vector) Vector {
	maxVal := v[0]
	for _, x := range v[1:] {
		maxVal = math.Max(maxVal, x)
	}
	if maxVal <= normalizeFloor {
		return v
	}
	scale := 1 / maxVal
	for i := range v {
		v[i] *= scale
	}
	return v
}

// HannWindow returns the symmetric Hann window of length n.
func HannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// PitchClass maps a frequency in Hz to its nearest equal-tempered pitch
// class, with C = 0 and A4 = 440 Hz.
func PitchClass(freq float64) int {
	if freq <= 0 {
		return -1
	}
	note := int(math.Round(69 + 12*math.Log2(freq/440)))
	pc := note % NumChroma
	if pc < 0 {
		pc += NumChroma
	}
	return pc
}

// Loudness returns the mean absolute amplitude of samples. This is the
// level compared against the start threshold.
func Loudness(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += math.Abs(float64(s))
	}
	return sum / float64(len(samples))
}

// RMS returns the root mean square amplitude of samples scaled to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		f := float64(s) / math.MaxInt16
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
