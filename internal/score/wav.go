package score

import (
	"fmt"
	"math"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/chroma"
)

// BuildFromWAV extracts a reference from a recording of the piece. Frames
// are taken every hop samples with the same extractor the live pipeline
// uses, so a performance is compared against features of identical shape.
// pageEnds gives the time in seconds at which each page ends.
func BuildFromWAV(name string, pcm *audio.PCM, s chroma.Settings, hop int, pageEnds []float64) (*Reference, error) {
	if pcm.SampleRate != s.SampleRate {
		return nil, fmt.Errorf("score: recording is %d Hz, extractor expects %d Hz", pcm.SampleRate, s.SampleRate)
	}
	if hop <= 0 || hop > s.WindowSize {
		return nil, fmt.Errorf("score: hop %d must be in (0, %d]", hop, s.WindowSize)
	}
	if len(pcm.Samples) < s.WindowSize {
		return nil, fmt.Errorf("score: recording is shorter than one analysis window")
	}

	ex, err := chroma.NewExtractor(s)
	if err != nil {
		return nil, err
	}

	n := 1 + (len(pcm.Samples)-s.WindowSize)/hop
	frames := make([]chroma.Vector, n)
	for i := range frames {
		frames[i] = ex.Extract(pcm.Samples[i*hop : i*hop+s.WindowSize])
	}

	boundaries := make([]int, len(pageEnds))
	for i, sec := range pageEnds {
		b := int(math.Floor(sec * float64(s.SampleRate) / float64(hop)))
		boundaries[i] = max(0, min(b, n-1))
	}
	return New(name, frames, boundaries)
}
