package score

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/page.turner/internal/chroma"
)

// ViolinTemplate is the average pitch-class profile of a bowed violin
// note relative to its fundamental, measured from a live recording. It
// carries the fifth, the thirds and the vibrato spread into the
// neighbouring semitones.
var ViolinTemplate = chroma.Vector{1.0000, 0.2133, 0.0314, 0.0371, 0.0818, 0.0493, 0.0453, 0.1767, 0.0539, 0.0320, 0.0383, 0.2110}

const (
	attackFrames   = 5
	decayFrames    = 6
	noiseLevel     = 0.02
	restNoiseLevel = 0.005
	silentEnergy   = 0.01
)

// ErrNoNotes is returned for a MIDI file without any notes on the
// selected tracks.
var ErrNoNotes = errors.New("score: midi file contains no notes")

// MIDIOptions controls how a MIDI file is rendered to reference frames.
type MIDIOptions struct {
	// BPM overrides the tempo in the file. Zero uses the first tempo event,
	// or 120 when the file has none.
	BPM float64
	// SampleRate and HopSize fix the frame rate of the reference. It must
	// match the live pipeline.
	SampleRate int
	HopSize    int
	// Track selects a single track. A negative value renders all tracks.
	Track int
	// PageEndMeasures lists the last measure (1-based) printed on each
	// page turn.
	PageEndMeasures []int
	// BeatsPerMeasure overrides the time signature in the file. Zero uses
	// the first meter event, or 4 when the file has none.
	BeatsPerMeasure float64
	// Template is the pitch-class profile of one note with its
	// fundamental at C. The zero value selects ViolinTemplate.
	Template chroma.Vector
	// Seed makes the frame-to-frame variation reproducible.
	Seed uint64
}

type noteSpan struct {
	key        uint8
	start, end float64 // in quarter notes
}

// BuildFromMIDI renders the notes of a standard MIDI file into a
// reference: each note contributes its template, rotated to the note's
// pitch class and shaped by an attack and decay envelope. Rests are
// filled with a low noise floor so no frame is all zero, and every frame
// is L2-normalized.
func BuildFromMIDI(name string, r io.Reader, opts MIDIOptions) (*Reference, error) {
	if opts.SampleRate <= 0 || opts.HopSize <= 0 {
		return nil, fmt.Errorf("score: sample rate and hop size must be positive")
	}

	s, err := smf.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("score: read midi: %w", err)
	}
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks == 0 {
		return nil, fmt.Errorf("score: midi file must use metric time, got %v", s.TimeFormat)
	}

	spans, fileBPM, fileBeats := collectNotes(s, float64(ticks), opts.Track)
	if len(spans) == 0 {
		return nil, ErrNoNotes
	}

	bpm := opts.BPM
	if bpm <= 0 {
		bpm = fileBPM
	}
	beatsPerMeasure := opts.BeatsPerMeasure
	if beatsPerMeasure <= 0 {
		beatsPerMeasure = fileBeats
	}
	template := opts.Template
	if template.IsZero() {
		template = ViolinTemplate
	}

	framesPerBeat := (60 / bpm) * (float64(opts.SampleRate) / float64(opts.HopSize))

	var totalBeats float64
	for _, n := range spans {
		totalBeats = max(totalBeats, n.end)
	}
	total := int(totalBeats*framesPerBeat) + 1

	frames := make([]chroma.Vector, total)
	for _, n := range spans {
		start := clampInt(int(n.start*framesPerBeat), 0, total-1)
		end := clampInt(int(n.end*framesPerBeat), start+1, total)
		env := envelope(end - start)
		rotated := rotate(template, int(n.key)%chroma.NumChroma)
		for i, a := range env {
			for k := range rotated {
				frames[start+i][k] += rotated[k] * a
			}
		}
	}

	src := rand.NewPCG(opts.Seed, 0x5eed)
	noise := distuv.Normal{Mu: 0, Sigma: noiseLevel, Src: src}
	rest := distuv.Normal{Mu: 0, Sigma: restNoiseLevel, Src: src}
	for i := range frames {
		f := frames[i][:]
		for k := range f {
			f[k] += math.Abs(noise.Rand())
		}
		if floats.Norm(f, 2) < silentEnergy {
			for k := range f {
				f[k] = math.Abs(rest.Rand())
			}
		}
		norm := floats.Norm(f, 2)
		floats.Scale(1/(norm+1e-9), f)
	}

	boundaries := make([]int, 0, len(opts.PageEndMeasures))
	for _, m := range opts.PageEndMeasures {
		if m < 1 {
			return nil, fmt.Errorf("score: page end measure %d must be at least 1", m)
		}
		b := int(float64(m) * beatsPerMeasure * framesPerBeat)
		boundaries = append(boundaries, min(b, total-1))
	}

	return New(name, frames, boundaries)
}

// collectNotes pairs note starts and ends into spans measured in quarter
// notes. It also reports the first tempo and meter found.
func collectNotes(s *smf.SMF, ticksPerQuarter float64, track int) ([]noteSpan, float64, float64) {
	bpm, beats := 120.0, 4.0
	seenTempo, seenMeter := false, false
	var spans []noteSpan

	for ti, tr := range s.Tracks {
		var (
			tick uint64
			open = map[[2]uint8][]float64{}
		)
		for _, ev := range tr {
			tick += uint64(ev.Delta)
			at := float64(tick) / ticksPerQuarter

			var tempo float64
			if !seenTempo && ev.Message.GetMetaTempo(&tempo) {
				bpm, seenTempo = tempo, true
			}
			var num, denom uint8
			if !seenMeter && ev.Message.GetMetaMeter(&num, &denom) && denom > 0 {
				beats, seenMeter = float64(num)*4/float64(denom), true
			}

			if track >= 0 && ti != track {
				continue
			}
			msg := midi.Message(ev.Message)
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				id := [2]uint8{ch, key}
				open[id] = append(open[id], at)
			case msg.GetNoteEnd(&ch, &key):
				id := [2]uint8{ch, key}
				if starts := open[id]; len(starts) > 0 {
					spans = append(spans, noteSpan{key: key, start: starts[0], end: at})
					open[id] = starts[1:]
				}
			}
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	return spans, bpm, beats
}

// envelope returns a linear attack from 0.1 to 1 followed by a sustain at
// 1 and a linear decay to 0.3, each ramp at most half the note.
func envelope(n int) []float64 {
	env := make([]float64, n)
	for i := range env {
		env[i] = 1
	}
	if a := min(attackFrames, n/2); a > 0 {
		ramp(env[:a], 0.1, 1.0)
	}
	if d := min(decayFrames, n/2); d > 0 {
		ramp(env[n-d:], 1.0, 0.3)
	}
	return env
}

func ramp(dst []float64, from, to float64) {
	if len(dst) == 1 {
		dst[0] = from
		return
	}
	floats.Span(dst, from, to)
}

// rotate shifts v so that component 0 lands on pitch class pc.
func rotate(v chroma.Vector, pc int) chroma.Vector {
	var out chroma.Vector
	for k := range v {
		out[(k+pc)%chroma.NumChroma] = v[k]
	}
	return out
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
