package score

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/testutil"
)

type midiNote struct {
	key   uint8
	delta uint32 // rest before the note, in ticks
	dur   uint32
}

// writeMIDI renders a single-track monophonic file at 480 ticks per
// quarter note.
func writeMIDI(t *testing.T, bpm float64, notes []midiNote) *bytes.Buffer {
	t.Helper()
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(480)

	var tr smf.Track
	tr.Add(0, smf.MetaMeter(4, 4))
	tr.Add(0, smf.MetaTempo(bpm))
	for _, n := range notes {
		tr.Add(n.delta, midi.NoteOn(0, n.key, 100))
		tr.Add(n.dur, midi.NoteOff(0, n.key))
	}
	tr.Close(0)
	require.NoError(t, s.Add(tr))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)
	return &buf
}

// Ten frames per second at 60 BPM puts ten frames in every beat.
var tenFramesPerBeat = MIDIOptions{SampleRate: 44100, HopSize: 4410, Track: -1, Seed: 7}

func TestBuildFromMIDIMelody(t *testing.T) {
	buf := writeMIDI(t, 60, []midiNote{
		{key: 60, dur: 480},            // C, beat 0
		{key: 64, dur: 480},            // E, beat 1
		{key: 67, dur: 480},            // G, beat 2
		{key: 69, delta: 480, dur: 480}, // A after a one-beat rest
	})

	opts := tenFramesPerBeat
	opts.PageEndMeasures = []int{1}
	ref, err := BuildFromMIDI("melody", buf, opts)
	require.NoError(t, err)

	assert.Equal(t, "melody", ref.Name())
	assert.Equal(t, 51, ref.Len())
	assert.Equal(t, []int{40}, ref.Boundaries())

	for _, tt := range []struct{ frame, class int }{
		{5, 0}, {15, 4}, {25, 7}, {45, 9},
	} {
		assert.Equalf(t, tt.class, ref.Frame(tt.frame).Dominant(), "frame %d", tt.frame)
	}
	for i := 0; i < ref.Len(); i++ {
		assert.InDeltaf(t, 1.0, ref.Norm(i), 1e-6, "frame %d not normalized", i)
	}
}

func TestBuildFromMIDIIsReproducible(t *testing.T) {
	notes := []midiNote{{key: 62, dur: 960}}
	a, err := BuildFromMIDI("a", writeMIDI(t, 60, notes), tenFramesPerBeat)
	require.NoError(t, err)
	b, err := BuildFromMIDI("b", writeMIDI(t, 60, notes), tenFramesPerBeat)
	require.NoError(t, err)
	assert.Equal(t, a.Frames(), b.Frames())

	other := tenFramesPerBeat
	other.Seed = 8
	c, err := BuildFromMIDI("c", writeMIDI(t, 60, notes), other)
	require.NoError(t, err)
	assert.NotEqual(t, a.Frames(), c.Frames())
}

func TestBuildFromMIDIBPMOverride(t *testing.T) {
	opts := tenFramesPerBeat
	opts.BPM = 120
	ref, err := BuildFromMIDI("fast", writeMIDI(t, 60, []midiNote{{key: 60, dur: 1920}}), opts)
	require.NoError(t, err)
	// Four beats at 120 BPM is two seconds.
	assert.Equal(t, 21, ref.Len())
}

func TestBuildFromMIDIClampsBoundaries(t *testing.T) {
	opts := tenFramesPerBeat
	opts.PageEndMeasures = []int{1, 50}
	ref, err := BuildFromMIDI("short", writeMIDI(t, 60, []midiNote{{key: 60, dur: 480 * 8}}), opts)
	require.NoError(t, err)
	assert.Equal(t, []int{40, ref.Len() - 1}, ref.Boundaries())
}

func TestBuildFromMIDIErrors(t *testing.T) {
	_, err := BuildFromMIDI("none", writeMIDI(t, 60, nil), tenFramesPerBeat)
	assert.True(t, errors.Is(err, ErrNoNotes))

	_, err = BuildFromMIDI("garbage", bytes.NewReader([]byte("not a midi file")), tenFramesPerBeat)
	assert.Error(t, err)

	_, err = BuildFromMIDI("nohop", writeMIDI(t, 60, []midiNote{{key: 60, dur: 480}}), MIDIOptions{SampleRate: 44100})
	assert.Error(t, err)

	opts := tenFramesPerBeat
	opts.PageEndMeasures = []int{0}
	_, err = BuildFromMIDI("zero", writeMIDI(t, 60, []midiNote{{key: 60, dur: 480}}), opts)
	assert.Error(t, err)
}

func TestEnvelope(t *testing.T) {
	env := envelope(20)
	assert.InDelta(t, 0.1, env[0], 1e-12)
	assert.InDelta(t, 1.0, env[4], 1e-12)
	assert.Equal(t, 1.0, env[10])
	assert.InDelta(t, 0.3, env[19], 1e-12)

	assert.Equal(t, []float64{1}, envelope(1))
	short := envelope(2)
	assert.InDelta(t, 0.1, short[0], 1e-12)
	assert.InDelta(t, 1.0, short[1], 1e-12)
}

func TestRotate(t *testing.T) {
	r := rotate(ViolinTemplate, 9)
	assert.Equal(t, 9, r.Dominant())
	assert.Equal(t, ViolinTemplate[7], r[4]) // fifth of A is E
	assert.Equal(t, ViolinTemplate, rotate(ViolinTemplate, 0))
}

func TestBuildFromWAV(t *testing.T) {
	s := chroma.DefaultSettings()
	samples := testutil.Sine(testutil.NoteFrequency(69), 10000, s.SampleRate, 4*s.WindowSize)
	pcm := &audio.PCM{Samples: samples, SampleRate: s.SampleRate}

	ref, err := BuildFromWAV("tone", pcm, s, s.WindowSize, []float64{0.2, 100})
	require.NoError(t, err)
	assert.Equal(t, 4, ref.Len())
	for i := 0; i < ref.Len(); i++ {
		assert.Equal(t, 9, ref.Frame(i).Dominant())
		assert.InDelta(t, 1.0, maxComponent(ref.Frame(i)), 1e-9)
	}
	assert.Equal(t, []int{2, 3}, ref.Boundaries())

	half, err := BuildFromWAV("overlap", pcm, s, s.WindowSize/2, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, half.Len())
}

func TestBuildFromWAVErrors(t *testing.T) {
	s := chroma.DefaultSettings()
	pcm := &audio.PCM{Samples: testutil.Silence(s.WindowSize), SampleRate: 22050}
	_, err := BuildFromWAV("rate", pcm, s, s.WindowSize, nil)
	assert.Error(t, err)

	pcm.SampleRate = s.SampleRate
	_, err = BuildFromWAV("hop", pcm, s, 2*s.WindowSize, nil)
	assert.Error(t, err)

	pcm.Samples = pcm.Samples[:100]
	_, err = BuildFromWAV("short", pcm, s, s.WindowSize, nil)
	assert.Error(t, err)
}

func maxComponent(v chroma.Vector) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
