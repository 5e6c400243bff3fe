package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/banshee-data/page.turner/internal/timeutil"
)

// ErrInvalidWAV is returned when the input is not a RIFF/WAVE stream.
var ErrInvalidWAV = errors.New("audio: not a valid wav file")

// DecodeWAV reads an entire PCM wav stream, mixes it down to mono and
// rescales it to 16 bits.
func DecodeWAV(r io.ReadSeeker) (*PCM, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf.Format == nil || buf.Format.NumChannels < 1 {
		return nil, fmt.Errorf("audio: wav has no channel layout")
	}

	chans := buf.Format.NumChannels
	depth := int(d.BitDepth)
	out := &PCM{
		Samples:    make([]int16, len(buf.Data)/chans),
		SampleRate: buf.Format.SampleRate,
	}
	for i := range out.Samples {
		var sum int
		for c := 0; c < chans; c++ {
			sum += to16(buf.Data[i*chans+c], depth)
		}
		out.Samples[i] = int16(sum / chans)
	}
	return out, nil
}

// to16 rescales a decoded sample of the given bit depth to 16 bits.
// 8-bit wav data is unsigned.
func to16(v, depth int) int {
	switch {
	case depth == 8:
		return (v - 128) << 8
	case depth > 16:
		return v >> (depth - 16)
	case depth < 16:
		return v << (16 - depth)
	}
	return v
}

// OpenWAV decodes the wav file at path.
func OpenWAV(path string) (*PCM, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audio: open wav: %w", err)
	}
	defer f.Close()
	pcm, err := DecodeWAV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return pcm, nil
}

// EncodeWAV writes pcm as a 16-bit mono wav stream.
func EncodeWAV(w io.WriteSeeker, pcm *PCM) error {
	enc := wav.NewEncoder(w, pcm.SampleRate, 16, 1, 1)
	data := make([]int, len(pcm.Samples))
	for i, s := range pcm.Samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: pcm.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("audio: encode wav: %w", err)
	}
	return enc.Close()
}

// WAVSource plays a decoded recording as a stream of blocks. When paced,
// each block is released one block duration after the previous one, as a
// capture device would deliver it.
type WAVSource struct {
	SliceSource
	sampleRate int
	clock      timeutil.Clock
	paced      bool
	ticker     timeutil.Ticker
}

// NewWAVSource returns a Source over pcm. A nil clock selects the real
// clock.
func NewWAVSource(pcm *PCM, clock timeutil.Clock, paced bool) *WAVSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &WAVSource{
		SliceSource: SliceSource{samples: pcm.Samples},
		sampleRate:  pcm.SampleRate,
		clock:       clock,
		paced:       paced,
	}
}

func (s *WAVSource) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	if s.paced && s.pos < len(s.samples) {
		if s.ticker == nil {
			period := time.Duration(float64(len(dst)) / float64(s.sampleRate) * float64(time.Second))
			s.ticker = s.clock.NewTicker(period)
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-s.ticker.C():
		}
	}
	n, err := s.SliceSource.ReadBlock(ctx, dst)
	if err == io.EOF && s.ticker != nil {
		s.ticker.Stop()
	}
	return n, err
}
