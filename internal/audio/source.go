// Package audio delivers 16-bit mono PCM blocks to the frame pipeline,
// from a recording or from a live capture device.
package audio

import (
	"context"
	"io"
)

// BlockSize is the number of samples in one capture block.
const BlockSize = 128

// Source produces PCM blocks. ReadBlock fills dst and returns the number
// of samples written. It returns io.EOF once the stream has ended.
type Source interface {
	ReadBlock(ctx context.Context, dst []int16) (int, error)
}

// PCM is a decoded mono recording.
type PCM struct {
	Samples    []int16
	SampleRate int
}

// Duration returns the length of the recording in seconds.
func (p *PCM) Duration() float64 {
	if p.SampleRate == 0 {
		return 0
	}
	return float64(len(p.Samples)) / float64(p.SampleRate)
}

// SliceSource serves samples from memory without pacing.
type SliceSource struct {
	samples []int16
	pos     int
}

// NewSliceSource returns a Source over samples.
func NewSliceSource(samples []int16) *SliceSource {
	return &SliceSource{samples: samples}
}

func (s *SliceSource) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	n := copy(dst, s.samples[s.pos:])
	s.pos += n
	return n, nil
}
