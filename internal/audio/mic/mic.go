// Package mic captures live audio from the default input device with
// PortAudio.
package mic

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/monitoring"
)

// queueBlocks is the capture queue depth in blocks.
const queueBlocks = 64

// Microphone is an audio.Source backed by a PortAudio input stream. The
// stream callback copies each block into a bounded queue that the frame
// pipeline drains.
type Microphone struct {
	stream *portaudio.Stream
	queue  *audio.BlockQueue
}

// Open initialises PortAudio and starts a mono 16-bit input stream on the
// default device.
func Open(sampleRate int) (*Microphone, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("mic: initialise portaudio: %w", err)
	}

	m := &Microphone{queue: audio.NewBlockQueue(queueBlocks, audio.BlockSize)}
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), audio.BlockSize, m.capture)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("mic: open input stream: %w", err)
	}
	m.stream = stream

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("mic: start input stream: %w", err)
	}
	monitoring.Logf("microphone capture started at %d Hz", sampleRate)
	return m, nil
}

func (m *Microphone) capture(in []int16) {
	m.queue.Push(in)
}

// ReadBlock implements audio.Source.
func (m *Microphone) ReadBlock(ctx context.Context, dst []int16) (int, error) {
	return m.queue.ReadBlock(ctx, dst)
}

// Overruns returns the number of capture blocks dropped because the
// pipeline fell behind.
func (m *Microphone) Overruns() uint64 {
	return m.queue.Overruns()
}

// Close stops the stream and releases PortAudio.
func (m *Microphone) Close() error {
	m.queue.Close()
	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = err
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := portaudio.Terminate(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
