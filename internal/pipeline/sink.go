package pipeline

import (
	"time"

	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/tracker"
)

// FrameRecord describes one processed analysis window.
type FrameRecord struct {
	// Frame counts windows since the pipeline was created, from zero. It
	// keeps counting across Reset.
	Frame int
	// Elapsed is the stream time at the end of the window.
	Elapsed  time.Duration
	Chroma   chroma.Vector
	Loudness float64
	Result   tracker.Result
	Progress float64
	// Took is the wall time spent on extraction and alignment.
	Took time.Duration
}

// TurnEvent is a page turn on its way through the sinks. RelaySink fills
// Sent and Err for the sinks that follow it.
type TurnEvent struct {
	tracker.PageTurn
	Sent bool
	Err  error
}

// Sink receives the output of the frame loop. Methods are called from the
// frame loop goroutine and must not block for long; the record is reused
// and must not be retained.
type Sink interface {
	Frame(rec *FrameRecord)
	PageTurn(rec *FrameRecord, ev *TurnEvent)
	Finished(rec *FrameRecord)
}

// MultiSink fans out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Frame(rec *FrameRecord) {
	for _, s := range m {
		s.Frame(rec)
	}
}

func (m MultiSink) PageTurn(rec *FrameRecord, ev *TurnEvent) {
	for _, s := range m {
		s.PageTurn(rec, ev)
	}
}

func (m MultiSink) Finished(rec *FrameRecord) {
	for _, s := range m {
		s.Finished(rec)
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Frame(*FrameRecord)                {}
func (NopSink) PageTurn(*FrameRecord, *TurnEvent) {}
func (NopSink) Finished(*FrameRecord)             {}
