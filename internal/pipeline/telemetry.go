package pipeline

import (
	"fmt"
	"time"

	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/timeutil"
	"github.com/banshee-data/page.turner/internal/tracker"
)

// LineWriter accepts telemetry lines without blocking.
type LineWriter interface {
	Line(line string)
}

// TelemetrySink prints a progress line for running frames, at most once per
// interval of wall time, and a line for every page turn and the finish.
type TelemetrySink struct {
	out      LineWriter
	clock    timeutil.Clock
	interval time.Duration
	last     time.Time
}

// NewTelemetrySink returns a sink writing to out. An interval of zero
// prints every running frame.
func NewTelemetrySink(out LineWriter, clock timeutil.Clock, interval time.Duration) *TelemetrySink {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &TelemetrySink{out: out, clock: clock, interval: interval}
}

func (t *TelemetrySink) Frame(rec *FrameRecord) {
	if rec.Result.State != tracker.Running {
		return
	}
	now := t.clock.Now()
	if t.interval > 0 && !t.last.IsZero() && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now

	line := monitoring.ProgressLine(rec.Elapsed, rec.Progress, rec.Result.Position, rec.Result.Cost)
	if rec.Result.Lost {
		line += " | LOST"
	}
	t.out.Line(line)
}

func (t *TelemetrySink) PageTurn(rec *FrameRecord, ev *TurnEvent) {
	status := "sent"
	if !ev.Sent {
		status = "not sent"
		if ev.Err != nil {
			status += ": " + ev.Err.Error()
		}
	}
	t.out.Line(fmt.Sprintf(">>> PAGE TURN to page %d at position %d [%.3fs] (%s)",
		ev.Page, ev.Position, rec.Elapsed.Seconds(), status))
}

func (t *TelemetrySink) Finished(rec *FrameRecord) {
	t.out.Line(fmt.Sprintf("*** FINISHED at position %d [%.3fs] ***", rec.Result.Position, rec.Elapsed.Seconds()))
}
