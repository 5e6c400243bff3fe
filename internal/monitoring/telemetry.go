package monitoring

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ProgressBar renders progress in [0, 1] as a bar of width cells, e.g.
// "====>     ". Values outside the range are clamped.
func ProgressBar(progress float64, width int) string {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	pos := int(float64(width) * progress)
	var b strings.Builder
	b.Grow(width)
	for i := 0; i < width; i++ {
		switch {
		case i < pos:
			b.WriteByte('=')
		case i == pos:
			b.WriteByte('>')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// ProgressLine formats one telemetry line for a running tracker.
func ProgressLine(elapsed time.Duration, progress float64, position int, cost float64) string {
	return fmt.Sprintf("[%.3fs] [%s] Pos: %d | Cost: %.2f",
		elapsed.Seconds(), ProgressBar(progress, 20), position, cost)
}

// Telemetry is a best-effort line stream. Lines are handed to a writer
// goroutine through a small buffer; when the writer falls behind, new
// lines are dropped instead of blocking the caller.
type Telemetry struct {
	lines   chan string
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
}

// NewTelemetry starts a Telemetry that writes to w.
func NewTelemetry(w io.Writer, buffer int) *Telemetry {
	t := &Telemetry{
		lines: make(chan string, buffer),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(t.done)
		for line := range t.lines {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				t.dropped.Add(1)
			}
		}
	}()
	return t
}

// Printf queues a formatted line without blocking.
func (t *Telemetry) Printf(format string, v ...interface{}) {
	t.Line(fmt.Sprintf(format, v...))
}

// Line queues line without blocking.
func (t *Telemetry) Line(line string) {
	select {
	case t.lines <- line:
	default:
		t.dropped.Add(1)
	}
}

// Dropped returns the number of lines that were not written.
func (t *Telemetry) Dropped() uint64 {
	return t.dropped.Load()
}

// Close flushes queued lines and stops the writer goroutine. Line must not
// be called after Close.
func (t *Telemetry) Close() {
	t.once.Do(func() { close(t.lines) })
	<-t.done
}
