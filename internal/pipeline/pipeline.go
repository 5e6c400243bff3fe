// Package pipeline runs the per-frame loop: it assembles capture blocks
// into analysis windows, extracts one chroma frame per window, feeds it to
// the tracker and hands the outcome to a set of sinks.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"tailscale.com/tsweb"

	"github.com/banshee-data/page.turner/internal/audio"
	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/timeutil"
	"github.com/banshee-data/page.turner/internal/tracker"
)

// ErrFinished is returned by Process once the tracker has reached the end
// of the score. Run treats it as a normal end of stream.
var ErrFinished = errors.New("pipeline: score finished")

// deadlineLogEvery limits deadline-miss logging after the first miss.
const deadlineLogEvery = 100

// Config wires a pipeline together.
type Config struct {
	Extractor *chroma.Extractor
	Tracker   *tracker.Tracker
	// HopSize is the number of samples between windows. Zero means the
	// window size (no overlap).
	HopSize int
	Clock   timeutil.Clock
	Sink    Sink
}

// Stats counts frame loop events since the last Reset.
type Stats struct {
	Frames         uint64        `json:"frames"`
	DeadlineMisses uint64        `json:"deadline_misses"`
	WorstFrame     time.Duration `json:"worst_frame_ns"`
	Budget         time.Duration `json:"budget_ns"`
}

// Status is the live view served on the debug status page.
type Status struct {
	Elapsed  float64          `json:"elapsed_s"`
	Stats    Stats            `json:"pipeline"`
	Tracker  tracker.Snapshot `json:"tracker"`
	Finished bool             `json:"finished"`
}

// Pipeline owns the extractor, the tracker and the analysis window. Process
// and Run must be called from a single goroutine; Status may be called from
// any goroutine.
type Pipeline struct {
	ext    *chroma.Extractor
	trk    *tracker.Tracker
	win    *Window
	clock  timeutil.Clock
	sink   Sink
	rate   int
	budget time.Duration

	rec      FrameRecord
	turn     TurnEvent
	finished bool
	// seq numbers frames for the sinks. Reset leaves it running so rows
	// stored before and after a restart keep distinct frame numbers.
	seq uint64

	mu     sync.Mutex
	stats  Stats
	status Status
}

// New validates cfg and returns a pipeline ready for the first block.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Extractor == nil || cfg.Tracker == nil {
		return nil, errors.New("pipeline: extractor and tracker are required")
	}
	s := cfg.Extractor.Settings()
	hop := cfg.HopSize
	if hop == 0 {
		hop = s.WindowSize
	}
	win, err := NewWindow(s.WindowSize, hop)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	sink := cfg.Sink
	if sink == nil {
		sink = NopSink{}
	}

	p := &Pipeline{
		ext:    cfg.Extractor,
		trk:    cfg.Tracker,
		win:    win,
		clock:  clock,
		sink:   sink,
		rate:   s.SampleRate,
		budget: time.Duration(float64(hop) / float64(s.SampleRate) * float64(time.Second)),
	}
	p.stats.Budget = p.budget
	p.status.Tracker = p.trk.Snapshot()
	return p, nil
}

// Process consumes one capture block. It returns ErrFinished once the
// tracker has finished; later blocks are ignored.
func (p *Pipeline) Process(block []int16) error {
	if p.finished {
		return ErrFinished
	}
	p.win.Write(block, p.frame)
	if p.finished {
		return ErrFinished
	}
	return nil
}

func (p *Pipeline) frame(window []int16) bool {
	start := p.clock.Now()

	live := p.ext.Extract(window)
	loudness := chroma.Loudness(window)
	res := p.trk.Update(live, loudness)

	took := p.clock.Since(start)
	snap := p.trk.Snapshot()

	rec := &p.rec
	rec.Frame = int(p.seq)
	p.seq++
	rec.Elapsed = p.elapsed()
	rec.Chroma = live
	rec.Loudness = loudness
	rec.Result = res
	rec.Progress = snap.Progress
	rec.Took = took

	p.account(took, rec, snap)

	p.sink.Frame(rec)
	for _, pt := range res.PageTurns {
		p.turn = TurnEvent{PageTurn: pt}
		p.sink.PageTurn(rec, &p.turn)
	}
	if res.Finished {
		p.finished = true
		p.sink.Finished(rec)
		return false
	}
	return true
}

func (p *Pipeline) account(took time.Duration, rec *FrameRecord, snap tracker.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.Frames++
	p.stats.WorstFrame = max(p.stats.WorstFrame, took)
	if took > p.budget {
		p.stats.DeadlineMisses++
		if n := p.stats.DeadlineMisses; n == 1 || n%deadlineLogEvery == 0 {
			monitoring.Logf("pipeline: frame %d took %v, budget %v (%d misses)", rec.Frame, took, p.budget, n)
		}
	}
	p.status = Status{
		Elapsed:  rec.Elapsed.Seconds(),
		Stats:    p.stats,
		Tracker:  snap,
		Finished: rec.Result.Finished,
	}
}

// elapsed is the stream time at the end of the current window.
func (p *Pipeline) elapsed() time.Duration {
	return time.Duration(float64(p.win.Consumed()) / float64(p.rate) * float64(time.Second))
}

// Run reads blocks from src until it ends, ctx is cancelled or the score
// is finished. Only a cancelled context or a source failure is an error.
func (p *Pipeline) Run(ctx context.Context, src audio.Source) error {
	buf := make([]int16, audio.BlockSize)
	for {
		n, err := src.ReadBlock(ctx, buf)
		if n > 0 {
			if perr := p.Process(buf[:n]); errors.Is(perr, ErrFinished) {
				return nil
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}
	}
}

// Reset restarts the performance from the top of the score.
func (p *Pipeline) Reset() {
	p.trk.Reset()
	p.win.Reset()
	p.finished = false

	p.mu.Lock()
	p.stats = Stats{Budget: p.budget}
	p.status = Status{Stats: p.stats, Tracker: p.trk.Snapshot()}
	p.mu.Unlock()
}

// Stats returns the frame loop counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Status returns the state as of the last processed frame.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// AttachAdminRoutes serves the live status as JSON.
func (p *Pipeline) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	debug.HandleFunc("status", "score follower status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(p.Status()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
