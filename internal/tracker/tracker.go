// Package tracker aligns a stream of live chroma frames against a
// reference score with an online, banded dynamic time warping search and
// reports page turns as the alignment crosses page boundaries.
package tracker

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/config"
	"github.com/banshee-data/page.turner/internal/monitoring"
	"github.com/banshee-data/page.turner/internal/score"
)

// Unreachable marks a cost cell that no admissible path reaches.
const Unreachable = math.MaxFloat64

const normEpsilon = 1e-9

// State is the lifecycle state of a Tracker.
type State int

const (
	Idle State = iota
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Settings holds the alignment parameters.
type Settings struct {
	StartThreshold float64
	BandRadius     int
	PenaltyWait    float64
	PenaltyStep    float64
	PenaltySkip    float64
	PageTurnOffset int
	FinishMargin   int

	// SmoothingWindow averages the last n live frames before matching.
	SmoothingWindow int

	RecoveryEnabled       bool
	RecoveryLostFrames    int
	RecoveryHistory       int
	RecoveryCostThreshold float64

	// Used only for the measure and beat estimate in Snapshot.
	FramesPerSecond float64
	BPM             float64
	BeatsPerMeasure int
}

// DefaultSettings returns the settings the device ships with.
func DefaultSettings() Settings {
	return SettingsFromConfig(config.EmptyTuningConfig())
}

// SettingsFromConfig extracts the tracker settings from a tuning config.
func SettingsFromConfig(cfg *config.TuningConfig) Settings {
	return Settings{
		StartThreshold:        cfg.GetStartThreshold(),
		BandRadius:            cfg.GetBandRadius(),
		PenaltyWait:           cfg.GetPenaltyWait(),
		PenaltyStep:           cfg.GetPenaltyStep(),
		PenaltySkip:           cfg.GetPenaltySkip(),
		PageTurnOffset:        cfg.GetPageTurnOffset(),
		FinishMargin:          cfg.GetFinishMargin(),
		SmoothingWindow:       cfg.GetSmoothingWindow(),
		RecoveryEnabled:       cfg.GetRecoveryEnabled(),
		RecoveryLostFrames:    cfg.GetRecoveryLostFrames(),
		RecoveryHistory:       cfg.GetRecoveryHistory(),
		RecoveryCostThreshold: cfg.GetRecoveryCostThreshold(),
		FramesPerSecond:       float64(cfg.GetSampleRate()) / float64(cfg.GetHopSize()),
		BPM:                   cfg.GetBPM(),
		BeatsPerMeasure:       cfg.GetBeatsPerMeasure(),
	}
}

func (s Settings) validate() error {
	switch {
	case s.BandRadius < 0:
		return errors.New("band radius must be non-negative")
	case s.PenaltyWait < 0 || s.PenaltyStep < 0 || s.PenaltySkip < 0:
		return errors.New("penalties must be non-negative")
	case s.PageTurnOffset < 0 || s.FinishMargin < 0:
		return errors.New("page turn offset and finish margin must be non-negative")
	case s.RecoveryEnabled && (s.RecoveryLostFrames < 1 || s.RecoveryHistory < 1):
		return errors.New("recovery needs a positive lost frame count and history length")
	}
	return nil
}

// PageTurn is emitted once per page boundary the alignment reaches.
type PageTurn struct {
	// Index is the zero-based index of the boundary.
	Index int
	// Boundary is the reference frame at which the page ends.
	Boundary int
	// Position is the aligned position that triggered the turn.
	Position int
	// Page is the 1-based page now showing.
	Page int
}

// Result describes the outcome of one Update.
type Result struct {
	State           State
	Position        int
	PositionChanged bool
	// PageTurns is only valid until the next call to Update.
	PageTurns []PageTurn
	Finished  bool
	// Lost reports that no index in the band was reachable.
	Lost bool
	// Cost is the band minimum before renormalization, the incremental
	// cost of the best path for this frame.
	Cost      float64
	Recovered bool
}

// Stats counts tracker events since the last Reset.
type Stats struct {
	Frames     uint64
	Running    uint64
	Lost       uint64
	Recoveries uint64
	PageTurns  uint64
}

// Tracker follows a performance through a reference score. It is not safe
// for concurrent use.
type Tracker struct {
	ref *score.Reference
	s   Settings

	cost [2][]float64
	// prev indexes the column holding the last accepted frame. Only
	// cost[prev][prevLo:prevHi+1] is meaningful.
	prev           int
	prevLo, prevHi int

	pos      int
	nextPage int
	state    State
	lastCost float64
	turns    []PageTurn

	smooth  ring[chroma.Vector]
	history ring[chroma.Vector]
	costs   ring[float64]
	costSum float64
	lostRun int
	scan    []float64

	stats Stats
}

// New creates a tracker for ref. The reference is shared and never
// modified.
func New(ref *score.Reference, s Settings) (*Tracker, error) {
	if ref == nil || ref.Len() == 0 {
		return nil, score.ErrEmptyScore
	}
	if err := s.validate(); err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	if s.SmoothingWindow < 1 {
		s.SmoothingWindow = 1
	}

	n := ref.Len()
	t := &Tracker{
		ref:    ref,
		s:      s,
		cost:   [2][]float64{make([]float64, n), make([]float64, n)},
		turns:  make([]PageTurn, 0, ref.NumBoundaries()),
		smooth: newRing[chroma.Vector](s.SmoothingWindow),
	}
	if s.RecoveryEnabled {
		t.history = newRing[chroma.Vector](s.RecoveryHistory)
		t.costs = newRing[float64](s.RecoveryHistory)
		t.scan = make([]float64, n)
	}
	t.Reset()
	return t, nil
}

// Reset discards all progress and returns the tracker to Idle at the start
// of the score.
func (t *Tracker) Reset() {
	for _, col := range t.cost {
		for i := range col {
			col[i] = Unreachable
		}
	}
	t.prev = 0
	t.cost[t.prev][0] = 0
	t.prevLo, t.prevHi = 0, 0

	t.pos = 0
	t.nextPage = 0
	t.state = Idle
	t.lastCost = 0
	t.turns = t.turns[:0]
	t.smooth.clear()
	t.history.clear()
	t.costs.clear()
	t.costSum = 0
	t.lostRun = 0
	t.stats = Stats{}
}

// Update consumes one live chroma frame and its loudness.
func (t *Tracker) Update(live chroma.Vector, loudness float64) Result {
	t.stats.Frames++
	t.turns = t.turns[:0]

	switch t.state {
	case Finished:
		return t.result(false)
	case Idle:
		if loudness <= t.s.StartThreshold {
			return t.result(false)
		}
		t.state = Running
		monitoring.Logf("tracker: start at loudness %.0f", loudness)
	}
	t.stats.Running++

	live = t.smoothed(live)
	if t.history.capacity() > 0 {
		t.history.push(live)
	}

	old := t.pos
	if !t.step(live) {
		t.stats.Lost++
		t.lostRun++
		r := t.result(false)
		r.Lost = true
		if t.s.RecoveryEnabled && t.lostRun >= t.s.RecoveryLostFrames && t.recover() {
			r = t.result(t.pos != old)
			r.Lost = true
			r.Recovered = true
		}
		return r
	}
	t.lostRun = 0
	t.checkPages()

	if t.s.RecoveryEnabled && t.state == Running {
		t.trackCost()
		if t.costs.full() && t.costSum/float64(t.costs.len()) > t.s.RecoveryCostThreshold && t.recover() {
			r := t.result(t.pos != old)
			r.Recovered = true
			return r
		}
	}
	return t.result(t.pos != old)
}

// step advances the cost columns by one frame. It returns false when the
// band holds no reachable cell.
func (t *Tracker) step(live chroma.Vector) bool {
	liveNorm := live.Norm()
	if math.IsNaN(liveNorm) || math.IsInf(liveNorm, 0) {
		// A non-finite frame reaches no cell; the current column is
		// already clear, so the band and position stay as they were.
		return false
	}
	invLive := 0.0
	if liveNorm > normEpsilon {
		invLive = 1 / liveNorm
	}

	n := t.ref.Len()
	lo := max(0, t.pos-t.s.BandRadius)
	hi := min(n-1, t.pos+t.s.BandRadius)
	prev, curr := t.cost[t.prev], t.cost[1-t.prev]

	best, bestCost := -1, Unreachable
	for j := lo; j <= hi; j++ {
		dist := 1.0
		if refNorm := t.ref.Norm(j); liveNorm > normEpsilon && refNorm > normEpsilon {
			ref := t.ref.Frame(j)
			dist = 1 - math.Min(1, live.Dot(&ref)*invLive/refNorm)
		}

		minPrev := t.prevCost(prev, j, t.s.PenaltyWait)
		if j > 0 {
			minPrev = math.Min(minPrev, t.prevCost(prev, j-1, t.s.PenaltyStep))
		}
		if j > 1 {
			minPrev = math.Min(minPrev, t.prevCost(prev, j-2, t.s.PenaltySkip))
		}

		c := dist + minPrev
		if minPrev == Unreachable || !(c < Unreachable) {
			curr[j] = Unreachable
			continue
		}
		curr[j] = c
		if c < bestCost {
			best, bestCost = j, c
		}
	}

	if best < 0 {
		for j := lo; j <= hi; j++ {
			curr[j] = Unreachable
		}
		return false
	}

	for j := lo; j <= hi; j++ {
		if curr[j] < Unreachable {
			curr[j] -= bestCost
		}
	}

	// Retire the old previous column so it is clean when reused.
	for j := t.prevLo; j <= t.prevHi; j++ {
		prev[j] = Unreachable
	}
	t.prev = 1 - t.prev
	t.prevLo, t.prevHi = lo, hi
	t.pos = best
	t.lastCost = bestCost
	return true
}

func (t *Tracker) prevCost(prev []float64, i int, penalty float64) float64 {
	if i < t.prevLo || i > t.prevHi || prev[i] == Unreachable {
		return Unreachable
	}
	return prev[i] + penalty
}

// checkPages emits a turn for every boundary the position has reached and
// detects the end of the piece.
func (t *Tracker) checkPages() {
	for t.nextPage < t.ref.NumBoundaries() {
		b := t.ref.Boundary(t.nextPage)
		if t.pos < b-t.s.PageTurnOffset {
			break
		}
		t.turns = append(t.turns, PageTurn{Index: t.nextPage, Boundary: b, Position: t.pos, Page: t.nextPage + 2})
		t.nextPage++
		t.stats.PageTurns++
	}
	t.checkFinished()
}

func (t *Tracker) checkFinished() {
	if t.nextPage >= t.ref.NumBoundaries() && t.pos >= t.ref.Len()-t.s.FinishMargin {
		t.state = Finished
		monitoring.Logf("tracker: finished at position %d", t.pos)
	}
}

func (t *Tracker) smoothed(live chroma.Vector) chroma.Vector {
	if t.smooth.capacity() <= 1 || !finite(&live) {
		return live
	}
	t.smooth.push(live)
	var avg chroma.Vector
	for i := 0; i < t.smooth.len(); i++ {
		v := t.smooth.at(i)
		for k := range avg {
			avg[k] += v[k]
		}
	}
	inv := 1 / float64(t.smooth.len())
	for k := range avg {
		avg[k] *= inv
	}
	return avg
}

func finite(v *chroma.Vector) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func (t *Tracker) trackCost() {
	if t.costs.full() {
		t.costSum -= t.costs.at(0)
	}
	t.costs.push(t.lastCost)
	t.costSum += t.lastCost
}

func (t *Tracker) result(changed bool) Result {
	return Result{
		State:           t.state,
		Position:        t.pos,
		PositionChanged: changed,
		PageTurns:       t.turns,
		Finished:        t.state == Finished,
		Cost:            t.lastCost,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State { return t.state }

// Position returns the current best estimate of the score position.
func (t *Tracker) Position() int { return t.pos }

// NextPage returns the index of the next boundary that has not fired.
func (t *Tracker) NextPage() int { return t.nextPage }

// Reference returns the score being followed.
func (t *Tracker) Reference() *score.Reference { return t.ref }

// Settings returns the settings in use.
func (t *Tracker) Settings() Settings { return t.s }

// Stats returns the event counters.
func (t *Tracker) Stats() Stats { return t.stats }

// Band returns the index range of the last accepted frame.
func (t *Tracker) Band() (lo, hi int) { return t.prevLo, t.prevHi }

// Costs copies the renormalized cost column of the last accepted frame
// into dst, growing it if needed, and returns it.
func (t *Tracker) Costs(dst []float64) []float64 {
	return append(dst[:0], t.cost[t.prev]...)
}
