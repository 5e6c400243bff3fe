package tracker

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/page.turner/internal/chroma"
	"github.com/banshee-data/page.turner/internal/monitoring"
)

// recover scans the whole reference against the recent live frames and
// restarts the alignment at the end of the best matching stretch. A
// match whose mean distance is not below RecoveryCostThreshold is
// rejected and the tracker keeps its position.
func (t *Tracker) recover() bool {
	t.lostRun = 0
	t.costs.clear()
	t.costSum = 0

	n := t.history.len()
	if n == 0 {
		return false
	}
	span := min(n, t.ref.Len())
	skip := n - span
	starts := t.ref.Len() - span + 1

	scan := t.scan[:starts]
	for start := range scan {
		var sum float64
		for k := 0; k < span; k++ {
			sum += t.distance(t.history.at(skip+k), start+k)
		}
		scan[start] = sum / float64(span)
	}
	best := floats.MinIdx(scan)
	if !(scan[best] < t.s.RecoveryCostThreshold) {
		monitoring.Logf("tracker: recovery rejected, best match %.3f at %d", scan[best], best+span-1)
		return false
	}

	t.reseed(best + span - 1)
	t.stats.Recoveries++
	monitoring.Logf("tracker: recovered at position %d (mean distance %.3f)", t.pos, scan[best])
	return true
}

// distance is the clamped cosine distance between a live frame and the
// reference frame at j.
func (t *Tracker) distance(live chroma.Vector, j int) float64 {
	ref := t.ref.Frame(j)
	liveNorm, refNorm := live.Norm(), t.ref.Norm(j)
	if liveNorm <= normEpsilon || refNorm <= normEpsilon {
		return 1
	}
	sim := live.Dot(&ref) / (liveNorm * refNorm)
	if math.IsNaN(sim) {
		return 1
	}
	return 1 - min(1, sim)
}

// reseed restarts the cost propagation from a single cell at pos.
// Boundaries at or before pos are consumed without emitting turns.
func (t *Tracker) reseed(pos int) {
	prev := t.cost[t.prev]
	for j := t.prevLo; j <= t.prevHi; j++ {
		prev[j] = Unreachable
	}
	prev[pos] = 0
	t.prevLo, t.prevHi = pos, pos
	t.pos = pos
	t.smooth.clear()

	for t.nextPage < t.ref.NumBoundaries() && pos >= t.ref.Boundary(t.nextPage)-t.s.PageTurnOffset {
		t.nextPage++
	}
	t.checkFinished()
}
