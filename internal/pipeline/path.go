package pipeline

import (
	"sync"

	"github.com/banshee-data/page.turner/internal/report"
	"github.com/banshee-data/page.turner/internal/score"
	"github.com/banshee-data/page.turner/internal/tracker"
)

// PathRecorder keeps the alignment path of the running performance for the
// live alignment chart.
type PathRecorder struct {
	mu   sync.Mutex
	path report.Path
}

func NewPathRecorder(ref *score.Reference) *PathRecorder {
	return &PathRecorder{path: report.Path{
		Title:      ref.Name(),
		ScoreLen:   ref.Len(),
		Boundaries: ref.Boundaries(),
	}}
}

func (p *PathRecorder) Frame(rec *FrameRecord) {
	if rec.Result.State == tracker.Idle {
		return
	}
	p.mu.Lock()
	p.path.Points = append(p.path.Points, report.Point{
		Frame:    rec.Frame,
		Position: rec.Result.Position,
		Cost:     rec.Result.Cost,
		Lost:     rec.Result.Lost,
	})
	p.mu.Unlock()
}

func (p *PathRecorder) PageTurn(rec *FrameRecord, ev *TurnEvent) {
	p.mu.Lock()
	p.path.Turns = append(p.path.Turns, report.Turn{Frame: rec.Frame, Position: ev.Position, Page: ev.Page})
	p.mu.Unlock()
}

func (p *PathRecorder) Finished(*FrameRecord) {}

// Path returns a copy of the path recorded so far.
func (p *PathRecorder) Path() report.Path {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.path
	out.Boundaries = append([]int(nil), p.path.Boundaries...)
	out.Points = append([]report.Point(nil), p.path.Points...)
	out.Turns = append([]report.Turn(nil), p.path.Turns...)
	return out
}

// Reset forgets the recorded path.
func (p *PathRecorder) Reset() {
	p.mu.Lock()
	p.path.Points = nil
	p.path.Turns = nil
	p.mu.Unlock()
}
