package tracker

// Snapshot is a point-in-time view of the tracker for telemetry and
// status pages.
type Snapshot struct {
	State      State   `json:"state"`
	Position   int     `json:"position"`
	ScoreLen   int     `json:"score_len"`
	Page       int     `json:"page"`
	TotalPages int     `json:"total_pages"`
	Progress   float64 `json:"progress"`
	Cost       float64 `json:"cost"`
	Measure    int     `json:"measure"`
	Beat       int     `json:"beat"`
	Stats      Stats   `json:"stats"`
}

// Snapshot returns the current state. Page counts the turns already
// fired, so it leads PageAt by the page-turn offset near a boundary.
// Measure and beat are zero when the settings carry no tempo.
func (t *Tracker) Snapshot() Snapshot {
	n := t.ref.Len()
	snap := Snapshot{
		State:      t.state,
		Position:   t.pos,
		ScoreLen:   n,
		Page:       t.nextPage + 1,
		TotalPages: t.ref.NumPages(),
		Progress:   min(1, float64(t.pos)/float64(max(1, n-1))),
		Cost:       t.lastCost,
		Stats:      t.stats,
	}
	snap.Measure, snap.Beat = t.measureBeat()
	return snap
}

func (t *Tracker) measureBeat() (measure, beat int) {
	s := t.s
	if s.FramesPerSecond <= 0 || s.BPM <= 0 || s.BeatsPerMeasure <= 0 {
		return 0, 0
	}
	beats := float64(t.pos) / s.FramesPerSecond * s.BPM / 60
	whole := int(beats)
	return whole/s.BeatsPerMeasure + 1, whole%s.BeatsPerMeasure + 1
}
