// Package report renders the alignment path of a performance: the score
// position the tracker chose for every live frame, with page boundaries and
// the frames at which pages were turned.
package report

import "errors"

// ErrEmptyPath is returned when there is nothing to draw.
var ErrEmptyPath = errors.New("report: path has no points")

// Point is the tracker's decision for one live frame.
type Point struct {
	Frame    int     `json:"frame"`
	Position int     `json:"position"`
	Cost     float64 `json:"cost"`
	Lost     bool    `json:"lost,omitempty"`
}

// Turn marks a page turn on the path.
type Turn struct {
	Frame    int `json:"frame"`
	Position int `json:"position"`
	Page     int `json:"page"`
}

// Path is everything needed to draw one performance.
type Path struct {
	Title      string  `json:"title"`
	ScoreLen   int     `json:"score_len"`
	Boundaries []int   `json:"boundaries"`
	Points     []Point `json:"points"`
	Turns      []Turn  `json:"turns"`
}

// PathSource provides the current path, e.g. a live recorder or a stored
// session.
type PathSource interface {
	Path() Path
}

// Summary condenses a path into a few numbers for logs and listings.
type Summary struct {
	Frames    int     `json:"frames"`
	Lost      int     `json:"lost"`
	MeanCost  float64 `json:"mean_cost"`
	MaxCost   float64 `json:"max_cost"`
	Turns     int     `json:"turns"`
	FinalPos  int     `json:"final_position"`
	Completed float64 `json:"completed"`
}

// Summarize computes the summary of p. Lost frames do not contribute to the
// cost figures.
func Summarize(p Path) Summary {
	s := Summary{Frames: len(p.Points), Turns: len(p.Turns)}
	var sum float64
	var n int
	for _, pt := range p.Points {
		if pt.Lost {
			s.Lost++
			continue
		}
		sum += pt.Cost
		n++
		s.MaxCost = max(s.MaxCost, pt.Cost)
	}
	if n > 0 {
		s.MeanCost = sum / float64(n)
	}
	if len(p.Points) > 0 {
		s.FinalPos = p.Points[len(p.Points)-1].Position
	}
	if p.ScoreLen > 1 {
		s.Completed = min(1, float64(s.FinalPos)/float64(p.ScoreLen-1))
	}
	return s
}
