package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	pathColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	lostColor     = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	boundaryColor = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	turnColor     = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

// NewPathPlot builds a plot of score position against live frame.
func NewPathPlot(p Path) (*plot.Plot, error) {
	if len(p.Points) == 0 {
		return nil, ErrEmptyPath
	}

	pl := plot.New()
	pl.Title.Text = p.Title
	pl.X.Label.Text = "Live frame"
	pl.Y.Label.Text = "Score frame"
	pl.Y.Min = 0
	if p.ScoreLen > 0 {
		pl.Y.Max = float64(p.ScoreLen - 1)
	}

	tracked := make(plotter.XYs, 0, len(p.Points))
	var lost plotter.XYs
	for _, pt := range p.Points {
		xy := plotter.XY{X: float64(pt.Frame), Y: float64(pt.Position)}
		if pt.Lost {
			lost = append(lost, xy)
			continue
		}
		tracked = append(tracked, xy)
	}

	if len(tracked) > 0 {
		line, err := plotter.NewLine(tracked)
		if err != nil {
			return nil, err
		}
		line.Color = pathColor
		line.Width = vg.Points(1)
		pl.Add(line)
		pl.Legend.Add("position", line)
	}

	if len(lost) > 0 {
		sc, err := plotter.NewScatter(lost)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = lostColor
		sc.GlyphStyle.Shape = draw.CrossGlyph{}
		sc.GlyphStyle.Radius = vg.Points(2)
		pl.Add(sc)
		pl.Legend.Add("lost", sc)
	}

	// Boundaries are horizontal: the page ends at a score frame.
	first, last := float64(p.Points[0].Frame), float64(p.Points[len(p.Points)-1].Frame)
	for i, b := range p.Boundaries {
		edge, err := plotter.NewLine(plotter.XYs{{X: first, Y: float64(b)}, {X: last, Y: float64(b)}})
		if err != nil {
			return nil, err
		}
		edge.Color = boundaryColor
		edge.Width = vg.Points(0.5)
		edge.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		pl.Add(edge)
		if i == 0 {
			pl.Legend.Add("page end", edge)
		}
	}

	if len(p.Turns) > 0 {
		turns := make(plotter.XYs, len(p.Turns))
		for i, t := range p.Turns {
			turns[i] = plotter.XY{X: float64(t.Frame), Y: float64(t.Position)}
		}
		sc, err := plotter.NewScatter(turns)
		if err != nil {
			return nil, err
		}
		sc.GlyphStyle.Color = turnColor
		sc.GlyphStyle.Shape = draw.TriangleGlyph{}
		sc.GlyphStyle.Radius = vg.Points(4)
		pl.Add(sc)
		pl.Legend.Add("page turn", sc)
	}

	pl.Legend.Top = true
	pl.Legend.Left = true
	pl.Legend.XOffs = 10
	pl.Legend.YOffs = -10
	return pl, nil
}

// SavePathPlot writes the path plot to file. The format follows the
// extension (.png, .svg, .pdf).
func SavePathPlot(file string, p Path) error {
	pl, err := NewPathPlot(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := pl.Save(plotWidth, plotHeight, file); err != nil {
		return fmt.Errorf("save path plot: %w", err)
	}
	return nil
}

// WritePathPNG renders the path plot as PNG to w.
func WritePathPNG(w io.Writer, p Path) error {
	pl, err := NewPathPlot(p)
	if err != nil {
		return err
	}
	wt, err := pl.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}
