package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// NewPathChart builds an interactive line chart of the path with the page
// ends as mark lines.
func NewPathChart(p Path) (*charts.Line, error) {
	if len(p.Points) == 0 {
		return nil, ErrEmptyPath
	}

	s := Summarize(p)
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alignment " + p.Title, Width: "100%", Height: "720px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    p.Title,
			Subtitle: fmt.Sprintf("frames=%d lost=%d turns=%d mean cost=%.3f", s.Frames, s.Lost, s.Turns, s.MeanCost),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Live frame", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Score frame", Min: 0, Max: max(0, p.ScoreLen-1)}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	xs := make([]string, len(p.Points))
	pos := make([]opts.LineData, len(p.Points))
	costs := make([]opts.LineData, len(p.Points))
	for i, pt := range p.Points {
		xs[i] = strconv.Itoa(pt.Frame)
		if pt.Lost {
			// A gap in the line marks frames without a reachable cell.
			pos[i] = opts.LineData{Value: "-"}
		} else {
			pos[i] = opts.LineData{Value: pt.Position}
		}
		costs[i] = opts.LineData{Value: pt.Cost}
	}

	marks := make([]opts.MarkLineNameYAxisItem, len(p.Boundaries))
	for i, b := range p.Boundaries {
		marks[i] = opts.MarkLineNameYAxisItem{Name: fmt.Sprintf("end of page %d", i+1), YAxis: b}
	}

	line.SetXAxis(xs).
		AddSeries("position", pos,
			charts.WithLineChartOpts(opts.LineChart{Step: "end", ShowSymbol: opts.Bool(false)}),
			charts.WithMarkLineNameYAxisItemOpts(marks...),
		).
		AddSeries("cost", costs,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
		)
	return line, nil
}

// RenderPathChart writes the chart as a standalone HTML page.
func RenderPathChart(w io.Writer, p Path) error {
	line, err := NewPathChart(p)
	if err != nil {
		return err
	}
	return line.Render(w)
}
