package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

func sharpnessChart(res *analysis.Result, title string) *charts.Line {
	n := 0
	for _, s := range res.Samples {
		n = max(n, len(s.Profile.Scores))
	}
	x := make([]string, n)
	for i := range x {
		x[i] = strconv.Itoa(i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "O2-O3 image sharpness vs image index (vs temperature)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom", Type: "scroll"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "image index", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "normalised sharpness (a.u)", NameLocation: "middle", NameGap: 40, Min: 0, Max: 1}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)
	line.SetXAxis(x)
	for _, s := range res.Samples {
		data := make([]opts.LineData, len(s.Profile.Scores))
		for j, v := range s.Profile.Scores {
			data[j] = opts.LineData{Value: v}
		}
		line.AddSeries(fmt.Sprintf("%0.1fC", s.Sample.Actual()), data,
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

func shiftChart(res *analysis.Result) *charts.Line {
	fit := res.Drift.Fit
	series := res.Drift.Series

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "520px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("O3 expansion = %0.2fum per C", fit.Slope),
			Subtitle: fmt.Sprintf("O3_CLTE_pK=%0.3e  r2=%0.4f  n=%d", fit.CLTE, fit.RSquared, fit.N),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "temperature (C)", NameLocation: "middle", NameGap: 25, Scale: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "focal plane shift (um)", NameLocation: "middle", NameGap: 40}),
	)

	curves := []struct {
		label  string
		ys     []float64
		dashed bool
	}{
		{"data (O2 + O3)", series.DataShift, false},
		{"O2 drift", series.KnownDrift, false},
		{"O3 expansion", series.CorrectedShift, false},
		{"O3 linear fit", series.FittedShift, true},
	}
	for _, c := range curves {
		data := make([]opts.LineData, len(c.ys))
		for j, y := range c.ys {
			data[j] = opts.LineData{Value: []interface{}{series.Temperature[j], y}}
		}
		style := opts.LineStyle{Width: 2}
		if c.dashed {
			style.Type = "dashed"
		}
		line.AddSeries(c.label, data, charts.WithLineStyleOpts(style))
	}
	return line
}

// RenderHTML writes an interactive page with the sharpness and shift charts.
func RenderHTML(w io.Writer, res *analysis.Result) error {
	title := Title(res.DataSet)
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(sharpnessChart(res, title), shiftChart(res))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render error: %w", err)
	}
	return nil
}
