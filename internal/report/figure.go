package report

import (
	"fmt"
	"image/color"
	"io"

	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/fsutil"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Figure size and resolution.
const (
	figureWidth  = 8.5 * vg.Inch
	figureHeight = 11 * vg.Inch
	figureDPI    = 150
)

// sharpnessPlot draws one normalised sharpness profile per temperature.
func sharpnessPlot(res *analysis.Result, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title + "\nO2-O3 image sharpness vs image index (vs temperature)"
	p.X.Label.Text = "image index"
	p.Y.Label.Text = "normalised gradient magnitude sum (a.u)"

	colors := generateColors(len(res.Samples))
	for i, s := range res.Samples {
		pts := make(plotter.XYs, len(s.Profile.Scores))
		for j, v := range s.Profile.Scores {
			pts[j] = plotter.XY{X: float64(j), Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(fmt.Sprintf("%0.1fC", s.Sample.Actual()), line)
	}
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

// shiftPlot draws the focal plane shift components against temperature.
func shiftPlot(res *analysis.Result) (*plot.Plot, error) {
	fit := res.Drift.Fit
	series := res.Drift.Series

	p := plot.New()
	p.Title.Text = fmt.Sprintf("O3 expansion = %0.2fum per C\n(O3_CLTE_pK=%0.3e)", fit.Slope, fit.CLTE)
	p.X.Label.Text = "temperature (C)"
	p.Y.Label.Text = "focal plane shift (um)"

	curves := []struct {
		label string
		ys    []float64
	}{
		{"data (O2 + O3)", series.DataShift},
		{"O2 drift", series.KnownDrift},
		{"O3 expansion", series.CorrectedShift},
		{"O3 linear fit", series.FittedShift},
	}
	colors := generateColors(len(curves))
	for i, c := range curves {
		pts := make(plotter.XYs, len(c.ys))
		for j, y := range c.ys {
			pts[j] = plotter.XY{X: series.Temperature[j], Y: y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.label, err)
		}
		line.Color = colors[i]
		line.Width = vg.Points(1.5)
		if c.label == "O3 linear fit" {
			line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
		}
		p.Add(line)
		p.Legend.Add(c.label, line)
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = 10
	p.Legend.YOffs = -10
	return p, nil
}

// WriteFigure renders the two-panel figure as PNG.
func WriteFigure(w io.Writer, res *analysis.Result) error {
	top, err := sharpnessPlot(res, Title(res.DataSet))
	if err != nil {
		return err
	}
	bottom, err := shiftPlot(res)
	if err != nil {
		return err
	}

	img := vgimg.NewWith(vgimg.UseWH(figureWidth, figureHeight), vgimg.UseDPI(figureDPI))
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      2,
		Cols:      1,
		PadTop:    vg.Points(20),
		PadBottom: vg.Points(20),
		PadLeft:   vg.Points(20),
		PadRight:  vg.Points(20),
		PadY:      vg.Points(30),
	}
	canvases := plot.Align([][]*plot.Plot{{top}, {bottom}}, tiles, dc)
	top.Draw(canvases[0][0])
	bottom.Draw(canvases[1][0])

	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(w); err != nil {
		return fmt.Errorf("encode figure: %w", err)
	}
	return nil
}

// SaveFigure writes the PNG figure to path on fs.
func SaveFigure(fs fsutil.FileSystem, path string, res *analysis.Result) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create figure file: %w", err)
	}
	if err := WriteFigure(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// generateColors creates a palette of distinct colors, one per line.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
