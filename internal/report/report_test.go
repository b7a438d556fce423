package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"image/png"
	"strconv"
	"strings"
	"testing"

	"github.com/banshee-data/focusdrift/internal/acquisition"
	"github.com/banshee-data/focusdrift/internal/analysis"
	"github.com/banshee-data/focusdrift/internal/drift"
	"github.com/banshee-data/focusdrift/internal/fsutil"
	"github.com/banshee-data/focusdrift/internal/sharpness"
	"github.com/banshee-data/focusdrift/internal/units"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleResult builds a three-sample result without touching image data.
func sampleResult(t *testing.T) *analysis.Result {
	t.Helper()
	temps := []float64{20, 25, 30}
	focus := []int{1, 2, 4}
	res := &analysis.Result{DataSet: "cropped"}
	for i, temp := range temps {
		raw := make([]float64, 5)
		for j := range raw {
			raw[j] = 1 / (1 + float64(abs(j-focus[i])))
		}
		p := sharpness.NewProfile(raw)
		res.Samples = append(res.Samples, analysis.SampleResult{
			Sample: acquisition.TemperatureSample{
				Setpoint:  temp,
				Primary:   [2]float64{temp, temp},
				Secondary: [2]float64{21, 21},
			},
			Profile:  p,
			Estimate: drift.FocalEstimate{Index: focus[i], Depth: 0.25 * float64(focus[i])},
		})
	}
	fit, err := drift.Analyze(res.Observations(), drift.DefaultConfig())
	require.NoError(t, err)
	res.Drift = fit
	for i := range res.Samples {
		res.Samples[i].Estimate = fit.Estimates[i]
	}
	return res
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "AMS-AGY_v2_focus_vs_temperature_data_cropped", Title("cropped"))
	assert.Equal(t, "AMS-AGY_v2_focus_vs_temperature_data", Title("full"))
}

func TestSummary(t *testing.T) {
	res := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, res, units.UM, units.PerK))
	out := buf.String()

	assert.Contains(t, out, fmt.Sprintf("O3_focal_plane_shift_umpC = %0.2f\n", res.Drift.Fit.Slope))
	assert.Contains(t, out, "O3_CLTE_pK = -6.935e-07 (1/K)")
	assert.Contains(t, out, "data set: cropped (3 samples)")
	// Header plus one row per sample before the blank separator.
	table := strings.SplitN(out, "\n\n", 2)[0]
	assert.Len(t, strings.Split(table, "\n"), 4)

	buf.Reset()
	require.NoError(t, Summary(&buf, res, units.NM, units.PPMPerK))
	assert.Contains(t, buf.String(), "(ppm/K)")
	assert.Contains(t, buf.String(), "focal(nm)")
	assert.Contains(t, buf.String(), "O3_focal_plane_shift_umpC", "fit line stays in µm")

	assert.Error(t, Summary(&buf, res, "furlong", units.PerK))
}

func TestWriteCSV(t *testing.T) {
	res := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res, units.UM))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader(units.UM), rows[0])
	assert.Equal(t, "focal_depth_um", rows[0][4])
	assert.Equal(t, []string{"20", "20", "21", "1", "0.25", "0", "0.25", "0.75", "0.75"}, rows[1][:9])
	assert.Equal(t, "0", rows[3][8], "deepest focal plane has zero shift")
}

func TestWriteCSV_DepthUnit(t *testing.T) {
	res := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res, units.NM))
	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "focal_depth_nm", rows[0][4])
	assert.Equal(t, "1", rows[1][3], "indices are not scaled")
	depth, err := strconv.ParseFloat(rows[1][4], 64)
	require.NoError(t, err)
	assert.InDelta(t, 250, depth, 1e-9)

	assert.Error(t, WriteCSV(&buf, res, "furlong"))
}

func TestWriteFigure(t *testing.T) {
	res := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, WriteFigure(&buf, res))

	cfg, err := png.DecodeConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 1275, cfg.Width)
	assert.Equal(t, 1650, cfg.Height)
}

func TestSaveFigure(t *testing.T) {
	res := sampleResult(t)
	fs := fsutil.NewMemoryFileSystem()

	require.NoError(t, SaveFigure(fs, "/out/figure.png", res))
	data, err := fs.ReadFile("/out/figure.png")
	require.NoError(t, err)
	_, err = png.DecodeConfig(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestRenderHTML(t *testing.T) {
	res := sampleResult(t)

	var buf bytes.Buffer
	require.NoError(t, RenderHTML(&buf, res))
	out := buf.String()

	assert.Contains(t, out, "echarts")
	assert.Contains(t, out, Title("cropped"))
	assert.Contains(t, out, "O3 linear fit")
	assert.Contains(t, out, "20.0C")
}

func TestGenerateColors(t *testing.T) {
	assert.Nil(t, generateColors(0))

	colors := generateColors(6)
	require.Len(t, colors, 6)
	seen := map[[3]uint32]bool{}
	for _, c := range colors {
		r, g, b, a := c.RGBA()
		assert.Equal(t, uint32(0xffff), a)
		seen[[3]uint32{r, g, b}] = true
	}
	assert.Len(t, seen, 6)
}

func TestHSLToRGB(t *testing.T) {
	tests := []struct {
		h, s, l  float64
		r, g, bl uint8
	}{
		{0, 0, 0.5, 127, 127, 127},
		{0, 1, 0.5, 255, 0, 0},
		{1.0 / 3.0, 1, 0.5, 0, 255, 0},
		{2.0 / 3.0, 1, 0.5, 0, 0, 255},
	}
	for _, tt := range tests {
		r, g, b := hslToRGB(tt.h, tt.s, tt.l)
		assert.Equal(t, []uint8{tt.r, tt.g, tt.bl}, []uint8{r, g, b}, "hsl(%v,%v,%v)", tt.h, tt.s, tt.l)
	}
}
