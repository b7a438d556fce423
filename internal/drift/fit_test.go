package drift

import (
	"errors"
	"math"
	"testing"

	"github.com/banshee-data/focusdrift/internal/testutil"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
)

func TestFitLine_RecoversSlopeAndIntercept(t *testing.T) {
	t.Parallel()

	x := []float64{20, 22.5, 25, 31, 40}
	y := make([]float64, len(x))
	for i, v := range x {
		y[i] = 3.0*v + 7.0
	}

	l, err := FitLine(x, y)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, l.Slope, 1e-9)
	assert.InDelta(t, 7.0, l.Intercept, 1e-9)
	assert.InDelta(t, 1.0, l.RSquared, 1e-12)
	assert.InDelta(t, 0.0, l.SlopeStdErr, 1e-9)
	assert.Equal(t, 5, l.N)
	assert.InDelta(t, 97.0, l.At(30), 1e-9)
}

func TestFitLine_TwoPoints(t *testing.T) {
	t.Parallel()

	l, err := FitLine([]float64{1, 3}, []float64{2, 6})
	require.NoError(t, err)
	assert.InDelta(t, 2.0, l.Slope, 1e-12)
	assert.InDelta(t, 0.0, l.Intercept, 1e-12)
	assert.True(t, math.IsNaN(l.SlopeStdErr))
}

func TestFitLine_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		x, y []float64
		want error
	}{
		{"single sample", []float64{20}, []float64{1}, ErrInsufficientSamples},
		{"no samples", nil, nil, ErrInsufficientSamples},
		{"identical temperatures", []float64{25, 25, 25}, []float64{1, 2, 3}, ErrInsufficientSamples},
		{"near identical temperatures", []float64{25, 25 + 1e-12, 25}, []float64{1, 2, 3}, ErrDegenerateFit},
		{"nan input", []float64{20, math.NaN(), 30}, []float64{1, 2, 3}, ErrDegenerateFit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FitLine(tt.x, tt.y)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	_, err := FitLine([]float64{1, 2}, []float64{1})
	assert.Error(t, err)
}

func TestKnownDrift_ReferenceIsZero(t *testing.T) {
	t.Parallel()

	secondary := []float64{21.3, 22.1, 23.9, 20.4}
	for ref := range secondary {
		known, err := KnownDrift(secondary, DefaultCalibrationUmPerC, ref)
		require.NoError(t, err)
		assert.Equal(t, 0.0, known[ref])
		for i := range secondary {
			want := DefaultCalibrationUmPerC * (secondary[i] - secondary[ref])
			assert.InDelta(t, want, known[i], 1e-12)
		}
	}

	_, err := KnownDrift(secondary, 1, len(secondary))
	assert.ErrorIs(t, err, ErrInvalidReference)
	_, err = KnownDrift(secondary, 1, -1)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestShift(t *testing.T) {
	t.Parallel()

	depths := []float64{0.25, 1.5, 0.5, 1.0}
	testutil.AssertFloatsNear(t, Shift(depths, ShiftFromMax), []float64{1.25, 0, 1.0, 0.5}, 0)
	testutil.AssertFloatsNear(t, Shift(depths, ShiftFromMin), []float64{0, 1.25, 0.25, 0.75}, 0)
	assert.Empty(t, Shift(nil, ShiftFromMax))
}

func TestCLTE_InverseInLength(t *testing.T) {
	t.Parallel()

	single, err := CLTE(-0.5, DefaultReferenceLengthMM)
	require.NoError(t, err)
	double, err := CLTE(-0.5, 2*DefaultReferenceLengthMM)
	require.NoError(t, err)
	assert.InDelta(t, single/2, double, 1e-18)
	assert.InDelta(t, -0.5/108150.0, single, 1e-15)

	for _, bad := range []float64{0, -1, math.NaN()} {
		_, err := CLTE(1, bad)
		assert.ErrorIs(t, err, ErrInvalidLength)
	}
}

func observations(temps, secondary, depths []float64) []Observation {
	obs := make([]Observation, len(temps))
	for i := range temps {
		obs[i] = Observation{
			Temperature:          temps[i],
			SecondaryTemperature: secondary[i],
			FocalIndex:           int(depths[i] / 0.25),
			FocalDepth:           depths[i],
		}
	}
	return obs
}

func TestAnalyze_NoCalibration(t *testing.T) {
	t.Parallel()

	obs := observations(
		[]float64{20, 25, 30},
		[]float64{20, 25, 30},
		[]float64{0.25, 0.5, 1.0},
	)
	cfg := DefaultConfig()
	cfg.CalibrationUmPerC = 0

	res, err := Analyze(obs, cfg)
	require.NoError(t, err)

	want := []FocalEstimate{
		{Index: 1, Depth: 0.25, KnownDrift: 0, CorrectedDepth: 0.25},
		{Index: 2, Depth: 0.5, KnownDrift: 0, CorrectedDepth: 0.5},
		{Index: 4, Depth: 1.0, KnownDrift: 0, CorrectedDepth: 1.0},
	}
	if diff := cmp.Diff(want, res.Estimates, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("estimates mismatch (-want +got):\n%s", diff)
	}
	testutil.AssertFloatsNear(t, res.Series.CorrectedShift, []float64{0.75, 0.5, 0}, 1e-12)
	testutil.AssertFloatsNear(t, res.Series.DataShift, []float64{0.75, 0.5, 0}, 1e-12)
	assert.InDelta(t, -0.075, res.Fit.Slope, 1e-12)
	assert.InDelta(t, -0.075/(1e3*DefaultReferenceLengthMM), res.Fit.CLTE, 1e-15)
	testutil.AssertFloatsNear(t, res.Series.FittedShift, []float64{
		res.Fit.At(20), res.Fit.At(25), res.Fit.At(30),
	}, 0)
}

func TestAnalyze_RemovesKnownDrift(t *testing.T) {
	t.Parallel()

	// O2 runs 0.5 °C warmer per °C of stage; the observed focus includes
	// the O2 drift which must come back out before fitting.
	temps := []float64{22, 24, 26, 28, 30}
	secondary := make([]float64, len(temps))
	depths := make([]float64, len(temps))
	const expansion = -0.4 // µm of focal depth per °C from O3
	for i, T := range temps {
		secondary[i] = 21 + 0.5*(T-22)
		o2 := DefaultCalibrationUmPerC * (secondary[i] - secondary[0])
		depths[i] = 50 + expansion*(T-22) - o2
	}

	res, err := Analyze(observations(temps, secondary, depths), DefaultConfig())
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Estimates[0].KnownDrift)
	for i, e := range res.Estimates {
		assert.InDelta(t, 50+expansion*(temps[i]-22), e.CorrectedDepth, 1e-9)
	}
	// Corrected depth falls with temperature, so the shift from the deepest
	// plane rises at the same rate.
	assert.InDelta(t, -expansion, res.Fit.Slope, 1e-9)
	assert.InDelta(t, 1.0, res.Fit.RSquared, 1e-9)

	maxIdx := 0
	for i, e := range res.Estimates {
		if e.CorrectedDepth > res.Estimates[maxIdx].CorrectedDepth {
			maxIdx = i
		}
	}
	assert.Equal(t, 0.0, res.Series.CorrectedShift[maxIdx])
	testutil.AssertFloatsNear(t, res.Series.KnownDrift, []float64{0, 1.58, 3.16, 4.74, 6.32}, 1e-9)
}

func TestAnalyze_AlternativeBaselines(t *testing.T) {
	t.Parallel()

	obs := observations(
		[]float64{20, 25, 30},
		[]float64{19, 21, 23},
		[]float64{1.0, 1.5, 2.5},
	)

	cfg := DefaultConfig()
	cfg.ReferenceIndex = 2
	res, err := Analyze(obs, cfg)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Estimates[2].KnownDrift)
	assert.InDelta(t, -4*DefaultCalibrationUmPerC, res.Estimates[0].KnownDrift, 1e-12)

	base := DefaultConfig()
	fromMax, err := Analyze(obs, base)
	require.NoError(t, err)
	base.Convention = ShiftFromMin
	fromMin, err := Analyze(obs, base)
	require.NoError(t, err)
	// The two conventions mirror each other: same magnitude, opposite sign.
	assert.InDelta(t, -fromMax.Fit.Slope, fromMin.Fit.Slope, 1e-12)
	assert.Equal(t, 0.0, floats.Min(fromMin.Series.CorrectedShift))

	cfg.ReferenceIndex = 3
	_, err = Analyze(obs, cfg)
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestAnalyze_Errors(t *testing.T) {
	t.Parallel()

	one := observations([]float64{25}, []float64{25}, []float64{1})
	_, err := Analyze(one, DefaultConfig())
	assert.ErrorIs(t, err, ErrInsufficientSamples)

	same := observations([]float64{25, 25}, []float64{25, 26}, []float64{1, 2})
	_, err = Analyze(same, DefaultConfig())
	assert.ErrorIs(t, err, ErrInsufficientSamples)
	assert.NotErrorIs(t, err, ErrDegenerateFit)

	two := observations([]float64{20, 30}, []float64{20, 30}, []float64{1, 2})
	cfg := DefaultConfig()
	cfg.ReferenceLengthMM = 0
	_, err = Analyze(two, cfg)
	assert.ErrorIs(t, err, ErrInvalidLength)

	cfg = DefaultConfig()
	cfg.Convention = "sideways"
	_, err = Analyze(two, cfg)
	assert.Error(t, err)
}
