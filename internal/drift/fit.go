package drift

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// minRelativeVariance guards against line fits over temperatures that are
// numerically indistinguishable.
const minRelativeVariance = 1e-12

// Line is a least-squares fit y = Slope*x + Intercept.
type Line struct {
	Slope     float64
	Intercept float64
	RSquared  float64
	// SlopeStdErr is the standard error of the slope. It is NaN for two
	// points, where the residual variance is undefined.
	SlopeStdErr float64
	N           int
}

// At evaluates the line at x.
func (l Line) At(x float64) float64 { return l.Slope*x + l.Intercept }

// FitLine fits y against x by ordinary least squares.
func FitLine(x, y []float64) (Line, error) {
	if len(x) != len(y) {
		return Line{}, fmt.Errorf("x has %d values, y has %d", len(x), len(y))
	}
	if len(x) < 2 {
		return Line{}, fmt.Errorf("got %d: %w", len(x), ErrInsufficientSamples)
	}
	if !finite(x...) || !finite(y...) {
		return Line{}, fmt.Errorf("non-finite input: %w", ErrDegenerateFit)
	}
	if floats.Max(x) == floats.Min(x) {
		return Line{}, fmt.Errorf("all %d samples at %g: %w", len(x), x[0], ErrInsufficientSamples)
	}

	mean := stat.Mean(x, nil)
	variance := stat.PopVariance(x, nil)
	scale := math.Max(1, mean*mean)
	if variance <= minRelativeVariance*scale {
		return Line{}, fmt.Errorf("variance %g: %w", variance, ErrDegenerateFit)
	}

	alpha, beta := stat.LinearRegression(x, y, nil, false)
	if !finite(alpha, beta) {
		return Line{}, fmt.Errorf("slope %g intercept %g: %w", beta, alpha, ErrDegenerateFit)
	}

	l := Line{Slope: beta, Intercept: alpha, N: len(x), SlopeStdErr: math.NaN()}
	if floats.Max(y) == floats.Min(y) {
		l.RSquared = 1
	} else {
		l.RSquared = stat.RSquared(x, y, nil, alpha, beta)
	}
	if len(x) > 2 {
		var ssr float64
		for i := range x {
			r := y[i] - l.At(x[i])
			ssr += r * r
		}
		sxx := variance * float64(len(x))
		l.SlopeStdErr = math.Sqrt(ssr / float64(len(x)-2) / sxx)
	}
	return l, nil
}

// Series holds the aligned per-sample sequences used for plotting and export.
type Series struct {
	Temperature    []float64 // actual primary temperature, °C
	DataShift      []float64 // shift of the raw focal depths (O2 + O3), µm
	KnownDrift     []float64 // O2 drift alone, µm
	CorrectedShift []float64 // shift after removing O2 drift (O3 expansion), µm
	FittedShift    []float64 // linear fit evaluated at each temperature, µm
}

// Fit is the result of the expansion fit.
type Fit struct {
	Line
	// CLTE is the coefficient of linear thermal expansion in 1/K.
	CLTE float64
}

// Result bundles the per-sample estimates, the fit and the plot series.
type Result struct {
	Estimates []FocalEstimate
	Fit       Fit
	Series    Series
	Config    Config
}

// Analyze decomposes the observations, fits the corrected shift against
// temperature and derives the CLTE.
func Analyze(obs []Observation, cfg Config) (Result, error) {
	if len(obs) < 2 {
		return Result{}, fmt.Errorf("got %d: %w", len(obs), ErrInsufficientSamples)
	}
	if cfg.Convention == "" {
		cfg.Convention = ShiftFromMax
	}
	if !cfg.Convention.Valid() {
		return Result{}, fmt.Errorf("unknown shift convention %q", cfg.Convention)
	}
	if !(cfg.ReferenceLengthMM > 0) {
		return Result{}, fmt.Errorf("%g mm: %w", cfg.ReferenceLengthMM, ErrInvalidLength)
	}

	estimates, err := Decompose(obs, cfg)
	if err != nil {
		return Result{}, err
	}

	n := len(obs)
	temps := make([]float64, n)
	focal := make([]float64, n)
	corrected := make([]float64, n)
	known := make([]float64, n)
	for i, o := range obs {
		temps[i] = o.Temperature
		focal[i] = estimates[i].Depth
		corrected[i] = estimates[i].CorrectedDepth
		known[i] = estimates[i].KnownDrift
	}
	correctedShift := Shift(corrected, cfg.Convention)

	line, err := FitLine(temps, correctedShift)
	if err != nil {
		return Result{}, err
	}
	clte, err := CLTE(line.Slope, cfg.ReferenceLengthMM)
	if err != nil {
		return Result{}, err
	}

	fitted := make([]float64, n)
	for i, t := range temps {
		fitted[i] = line.At(t)
	}

	return Result{
		Estimates: estimates,
		Fit:       Fit{Line: line, CLTE: clte},
		Series: Series{
			Temperature:    temps,
			DataShift:      Shift(focal, cfg.Convention),
			KnownDrift:     known,
			CorrectedShift: correctedShift,
			FittedShift:    fitted,
		},
		Config: cfg,
	}, nil
}
