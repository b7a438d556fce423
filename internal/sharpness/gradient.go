package sharpness

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// gaussianKernel returns the half-kernel of a sampled Gaussian (order 0) or of
// its first derivative (order 1), indexed by offset 0..radius. Weights are
// normalised so the full order-0 kernel sums to 1. The order-1 weights are
// oriented for correlation: out[i] = sum_d w[d] * (in[i+d] - in[i-d]).
func gaussianKernel(sigma float64, order, radius int) []float64 {
	sigma2 := sigma * sigma
	phi := make([]float64, radius+1)
	total := 0.0
	for d := 0; d <= radius; d++ {
		phi[d] = math.Exp(-0.5 / sigma2 * float64(d*d))
		if d == 0 {
			total += phi[d]
		} else {
			total += 2 * phi[d]
		}
	}
	floats.Scale(1/total, phi)
	if order == 0 {
		return phi
	}
	w := make([]float64, radius+1)
	for d := 1; d <= radius; d++ {
		w[d] = float64(d) / sigma2 * phi[d]
	}
	return w
}

// kernelRadius matches the usual truncation rule: int(truncate*sigma + 0.5).
func kernelRadius(sigma, truncate float64) int {
	return int(truncate*sigma + 0.5)
}

// reflect maps an out-of-range index onto [0, n) using half-sample
// symmetric reflection (d c b a | a b c d | d c b a).
func reflect(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// correlate1D filters line into out with the half-kernel w. Symmetric
// kernels (order 0) add mirrored taps, antisymmetric kernels (order 1)
// subtract them, so a constant line has an exactly zero derivative.
func correlate1D(line, out, w []float64, order int) {
	n := len(line)
	radius := len(w) - 1
	for i := 0; i < n; i++ {
		var acc float64
		if order == 0 {
			acc = w[0] * line[i]
		}
		for d := 1; d <= radius; d++ {
			hi := line[reflect(i+d, n)]
			lo := line[reflect(i-d, n)]
			if order == 0 {
				acc += w[d] * (hi + lo)
			} else {
				acc += w[d] * (hi - lo)
			}
		}
		out[i] = acc
	}
}

// filterAxis applies a 1D filter along rows (axis 0, vertical) or columns
// (axis 1, horizontal) of src and returns a new matrix.
func filterAxis(src *mat.Dense, axis int, w []float64, order int) *mat.Dense {
	r, c := src.Dims()
	dst := mat.NewDense(r, c, nil)
	if axis == 1 {
		out := make([]float64, c)
		for i := 0; i < r; i++ {
			correlate1D(src.RawRowView(i), out, w, order)
			dst.SetRow(i, out)
		}
		return dst
	}
	line := make([]float64, r)
	out := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(line, j, src)
		correlate1D(line, out, w, order)
		dst.SetCol(j, out)
	}
	return dst
}

// GradientMagnitude returns the Gaussian gradient magnitude of img: the
// Euclidean norm of the derivative-of-Gaussian responses along both axes,
// with reflected borders.
func GradientMagnitude(img *mat.Dense, sigma, truncate float64) *mat.Dense {
	radius := kernelRadius(sigma, truncate)
	smooth := gaussianKernel(sigma, 0, radius)
	deriv := gaussianKernel(sigma, 1, radius)

	// d/dy: derivative along axis 0, smoothing along axis 1.
	gy := filterAxis(filterAxis(img, 0, deriv, 1), 1, smooth, 0)
	// d/dx: smoothing along axis 0, derivative along axis 1.
	gx := filterAxis(filterAxis(img, 0, smooth, 0), 1, deriv, 1)

	r, c := img.Dims()
	mag := mat.NewDense(r, c, nil)
	mag.Apply(func(i, j int, _ float64) float64 {
		return math.Hypot(gx.At(i, j), gy.At(i, j))
	}, mag)
	return mag
}

// Normalize divides img by its own maximum so that it spans [0, 1].
func Normalize(img *mat.Dense) (*mat.Dense, error) {
	peak := mat.Max(img)
	if peak <= 0 {
		return nil, ErrZeroIntensitySlice
	}
	var out mat.Dense
	out.Scale(1/peak, img)
	return &out, nil
}
