package testutil

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultSliceSize is the edge length of fixture slices in pixels.
const DefaultSliceSize = 32

// stripePeriod is the width in pixels of one light+dark stripe pair.
const stripePeriod = 8

// StripeSlice returns a size x size image of vertical stripes on a constant
// background. Pixel values are 1 + contrast*pattern, so after normalisation by
// the slice maximum the edge content grows monotonically with contrast.
func StripeSlice(size int, contrast float64) *mat.Dense {
	img := mat.NewDense(size, size, nil)
	for i := 0; i < size; i++ {
		for j := 0; j < size; j++ {
			v := 1.0
			if (j/(stripePeriod/2))%2 == 0 {
				v += contrast
			}
			img.Set(i, j, v)
		}
	}
	return img
}

// FocusedStack returns n stripe slices whose contrast peaks at slice focus
// and falls off as 1/(1+|i-focus|), mimicking defocus on either side.
func FocusedStack(n, focus, size int) []*mat.Dense {
	slices := make([]*mat.Dense, n)
	for i := range slices {
		contrast := 1 / (1 + math.Abs(float64(i-focus)))
		slices[i] = StripeSlice(size, contrast)
	}
	return slices
}

// ConstantStack returns n uniformly bright slices with no edge content.
func ConstantStack(n, size int, value float64) []*mat.Dense {
	slices := make([]*mat.Dense, n)
	for i := range slices {
		img := mat.NewDense(size, size, nil)
		for k := 0; k < size; k++ {
			for j := 0; j < size; j++ {
				img.Set(k, j, value)
			}
		}
		slices[i] = img
	}
	return slices
}

// DepthGrid returns n depths starting at start with a fixed step, in µm.
func DepthGrid(start, step float64, n int) []float64 {
	depths := make([]float64, n)
	for i := range depths {
		depths[i] = start + float64(i)*step
	}
	return depths
}
