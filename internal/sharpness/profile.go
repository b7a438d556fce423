// Package sharpness scores the focus quality of every slice in a depth stack
// and locates the sharpest slice. The score is the sum of the Gaussian
// gradient magnitude over a slice normalised by its own maximum, so it tracks
// edge content rather than exposure.
package sharpness

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Error kinds reported by ScoreStack. They are wrapped with the offending
// slice index where one exists.
var (
	ErrEmptyStack         = errors.New("depth stack has no slices")
	ErrInconsistentShape  = errors.New("slice shape differs from first slice")
	ErrZeroIntensitySlice = errors.New("slice maximum intensity is zero")
)

// Default filter parameters.
const (
	DefaultSigma    = 2.0
	DefaultTruncate = 4.0
)

// DepthStack is an ordered series of same-shape intensity images taken at
// increasing focus depth. Depths holds the physical depth of each slice in µm
// and may be nil when only indices matter.
type DepthStack struct {
	Slices []*mat.Dense
	Depths []float64
}

// Len returns the number of slices.
func (s DepthStack) Len() int { return len(s.Slices) }

// Validate checks the stack invariants without scoring it.
func (s DepthStack) Validate() error {
	if len(s.Slices) == 0 {
		return ErrEmptyStack
	}
	if s.Depths != nil && len(s.Depths) != len(s.Slices) {
		return fmt.Errorf("stack has %d slices but %d depths", len(s.Slices), len(s.Depths))
	}
	r0, c0 := s.Slices[0].Dims()
	for i, sl := range s.Slices[1:] {
		if r, c := sl.Dims(); r != r0 || c != c0 {
			return fmt.Errorf("slice %d is %dx%d, want %dx%d: %w", i+1, r, c, r0, c0, ErrInconsistentShape)
		}
	}
	return nil
}

// Options tunes the scorer. Zero values select the defaults.
type Options struct {
	Sigma    float64 // smoothing scale in pixels
	Truncate float64 // kernel half-width in units of Sigma
	Workers  int     // slices scored concurrently; 0 means GOMAXPROCS
}

func (o Options) withDefaults() Options {
	if o.Sigma <= 0 {
		o.Sigma = DefaultSigma
	}
	if o.Truncate <= 0 {
		o.Truncate = DefaultTruncate
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// Profile is the per-slice sharpness of one stack.
type Profile struct {
	// Scores are the raw scores divided by their maximum, so the sharpest
	// slice scores exactly 1.
	Scores []float64
	// Raw holds the un-normalised gradient magnitude sums.
	Raw []float64
	// Index is the first slice holding the maximum score.
	Index int
	// Flat is set when every slice scored the same. A stack with no edge
	// content at all (every raw score zero) is reported as uniformly 1.
	Flat bool
}

// Len returns the number of scored slices.
func (p Profile) Len() int { return len(p.Scores) }

// ScoreSlice returns the raw sharpness score of a single image.
func ScoreSlice(img *mat.Dense, opts Options) (float64, error) {
	opts = opts.withDefaults()
	norm, err := Normalize(img)
	if err != nil {
		return 0, err
	}
	return mat.Sum(GradientMagnitude(norm, opts.Sigma, opts.Truncate)), nil
}

// ScoreStack scores every slice of stack and selects the sharpest one.
// Scores are independent of the worker count.
func ScoreStack(stack DepthStack, opts Options) (Profile, error) {
	if err := stack.Validate(); err != nil {
		return Profile{}, err
	}
	opts = opts.withDefaults()

	raw := make([]float64, stack.Len())
	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, sl := range stack.Slices {
		g.Go(func() error {
			score, err := ScoreSlice(sl, opts)
			if err != nil {
				return fmt.Errorf("slice %d: %w", i, err)
			}
			raw[i] = score
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Profile{}, err
	}
	return NewProfile(raw), nil
}

// NewProfile normalises raw scores by their maximum and picks the first
// maximum as the sharpest slice.
func NewProfile(raw []float64) Profile {
	p := Profile{Raw: raw, Scores: make([]float64, len(raw))}
	if len(raw) == 0 {
		return p
	}
	peak := floats.Max(raw)
	p.Flat = floats.Min(raw) == peak
	if peak == 0 {
		for i := range p.Scores {
			p.Scores[i] = 1
		}
		return p
	}
	for i, v := range raw {
		p.Scores[i] = v / peak
	}
	p.Index = floats.MaxIdx(raw)
	return p
}
