// Package analysis runs a focus-vs-temperature study end to end: it loads
// each temperature's depth stack, finds the in-focus slice and hands the
// ordered focal depths to the drift fitter.
package analysis

import (
	"context"
	"fmt"
	"log"
	"runtime"

	"github.com/banshee-data/focusdrift/internal/acquisition"
	"github.com/banshee-data/focusdrift/internal/drift"
	"github.com/banshee-data/focusdrift/internal/sharpness"
	"golang.org/x/sync/errgroup"
)

// StackLoader loads the depth stack stored at path.
type StackLoader interface {
	LoadStack(path string) (sharpness.DepthStack, error)
}

// Inputs describes one analysis run.
type Inputs struct {
	Samples []acquisition.TemperatureSample
	Source  acquisition.DataSource
	Loader  StackLoader
	Scoring sharpness.Options
	Drift   drift.Config
	// Workers bounds how many stacks are loaded and scored at once.
	// 0 means GOMAXPROCS.
	Workers int
	// Quiet suppresses the per-sample log lines.
	Quiet bool
}

// SampleResult is the focus detection outcome for one temperature.
type SampleResult struct {
	Sample   acquisition.TemperatureSample
	Path     string
	Profile  sharpness.Profile
	Estimate drift.FocalEstimate
}

// Result is the outcome of a run, with samples in input order.
type Result struct {
	DataSet string
	Samples []SampleResult
	Drift   drift.Result
}

// Observations returns the fitter inputs derived from the samples.
func (r *Result) Observations() []drift.Observation {
	obs := make([]drift.Observation, len(r.Samples))
	for i, s := range r.Samples {
		obs[i] = drift.Observation{
			Temperature:          s.Sample.Actual(),
			SecondaryTemperature: s.Sample.ActualSecondary(),
			FocalIndex:           s.Estimate.Index,
			FocalDepth:           s.Estimate.Depth,
		}
	}
	return obs
}

// focalDepth maps a slice index to its stage depth. Stacks without a depth
// grid report the index itself.
func focalDepth(stack sharpness.DepthStack, idx int) float64 {
	if idx < len(stack.Depths) {
		return stack.Depths[idx]
	}
	return float64(idx)
}

// profileSample loads and scores one sample.
func profileSample(in Inputs, s acquisition.TemperatureSample) (SampleResult, error) {
	path := in.Source.StackPath(s)
	stack, err := in.Loader.LoadStack(path)
	if err != nil {
		return SampleResult{}, err
	}
	p, err := sharpness.ScoreStack(stack, in.Scoring)
	if err != nil {
		return SampleResult{}, err
	}
	return SampleResult{
		Sample:  s,
		Path:    path,
		Profile: p,
		Estimate: drift.FocalEstimate{
			Index: p.Index,
			Depth: focalDepth(stack, p.Index),
		},
	}, nil
}

// Run profiles every sample and fits the drift model. Samples are processed
// concurrently but results keep input order; the first failing sample
// aborts the run.
func Run(ctx context.Context, in Inputs) (*Result, error) {
	if in.Source == nil || in.Loader == nil {
		return nil, fmt.Errorf("analysis needs a data source and a stack loader")
	}
	if len(in.Samples) < 2 {
		return nil, fmt.Errorf("got %d samples: %w", len(in.Samples), drift.ErrInsufficientSamples)
	}
	workers := in.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	// Stacks are already scored in parallel, so slices run one at a time
	// inside each sample unless asked otherwise.
	if in.Scoring.Workers == 0 && workers > 1 {
		in.Scoring.Workers = 1
	}

	// O2 drift depends only on the recorded temperatures, so it is known
	// before any stack is profiled.
	secondary := make([]float64, len(in.Samples))
	for i, s := range in.Samples {
		secondary[i] = s.ActualSecondary()
	}
	known, err := drift.KnownDrift(secondary, in.Drift.CalibrationUmPerC, in.Drift.ReferenceIndex)
	if err != nil {
		return nil, fmt.Errorf("drift fit: %w", err)
	}

	res := &Result{DataSet: in.Source.Name(), Samples: make([]SampleResult, len(in.Samples))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, s := range in.Samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sr, err := profileSample(in, s)
			if err != nil {
				return fmt.Errorf("sample %d (%.1fC): %w", i, s.Setpoint, err)
			}
			res.Samples[i] = sr
			if !in.Quiet {
				log.Printf("temp=%0.2fC, focal plane index = %d (%0.2fum, O2=%0.2fum)",
					s.Actual(), sr.Estimate.Index, sr.Estimate.Depth, known[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fit, err := drift.Analyze(res.Observations(), in.Drift)
	if err != nil {
		return nil, fmt.Errorf("drift fit: %w", err)
	}
	res.Drift = fit
	for i := range res.Samples {
		res.Samples[i].Estimate = fit.Estimates[i]
	}
	if !in.Quiet {
		log.Printf("O3_focal_plane_shift_umpC = %0.2f", fit.Fit.Slope)
		log.Printf("O3_CLTE_pK = %0.3e", fit.Fit.CLTE)
	}
	return res, nil
}
