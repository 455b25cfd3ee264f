// SPDX-License-Identifier: MIT
package localize

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"soundloc/internal/doa"
	"soundloc/internal/geometry"
	"soundloc/internal/log"
	"soundloc/internal/multilat"
	"soundloc/internal/tdoa"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Options configure one Localize or Bearings call.
type Options struct {
	Algorithm     tdoa.Algorithm
	Threshold     float64       // Detection threshold on |sample|.
	ChunkDuration time.Duration // Split recordings by this; 0 keeps the current chunking.
	Interpolation int           // GCC-PHAT upsampling, tdoa.DefaultInterpolation when 0.
	Peak          tdoa.PeakMode
	Window        tdoa.WindowFunc
	Workers       int // Concurrent chunks, runtime.NumCPU() when <= 0.
	Refine        bool
}

// TdoaPair is the TDoA of A relative to B: positive when the sound
// reached A later.
type TdoaPair struct {
	A, B *Microphone
	TDoA float64 // seconds
}

// DoaPair is the bearing of the source relative to the A-B baseline.
type DoaPair struct {
	A, B *Microphone
	DoA  float64 // degrees in [-90, 90]
}

// Estimate is the outcome for one chunk. Position is nil when any pair
// had no detection.
type Estimate struct {
	Chunk       int
	StartSample int
	Position    *geometry.Point
	Inside      bool // Position lies within the environment boundary.
	Rank        int
	Residual    float64
	Pairs       []TdoaPair
}

// Result holds one estimate per chunk in chunk order.
type Result struct {
	RunID      string
	SampleRate int
	ChunkSize  int
	Estimates  []Estimate
}

// Positions returns the estimates keyed by chunk start sample, with nil
// for chunks without a detection.
func (r *Result) Positions() map[int]*geometry.Point {
	out := make(map[int]*geometry.Point, len(r.Estimates))
	for _, est := range r.Estimates {
		out[est.StartSample] = est.Position
	}
	return out
}

// Offset returns the start time of chunk i relative to the first sample.
func (r *Result) Offset(i int) time.Duration {
	if r.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(r.Estimates[i].StartSample) / float64(r.SampleRate) * float64(time.Second))
}

// Detections counts chunks that produced a position.
func (r *Result) Detections() int {
	n := 0
	for _, est := range r.Estimates {
		if est.Position != nil {
			n++
		}
	}
	return n
}

// Localize estimates a source position for every chunk of the recordings.
//
// Chunks are independent and run on a bounded worker pool. A chunk where
// any pair has no detection yields a nil position; a solver error aborts
// the whole call.
func (e *Environment) Localize(ctx context.Context, opts Options) (*Result, error) {
	grid, est, maxTau, err := e.setup(opts)
	if err != nil {
		return nil, err
	}

	res := &Result{
		RunID:      uuid.New().String(),
		SampleRate: grid.sampleRate,
		ChunkSize:  grid.chunkSize,
		Estimates:  make([]Estimate, grid.chunks),
	}
	log.Debugf("run %s: localizing %d chunks of %d samples with %v over %d microphones",
		res.RunID, grid.chunks, grid.chunkSize, opts.Algorithm, len(e.mics))

	solverOpts := multilat.Options{Refine: opts.Refine}
	err = forEachChunk(ctx, grid.chunks, opts.Workers, func(i int) error {
		out := Estimate{Chunk: i, StartSample: i * grid.chunkSize}

		pairs, detected, err := e.chunkTdoa(i, est, opts.Threshold, maxTau)
		if err != nil {
			return err
		}
		if !detected {
			log.Debugf("run %s: chunk %d: no detection", res.RunID, i)
			res.Estimates[i] = out
			return nil
		}

		sol, err := multilat.Solve(measurements(pairs), e.soundSpeed, solverOpts)
		if err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		switch {
		case sol.Reliable():
		case sol.Iterations > 0:
			log.Debugf("run %s: chunk %d: rank %d linear solve, refined in %d iterations", res.RunID, i, sol.Rank, sol.Iterations)
		default:
			log.Warnf("run %s: chunk %d: rank-deficient solve (rank %d)", res.RunID, i, sol.Rank)
		}

		pos := sol.Position
		out.Position = &pos
		out.Inside = e.boundary.Contains(pos)
		out.Rank = sol.Rank
		out.Residual = sol.Residual
		out.Pairs = pairs
		log.Debugf("run %s: chunk %d: %v residual %.4g m", res.RunID, i, pos, sol.Residual)

		res.Estimates[i] = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("run %s: %d/%d chunks localized", res.RunID, res.Detections(), grid.chunks)
	return res, nil
}

// Bearing lists the pairwise bearings of one chunk.
type Bearing struct {
	Chunk       int
	StartSample int
	Pairs       []DoaPair
}

// Bearings computes, per chunk, the DoA of every pair with a detection.
// Each pair uses its own maximum TDoA; pairs whose estimate exceeds it
// are dropped.
func (e *Environment) Bearings(ctx context.Context, opts Options) ([]Bearing, error) {
	grid, est, _, err := e.setup(opts)
	if err != nil {
		return nil, err
	}

	out := make([]Bearing, grid.chunks)
	err = forEachChunk(ctx, grid.chunks, opts.Workers, func(i int) error {
		pairs, err := e.chunkDoa(i, est, opts.Threshold)
		if err != nil {
			return err
		}
		out[i] = Bearing{Chunk: i, StartSample: i * grid.chunkSize, Pairs: pairs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// chunkDoa computes the bearing of every detected pair of chunk i.
func (e *Environment) chunkDoa(i int, est tdoa.Estimator, threshold float64) ([]DoaPair, error) {
	var out []DoaPair
	for _, p := range e.pairs() {
		a, err := p[0].audio.Chunk(i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p[0], err)
		}
		b, err := p[1].audio.Chunk(i)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p[1], err)
		}

		pairTau := e.PairMaxTau(p[0], p[1])
		tau, detected, err := est.Estimate(a, b, threshold, pairTau)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %s/%s: %w", i, p[0], p[1], err)
		}
		if !detected {
			continue
		}

		deg, err := doa.Compute(tau, pairTau)
		if errors.Is(err, doa.ErrValueOutOfRange) {
			log.Warnf("chunk %d: %s/%s: dropping tdoa %.6f s beyond %.6f s", i, p[0], p[1], tau, pairTau)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		out = append(out, DoaPair{A: p[0], B: p[1], DoA: deg})
	}
	return out, nil
}

// setup validates the recordings and builds the estimator for a run.
func (e *Environment) setup(opts Options) (layout, tdoa.Estimator, float64, error) {
	grid, err := e.prepare(opts.ChunkDuration)
	if err != nil {
		return layout{}, nil, 0, err
	}
	maxTau, err := e.MaxTau()
	if err != nil {
		return layout{}, nil, 0, err
	}
	est, err := tdoa.New(opts.Algorithm, grid.sampleRate, tdoa.Options{
		Interpolation: opts.Interpolation,
		Peak:          opts.Peak,
		Window:        opts.Window,
	})
	if err != nil {
		return layout{}, nil, 0, fmt.Errorf("tdoa estimator: %w", err)
	}
	return grid, est, maxTau, nil
}

// chunkTdoa estimates every pair of chunk i. detected is false as soon as
// one pair has no detection.
func (e *Environment) chunkTdoa(i int, est tdoa.Estimator, threshold, maxTau float64) ([]TdoaPair, bool, error) {
	pairs := e.pairs()
	out := make([]TdoaPair, 0, len(pairs))
	for _, p := range pairs {
		a, err := p[0].audio.Chunk(i)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", p[0], err)
		}
		b, err := p[1].audio.Chunk(i)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", p[1], err)
		}

		tau, detected, err := est.Estimate(a, b, threshold, maxTau)
		if err != nil {
			return nil, false, fmt.Errorf("chunk %d: %s/%s: %w", i, p[0], p[1], err)
		}
		if !detected {
			return nil, false, nil
		}
		out = append(out, TdoaPair{A: p[0], B: p[1], TDoA: tau})
	}
	return out, true, nil
}

func measurements(pairs []TdoaPair) []multilat.Measurement {
	ms := make([]multilat.Measurement, len(pairs))
	for i, p := range pairs {
		ms[i] = multilat.Measurement{A: p.A.Position, B: p.B.Position, TDoA: p.TDoA}
	}
	return ms
}

// forEachChunk runs fn for chunks 0..n-1 on at most workers goroutines and
// returns the first error. Cancelling ctx stops scheduling new chunks.
func forEachChunk(ctx context.Context, n, workers int, fn func(i int) error) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
