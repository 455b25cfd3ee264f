// SPDX-License-Identifier: MIT
/*
Package multilat turns pairwise TDoA measurements into a 2-D source
position.

The solve runs in two linear least-squares steps:

 1. Relative arrival times. Every measurement says tA - tB = tau. With the
    reference microphone pinned at t = 0 the arrival time of every other
    microphone follows from all measurements at once, so redundant pairs
    average out instead of being ignored.

 2. Hyperbolic system. With range differences d_i = c*(t_i - t_ref),
    subtracting the squared-distance equations of microphone i and the
    reference gives one equation linear in (x, y, r_ref):

    2(m_i - m_ref)·s + 2*d_i*r_ref = |m_i|² - |m_ref|² - d_i²

Both steps use the minimum-norm SVD solution, so rank-deficient geometry
(collinear microphones, too few independent pairs) still returns an
estimate; Solution.Rank tells the caller how much to trust it.

A Gauss-Newton pass then minimizes the hyperbolic residuals
|s-mA| - |s-mB| - c*tau directly. It runs on request (noisy TDoAs) and
always when the linear system is rank-deficient but the microphones are
not collinear, e.g. three microphones giving two rows for three unknowns.
*/
package multilat

import (
	"errors"
	"fmt"
	"math"

	"soundloc/internal/geometry"

	"gonum.org/v1/gonum/mat"
)

// ErrInsufficientMeasurements is returned with fewer than two usable
// measurements, or when they span fewer than three microphones.
var ErrInsufficientMeasurements = errors.New("insufficient tdoa measurements")

// Unknowns is the size of the linear system: x, y and the reference range.
const Unknowns = 3

const (
	defaultMaxIterations = 20
	defaultRankTolerance = 1e-10
)

// Measurement is one pairwise TDoA: arrival at A minus arrival at B.
type Measurement struct {
	A, B geometry.Point
	TDoA float64 // seconds
}

// Options tune the solver. The zero value is the plain linear solve.
type Options struct {
	Refine        bool    // Always run Gauss-Newton after the linear solve.
	MaxIterations int     // Gauss-Newton cap, 20 when 0.
	RankTolerance float64 // Relative singular value cutoff, 1e-10 when 0.
}

// Solution is a position estimate with quality indicators.
type Solution struct {
	Position   geometry.Point
	Rank       int     // Effective rank of the hyperbolic system, at most Unknowns.
	Residual   float64 // RMS range-difference residual at Position, metres.
	Iterations int     // Gauss-Newton iterations run.
}

// Reliable reports whether the hyperbolic system had full rank.
func (s Solution) Reliable() bool {
	return s.Rank == Unknowns
}

// Solve estimates the source position from ms at the given speed of sound.
func Solve(ms []Measurement, soundSpeed float64, opts Options) (Solution, error) {
	if len(ms) < 2 {
		return Solution{}, fmt.Errorf("%w: need at least 2, got %d", ErrInsufficientMeasurements, len(ms))
	}
	if soundSpeed <= 0 {
		return Solution{}, fmt.Errorf("sound speed must be positive, got %g", soundSpeed)
	}
	if opts.MaxIterations == 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.RankTolerance == 0 {
		opts.RankTolerance = defaultRankTolerance
	}

	mics, ref, used := connectedMics(ms)
	if len(mics) < 3 {
		return Solution{}, fmt.Errorf("%w: measurements span %d microphones", ErrInsufficientMeasurements, len(mics))
	}

	times, err := arrivalTimes(used, mics, ref, opts.RankTolerance)
	if err != nil {
		return Solution{}, err
	}

	pos, rank, err := hyperbolic(mics, ref, times, soundSpeed, opts.RankTolerance)
	if err != nil {
		return Solution{}, err
	}

	sol := Solution{Position: pos, Rank: rank}
	if opts.Refine || (rank < Unknowns && !collinear(mics)) {
		sol.Position, sol.Iterations = refine(used, pos, soundSpeed, opts)
	}
	sol.Residual = rmsResidual(used, sol.Position, soundSpeed)
	return sol, nil
}

// connectedMics returns the microphones reachable from the reference
// through measurements, the reference index, and the measurements whose
// endpoints are both reachable. The reference is the microphone appearing
// in the most measurements (first seen on ties).
func connectedMics(ms []Measurement) ([]geometry.Point, int, []Measurement) {
	var order []geometry.Point
	degree := map[geometry.Point]int{}
	adj := map[geometry.Point][]geometry.Point{}
	for _, m := range ms {
		if m.A == m.B {
			continue
		}
		for _, p := range []geometry.Point{m.A, m.B} {
			if _, seen := degree[p]; !seen {
				order = append(order, p)
			}
			degree[p]++
		}
		adj[m.A] = append(adj[m.A], m.B)
		adj[m.B] = append(adj[m.B], m.A)
	}
	if len(order) == 0 {
		return nil, 0, nil
	}

	root := order[0]
	for _, p := range order[1:] {
		if degree[p] > degree[root] {
			root = p
		}
	}

	reached := map[geometry.Point]bool{root: true}
	queue := []geometry.Point{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, q := range adj[p] {
			if !reached[q] {
				reached[q] = true
				queue = append(queue, q)
			}
		}
	}

	var mics []geometry.Point
	ref := 0
	for _, p := range order {
		if reached[p] {
			if p == root {
				ref = len(mics)
			}
			mics = append(mics, p)
		}
	}

	var used []Measurement
	for _, m := range ms {
		if m.A != m.B && reached[m.A] && reached[m.B] {
			used = append(used, m)
		}
	}
	return mics, ref, used
}

// collinear reports whether all points lie on one line, within a
// tolerance relative to their spread.
func collinear(points []geometry.Point) bool {
	base := points[0]
	far := base
	for _, p := range points[1:] {
		if p.Distance(base) > far.Distance(base) {
			far = p
		}
	}
	span := far.Distance(base)
	if span == 0 {
		return true
	}
	for _, p := range points {
		cross := (far.X-base.X)*(p.Y-base.Y) - (far.Y-base.Y)*(p.X-base.X)
		if math.Abs(cross)/span > 1e-9*span {
			return false
		}
	}
	return true
}

// arrivalTimes solves tA - tB = tau in the least-squares sense with the
// reference pinned at zero. The result is indexed like mics.
func arrivalTimes(ms []Measurement, mics []geometry.Point, ref int, rcond float64) ([]float64, error) {
	col := map[geometry.Point]int{}
	c := 0
	for i, p := range mics {
		if i == ref {
			continue
		}
		col[p] = c
		c++
	}

	a := mat.NewDense(len(ms), c, nil)
	b := mat.NewVecDense(len(ms), nil)
	for row, m := range ms {
		if j, ok := col[m.A]; ok {
			a.Set(row, j, 1)
		}
		if j, ok := col[m.B]; ok {
			a.Set(row, j, -1)
		}
		b.SetVec(row, m.TDoA)
	}

	x, _, err := solveMinNorm(a, b, rcond)
	if err != nil {
		return nil, fmt.Errorf("arrival time solve: %w", err)
	}

	times := make([]float64, len(mics))
	for i, p := range mics {
		if i != ref {
			times[i] = x.AtVec(col[p])
		}
	}
	return times, nil
}

// hyperbolic solves the linearized range-difference system for (x, y, r_ref).
func hyperbolic(mics []geometry.Point, ref int, times []float64, c, rcond float64) (geometry.Point, int, error) {
	m0 := mics[ref]
	rows := len(mics) - 1
	a := mat.NewDense(rows, Unknowns, nil)
	b := mat.NewVecDense(rows, nil)

	row := 0
	for i, mi := range mics {
		if i == ref {
			continue
		}
		d := c * (times[i] - times[ref])
		a.Set(row, 0, 2*(mi.X-m0.X))
		a.Set(row, 1, 2*(mi.Y-m0.Y))
		a.Set(row, 2, 2*d)
		b.SetVec(row, mi.Norm2()-m0.Norm2()-d*d)
		row++
	}

	x, rank, err := solveMinNorm(a, b, rcond)
	if err != nil {
		return geometry.Point{}, 0, fmt.Errorf("hyperbolic solve: %w", err)
	}
	return geometry.Pt(x.AtVec(0), x.AtVec(1)), rank, nil
}

// refine runs damped Gauss-Newton on the hyperbolic residuals starting
// from start. A step that does not lower the cost is halved up to eight
// times before the iteration stops.
func refine(ms []Measurement, start geometry.Point, c float64, opts Options) (geometry.Point, int) {
	s := start
	cost := sumSquares(ms, s, c)

	iter := 0
	for iter < opts.MaxIterations {
		iter++
		j := mat.NewDense(len(ms), 2, nil)
		r := mat.NewVecDense(len(ms), nil)
		for row, m := range ms {
			da := s.Distance(m.A)
			db := s.Distance(m.B)
			r.SetVec(row, -(da - db - c*m.TDoA))
			if da > 0 {
				j.Set(row, 0, (s.X-m.A.X)/da)
				j.Set(row, 1, (s.Y-m.A.Y)/da)
			}
			if db > 0 {
				j.Set(row, 0, j.At(row, 0)-(s.X-m.B.X)/db)
				j.Set(row, 1, j.At(row, 1)-(s.Y-m.B.Y)/db)
			}
		}

		step, _, err := solveMinNorm(j, r, opts.RankTolerance)
		if err != nil {
			break
		}

		accepted := false
		scale := 1.0
		for range 8 {
			next := geometry.Pt(s.X+scale*step.AtVec(0), s.Y+scale*step.AtVec(1))
			if nc := sumSquares(ms, next, c); nc < cost {
				s, cost, accepted = next, nc, true
				break
			}
			scale /= 2
		}
		if !accepted || scale*math.Hypot(step.AtVec(0), step.AtVec(1)) < 1e-12*(1+math.Hypot(s.X, s.Y)) {
			break
		}
	}
	return s, iter
}

func sumSquares(ms []Measurement, s geometry.Point, c float64) float64 {
	var sum float64
	for _, m := range ms {
		e := s.Distance(m.A) - s.Distance(m.B) - c*m.TDoA
		sum += e * e
	}
	return sum
}

func rmsResidual(ms []Measurement, s geometry.Point, c float64) float64 {
	if len(ms) == 0 {
		return 0
	}
	return math.Sqrt(sumSquares(ms, s, c) / float64(len(ms)))
}

// solveMinNorm returns the minimum-norm least-squares solution of a*x = b
// and the effective rank of a.
func solveMinNorm(a *mat.Dense, b *mat.VecDense, rcond float64) (*mat.VecDense, int, error) {
	_, cols := a.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, 0, errors.New("svd factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return mat.NewVecDense(cols, nil), 0, nil
	}
	var x mat.VecDense
	svd.SolveVecTo(&x, b, rank)
	return &x, rank, nil
}
