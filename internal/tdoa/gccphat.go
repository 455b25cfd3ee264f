// SPDX-License-Identifier: MIT
package tdoa

import (
	"fmt"
	"math/cmplx"

	"soundloc/pkg/bitint"
	"soundloc/pkg/utils"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
)

// phatFloor is the cross-spectrum magnitude below which a bin is treated as
// empty instead of being normalized to unit magnitude.
const phatFloor = 1e-12

// GCCPHAT estimates TDoA with the generalized cross-correlation and phase
// transform: the cross spectrum is whitened to unit magnitude so only phase
// alignment contributes, which keeps the peak sharp under reverberation.
//
// Each call allocates its own FFT workspace, so a GCCPHAT value may be
// shared across goroutines.
type GCCPHAT struct {
	sampleRate int
	interp     int
	peak       PeakMode
	window     WindowFunc
}

var _ Estimator = (*GCCPHAT)(nil)

// Correlation is the lag-ordered GCC-PHAT curve for one window pair.
// Curve[MaxShift] is lag zero; each step is 1/(Interpolation*SampleRate) s.
type Correlation struct {
	Curve         []float64
	MaxShift      int
	Interpolation int
	SampleRate    int
}

// NewGCCPHAT returns a GCC-PHAT estimator.
func NewGCCPHAT(sampleRate int, opts Options) (*GCCPHAT, error) {
	interp := opts.Interpolation
	if interp == 0 {
		interp = DefaultInterpolation
	}
	if interp < 1 {
		return nil, fmt.Errorf("interpolation factor must be >= 1, got %d", interp)
	}
	return &GCCPHAT{
		sampleRate: sampleRate,
		interp:     interp,
		peak:       opts.Peak,
		window:     opts.Window,
	}, nil
}

// Estimate implements Estimator. Silence in either window (peak magnitude
// below threshold, or all zeros whatever the threshold) is reported as no
// detection before any correlation.
func (g *GCCPHAT) Estimate(a, b []float64, threshold, maxTau float64) (float64, bool, error) {
	if err := checkWindows(a, b); err != nil {
		return 0, false, err
	}
	if len(a) == 0 {
		return 0, false, nil
	}
	peakA, peakB := utils.MaxAbs(a), utils.MaxAbs(b)
	if peakA == 0 || peakB == 0 || peakA < threshold || peakB < threshold {
		return 0, false, nil
	}

	corr, err := g.Correlate(a, b, maxTau)
	if err != nil {
		return 0, false, err
	}
	return corr.Lag(corr.PeakIndex(g.peak)), true, nil
}

// Correlate computes the GCC-PHAT curve of a against b, restricted to lags
// within ±maxTau (unbounded when maxTau <= 0).
func (g *GCCPHAT) Correlate(a, b []float64, maxTau float64) (*Correlation, error) {
	if err := checkWindows(a, b); err != nil {
		return nil, err
	}
	if len(a) == 0 {
		return nil, fmt.Errorf("%w: empty windows", ErrWindowMismatch)
	}

	// --- 1. Zero-pad (and optionally window) both inputs ---
	n := bitint.PaddedLength(len(a), len(b))
	padA := make([]float64, n)
	padB := make([]float64, n)
	copy(padA, a)
	copy(padB, b)
	applyWindow(padA[:len(a)], g.window)
	applyWindow(padB[:len(b)], g.window)

	// --- 2. Cross spectrum with phase transform ---
	fft := fourier.NewFFT(n)
	specA := fft.Coefficients(nil, padA)
	specB := fft.Coefficients(nil, padB)

	m := g.interp * n
	cross := make([]complex128, m/2+1) // Bins above n/2 stay zero: interpolation.
	for k := range specA {
		r := specA[k] * cmplx.Conj(specB[k])
		if mag := cmplx.Abs(r); mag > phatFloor {
			cross[k] = r / complex(mag, 0)
		}
	}

	// --- 3. Back to the (upsampled) lag domain ---
	cc := fourier.NewFFT(m).Sequence(nil, cross)

	maxShift := m / 2
	if maxTau > 0 {
		if limit := int(float64(g.interp) * float64(g.sampleRate) * maxTau); limit < maxShift {
			maxShift = limit
		}
	}

	// --- 4. Reorder circular lags to [-maxShift, +maxShift] ---
	curve := make([]float64, 2*maxShift+1)
	for k := range curve {
		curve[k] = cc[(k-maxShift+m)%m]
	}

	return &Correlation{
		Curve:         curve,
		MaxShift:      maxShift,
		Interpolation: g.interp,
		SampleRate:    g.sampleRate,
	}, nil
}

// PeakIndex returns the curve index of the peak for the given mode.
func (c *Correlation) PeakIndex(mode PeakMode) int {
	if mode == PeakAbs {
		return utils.FindPeakAbsBin(c.Curve, 0, len(c.Curve)-1)
	}
	return floats.MaxIdx(c.Curve)
}

// Lag converts a curve index into seconds.
func (c *Correlation) Lag(index int) float64 {
	return float64(index-c.MaxShift) / float64(c.Interpolation*c.SampleRate)
}
