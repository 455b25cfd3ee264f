// SPDX-License-Identifier: MIT
/*
Package tdoa estimates the time difference of arrival between two
microphones from a pair of equal-length sample windows.

Two strategies implement the Estimator interface:
  - Threshold: first sample above an amplitude threshold in each window.
  - GCCPHAT: generalized cross-correlation with phase transform, with
    zero-padded spectral interpolation for sub-sample resolution.

The sign convention is shared: a positive result means the sound reached
window a after window b.
*/
package tdoa

import (
	"errors"
	"fmt"
	"strings"
)

// ErrWindowMismatch is returned when the two windows differ in length.
var ErrWindowMismatch = errors.New("tdoa windows differ in length")

// DefaultInterpolation is the GCC-PHAT upsampling factor.
const DefaultInterpolation = 16

// Estimator is implemented by every TDoA strategy.
type Estimator interface {
	// Estimate returns the delay of a relative to b in seconds. detected is
	// false when either window carries no signal above threshold. maxTau
	// bounds the search where the strategy supports it; <= 0 means unbounded.
	Estimate(a, b []float64, threshold, maxTau float64) (seconds float64, detected bool, err error)
}

// Algorithm selects an Estimator strategy.
type Algorithm int

const (
	AlgorithmThreshold Algorithm = iota
	AlgorithmGCCPHAT
)

func (a Algorithm) String() string {
	switch a {
	case AlgorithmThreshold:
		return "threshold"
	case AlgorithmGCCPHAT:
		return "gcc_phat"
	default:
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
}

// ParseAlgorithm converts a name (case-insensitive) to an Algorithm.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "threshold":
		return AlgorithmThreshold, nil
	case "gcc_phat", "gcc-phat", "gccphat", "phat":
		return AlgorithmGCCPHAT, nil
	default:
		return AlgorithmThreshold, fmt.Errorf("unknown tdoa algorithm: '%s'", name)
	}
}

// PeakMode chooses how GCC-PHAT picks the correlation peak.
type PeakMode int

const (
	// PeakMax takes argmax(cc).
	PeakMax PeakMode = iota
	// PeakAbs takes argmax(|cc|), which also finds troughs caused by a 180°
	// phase inversion between microphones.
	PeakAbs
)

func (p PeakMode) String() string {
	if p == PeakAbs {
		return "abs"
	}
	return "max"
}

// ParsePeakMode converts "max" or "abs" to a PeakMode.
func ParsePeakMode(name string) (PeakMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "max":
		return PeakMax, nil
	case "abs":
		return PeakAbs, nil
	default:
		return PeakMax, fmt.Errorf("unknown peak mode: '%s'", name)
	}
}

// Options tune the GCC-PHAT strategy; Threshold ignores them.
type Options struct {
	Interpolation int // Upsampling factor, DefaultInterpolation when 0.
	Peak          PeakMode
	Window        WindowFunc
}

// New builds the Estimator for alg at the given sample rate.
func New(alg Algorithm, sampleRate int, opts Options) (Estimator, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}
	switch alg {
	case AlgorithmThreshold:
		return NewThreshold(sampleRate), nil
	case AlgorithmGCCPHAT:
		return NewGCCPHAT(sampleRate, opts)
	default:
		return nil, fmt.Errorf("unsupported tdoa algorithm %v", alg)
	}
}

func checkWindows(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d != %d", ErrWindowMismatch, len(a), len(b))
	}
	return nil
}
