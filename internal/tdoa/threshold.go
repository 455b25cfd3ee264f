// SPDX-License-Identifier: MIT
package tdoa

import "math"

// Threshold estimates TDoA from the first sample in each window whose
// magnitude exceeds the threshold. It is exact for clean impulsive sources
// and cheap, but sensitive to level differences between microphones.
type Threshold struct {
	sampleRate int
}

var _ Estimator = (*Threshold)(nil)

// NewThreshold returns a threshold-crossing estimator.
func NewThreshold(sampleRate int) *Threshold {
	return &Threshold{sampleRate: sampleRate}
}

// Estimate implements Estimator. maxTau is not used.
func (t *Threshold) Estimate(a, b []float64, threshold, _ float64) (float64, bool, error) {
	if err := checkWindows(a, b); err != nil {
		return 0, false, err
	}

	ia := FirstCrossing(a, threshold)
	if ia < 0 {
		return 0, false, nil
	}
	ib := FirstCrossing(b, threshold)
	if ib < 0 {
		return 0, false, nil
	}

	return float64(ia-ib) / float64(t.sampleRate), true, nil
}

// FirstCrossing returns the index of the first sample with |x| > threshold,
// or -1 when there is none.
func FirstCrossing(samples []float64, threshold float64) int {
	for i, s := range samples {
		if math.Abs(s) > threshold {
			return i
		}
	}
	return -1
}
