// SPDX-License-Identifier: MIT

// Package doa converts a microphone pair's TDoA into a bearing.
package doa

import (
	"errors"
	"fmt"
	"math"
)

// ErrValueOutOfRange is returned when a TDoA is larger than the pair
// geometry allows. It is never clamped.
var ErrValueOutOfRange = errors.New("tdoa exceeds maximum possible delay")

// Compute returns the direction of arrival in degrees for tdoa seconds,
// asin(tdoa/maxTau). The result lies in [-90, 90]; 0 is broadside to the
// pair and ±90 is along its axis.
func Compute(tdoa, maxTau float64) (float64, error) {
	if maxTau <= 0 {
		return 0, fmt.Errorf("%w: max tau must be positive, got %g", ErrValueOutOfRange, maxTau)
	}
	if math.IsNaN(tdoa) || math.Abs(tdoa) > maxTau {
		return 0, fmt.Errorf("%w: |%g| > %g", ErrValueOutOfRange, tdoa, maxTau)
	}
	return math.Asin(tdoa/maxTau) * 180 / math.Pi, nil
}

// MaxTau is the largest physical delay between two microphones distance
// metres apart.
func MaxTau(distance, soundSpeed float64) float64 {
	return distance / soundSpeed
}
