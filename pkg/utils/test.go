// SPDX-License-Identifier: MIT

// Package utils holds signal helpers shared by the estimators and their
// tests: synthetic fixtures (tones, impulses, bursts, noise), integer
// delays, and peak searches.
package utils

import (
	"math"
	"math/rand/v2"
	"sync"
)

// MockTransport implements the transport.Transport interface for testing.
// It keeps every payload it receives.
type MockTransport struct {
	mu     sync.Mutex
	Sent   []any
	Closed bool
}

// Send records data instead of transmitting it.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Messages returns a copy of everything sent so far.
func (m *MockTransport) Messages() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]any, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// GenerateSineWave returns size samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = amplitude * math.Sin(2*math.Pi*frequency*t)
	}
	return buffer
}

// GenerateImpulse returns size zero samples with a single spike at index at.
func GenerateImpulse(size, at int, amplitude float64) []float64 {
	buffer := make([]float64, size)
	if at >= 0 && at < size {
		buffer[at] = amplitude
	}
	return buffer
}

// GenerateBurst returns a Hann-shaped tone burst of length samples starting
// at start, silent elsewhere. Useful as a broadband-ish transient.
func GenerateBurst(size, start, length int, sampleRate, frequency, amplitude float64) []float64 {
	buffer := make([]float64, size)
	for i := range length {
		n := start + i
		if n < 0 || n >= size {
			continue
		}
		env := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(length-1)))
		buffer[n] = amplitude * env * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate)
	}
	return buffer
}

// GenerateNoise returns uniform noise in [-level, level] from a seeded
// source so fixtures are reproducible.
func GenerateNoise(size int, level float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = level * (2*rng.Float64() - 1)
	}
	return buffer
}

// Delay shifts signal by d samples (negative d advances it), filling the
// vacated samples with zeros. The length is preserved.
func Delay(signal []float64, d int) []float64 {
	out := make([]float64, len(signal))
	for i := range out {
		src := i - d
		if src >= 0 && src < len(signal) {
			out[i] = signal[src]
		}
	}
	return out
}

// Mix adds b into a copy of a. The result has the length of a.
func Mix(a, b []float64) []float64 {
	out := make([]float64, len(a))
	copy(out, a)
	for i := range out {
		if i < len(b) {
			out[i] += b[i]
		}
	}
	return out
}

// MaxAbs returns the largest absolute sample value, 0 for empty input.
func MaxAbs(samples []float64) float64 {
	var peak float64
	for _, s := range samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// FindPeakBin returns the index of the largest value in values[startBin:endBin+1].
// Bounds are clamped; ties keep the first occurrence.
func FindPeakBin(values []float64, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := values[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if values[bin] > peakValue {
			peakValue = values[bin]
			peakBin = bin
		}
	}

	return peakBin
}

// FindPeakAbsBin is FindPeakBin on |values|.
func FindPeakAbsBin(values []float64, startBin, endBin int) int {
	if len(values) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(values) {
		endBin = len(values) - 1
	}

	peakBin := startBin
	peakValue := math.Abs(values[startBin])

	for bin := startBin + 1; bin <= endBin; bin++ {
		if v := math.Abs(values[bin]); v > peakValue {
			peakValue = v
			peakBin = bin
		}
	}

	return peakBin
}
