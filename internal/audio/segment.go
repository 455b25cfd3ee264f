// SPDX-License-Identifier: MIT
/*
Package audio holds the sample container the localization core reads from:
a fixed-rate mono Segment, optionally partitioned into consecutive chunks of
equal size (the last one may be shorter).

Chunks are views into the sample slice, so concatenating them always
reproduces the original signal exactly. Chunking is purely structural: no
resampling or windowing happens here.
*/
package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrIndexOutOfRange is returned when a chunk index is past the last chunk.
	ErrIndexOutOfRange = errors.New("chunk index out of range")
	// ErrInvalidSegment is returned for non-positive sample rates or chunk sizes.
	ErrInvalidSegment = errors.New("invalid audio segment")
)

// Segment is a mono signal at a fixed sample rate.
type Segment struct {
	sampleRate int
	samples    []float64
	chunkSize  int // 0 means unchunked: the whole signal is one chunk.
}

// NewSegment wraps samples (not copied) recorded at sampleRate Hz.
func NewSegment(sampleRate int, samples []float64) (*Segment, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidSegment, sampleRate)
	}
	return &Segment{sampleRate: sampleRate, samples: samples}, nil
}

// SampleRate returns the sample rate in Hz.
func (s *Segment) SampleRate() int { return s.sampleRate }

// NumSamples returns the signal length.
func (s *Segment) NumSamples() int { return len(s.samples) }

// Samples returns the underlying sample slice. Callers must not modify it
// while a localization is running.
func (s *Segment) Samples() []float64 { return s.samples }

// Duration returns the signal length as a time.Duration.
func (s *Segment) Duration() time.Duration {
	return time.Duration(float64(len(s.samples)) / float64(s.sampleRate) * float64(time.Second))
}

// ChunkSize returns the number of samples per chunk; an unchunked segment
// reports its full length.
func (s *Segment) ChunkSize() int {
	if s.chunkSize == 0 {
		return len(s.samples)
	}
	return s.chunkSize
}

// IsChunked reports whether SplitSamples or SplitDuration has been applied.
func (s *Segment) IsChunked() bool { return s.chunkSize > 0 }

// NumChunks returns the number of chunks. An unchunked, non-empty segment
// is a single chunk.
func (s *Segment) NumChunks() int {
	if len(s.samples) == 0 {
		return 0
	}
	if s.chunkSize == 0 {
		return 1
	}
	return (len(s.samples) + s.chunkSize - 1) / s.chunkSize
}

// SplitSamples partitions the segment into chunks of n samples.
func (s *Segment) SplitSamples(n int) error {
	if n <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSegment, n)
	}
	s.chunkSize = n
	return nil
}

// SplitDuration partitions the segment into chunks of duration d, rounded
// to the nearest sample. 1s at 44100 Hz gives 44100-sample chunks.
func (s *Segment) SplitDuration(d time.Duration) error {
	n := int(math.Round(d.Seconds() * float64(s.sampleRate)))
	if n <= 0 {
		return fmt.Errorf("%w: chunk duration %s is shorter than one sample", ErrInvalidSegment, d)
	}
	return s.SplitSamples(n)
}

// Unsplit removes any chunk partition.
func (s *Segment) Unsplit() { s.chunkSize = 0 }

// Chunk returns the samples of chunk i as a view into the segment.
func (s *Segment) Chunk(i int) ([]float64, error) {
	if i < 0 || i >= s.NumChunks() {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, i, s.NumChunks())
	}
	size := s.ChunkSize()
	start := i * size
	end := min(start+size, len(s.samples))
	return s.samples[start:end:end], nil
}

// ChunkStart returns the index of the first sample of chunk i.
func (s *Segment) ChunkStart(i int) int {
	return i * s.ChunkSize()
}

// Chunks returns every chunk in order.
func (s *Segment) Chunks() [][]float64 {
	out := make([][]float64, s.NumChunks())
	for i := range out {
		out[i], _ = s.Chunk(i)
	}
	return out
}

// Trim keeps samples [start, end) in place. The chunk size, if any, is
// kept and the partition recomputed over the shorter signal.
func (s *Segment) Trim(start, end int) error {
	if start < 0 || end > len(s.samples) || start > end {
		return fmt.Errorf("%w: trim [%d, %d) outside [0, %d)", ErrIndexOutOfRange, start, end, len(s.samples))
	}
	s.samples = s.samples[start:end]
	return nil
}
