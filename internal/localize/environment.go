// SPDX-License-Identifier: MIT
/*
Package localize ties the pieces together: an Environment is a bounded
listening area holding fixed Microphones, each with one recording. Localize
walks the recordings chunk by chunk, estimates the TDoA of every microphone
pair and hands the pairs to the multilateration solver.
*/
package localize

import (
	"errors"
	"fmt"
	"time"

	"soundloc/internal/audio"
	"soundloc/internal/geometry"
)

// DefaultSoundSpeed is the speed of sound in air at about 20 °C, in m/s.
const DefaultSoundSpeed = 343.2

var (
	// ErrInsufficientMicrophones is returned when an operation needs at
	// least two microphones.
	ErrInsufficientMicrophones = errors.New("insufficient microphones")
	// ErrInsufficientGeometry is returned when a microphone lies outside the
	// boundary or on top of another microphone.
	ErrInsufficientGeometry = errors.New("insufficient microphone geometry")
	// ErrMicrophoneAudioMismatch is returned when recordings disagree in
	// sample rate, length or chunking, or a microphone has none.
	ErrMicrophoneAudioMismatch = errors.New("microphone audio mismatch")
)

// Microphone is a fixed sensor with one recording.
type Microphone struct {
	Name      string
	Position  geometry.Point
	StartTime time.Time // Wall-clock time of the first sample, zero if unknown.

	audio *audio.Segment
}

// SetAudio replaces the microphone's recording.
func (m *Microphone) SetAudio(seg *audio.Segment) {
	m.audio = seg
}

// Audio returns the recording, nil when none was set.
func (m *Microphone) Audio() *audio.Segment {
	return m.audio
}

func (m *Microphone) String() string {
	if m.Name != "" {
		return m.Name
	}
	return m.Position.String()
}

// Environment is a polygonal area with its microphones.
type Environment struct {
	name       string
	boundary   *geometry.Polygon
	soundSpeed float64
	mics       []*Microphone
}

// NewEnvironment creates an empty environment bounded by the given polygon.
func NewEnvironment(name string, boundary []geometry.Point) (*Environment, error) {
	pg, err := geometry.NewPolygon(boundary)
	if err != nil {
		return nil, fmt.Errorf("environment %q: %w", name, err)
	}
	return &Environment{
		name:       name,
		boundary:   pg,
		soundSpeed: DefaultSoundSpeed,
	}, nil
}

// Name returns the environment name.
func (e *Environment) Name() string { return e.name }

// Boundary returns the polygon microphones must lie in.
func (e *Environment) Boundary() *geometry.Polygon { return e.boundary }

// SoundSpeed returns the propagation speed in m/s.
func (e *Environment) SoundSpeed() float64 { return e.soundSpeed }

// SetSoundSpeed sets the propagation speed in m/s.
func (e *Environment) SetSoundSpeed(c float64) error {
	if c <= 0 {
		return fmt.Errorf("sound speed must be positive, got %g", c)
	}
	e.soundSpeed = c
	return nil
}

// Microphones returns the microphones in insertion order.
func (e *Environment) Microphones() []*Microphone {
	out := make([]*Microphone, len(e.mics))
	copy(out, e.mics)
	return out
}

// AddMicrophone places a new microphone at (x, y). The position must be
// inside the boundary and not already taken.
func (e *Environment) AddMicrophone(x, y float64, name string) (*Microphone, error) {
	p := geometry.Pt(x, y)
	if !e.boundary.Contains(p) {
		return nil, fmt.Errorf("%w: %v is outside %q", ErrInsufficientGeometry, p, e.name)
	}
	for _, m := range e.mics {
		if m.Position == p {
			return nil, fmt.Errorf("%w: %v already taken by %s", ErrInsufficientGeometry, p, m)
		}
	}
	m := &Microphone{Name: name, Position: p}
	e.mics = append(e.mics, m)
	return m, nil
}

// MaxTau returns the largest physically possible TDoA between any two
// microphones.
func (e *Environment) MaxTau() (float64, error) {
	if len(e.mics) < 2 {
		return 0, fmt.Errorf("%w: have %d, need 2", ErrInsufficientMicrophones, len(e.mics))
	}
	points := make([]geometry.Point, len(e.mics))
	for i, m := range e.mics {
		points[i] = m.Position
	}
	return geometry.MaxPairDistance(points) / e.soundSpeed, nil
}

// PairMaxTau returns the largest possible TDoA between a and b.
func (e *Environment) PairMaxTau(a, b *Microphone) float64 {
	return a.Position.Distance(b.Position) / e.soundSpeed
}

// pairs returns every unordered microphone pair in insertion order.
func (e *Environment) pairs() [][2]*Microphone {
	var out [][2]*Microphone
	for i := range e.mics {
		for j := i + 1; j < len(e.mics); j++ {
			out = append(out, [2]*Microphone{e.mics[i], e.mics[j]})
		}
	}
	return out
}

// layout is the chunk grid shared by all recordings.
type layout struct {
	sampleRate int
	chunks     int
	chunkSize  int
}

// prepare splits every recording by chunk (when non-zero) and checks that
// all of them share one chunk grid.
func (e *Environment) prepare(chunk time.Duration) (layout, error) {
	if len(e.mics) < 2 {
		return layout{}, fmt.Errorf("%w: have %d, need 2", ErrInsufficientMicrophones, len(e.mics))
	}

	var ref layout
	var refSamples int
	for i, m := range e.mics {
		seg := m.audio
		if seg == nil {
			return layout{}, fmt.Errorf("%w: %s has no audio", ErrMicrophoneAudioMismatch, m)
		}
		if chunk > 0 {
			if err := seg.SplitDuration(chunk); err != nil {
				return layout{}, fmt.Errorf("split %s: %w", m, err)
			}
		}
		l := layout{
			sampleRate: seg.SampleRate(),
			chunks:     seg.NumChunks(),
			chunkSize:  seg.ChunkSize(),
		}
		if i == 0 {
			ref, refSamples = l, seg.NumSamples()
			continue
		}
		if l != ref || seg.NumSamples() != refSamples {
			return layout{}, fmt.Errorf("%w: %s has %d Hz, %d samples in %d chunks of %d; %s has %d Hz, %d samples in %d chunks of %d",
				ErrMicrophoneAudioMismatch,
				m, l.sampleRate, seg.NumSamples(), l.chunks, l.chunkSize,
				e.mics[0], ref.sampleRate, refSamples, ref.chunks, ref.chunkSize)
		}
	}
	return ref, nil
}
