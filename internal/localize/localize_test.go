// SPDX-License-Identifier: MIT
package localize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"soundloc/internal/audio"
	"soundloc/internal/geometry"
	"soundloc/internal/multilat"
	"soundloc/internal/tdoa"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRate  = 16000
	testChunk = 1600 // 100 ms
	onset     = 100
)

var room = []geometry.Point{
	geometry.Pt(0, 0),
	geometry.Pt(10, 0),
	geometry.Pt(10, 10),
	geometry.Pt(0, 10),
}

func newRoom(t *testing.T, positions ...geometry.Point) *Environment {
	t.Helper()
	env, err := NewEnvironment("room", room)
	require.NoError(t, err)
	for i, p := range positions {
		_, err := env.AddMicrophone(p.X, p.Y, fmt.Sprintf("mic%d", i))
		require.NoError(t, err)
	}
	return env
}

func cornerRoom(t *testing.T) *Environment {
	return newRoom(t,
		geometry.Pt(1, 1),
		geometry.Pt(9, 1),
		geometry.Pt(9, 9),
		geometry.Pt(1, 9),
	)
}

// render gives every microphone a recording with one impulse per chunk,
// delayed by the propagation time from that chunk's source. nil sources
// leave the chunk silent.
func render(t *testing.T, env *Environment, sources []*geometry.Point) {
	t.Helper()
	for _, m := range env.Microphones() {
		samples := make([]float64, len(sources)*testChunk)
		for k, src := range sources {
			if src == nil {
				continue
			}
			delay := int(math.Round(src.Distance(m.Position) / env.SoundSpeed() * testRate))
			samples[k*testChunk+onset+delay] = 1
		}
		seg, err := audio.NewSegment(testRate, samples)
		require.NoError(t, err)
		m.SetAudio(seg)
	}
}

func ptr(x, y float64) *geometry.Point {
	p := geometry.Pt(x, y)
	return &p
}

func TestNewEnvironment(t *testing.T) {
	_, err := NewEnvironment("line", room[:2])
	require.ErrorIs(t, err, geometry.ErrDegeneratePolygon)

	env, err := NewEnvironment("room", room)
	require.NoError(t, err)
	assert.Equal(t, "room", env.Name())
	assert.Equal(t, DefaultSoundSpeed, env.SoundSpeed())
	assert.Empty(t, env.Microphones())
}

func TestAddMicrophone(t *testing.T) {
	env := newRoom(t)

	m, err := env.AddMicrophone(2, 3, "a")
	require.NoError(t, err)
	assert.Equal(t, geometry.Pt(2, 3), m.Position)
	assert.Equal(t, "a", m.String())

	tests := []struct {
		name string
		x, y float64
	}{
		{"outside", 11, 5},
		{"negative", -1, 5},
		{"duplicate", 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.AddMicrophone(tt.x, tt.y, tt.name)
			require.ErrorIs(t, err, ErrInsufficientGeometry)
		})
	}
	assert.Len(t, env.Microphones(), 1)
}

func TestMaxTau(t *testing.T) {
	env := newRoom(t, geometry.Pt(1, 1))
	_, err := env.MaxTau()
	require.ErrorIs(t, err, ErrInsufficientMicrophones)

	_, err = env.AddMicrophone(4, 5, "")
	require.NoError(t, err)
	require.NoError(t, env.SetSoundSpeed(5))

	tau, err := env.MaxTau()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, tau, 1e-12)

	mics := env.Microphones()
	assert.InDelta(t, 1.0, env.PairMaxTau(mics[0], mics[1]), 1e-12)
}

func TestSetSoundSpeed(t *testing.T) {
	env := newRoom(t)
	require.Error(t, env.SetSoundSpeed(0))
	require.Error(t, env.SetSoundSpeed(-343))
	assert.Equal(t, DefaultSoundSpeed, env.SoundSpeed())
	require.NoError(t, env.SetSoundSpeed(340))
	assert.Equal(t, 340.0, env.SoundSpeed())
}

func TestLocalizeInsufficientMicrophones(t *testing.T) {
	env := newRoom(t, geometry.Pt(1, 1))
	render(t, env, []*geometry.Point{ptr(5, 5)})
	_, err := env.Localize(context.Background(), Options{Threshold: 0.5})
	require.ErrorIs(t, err, ErrInsufficientMicrophones)
}

func TestLocalizeTwoMicrophonesCannotSolve(t *testing.T) {
	env := newRoom(t, geometry.Pt(1, 1), geometry.Pt(9, 1))
	render(t, env, []*geometry.Point{ptr(5, 5)})
	_, err := env.Localize(context.Background(), Options{Threshold: 0.5})
	require.ErrorIs(t, err, multilat.ErrInsufficientMeasurements)
}

func TestLocalizeAudioMismatch(t *testing.T) {
	segment := func(rate, n int) *audio.Segment {
		seg, err := audio.NewSegment(rate, make([]float64, n))
		require.NoError(t, err)
		return seg
	}

	tests := []struct {
		name   string
		second *audio.Segment
		opts   Options
	}{
		{"missing audio", nil, Options{}},
		{"sample rate", segment(8000, 3200), Options{}},
		{"length", segment(testRate, 3000), Options{}},
		{"chunk count", segment(testRate, 4800), Options{ChunkDuration: 100 * time.Millisecond}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newRoom(t, geometry.Pt(1, 1), geometry.Pt(9, 1), geometry.Pt(5, 9))
			mics := env.Microphones()
			mics[0].SetAudio(segment(testRate, 3200))
			mics[1].SetAudio(tt.second)
			mics[2].SetAudio(segment(testRate, 3200))

			_, err := env.Localize(context.Background(), tt.opts)
			require.ErrorIs(t, err, ErrMicrophoneAudioMismatch)
		})
	}
}

func TestLocalizeMovingSource(t *testing.T) {
	sources := []*geometry.Point{ptr(3, 4), nil, ptr(7, 2), ptr(5.5, 8)}
	tolerance := 0.01 * geometry.Pt(0, 0).Distance(geometry.Pt(10, 10))

	algorithms := []tdoa.Algorithm{tdoa.AlgorithmThreshold, tdoa.AlgorithmGCCPHAT}
	for _, alg := range algorithms {
		for _, refine := range []bool{false, true} {
			t.Run(fmt.Sprintf("%v/refine=%v", alg, refine), func(t *testing.T) {
				env := cornerRoom(t)
				render(t, env, sources)

				res, err := env.Localize(context.Background(), Options{
					Algorithm:     alg,
					Threshold:     0.5,
					ChunkDuration: 100 * time.Millisecond,
					Refine:        refine,
				})
				require.NoError(t, err)
				require.Len(t, res.Estimates, len(sources))
				assert.Equal(t, testRate, res.SampleRate)
				assert.Equal(t, testChunk, res.ChunkSize)
				assert.Equal(t, 3, res.Detections())

				positions := res.Positions()
				require.Len(t, positions, len(sources))
				for k, src := range sources {
					got, ok := positions[k*testChunk]
					require.True(t, ok, "missing key for chunk %d", k)
					if src == nil {
						assert.Nil(t, got, "chunk %d", k)
						continue
					}
					require.NotNil(t, got, "chunk %d", k)
					assert.Less(t, got.Distance(*src), tolerance, "chunk %d: got %v want %v", k, got, src)
					assert.True(t, res.Estimates[k].Inside)
					assert.Len(t, res.Estimates[k].Pairs, 6)
				}
			})
		}
	}
}

func TestLocalizeUnchunkedIsOneChunk(t *testing.T) {
	env := cornerRoom(t)
	render(t, env, []*geometry.Point{ptr(6, 3)})

	res, err := env.Localize(context.Background(), Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, res.Estimates, 1)
	require.Contains(t, res.Positions(), 0)
	assert.NotNil(t, res.Positions()[0])
}

func TestLocalizeWorkersAgree(t *testing.T) {
	sources := []*geometry.Point{ptr(2, 2), ptr(8, 3), nil, ptr(4, 7), ptr(6, 6), nil, ptr(1.5, 8.5)}

	run := func(workers int) *Result {
		env := cornerRoom(t)
		render(t, env, sources)
		res, err := env.Localize(context.Background(), Options{
			Algorithm:     tdoa.AlgorithmGCCPHAT,
			Threshold:     0.5,
			ChunkDuration: 100 * time.Millisecond,
			Workers:       workers,
		})
		require.NoError(t, err)
		return res
	}

	serial := run(1)
	parallel := run(4)
	if diff := cmp.Diff(serial.Positions(), parallel.Positions()); diff != "" {
		t.Errorf("positions differ between 1 and 4 workers (-serial +parallel):\n%s", diff)
	}
	assert.NotEqual(t, serial.RunID, parallel.RunID)
	_, err := uuid.Parse(serial.RunID)
	require.NoError(t, err)
}

func TestLocalizeCancelled(t *testing.T) {
	env := cornerRoom(t)
	render(t, env, []*geometry.Point{ptr(3, 3), ptr(4, 4)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := env.Localize(ctx, Options{Threshold: 0.5, ChunkDuration: 100 * time.Millisecond})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestResultOffset(t *testing.T) {
	res := &Result{
		SampleRate: testRate,
		Estimates:  []Estimate{{StartSample: 0}, {StartSample: 8000}},
	}
	assert.Equal(t, time.Duration(0), res.Offset(0))
	assert.Equal(t, 500*time.Millisecond, res.Offset(1))
}

func TestBearings(t *testing.T) {
	env := newRoom(t, geometry.Pt(1, 5), geometry.Pt(9, 5))
	render(t, env, []*geometry.Point{ptr(5, 9), ptr(7, 5), nil})

	bearings, err := env.Bearings(context.Background(), Options{
		Threshold:     0.5,
		ChunkDuration: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Len(t, bearings, 3)

	require.Len(t, bearings[0].Pairs, 1)
	assert.InDelta(t, 0, bearings[0].Pairs[0].DoA, 0.5)

	// The source sits on the baseline, 6 m from the first microphone and
	// 2 m from the second: asin(4/8) = 30°.
	require.Len(t, bearings[1].Pairs, 1)
	assert.InDelta(t, 30, bearings[1].Pairs[0].DoA, 0.5)
	assert.Equal(t, testChunk, bearings[1].StartSample)

	assert.Empty(t, bearings[2].Pairs)
}

func TestBearingsDropsImpossibleDelay(t *testing.T) {
	env := newRoom(t, geometry.Pt(1, 5), geometry.Pt(9, 5))
	mics := env.Microphones()

	// 400 samples at 16 kHz is 25 ms, more than 8 m of baseline allows.
	a := make([]float64, testChunk)
	b := make([]float64, testChunk)
	a[onset] = 1
	b[onset+400] = 1
	for i, samples := range [][]float64{a, b} {
		seg, err := audio.NewSegment(testRate, samples)
		require.NoError(t, err)
		mics[i].SetAudio(seg)
	}

	bearings, err := env.Bearings(context.Background(), Options{Threshold: 0.5})
	require.NoError(t, err)
	require.Len(t, bearings, 1)
	assert.Empty(t, bearings[0].Pairs)
}

func TestChunkPastEnd(t *testing.T) {
	env := cornerRoom(t)
	render(t, env, []*geometry.Point{ptr(4, 6)})
	est, err := tdoa.New(tdoa.AlgorithmThreshold, testRate, tdoa.Options{})
	require.NoError(t, err)
	maxTau, err := env.MaxTau()
	require.NoError(t, err)

	_, _, err = env.chunkTdoa(5, est, 0.5, maxTau)
	require.ErrorIs(t, err, audio.ErrIndexOutOfRange)

	_, err = env.chunkDoa(5, est, 0.5)
	require.ErrorIs(t, err, audio.ErrIndexOutOfRange)

	pairs, err := env.chunkDoa(0, est, 0.5)
	require.NoError(t, err)
	assert.Len(t, pairs, 6)
}

func TestLocalizeMicrophonesOnCorners(t *testing.T) {
	corners := []geometry.Point{
		geometry.Pt(0, 0),
		geometry.Pt(0, 4),
		geometry.Pt(4, 4),
		geometry.Pt(4, 0),
	}
	env, err := NewEnvironment("square", corners)
	require.NoError(t, err)
	for i, p := range corners {
		_, err := env.AddMicrophone(p.X, p.Y, fmt.Sprintf("mic%d", i))
		require.NoError(t, err, "corner %v", p)
	}
	render(t, env, []*geometry.Point{ptr(2, 2)})

	for _, alg := range []tdoa.Algorithm{tdoa.AlgorithmThreshold, tdoa.AlgorithmGCCPHAT} {
		t.Run(alg.String(), func(t *testing.T) {
			res, err := env.Localize(context.Background(), Options{Algorithm: alg, Threshold: 0.5})
			require.NoError(t, err)
			require.Len(t, res.Estimates, 1)

			got := res.Estimates[0]
			require.NotNil(t, got.Position)
			assert.InDelta(t, 2, got.Position.X, 0.01)
			assert.InDelta(t, 2, got.Position.Y, 0.01)
			assert.True(t, got.Inside)
			for _, p := range got.Pairs {
				assert.InDelta(t, 0, p.TDoA, 1e-6, "%s/%s", p.A, p.B)
			}
		})
	}
}
