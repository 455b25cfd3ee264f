// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"soundloc/internal/audio"
	"soundloc/internal/config"
	"soundloc/internal/doa"
	"soundloc/internal/geometry"
	"soundloc/internal/localize"
	"soundloc/internal/log"
	"soundloc/internal/tdoa"
	"soundloc/internal/transport"
	"soundloc/internal/transport/udp"
)

// Execute runs the command selected in opts, writing results to w.
func Execute(ctx context.Context, opts *Options, w io.Writer) error {
	switch opts.Command {
	case CommandDoA:
		return RunDoA(w, opts.TDoA, opts.MaxTau)
	case CommandMaxTau:
		cfg, err := LoadSession(opts)
		if err != nil {
			return err
		}
		return RunMaxTau(w, cfg)
	case CommandLocalize:
		cfg, err := LoadSession(opts)
		if err != nil {
			return err
		}
		t, err := OpenTransports(cfg.Transport)
		if err != nil {
			return err
		}
		err = RunLocalize(ctx, w, cfg, opts.JSON, t)
		if t != nil {
			err = errors.Join(err, t.Close())
		}
		return err
	default:
		return fmt.Errorf("unknown command %q", opts.Command)
	}
}

// LoadSession loads the session file, applies flag overrides and sets the
// log level.
func LoadSession(opts *Options) (*config.Config, error) {
	cfg, err := config.LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	opts.Apply(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)
	return cfg, nil
}

// RunDoA prints the bearing for one TDoA.
func RunDoA(w io.Writer, tau, maxTau float64) error {
	deg, err := doa.Compute(tau, maxTau)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%.3f\n", deg)
	return err
}

// RunMaxTau prints the largest TDoA the session's microphones allow.
func RunMaxTau(w io.Writer, cfg *config.Config) error {
	env, err := BuildEnvironment(cfg.Environment)
	if err != nil {
		return err
	}
	tau, err := env.MaxTau()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%.6f s\n", tau)
	return err
}

// RunLocalize loads the recordings, localizes every chunk, prints one line
// (or JSON object) per chunk and publishes the fixes to t when non-nil.
func RunLocalize(ctx context.Context, w io.Writer, cfg *config.Config, asJSON bool, t transport.Transport) error {
	env, err := BuildEnvironment(cfg.Environment)
	if err != nil {
		return err
	}
	if err := LoadRecordings(env, cfg.Environment); err != nil {
		return err
	}
	opts, err := LocalizeOptions(cfg.Localization)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := env.Localize(ctx, opts)
	if err != nil {
		return fmt.Errorf("localize: %w", err)
	}
	log.Infof("run %s: %d/%d chunks localized in %s", res.RunID, res.Detections(), len(res.Estimates), time.Since(start).Round(time.Millisecond))

	if err := PrintResult(w, res, asJSON); err != nil {
		return err
	}
	if t != nil {
		if err := transport.Publish(t, res); err != nil {
			log.Warnf("publishing run %s: %v", res.RunID, err)
		}
	}
	return nil
}

// BuildEnvironment creates the environment and places its microphones.
// Without a boundary, the bounding box of the microphones grown by one
// metre is used.
func BuildEnvironment(ec config.EnvironmentConfig) (*localize.Environment, error) {
	boundary := ec.Boundary
	if len(boundary) == 0 {
		boundary = boundingBox(ec.Microphones, 1)
	}
	env, err := localize.NewEnvironment(ec.Name, boundary)
	if err != nil {
		return nil, err
	}
	if err := env.SetSoundSpeed(ec.SoundSpeed); err != nil {
		return nil, err
	}
	for i, mc := range ec.Microphones {
		m, err := env.AddMicrophone(mc.X, mc.Y, mc.Name)
		if err != nil {
			return nil, fmt.Errorf("microphone %d: %w", i, err)
		}
		m.StartTime = mc.StartTime
	}
	return env, nil
}

func boundingBox(mics []config.MicrophoneConfig, margin float64) []geometry.Point {
	if len(mics) == 0 {
		return nil
	}
	lo := geometry.Pt(math.Inf(1), math.Inf(1))
	hi := geometry.Pt(math.Inf(-1), math.Inf(-1))
	for _, m := range mics {
		lo.X, lo.Y = math.Min(lo.X, m.X), math.Min(lo.Y, m.Y)
		hi.X, hi.Y = math.Max(hi.X, m.X), math.Max(hi.Y, m.Y)
	}
	lo.X, lo.Y = lo.X-margin, lo.Y-margin
	hi.X, hi.Y = hi.X+margin, hi.Y+margin
	return []geometry.Point{lo, geometry.Pt(hi.X, lo.Y), hi, geometry.Pt(lo.X, hi.Y)}
}

// LoadRecordings reads every microphone's WAV file. When all microphones
// carry a start time, recordings are trimmed to their common time span.
func LoadRecordings(env *localize.Environment, ec config.EnvironmentConfig) error {
	mics := env.Microphones()
	for i, m := range mics {
		file := ec.Microphones[i].File
		if file == "" {
			return fmt.Errorf("%w: %s has no file", localize.ErrMicrophoneAudioMismatch, m)
		}
		seg, err := audio.LoadWAV(file)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		log.Debugf("%s: %s, %d Hz, %s", m, file, seg.SampleRate(), seg.Duration())
		m.SetAudio(seg)
	}
	return Align(mics)
}

// Align trims the recordings so that sample 0 of every microphone is the
// same instant and all have equal length. It does nothing unless every
// microphone has a start time.
func Align(mics []*localize.Microphone) error {
	if len(mics) == 0 {
		return nil
	}
	latest := mics[0].StartTime
	for _, m := range mics {
		if m.StartTime.IsZero() {
			if !latest.IsZero() {
				log.Warnf("%s has no start time, recordings are not aligned", m)
			}
			return nil
		}
		if m.StartTime.After(latest) {
			latest = m.StartTime
		}
	}

	heads := make([]int, len(mics))
	length := math.MaxInt
	for i, m := range mics {
		seg := m.Audio()
		lag := latest.Sub(m.StartTime)
		heads[i] = int(math.Round(lag.Seconds() * float64(seg.SampleRate())))
		length = min(length, seg.NumSamples()-heads[i])
	}
	if length <= 0 {
		return fmt.Errorf("%w: recordings do not overlap in time", localize.ErrMicrophoneAudioMismatch)
	}
	for i, m := range mics {
		if err := m.Audio().Trim(heads[i], heads[i]+length); err != nil {
			return fmt.Errorf("align %s: %w", m, err)
		}
		log.Debugf("%s: trimmed %d head samples", m, heads[i])
	}
	return nil
}

// LocalizeOptions converts the validated localization section.
func LocalizeOptions(lc config.LocalizationConfig) (localize.Options, error) {
	alg, err := tdoa.ParseAlgorithm(lc.Algorithm)
	if err != nil {
		return localize.Options{}, err
	}
	peak, err := tdoa.ParsePeakMode(lc.Peak)
	if err != nil {
		return localize.Options{}, err
	}
	window, err := tdoa.ParseWindow(lc.Window)
	if err != nil {
		return localize.Options{}, err
	}
	return localize.Options{
		Algorithm:     alg,
		Threshold:     lc.Threshold,
		ChunkDuration: lc.ChunkDuration,
		Interpolation: lc.Interpolation,
		Peak:          peak,
		Window:        window,
		Workers:       lc.Workers,
		Refine:        lc.Refine,
	}, nil
}

// OpenTransports builds the configured transports, nil when none is enabled.
func OpenTransports(tc config.TransportConfig) (transport.Transport, error) {
	var ts []transport.Transport
	closeAll := func() {
		for _, t := range ts {
			t.Close()
		}
	}

	if tc.LogEnabled {
		ts = append(ts, transport.NewLoggingTransport())
	}
	if tc.UDPEnabled {
		pub, err := udp.Dial(tc.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, err
		}
		ts = append(ts, pub)
	}
	if tc.WSEnabled {
		wst, err := transport.NewWebSocketTransport(tc.WSAddress)
		if err != nil {
			closeAll()
			return nil, err
		}
		ts = append(ts, wst)
	}

	if len(ts) == 0 {
		return nil, nil
	}
	return transport.Multi(ts...), nil
}

// PrintResult writes one line per chunk: offset, start sample and position.
func PrintResult(w io.Writer, res *localize.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		for _, fix := range transport.Fixes(res) {
			if err := enc.Encode(fix); err != nil {
				return err
			}
		}
		return nil
	}

	for i, est := range res.Estimates {
		var err error
		switch {
		case est.Position == nil:
			_, err = fmt.Fprintf(w, "%9.3fs %10d  no detection\n", res.Offset(i).Seconds(), est.StartSample)
		case !est.Inside:
			_, err = fmt.Fprintf(w, "%9.3fs %10d  %v outside\n", res.Offset(i).Seconds(), est.StartSample, *est.Position)
		default:
			_, err = fmt.Fprintf(w, "%9.3fs %10d  %v\n", res.Offset(i).Seconds(), est.StartSample, *est.Position)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
