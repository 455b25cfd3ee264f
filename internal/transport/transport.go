package transport

import (
	"errors"
	"time"

	"soundloc/internal/geometry"
	"soundloc/internal/localize"
)

// Transport defines a generic interface for publishing localization output.
// Implementations should be thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// Fix is the published form of one chunk estimate.
type Fix struct {
	RunID       string          `json:"run_id"`
	Chunk       int             `json:"chunk"`
	StartSample int             `json:"start_sample"`
	Offset      time.Duration   `json:"offset_ns"`
	Position    *geometry.Point `json:"position"` // null when nothing was detected
	Inside      bool            `json:"inside"`
	Residual    float64         `json:"residual"`
}

// Detected reports whether the fix carries a position.
func (f Fix) Detected() bool { return f.Position != nil }

// Fixes converts every estimate of res, in chunk order.
func Fixes(res *localize.Result) []Fix {
	out := make([]Fix, len(res.Estimates))
	for i, est := range res.Estimates {
		out[i] = Fix{
			RunID:       res.RunID,
			Chunk:       est.Chunk,
			StartSample: est.StartSample,
			Offset:      res.Offset(i),
			Position:    est.Position,
			Inside:      est.Inside,
			Residual:    est.Residual,
		}
	}
	return out
}

// Publish sends every fix of res to t and returns the joined send errors.
func Publish(t Transport, res *localize.Result) error {
	var errs []error
	for _, fix := range Fixes(res) {
		if err := t.Send(fix); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// multi fans out to several transports.
type multi []Transport

// Multi returns a Transport that forwards every call to each of ts.
func Multi(ts ...Transport) Transport {
	return multi(ts)
}

func (m multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = multi(nil)
