// SPDX-License-Identifier: MIT
package tdoa

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects an optional analysis window applied to both inputs
// before GCC-PHAT. The default is no window, which keeps onsets near the
// window edges intact.
type WindowFunc int

const (
	WindowNone WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Nuttall
)

var windowNames = map[WindowFunc]string{
	WindowNone:      "none",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("WindowFunc(%d)", int(w))
}

// ParseWindow converts a name (case-insensitive) to a WindowFunc. Unknown
// names return WindowNone and an error.
func ParseWindow(name string) (WindowFunc, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "rect", "rectangular":
		return WindowNone, nil
	case "hanning":
		return Hann, nil
	}
	for w, wn := range windowNames {
		if wn == n {
			return w, nil
		}
	}
	return WindowNone, fmt.Errorf("unknown window function name: '%s'", name)
}

// applyWindow multiplies seq in place by the selected window.
func applyWindow(seq []float64, w WindowFunc) {
	switch w {
	case WindowNone:
	case BartlettHann:
		window.BartlettHann(seq)
	case Blackman:
		window.Blackman(seq)
	case BlackmanNuttall:
		window.BlackmanNuttall(seq)
	case Hann:
		window.Hann(seq)
	case Hamming:
		window.Hamming(seq)
	case Nuttall:
		window.Nuttall(seq)
	}
}
