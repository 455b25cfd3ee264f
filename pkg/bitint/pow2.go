// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-2 helpers used to size FFT buffers.

Correlation lengths in soundloc are rarely powers of two (two windows of
N samples correlate over 2N-1 lags), while the radix-2 path of the FFT is
the fastest one. Callers round the length up with NextPowerOfTwo and pad
with zeros.

	n := bitint.NextPowerOfTwo(len(a) + len(b)) // 2*44100 -> 131072

The (size-1) in NextPowerOfTwo keeps exact powers of two unchanged:
bits.Len(7) = 3 and 1<<3 = 8, whereas bits.Len(8) = 4 would double it.
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the smallest power of 2 >= size. Zero and
// negative sizes return 1.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo reports whether n is a positive power of 2. A power of 2
// has exactly one bit set, so n&(n-1) clears it to zero.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// PaddedLength returns the FFT length needed to linearly correlate two
// windows of lengths a and b without circular wrap-around.
func PaddedLength(a, b int) int {
	return NextPowerOfTwo(a + b)
}
