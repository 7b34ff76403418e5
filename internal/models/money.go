package models

import (
	"math"
	"math/bits"
)

// Upper bounds on caller-supplied values, in minor units. A bounded price
// times a bounded stock always fits in an int64.
const (
	MaxAmount    int64 = 1_000_000_000_000_000
	MaxUnitPrice int64 = 100_000_000_000
	MaxStock     int64 = 1_000_000
)

// MulAmount returns a*b for non-negative operands, or false on overflow.
func MulAmount(a, b int64) (int64, bool) {
	if a < 0 || b < 0 {
		return 0, false
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi != 0 || lo > math.MaxInt64 {
		return 0, false
	}
	return int64(lo), true
}

// AddAmount returns a+b, or false on overflow.
func AddAmount(a, b int64) (int64, bool) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, false
	}
	return a + b, true
}
