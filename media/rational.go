// Package media defines the shared data model that flows through the
// transmux pipeline: rational timebases, packets, decoded audio frames,
// codec identifiers, sample formats, and channel layouts.
package media

import "math/bits"

// NoPTS marks an absent timestamp on packets and bitstream buffers.
const NoPTS int64 = -0x8000000000000000

// Rational is a timebase or frame rate expressed as Num/Den.
type Rational struct {
	Num int64
	Den int64
}

// R is shorthand for Rational{num, den}.
func R(num, den int64) Rational { return Rational{Num: num, Den: den} }

// Inv returns the reciprocal of r.
func (r Rational) Inv() Rational { return Rational{Num: r.Den, Den: r.Num} }

// Seconds returns r as a float64.
func (r Rational) Seconds() float64 { return float64(r.Num) / float64(r.Den) }

// Eq reports whether the two rationals are numerically equal.
func (r Rational) Eq(o Rational) bool {
	return int64(r.Num)*o.Den == int64(o.Num)*r.Den
}

// Rescale converts a timestamp v from timebase `from` to timebase `to`,
// rounding to nearest with ties away from zero. NoPTS passes through.
// The intermediate product is computed with 128-bit precision.
func Rescale(v int64, from, to Rational) int64 {
	if v == NoPTS {
		return NoPTS
	}
	return mulDiv(v, from.Num*to.Den, from.Den*to.Num)
}

// mulDiv computes round(v * num / den) with ties away from zero.
func mulDiv(v, num, den int64) int64 {
	neg := false
	if v < 0 {
		v, neg = -v, !neg
	}
	if num < 0 {
		num, neg = -num, !neg
	}
	if den < 0 {
		den, neg = -den, !neg
	}
	hi, lo := bits.Mul64(uint64(v), uint64(num))
	// Add den/2 for round-to-nearest.
	half := uint64(den) / 2
	lo2, carry := bits.Add64(lo, half, 0)
	hi2 := hi + carry
	q, _ := bits.Div64(hi2, lo2, uint64(den))
	if neg {
		return -int64(q)
	}
	return int64(q)
}
