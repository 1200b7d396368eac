package eval

import "math"

// MaxF16 is the largest finite binary16 value.
const MaxF16 = 65504.0

// F16Bits converts f to IEEE 754 binary16 bits, rounding to nearest even.
func F16Bits(f float32) uint16 {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127
	mant := b & 0x7fffff

	switch {
	case exp == 128:
		// Inf or NaN.
		if mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp > 15:
		return sign | 0x7c00
	case exp >= -14:
		// Normal half.
		h := uint32(exp+15)<<10 | mant>>13
		rem := mant & 0x1fff
		if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
			h++ // may carry into the exponent, up to infinity
		}
		return sign | uint16(h)
	case exp >= -25:
		// Subnormal half.
		m := mant | 0x800000
		shift := uint32(-exp - 1)
		h := m >> shift
		rem := m & (1<<shift - 1)
		half := uint32(1) << (shift - 1)
		if rem > half || (rem == half && h&1 == 1) {
			h++
		}
		return sign | uint16(h)
	}
	return sign
}

// F16FromBits converts binary16 bits to float32.
func F16FromBits(h uint16) float32 {
	sign := uint32(h&0x8000) << 16
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h & 0x3ff)
	switch {
	case exp == 0x1f:
		return math.Float32frombits(sign | 0x7f800000 | mant<<13)
	case exp != 0:
		return math.Float32frombits(sign | (exp+112)<<23 | mant<<13)
	case mant == 0:
		return math.Float32frombits(sign)
	}
	// Subnormal: value is mant * 2^-24.
	f := float32(mant) * (1.0 / (1 << 24))
	if sign != 0 {
		f = -f
	}
	return f
}

// QuantizeF16 rounds f to the nearest binary16 value.
func QuantizeF16(f float32) float32 {
	return F16FromBits(F16Bits(f))
}

// fitsF16 reports whether x is inside the finite binary16 range.
func fitsF16(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) <= MaxF16
}
