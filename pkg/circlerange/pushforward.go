// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package circlerange

import "github.com/vsacore/vsacore/pkg/ir"

// PushForwardUnary computes an over-approximation of the forward image of
// in (inSize bytes) through opc, producing a range of outSize bytes.
// Additive/bitwise-invertible operators preserve stride and shift
// boundaries exactly; anything this IR does not model falls back to the
// full range of the output size, which is always a sound over-approximation.
func PushForwardUnary(opc ir.Opcode, in CircleRange, inSize, outSize uint) CircleRange {
	outBits := outSize * 8

	if in.empty {
		return Empty(outBits)
	}

	switch opc {
	case ir.OpCopy:
		return in.resize(outBits)
	case ir.OpIntNegate:
		return in.resize(inSize * 8).negate().resize(outBits)
	case ir.OpIntNot:
		return in.complementBits(inSize * 8).resize(outBits)
	case ir.OpIntZext:
		return in.resize(outBits)
	case ir.OpIntSext:
		return pushForwardSext(in, inSize*8, outBits)
	case ir.OpIntSubPiece:
		return in.resize(outBits)
	default:
		return Full(outBits)
	}
}

// pushForwardSext sign-extends in (inBits wide) to outBits. When in cannot
// be classified as entirely non-negative or entirely negative at inBits
// width, the result spans both possible extensions and this degrades to the
// full output range.
func pushForwardSext(in CircleRange, inBits, outBits uint) CircleRange {
	signBit := uint64(1) << (inBits - 1)
	neg := New(signBit, 0, inBits, 1)
	pos := New(0, signBit, inBits, 1)

	switch {
	case pos.ContainsRange(in):
		return in.resize(outBits)
	case neg.ContainsRange(in):
		highOnes := maskOf(outBits) &^ maskOf(inBits)
		shifted := in.resize(outBits)

		return New(shifted.left|highOnes, shifted.right|highOnes, outBits, shifted.step)
	default:
		return Full(outBits)
	}
}

// PushForwardBinary computes an over-approximation of the forward image of
// (in1, in2), both inSize bytes, through opc, producing a range of outSize
// bytes. Never fails: returns either an exact representation or the full
// range, possibly after stride-widening bounded by maxStep.
func PushForwardBinary(opc ir.Opcode, in1, in2 CircleRange, inSize, outSize uint, maxStep uint64) CircleRange {
	outBits := outSize * 8

	if in1.empty || in2.empty {
		return Empty(outBits)
	}

	switch opc {
	case ir.OpIntAdd:
		step := gcd(in1.step, in2.step)
		lo := (in1.left + in2.left) & maskOf(outBits)
		hi := (in1.GetMax() + in2.GetMax()) & maskOf(outBits)

		return rangeSpanning(lo, hi, outBits, minu64(step, maxStep))
	case ir.OpIntSub:
		step := gcd(in1.step, in2.step)
		lo := (in1.left - in2.GetMax()) & maskOf(outBits)
		hi := (in1.GetMax() - in2.left) & maskOf(outBits)

		return rangeSpanning(lo, hi, outBits, minu64(step, maxStep))
	case ir.OpIntMult:
		return pushForwardMult(in1, in2, outBits, maxStep)
	case ir.OpIntAnd:
		return SetNZMask(in1.nzMaskUpperBound()&in2.nzMaskUpperBound(), outBits)
	case ir.OpIntOr:
		return SetNZMask(in1.nzMaskUpperBound()|in2.nzMaskUpperBound(), outBits)
	case ir.OpIntXor:
		return SetNZMask(in1.nzMaskUpperBound()|in2.nzMaskUpperBound(), outBits)
	case ir.OpIntEqual:
		if in1.GetSize() == 1 && in2.GetSize() == 1 && in1.left == in2.left {
			return Boolean(true)
		}

		if res, status := in1.Intersect(in2); status == Disjoint || res.IsEmpty() {
			return Boolean(false)
		}

		return Full(1)
	case ir.OpIntNotEqual:
		if in1.GetSize() == 1 && in2.GetSize() == 1 && in1.left == in2.left {
			return Boolean(false)
		}

		if res, status := in1.Intersect(in2); status == Disjoint || res.IsEmpty() {
			return Boolean(true)
		}

		return Full(1)
	case ir.OpIntLess, ir.OpIntLessEqual:
		return pushForwardOrder(in1, in2, false)
	case ir.OpIntSLess, ir.OpIntSLessEqual:
		return pushForwardOrder(in1, in2, true)
	default:
		return Full(outBits)
	}
}

func pushForwardMult(in1, in2 CircleRange, outBits uint, maxStep uint64) CircleRange {
	mask := maskOf(outBits)

	// When one operand is an exact constant k, multiplication maps the
	// other operand's arithmetic progression to another arithmetic
	// progression exactly: v, v+s, v+2s, ... becomes k*v, k*v+k*s, ...
	// The true spacing k*s need not be a power of two, so the
	// representable stride is its largest power-of-two divisor — a
	// coarser grid is always a sound over-approximation.
	if in1.GetSize() == 1 || in2.GetSize() == 1 {
		k, other := in1.left, in2
		if in2.GetSize() == 1 {
			k, other = in2.left, in1
		}

		step := lowestSetBit(other.step * k)
		if step == 0 || step > maxStep {
			return Full(outBits)
		}

		lo := (other.left * k) & mask
		hi := (other.GetMax() * k) & mask

		return rangeSpanning(lo, hi, outBits, step)
	}

	step := lowestSetBit(in1.step * in2.step)
	if step == 0 || step > maxStep {
		return Full(outBits)
	}

	corners := []uint64{
		(in1.left * in2.left) & mask,
		(in1.left * in2.GetMax()) & mask,
		(in1.GetMax() * in2.left) & mask,
		(in1.GetMax() * in2.GetMax()) & mask,
	}

	lo, hi := corners[0], corners[0]
	for _, v := range corners[1:] {
		if v < lo {
			lo = v
		}

		if v > hi {
			hi = v
		}
	}

	return rangeSpanning(lo, hi, outBits, step)
}

// lowestSetBit returns the largest power of two dividing v, or 0 if v==0.
func lowestSetBit(v uint64) uint64 {
	if v == 0 {
		return 0
	}

	return v & (-v)
}

// pushForwardOrder over-approximates a (signed or unsigned) ordered
// comparison: true/false/both, represented as Boolean(true), Boolean(false)
// or Full(1).
func pushForwardOrder(in1, in2 CircleRange, signed bool) CircleRange {
	lo1, hi1 := in1.left, in1.GetMax()
	lo2, hi2 := in2.left, in2.GetMax()

	if signed {
		slo1, shi1 := toSigned(lo1, in1.NBits()), toSigned(hi1, in1.NBits())
		slo2, shi2 := toSigned(lo2, in2.NBits()), toSigned(hi2, in2.NBits())

		// A range whose raw encoding straddles the sign-bit boundary (e.g.
		// raw 100..200 on 8 bits splits into 100..127 and -128..-56) does
		// not convert to a contiguous signed interval, so its endpoints
		// alone can't be compared soundly; fall back to the safe default.
		if shi1 < slo1 || shi2 < slo2 {
			return Full(1)
		}

		switch {
		case shi1 < slo2:
			return Boolean(true)
		case shi2 < slo1:
			return Boolean(false)
		default:
			return Full(1)
		}
	}

	// Unsigned path. A range that wraps past the 2^nbits boundary (left >
	// GetMax(), e.g. {250..4} wrapping through 255->0 on 8 bits) has the
	// same latent ordering hazard as the signed path above: its endpoints
	// no longer bound a contiguous unsigned interval, so fall back too.
	if hi1 < lo1 || hi2 < lo2 {
		return Full(1)
	}

	switch {
	case hi1 < lo2:
		return Boolean(true)
	case hi2 < lo1:
		return Boolean(false)
	default:
		return Full(1)
	}
}

// toSigned reinterprets v (an nbits-wide unsigned encoding) as its two's
// complement signed value.
func toSigned(v uint64, nbits uint) int64 {
	signBit := uint64(1) << (nbits - 1)
	if v&signBit != 0 {
		return int64(v) - (int64(1) << nbits)
	}

	return int64(v)
}

// nzMaskUpperBound returns a bitmask covering every bit this range could
// possibly have set: the bitwise OR of GetMin() and GetMax(), rounded up to
// cover every bit below the highest set bit (a sound, if imprecise, bound).
func (c CircleRange) nzMaskUpperBound() uint64 {
	if c.empty {
		return 0
	}

	hi := c.GetMax() | c.GetMin()
	// Round up to all-ones below the top set bit.
	for b := hi; b != 0; b >>= 1 {
		hi |= b
	}

	return hi & c.mask
}

func rangeSpanning(lo, hi uint64, nbits uint, step uint64) CircleRange {
	if step == 0 {
		step = 1
	}

	span := ((hi - lo) & maskOf(nbits)) + step

	return New(lo, (lo+span)&maskOf(nbits), nbits, step)
}

func minu64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}
