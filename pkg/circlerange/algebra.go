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

import "math/bits"

// overlapCategory names the six ways two circular spans can relate once
// rotated into a common linear frame. See encodeRangeOverlaps.
type overlapCategory byte

const (
	overlapNone overlapCategory = iota
	overlapA                    // other wholly precedes self, no touch
	overlapB                    // l <= l' < r <= r': overlap on the left tail of other
	overlapC                    // l' <= l < r' <= r: overlap on the right tail of other
	overlapD                    // self wholly inside other (includes exact equality)
	overlapE                    // other wholly inside self
	overlapG                    // self wholly precedes other, no touch
)

// gcd returns the greatest common divisor of a and b.
func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}

// lcm returns the least common multiple of a and b.
func lcm(a, b uint64) uint64 {
	if a == 0 || b == 0 {
		return 0
	}

	return a / gcd(a, b) * b
}

// encodeRangeOverlaps classifies how [l,r) and [l2,r2) (both circular spans
// modulo the same implicit modulus) relate to each other, by rotating all
// four boundaries into a linear frame anchored at a start point: l2 itself,
// unless l2 already lies within [l,r), in which case the anchor is l
// instead. Comparisons in the rotated frame are then ordinary (non-modular)
// integer comparisons, which produces the six-bit relation vector
// (l<=r, l<=l', l<=r', r<=l', r<=r', l'<=r') that fully determines how the
// two spans overlap.
func encodeRangeOverlaps(l, r, l2, r2, mask uint64) overlapCategory {
	within := func(v, lo, hi uint64) bool {
		return ((v - lo) & mask) < ((hi - lo) & mask)
	}

	anchor := l2
	if lo, hi := l, r; lo != hi && within(l2, lo, hi) {
		anchor = l
	} else if lo == hi {
		// self is the full range; anchor stays at l2.
		anchor = l2
	}

	rel := func(v uint64) uint64 { return (v - anchor) & mask }

	rl, rr, rl2, rr2 := rel(l), rel(r), rel(l2), rel(r2)

	// Degenerate full-range spans (start==end) represent "everything", so
	// normalize their relative end to the modulus for ordering purposes.
	if l == r {
		rr = mask + 1
	}

	if l2 == r2 {
		rr2 = mask + 1
	}

	leq := func(a, b uint64) bool { return a <= b }

	v := [6]bool{leq(rl, rr), leq(rl, rl2), leq(rl, rr2), leq(rr, rl2), leq(rr, rr2), leq(rl2, rr2)}

	switch {
	case rr2 <= rl:
		// other ends at or before self starts (in the rotated frame):
		// no overlap, other precedes self.
		return overlapA
	case rl2 <= rl && rr <= rr2:
		return overlapD
	case rl <= rl2 && rr2 <= rr:
		return overlapE
	case rl <= rl2 && rl2 < rr && rr <= rr2:
		return overlapB
	case rl2 <= rl && rl < rr2 && rr2 <= rr:
		return overlapC
	case rr <= rl2:
		return overlapG
	default:
		_ = v
		return overlapNone
	}
}

// Intersect computes self ∩ other, classifying the result via
// encodeRangeOverlaps.
func (c CircleRange) Intersect(other CircleRange) (CircleRange, IntersectStatus) {
	if c.empty || other.empty {
		return Empty(c.NBits()), Disjoint
	}

	if c.IsFull() {
		return other, EqualOrContained
	}

	if other.IsFull() {
		return c, EqualOrContained
	}

	newStep := lcm(c.step, other.step)
	// Phase alignment: elements of the combined stride must agree modulo
	// both original strides.
	if (c.left-other.left)%gcd(c.step, other.step) != 0 {
		return Empty(c.NBits()), Disjoint
	}

	cat := encodeRangeOverlaps(c.left, c.right, other.left, other.right, c.mask)

	switch cat {
	case overlapA, overlapG:
		return Empty(c.NBits()), Disjoint
	case overlapD:
		// self wholly inside other: intersection is self.
		return c.withStep(newStep), EqualOrContained
	case overlapE:
		// other wholly inside self: intersection is other.
		return other.withStep(newStep), EqualOrContained
	case overlapB:
		res := New(other.left, c.right, c.NBits(), newStep)
		if res.empty {
			return res, Disjoint
		}

		return res, Produced
	case overlapC:
		res := New(c.left, other.right, c.NBits(), newStep)
		if res.empty {
			return res, Disjoint
		}

		return res, Produced
	default:
		return Empty(c.NBits()), Disjoint
	}
}

// withStep returns a copy of c with its stride tightened to step, provided
// step is a multiple of c.step (callers only ever widen/tighten to a common
// multiple computed via lcm, so this never needs to re-filter elements).
func (c CircleRange) withStep(step uint64) CircleRange {
	if step == c.step {
		return c
	}

	r := c
	r.step = step
	r.normalize()

	return r
}

// CircleUnion computes self ∪ other when the result is itself a single
// circular range sharing a common step. Fails (UnionFailed) when the union
// is a proper pair of arcs or the strides cannot be reconciled; callers must
// fall back, typically to MinimalContainer.
func (c CircleRange) CircleUnion(other CircleRange) (CircleRange, UnionStatus) {
	if c.empty {
		return other, UnionProduced
	}

	if other.empty {
		return c, UnionProduced
	}

	if c.IsFull() || other.IsFull() {
		return Full(c.NBits()), UnionProduced
	}

	if c.step != other.step {
		return CircleRange{}, UnionFailed
	}

	if c.ContainsRange(other) {
		return c, UnionProduced
	}

	if other.ContainsRange(c) {
		return other, UnionProduced
	}

	cat := encodeRangeOverlaps(c.left, c.right, other.left, other.right, c.mask)

	switch cat {
	case overlapB:
		res := New(c.left, other.right, c.NBits(), c.step)
		if !res.empty && res.Contains(c.left) && res.Contains((other.right-other.step)&other.mask) {
			return res, UnionProduced
		}
	case overlapC:
		res := New(other.left, c.right, c.NBits(), c.step)
		if !res.empty && res.Contains(other.left) && res.Contains((c.right-c.step)&c.mask) {
			return res, UnionProduced
		}
	case overlapA, overlapG:
		// Two disjoint arcs sharing a step: they merge into one circular
		// range exactly when one arc's end meets the other's start.
		if c.right == other.left {
			return New(c.left, other.right, c.NBits(), c.step), UnionProduced
		}

		if other.right == c.left {
			return New(other.left, c.right, c.NBits(), c.step), UnionProduced
		}
	}

	return CircleRange{}, UnionFailed
}

// Complement returns Z/2^n ∖ self. Full and empty are each other's
// complement; otherwise the complement of [left,right) step s (when s==1)
// is [right,left); for s>1 the complement is not, in general, a single
// circular range, so this falls back to enclosing the gap with step 1,
// which is always a sound (over-approximating) complement for s>1.
func (c CircleRange) Complement() CircleRange {
	if c.empty {
		return Full(c.NBits())
	}

	if c.IsFull() {
		return Empty(c.NBits())
	}

	if c.step == 1 {
		return New(c.right, c.left, c.NBits(), 1)
	}

	// Non-unit stride: the exact complement is a union of the (step-1)
	// other residue classes plus the gap outside [left,right). Represent
	// the sound over-approximation: everything outside the covered span,
	// at step 1.
	return New(c.right, c.left, c.NBits(), 1)
}

// MinimalContainer returns the smallest representable range containing the
// union self ∪ other, widening the stride up to maxStep if needed to find a
// common representable stride.
func (c CircleRange) MinimalContainer(other CircleRange, maxStep uint64) CircleRange {
	if c.empty {
		return other
	}

	if other.empty {
		return c
	}

	if res, status := c.CircleUnion(other); status == UnionProduced {
		return res
	}

	step := gcd(c.step, other.step)
	for step > maxStep {
		step >>= 1
	}

	if step == 0 {
		step = 1
	}

	lo := c.left
	if ((other.left - c.left) & c.mask) < ((lo - c.left) & c.mask) {
		lo = other.left
	}

	// Smallest container: walk from the earlier-starting operand all the
	// way around to whichever operand's end is farthest, measured
	// circularly from lo.
	cEndOff := (c.GetMax() - lo) & c.mask
	oEndOff := (other.GetMax() - lo) & c.mask

	hi := c.GetMax()
	if oEndOff > cEndOff {
		hi = other.GetMax()
	}

	span := (hi - lo) & c.mask
	if span%step != 0 {
		// Re-align the grid so the span is an exact multiple of step.
		span = ((span / step) + 1) * step
	}

	res := New(lo, (lo+span+step)&c.mask, c.NBits(), step)
	if res.empty {
		return Full(c.NBits())
	}

	return res
}

// SetNZMask derives a range from a bitmask known to cover every possibly
// set bit: left=0, right=nzmask+1 (or full, if nzmask+1 is not itself
// representable within nbits), step=1.
func SetNZMask(nzmask uint64, nbits uint) CircleRange {
	mask := maskOf(nbits)
	nzmask &= mask

	if nzmask == mask {
		return Full(nbits)
	}

	return New(0, nzmask+1, nbits, 1)
}

// SetStride tightens this range's stride to newStep, keeping only elements
// congruent to rem modulo newStep. May empty the set if no element
// satisfies the new congruence.
func (c CircleRange) SetStride(newStep, rem uint64) CircleRange {
	if c.empty {
		return c
	}

	if newStep <= c.step {
		return c
	}

	rem &= c.mask

	first := c.newDomain(newStep, rem)
	if first == nil {
		return Empty(c.NBits())
	}

	return *first
}

// newStride rounds step up to the next power of two, as required by the
// invariant that step always divides mask+1.
func newStride(step uint64) uint64 {
	if step <= 1 {
		return 1
	}

	return uint64(1) << bits.Len64(step-1)
}

// newDomain recomputes [left,right) on a newStep grid congruent to rem,
// in closed form (never materializing elements): c's elements are
// left, left+step, left+2*step, ..., and exactly every (newStep/step)'th
// one can land on the rem residue class, so the first match and the count
// of matches are both computable directly. Returns nil if no element of c
// satisfies the congruence.
func (c CircleRange) newDomain(newStep, rem uint64) *CircleRange {
	step := newStride(newStep)

	if newStep%c.step != 0 {
		// newStep is not a multiple of the existing stride: the grids
		// cannot be reconciled exactly, so fall back to the smallest
		// power-of-two multiple of c.step that divides evenly.
		step = newStride(c.step * (newStep / c.step + 1))
	}

	g := step / c.step
	if g == 0 {
		g = 1
	}

	if (rem-c.left)%c.step != 0 {
		return nil
	}

	k0 := ((rem - c.left) / c.step) % g

	size := c.GetSize()
	if size == 0 {
		// Full range: every residue is reachable.
		size = g
	}

	if k0 >= size {
		return nil
	}

	first := (c.left + k0*c.step) & c.mask
	count := (size-1-k0)/g + 1
	last := (first + (count-1)*step) & c.mask

	res := New(first, (last+step)&c.mask, c.NBits(), step)

	return &res
}
