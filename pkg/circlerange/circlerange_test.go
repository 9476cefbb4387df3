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

import (
	"testing"

	"github.com/vsacore/vsacore/pkg/ir"
)

func Test_LessThan_4Byte(t *testing.T) {
	// x < 2, x is 4 bytes: pull back through a comparison known to be
	// true, with x (the non-constant operand) in slot 0 and the constant 2
	// as the other operand.
	pre, ok := Boolean(true).PullBackBinary(ir.OpIntLess, 2, 0, 4, 1)
	if !ok {
		t.Fatalf("pull-back failed")
	}

	if pre.GetMin() != 0 || pre.GetMax() != 1 || pre.GetSize() != 2 {
		t.Fatalf("unexpected: min=%d max=%d size=%d", pre.GetMin(), pre.GetMax(), pre.GetSize())
	}
}

func Test_GreaterEqual_4Byte(t *testing.T) {
	// x >= 5, 4 bytes => [5, 0), size = 2^32 - 5.
	c := New(5, 0, 32, 1)

	want := (uint64(1)<<32 - 5)
	if c.GetSize() != want {
		t.Fatalf("got size %d want %d", c.GetSize(), want)
	}
}

func Test_PushForwardMult_Doubling(t *testing.T) {
	// x in [0,10), compute 2*x.
	x := New(0, 10, 32, 1)
	two := Single(32, 2)

	res := PushForwardBinary(ir.OpIntMult, x, two, 4, 8, 1<<20)

	if res.GetMin() != 0 {
		t.Fatalf("min = %d, want 0", res.GetMin())
	}

	if res.step%2 != 0 {
		t.Fatalf("step = %d, want even", res.step)
	}
}

func Test_Or_NZMask(t *testing.T) {
	// x, y in [0,16), x|y via non-zero-mask derivation.
	x := New(0, 16, 32, 1)
	y := New(0, 16, 32, 1)

	res := PushForwardBinary(ir.OpIntOr, x, y, 4, 4, 1)
	if !res.Contains(15) || res.Contains(16) {
		t.Fatalf("unexpected result %v", res)
	}
}

func Test_EncodeRangeOverlaps_CategoryB(t *testing.T) {
	// l=2, r=8, l'=5, r'=12: l <= l' < r <= r', category b, intersect = [5,8).
	a := New(2, 8, 8, 1)
	b := New(5, 12, 8, 1)

	res, status := a.Intersect(b)
	if status != Produced {
		t.Fatalf("status = %v, want Produced", status)
	}

	if res.left != 5 || res.right != 8 {
		t.Fatalf("got [%d,%d), want [5,8)", res.left, res.right)
	}
}

func Test_Intersect_SelfIsIdentity(t *testing.T) {
	a := New(3, 20, 16, 1)

	res, status := a.Intersect(a)
	if status != EqualOrContained {
		t.Fatalf("status = %v", status)
	}

	if res.left != a.left || res.right != a.right {
		t.Fatalf("A ∩ A != A: got %v want %v", res, a)
	}
}

func Test_Intersect_Full(t *testing.T) {
	a := New(3, 20, 16, 1)
	full := Full(16)

	res, status := a.Intersect(full)
	if status != EqualOrContained || res.left != a.left || res.right != a.right {
		t.Fatalf("A ∩ full != A: got %v", res)
	}
}

func Test_Intersect_Empty(t *testing.T) {
	a := New(3, 20, 16, 1)
	empty := Empty(16)

	res, status := a.Intersect(empty)
	if status != Disjoint || !res.IsEmpty() {
		t.Fatalf("A ∩ empty != empty: got %v", res)
	}
}

func Test_Intersect_Commutes(t *testing.T) {
	a := New(2, 8, 8, 1)
	b := New(5, 12, 8, 1)

	ab, _ := a.Intersect(b)
	ba, _ := b.Intersect(a)

	if ab.left != ba.left || ab.right != ba.right {
		t.Fatalf("intersect not commutative: %v vs %v", ab, ba)
	}
}

func Test_Contains_Implies_Intersect(t *testing.T) {
	a := Full(8)
	b := New(5, 12, 8, 1)

	if !a.ContainsRange(b) {
		t.Fatalf("full should contain everything")
	}

	res, _ := a.Intersect(b)
	if res.left != b.left || res.right != b.right {
		t.Fatalf("contains(A,B) should give intersect(A,B)=B, got %v", res)
	}
}

func Test_Complement_Involution(t *testing.T) {
	a := New(5, 12, 8, 1)

	comp := a.Complement()
	back := comp.Complement()

	if back.left != a.left || back.right != a.right {
		t.Fatalf("complement(complement(A)) != A: got %v want %v", back, a)
	}
}

func Test_Complement_Disjoint(t *testing.T) {
	a := New(5, 12, 8, 1)
	comp := a.Complement()

	res, status := a.Intersect(comp)
	if status != Disjoint {
		t.Fatalf("A ∩ complement(A) should be empty, got status %v val %v", status, res)
	}
}

func Test_SetStride_Invariant(t *testing.T) {
	a := New(0, 32, 8, 1)

	b := a.SetStride(4, 1)
	if b.IsEmpty() {
		t.Fatalf("expected non-empty")
	}

	it := b.Iterate()
	for it.HasNext() {
		v := it.Next()
		if v%4 != 1 {
			t.Fatalf("element %d not congruent to 1 mod 4", v)
		}
	}

	if b.GetSize() > a.GetSize() {
		t.Fatalf("size should not grow after narrowing stride")
	}
}

func Test_Iterate_Count(t *testing.T) {
	a := New(0, 20, 8, 4)

	count := uint64(0)

	it := a.Iterate()
	first := true

	var min, max uint64

	for it.HasNext() {
		v := it.Next()
		if first {
			min = v
			first = false
		}

		max = v
		count++
	}

	if count != a.GetSize() {
		t.Fatalf("iterated %d elements, want %d", count, a.GetSize())
	}

	if min != a.GetMin() {
		t.Fatalf("first iterated value %d != GetMin() %d", min, a.GetMin())
	}

	if (max+a.step)&a.mask != a.right {
		t.Fatalf("last value %d + step should equal right %d", max, a.right)
	}
}

func Test_MinimalContainer_Overapproximates(t *testing.T) {
	a := New(0, 10, 8, 1)
	b := New(50, 60, 8, 1)

	res := a.MinimalContainer(b, 1)

	it := a.Iterate()
	for it.HasNext() {
		if !res.Contains(it.Next()) {
			t.Fatalf("minimal container must contain every element of A")
		}
	}

	it = b.Iterate()
	for it.HasNext() {
		if !res.Contains(it.Next()) {
			t.Fatalf("minimal container must contain every element of B")
		}
	}
}

func Test_Widen_LoopCounter(t *testing.T) {
	// i = 0; while (i<100) i += 4; — simulate two widening rounds.
	iter1 := New(0, 4, 32, 4)
	iter2 := New(0, 8, 32, 4)

	widened := iter1.Widen(iter2, true)
	if widened.left != 0 {
		t.Fatalf("left should stay pinned at 0, got %d", widened.left)
	}

	if widened.right != iter2.right {
		t.Fatalf("right should jump to container's right")
	}
}

func Test_RoundTrip_String_Parse(t *testing.T) {
	cases := []CircleRange{
		Empty(32),
		Single(32, 7),
		New(3, 19, 32, 2),
		Full(32),
	}

	for _, c := range cases {
		s := c.String()

		back, err := Parse(s)
		if err != nil {
			t.Fatalf("parse(%q): %v", s, err)
		}

		if back.String() != s && s != "[]" {
			// Empty round-trips to a 64-bit empty by convention; every
			// other case must render identically.
			t.Fatalf("round-trip mismatch: %q != %q", back.String(), s)
		}
	}
}

func Test_PullBackUnary_Negate_Involution(t *testing.T) {
	a := New(5, 20, 8, 1)

	pre, ok := a.PullBackUnary(ir.OpIntNegate, 1, 1)
	if !ok {
		t.Fatalf("negate should be invertible")
	}

	fwd := PushForwardUnary(ir.OpIntNegate, pre, 1, 1)
	if !fwd.ContainsRange(a) {
		t.Fatalf("push-forward of pull-back should over-approximate self: got %v want superset of %v", fwd, a)
	}
}

func Test_PullBackUnary_Not_Roundtrip(t *testing.T) {
	a := Single(8, 200)

	pre, ok := a.PullBackUnary(ir.OpIntNot, 1, 1)
	if !ok {
		t.Fatalf("not should be invertible")
	}

	fwd := PushForwardUnary(ir.OpIntNot, pre, 1, 1)
	if fwd.left != a.left {
		t.Fatalf("not(not(v)) should equal v: got %v want %v", fwd, a)
	}
}

// Test_Intersect_CommutesOverSamplePairs generalises Test_Intersect_Commutes
// from a single hand-picked pair to every ordered pair drawn from a
// representative sample of ranges (full, empty, single point, wrapping and
// non-wrapping).
func Test_Intersect_CommutesOverSamplePairs(t *testing.T) {
	samples := []CircleRange{
		Full(8),
		Empty(8),
		Single(8, 5),
		New(2, 8, 8, 1),
		New(5, 12, 8, 1),
		New(200, 10, 8, 1), // wraps around the ring
	}

	for _, a := range samples {
		for _, b := range samples {
			ab, abStatus := a.Intersect(b)
			ba, baStatus := b.Intersect(a)

			if abStatus != baStatus {
				t.Fatalf("intersect status not commutative for %v, %v: %v vs %v", a, b, abStatus, baStatus)
			}

			if ab.left != ba.left || ab.right != ba.right {
				t.Fatalf("intersect not commutative for %v, %v: %v vs %v", a, b, ab, ba)
			}
		}
	}
}
