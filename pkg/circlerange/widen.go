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

// Widen extrapolates the unstable bound of c to match container's
// corresponding bound, forcing convergence of a monotonically growing
// sequence of ranges. leftIsStable pins c's left bound (the lower bound has
// stopped moving, so only the upper bound is pushed out to container's);
// otherwise c's right bound is pinned and left is pushed back to
// container's.
func (c CircleRange) Widen(container CircleRange, leftIsStable bool) CircleRange {
	if c.empty {
		return container
	}

	if container.empty {
		return c
	}

	step := gcd(c.step, container.step)
	if step == 0 {
		step = 1
	}

	if leftIsStable {
		res := New(c.left, container.right, c.NBits(), step)
		if res.empty {
			return Full(c.NBits())
		}

		return res
	}

	res := New(container.left, c.right, c.NBits(), step)
	if res.empty {
		return Full(c.NBits())
	}

	return res
}

// Translate2Op returns the simplest comparison opcode, constant and operand
// slot equivalent to "variable ∈ c", e.g. x < 5 or x >= 5. ok is false when
// c cannot be expressed as a single comparison against a constant (e.g. it
// has a non-unit stride, or wraps in a way no simple comparison captures).
func (c CircleRange) Translate2Op() (opc ir.Opcode, constVal uint64, cslot int, ok bool) {
	if c.empty || c.step != 1 {
		return 0, 0, 0, false
	}

	if c.IsFull() {
		return 0, 0, 0, false
	}

	switch {
	case c.left == 0:
		// [0, right) == x < right
		return ir.OpIntLess, c.right, 1, true
	case c.right == 0:
		// [left, 0) circularly == x >= left
		return ir.OpIntLessEqual, c.left, 0, true
	default:
		// General [left,right): no single comparison captures a range
		// with both a nonzero lower and upper bound.
		return 0, 0, 0, false
	}
}
