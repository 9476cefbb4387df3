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
package valueset

import (
	"github.com/vsacore/vsacore/pkg/circlerange"
	"github.com/vsacore/vsacore/pkg/ir"
)

// Iterate recomputes idx's range from its operands in five steps: gather
// constrained operand ranges, push the defining opcode forward, meet with
// the existing approximation, widen if the node is not converging, then
// record whether anything changed. widenThreshold is the node's iteration
// count (tracked by the caller via Looped, whether or not the range changed)
// from which widen is applied against the landmark; maxStep bounds stride growth during
// push-forward. Returns true iff the range changed.
func (a *Arena) Iterate(idx Index, widenThreshold uint, maxStep uint64) bool {
	n := &a.nodes[idx]
	outBits := n.variable.Size() * 8

	// Step 1: gather operand ranges, applying any recorded equation.
	ranges := make([]circlerange.CircleRange, len(n.operands))

	for i, op := range n.operands {
		var r circlerange.CircleRange

		if op.IsConst {
			r = circlerange.Single(op.SizeByte*8, op.Const)
		} else {
			r = a.nodes[op.Ref].current
		}

		for _, eq := range n.equations {
			if eq.Slot == i {
				r, _ = r.Intersect(eq.Range)
			}
		}

		ranges[i] = r
	}

	// Step 2: push the defining opcode forward.
	forward := pushForward(n.opcode, ranges, outBits, maxStep)

	// Step 3: meet with the existing approximation via circleUnion; a
	// failed union (the two ranges don't combine into one circular span)
	// falls back to minimalContainer, the only call site this module has.
	merged, status := n.current.CircleUnion(forward)
	if status == circlerange.UnionFailed {
		merged = n.current.MinimalContainer(forward, maxStep)
	}

	// Step 4: widen once the node has run long enough without converging.
	// The jump target is a landmark recorded by the caller if one is
	// available (e.g. a branch-derived bound known to contain the final
	// result), otherwise the full range — the safe default that any
	// growing bound is widened out to in one step.
	if widenThreshold > 0 && n.iterations >= widenThreshold {
		target := circlerange.Full(outBits)
		if n.landmark.HasValue() {
			target = n.landmark.Unwrap()
		}

		leftStable := merged.GetMin() == n.current.GetMin()
		merged = merged.Widen(target, leftStable)
	}

	changed := merged.String() != n.current.String()
	n.current = merged

	return changed
}

// pushForward dispatches a node's operand ranges through its defining
// opcode's push-forward, handling the unary/binary arities PullBackBinary's
// opcode set exposes. OpMultiEqual (the phi-like merge operator) is handled
// independent of arity — including the two-operand case, which would
// otherwise be mistaken for an ordinary binary operator and fall through
// PushForwardBinary's unhandled-opcode default — as the minimal container of
// every incoming range, widened up to maxStep if needed.
func pushForward(opc ir.Opcode, ranges []circlerange.CircleRange, outBits uint, maxStep uint64) circlerange.CircleRange {
	if opc == ir.OpMultiEqual {
		if len(ranges) == 0 {
			return circlerange.Full(outBits)
		}

		acc := ranges[0]
		for _, r := range ranges[1:] {
			acc = acc.MinimalContainer(r, maxStep)
		}

		return acc
	}

	switch len(ranges) {
	case 0:
		return circlerange.Full(outBits)
	case 1:
		return circlerange.PushForwardUnary(opc, ranges[0], ranges[0].NBits()/8, outBits/8)
	case 2:
		return circlerange.PushForwardBinary(opc, ranges[0], ranges[1], ranges[0].NBits()/8, outBits/8, maxStep)
	default:
		// Arity mismatch for a non-phi opcode: treat conservatively as a
		// minimal-container merge rather than indexing out of range.
		acc := ranges[0]
		for _, r := range ranges[1:] {
			acc = acc.MinimalContainer(r, maxStep)
		}

		return acc
	}
}
