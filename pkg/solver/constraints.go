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
package solver

import (
	"github.com/vsacore/vsacore/pkg/circlerange"
	"github.com/vsacore/vsacore/pkg/ir"
	"github.com/vsacore/vsacore/pkg/valueset"
)

// branchConstraint is a fact learned along one outgoing edge of a
// conditional branch: variable Variable, constrained to lie in Range, valid
// only within the subtree dominated by SplitPoint. The slot this constraint occupies at the comparison
// that produced it is not, in general, the slot Variable occupies at
// whatever use applyConstraints eventually attaches the equation to — that
// slot is re-derived at the use site, not carried here.
type branchConstraint struct {
	Variable   ir.Variable
	Range      circlerange.CircleRange
	SplitPoint ir.FlowBlock
}

// constraintsFromCBranch derives, for the variable influencing cbranch's
// condition, a CircleRange representing the values it takes along each
// outgoing edge, via translate2Op's inverse: the comparison's defining
// opcode and known constant operand drive PullBackBinary directly, rather
// than constructing a CircleRange from a separate translation table.
func constraintsFromCBranch(cbranch ir.Operation) (trueBranch, falseBranch []branchConstraint) {
	inputs := cbranch.Inputs()
	if len(inputs) == 0 {
		return nil, nil
	}

	cond := inputs[0]

	def, ok := cond.Definition()
	if !ok {
		return nil, nil
	}

	defInputs := def.Inputs()
	if len(defInputs) != 2 {
		return nil, nil
	}

	var (
		variable ir.Variable
		slot     int
		constVal uint64
		found    bool
	)

	for i, in := range defInputs {
		if v, ok := in.ConstantValue(); ok {
			constVal = v
		} else {
			variable = in
			slot = i
			found = true
		}
	}

	if !found {
		return nil, nil
	}

	opc := def.Opcode()
	size := variable.Size()
	block := cbranch.Block()

	// The branch's own block dominates both successors equally, so it
	// cannot distinguish which edge a use lies on — the split point for
	// each fact must be that edge's own successor block, not the block
	// the branch is defined in.
	if trueRange, ok := circlerange.Boolean(true).PullBackBinary(opc, constVal, slot, size, 1); ok {
		trueBranch = append(trueBranch, branchConstraint{Variable: variable, Range: trueRange, SplitPoint: block.TrueSuccessor()})
	}

	if falseRange, ok := circlerange.Boolean(false).PullBackBinary(opc, constVal, slot, size, 1); ok {
		falseBranch = append(falseBranch, branchConstraint{Variable: variable, Range: falseRange, SplitPoint: block.FalseSuccessor()})
	}

	return trueBranch, falseBranch
}

// applyConstraints attaches the equations derived from facts to their
// ValueSets in arena, but only for uses dominated by their SplitPoint — a
// fact learned along one branch must not leak onto uses reachable only
// through the other. findUse resolves a constrained variable to both the use
// site's ValueSet and the operand slot the variable occupies THERE, which in
// general differs from the slot it occupied in the comparison the fact was
// derived from.
func applyConstraints(
	arena *valueset.Arena,
	facts []branchConstraint,
	findUse func(v ir.Variable, splitPoint ir.FlowBlock) (idx valueset.Index, slot int, ok bool),
) {
	for _, f := range facts {
		idx, slot, ok := findUse(f.Variable, f.SplitPoint)
		if !ok {
			continue
		}

		arena.AddEquation(idx, slot, f.Range)
	}
}
