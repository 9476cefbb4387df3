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
	"testing"

	"github.com/vsacore/vsacore/pkg/circlerange"
	"github.com/vsacore/vsacore/pkg/ir"
	"github.com/vsacore/vsacore/pkg/ir/irtest"
	"github.com/vsacore/vsacore/pkg/valueset"
)

func Test_ConstraintsFromCBranch_LessThanConstant(t *testing.T) {
	block := irtest.NewBlock(0)

	i := irtest.NewVar("i", 4)
	hundred := irtest.NewConst("100", 4, 100)
	cond := irtest.NewVar("cond", 1)

	irtest.Def(block, ir.OpIntLess, cond, i, hundred)
	cbranch := irtest.CBranch(block, cond, irtest.NewBlock(1), irtest.NewBlock(2))

	trueFacts, falseFacts := constraintsFromCBranch(cbranch)

	if len(trueFacts) != 1 || trueFacts[0].Variable != ir.Variable(i) {
		t.Fatalf("trueFacts = %+v, want one fact on i", trueFacts)
	}

	if trueFacts[0].Range.GetMin() != 0 || trueFacts[0].Range.GetMax() != 99 {
		t.Fatalf("true branch range = %s, want [0,100)", trueFacts[0].Range)
	}

	if len(falseFacts) != 1 || falseFacts[0].Variable != ir.Variable(i) {
		t.Fatalf("falseFacts = %+v, want one fact on i", falseFacts)
	}

	if falseFacts[0].Range.Contains(50) || !falseFacts[0].Range.Contains(100) {
		t.Fatalf("false branch range = %s, want x >= 100", falseFacts[0].Range)
	}
}

func Test_ApplyConstraints_NestedBranchesCompoundViaEquationIntersection(t *testing.T) {
	// Two independently-applied facts on the same variable/slot compound
	// through Iterate's per-slot equation intersection (step 1), rather
	// than through any upfront merge of the facts themselves — this is
	// what lets applyBranchConstraints handle arbitrarily nested dominating
	// branches using only per-branch independent equation attachment.
	i := irtest.NewVar("i", 4)

	arena := valueset.NewArena()
	iIdx := arena.Declare(i)
	arena.SetVarnode(iIdx, valueset.TypeAbsolute, ir.OpCopy, nil)
	arena.SetRange(iIdx, circlerange.Full(32))

	used := irtest.NewVar("used", 4)
	block := irtest.NewBlock(0)
	irtest.Def(block, ir.OpCopy, used, i)

	usedIdx := arena.Declare(used)
	arena.SetVarnode(usedIdx, valueset.TypeAbsolute, ir.OpCopy, []valueset.Operand{{Ref: iIdx, SizeByte: 4}})

	arena.AddEquation(usedIdx, 0, circlerange.New(0, 100, 32, 1))
	arena.AddEquation(usedIdx, 0, circlerange.New(0, 50, 32, 1))

	arena.Iterate(usedIdx, 3, 1<<20)

	if got := arena.Range(usedIdx); got.GetMax() > 49 {
		t.Fatalf("used.range = %s, want narrowed to the tighter of the two equations", got)
	}
}

func Test_ApplyConstraints_OnlyDominatedUseIsConstrained(t *testing.T) {
	entry := irtest.NewBlock(0)
	trueBlock := irtest.NewBlock(1)
	falseBlock := irtest.NewBlock(2)

	i := irtest.NewVar("i", 4)
	hundred := irtest.NewConst("100", 4, 100)
	cond := irtest.NewVar("cond", 1)

	irtest.Def(entry, ir.OpIntLess, cond, i, hundred)
	cbranch := irtest.CBranch(entry, cond, trueBlock, falseBlock)

	trueFacts, _ := constraintsFromCBranch(cbranch)

	// used reads i from within the true edge's own block; unused reads i
	// from the false block, which the true fact's split point (trueBlock)
	// does not dominate, so it must not pick up the true-branch constraint.
	used := irtest.NewVar("used", 4)
	irtest.Def(trueBlock, ir.OpCopy, used, i)

	unused := irtest.NewVar("unused", 4)
	irtest.Def(falseBlock, ir.OpCopy, unused, i)

	arena := valueset.NewArena()

	iIdx := arena.Declare(i)
	arena.SetVarnode(iIdx, valueset.TypeAbsolute, ir.OpCopy, nil)
	arena.SetRange(iIdx, circlerange.Full(32))

	usedIdx := arena.Declare(used)
	arena.SetVarnode(usedIdx, valueset.TypeAbsolute, ir.OpCopy, []valueset.Operand{{Ref: iIdx, SizeByte: 4}})

	unusedIdx := arena.Declare(unused)
	arena.SetVarnode(unusedIdx, valueset.TypeAbsolute, ir.OpCopy, []valueset.Operand{{Ref: iIdx, SizeByte: 4}})

	findUse := func(v ir.Variable, splitPoint ir.FlowBlock) (valueset.Index, int, bool) {
		for _, use := range v.Uses() {
			if !splitPoint.Dominates(use.Block()) {
				continue
			}

			outVar, ok := use.Output()
			if !ok {
				continue
			}

			idx, ok := arena.IndexOf(outVar)
			if !ok {
				continue
			}

			for slot, in := range use.Inputs() {
				if in == v {
					return idx, slot, true
				}
			}
		}

		return 0, 0, false
	}

	applyConstraints(arena, trueFacts, findUse)

	arena.Iterate(usedIdx, 3, 1<<20)
	arena.Iterate(unusedIdx, 3, 1<<20)

	if got := arena.Range(usedIdx); got.GetMax() > 99 {
		t.Fatalf("used.range = %s, want constrained to <= 99 via the dominated equation", got)
	}

	if got := arena.Range(unusedIdx); !got.IsFull() {
		t.Fatalf("unused.range = %s, want unconstrained (full), since falseBlock is not dominated", got)
	}
}
