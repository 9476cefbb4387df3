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

// Package solver implements the value-set analysis fixpoint driver: it
// builds a system of ValueSets backward from a set of sink variables,
// orders them with a weak topological sort (pkg/topology), and iterates
// that order to convergence, widening nodes that fail to stabilize quickly.
package solver

import (
	log "github.com/sirupsen/logrus"

	"github.com/vsacore/vsacore/pkg/ir"
	"github.com/vsacore/vsacore/pkg/topology"
	"github.com/vsacore/vsacore/pkg/valueset"
)

// defaultWidenThreshold is the per-node iteration count (counted via
// Arena.Looped, whether or not the range changed) from which widen is
// applied against a node's landmark (parameterized
// here; see solver_test.go's sensitivity coverage).
const defaultWidenThreshold = 3

// defaultMaxStep bounds stride growth during push-forward when no tighter
// bound is known.
const defaultMaxStep = uint64(1) << 20

// ValueSetSolver runs value-set analysis over one function's IR, built
// backward from a set of sink variables. A solver instance is used once;
// construct a new one per function analyzed.
type ValueSetSolver struct {
	arena      *valueset.Arena
	order      []valueset.Index
	numIters   uint
	maxStep    uint64
	widenAfter uint
	branches   []ir.FlowBlock
}

// Option configures a ValueSetSolver at construction time.
type Option func(*ValueSetSolver)

// WithMaxStep overrides the stride-growth ceiling used by push-forward.
func WithMaxStep(step uint64) Option {
	return func(s *ValueSetSolver) { s.maxStep = step }
}

// WithWidenThreshold overrides the iteration count that triggers widening.
func WithWidenThreshold(n uint) Option {
	return func(s *ValueSetSolver) { s.widenAfter = n }
}

// WithBranches supplies every conditional-branch block in the function under
// analysis. ir.FlowBlock exposes only pairwise Dominates queries, not a
// dominator-tree walk, so establishing which branches constrain a given use
// requires the caller to name the candidates up front; a real IR front end
// has its function's full block list on hand regardless.
func WithBranches(blocks ...ir.FlowBlock) Option {
	return func(s *ValueSetSolver) { s.branches = blocks }
}

// EstablishValueSets builds the system backward from sinks: every variable
// transitively feeding a sink gets a ValueSet, rootNodes (the sinks'
// ultimate unresolved inputs, plus the sinks themselves) seed the weak
// topological order, and every branch block named via WithBranches
// contributes Equations to whichever ValueSets it dominates
// (applyBranchConstraints). stackReg designates the variable used as the
// stack-pointer base: that variable's ValueSet is TypeStackOffset, and
// every other ValueSet, including those computed from it, is TypeAbsolute.
func EstablishValueSets(sinks []ir.Variable, stackReg ir.Variable, opts ...Option) *ValueSetSolver {
	s := &ValueSetSolver{
		arena:      valueset.NewArena(),
		maxStep:    defaultMaxStep,
		widenAfter: defaultWidenThreshold,
	}

	for _, o := range opts {
		o(s)
	}

	var roots []valueset.Index

	visited := make(map[ir.Variable]bool)

	var declare func(v ir.Variable) valueset.Index
	declare = func(v ir.Variable) valueset.Index {
		if visited[v] {
			idx, _ := s.arena.IndexOf(v)
			return idx
		}

		visited[v] = true
		idx := s.arena.Declare(v)

		typeCode := valueset.TypeAbsolute
		if v == stackReg {
			typeCode = valueset.TypeStackOffset
		}

		def, hasDef := v.Definition()
		if !hasDef {
			roots = append(roots, idx)
			s.arena.SetVarnode(idx, typeCode, ir.OpCopy, nil)

			return idx
		}

		operands := make([]valueset.Operand, len(def.Inputs()))

		for i, in := range def.Inputs() {
			if cv, ok := in.ConstantValue(); ok {
				operands[i] = valueset.Operand{IsConst: true, Const: cv, SizeByte: in.Size()}
				continue
			}

			childIdx := declare(in)
			operands[i] = valueset.Operand{Ref: childIdx, SizeByte: in.Size()}
		}

		s.arena.SetVarnode(idx, typeCode, def.Opcode(), operands)

		return idx
	}

	// Sinks seed the topological order alongside unresolved inputs: a
	// loop whose entry value is a compile-time constant (inlined as an
	// Operand, never a separate declared node) has no unresolved
	// predecessor at all, so without this it would be unreachable from
	// roots via succ and silently excluded from the order.
	for _, sink := range sinks {
		roots = append(roots, declare(sink))
	}

	applyBranchConstraints(s.arena, s.branches)

	succ := func(idx valueset.Index) []valueset.Index {
		v := s.arena.Variable(idx)

		var out []valueset.Index

		for _, use := range v.Uses() {
			if outVar, ok := use.Output(); ok {
				if useIdx, ok := s.arena.IndexOf(outVar); ok {
					out = append(out, useIdx)
				}
			}
		}

		return out
	}

	wto := topology.Build(s.arena, roots, succ)
	s.order = wto.Nodes

	return s
}

// applyBranchConstraints attaches the facts derivable from every branch in
// branches to whichever declared ValueSet reads the constrained variable
// within that branch's dominated subtree. Each branch is
// applied independently; a use dominated by several nested branches on the
// same variable ends up with one Equation per branch at the same slot, and
// Iterate's step 1 intersects all of them together — so nesting composes
// correctly without this function needing to walk the dominator tree itself.
func applyBranchConstraints(arena *valueset.Arena, branches []ir.FlowBlock) {
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

	for _, block := range branches {
		cbranch, ok := block.ConditionalBranch()
		if !ok {
			continue
		}

		trueFacts, falseFacts := constraintsFromCBranch(cbranch)
		applyConstraints(arena, trueFacts, findUse)
		applyConstraints(arena, falseFacts, findUse)
	}
}

// Solve runs the fixpoint iteration to convergence or until maxIterations
// total node-iterations have elapsed. Forced termination
// still leaves every node at a sound (if imprecise) over-approximation.
func (s *ValueSetSolver) Solve(maxIterations uint) {
	partOf := make(map[valueset.Index]valueset.PartitionIndex)

	for _, idx := range s.order {
		if p, ok := s.arena.PartHead(idx); ok {
			partOf[idx] = p
		}
	}

	active := make([]valueset.PartitionIndex, 0, 4)

	for s.numIters < maxIterations {
		dirtyAny := false

		for i := 0; i < len(s.order); i++ {
			idx := s.order[i]

			if p, heads := partOf[idx]; heads {
				// A restart rewinds the cursor back to this same head,
				// so only push a fresh entry the first time it's
				// reached — otherwise each restart would stack another
				// copy of the same partition onto active.
				if len(active) == 0 || active[len(active)-1] != p {
					active = append(active, p)
				}

				s.arena.SetDirty(p, false)
			}

			s.arena.Looped(idx)

			changed := s.arena.Iterate(idx, s.widenAfter, s.maxStep)
			s.numIters++

			if changed {
				for _, p := range active {
					s.arena.SetDirty(p, true)
				}

				dirtyAny = true
			}

			if len(active) > 0 && idx == s.arena.PartitionTail(active[len(active)-1]) {
				p := active[len(active)-1]

				if s.arena.IsDirty(p) {
					// Restart this component's sweep: rewind i to the
					// position of its head in s.order.
					i = indexOf(s.order, s.arena.PartitionHead(p)) - 1
				} else {
					active = active[:len(active)-1]
				}
			}

			if s.numIters >= maxIterations {
				log.WithField("iterations", s.numIters).Debug("value-set solve hit iteration ceiling")
				return
			}
		}

		if !dirtyAny {
			log.WithField("iterations", s.numIters).Debug("value-set solve converged")
			return
		}
	}
}

func indexOf(order []valueset.Index, target valueset.Index) int {
	for i, v := range order {
		if v == target {
			return i
		}
	}

	return -1
}

// GetNumIterations returns the total number of node-iterations performed.
func (s *ValueSetSolver) GetNumIterations() uint {
	return s.numIters
}

// GetValueSet returns the read-only ValueSet view for v, or the zero value
// and false if v was never reached from the sinks.
func (s *ValueSetSolver) GetValueSet(v ir.Variable) (valueset.ValueSet, bool) {
	idx, ok := s.arena.IndexOf(v)
	if !ok {
		return valueset.ValueSet{}, false
	}

	return s.arena.View(idx), true
}
