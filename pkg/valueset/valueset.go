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

// Package valueset holds the per-variable state of a value-set analysis: the
// ValueSet arena, its Equations and the Partition structure used by the
// weak topological order. All ValueSets live in a single Arena, addressed by
// integer Index rather than pointer: this gives O(1) prepend/threading via
// the next field without per-node allocation during iteration, and keeps
// growing the arena's backing slice from invalidating existing handles.
package valueset

import (
	"github.com/vsacore/vsacore/pkg/circlerange"
	"github.com/vsacore/vsacore/pkg/ir"
	"github.com/vsacore/vsacore/pkg/util"
)

// Index addresses a single ValueSet within an Arena.
type Index uint32

// NoIndex is the sentinel for "no such ValueSet".
const NoIndex Index = ^Index(0)

// TypeCode classifies what a ValueSet's range represents.
type TypeCode uint8

// TypeAbsolute tracks an ordinary integer value. TypeStackOffset tracks a
// value known to be an offset relative to the designated stack register
// passed to establishValueSets.
const (
	TypeAbsolute TypeCode = iota
	TypeStackOffset
)

// Equation is a per-input constraint recorded against a ValueSet: when
// iterate() evaluates the defining operator, the input at Slot must
// additionally be intersected with Range. Used to encode facts learned from
// dominating conditional branches (see constraintsFromCBranch).
type Equation struct {
	Slot  int
	Range circlerange.CircleRange
}

// Operand is one input slot of a node's defining operation: either a
// reference to another ValueSet in the same Arena, or a known constant.
type Operand struct {
	Ref      Index
	IsConst  bool
	Const    uint64
	SizeByte uint
}

type node struct {
	variable   ir.Variable
	typeCode   TypeCode
	opcode     ir.Opcode
	operands   []Operand
	current    circlerange.CircleRange
	iterations uint

	equations []Equation

	landmark util.Option[circlerange.CircleRange]

	// partHead is the partition this node heads, or NoPartition if it heads
	// none. next threads this node into its enclosing Partition's chain.
	partHead PartitionIndex
	next     Index
}

// Arena owns every ValueSet and Partition for one solver run. It is the
// privileged mutator surface: only code holding an *Arena (the solver and
// topology builder) can mutate iteration state; everything else sees the
// read-only ValueSet view.
type Arena struct {
	nodes      []node
	partitions []partition
	index      map[ir.Variable]Index
}

// NewArena constructs an empty arena.
func NewArena() *Arena {
	return &Arena{index: make(map[ir.Variable]Index)}
}

// Declare registers v with the arena, returning its Index. Calling Declare
// twice for the same variable returns the existing Index.
func (a *Arena) Declare(v ir.Variable) Index {
	if idx, ok := a.index[v]; ok {
		return idx
	}

	idx := Index(len(a.nodes))
	a.nodes = append(a.nodes, node{
		variable: v,
		partHead: NoPartition,
		next:     NoIndex,
	})
	a.index[v] = idx

	return idx
}

// IndexOf returns the Index previously assigned to v, or (NoIndex, false) if
// v was never declared.
func (a *Arena) IndexOf(v ir.Variable) (Index, bool) {
	idx, ok := a.index[v]
	if !ok {
		return NoIndex, false
	}

	return idx, ok
}

// Count returns the number of ValueSets in the arena.
func (a *Arena) Count() int {
	return len(a.nodes)
}

// Variable returns the IR variable backing idx.
func (a *Arena) Variable(idx Index) ir.Variable {
	return a.nodes[idx].variable
}

// SetVarnode initializes idx's node from its defining operation: a constant
// definition collapses to a singleton; a copy-like operator aliases its
// single operand (via the push-forward identity applied during the first
// iterate()); anything else starts empty and grows monotonically.
func (a *Arena) SetVarnode(idx Index, typeCode TypeCode, opc ir.Opcode, operands []Operand) {
	n := &a.nodes[idx]
	n.typeCode = typeCode
	n.opcode = opc
	n.operands = operands

	width := n.variable.Size() * 8
	if len(operands) == 1 && operands[0].IsConst && opc == ir.OpCopy {
		n.current = circlerange.Single(width, operands[0].Const)
	} else {
		n.current = circlerange.Empty(width)
	}
}

// AddEquation appends a per-input constraint to idx's node.
func (a *Arena) AddEquation(idx Index, slot int, r circlerange.CircleRange) {
	n := &a.nodes[idx]
	n.equations = append(n.equations, Equation{Slot: slot, Range: r})
}

// AddLandmark records r as idx's widening target, derived from a
// branch-known bound rather than the operand ranges a normal iterate()
// step would see.
func (a *Arena) AddLandmark(idx Index, r circlerange.CircleRange) {
	n := &a.nodes[idx]
	n.landmark = util.Some(r)
}

// Looped increments idx's iteration counter; the solver calls it before
// every Iterate of this node.
func (a *Arena) Looped(idx Index) {
	a.nodes[idx].iterations++
}

// Iterations returns the current iteration count for idx.
func (a *Arena) Iterations(idx Index) uint {
	return a.nodes[idx].iterations
}

// Range returns idx's current CircleRange.
func (a *Arena) Range(idx Index) circlerange.CircleRange {
	return a.nodes[idx].current
}

// SetRange overwrites idx's current range directly.
func (a *Arena) SetRange(idx Index, r circlerange.CircleRange) {
	a.nodes[idx].current = r
}

// Operands returns idx's operand list.
func (a *Arena) Operands(idx Index) []Operand {
	return a.nodes[idx].operands
}

// Opcode returns idx's defining opcode.
func (a *Arena) Opcode(idx Index) ir.Opcode {
	return a.nodes[idx].opcode
}

// Next returns the ValueSet idx is threaded to within its enclosing
// Partition's chain, or (NoIndex, false) at the chain's end.
func (a *Arena) Next(idx Index) (Index, bool) {
	n := a.nodes[idx].next
	return n, n != NoIndex
}

// SetNext threads idx to next within a Partition's chain.
func (a *Arena) SetNext(idx, next Index) {
	a.nodes[idx].next = next
}

// PartHead returns the Partition idx heads, or (NoPartition, false) if it
// heads none.
func (a *Arena) PartHead(idx Index) (PartitionIndex, bool) {
	p := a.nodes[idx].partHead
	return p, p != NoPartition
}

// SetPartHead records that idx heads partition p.
func (a *Arena) SetPartHead(idx Index, p PartitionIndex) {
	a.nodes[idx].partHead = p
}

// View returns a read-only handle to idx, suitable for an IR Variable's weak
// back-reference to its ValueSet, kept for the caller's convenience.
func (a *Arena) View(idx Index) ValueSet {
	return ValueSet{arena: a, idx: idx}
}

// ValueSet is a read-only handle onto one node in an Arena. It exposes only
// getters; mutation goes through Arena, which only the solver and topology
// builder hold.
type ValueSet struct {
	arena *Arena
	idx   Index
}

// Index returns the handle's underlying Arena index.
func (v ValueSet) Index() Index { return v.idx }

// Range returns this ValueSet's current CircleRange.
func (v ValueSet) Range() circlerange.CircleRange { return v.arena.Range(v.idx) }

// Iterations returns the number of times iterate() has run against this
// node.
func (v ValueSet) Iterations() uint { return v.arena.Iterations(v.idx) }

// TypeCode returns whether this ValueSet tracks an absolute integer or a
// stack-relative offset.
func (v ValueSet) TypeCode() TypeCode { return v.arena.nodes[v.idx].typeCode }
