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

// Package topology builds a weak topological order over a value-set
// analysis's data-flow graph, following Bourdoncle's 1993 algorithm: a
// linearization in which every loop's head precedes its body, with nested
// loops recursively ordered. Recursion is replaced by an explicit frame
// stack, avoiding stack-depth blowup on deeply nested loops, built on top
// of the stack package the rest of this module uses for worklists.
package topology

import (
	"github.com/vsacore/vsacore/pkg/util/collection/stack"
	"github.com/vsacore/vsacore/pkg/valueset"
)

// Successors reports, for a given ValueSet Index, the indices of every
// ValueSet that reads its value — i.e. the ValueSets of the output
// variables of every operation using this one.
type Successors func(valueset.Index) []valueset.Index

// Order is the result of building a weak topological order: a flat sequence
// of node indices in visitation order (head before body). Every nested
// Partition discovered along the way is already recorded in the Arena via
// NewPartition/PartitionPrepend.
type Order struct {
	Nodes []valueset.Index
}

const dfnUnvisited = 0
const dfnDone = ^uint32(0)

// unvisited reports whether v has never been (or has been reset to never
// having been) assigned a depth-first index. A missing map entry and an
// explicit dfnUnvisited entry (written by popComponentMembers when resetting
// a node for component()'s rescan) are equivalent.
func unvisited(dfn map[valueset.Index]uint32, v valueset.Index) bool {
	d, ok := dfn[v]
	return !ok || d == dfnUnvisited
}

// frameKind distinguishes a normal DFS visitation frame from the
// "component" rescan frame Bourdoncle's algorithm runs once a loop head is
// discovered.
type frameKind int

const (
	kindVisit frameKind = iota
	kindComponent
)

type frame struct {
	kind frameKind
	v    valueset.Index

	succs []valueset.Index
	pos   int

	// kindVisit only: running minimum head DFI reached so far (the value
	// visit(v) would return), and whether any successor closed a cycle
	// at or above v.
	head uint32
	loop bool

	// kindComponent only: the head value to propagate to v's caller once
	// this rescan resolves (== dfn[v] at the moment v was recognised as
	// a component head), and the finish-list length at that moment, used
	// to bound the nested partition's members.
	retHead  uint32
	startLen int
}

// Build runs Bourdoncle's weak topological order construction over the
// graph reached from roots via succ, threading discovered Partitions into
// arena. Returns the linearized node order (head-before-body): the reverse of
// the depth-first finish order.
func Build(arena *valueset.Arena, roots []valueset.Index, succ Successors) Order {
	dfn := make(map[valueset.Index]uint32, arena.Count())
	var num uint32

	onStack := stack.NewStack[valueset.Index]()
	var finish []valueset.Index

	call := stack.NewStack[*frame]()

	pushVisit := func(v valueset.Index) {
		num++
		dfn[v] = num
		onStack.Push(v)
		call.Push(&frame{kind: kindVisit, v: v, succs: succ(v), head: num})
	}

	rootPos := 0

	advanceRoots := func() bool {
		for rootPos < len(roots) {
			r := roots[rootPos]
			rootPos++

			if unvisited(dfn, r) {
				pushVisit(r)
				return true
			}
		}

		return false
	}

	if !advanceRoots() {
		return Order{}
	}

	for call.Len() > 0 {
		top := call.Peek(0)

		switch top.kind {
		case kindVisit:
			stepVisit(top, dfn, onStack, &finish, call, succ, pushVisit)
		case kindComponent:
			stepComponent(top, dfn, &finish, call, arena, pushVisit)
		}

		if call.Len() == 0 {
			advanceRoots()
		}
	}

	// finish is in post-order (each node appended when fully resolved);
	// the weak topological order is the reverse.
	order := make([]valueset.Index, len(finish))
	for i, v := range finish {
		order[len(finish)-1-i] = v
	}

	return Order{Nodes: order}
}

// stepVisit advances the top-of-stack visit frame by one successor, or
// (once exhausted) resolves it: a non-head frame propagates its reached
// head upward and leaves v on the DFS stack for its ancestor to collect
// later; a head frame pops its component's members and, if it closed any
// cycle, defers to a kindComponent rescan before finalizing.
func stepVisit(
	top *frame,
	dfn map[valueset.Index]uint32,
	onStack *stack.Stack[valueset.Index],
	finish *[]valueset.Index,
	call *stack.Stack[*frame],
	succ Successors,
	pushVisit func(valueset.Index),
) {
	if top.pos < len(top.succs) {
		w := top.succs[top.pos]
		top.pos++

		if unvisited(dfn, w) {
			pushVisit(w)
		} else if d := dfn[w]; d <= top.head {
			top.head = d
			top.loop = true
		}

		return
	}

	call.Pop()

	if top.head != dfn[top.v] {
		// v does not head its own component: leave it on the DFS stack
		// for the ancestor that eventually matches this head value, and
		// propagate the reached head upward.
		propagateHead(call, top.head)
		return
	}

	retHead := top.head
	dfn[top.v] = dfnDone
	popComponentMembers(onStack, top.v, dfn)

	if top.loop {
		call.Push(&frame{
			kind:     kindComponent,
			v:        top.v,
			succs:    succ(top.v),
			retHead:  retHead,
			startLen: len(*finish),
		})

		return
	}

	*finish = append(*finish, top.v)
	propagateHead(call, retHead)
}

// stepComponent advances a component-rescan frame: it
// repeatedly revisits v's successors that were reset to unvisited by the
// pop in stepVisit, nesting their own sub-partitions before v itself is
// finalized and wrapped as a Partition head.
func stepComponent(
	top *frame,
	dfn map[valueset.Index]uint32,
	finish *[]valueset.Index,
	call *stack.Stack[*frame],
	arena *valueset.Arena,
	pushVisit func(valueset.Index),
) {
	if top.pos < len(top.succs) {
		w := top.succs[top.pos]
		top.pos++

		if unvisited(dfn, w) {
			pushVisit(w)
		}

		return
	}

	call.Pop()

	// members is the slice of finish accumulated while this rescan ran,
	// in post-order (earliest-finished first) — the reverse of the
	// weak-topological order the body should read in.
	members := append([]valueset.Index(nil), (*finish)[top.startLen:]...)
	*finish = append(*finish, top.v)

	var pidx valueset.PartitionIndex

	if len(members) == 0 {
		pidx = arena.NewPartition(top.v)
	} else {
		// Build the body chain by repeated front-insertion, processing
		// members in their post-order (so each prepend pushes the
		// previous body forward, yielding the body in reverse-of-post-
		// order — i.e. correct weak-topological order). top.v is
		// prepended last so it ends up as the chain's head.
		pidx = arena.NewPartition(members[0])
		for i := 1; i < len(members); i++ {
			arena.PartitionPrepend(pidx, members[i])
		}

		arena.PartitionPrepend(pidx, top.v)
	}

	arena.SetPartHead(top.v, pidx)

	propagateHead(call, top.retHead)
}

// propagateHead folds a resolved frame's reached head value into its
// parent visit frame, matching visit(v)'s "if minHead <= head: head =
// minHead; loop = True" update (using <= so a self-loop, where w == v,
// is detected).
func propagateHead(call *stack.Stack[*frame], head uint32) {
	if call.Len() == 0 {
		return
	}

	parent := call.Peek(0)
	if parent.kind != kindVisit {
		return
	}

	if head <= parent.head {
		parent.head = head
		parent.loop = true
	}
}

// popComponentMembers pops onStack down to and including v, resetting the
// dfn of everything above v to unvisited so component() (if v heads a loop)
// can revisit them fresh.
func popComponentMembers(onStack *stack.Stack[valueset.Index], v valueset.Index, dfn map[valueset.Index]uint32) {
	for {
		e := onStack.Pop()
		if e == v {
			return
		}

		dfn[e] = dfnUnvisited
	}
}
