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

// Package irtest builds small, hand-wired ir.Variable/Operation/FlowBlock
// graphs for use by pkg/valueset, pkg/topology and pkg/solver's tests,
// without pulling in a real disassembler front-end.
package irtest

import "github.com/vsacore/vsacore/pkg/ir"

// Var is a minimal ir.Variable: either an unresolved input, a compile-time
// constant, or a value produced by Def.
type Var struct {
	name     string
	size     uint
	constVal uint64
	hasConst bool
	def      *Op
	uses     []ir.Operation
}

func (v *Var) Size() uint                    { return v.size }
func (v *Var) Name() string                  { return v.name }
func (v *Var) ConstantValue() (uint64, bool) { return v.constVal, v.hasConst }
func (v *Var) Uses() []ir.Operation          { return v.uses }

func (v *Var) Definition() (ir.Operation, bool) {
	if v.def == nil {
		return nil, false
	}

	return v.def, true
}

// NewVar declares an unresolved input variable of the given width in bytes.
func NewVar(name string, size uint) *Var {
	return &Var{name: name, size: size}
}

// NewConst declares a compile-time constant variable.
func NewConst(name string, size uint, val uint64) *Var {
	return &Var{name: name, size: size, constVal: val, hasConst: true}
}

// Op is a minimal ir.Operation.
type Op struct {
	opcode ir.Opcode
	inputs []ir.Variable
	output *Var
	block  *Block
}

func (o *Op) Opcode() ir.Opcode { return o.opcode }
func (o *Op) Inputs() []ir.Variable { return o.inputs }
func (o *Op) Block() ir.FlowBlock { return o.block }

func (o *Op) Output() (ir.Variable, bool) {
	if o.output == nil {
		return nil, false
	}

	return o.output, true
}

// Def wires out as the result of opcode applied to inputs within block,
// recording the definition on out and registering the use on every
// non-constant input.
func Def(block *Block, opcode ir.Opcode, out *Var, inputs ...ir.Variable) *Op {
	op := &Op{opcode: opcode, inputs: inputs, output: out, block: block}
	out.def = op

	for _, in := range inputs {
		if v, ok := in.(*Var); ok {
			v.uses = append(v.uses, op)
		}
	}

	return op
}

// Block is a minimal ir.FlowBlock. Dominance is recorded explicitly by the
// test via AddDominated rather than computed.
type Block struct {
	idx       uint
	dominated map[uint]bool
	cbranch   *Op
	trueSucc  *Block
	falseSucc *Block
}

// NewBlock declares a block that (reflexively) dominates itself.
func NewBlock(idx uint) *Block {
	return &Block{idx: idx, dominated: map[uint]bool{idx: true}}
}

// AddDominated records that b dominates other, for Dominates to report.
func (b *Block) AddDominated(other *Block) {
	b.dominated[other.idx] = true
}

func (b *Block) Index() uint { return b.idx }

func (b *Block) Dominates(other ir.FlowBlock) bool {
	ob, ok := other.(*Block)
	if !ok {
		return false
	}

	return b.dominated[ob.idx]
}

func (b *Block) ConditionalBranch() (ir.Operation, bool) {
	if b.cbranch == nil {
		return nil, false
	}

	return b.cbranch, true
}

func (b *Block) TrueSuccessor() ir.FlowBlock  { return b.trueSucc }
func (b *Block) FalseSuccessor() ir.FlowBlock { return b.falseSucc }

// CBranch wires block's conditional branch on cond, taken to trueB when
// true and falseB when false.
func CBranch(block *Block, cond ir.Variable, trueB, falseB *Block) *Op {
	op := &Op{opcode: ir.OpCBranch, inputs: []ir.Variable{cond}, block: block}
	block.cbranch = op
	block.trueSucc = trueB
	block.falseSucc = falseB

	if v, ok := cond.(*Var); ok {
		v.uses = append(v.uses, op)
	}

	return op
}
