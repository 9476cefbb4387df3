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
package main

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/vsacore/vsacore/pkg/ir"
)

// fnVar is a parsed ir.Variable: either an unresolved input, a compile-time
// constant, or the output of some fnOp, mirroring pkg/ir/irtest's Var but
// built from text instead of wired by hand.
type fnVar struct {
	name     string
	size     uint
	constVal uint64
	hasConst bool
	def      *fnOp
	uses     []ir.Operation
}

func (v *fnVar) Size() uint                    { return v.size }
func (v *fnVar) Name() string                  { return v.name }
func (v *fnVar) ConstantValue() (uint64, bool) { return v.constVal, v.hasConst }
func (v *fnVar) Uses() []ir.Operation          { return v.uses }

func (v *fnVar) Definition() (ir.Operation, bool) {
	if v.def == nil {
		return nil, false
	}

	return v.def, true
}

// fnOp is a parsed ir.Operation.
type fnOp struct {
	opcode ir.Opcode
	inputs []ir.Variable
	output *fnVar
	block  *fnBlock
}

func (o *fnOp) Opcode() ir.Opcode   { return o.opcode }
func (o *fnOp) Inputs() []ir.Variable { return o.inputs }
func (o *fnOp) Block() ir.FlowBlock { return o.block }

func (o *fnOp) Output() (ir.Variable, bool) {
	if o.output == nil {
		return nil, false
	}

	return o.output, true
}

// fnBlock is a parsed ir.FlowBlock. Unlike irtest.Block, dominance is not
// asserted by the caller: idom is computed from the declared successor
// edges by the Cooper/Harvey/Kennedy iterative dominance algorithm, the
// same one the block's successors list exists to feed.
type fnBlock struct {
	name       string
	idx        uint
	successors []*fnBlock
	cbranch    *fnOp
	// idom is this block's immediate dominator, filled in by computeDominance.
	// The entry block is its own idom; an unreachable block keeps idom == nil.
	idom *fnBlock
}

func (b *fnBlock) Index() uint { return b.idx }

func (b *fnBlock) Dominates(other ir.FlowBlock) bool {
	ob, ok := other.(*fnBlock)
	if !ok {
		return false
	}

	for cur := ob; cur != nil; cur = cur.idom {
		if cur == b {
			return true
		}

		if cur.idom == cur {
			// reached the entry block without matching
			break
		}
	}

	return false
}

func (b *fnBlock) ConditionalBranch() (ir.Operation, bool) {
	if b.cbranch == nil {
		return nil, false
	}

	return b.cbranch, true
}

func (b *fnBlock) TrueSuccessor() ir.FlowBlock {
	return b.successors[0]
}

func (b *fnBlock) FalseSuccessor() ir.FlowBlock {
	return b.successors[1]
}

// ParsedFunction is the result of parsing a textual IR description: the
// sink variables to report ranges for, the (optional) stack-pointer
// variable, and every block carrying a conditional branch (fed directly to
// solver.WithBranches).
type ParsedFunction struct {
	Sinks    []ir.Variable
	StackReg ir.Variable
	Branches []ir.FlowBlock
	// order lists sink names in file order, for stable table output.
	order []string
}

// ParseFunction reads a line-oriented textual IR format: "block name -> succ,
// succ" headers (the first block is the entry), "%out[:size] = OPCODE
// operand, ..." statements and "cbranch %cond" lines inside the current
// block, "sink %v" and "stack %v" declarations, and "#" comments. It exists
// so the CLI has something to run solve against end-to-end without
// depending on a real disassembler front end.
func ParseFunction(r io.Reader) (*ParsedFunction, error) {
	p := &parser{
		vars:   make(map[string]*fnVar),
		blocks: make(map[string]*fnBlock),
	}

	scanner := bufio.NewScanner(r)

	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)

		if line == "" {
			continue
		}

		if err := p.parseLine(line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if p.entry == nil {
		return nil, fmt.Errorf("no block declared")
	}

	computeDominance(p.entry, p.blockOrder)

	fn := &ParsedFunction{StackReg: p.stackVar}

	for _, name := range p.sinkOrder {
		fn.Sinks = append(fn.Sinks, p.vars[name])
		fn.order = append(fn.order, name)
	}

	for _, b := range p.blockOrder {
		if b.cbranch != nil {
			fn.Branches = append(fn.Branches, b)
		}
	}

	return fn, nil
}

// SinkNames returns the sink variable names in the order they were declared.
func (fn *ParsedFunction) SinkNames() []string {
	return fn.order
}

func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}

	return line
}

type parser struct {
	vars       map[string]*fnVar
	blocks     map[string]*fnBlock
	blockOrder []*fnBlock
	entry      *fnBlock
	current    *fnBlock
	stackVar   ir.Variable
	sinkOrder  []string
}

func (p *parser) getOrCreateVar(name string) *fnVar {
	if v, ok := p.vars[name]; ok {
		return v
	}

	v := &fnVar{name: name}
	p.vars[name] = v

	return v
}

func (p *parser) getOrCreateBlock(name string) *fnBlock {
	if b, ok := p.blocks[name]; ok {
		return b
	}

	b := &fnBlock{name: name}
	p.blocks[name] = b

	return b
}

func (p *parser) parseLine(line string) error {
	switch {
	case strings.HasPrefix(line, "block "):
		return p.parseBlockHeader(strings.TrimPrefix(line, "block "))
	case strings.HasPrefix(line, "sink "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "sink "))
		name = strings.TrimPrefix(name, "%")
		p.getOrCreateVar(name)
		p.sinkOrder = append(p.sinkOrder, name)

		return nil
	case strings.HasPrefix(line, "stack "):
		name := strings.TrimSpace(strings.TrimPrefix(line, "stack "))
		name = strings.TrimPrefix(name, "%")
		p.stackVar = p.getOrCreateVar(name)

		return nil
	case strings.HasPrefix(line, "cbranch "):
		return p.parseCBranch(strings.TrimPrefix(line, "cbranch "))
	default:
		return p.parseAssignment(line)
	}
}

func (p *parser) parseBlockHeader(rest string) error {
	name, succPart, _ := strings.Cut(rest, "->")
	name = strings.TrimSpace(name)

	b := p.getOrCreateBlock(name)
	b.idx = uint(len(p.blockOrder))
	p.blockOrder = append(p.blockOrder, b)

	if p.entry == nil {
		p.entry = b
	}

	succPart = strings.TrimSpace(succPart)
	if succPart != "" {
		for _, s := range strings.Split(succPart, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}

			b.successors = append(b.successors, p.getOrCreateBlock(s))
		}
	}

	p.current = b

	return nil
}

func (p *parser) parseCBranch(rest string) error {
	if p.current == nil {
		return fmt.Errorf("cbranch outside any block")
	}

	cond := strings.TrimSpace(rest)
	cond = strings.TrimPrefix(cond, "%")

	if len(p.current.successors) != 2 {
		return fmt.Errorf("block %s: cbranch requires exactly 2 declared successors, has %d",
			p.current.name, len(p.current.successors))
	}

	condVar := p.getOrCreateVar(cond)
	op := &fnOp{opcode: ir.OpCBranch, inputs: []ir.Variable{condVar}, block: p.current}
	p.current.cbranch = op
	condVar.uses = append(condVar.uses, op)

	return nil
}

var opcodeNames = map[string]ir.Opcode{
	"COPY":          ir.OpCopy,
	"INT_ADD":       ir.OpIntAdd,
	"INT_SUB":       ir.OpIntSub,
	"INT_MULT":      ir.OpIntMult,
	"INT_AND":       ir.OpIntAnd,
	"INT_OR":        ir.OpIntOr,
	"INT_XOR":       ir.OpIntXor,
	"INT_SHL":       ir.OpIntShl,
	"INT_SHR":       ir.OpIntShr,
	"INT_SAR":       ir.OpIntSar,
	"INT_NEGATE":    ir.OpIntNegate,
	"INT_NOT":       ir.OpIntNot,
	"INT_ZEXT":      ir.OpIntZext,
	"INT_SEXT":      ir.OpIntSext,
	"SUBPIECE":      ir.OpIntSubPiece,
	"INT_EQUAL":     ir.OpIntEqual,
	"INT_NOTEQUAL":  ir.OpIntNotEqual,
	"INT_LESS":      ir.OpIntLess,
	"INT_SLESS":     ir.OpIntSLess,
	"INT_LESSEQUAL": ir.OpIntLessEqual,
	"INT_SLESSEQUAL": ir.OpIntSLessEqual,
	"BRANCH":        ir.OpBranch,
	"MULTIEQUAL":    ir.OpMultiEqual,
}

// parseAssignment handles "%out[:size] = OPCODE operand, operand, ...".
func (p *parser) parseAssignment(line string) error {
	if p.current == nil {
		return fmt.Errorf("statement outside any block: %q", line)
	}

	lhs, rhs, ok := strings.Cut(line, "=")
	if !ok {
		return fmt.Errorf("expected assignment, got %q", line)
	}

	outName, outSize, err := parseVarRef(strings.TrimSpace(lhs))
	if err != nil {
		return err
	}

	out := p.getOrCreateVar(outName)
	if outSize > 0 {
		out.size = outSize
	}

	fields := strings.Fields(strings.TrimSpace(rhs))
	if len(fields) == 0 {
		return fmt.Errorf("missing opcode in %q", line)
	}

	opc, ok := opcodeNames[fields[0]]
	if !ok {
		return fmt.Errorf("unknown opcode %q", fields[0])
	}

	operandText := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rhs), fields[0]))

	var inputs []ir.Variable

	if operandText != "" {
		for _, tok := range strings.Split(operandText, ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}

			in, err := p.resolveOperand(tok, out.size)
			if err != nil {
				return err
			}

			inputs = append(inputs, in)
		}
	}

	op := &fnOp{opcode: opc, inputs: inputs, output: out, block: p.current}
	out.def = op

	for _, in := range inputs {
		if v, ok := in.(*fnVar); ok {
			v.uses = append(v.uses, op)
		}
	}

	return nil
}

// resolveOperand parses either "%name" (a previously or newly declared
// variable) or a bare decimal integer (an inline constant, sized to match
// the defining operation's output — constants carry no independent width
// in this format).
func (p *parser) resolveOperand(tok string, outSize uint) (ir.Variable, error) {
	if strings.HasPrefix(tok, "%") {
		name, size, err := parseVarRef(tok)
		if err != nil {
			return nil, err
		}

		v := p.getOrCreateVar(name)
		if size > 0 {
			v.size = size
		}

		return v, nil
	}

	val, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid operand %q", tok)
	}

	return &fnVar{name: tok, size: outSize, constVal: val, hasConst: true}, nil
}

// parseVarRef splits "%name:size" into name and size (0 if unspecified).
func parseVarRef(tok string) (name string, size uint, err error) {
	if !strings.HasPrefix(tok, "%") {
		return "", 0, fmt.Errorf("expected variable reference starting with %%, got %q", tok)
	}

	tok = strings.TrimPrefix(tok, "%")

	name, sizeStr, hasSize := strings.Cut(tok, ":")
	if !hasSize {
		return name, 0, nil
	}

	n, err := strconv.ParseUint(sizeStr, 10, 8)
	if err != nil {
		return "", 0, fmt.Errorf("invalid size in %q: %w", tok, err)
	}

	return name, uint(n), nil
}

// computeDominance fills in every block's idom field using the iterative
// dominance algorithm of Cooper, Harvey and Kennedy ("A Simple, Fast
// Dominance Algorithm"): repeatedly intersect the already-resolved
// dominators of a block's predecessors, walking in reverse postorder, until
// no block's immediate dominator changes. entry is its own idom; a block
// never reached from entry along the declared successor edges keeps idom ==
// nil, and Dominates reports false for it (other than reflexively).
func computeDominance(entry *fnBlock, all []*fnBlock) {
	postorder := make(map[*fnBlock]int)
	visited := make(map[*fnBlock]bool)

	var order []*fnBlock

	var visit func(b *fnBlock)
	visit = func(b *fnBlock) {
		if visited[b] {
			return
		}

		visited[b] = true

		for _, s := range b.successors {
			visit(s)
		}

		order = append(order, b)
	}

	visit(entry)

	for i, b := range order {
		postorder[b] = i
	}

	reachable := order

	predecessors := make(map[*fnBlock][]*fnBlock)
	for _, b := range all {
		for _, s := range b.successors {
			predecessors[s] = append(predecessors[s], b)
		}
	}

	entry.idom = entry

	// Process in reverse postorder: highest postorder number (entry) first.
	rpo := make([]*fnBlock, len(reachable))
	for i, b := range reachable {
		rpo[len(reachable)-1-i] = b
	}

	intersect := func(b1, b2 *fnBlock) *fnBlock {
		for b1 != b2 {
			for postorder[b1] < postorder[b2] {
				b1 = b1.idom
			}

			for postorder[b2] < postorder[b1] {
				b2 = b2.idom
			}
		}

		return b1
	}

	changed := true
	for changed {
		changed = false

		for _, b := range rpo {
			if b == entry {
				continue
			}

			preds := predecessors[b]

			var newIdom *fnBlock

			for _, p := range preds {
				if p.idom == nil {
					continue
				}

				if newIdom == nil {
					newIdom = p
					continue
				}

				newIdom = intersect(p, newIdom)
			}

			if newIdom != nil && b.idom != newIdom {
				b.idom = newIdom
				changed = true
			}
		}
	}
}
