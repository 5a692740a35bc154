/*
 * kernelsim - Process control block
 *
 * Copyright 2024, Richard Cornwell
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 */

// Package process implements the per-process control block: program,
// variables, loop stack, instruction pointer, logs, and status. PCBs are
// owned by the scheduler's process table; the ready queue holds only
// process names as non-owning handles.
package process

import (
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"kernelsim/isa"
)

// MaxVariables caps the number of distinct named variables a process may
// hold. Declarations beyond the cap, and auto-inits of unseen names on
// first use, are silently dropped once the cap is reached.
const MaxVariables = 32

// MaxForNesting caps FOR_START/FOR_END nesting depth.
const MaxForNesting = 3

// MaxUserInstructions is the longest program a submitter may supply
// directly.
const MaxUserInstructions = 50

// ForContext is one entry of the loop stack.
type ForContext struct {
	StartIndex int
	Remaining  int
}

// PCB is one process's complete state.
type PCB struct {
	Name               string
	StartTime          string
	Program            []isa.Instruction
	InstructionPointer int
	Variables          map[string]uint16
	ForStack           []ForContext
	logs               strings.Builder
	IsFinished         bool
	LastExecutedCore   int
	ViolationTime      string
	ViolationAddr      uint32
	HasViolation       bool
	AllocatedBytes     int
	busy               atomic.Bool
}

// Acquire claims exclusive execution rights for one scheduling step,
// reporting false if some other worker already holds them. Guards the
// one-core-at-a-time invariant independently of whichever queue a PCB's
// name sits in.
func (p *PCB) Acquire() bool {
	return p.busy.CompareAndSwap(false, true)
}

// Release gives up exclusive execution rights claimed by Acquire.
func (p *PCB) Release() {
	p.busy.Store(false)
}

// New creates an empty PCB with the given name, stamped with the current
// time in the format the utilization report expects.
func New(name string, now time.Time) *PCB {
	return &PCB{
		Name:             name,
		StartTime:        now.Format("01/02/2006 03:04:05PM"),
		Variables:        make(map[string]uint16),
		LastExecutedCore: -1,
	}
}

// AddInstruction appends one instruction to the program.
func (p *PCB) AddInstruction(ins isa.Instruction) {
	p.Program = append(p.Program, ins)
}

// TotalInstructions returns the program length.
func (p *PCB) TotalInstructions() int {
	return len(p.Program)
}

// GetLog returns the accumulated log text.
func (p *PCB) GetLog() string {
	return p.logs.String()
}

// AppendLog appends one line of log text.
func (p *PCB) AppendLog(line string) {
	p.logs.WriteString(line)
	p.logs.WriteByte('\n')
}

// GetStartTime returns the formatted creation timestamp.
func (p *PCB) GetStartTime() string {
	return p.StartTime
}

// ResolveOrInit returns the current value of a variable, auto-initializing
// it to 0 on first use if the 32-variable cap has not been reached; beyond
// the cap the read simply returns 0 without creating an entry.
func (p *PCB) ResolveOrInit(name string) uint16 {
	if v, ok := p.Variables[name]; ok {
		return v
	}
	if len(p.Variables) < MaxVariables {
		p.Variables[name] = 0
	}
	return 0
}

// SetVariable writes a variable, respecting the 32-variable cap: a brand
// new name once the cap is reached is silently dropped.
func (p *PCB) SetVariable(name string, value uint16) {
	if _, ok := p.Variables[name]; !ok && len(p.Variables) >= MaxVariables {
		return
	}
	p.Variables[name] = value
}

// ResolveOperand resolves an ADD/SUBTRACT/WRITE value operand: a literal
// as-is, or a variable auto-initialized to 0 if unseen.
func (p *PCB) ResolveOperand(op isa.Operand) uint16 {
	if op.Kind == isa.OperandLiteral {
		return op.Literal
	}
	return p.ResolveOrInit(op.Symbol)
}

// GenerateInstructions fills the program with count random instructions,
// occasionally emitting a FOR block of 2-4 body instructions nested up to
// MaxForNesting deep. Exactly count instructions are produced; FOR_START
// and FOR_END both count toward the budget. addrSpace bounds generated
// READ/WRITE addresses to [0, max(16, addrSpace)).
func (p *PCB) GenerateInstructions(count int, addrSpace int, rng *rand.Rand) {
	bound := addrSpace
	if bound < 16 {
		bound = 16
	}
	p.Program = append(p.Program, generateBlock(count, 0, bound, p.Name, rng)...)
}

var leafKinds = []isa.Kind{isa.DECLARE, isa.ADD, isa.SUBTRACT, isa.PRINT, isa.SLEEP, isa.READ, isa.WRITE}

func generateBlock(count, depth, bound int, procName string, rng *rand.Rand) []isa.Instruction {
	var out []isa.Instruction
	for len(out) < count {
		remaining := count - len(out)
		if depth < MaxForNesting && remaining >= 4 && rng.Intn(5) == 0 {
			bodyLen := 2 + rng.Intn(3)
			if bodyLen > remaining-2 {
				bodyLen = remaining - 2
			}
			if bodyLen < 1 {
				out = append(out, randomLeaf(procName, bound, rng))
				continue
			}
			reps := uint16(1 + rng.Intn(3))
			out = append(out, isa.Instruction{Kind: isa.FOR_START, Operands: []isa.Operand{isa.Lit(reps)}})
			out = append(out, generateBlock(bodyLen, depth+1, bound, procName, rng)...)
			out = append(out, isa.Instruction{Kind: isa.FOR_END})
			continue
		}
		out = append(out, randomLeaf(procName, bound, rng))
	}
	return out
}

func randomLeaf(procName string, bound int, rng *rand.Rand) isa.Instruction {
	kind := leafKinds[rng.Intn(len(leafKinds))]
	varName := func() string { return fmt.Sprintf("var%d", rng.Intn(100)) }
	randOperand := func() isa.Operand {
		if rng.Intn(2) == 0 {
			return isa.Lit(uint16(rng.Intn(65536)))
		}
		return isa.Sym(varName())
	}
	switch kind {
	case isa.DECLARE:
		return isa.Instruction{Kind: isa.DECLARE, Operands: []isa.Operand{isa.Sym(varName()), isa.Lit(uint16(rng.Intn(65536)))}}
	case isa.ADD, isa.SUBTRACT:
		return isa.Instruction{Kind: kind, Operands: []isa.Operand{isa.Sym(varName()), randOperand(), randOperand()}}
	case isa.PRINT:
		return isa.Instruction{Kind: isa.PRINT, Operands: []isa.Operand{isa.Sym(fmt.Sprintf("Hello world from %s!", procName))}}
	case isa.SLEEP:
		return isa.Instruction{Kind: isa.SLEEP, Operands: []isa.Operand{isa.Lit(uint16(1 + rng.Intn(3)))}}
	case isa.READ:
		return isa.Instruction{Kind: isa.READ, Operands: []isa.Operand{isa.Sym(varName()), isa.Addr(uint32(rng.Intn(bound)))}}
	case isa.WRITE:
		return isa.Instruction{Kind: isa.WRITE, Operands: []isa.Operand{isa.Addr(uint32(rng.Intn(bound))), randOperand()}}
	default:
		return isa.Instruction{Kind: isa.PRINT, Operands: []isa.Operand{isa.Sym("Hello world!")}}
	}
}
