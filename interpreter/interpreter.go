/*
 * kernelsim - Single-process instruction interpreter
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

// Package interpreter executes one PCB instruction at a time under
// fault-driven retry: it executes a process control block's program, it
// never touches memory except through the memory manager, and never
// advances the instruction pointer past a page fault.
package interpreter

import (
	"errors"
	"fmt"
	"time"

	"kernelsim/isa"
	"kernelsim/memory"
	"kernelsim/process"
)

// Outcome is the result of one StepOnce call.
type Outcome int

const (
	Advanced Outcome = iota
	Retry
	Terminated
)

func (o Outcome) String() string {
	switch o {
	case Advanced:
		return "Advanced"
	case Retry:
		return "Retry"
	case Terminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// Interpreter runs PCBs against a shared memory manager.
type Interpreter struct {
	mm         *memory.Manager
	pacingUnit time.Duration
}

// New creates an interpreter. pacingUnit scales SLEEP's tick count into a
// real delay.
func New(mm *memory.Manager, pacingUnit time.Duration) *Interpreter {
	return &Interpreter{mm: mm, pacingUnit: pacingUnit}
}

// StepOnce executes at most one instruction of pcb on coreID.
func (in *Interpreter) StepOnce(pcb *process.PCB, coreID int) (Outcome, error) {
	if pcb.InstructionPointer >= len(pcb.Program) {
		return in.finish(pcb), nil
	}

	ins := pcb.Program[pcb.InstructionPointer]

	switch ins.Kind {
	case isa.FOR_START:
		pcb.ForStack = append(pcb.ForStack, process.ForContext{
			StartIndex: pcb.InstructionPointer,
			Remaining:  int(ins.Operands[0].Literal),
		})
		pcb.InstructionPointer++
		return Advanced, nil

	case isa.FOR_END:
		if len(pcb.ForStack) == 0 {
			pcb.InstructionPointer++
			return Advanced, nil
		}
		top := len(pcb.ForStack) - 1
		pcb.ForStack[top].Remaining--
		if pcb.ForStack[top].Remaining > 0 {
			pcb.InstructionPointer = pcb.ForStack[top].StartIndex + 1
		} else {
			pcb.ForStack = pcb.ForStack[:top]
			pcb.InstructionPointer++
		}
		return Advanced, nil
	}

	if err := in.mm.EnsurePagesPresent(pcb.Name, ins); err != nil {
		var fault *memory.PageFaultError
		if errors.As(err, &fault) {
			if serr := in.mm.ServicePageFault(fault.Proc, fault.Addr); serr != nil {
				return in.terminate(pcb, coreID, serr), serr
			}
			return Retry, nil
		}
		return in.terminate(pcb, coreID, err), nil
	}

	if err := in.execute(pcb, ins, coreID); err != nil {
		var fault *memory.PageFaultError
		if errors.As(err, &fault) {
			if serr := in.mm.ServicePageFault(fault.Proc, fault.Addr); serr != nil {
				return in.terminate(pcb, coreID, serr), serr
			}
			return Retry, nil
		}
		return in.terminate(pcb, coreID, err), nil
	}

	pcb.LastExecutedCore = coreID
	pcb.InstructionPointer++
	if pcb.InstructionPointer >= len(pcb.Program) {
		return in.finish(pcb), nil
	}
	return Advanced, nil
}

func (in *Interpreter) execute(pcb *process.PCB, ins isa.Instruction, coreID int) error {
	switch ins.Kind {
	case isa.DECLARE:
		pcb.SetVariable(ins.Operands[0].Symbol, ins.Operands[1].Literal)

	case isa.ADD:
		left := pcb.ResolveOperand(ins.Operands[1])
		right := pcb.ResolveOperand(ins.Operands[2])
		sum := uint32(left) + uint32(right)
		if sum > 65535 {
			sum = 65535
		}
		pcb.SetVariable(ins.Operands[0].Symbol, uint16(sum))

	case isa.SUBTRACT:
		left := pcb.ResolveOperand(ins.Operands[1])
		right := pcb.ResolveOperand(ins.Operands[2])
		var diff uint16
		if left > right {
			diff = left - right
		}
		pcb.SetVariable(ins.Operands[0].Symbol, diff)

	case isa.PRINT:
		pcb.AppendLog(formatLog(coreID, ins.Operands[0].Symbol))

	case isa.SLEEP:
		ticks := ins.Operands[0].Literal
		time.Sleep(time.Duration(ticks) * in.pacingUnit)

	case isa.READ:
		addr := ins.Operands[1].Address
		value, err := in.mm.Read(pcb.Name, addr)
		if err != nil {
			return err
		}
		pcb.SetVariable(ins.Operands[0].Symbol, value)
		pcb.AppendLog(formatLog(coreID, fmt.Sprintf("READ %s <- [0x%X] = %d", ins.Operands[0].Symbol, addr, value)))

	case isa.WRITE:
		addr := ins.Operands[0].Address
		value := pcb.ResolveOperand(ins.Operands[1])
		if err := in.mm.Write(pcb.Name, addr, value); err != nil {
			return err
		}
		pcb.AppendLog(formatLog(coreID, fmt.Sprintf("WRITE [0x%X] = %d", addr, value)))
	}
	return nil
}

func (in *Interpreter) finish(pcb *process.PCB) Outcome {
	pcb.IsFinished = true
	pcb.AppendLog(fmt.Sprintf("[Finished] Process %s completed.", pcb.Name))
	return Terminated
}

func (in *Interpreter) terminate(pcb *process.PCB, coreID int, err error) Outcome {
	var violation *memory.AccessViolationError
	if errors.As(err, &violation) {
		pcb.ViolationTime = time.Now().Format("01/02/2006 03:04:05PM")
		pcb.ViolationAddr = violation.Addr
		pcb.HasViolation = true
		pcb.AppendLog(formatLog(coreID, fmt.Sprintf("access violation at 0x%X", violation.Addr)))
	} else {
		pcb.AppendLog(formatLog(coreID, fmt.Sprintf("terminated: %v", err)))
	}
	pcb.IsFinished = true
	return Terminated
}

func formatLog(coreID int, msg string) string {
	return fmt.Sprintf("[%s] [Core %d] %s", time.Now().Format("03:04:05PM"), coreID, msg)
}
