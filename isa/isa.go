/*
 * kernelsim - Synthetic process instruction set
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

// Package isa defines the tiny instruction set the interpreter executes:
// tagged instruction records and their typed operands.
package isa

import "fmt"

// Kind tags the instruction variant.
type Kind int

const (
	DECLARE Kind = iota
	ADD
	SUBTRACT
	PRINT
	SLEEP
	READ
	WRITE
	FOR_START
	FOR_END
)

func (k Kind) String() string {
	switch k {
	case DECLARE:
		return "DECLARE"
	case ADD:
		return "ADD"
	case SUBTRACT:
		return "SUBTRACT"
	case PRINT:
		return "PRINT"
	case SLEEP:
		return "SLEEP"
	case READ:
		return "READ"
	case WRITE:
		return "WRITE"
	case FOR_START:
		return "FOR_START"
	case FOR_END:
		return "FOR_END"
	default:
		return "UNKNOWN"
	}
}

// OperandKind tags which field of Operand is meaningful.
type OperandKind int

const (
	OperandLiteral OperandKind = iota // 16-bit literal
	OperandAddress                    // 32-bit address
	OperandSymbol                     // variable name
)

// Operand is a typed instruction operand: exactly one of Literal, Address,
// or Symbol is meaningful, selected by Kind.
type Operand struct {
	Kind    OperandKind
	Literal uint16
	Address uint32
	Symbol  string
}

func Lit(v uint16) Operand     { return Operand{Kind: OperandLiteral, Literal: v} }
func Addr(v uint32) Operand    { return Operand{Kind: OperandAddress, Address: v} }
func Sym(name string) Operand  { return Operand{Kind: OperandSymbol, Symbol: name} }

func (o Operand) String() string {
	switch o.Kind {
	case OperandLiteral:
		return fmt.Sprintf("%d", o.Literal)
	case OperandAddress:
		return fmt.Sprintf("0x%X", o.Address)
	case OperandSymbol:
		return o.Symbol
	default:
		return "?"
	}
}

// Instruction is one tagged instruction record.
type Instruction struct {
	Kind     Kind
	Operands []Operand
}

// Arity returns the required operand count for a kind, and whether the
// kind is recognized.
func Arity(k Kind) (int, bool) {
	switch k {
	case DECLARE:
		return 2, true
	case ADD, SUBTRACT:
		return 3, true
	case PRINT:
		return 1, true
	case SLEEP:
		return 1, true
	case READ:
		return 2, true
	case WRITE:
		return 2, true
	case FOR_START:
		return 1, true
	case FOR_END:
		return 0, true
	default:
		return 0, false
	}
}

// Validate checks that an instruction's operand count and operand types
// match its kind, per the ISA's arity table.
func Validate(ins Instruction) error {
	n, ok := Arity(ins.Kind)
	if !ok {
		return fmt.Errorf("isa: unknown instruction kind %d", ins.Kind)
	}
	if len(ins.Operands) != n {
		return fmt.Errorf("isa: %s requires %d operands, got %d", ins.Kind, n, len(ins.Operands))
	}
	switch ins.Kind {
	case DECLARE:
		if err := expectOne(ins.Operands[0], OperandSymbol); err != nil {
			return fmt.Errorf("isa: DECLARE name: %w", err)
		}
		return expectOne(ins.Operands[1], OperandLiteral)
	case ADD, SUBTRACT:
		if err := expectOne(ins.Operands[0], OperandSymbol); err != nil {
			return fmt.Errorf("isa: %s dest: %w", ins.Kind, err)
		}
		for i := 1; i <= 2; i++ {
			if err := expectOne(ins.Operands[i], OperandSymbol, OperandLiteral); err != nil {
				return fmt.Errorf("isa: %s operand %d: %w", ins.Kind, i, err)
			}
		}
	case PRINT:
		return expectOne(ins.Operands[0], OperandSymbol)
	case SLEEP:
		return expectOne(ins.Operands[0], OperandLiteral)
	case READ:
		if err := expectOne(ins.Operands[0], OperandSymbol); err != nil {
			return fmt.Errorf("isa: READ dest: %w", err)
		}
		return expectOne(ins.Operands[1], OperandAddress)
	case WRITE:
		if err := expectOne(ins.Operands[0], OperandAddress); err != nil {
			return fmt.Errorf("isa: WRITE address: %w", err)
		}
		return expectOne(ins.Operands[1], OperandSymbol, OperandLiteral)
	case FOR_START:
		return expectOne(ins.Operands[0], OperandLiteral)
	}
	return nil
}

func expectOne(o Operand, kinds ...OperandKind) error {
	for _, k := range kinds {
		if o.Kind == k {
			return nil
		}
	}
	return fmt.Errorf("unexpected operand kind %d", o.Kind)
}
