/*
 * kernelsim - Textual instruction parser
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

package isa

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseProgram splits a semicolon-separated instruction batch and parses
// each one. Invalid lines are skipped with a diagnostic rather than
// aborting the whole submission, per the parse-error handling policy.
func ParseProgram(batch string) (program []Instruction, diagnostics []string) {
	for _, stmt := range splitStatements(batch) {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		ins, err := ParseStatement(stmt)
		if err != nil {
			diagnostics = append(diagnostics, fmt.Sprintf("%q: %v", stmt, err))
			continue
		}
		program = append(program, ins)
	}
	return program, diagnostics
}

// splitStatements splits on ';' but keeps semicolons inside a quoted PRINT
// message from breaking the split.
func splitStatements(batch string) []string {
	var stmts []string
	inQuotes := false
	start := 0
	for i, r := range batch {
		switch r {
		case '"':
			inQuotes = !inQuotes
		case ';':
			if !inQuotes {
				stmts = append(stmts, batch[start:i])
				start = i + 1
			}
		}
	}
	stmts = append(stmts, batch[start:])
	return stmts
}

// ParseStatement parses one instruction line in the textual syntax from
// the external interface spec:
//
//	DECLARE <name> <u16>
//	ADD <dest> <op1> <op2>
//	SUBTRACT <dest> <op1> <op2>
//	PRINT "<message>"
//	SLEEP <u16>
//	READ <dest> <hex-address>
//	WRITE <hex-address> <u16-or-name>
//	FOR_START <u16>
//	FOR_END
func ParseStatement(line string) (Instruction, error) {
	keyword, rest := splitKeyword(line)
	switch strings.ToUpper(keyword) {
	case "DECLARE":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Instruction{}, fmt.Errorf("DECLARE requires <name> <u16>")
		}
		lit, err := parseU16(fields[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: DECLARE, Operands: []Operand{Sym(fields[0]), Lit(lit)}}, nil

	case "ADD", "SUBTRACT":
		kind := ADD
		if strings.ToUpper(keyword) == "SUBTRACT" {
			kind = SUBTRACT
		}
		fields := strings.Fields(rest)
		if len(fields) != 3 {
			return Instruction{}, fmt.Errorf("%s requires <dest> <op1> <op2>", keyword)
		}
		op1, err := parseValueOperand(fields[1])
		if err != nil {
			return Instruction{}, err
		}
		op2, err := parseValueOperand(fields[2])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: kind, Operands: []Operand{Sym(fields[0]), op1, op2}}, nil

	case "PRINT":
		msg, err := parseQuoted(rest)
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: PRINT, Operands: []Operand{Sym(msg)}}, nil

	case "SLEEP":
		lit, err := parseU16(strings.TrimSpace(rest))
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: SLEEP, Operands: []Operand{Lit(lit)}}, nil

	case "READ":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Instruction{}, fmt.Errorf("READ requires <dest> <hex-address>")
		}
		addr, err := parseHexAddr(fields[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: READ, Operands: []Operand{Sym(fields[0]), Addr(addr)}}, nil

	case "WRITE":
		fields := strings.Fields(rest)
		if len(fields) != 2 {
			return Instruction{}, fmt.Errorf("WRITE requires <hex-address> <u16-or-name>")
		}
		addr, err := parseHexAddr(fields[0])
		if err != nil {
			return Instruction{}, err
		}
		val, err := parseValueOperand(fields[1])
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: WRITE, Operands: []Operand{Addr(addr), val}}, nil

	case "FOR_START":
		lit, err := parseU16(strings.TrimSpace(rest))
		if err != nil {
			return Instruction{}, err
		}
		return Instruction{Kind: FOR_START, Operands: []Operand{Lit(lit)}}, nil

	case "FOR_END":
		return Instruction{Kind: FOR_END}, nil

	default:
		return Instruction{}, fmt.Errorf("unknown instruction %q", keyword)
	}
}

func splitKeyword(line string) (keyword, rest string) {
	line = strings.TrimSpace(line)
	idx := strings.IndexAny(line, " \t")
	if idx < 0 {
		return line, ""
	}
	return line[:idx], line[idx+1:]
}

func parseValueOperand(field string) (Operand, error) {
	if lit, err := parseU16(field); err == nil {
		return Lit(lit), nil
	}
	return Sym(field), nil
}

func parseU16(field string) (uint16, error) {
	n, err := strconv.ParseUint(field, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid literal %q: %w", field, err)
	}
	return uint16(n), nil
}

func parseHexAddr(field string) (uint32, error) {
	field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
	n, err := strconv.ParseUint(field, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid hex address %q: %w", field, err)
	}
	return uint32(n), nil
}

func parseQuoted(field string) (string, error) {
	field = strings.TrimSpace(field)
	if len(field) < 2 || field[0] != '"' || field[len(field)-1] != '"' {
		return "", fmt.Errorf("PRINT message must be quoted: %q", field)
	}
	return field[1 : len(field)-1], nil
}
