// Copyright 2024 The evmkit Authors
// This file is part of evmkit.
//
// evmkit is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// evmkit is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with evmkit. If not, see <http://www.gnu.org/licenses/>.

// Package disasm turns raw bytecode into a human-readable instruction
// listing, for the debugger and for standalone inspection.
package disasm

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/evmkit/evmkit/core/vm"
)

// Instruction is one decoded bytecode position.
type Instruction struct {
	PC      uint64
	Op      vm.OpCode
	Operand []byte // PUSHn's immediate bytes, nil otherwise
}

// Disassemble walks code linearly, decoding one instruction per iteration
// and skipping PUSHn immediates, without validating jump destinations
// (that is core/vm's job, not this package's).
func Disassemble(code []byte) []Instruction {
	var out []Instruction
	for pc := uint64(0); pc < uint64(len(code)); {
		op := vm.OpCode(code[pc])
		instr := Instruction{PC: pc, Op: op}
		if op.IsPush() {
			n := op.PushSize()
			start := pc + 1
			end := start + uint64(n)
			if end > uint64(len(code)) {
				end = uint64(len(code))
			}
			instr.Operand = append([]byte(nil), code[start:end]...)
			pc = end
		} else {
			pc++
		}
		out = append(out, instr)
	}
	return out
}

// String renders one instruction as "PUSH2 0x01ff" / "ADD".
func (i Instruction) String() string {
	if len(i.Operand) > 0 {
		return fmt.Sprintf("%s 0x%x", i.Op, i.Operand)
	}
	return i.Op.String()
}

// WriteTable renders a disassembly as a pc/opcode/operand table.
func WriteTable(w io.Writer, instrs []Instruction) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"pc", "op", "operand"})
	table.SetAutoWrapText(false)
	for _, instr := range instrs {
		operand := ""
		if len(instr.Operand) > 0 {
			operand = fmt.Sprintf("0x%x", instr.Operand)
		}
		table.Append([]string{fmt.Sprintf("%d", instr.PC), instr.Op.String(), operand})
	}
	table.Render()
}
