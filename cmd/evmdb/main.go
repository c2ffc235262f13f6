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

// Command evmdb is an interactive, single-stepping debugger for one piece
// of bytecode: step/continue/break plus stack and memory dumps.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"gopkg.in/urfave/cli.v1"

	"github.com/evmkit/evmkit/common"
	"github.com/evmkit/evmkit/core/vm"
	"github.com/evmkit/evmkit/internal/disasm"
	"github.com/evmkit/evmkit/trace"
)

func main() {
	app := cli.NewApp()
	app.Name = "evmdb"
	app.Usage = "interactively step through a bytecode program"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "code", Usage: "bytecode as a hex string"},
		cli.StringFlag{Name: "codefile", Usage: "path to a file containing bytecode"},
		cli.StringFlag{Name: "calldata", Usage: "calldata as a hex string"},
		cli.Uint64Flag{Name: "gas", Usage: "gas limit", Value: 10_000_000},
	}
	app.Action = runDebugger

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func runDebugger(c *cli.Context) error {
	var code []byte
	var err error
	switch {
	case c.String("code") != "":
		code, err = common.DecodeHex(c.String("code"))
	case c.String("codefile") != "":
		var data []byte
		data, err = os.ReadFile(c.String("codefile"))
		if err == nil {
			code, err = common.DecodeHex(string(data))
		}
	default:
		return fmt.Errorf("one of --code or --codefile is required")
	}
	if err != nil {
		return err
	}
	calldata, err := common.DecodeHex(c.String("calldata"))
	if err != nil {
		return err
	}

	d := newDebugger(code, calldata, c.Uint64("gas"))
	d.run()
	return nil
}

// debugger wraps a single *vm.Frame, constructed once via vm.NewTopFrame
// and driven forward one instruction at a time through Frame.Step.
type debugger struct {
	frame    *vm.Frame
	instrs   []disasm.Instruction
	breaks   map[uint64]bool
	recorder *trace.Recorder
	line     *liner.State
}

func newDebugger(code, calldata []byte, gas uint64) *debugger {
	cfg := vm.Config{Code: code, Calldata: calldata, GasLimit: gas}
	return &debugger{
		frame:    vm.NewTopFrame(cfg),
		instrs:   disasm.Disassemble(code),
		breaks:   make(map[uint64]bool),
		recorder: &trace.Recorder{},
		line:     liner.NewLiner(),
	}
}

func (d *debugger) run() {
	defer d.line.Close()

	color.Cyan("evmdb: %d instructions loaded\n", len(d.instrs))
	fmt.Println("commands: step, continue, break <pc>, stack, mem <off> <len>, list, trace <file>, quit")

	for {
		input, err := d.line.Prompt("evmdb> ")
		if err != nil {
			return
		}
		d.line.AppendHistory(input)
		fields := strings.Fields(input)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "quit", "exit":
			return
		case "list":
			disasm.WriteTable(os.Stdout, d.instrs)
		case "break":
			if len(fields) < 2 {
				color.Red("usage: break <pc>")
				continue
			}
			pc, err := strconv.ParseUint(fields[1], 10, 64)
			if err != nil {
				color.Red("bad pc: %v", err)
				continue
			}
			d.breaks[pc] = true
			fmt.Printf("breakpoint set at pc=%d\n", pc)
		case "trace":
			if len(fields) < 2 {
				color.Red("usage: trace <file>")
				continue
			}
			if err := d.recorder.ExportSnappyFile(fields[1]); err != nil {
				color.Red("export failed: %v", err)
				continue
			}
			fmt.Printf("wrote %d steps to %s\n", d.recorder.Len(), fields[1])
		case "step":
			d.step()
		case "continue":
			d.continueToBreak()
		case "stack":
			d.printStack()
		case "mem":
			if len(fields) < 3 {
				color.Red("usage: mem <offset> <len>")
				continue
			}
			d.printMemory(fields[1], fields[2])
		default:
			color.Red("unknown command: %s", fields[0])
		}
	}
}

func (d *debugger) step() bool {
	if d.frame.Halted() != vm.Running {
		color.Yellow("already halted: %s", d.frame.Halted())
		return true
	}
	pc := d.frame.PC()
	op := d.opAt(pc)
	if err := d.frame.Step(); err != nil {
		color.Red("aborted: %v (pc=%d)", err, pc)
		d.recorder.Record(pc, op, d.frame.Gas(), 0, len(d.frame.Stack()))
		return true
	}
	d.recorder.Record(pc, op, d.frame.Gas(), 0, len(d.frame.Stack()))
	fmt.Printf("pc=%d op=%s gas=%d halted=%s\n", pc, op, d.frame.Gas(), d.frame.Halted())
	return d.frame.Halted() != vm.Running
}

func (d *debugger) continueToBreak() {
	for {
		if d.step() {
			return
		}
		if d.breaks[d.frame.PC()] {
			color.Cyan("hit breakpoint at pc=%d", d.frame.PC())
			return
		}
	}
}

// opAt looks up the opcode at pc in the precomputed disassembly, for
// trace/printing purposes only (the frame itself has already decoded it).
func (d *debugger) opAt(pc uint64) vm.OpCode {
	for _, instr := range d.instrs {
		if instr.PC == pc {
			return instr.Op
		}
	}
	return vm.STOP
}

func (d *debugger) printStack() {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"depth", "value"})
	stack := d.frame.Stack()
	for i := len(stack) - 1; i >= 0; i-- {
		table.Append([]string{strconv.Itoa(len(stack) - 1 - i), stack[i].Hex()})
	}
	table.Render()
}

func (d *debugger) printMemory(offStr, lenStr string) {
	off, err1 := strconv.ParseUint(offStr, 10, 64)
	sz, err2 := strconv.ParseUint(lenStr, 10, 64)
	if err1 != nil || err2 != nil {
		color.Red("bad offset/length")
		return
	}
	mem := d.frame.Memory()
	end := off + sz
	if end > uint64(len(mem)) {
		end = uint64(len(mem))
	}
	if off > end {
		off = end
	}
	fmt.Printf("0x%x\n", mem[off:end])
}
