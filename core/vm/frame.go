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

package vm

import (
	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/common"
	"github.com/evmkit/evmkit/core/state"
)

// HaltState is the terminal status of a frame once Run returns.
type HaltState int

const (
	// Running means the frame has not halted: Run has not yet returned, or
	// it returned a frame-abort error.
	Running HaltState = iota
	// Stop is a plain STOP or falling off the end of code.
	Stop
	// Return is a RETURN, carrying return data.
	Return
	// Revert is a REVERT: return data is preserved but world/log changes
	// made by this frame and its descendants are rolled back.
	Revert
)

func (h HaltState) String() string {
	switch h {
	case Running:
		return "Running"
	case Stop:
		return "Stop"
	case Return:
		return "Return"
	case Revert:
		return "Revert"
	default:
		return "Unknown"
	}
}

// Frame is one invocation's execution state: program counter, stack,
// memory, remaining gas, return buffer, halt state, and the world it
// executes against.
type Frame struct {
	code      []byte
	calldata  []byte
	jumpdests jumpdests

	pc     uint64
	gas    int64
	stack  *Stack
	memory *Memory

	world *state.World
	env   TxEnv
	block *BlockEnv

	halt       HaltState
	returnData []byte

	// lastReturnData serves RETURNDATASIZE/RETURNDATACOPY: the most recent
	// child call's return data (nil before any call).
	lastReturnData []byte

	logs   []Log
	refund uint64

	depth int

	cfg *Config
}

// PC returns the current program counter.
func (f *Frame) PC() uint64 { return f.pc }

// Gas returns the frame's remaining gas (never negative once Run returns,
// by construction: a negative reading mid-step is what triggers OutOfGas).
func (f *Frame) Gas() uint64 {
	if f.gas < 0 {
		return 0
	}
	return uint64(f.gas)
}

// Stack returns a snapshot of the stack, bottom item first.
func (f *Frame) Stack() []uint256.Int { return f.stack.items() }

// Memory returns a copy of the frame's memory contents.
func (f *Frame) Memory() []byte { return f.memory.Bytes() }

// Storage returns the executing account's storage map as it stands in the
// frame's (possibly still-uncommitted) world.
func (f *Frame) Storage() state.Storage {
	return f.world.Get(f.env.Address).Storage.Copy()
}

// ReturnData returns the frame's own return buffer (set on Return/Revert).
func (f *Frame) ReturnData() []byte { return f.returnData }

// Halted reports the frame's terminal status.
func (f *Frame) Halted() HaltState { return f.halt }

// Logs returns the events this frame (and any committed descendants)
// recorded, in emission order.
func (f *Frame) Logs() []Log { return f.logs }

// Refund returns the accumulated SSTORE refund counter. This engine does
// not apply any consumption rule to it; it is exposed for tests only (see
// spec.md §4.5).
func (f *Frame) Refund() uint64 { return f.refund }

// World returns the frame's world snapshot as it stands after Run returns.
func (f *Frame) World() *state.World { return f.world }

// Address returns the account this frame is executing as.
func (f *Frame) Address() common.Address { return f.env.Address }

// appendLog records a log entry emitted by this frame.
func (f *Frame) appendLog(l Log) { f.logs = append(f.logs, l) }
