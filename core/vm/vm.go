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
	"github.com/sirupsen/logrus"

	"github.com/evmkit/evmkit/common"
	"github.com/evmkit/evmkit/core/state"
)

// maxCallDepth is the recursion ceiling for CALL/CREATE-family frames,
// mirroring the Yellow Paper's 1024 limit.
const maxCallDepth = 1024

// Config carries everything needed to construct and run a top-level frame.
// Fields left at their zero value take the defaults noted below.
type Config struct {
	Code     []byte
	Calldata []byte

	Address common.Address // defaults to the zero address
	Caller  common.Address
	Origin  common.Address

	Value    uint256.Int
	GasPrice uint256.Int
	GasLimit uint64

	Block BlockEnv

	// World is the state the frame executes against. If nil, a fresh empty
	// World is created.
	World *state.World

	// MaxSteps caps the number of instructions a single Run may execute
	// before it aborts with ErrMaxStepsExceeded. Zero means unbounded.
	MaxSteps uint64

	// Logger, if set, receives one Debug-level entry per executed
	// instruction (see Frame.traceStep). Left nil, tracing is skipped
	// entirely rather than logged to a discarded sink, to keep the hot
	// loop free of unnecessary formatting work.
	Logger *logrus.Logger

	jdCache *jumpdestCache
}

// Execute constructs the top-level frame described by cfg and runs it to
// completion. The returned *Frame is always non-nil (even on a frame-abort
// error) so callers can still inspect partial state (gas consumed, pc,
// whatever was on the stack) the way spec.md's result surface expects.
func Execute(cfg Config) (*Frame, error) {
	f := NewTopFrame(cfg)
	err := f.Run()
	return f, err
}

// NewTopFrame constructs the top-level frame described by cfg without
// running it, for callers (such as an interactive debugger) that want to
// drive Step themselves instead of using Execute's run-to-completion
// contract.
func NewTopFrame(cfg Config) *Frame {
	if cfg.jdCache == nil {
		cfg.jdCache = newJumpdestCache()
	}
	w := cfg.World
	if w == nil {
		w = state.New()
	}
	cfgCopy := cfg
	return newFrame(&cfgCopy, w, TxEnv{
		Address:   cfg.Address,
		Caller:    cfg.Caller,
		Origin:    cfg.Origin,
		CallValue: cfg.Value,
		GasPrice:  cfg.GasPrice,
	}, cfg.Code, cfg.Calldata, int64(cfg.GasLimit), 0)
}

// Step executes exactly one instruction, for callers driving execution one
// step at a time (see NewTopFrame). It returns the same frame-abort errors
// Run does; it does not consult Config.MaxSteps, since the caller is
// already in full control of how many steps to take.
func (f *Frame) Step() error {
	if f.halt != Running {
		return nil
	}
	return f.step()
}

// newFrame builds a Frame ready to Run, sharing cfg's jumpdest cache and
// block environment with every frame in the call tree.
func newFrame(cfg *Config, w *state.World, env TxEnv, code, calldata []byte, gas int64, depth int) *Frame {
	return &Frame{
		code:      code,
		calldata:  calldata,
		jumpdests: cfg.jdCache.get(code),
		gas:       gas,
		stack:     newStack(),
		memory:    newMemory(),
		world:     w,
		env:       env,
		block:     &cfg.Block,
		halt:      Running,
		depth:     depth,
		cfg:       cfg,
	}
}

// traceStep emits one structured log entry for the instruction about to
// execute, when the caller configured a Logger. Kept as a cheap no-op
// otherwise so Run's hot path never pays for field construction.
func (f *Frame) traceStep(op OpCode) {
	if f.cfg == nil || f.cfg.Logger == nil {
		return
	}
	f.cfg.Logger.WithFields(logrus.Fields{
		"pc":    f.pc,
		"op":    op.String(),
		"gas":   f.Gas(),
		"depth": f.depth,
		"stack": len(f.stack.data),
	}).Debug("step")
}
