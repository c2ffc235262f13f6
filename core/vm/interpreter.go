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

	"github.com/evmkit/evmkit/crypto"
)

// Run steps the frame until it halts (Stop/Return/Revert) or a frame-abort
// error occurs. A non-nil return is always a frame-abort error (OutOfGas,
// stack violation, InvalidJump, InvalidOpcode, StaticViolation,
// MemoryAccess, or a host step-budget trip) — Revert is reported through
// f.halt, not through this return value, per spec.md §7.
func (f *Frame) Run() error {
	var steps uint64
	for f.halt == Running {
		if f.cfg != nil && f.cfg.MaxSteps > 0 {
			steps++
			if steps > f.cfg.MaxSteps {
				return ErrMaxStepsExceeded
			}
		}
		if err := f.step(); err != nil {
			return err
		}
	}
	return nil
}

// step decodes and executes exactly one instruction.
func (f *Frame) step() error {
	if f.pc >= uint64(len(f.code)) {
		f.halt = Stop
		return nil
	}
	op := OpCode(f.code[f.pc])
	if !op.IsDefined() {
		return &InvalidOpcodeError{Op: op, PC: f.pc}
	}
	if f.env.IsStatic && op.IsStateModifying() {
		return ErrStaticViolation
	}

	f.traceStep(op)

	switch {
	case op.IsPush():
		return f.execPush(op)
	case op.IsDup():
		return f.execDup(op)
	case op.IsSwap():
		return f.execSwap(op)
	case op.IsLog():
		return f.execLog(op)
	}

	switch op {
	case STOP:
		f.halt = Stop
		return nil
	case ADD, MUL, SUB, DIV, LT, GT, EQ, AND, OR, XOR:
		return f.execBinary(op)
	case ISZERO, NOT:
		return f.execUnary(op)
	case SHA3:
		return f.execSha3()
	case POP:
		if err := f.useGas(gasQuickStep); err != nil {
			return err
		}
		if _, err := f.stack.pop(); err != nil {
			return err
		}
		f.pc++
		return nil
	case MLOAD:
		return f.execMload()
	case MSTORE:
		return f.execMstore()
	case MSTORE8:
		return f.execMstore8()
	case SLOAD:
		return f.execSload()
	case SSTORE:
		return f.execSstore()
	case JUMP:
		return f.execJump()
	case JUMPI:
		return f.execJumpi()
	case JUMPDEST:
		if err := f.useGas(gasJumpdest); err != nil {
			return err
		}
		f.pc++
		return nil
	case PC:
		return f.pushQuick(new(uint256.Int).SetUint64(f.pc))
	case MSIZE:
		return f.pushQuick(new(uint256.Int).SetUint64(uint64(f.memory.Len())))
	case GAS:
		g := f.gas
		if g < 0 {
			g = 0
		}
		return f.pushQuick(new(uint256.Int).SetUint64(uint64(g)))
	case ADDRESS:
		return f.pushQuickAddr(f.env.Address)
	case CALLER:
		return f.pushQuickAddr(f.env.Caller)
	case ORIGIN:
		return f.pushQuickAddr(f.env.Origin)
	case CALLVALUE:
		v := f.env.CallValue
		return f.pushQuick(&v)
	case GASPRICE:
		v := f.env.GasPrice
		return f.pushQuick(&v)
	case COINBASE:
		return f.pushQuickAddr(f.block.Coinbase)
	case TIMESTAMP:
		return f.pushQuick(new(uint256.Int).SetUint64(f.block.Timestamp))
	case NUMBER:
		return f.pushQuick(new(uint256.Int).SetUint64(f.block.Number))
	case PREVRANDAO:
		return f.pushQuick(new(uint256.Int))
	case GASLIMIT:
		v := f.block.GasLimit
		return f.pushQuick(&v)
	case CHAINID:
		v := f.block.ChainID
		return f.pushQuick(&v)
	case BASEFEE:
		v := f.block.BaseFee
		return f.pushQuick(&v)
	case SELFBALANCE:
		if err := f.useGas(5); err != nil {
			return err
		}
		bal := f.world.GetBalance(f.env.Address)
		if err := f.stack.push(&bal); err != nil {
			return err
		}
		f.pc++
		return nil
	case BALANCE:
		return f.execBalance()
	case EXTCODESIZE:
		return f.execExtcodesize()
	case EXTCODEHASH:
		return f.execExtcodehash()
	case EXTCODECOPY:
		return f.execExtcodecopy()
	case BLOCKHASH:
		if err := f.useGas(gasBlockhash); err != nil {
			return err
		}
		if _, err := f.stack.pop(); err != nil {
			return err
		}
		if err := f.stack.push(new(uint256.Int)); err != nil {
			return err
		}
		f.pc++
		return nil
	case CALLDATALOAD:
		return f.execCalldataload()
	case CALLDATASIZE:
		return f.pushQuick(new(uint256.Int).SetUint64(uint64(len(f.calldata))))
	case CALLDATACOPY:
		return f.execDataCopy(f.calldata)
	case CODESIZE:
		return f.pushQuick(new(uint256.Int).SetUint64(uint64(len(f.code))))
	case CODECOPY:
		return f.execDataCopy(f.code)
	case RETURNDATASIZE:
		return f.pushQuick(new(uint256.Int).SetUint64(uint64(len(f.lastReturnData))))
	case RETURNDATACOPY:
		return f.execDataCopy(f.lastReturnData)
	case RETURN:
		return f.execHalt(Return)
	case REVERT:
		return f.execHalt(Revert)
	case CREATE:
		return f.execCreate(false)
	case CREATE2:
		return f.execCreate(true)
	case CALL:
		return f.execCall(callKindCall)
	case CALLCODE:
		return f.execCall(callKindCallCode)
	case DELEGATECALL:
		return f.execCall(callKindDelegateCall)
	case STATICCALL:
		return f.execCall(callKindStaticCall)
	}

	return &InvalidOpcodeError{Op: op, PC: f.pc}
}

// boolWord encodes a boolean as the EVM does: the word 1 for true, 0 for
// false.
func boolWord(b bool) uint256.Int {
	if b {
		return *new(uint256.Int).SetUint64(1)
	}
	return uint256.Int{}
}

// pushQuick charges gasQuickStep, pushes v, and advances pc.
func (f *Frame) pushQuick(v *uint256.Int) error {
	if err := f.useGas(gasQuickStep); err != nil {
		return err
	}
	if err := f.stack.push(v); err != nil {
		return err
	}
	f.pc++
	return nil
}

func (f *Frame) pushQuickAddr(addr [20]byte) error {
	var v uint256.Int
	v.SetBytes(addr[:])
	return f.pushQuick(&v)
}

func (f *Frame) execPush(op OpCode) error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	n := op.PushSize()
	var v uint256.Int
	if n > 0 {
		start := f.pc + 1
		buf := make([]byte, n)
		for i := 0; i < n; i++ {
			idx := start + uint64(i)
			if idx < uint64(len(f.code)) {
				buf[i] = f.code[idx]
			}
		}
		v.SetBytes(buf)
	}
	if err := f.stack.push(&v); err != nil {
		return err
	}
	f.pc += uint64(1 + n)
	return nil
}

func (f *Frame) execDup(op OpCode) error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.stack.dup(op.DupN()); err != nil {
		return err
	}
	f.pc++
	return nil
}

func (f *Frame) execSwap(op OpCode) error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.stack.swap(op.SwapN()); err != nil {
		return err
	}
	f.pc++
	return nil
}

func (f *Frame) execBinary(op OpCode) error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	a, err := f.stack.pop()
	if err != nil {
		return err
	}
	b, err := f.stack.pop()
	if err != nil {
		return err
	}
	var res uint256.Int
	switch op {
	case ADD:
		res.Add(&a, &b)
	case MUL:
		res.Mul(&a, &b)
	case SUB:
		res.Sub(&a, &b)
	case DIV:
		if b.IsZero() {
			res.Clear()
		} else {
			res.Div(&a, &b)
		}
	case LT:
		res = boolWord(a.Lt(&b))
	case GT:
		res = boolWord(a.Gt(&b))
	case EQ:
		res = boolWord(a.Eq(&b))
	case AND:
		res.And(&a, &b)
	case OR:
		res.Or(&a, &b)
	case XOR:
		res.Xor(&a, &b)
	}
	if err := f.stack.push(&res); err != nil {
		return err
	}
	f.pc++
	return nil
}

func (f *Frame) execUnary(op OpCode) error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	a := f.stack.peek(0)
	switch op {
	case ISZERO:
		*a = boolWord(a.IsZero())
	case NOT:
		a.Not(a)
	}
	f.pc++
	return nil
}

func (f *Frame) execSha3() error {
	if err := f.stack.require(2); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	size := f.stack.peek(1).Uint64()
	if err := f.useGas(gasSha3 + gasSha3Word*words(size)); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(offset, size); err != nil {
		return err
	}
	if _, err := f.stack.pop(); err != nil {
		return err
	}
	if _, err := f.stack.pop(); err != nil {
		return err
	}
	data := f.memory.get(offset, size)
	digest := crypto.Keccak256(data)
	var v uint256.Int
	v.SetBytes(digest)
	if err := f.stack.push(&v); err != nil {
		return err
	}
	f.pc++
	return nil
}

func (f *Frame) execMload() error {
	if err := f.stack.require(1); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(offset, 32); err != nil {
		return err
	}
	v := f.memory.getWord(offset)
	*f.stack.peek(0) = v
	f.pc++
	return nil
}

func (f *Frame) execMstore() error {
	if err := f.stack.require(2); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(offset, 32); err != nil {
		return err
	}
	off, _ := f.stack.pop()
	val, _ := f.stack.pop()
	f.memory.setWord(off.Uint64(), &val)
	f.pc++
	return nil
}

func (f *Frame) execMstore8() error {
	if err := f.stack.require(2); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(offset, 1); err != nil {
		return err
	}
	off, _ := f.stack.pop()
	val, _ := f.stack.pop()
	f.memory.setByte(off.Uint64(), &val)
	f.pc++
	return nil
}

func (f *Frame) execSload() error {
	if err := f.useGas(gasSload); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	key := f.stack.peek(0)
	val := f.world.GetState(f.env.Address, *key)
	*f.stack.peek(0) = val
	f.pc++
	return nil
}

func (f *Frame) execSstore() error {
	if err := f.stack.require(2); err != nil {
		return err
	}
	key, err := f.stack.pop()
	if err != nil {
		return err
	}
	val, err := f.stack.pop()
	if err != nil {
		return err
	}
	current := f.world.GetState(f.env.Address, key)
	cost, refund := sstoreCost(current.IsZero(), val.IsZero())
	if err := f.useGas(cost); err != nil {
		return err
	}
	f.refund += refund
	f.world.SetState(f.env.Address, key, val)
	f.pc++
	return nil
}

func (f *Frame) execJump() error {
	if err := f.useGas(gasJump); err != nil {
		return err
	}
	dest, err := f.stack.pop()
	if err != nil {
		return err
	}
	return f.jumpTo(dest.Uint64())
}

func (f *Frame) execJumpi() error {
	if err := f.useGas(gasJumpi); err != nil {
		return err
	}
	dest, err := f.stack.pop()
	if err != nil {
		return err
	}
	cond, err := f.stack.pop()
	if err != nil {
		return err
	}
	if cond.IsZero() {
		f.pc++
		return nil
	}
	return f.jumpTo(dest.Uint64())
}

func (f *Frame) jumpTo(dest uint64) error {
	if !f.jumpdests.has(dest) {
		return &InvalidJumpError{Dest: dest}
	}
	f.pc = dest
	return nil
}

func (f *Frame) execBalance() error {
	if err := f.useGas(gasBalance); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	addr := addrFromWord(f.stack.peek(0))
	bal := f.world.GetBalance(addr)
	*f.stack.peek(0) = bal
	f.pc++
	return nil
}

func (f *Frame) execExtcodesize() error {
	if err := f.useGas(gasExtcodesize); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	addr := addrFromWord(f.stack.peek(0))
	code := f.world.GetCode(addr)
	*f.stack.peek(0) = *new(uint256.Int).SetUint64(uint64(len(code)))
	f.pc++
	return nil
}

func (f *Frame) execExtcodehash() error {
	if err := f.useGas(gasExtcodehash); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	addr := addrFromWord(f.stack.peek(0))
	if !f.world.Exist(addr) {
		*f.stack.peek(0) = uint256.Int{}
		f.pc++
		return nil
	}
	code := f.world.GetCode(addr)
	digest := crypto.Keccak256(code)
	var v uint256.Int
	v.SetBytes(digest)
	*f.stack.peek(0) = v
	f.pc++
	return nil
}

func (f *Frame) execExtcodecopy() error {
	if err := f.stack.require(4); err != nil {
		return err
	}
	addr := addrFromWord(f.stack.peek(0))
	memOff := f.stack.peek(1).Uint64()
	codeOff := f.stack.peek(2).Uint64()
	size := f.stack.peek(3).Uint64()
	if err := f.useGas(gasExtcodecopyBase + gasCopyWord*words(size)); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(memOff, size); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		if _, err := f.stack.pop(); err != nil {
			return err
		}
	}
	code := f.world.GetCode(addr)
	data := paddedSlice(code, codeOff, size)
	f.memory.set(memOff, data)
	f.pc++
	return nil
}

func (f *Frame) execCalldataload() error {
	if err := f.useGas(gasVeryLow); err != nil {
		return err
	}
	if err := f.stack.require(1); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	data := paddedSlice(f.calldata, offset, 32)
	var v uint256.Int
	v.SetBytes(data)
	*f.stack.peek(0) = v
	f.pc++
	return nil
}

// execDataCopy implements CALLDATACOPY/CODECOPY/RETURNDATACOPY, all of
// which pop (memOffset, srcOffset, size), copy size bytes from src into
// memory at memOffset (zero-padded past src's end), and charge
// 3 + 3*ceil(size/32) plus memory expansion.
func (f *Frame) execDataCopy(src []byte) error {
	if err := f.stack.require(3); err != nil {
		return err
	}
	memOff := f.stack.peek(0).Uint64()
	srcOff := f.stack.peek(1).Uint64()
	size := f.stack.peek(2).Uint64()
	if err := f.useGas(3 + gasCopyWord*words(size)); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(memOff, size); err != nil {
		return err
	}
	for i := 0; i < 3; i++ {
		if _, err := f.stack.pop(); err != nil {
			return err
		}
	}
	data := paddedSlice(src, srcOff, size)
	f.memory.set(memOff, data)
	f.pc++
	return nil
}

func (f *Frame) execLog(op OpCode) error {
	n := op.LogTopics()
	if err := f.stack.require(2 + n); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	size := f.stack.peek(1).Uint64()
	if err := f.useGas(gasLog + gasLogWord*words(size)); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(offset, size); err != nil {
		return err
	}
	off, _ := f.stack.pop()
	if _, err := f.stack.pop(); err != nil {
		return err
	}
	topics := make([]uint256.Int, n)
	for i := n - 1; i >= 0; i-- {
		t, err := f.stack.pop()
		if err != nil {
			return err
		}
		topics[i] = t
	}
	data := f.memory.get(off.Uint64(), size)
	f.appendLog(Log{Address: f.env.Address, Topics: topics, Data: data})
	f.pc++
	return nil
}

func (f *Frame) execHalt(kind HaltState) error {
	if err := f.stack.require(2); err != nil {
		return err
	}
	offset := f.stack.peek(0).Uint64()
	size := f.stack.peek(1).Uint64()
	if err := f.chargeMemoryExpansion(offset, size); err != nil {
		return err
	}
	if _, err := f.stack.pop(); err != nil {
		return err
	}
	if _, err := f.stack.pop(); err != nil {
		return err
	}
	f.returnData = f.memory.get(offset, size)
	f.halt = kind
	return nil
}

// addrFromWord truncates a 256-bit stack word to its low 160 bits.
func addrFromWord(w *uint256.Int) (addr [20]byte) {
	b := w.Bytes32()
	copy(addr[:], b[12:])
	return addr
}

// paddedSlice returns size bytes of src starting at offset, zero-padding
// any portion past the end of src.
func paddedSlice(src []byte, offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(src)) {
		return out
	}
	avail := uint64(len(src)) - offset
	if avail > size {
		avail = size
	}
	copy(out, src[offset:offset+avail])
	return out
}
