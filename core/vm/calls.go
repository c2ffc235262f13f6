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
	"github.com/evmkit/evmkit/crypto"
)

// callKind distinguishes the four CALL-family opcodes, which share almost
// all of their gas accounting and memory handling but differ in whose
// storage context, caller identity, and value transfer apply.
type callKind int

const (
	callKindCall callKind = iota
	callKindCallCode
	callKindDelegateCall
	callKindStaticCall
)

func (k callKind) hasValue() bool { return k == callKindCall || k == callKindCallCode }

// execCall implements CALL, CALLCODE, DELEGATECALL, and STATICCALL. All four
// pop a gas request and target address, then an operation-specific argument
// list, run (or short-circuit for the identity precompile) a child frame,
// and push a 1/0 success flag.
func (f *Frame) execCall(kind callKind) error {
	nArgs := 7
	if kind == callKindDelegateCall || kind == callKindStaticCall {
		nArgs = 6
	}
	if err := f.stack.require(nArgs); err != nil {
		return err
	}

	i := 0
	gasReq := f.stack.peek(i).Uint64()
	i++
	target := addrFromWord(f.stack.peek(i))
	i++
	var value uint256.Int
	if kind.hasValue() {
		value = *f.stack.peek(i)
		i++
	}
	argsOffset := f.stack.peek(i).Uint64()
	i++
	argsSize := f.stack.peek(i).Uint64()
	i++
	retOffset := f.stack.peek(i).Uint64()
	i++
	retSize := f.stack.peek(i).Uint64()

	if f.env.IsStatic && kind.hasValue() && !value.IsZero() {
		return ErrStaticViolation
	}

	hasValue := kind.hasValue() && !value.IsZero()
	base := gasCallBaseNoValue
	if hasValue {
		base += gasCallValueStipend
	}
	if err := f.useGas(uint64(base)); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(argsOffset, argsSize); err != nil {
		return err
	}
	if err := f.chargeMemoryExpansion(retOffset, retSize); err != nil {
		return err
	}

	for n := 0; n < nArgs; n++ {
		if _, err := f.stack.pop(); err != nil {
			return err
		}
	}
	f.pc++

	// forwarded is the child's own gas budget, handed to it as its gas_limit;
	// it is never itself deducted from the caller's gas. The caller's gas
	// only ever decreases by base and the flat post-charge below.
	forwarded := callGas(f.gas, gasReq, hasValue)
	input := f.memory.get(argsOffset, argsSize)

	success, output, _ := f.dispatchCall(kind, target, &value, input, forwarded)

	if err := f.useGas(gasCallPostCharge); err != nil {
		return err
	}

	f.lastReturnData = output
	if retSize > 0 {
		n := retSize
		if uint64(len(output)) < n {
			n = uint64(len(output))
		}
		if n > 0 {
			f.memory.set(retOffset, output[:n])
		}
	}

	flag := boolWord(success)
	return f.stack.push(&flag)
}

// dispatchCall runs one child invocation according to kind and reports
// whether it succeeded, its output bytes, and how much of the gas handed to
// it remains. The identity precompile at 0x04 is special-cased: it copies
// its input straight to its output without spinning up a frame.
func (f *Frame) dispatchCall(kind callKind, target common.Address, value *uint256.Int, input []byte, gas uint64) (success bool, output []byte, gasLeft uint64) {
	if target == common.IdentityPrecompileAddress {
		return f.runIdentityPrecompile(input, gas)
	}

	childEnv := f.env
	childWorld := f.world

	switch kind {
	case callKindCall:
		childEnv.Address = target
		childEnv.Caller = f.env.Address
		childEnv.CallValue = *value
	case callKindCallCode:
		childEnv.Address = f.env.Address
		childEnv.Caller = f.env.Address
		childEnv.CallValue = *value
	case callKindDelegateCall:
		// Address, Caller, Origin, and CallValue are all inherited unchanged.
	case callKindStaticCall:
		childEnv.Address = target
		childEnv.Caller = f.env.Address
		childEnv.CallValue = uint256.Int{}
		childEnv.IsStatic = true
	}

	if kind == callKindCall && !value.IsZero() {
		if !childWorld.CanTransfer(f.env.Address, value) {
			return false, nil, gas
		}
	}

	snapshot := childWorld.Clone()
	code := snapshot.GetCode(target)
	if kind == callKindCall && !value.IsZero() {
		snapshot.Transfer(f.env.Address, target, value)
	}

	child := newFrame(f.cfg, snapshot, childEnv, code, input, int64(gas), f.depth+1)
	if f.depth+1 > maxCallDepth {
		return false, nil, gas
	}
	err := child.Run()

	switch {
	case err != nil:
		return false, nil, child.Gas()
	case child.halt == Revert:
		return false, child.returnData, child.Gas()
	default:
		f.world = snapshot
		f.appendChildLogs(child.logs)
		f.refund += child.refund
		return true, child.returnData, child.Gas()
	}
}

func (f *Frame) appendChildLogs(logs []Log) {
	f.logs = append(f.logs, logs...)
}

// runIdentityPrecompile implements the one precompile this engine supports:
// address 0x04 copies its input to its output, charging a flat base cost
// plus a per-word cost, consistent with the Yellow Paper's identity
// precompile (not the mainnet numbers, which are out of scope here).
func (f *Frame) runIdentityPrecompile(input []byte, gas uint64) (success bool, output []byte, gasLeft uint64) {
	const (
		identityBase = 15
		identityWord = 3
	)
	cost := uint64(identityBase) + identityWord*words(uint64(len(input)))
	if cost > gas {
		return false, nil, 0
	}
	out := make([]byte, len(input))
	copy(out, input)
	return true, out, gas - cost
}

// execCreate implements CREATE and CREATE2: derive the new account's
// address, run initCode as a fresh frame with no calldata, and on success
// install its return data as the new account's code.
func (f *Frame) execCreate(isCreate2 bool) error {
	nArgs := 3
	if isCreate2 {
		nArgs = 4
	}
	if err := f.stack.require(nArgs); err != nil {
		return err
	}
	if f.env.IsStatic {
		return ErrStaticViolation
	}

	value := *f.stack.peek(0)
	offset := f.stack.peek(1).Uint64()
	size := f.stack.peek(2).Uint64()
	var salt uint256.Int
	if isCreate2 {
		salt = *f.stack.peek(3)
	}

	if err := f.chargeMemoryExpansion(offset, size); err != nil {
		return err
	}
	if isCreate2 {
		if err := f.useGas(gasSha3Word * words(size)); err != nil {
			return err
		}
	}

	for n := 0; n < nArgs; n++ {
		if _, err := f.stack.pop(); err != nil {
			return err
		}
	}
	f.pc++

	initCode := f.memory.get(offset, size)

	if !value.IsZero() && !f.world.CanTransfer(f.env.Address, &value) {
		return f.stack.push(new(uint256.Int))
	}

	nonce := f.world.GetNonce(f.env.Address)
	var newAddr common.Address
	if isCreate2 {
		newAddr = crypto.CreateAddress2(f.env.Address, salt.Bytes32(), initCode)
	} else {
		newAddr = crypto.CreateAddress(f.env.Address, nonce)
	}
	f.world.SetNonce(f.env.Address, nonce+1)

	snapshot := f.world.Clone()
	if !value.IsZero() {
		snapshot.Transfer(f.env.Address, newAddr, &value)
	}

	childEnv := TxEnv{
		Address:   newAddr,
		Caller:    f.env.Address,
		Origin:    f.env.Origin,
		CallValue: value,
		GasPrice:  f.env.GasPrice,
	}
	// The constructor gets the entire remaining gas, uncapped: unlike
	// CALL-family forwarding there is no 63/64 cap, and this amount is never
	// itself deducted from the creator's gas (only the post-charge below is).
	childGas := f.Gas()
	child := newFrame(f.cfg, snapshot, childEnv, initCode, nil, int64(childGas), f.depth+1)

	var result uint256.Int
	if f.depth+1 > maxCallDepth {
		result = uint256.Int{}
	} else if err := child.Run(); err != nil || child.halt == Revert {
		// initCode failed or reverted: the new account never comes into
		// being, but the nonce bump above still stands.
	} else {
		snapshot.SetCode(newAddr, child.returnData)
		f.world = snapshot
		f.appendChildLogs(child.logs)
		f.refund += child.refund
		result.SetBytes(newAddr.Bytes())
	}

	f.lastReturnData = child.returnData
	if err := f.useGas(gasCreateBase); err != nil {
		return err
	}
	return f.stack.push(&result)
}
