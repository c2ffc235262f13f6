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

// Constant per-instruction gas costs for this engine's simplified schedule.
// These are deliberately not the Yellow Paper's mainnet schedule; see
// spec.md's explicit non-goal on exact gas numbers.
const (
	gasQuickStep = 2 // PC, MSIZE, GAS, POP, and the simple env/block pushes
	gasVeryLow   = 3 // arithmetic/logic/comparison, PUSH, DUP, SWAP, CALLDATALOAD
	gasSha3        = 30
	gasSha3Word    = 6
	gasSload       = 100
	gasSstoreSet   = 20000
	gasSstoreClear = 5000
	gasSstoreReset = 2900
	gasSstoreRefund = 15000
	gasJumpdest    = 1
	gasJump        = 8
	gasJumpi       = 10
	gasLog         = 8
	gasLogWord     = 1
	gasBalance     = 100
	gasExtcodesize = 100
	gasExtcodehash = 400
	gasExtcodecopyBase = 100
	gasCopyWord    = 3
	gasBlockhash   = 20
	gasSelfbalance = 5
	gasCallBaseNoValue = 700
	gasCallValueStipend = 9000
	gasCallStipend      = 2300
	gasCallPostCharge   = 40
	gasCreateBase       = 32000
)

// useGas deducts cost from the frame's remaining gas using the "subtract
// first, then check" rule specified for this engine: gas is decremented
// even when the result goes negative, and that decrement is the only
// observable side effect of an OutOfGas failure.
func (f *Frame) useGas(cost uint64) error {
	f.gas -= int64(cost)
	if f.gas < 0 {
		return ErrOutOfGas
	}
	return nil
}

// chargeMemoryExpansion grows the frame's memory to cover [offset, offset+size)
// if needed and charges the quadratic delta cost. It must be called before
// the instruction's actual memory read/write side effect.
func (f *Frame) chargeMemoryExpansion(offset, size uint64) error {
	newLen, err := memSizeFor(offset, size)
	if err != nil {
		return err
	}
	if newLen <= uint64(f.memory.Len()) {
		return nil
	}
	oldWords := words(uint64(f.memory.Len()))
	newWords := words(newLen)
	delta := memoryGasCost(newWords) - memoryGasCost(oldWords)
	if err := f.useGas(delta); err != nil {
		return err
	}
	f.memory.resize(newLen)
	return nil
}

// callGas computes the amount of gas forwarded to a child CALL-family frame:
// min(requested, availAfterBase - availAfterBase/64), where availAfterBase
// is what remains of the caller's gas after the base call cost has been
// charged. hasValue adds the call stipend on top for CALL/CALLCODE with a
// non-zero value transfer.
func callGas(availAfterBase int64, requested uint64, hasValue bool) uint64 {
	if availAfterBase < 0 {
		availAfterBase = 0
	}
	capped := uint64(availAfterBase) - uint64(availAfterBase)/64
	forwarded := requested
	if forwarded > capped {
		forwarded = capped
	}
	if hasValue {
		forwarded += gasCallStipend
	}
	return forwarded
}

// sstoreCost classifies an SSTORE transition and returns its gas cost and
// any refund to add to the frame's refund counter.
func sstoreCost(currentIsZero, newIsZero bool) (cost, refund uint64) {
	switch {
	case currentIsZero && !newIsZero:
		return gasSstoreSet, 0
	case !currentIsZero && newIsZero:
		return gasSstoreClear, gasSstoreRefund
	default:
		return gasSstoreReset, 0
	}
}
