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
	"testing"

	"github.com/evmkit/evmkit/common"
	"github.com/evmkit/evmkit/core/state"
)

func mustAddr(t *testing.T, s string) common.Address {
	t.Helper()
	a, err := common.HexToAddress(s)
	if err != nil {
		t.Fatalf("HexToAddress(%s): %v", s, err)
	}
	return a
}

// delegateStyleCallCode builds the 6-argument stack layout shared by
// DELEGATECALL and STATICCALL: retSize, retOffset, argsSize, argsOffset,
// target, gas pushed bottom to top, matching execCall's peek order.
func delegateStyleCallCode(target common.Address, gas uint64, op OpCode) []byte {
	return program(
		push1(0), push1(0), push1(0), push1(0), // retSize retOffset argsSize argsOffset
		append([]byte{byte(PUSH1) + common.AddressLength - 1}, target.Bytes()...), // PUSH20 target
		pushN(gas),
		op1(op),
	)
}

func TestDelegatecallSharesCallerStorage(t *testing.T) {
	callee := mustAddr(t, "0x00000000000000000000000000000000000b0b")
	calleeCode := program(push1(42), push1(1), op1(SSTORE), op1(STOP))

	world := state.New()
	world.SetCode(callee, calleeCode)

	caller := mustAddr(t, "0x00000000000000000000000000000000000a0a")
	callerCode := program(
		delegateStyleCallCode(callee, 100000, DELEGATECALL),
		push1(1), op1(SLOAD), op1(STOP),
	)

	cfg := newTestConfig(callerCode)
	cfg.Address = caller
	cfg.World = world
	f := runOK(t, cfg)

	stack := f.Stack()
	if len(stack) != 2 {
		t.Fatalf("stack depth = %d, want 2: %v", len(stack), stack)
	}
	if stack[0].Uint64() != 1 {
		t.Fatalf("DELEGATECALL success flag = %v, want 1", stack[0])
	}
	if stack[1].Uint64() != 42 {
		t.Fatalf("SLOAD after DELEGATECALL = %v, want 42 (storage should land in the caller's own account)", stack[1])
	}
}

func TestCallcodeSharesCallerStorage(t *testing.T) {
	callee := mustAddr(t, "0x00000000000000000000000000000000000b0b")
	calleeCode := program(push1(7), push1(2), op1(SSTORE), op1(STOP))

	world := state.New()
	world.SetCode(callee, calleeCode)

	caller := mustAddr(t, "0x00000000000000000000000000000000000a0a")
	callerCode := program(
		push1(0), push1(0), push1(0), push1(0), push1(0), // retSize retOffset argsSize argsOffset value
		append([]byte{byte(PUSH1) + common.AddressLength - 1}, callee.Bytes()...), // PUSH20 callee
		pushN(100000),
		op1(CALLCODE),
		push1(2), op1(SLOAD), op1(STOP),
	)

	cfg := newTestConfig(callerCode)
	cfg.Address = caller
	cfg.World = world
	f := runOK(t, cfg)

	stack := f.Stack()
	if len(stack) != 2 || stack[0].Uint64() != 1 {
		t.Fatalf("unexpected stack after CALLCODE: %v", stack)
	}
	if stack[1].Uint64() != 7 {
		t.Fatalf("SLOAD after CALLCODE = %v, want 7 (storage should land in the caller's own account)", stack[1])
	}
}

func TestStaticcallRejectsStateChange(t *testing.T) {
	callee := mustAddr(t, "0x00000000000000000000000000000000000c0c")
	calleeCode := program(push1(1), push1(0), op1(SSTORE), op1(STOP))

	world := state.New()
	world.SetCode(callee, calleeCode)

	callerCode := delegateStyleCallCode(callee, 100000, STATICCALL)
	cfg := newTestConfig(callerCode)
	cfg.World = world
	f := runOK(t, cfg)

	stack := f.Stack()
	if len(stack) != 1 || stack[0].Uint64() != 0 {
		t.Fatalf("STATICCALL into an SSTORE should fail (flag=0), got %v", stack)
	}
}

func TestCreate2DerivesDifferentAddressThanCreate(t *testing.T) {
	initCode := program(push1(0), push1(0), op1(RETURN))

	buildDeployer := func(isCreate2 bool) []byte {
		var parts [][]byte
		for i, b := range initCode {
			parts = append(parts, pushN(uint64(b)), pushN(uint64(i)), op1(MSTORE8))
		}
		if isCreate2 {
			parts = append(parts,
				pushN(7), // salt
				pushN(uint64(len(initCode))), push1(0), push1(0), op1(CREATE2),
				op1(STOP),
			)
		} else {
			parts = append(parts,
				pushN(uint64(len(initCode))), push1(0), push1(0), op1(CREATE),
				op1(STOP),
			)
		}
		return program(parts...)
	}

	f1 := runOK(t, newTestConfig(buildDeployer(false)))
	f2 := runOK(t, newTestConfig(buildDeployer(true)))

	s1, s2 := f1.Stack(), f2.Stack()
	if len(s1) != 1 || s1[0].IsZero() {
		t.Fatalf("CREATE should push a nonzero address, got %v", s1)
	}
	if len(s2) != 1 || s2[0].IsZero() {
		t.Fatalf("CREATE2 should push a nonzero address, got %v", s2)
	}
	if s1[0].Cmp(&s2[0]) == 0 {
		t.Fatalf("CREATE and CREATE2 should derive different addresses for the same sender/initCode")
	}
}

// TestCallGasAccountingChargesOnlyBaseAndPostCharge pins the CALL-family
// gas contract: the caller's gas only ever decreases by the base cost and
// the flat post-charge. The 63/64-capped amount forwarded to the child is
// that child's own separate budget and must never be deducted from the
// caller, no matter how large the gas request is.
func TestCallGasAccountingChargesOnlyBaseAndPostCharge(t *testing.T) {
	code := program(
		push1(0), push1(0), push1(0), push1(0), // retSize retOffset argsSize argsOffset
		push1(0), // value
		pushN(uint64(common.IdentityPrecompileAddress.Bytes()[19])), // target
		pushN(500000), // gas request, far larger than the base/post-charge
		op1(CALL),
	)
	cfg := newTestConfig(code)
	f := runOK(t, cfg)

	// Seven PUSH1 operands precede the CALL itself.
	wantSpent := uint64(7*gasVeryLow + gasCallBaseNoValue + gasCallPostCharge)
	gotSpent := cfg.GasLimit - f.Gas()
	if gotSpent != wantSpent {
		t.Fatalf("gas spent = %d, want %d (7 pushes + base=%d + post-charge=%d, forwarded gas must not be deducted from the caller)",
			gotSpent, wantSpent, gasCallBaseNoValue, gasCallPostCharge)
	}
}

// TestCreateGasAccountingChargesOnlyFlatPostCharge pins the CREATE gas
// contract: the caller's gas only ever decreases by the flat 32000
// post-charge (plus any memory expansion, zero here with an empty
// initCode). The constructor receives the caller's entire remaining gas
// uncapped, and none of that amount is deducted from the caller.
func TestCreateGasAccountingChargesOnlyFlatPostCharge(t *testing.T) {
	code := program(
		push1(0), push1(0), push1(0), // size offset value
		op1(CREATE),
	)
	cfg := newTestConfig(code)
	f := runOK(t, cfg)

	stack := f.Stack()
	if len(stack) != 1 || stack[0].IsZero() {
		t.Fatalf("CREATE with empty initCode should still push a nonzero address, got %v", stack)
	}

	// Three PUSH1 operands precede the CREATE itself.
	wantSpent := uint64(3*gasVeryLow + gasCreateBase)
	gotSpent := cfg.GasLimit - f.Gas()
	if gotSpent != wantSpent {
		t.Fatalf("gas spent = %d, want %d (3 pushes + flat post-charge, constructor gas must not be deducted from the caller)",
			gotSpent, wantSpent)
	}
}

func TestCreate2IsDeterministicForSameSaltAndCode(t *testing.T) {
	initCode := program(push1(0), push1(0), op1(RETURN))

	build := func() []byte {
		var parts [][]byte
		for i, b := range initCode {
			parts = append(parts, pushN(uint64(b)), pushN(uint64(i)), op1(MSTORE8))
		}
		parts = append(parts,
			pushN(7),
			pushN(uint64(len(initCode))), push1(0), push1(0), op1(CREATE2),
			op1(STOP),
		)
		return program(parts...)
	}

	f1 := runOK(t, newTestConfig(build()))
	f2 := runOK(t, newTestConfig(build()))
	if f1.Stack()[0].Cmp(&f2.Stack()[0]) != 0 {
		t.Fatalf("CREATE2 with identical sender/salt/initCode should be deterministic")
	}
}
