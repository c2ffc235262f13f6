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
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/common"
)

// ---- bytecode builder helpers ----------------------------------------------

// push1 encodes a PUSH1 instruction with the given byte value.
func push1(v byte) []byte { return []byte{byte(PUSH1), v} }

// pushN encodes a PUSHn instruction carrying v's big-endian bytes, minimally
// sized (at least one byte).
func pushN(v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	start := 0
	for start < 7 && b[start] == 0 {
		start++
	}
	data := b[start:]
	return append([]byte{byte(PUSH1) + byte(len(data)-1)}, data...)
}

// op1 encodes a single zero-operand opcode byte.
func op1(op OpCode) []byte { return []byte{byte(op)} }

// program concatenates instruction byte slices into one bytecode block.
func program(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func newTestConfig(code []byte) Config {
	return Config{Code: code, GasLimit: 1_000_000}
}

func runOK(t *testing.T, cfg Config) *Frame {
	t.Helper()
	f, err := Execute(cfg)
	if err != nil {
		t.Fatalf("Execute returned unexpected error: %v", err)
	}
	return f
}

// ---- arithmetic -------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	cases := []struct {
		name string
		op   OpCode
		a, b uint64
		want uint64
	}{
		{"add", ADD, 2, 3, 5},
		{"mul", MUL, 4, 5, 20},
		{"sub", SUB, 10, 4, 6},
		{"div", DIV, 20, 4, 5},
		{"lt_true", LT, 2, 3, 1},
		{"lt_false", LT, 3, 2, 0},
		{"gt_true", GT, 3, 2, 1},
		{"eq_true", EQ, 7, 7, 1},
		{"and", AND, 0xF0, 0x0F, 0},
		{"or", OR, 0xF0, 0x0F, 0xFF},
		{"xor", XOR, 0xFF, 0x0F, 0xF0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			code := program(pushN(c.b), pushN(c.a), op1(c.op), op1(STOP))
			f := runOK(t, newTestConfig(code))
			if f.Halted() != Stop {
				t.Fatalf("halted = %v, want Stop", f.Halted())
			}
			stack := f.Stack()
			if len(stack) != 1 {
				t.Fatalf("stack depth = %d, want 1", len(stack))
			}
			if got := stack[0].Uint64(); got != c.want {
				t.Fatalf("result = %d, want %d", got, c.want)
			}
		})
	}
}

func TestDivByZeroIsZero(t *testing.T) {
	code := program(push1(0), push1(5), op1(DIV), op1(STOP))
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 1 || !stack[0].IsZero() {
		t.Fatalf("DIV by zero should push 0, got %v", stack)
	}
}

// ---- stack discipline -------------------------------------------------------

func TestStackUnderflow(t *testing.T) {
	code := program(op1(ADD), op1(STOP))
	f, err := Execute(newTestConfig(code))
	if !errors.Is(err, ErrStackUnderflow) {
		t.Fatalf("err = %v, want ErrStackUnderflow", err)
	}
	if f == nil {
		t.Fatal("Execute must return a non-nil frame even on abort")
	}
}

func TestStackOverflow(t *testing.T) {
	var parts [][]byte
	for i := 0; i < 1025; i++ {
		parts = append(parts, push1(1))
	}
	parts = append(parts, op1(STOP))
	code := program(parts...)
	_, err := Execute(newTestConfig(code))
	if !errors.Is(err, ErrStackOverflow) {
		t.Fatalf("err = %v, want ErrStackOverflow", err)
	}
}

func TestDup1(t *testing.T) {
	code := program(push1(1), push1(2), op1(DUP1), op1(STOP))
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 3 || stack[2].Uint64() != 2 {
		t.Fatalf("unexpected stack after DUP1: %v", stack)
	}
}

// ---- memory -----------------------------------------------------------------

func TestMstoreMload(t *testing.T) {
	code := program(
		pushN(0x2a), push1(0), op1(MSTORE),
		push1(0), op1(MLOAD),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 1 || stack[0].Uint64() != 0x2a {
		t.Fatalf("MLOAD result = %v, want 0x2a", stack)
	}
	if f.Memory()[31] != 0x2a {
		t.Fatalf("memory byte 31 = %x, want 0x2a", f.Memory()[31])
	}
}

func TestMemoryExpansionChargesGas(t *testing.T) {
	cheap := program(push1(0), push1(0), op1(MSTORE), op1(STOP))
	// Writing a word at offset 10000 forces memory to grow to cover it,
	// which costs far more than the single-word expansion above.
	expensive := program(push1(0), pushN(10000), op1(MSTORE), op1(STOP))

	f1 := runOK(t, newTestConfig(cheap))
	f2 := runOK(t, newTestConfig(expensive))
	if f2.Gas() >= f1.Gas() {
		t.Fatalf("expanding memory further out should cost more gas: cheap left %d, expensive left %d", f1.Gas(), f2.Gas())
	}
}

// ---- storage ----------------------------------------------------------------

func TestSstoreSloadRoundTrip(t *testing.T) {
	code := program(
		pushN(7), push1(1), op1(SSTORE),
		push1(1), op1(SLOAD),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 1 || stack[0].Uint64() != 7 {
		t.Fatalf("SLOAD result = %v, want 7", stack)
	}
}

func TestSstoreRefundOnClear(t *testing.T) {
	code := program(
		pushN(7), push1(1), op1(SSTORE),
		push1(0), push1(1), op1(SSTORE),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	if f.Refund() != gasSstoreRefund {
		t.Fatalf("refund = %d, want %d", f.Refund(), gasSstoreRefund)
	}
}

// ---- control flow -------------------------------------------------------------

func TestJumpToValidDest(t *testing.T) {
	code := program(
		pushN(4), op1(JUMP),
		op1(INVALID_PADDING()),
		op1(JUMPDEST),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	if f.Halted() != Stop {
		t.Fatalf("halted = %v, want Stop", f.Halted())
	}
}

// INVALID_PADDING returns an opcode byte this engine does not define, used
// only to prove a JUMP actually skipped over it rather than falling through.
func INVALID_PADDING() OpCode { return OpCode(0xef) }

func TestJumpToInvalidDest(t *testing.T) {
	code := program(pushN(3), op1(JUMP), op1(STOP))
	_, err := Execute(newTestConfig(code))
	var jerr *InvalidJumpError
	if !errors.As(err, &jerr) {
		t.Fatalf("err = %v, want *InvalidJumpError", err)
	}
	if !errors.Is(err, ErrInvalidJump) {
		t.Fatalf("errors.Is(err, ErrInvalidJump) = false")
	}
}

func TestJumpIntoPushImmediateIsInvalid(t *testing.T) {
	// PUSH1 0x5b encodes a JUMPDEST byte (0x5b) as an immediate, not a real
	// jump destination; analyze() must not record it.
	code := program([]byte{byte(PUSH1), byte(JUMPDEST)}, pushN(1), op1(JUMP), op1(STOP))
	_, err := Execute(newTestConfig(code))
	if !errors.Is(err, ErrInvalidJump) {
		t.Fatalf("err = %v, want ErrInvalidJump", err)
	}
}

func TestJumpiSkipsWhenConditionZero(t *testing.T) {
	code := program(
		push1(0), pushN(8), op1(JUMPI), // cond=0 below, dest=8 (the JUMPDEST) on top
		push1(1), op1(STOP),
		op1(JUMPDEST), push1(2), op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 1 || stack[0].Uint64() != 1 {
		t.Fatalf("JUMPI with false condition should fall through, got %v", stack)
	}
}

// ---- halting ------------------------------------------------------------------

func TestRevertPreservesReturnData(t *testing.T) {
	code := program(
		pushN(0x2a), push1(0), op1(MSTORE),
		push1(32), push1(0), op1(REVERT),
	)
	f := runOK(t, newTestConfig(code))
	if f.Halted() != Revert {
		t.Fatalf("halted = %v, want Revert", f.Halted())
	}
	var want uint256.Int
	want.SetUint64(0x2a)
	wantBytes := want.Bytes32()
	if len(f.ReturnData()) != 32 {
		t.Fatalf("return data len = %d, want 32", len(f.ReturnData()))
	}
	for i, b := range wantBytes {
		if f.ReturnData()[i] != b {
			t.Fatalf("return data mismatch at %d: got %x want %x", i, f.ReturnData()[i], b)
		}
	}
}

// ---- static context ---------------------------------------------------------

func TestStaticViolationOnSstore(t *testing.T) {
	cfg := newTestConfig(program(pushN(1), push1(0), op1(SSTORE), op1(STOP)))
	cfg.Calldata = nil
	f := NewTopFrame(cfg)
	f.env.IsStatic = true
	err := f.Run()
	if !errors.Is(err, ErrStaticViolation) {
		t.Fatalf("err = %v, want ErrStaticViolation", err)
	}
}

// ---- environment --------------------------------------------------------------

func TestAddressAndCallvalue(t *testing.T) {
	addr, _ := common.HexToAddress("0x00000000000000000000000000000000001234")
	cfg := newTestConfig(program(op1(ADDRESS), op1(CALLVALUE), op1(STOP)))
	cfg.Address = addr
	cfg.Value = *new(uint256.Int).SetUint64(99)
	f := runOK(t, cfg)
	stack := f.Stack()
	if len(stack) != 2 {
		t.Fatalf("stack depth = %d, want 2", len(stack))
	}
	if stack[1].Uint64() != 99 {
		t.Fatalf("CALLVALUE = %d, want 99", stack[1].Uint64())
	}
	var addrWord uint256.Int
	addrWord.SetBytes(addr.Bytes())
	if stack[0].Cmp(&addrWord) != 0 {
		t.Fatalf("ADDRESS mismatch")
	}
}

// ---- logs -----------------------------------------------------------------

func TestLog0RecordsData(t *testing.T) {
	code := program(
		pushN(0x2a), push1(0), op1(MSTORE),
		push1(32), push1(0), op1(LOG0),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	if len(f.Logs()) != 1 {
		t.Fatalf("logs = %d, want 1", len(f.Logs()))
	}
	if len(f.Logs()[0].Data) != 32 {
		t.Fatalf("log data len = %d, want 32", len(f.Logs()[0].Data))
	}
	if len(f.Logs()[0].Topics) != 0 {
		t.Fatalf("LOG0 should carry no topics")
	}
}

func TestLog2TopicsInOrder(t *testing.T) {
	code := program(
		pushN(0xaa), pushN(0xbb), push1(0), push1(0), op1(LOG2), op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	logs := f.Logs()
	if len(logs) != 1 || len(logs[0].Topics) != 2 {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if logs[0].Topics[0].Uint64() != 0xaa || logs[0].Topics[1].Uint64() != 0xbb {
		t.Fatalf("topic order wrong: %v", logs[0].Topics)
	}
}

// ---- calls ------------------------------------------------------------------

func TestIdentityPrecompile(t *testing.T) {
	code := program(
		pushN(0x2a), push1(0), op1(MSTORE), // input at mem[0:32]
		push1(32), push1(32), push1(32), push1(0), // retSize retOffset argsSize argsOffset
		push1(0), // value
		pushN(uint64(common.IdentityPrecompileAddress.Bytes()[19])), // target low byte
		pushN(100000), // gas
		op1(CALL),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(code))
	stack := f.Stack()
	if len(stack) != 1 || stack[0].Uint64() != 1 {
		t.Fatalf("CALL to identity precompile should succeed, stack=%v", stack)
	}
	out := f.Memory()[32:64]
	if out[31] != 0x2a {
		t.Fatalf("identity output mismatch: %x", out)
	}
}

func TestCreatePushesNonzeroAddress(t *testing.T) {
	initCode := program(push1(0), push1(0), op1(RETURN))
	// Write initCode into memory byte-by-byte via MSTORE8, then CREATE it.
	var parts [][]byte
	for i, b := range initCode {
		parts = append(parts, pushN(uint64(b)), pushN(uint64(i)), op1(MSTORE8))
	}
	parts = append(parts,
		pushN(uint64(len(initCode))), push1(0), push1(0), op1(CREATE),
		op1(STOP),
	)
	f := runOK(t, newTestConfig(program(parts...)))
	stack := f.Stack()
	if len(stack) != 1 || stack[0].IsZero() {
		t.Fatalf("CREATE should push a nonzero address, got %v", stack)
	}
}
