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

import "github.com/holiman/uint256"

// stackLimit is the maximum number of words a frame's stack may hold.
const stackLimit = 1024

// Stack is a bounded LIFO of 256-bit words.
type Stack struct {
	data []uint256.Int
}

func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Len returns the current stack depth.
func (st *Stack) Len() int { return len(st.data) }

// push appends v to the top of the stack, failing with ErrStackOverflow if
// the 1024-entry limit would be exceeded.
func (st *Stack) push(v *uint256.Int) error {
	if len(st.data) >= stackLimit {
		return ErrStackOverflow
	}
	st.data = append(st.data, *v)
	return nil
}

// pop removes and returns the top of the stack.
func (st *Stack) pop() (uint256.Int, error) {
	if len(st.data) == 0 {
		return uint256.Int{}, ErrStackUnderflow
	}
	v := st.data[len(st.data)-1]
	st.data = st.data[:len(st.data)-1]
	return v, nil
}

// require fails with ErrStackUnderflow unless at least n items are present.
func (st *Stack) require(n int) error {
	if len(st.data) < n {
		return ErrStackUnderflow
	}
	return nil
}

// peek returns a pointer to the nth item from the top (0 = top), without
// removing it. Caller must have called require first.
func (st *Stack) peek(n int) *uint256.Int {
	return &st.data[len(st.data)-1-n]
}

// dup pushes a copy of the nth-from-top item (n=1 duplicates the top).
func (st *Stack) dup(n int) error {
	if err := st.require(n); err != nil {
		return err
	}
	if len(st.data) >= stackLimit {
		return ErrStackOverflow
	}
	v := st.data[len(st.data)-n]
	st.data = append(st.data, v)
	return nil
}

// swap exchanges the top item with the (n+1)th-from-top item.
func (st *Stack) swap(n int) error {
	if err := st.require(n + 1); err != nil {
		return err
	}
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
	return nil
}

// items returns a snapshot copy of the stack contents, bottom first, for
// introspection/tracing.
func (st *Stack) items() []uint256.Int {
	out := make([]uint256.Int, len(st.data))
	copy(out, st.data)
	return out
}
