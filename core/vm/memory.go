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

// wordSize is the EVM's memory alignment unit in bytes.
const wordSize = 32

// Memory is the frame's linearly addressed, lazily grown byte vector.
type Memory struct {
	store []byte
}

func newMemory() *Memory {
	return &Memory{}
}

// Len returns the current byte length (always a multiple of wordSize once
// any access has occurred).
func (m *Memory) Len() int { return len(m.store) }

// words returns ceil(n/32).
func words(n uint64) uint64 {
	return (n + wordSize - 1) / wordSize
}

// memSizeFor computes the smallest 32-byte-aligned length that covers
// [offset, offset+size). Returns ErrMemoryAccess if offset+size overflows.
func memSizeFor(offset, size uint64) (uint64, error) {
	if size == 0 {
		return 0, nil
	}
	end := offset + size
	if end < offset {
		return 0, ErrMemoryAccess
	}
	return words(end) * wordSize, nil
}

// resize grows the backing store to newLen bytes if it is currently
// smaller, zero-filling the new region. It never shrinks.
func (m *Memory) resize(newLen uint64) {
	if uint64(len(m.store)) >= newLen {
		return
	}
	grown := make([]byte, newLen)
	copy(grown, m.store)
	m.store = grown
}

// set writes data at offset, which must already be covered by a prior
// resize (callers expand memory via the gas meter before calling set).
func (m *Memory) set(offset uint64, data []byte) {
	copy(m.store[offset:], data)
}

// setWord writes the big-endian 32-byte encoding of val at offset.
func (m *Memory) setWord(offset uint64, val *uint256.Int) {
	b := val.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

// setByte writes the single low byte of val at offset.
func (m *Memory) setByte(offset uint64, val *uint256.Int) {
	m.store[offset] = byte(val.Uint64())
}

// getWord reads 32 big-endian bytes at offset as a word.
func (m *Memory) getWord(offset uint64) uint256.Int {
	var v uint256.Int
	v.SetBytes(m.store[offset : offset+32])
	return v
}

// get returns a copy of size bytes starting at offset, zero-padded if the
// requested range extends past the end of a region the caller has already
// grown memory to cover (used for CALL/CREATE operand slices where gas
// accounting already expanded memory to exactly offset+size).
func (m *Memory) get(offset, size uint64) []byte {
	if size == 0 {
		return []byte{}
	}
	out := make([]byte, size)
	copy(out, m.store[offset:])
	return out
}

// getPadded returns size bytes starting at offset, zero-padding any portion
// that would read past the end of the backing store, so the read succeeds
// even before memory has been expanded to cover it. Nothing in this package
// calls it; execCall copies call output into memory with set.
func (m *Memory) getPadded(offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(m.store)) {
		return out
	}
	avail := uint64(len(m.store)) - offset
	if avail > size {
		avail = size
	}
	copy(out, m.store[offset:offset+avail])
	return out
}

// Bytes returns the full memory contents (used by test harness introspection).
func (m *Memory) Bytes() []byte {
	out := make([]byte, len(m.store))
	copy(out, m.store)
	return out
}

// memoryGasCost is the quadratic memory-expansion cost function:
// C(w) = 3w + w^2/512, where w is the word count.
func memoryGasCost(w uint64) uint64 {
	return 3*w + (w*w)/512
}
