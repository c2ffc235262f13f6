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

package crypto

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/evmkit/evmkit/common"
)

// Keccak256 returns the Keccak-256 digest of the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, b := range data {
		h.Write(b)
	}
	return h.Sum(nil)
}

// CreateAddress derives the address of a contract created by sender at the
// given nonce: keccak256(rlpList(sender, nonce))[12:].
//
// A full RLP encoder is out of scope for this engine (the spec only needs
// this one derivation), so the list is built by hand following RLP's rules
// for a short list of a 20-byte string and an integer.
func CreateAddress(sender common.Address, nonce uint64) common.Address {
	nonceBytes := rlpUint(nonce)
	addrItem := rlpBytes(sender.Bytes())
	payload := append(append([]byte{}, addrItem...), nonceBytes...)
	list := append(rlpListHeader(len(payload)), payload...)
	return common.BytesToAddress(Keccak256(list)[12:])
}

// CreateAddress2 derives the CREATE2 address:
// keccak256(0xff || sender || salt || keccak256(initCode))[12:].
func CreateAddress2(sender common.Address, salt [32]byte, initCode []byte) common.Address {
	initCodeHash := Keccak256(initCode)
	buf := make([]byte, 0, 1+common.AddressLength+32+32)
	buf = append(buf, 0xff)
	buf = append(buf, sender.Bytes()...)
	buf = append(buf, salt[:]...)
	buf = append(buf, initCodeHash...)
	return common.BytesToAddress(Keccak256(buf)[12:])
}

// --- minimal RLP encoding, just enough for CreateAddress -------------------

func rlpUint(n uint64) []byte {
	if n == 0 {
		return rlpBytes(nil)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	i := 0
	for i < 8 && buf[i] == 0 {
		i++
	}
	return rlpBytes(buf[i:])
}

func rlpBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	if len(b) < 56 {
		return append([]byte{0x80 + byte(len(b))}, b...)
	}
	lenBytes := minimalBigEndian(uint64(len(b)))
	out := append([]byte{0xb7 + byte(len(lenBytes))}, lenBytes...)
	return append(out, b...)
}

func rlpListHeader(payloadLen int) []byte {
	if payloadLen < 56 {
		return []byte{0xc0 + byte(payloadLen)}
	}
	lenBytes := minimalBigEndian(uint64(payloadLen))
	return append([]byte{0xf7 + byte(len(lenBytes))}, lenBytes...)
}

func minimalBigEndian(n uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}
