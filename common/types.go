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

// Package common holds the small value types shared across the engine:
// 160-bit addresses and the hex codecs used at the JSON/CLI boundary.
package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the number of bytes in an Address (160 bits).
const AddressLength = 20

// Address is a 160-bit account identifier.
type Address [AddressLength]byte

// BytesToAddress right-aligns b into an Address, truncating from the left
// if b is longer than AddressLength.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// HexToAddress parses a "0x"-prefixed (or bare) hex string into an Address.
func HexToAddress(s string) (Address, error) {
	b, err := decodeHex(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) > AddressLength {
		return Address{}, fmt.Errorf("common: hex string too long for an address: %d bytes", len(b))
	}
	return BytesToAddress(b), nil
}

// Bytes returns a's bytes as a newly allocated slice.
func (a Address) Bytes() []byte { return a[:] }

// IsZero reports whether a is the all-zero address.
func (a Address) IsZero() bool { return a == Address{} }

// Hex returns the "0x"-prefixed lowercase hex encoding of a.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// String implements fmt.Stringer.
func (a Address) String() string { return a.Hex() }

// IdentityPrecompileAddress is the only precompile this engine implements.
var IdentityPrecompileAddress = BytesToAddress([]byte{0x04})

func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}

// DecodeHex parses a "0x"-prefixed (or bare) hex string into bytes, padding
// with a leading zero nibble if the string has odd length.
func DecodeHex(s string) ([]byte, error) { return decodeHex(s) }

// EncodeHex returns the "0x"-prefixed lowercase hex encoding of b.
func EncodeHex(b []byte) string { return "0x" + hex.EncodeToString(b) }
