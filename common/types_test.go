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

package common

import "testing"

func TestHexToAddressRoundTrip(t *testing.T) {
	want := "0x0000000000000000000000000000000000001234"
	a, err := HexToAddress(want)
	if err != nil {
		t.Fatalf("HexToAddress: %v", err)
	}
	if got := a.Hex(); got != want {
		t.Fatalf("Hex() = %s, want %s", got, want)
	}
}

func TestHexToAddressAcceptsBareHex(t *testing.T) {
	a, err := HexToAddress("1234")
	if err != nil {
		t.Fatalf("HexToAddress: %v", err)
	}
	if a.Bytes()[18] != 0x12 || a.Bytes()[19] != 0x34 {
		t.Fatalf("unexpected address bytes: %x", a.Bytes())
	}
}

func TestHexToAddressRejectsOversizedInput(t *testing.T) {
	_, err := HexToAddress("0x" + "ff112233445566778899aabbccddeeff0011223344")
	if err == nil {
		t.Fatalf("expected an error for an oversized hex string")
	}
}

func TestBytesToAddressRightAligns(t *testing.T) {
	a := BytesToAddress([]byte{0x01, 0x02})
	if a.Bytes()[19] != 0x02 || a.Bytes()[18] != 0x01 {
		t.Fatalf("BytesToAddress should right-align short input: %x", a.Bytes())
	}
	for i := 0; i < 18; i++ {
		if a.Bytes()[i] != 0 {
			t.Fatalf("expected leading zero padding, got %x", a.Bytes())
		}
	}
}

func TestBytesToAddressTruncatesOversizedInput(t *testing.T) {
	long := make([]byte, 25)
	for i := range long {
		long[i] = byte(i)
	}
	a := BytesToAddress(long)
	// Only the last AddressLength bytes should survive.
	want := long[len(long)-AddressLength:]
	for i, b := range want {
		if a.Bytes()[i] != b {
			t.Fatalf("BytesToAddress truncation mismatch at %d: got %x want %x", i, a.Bytes()[i], b)
		}
	}
}

func TestAddressIsZero(t *testing.T) {
	var a Address
	if !a.IsZero() {
		t.Fatalf("zero-value Address should be IsZero")
	}
	a[0] = 1
	if a.IsZero() {
		t.Fatalf("non-zero Address should not be IsZero")
	}
}

func TestDecodeEncodeHexRoundTrip(t *testing.T) {
	b, err := DecodeHex("0xdeadbeef")
	if err != nil {
		t.Fatalf("DecodeHex: %v", err)
	}
	if got := EncodeHex(b); got != "0xdeadbeef" {
		t.Fatalf("EncodeHex = %s, want 0xdeadbeef", got)
	}
}

func TestDecodeHexOddLengthIsPadded(t *testing.T) {
	b, err := DecodeHex("0x1")
	if err != nil {
		t.Fatalf("DecodeHex: %v", err)
	}
	if len(b) != 1 || b[0] != 0x01 {
		t.Fatalf("DecodeHex(\"0x1\") = %x, want [0x01]", b)
	}
}

func TestIdentityPrecompileAddress(t *testing.T) {
	want := "0x0000000000000000000000000000000000000004"
	if got := IdentityPrecompileAddress.Hex(); got != want {
		t.Fatalf("IdentityPrecompileAddress = %s, want %s", got, want)
	}
}
