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
)

// BlockEnv is the read-only block context shared by every frame in one Run.
type BlockEnv struct {
	Coinbase   common.Address
	Timestamp  uint64
	Number     uint64
	GasLimit   uint256.Int
	ChainID    uint256.Int
	BaseFee    uint256.Int
}

// TxEnv is the read-only, per-frame environment: who is calling, with what
// value, at what gas price, and whether side effects are forbidden.
type TxEnv struct {
	Address   common.Address // the executing contract's own address
	Caller    common.Address
	Origin    common.Address
	CallValue uint256.Int
	GasPrice  uint256.Int
	IsStatic  bool
}
