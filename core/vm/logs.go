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

// Log is one LOG0..LOG4 event, bound to the frame that emitted it. Logs
// emitted by a child that later reverts or errors are discarded along with
// its world mutations; logs from a child that commits are appended to the
// parent after the parent's own pre-call logs, in emission order.
type Log struct {
	Address common.Address
	Topics  []uint256.Int
	Data    []byte
}
