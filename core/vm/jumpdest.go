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
	lru "github.com/hashicorp/golang-lru"

	"github.com/evmkit/evmkit/crypto"
)

// jumpdests is the immutable set of valid JUMP/JUMPI targets for one piece
// of bytecode, precomputed once per code hash.
type jumpdests map[uint64]struct{}

func (j jumpdests) has(dest uint64) bool {
	_, ok := j[dest]
	return ok
}

// analyze scans code once, recording every JUMPDEST byte that does not fall
// inside a PUSHn immediate.
func analyze(code []byte) jumpdests {
	dests := make(jumpdests)
	for pc := uint64(0); pc < uint64(len(code)); {
		op := OpCode(code[pc])
		if op == JUMPDEST {
			dests[pc] = struct{}{}
			pc++
			continue
		}
		if op.IsPush() {
			pc += 1 + uint64(op.PushSize())
			continue
		}
		pc++
	}
	return dests
}

const jumpdestCacheSize = 256

// jumpdestCache memoizes analyze() results by code hash so that repeated
// CALLs into the same contract bytecode don't re-scan it on every entry.
type jumpdestCache struct {
	cache *lru.Cache
}

func newJumpdestCache() *jumpdestCache {
	c, err := lru.New(jumpdestCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which jumpdestCacheSize never is.
		panic(err)
	}
	return &jumpdestCache{cache: c}
}

// get returns the JUMPDEST set for code, computing and caching it on a miss.
func (jc *jumpdestCache) get(code []byte) jumpdests {
	key := string(crypto.Keccak256(code))
	if v, ok := jc.cache.Get(key); ok {
		return v.(jumpdests)
	}
	dests := analyze(code)
	jc.cache.Add(key, dests)
	return dests
}
