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

package state

import (
	"encoding/json"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/syndtr/goleveldb/leveldb"

	"github.com/evmkit/evmkit/common"
)

// LevelDBWorld persists a World's accounts in a LevelDB instance instead of
// keeping them only in memory, so a CLI run can be pointed at the same
// on-disk account set across multiple invocations. It holds no trie and no
// proofs — each account is one JSON-encoded record keyed by address.
//
// LevelDBWorld is not used by the interpreter directly: a run loads a
// World snapshot from it via Load, executes entirely in memory against
// that World (Clone/snapshot semantics are unaffected), and the CLI calls
// Save afterward to persist the result.
type LevelDBWorld struct {
	db *leveldb.DB
}

// OpenLevelDBWorld opens (creating if necessary) a LevelDB database at dir.
func OpenLevelDBWorld(dir string) (*LevelDBWorld, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("state: open leveldb at %s: %w", dir, err)
	}
	return &LevelDBWorld{db: db}, nil
}

// Close releases the underlying database handle.
func (l *LevelDBWorld) Close() error { return l.db.Close() }

// accountRecord is the on-disk JSON shape for one account, independent of
// the CLI-facing World JSON format in cmd/evmrun (that format nests
// accounts under a top-level map; this one is one record per LevelDB key).
type accountRecord struct {
	Nonce   uint64            `json:"nonce"`
	Balance string            `json:"balance"`
	Code    string            `json:"code"`
	Storage map[string]string `json:"storage"`
}

// Load reads every persisted account into a fresh in-memory World.
func (l *LevelDBWorld) Load() (*World, error) {
	w := New()
	iter := l.db.NewIterator(nil, nil)
	defer iter.Release()
	for iter.Next() {
		addr := common.BytesToAddress(iter.Key())
		var rec accountRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("state: decode account %s: %w", addr.Hex(), err)
		}
		acc := w.Get(addr)
		acc.Nonce = rec.Nonce
		if rec.Balance != "" {
			b, err := hexToUint256(rec.Balance)
			if err != nil {
				return nil, err
			}
			acc.Balance = b
		}
		if rec.Code != "" {
			code, err := common.DecodeHex(rec.Code)
			if err != nil {
				return nil, err
			}
			acc.Code = code
		}
		for k, v := range rec.Storage {
			key, err := hexToUint256(k)
			if err != nil {
				return nil, err
			}
			val, err := hexToUint256(v)
			if err != nil {
				return nil, err
			}
			acc.Storage[key] = val
		}
	}
	return w, iter.Error()
}

// Save writes every account in w to the database, overwriting prior
// records for the same address.
func (l *LevelDBWorld) Save(w *World) error {
	batch := new(leveldb.Batch)
	for _, addr := range w.Addresses() {
		acc := w.Get(addr)
		rec := accountRecord{
			Nonce:   acc.Nonce,
			Balance: common.EncodeHex(acc.Balance.Bytes()),
			Code:    common.EncodeHex(acc.Code),
			Storage: make(map[string]string, len(acc.Storage)),
		}
		for k, v := range acc.Storage {
			rec.Storage[common.EncodeHex(k.Bytes())] = common.EncodeHex(v.Bytes())
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("state: encode account %s: %w", addr.Hex(), err)
		}
		batch.Put(addr.Bytes(), data)
	}
	return l.db.Write(batch, nil)
}

func hexToUint256(s string) (v uint256.Int, err error) {
	b, err := common.DecodeHex(s)
	if err != nil {
		return v, err
	}
	v.SetBytes(b)
	return v, nil
}
