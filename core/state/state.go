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

// Package state holds the world: the address-keyed set of accounts an EVM
// frame reads and mutates, and the per-account storage trie stand-in (a
// flat key/value map — no Merkle proofs, no trie, by design).
package state

import (
	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/common"
)

// Storage maps a 256-bit key to a 256-bit value for one account. An unset
// key reads as the zero word.
type Storage map[uint256.Int]uint256.Int

// Copy returns a deep copy of s.
func (s Storage) Copy() Storage {
	cpy := make(Storage, len(s))
	for k, v := range s {
		cpy[k] = v
	}
	return cpy
}

// Account is one entry in the World: a nonce, a balance, code, and storage.
// The zero value is the default (empty) account.
type Account struct {
	Nonce   uint64
	Balance uint256.Int
	Code    []byte
	Storage Storage
}

// Copy returns a deep copy of a, including its storage map and a fresh copy
// of its code slice.
func (a *Account) Copy() *Account {
	cpy := &Account{
		Nonce:   a.Nonce,
		Balance: a.Balance,
		Storage: a.Storage.Copy(),
	}
	if a.Code != nil {
		cpy.Code = append([]byte(nil), a.Code...)
	}
	return cpy
}

// IsEmpty reports whether a is indistinguishable from a never-touched
// default account.
func (a *Account) IsEmpty() bool {
	return a.Nonce == 0 && a.Balance.IsZero() && len(a.Code) == 0 && len(a.Storage) == 0
}

// World is the address -> account mapping an EVM frame executes against.
// Missing entries behave as a default (all-zero) Account.
type World struct {
	accounts map[common.Address]*Account
}

// New returns an empty World.
func New() *World {
	return &World{accounts: make(map[common.Address]*Account)}
}

// Clone performs the whole-world deep copy used to snapshot state before a
// nested CALL/CREATE, and to discard the clone on revert/error or replace
// the parent with it on success (see spec.md §9's snapshot/rollback note).
func (w *World) Clone() *World {
	cpy := &World{accounts: make(map[common.Address]*Account, len(w.accounts))}
	for addr, acc := range w.accounts {
		cpy.accounts[addr] = acc.Copy()
	}
	return cpy
}

// Get returns the account at addr, creating and storing a fresh default
// account if none exists yet (mirrors the Yellow Paper's "missing accounts
// behave as default" rule while still giving callers a stable pointer to
// mutate).
func (w *World) Get(addr common.Address) *Account {
	if acc, ok := w.accounts[addr]; ok {
		return acc
	}
	acc := &Account{Storage: make(Storage)}
	w.accounts[addr] = acc
	return acc
}

// Exist reports whether addr has a non-default entry in w.
func (w *World) Exist(addr common.Address) bool {
	acc, ok := w.accounts[addr]
	return ok && !acc.IsEmpty()
}

// GetBalance returns addr's balance (zero for a missing account).
func (w *World) GetBalance(addr common.Address) uint256.Int {
	if acc, ok := w.accounts[addr]; ok {
		return acc.Balance
	}
	return uint256.Int{}
}

// AddBalance credits amount to addr's balance.
func (w *World) AddBalance(addr common.Address, amount *uint256.Int) {
	acc := w.Get(addr)
	acc.Balance.Add(&acc.Balance, amount)
}

// SubBalance debits amount from addr's balance.
func (w *World) SubBalance(addr common.Address, amount *uint256.Int) {
	acc := w.Get(addr)
	acc.Balance.Sub(&acc.Balance, amount)
}

// Transfer moves amount from sender to recipient. Callers are responsible
// for checking CanTransfer first.
func (w *World) Transfer(sender, recipient common.Address, amount *uint256.Int) {
	if amount.IsZero() {
		return
	}
	w.SubBalance(sender, amount)
	w.AddBalance(recipient, amount)
}

// CanTransfer reports whether addr's balance covers amount.
func (w *World) CanTransfer(addr common.Address, amount *uint256.Int) bool {
	bal := w.GetBalance(addr)
	return bal.Cmp(amount) >= 0
}

// GetNonce returns addr's nonce.
func (w *World) GetNonce(addr common.Address) uint64 {
	if acc, ok := w.accounts[addr]; ok {
		return acc.Nonce
	}
	return 0
}

// SetNonce sets addr's nonce.
func (w *World) SetNonce(addr common.Address, nonce uint64) {
	w.Get(addr).Nonce = nonce
}

// GetCode returns addr's code.
func (w *World) GetCode(addr common.Address) []byte {
	if acc, ok := w.accounts[addr]; ok {
		return acc.Code
	}
	return nil
}

// SetCode sets addr's code.
func (w *World) SetCode(addr common.Address, code []byte) {
	w.Get(addr).Code = code
}

// GetState reads key from addr's storage, returning the zero word if unset.
func (w *World) GetState(addr common.Address, key uint256.Int) uint256.Int {
	if acc, ok := w.accounts[addr]; ok {
		if v, ok := acc.Storage[key]; ok {
			return v
		}
	}
	return uint256.Int{}
}

// SetState writes value to key in addr's storage.
func (w *World) SetState(addr common.Address, key, value uint256.Int) {
	acc := w.Get(addr)
	if acc.Storage == nil {
		acc.Storage = make(Storage)
	}
	acc.Storage[key] = value
}

// Addresses returns every address that has an entry in w, for JSON
// export / debugging. Entries created by Get that are still default
// (empty) accounts are included.
func (w *World) Addresses() []common.Address {
	out := make([]common.Address, 0, len(w.accounts))
	for addr := range w.accounts {
		out = append(out, addr)
	}
	return out
}
