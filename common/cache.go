// Copyright 2023 The neon-proxy-go Authors
// This file is part of the neon-proxy-go library.
//
// The neon-proxy-go library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The neon-proxy-go library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the neon-proxy-go library. If not, see <http://www.gnu.org/licenses/>.

package common

import (
	lru "github.com/hashicorp/golang-lru"
)

// AccountCache and BlockhashCache are bounded caches keyed by Pubkey/Hash.
// Accounts fetched by the Chain Adapter and blockhashes seen by
// check_confirm both have plain recency-biased access, so a plain LRU is
// enough; nothing here has the scan-heavy access pattern that would call
// for ARC or sharding.
type lruCache struct {
	lru *lru.Cache
}

func newLRUCache(size int) *lruCache {
	c, err := lru.New(size)
	if err != nil {
		// Only returns an error for size <= 0, a programmer error.
		panic(err)
	}
	return &lruCache{lru: c}
}

func (c *lruCache) Add(key, value interface{}) (evicted bool) { return c.lru.Add(key, value) }
func (c *lruCache) Get(key interface{}) (value interface{}, ok bool) { return c.lru.Get(key) }
func (c *lruCache) Contains(key interface{}) bool { return c.lru.Contains(key) }
func (c *lruCache) Remove(key interface{}) { c.lru.Remove(key) }
func (c *lruCache) Purge() { c.lru.Purge() }
func (c *lruCache) Len() int { return c.lru.Len() }

// AccountCache caches the last-seen AccountInfo per settlement-chain pubkey,
// used by the Chain Adapter's batched get_account to avoid refetching
// accounts the Strategy Engine already holds a fresh copy of within one
// emulation pass.
type AccountCache struct{ *lruCache }

func NewAccountCache(size int) *AccountCache { return &AccountCache{newLRUCache(size)} }

func (c *AccountCache) Put(key Pubkey, info interface{}) { c.Add(key, info) }
func (c *AccountCache) GetAccount(key Pubkey) (interface{}, bool) { return c.Get(key) }

// BlockhashCache caches recent blockhashes by slot, so check_confirm's
// blockhash-not-found classification can distinguish "this
// hash expired" from "this hash never existed" without a second RPC round
// trip for hashes already seen this session.
type BlockhashCache struct{ *lruCache }

func NewBlockhashCache(size int) *BlockhashCache { return &BlockhashCache{newLRUCache(size)} }

func (c *BlockhashCache) Put(slot uint64, hash Hash) { c.Add(slot, hash) }

func (c *BlockhashCache) GetHash(slot uint64) (Hash, bool) {
	v, ok := c.Get(slot)
	if !ok {
		return Hash{}, false
	}
	return v.(Hash), true
}
