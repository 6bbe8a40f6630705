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

package mempool

import (
	"math/big"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// SenderPool owns all ETx for one (sender, chain-id).
// Invariants enforced by every mutating method:
//   - at most one ETx in Processing at a time (processing field)
//   - nonces are unique (byNonce keys)
//   - state_tx_cnt ≤ top.nonce (stateTxCnt is advanced by Done, never forced
//     above the lowest queued nonce by any other path)
//   - gas_price = top.nonce_tx.gas_price when non-empty (GasPrice() reads
//     through to the lowest-nonce entry, never cached separately)
type SenderPool struct {
	Sender  common.Address
	ChainID uint64

	state     SenderPoolState
	byNonce   map[uint64]*ETx
	nonces    []uint64 // kept sorted ascending
	stateTxCnt uint64  // next expected nonce (state-observed, advanced by Done)
	processing *ETx
	heartbeat time.Time
}

func NewSenderPool(sender common.Address, chainID uint64, stateTxCnt uint64) *SenderPool {
	return &SenderPool{
		Sender:     sender,
		ChainID:    chainID,
		state:      Empty,
		byNonce:    make(map[uint64]*ETx),
		stateTxCnt: stateTxCnt,
		heartbeat:  time.Now(),
	}
}

func (p *SenderPool) State() SenderPoolState { return p.state }

// Top returns the lowest-nonce queued ETx, or nil if empty.
func (p *SenderPool) Top() *ETx {
	if len(p.nonces) == 0 {
		return nil
	}
	return p.byNonce[p.nonces[0]]
}

// GasPrice reads through to the top entry's gas price, the invariant
// `gas_price = top.nonce_tx.gas_price`.
func (p *SenderPool) GasPrice() *big.Int {
	top := p.Top()
	if top == nil {
		return nil
	}
	return top.GasPrice
}

// IsGapped reports whether the top nonce is ahead of the next expected
// on-chain nonce, i.e. this pool currently contributes to the gapped queue
// rather than the pending queue.
func (p *SenderPool) IsGapped() bool {
	top := p.Top()
	return top != nil && top.Nonce > p.stateTxCnt
}

// Insert adds tx in nonce order. Returns false if the nonce is already present
// (caller must go through replace semantics explicitly, mempool handles that).
func (p *SenderPool) Insert(tx *ETx) bool {
	if _, exists := p.byNonce[tx.Nonce]; exists {
		return false
	}
	p.byNonce[tx.Nonce] = tx
	p.insertSorted(tx.Nonce)
	p.heartbeat = time.Now()
	if p.state == Empty {
		p.state = Queued
	}
	return true
}

// Replace overwrites an existing same-nonce tx (price-bump), keeping the
// same position and returning the evicted previous tx.
func (p *SenderPool) Replace(tx *ETx) *ETx {
	prev := p.byNonce[tx.Nonce]
	p.byNonce[tx.Nonce] = tx
	return prev
}

func (p *SenderPool) insertSorted(nonce uint64) {
	i := 0
	for i < len(p.nonces) && p.nonces[i] < nonce {
		i++
	}
	p.nonces = append(p.nonces, 0)
	copy(p.nonces[i+1:], p.nonces[i:])
	p.nonces[i] = nonce
}

// CheapestTx returns the lowest gas-price entry, the eviction victim under
// capacity pressure. Skips the in-flight tx.
func (p *SenderPool) CheapestTx() *ETx {
	var cheapest *ETx
	for _, n := range p.nonces {
		tx := p.byNonce[n]
		if tx == p.processing {
			continue
		}
		if cheapest == nil || tx.GasPrice.Cmp(cheapest.GasPrice) < 0 {
			cheapest = tx
		}
	}
	return cheapest
}

// Remove drops the tx at nonce (terminal failure or eviction).
func (p *SenderPool) Remove(nonce uint64) *ETx {
	tx, ok := p.byNonce[nonce]
	if !ok {
		return nil
	}
	delete(p.byNonce, nonce)
	for i, n := range p.nonces {
		if n == nonce {
			p.nonces = append(p.nonces[:i], p.nonces[i+1:]...)
			break
		}
	}
	if p.processing == tx {
		p.processing = nil
	}
	if len(p.nonces) == 0 {
		p.state = Empty
	}
	return tx
}

// BeginProcessing marks the top tx Processing, enforcing "at most one ETx in
// Processing" invariant.
func (p *SenderPool) BeginProcessing() *ETx {
	if p.processing != nil {
		return nil
	}
	top := p.Top()
	if top == nil {
		return nil
	}
	p.processing = top
	p.state = Processing
	return top
}

// EndProcessing clears the in-flight marker and returns the pool to Queued
// (or Empty if nothing remains).
func (p *SenderPool) EndProcessing() {
	p.processing = nil
	if len(p.nonces) == 0 {
		p.state = Empty
	} else {
		p.state = Queued
	}
}

// AdvanceStateTxCnt moves the next-expected-nonce watermark forward after a
// terminal success, pruning any now-stale lower-nonce entries (already
// included on-chain via a previous attempt). The pruned txs are returned so
// the mempool can drop them from its hash index too.
func (p *SenderPool) AdvanceStateTxCnt(newCnt uint64) []*ETx {
	if newCnt > p.stateTxCnt {
		p.stateTxCnt = newCnt
	}
	var pruned []*ETx
	for len(p.nonces) > 0 && p.nonces[0] < p.stateTxCnt {
		pruned = append(pruned, p.Remove(p.nonces[0]))
	}
	return pruned
}

func (p *SenderPool) Suspend()  { p.state = Suspended }
func (p *SenderPool) Resume()   { p.state = Queued }
func (p *SenderPool) Heartbeat() time.Time { return p.heartbeat }
func (p *SenderPool) Len() int  { return len(p.nonces) }
func (p *SenderPool) IsEmpty() bool { return len(p.nonces) == 0 }
