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
	"container/heap"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// priceQueue is a max-heap over SenderPools ordered by gas price, insertion
// sequence breaking ties FIFO. Two independent instances back the pending
// and gapped queues, wrapping stdlib container/heap.
type priceQueue struct {
	items []*SenderPool
	index map[common.Address]int
}

func newPriceQueue() *priceQueue {
	return &priceQueue{index: make(map[common.Address]int)}
}

func (q *priceQueue) Len() int { return len(q.items) }

func (q *priceQueue) Less(i, j int) bool {
	pi, pj := q.items[i].GasPrice(), q.items[j].GasPrice()
	if pi == nil || pj == nil {
		return false
	}
	cmp := pi.Cmp(pj)
	if cmp != 0 {
		return cmp > 0 // max-heap: higher gas price first
	}
	return q.items[i].Top().seq < q.items[j].Top().seq
}

func (q *priceQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.index[key(q.items[i])] = i
	q.index[key(q.items[j])] = j
}

func (q *priceQueue) Push(x interface{}) {
	p := x.(*SenderPool)
	q.index[key(p)] = len(q.items)
	q.items = append(q.items, p)
}

func (q *priceQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	delete(q.index, key(p))
	return p
}

func key(p *SenderPool) common.Address { return p.Sender }

// Add inserts or, if already present, reorders p after its gas price changed.
func (q *priceQueue) Add(p *SenderPool) {
	if i, ok := q.index[key(p)]; ok {
		heap.Fix(q, i)
		return
	}
	heap.Push(q, p)
}

// Remove drops p from the queue if present.
func (q *priceQueue) Remove(p *SenderPool) {
	i, ok := q.index[key(p)]
	if !ok {
		return
	}
	heap.Remove(q, i)
}

// Peek returns the highest gas-price pool without removing it.
func (q *priceQueue) Peek() *SenderPool {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Lowest returns the lowest gas-price pool. A linear scan over the heap's
// backing slice: admission pressure is rare enough that maintaining a
// mirrored min-heap isn't worth the bookkeeping.
func (q *priceQueue) Lowest() *SenderPool {
	var low *SenderPool
	for _, p := range q.items {
		gp := p.GasPrice()
		if gp == nil {
			continue
		}
		if low == nil || gp.Cmp(low.GasPrice()) < 0 ||
			(gp.Cmp(low.GasPrice()) == 0 && p.Top().seq < low.Top().seq) {
			low = p
		}
	}
	return low
}

func (q *priceQueue) Fix(p *SenderPool) {
	if i, ok := q.index[key(p)]; ok {
		heap.Fix(q, i)
	}
}
