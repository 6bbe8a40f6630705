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

// heartbeatQueue is a min-heap over SenderPools ordered by heartbeat
// (last-insertion time), the eviction candidate order.
type heartbeatQueue struct {
	items []*SenderPool
	index map[common.Address]int
}

func newHeartbeatQueue() *heartbeatQueue {
	return &heartbeatQueue{index: make(map[common.Address]int)}
}

func (q *heartbeatQueue) Len() int { return len(q.items) }
func (q *heartbeatQueue) Less(i, j int) bool {
	return q.items[i].Heartbeat().Before(q.items[j].Heartbeat())
}
func (q *heartbeatQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.index[q.items[i].Sender] = i
	q.index[q.items[j].Sender] = j
}
func (q *heartbeatQueue) Push(x interface{}) {
	p := x.(*SenderPool)
	q.index[p.Sender] = len(q.items)
	q.items = append(q.items, p)
}
func (q *heartbeatQueue) Pop() interface{} {
	old := q.items
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	delete(q.index, p.Sender)
	return p
}

func (q *heartbeatQueue) Add(p *SenderPool) {
	if i, ok := q.index[p.Sender]; ok {
		heap.Fix(q, i)
		return
	}
	heap.Push(q, p)
}

func (q *heartbeatQueue) Remove(p *SenderPool) {
	if i, ok := q.index[p.Sender]; ok {
		heap.Remove(q, i)
	}
}

// Oldest returns the stalest pool without removing it.
func (q *heartbeatQueue) Oldest() *SenderPool {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}
