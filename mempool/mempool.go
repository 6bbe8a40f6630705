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
	"sync"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
)

var logger = nlog.New("mempool")

// Config mirrors BridgeTxPoolConfig's shape: exported fields, a sanitize()
// pass. Capacity is `C`, HighWatermark is `W`.
type Config struct {
	Capacity      int
	HighWatermark float64
	EvictionTimeout time.Duration
}

var DefaultConfig = Config{Capacity: 4096, HighWatermark: 0.9, EvictionTimeout: time.Hour}

func (c Config) sanitize() Config {
	if c.Capacity <= 0 {
		logger.Error("sanitizing invalid capacity", "provided", c.Capacity, "updated", DefaultConfig.Capacity)
		c.Capacity = DefaultConfig.Capacity
	}
	if c.HighWatermark <= 0 || c.HighWatermark >= 1 {
		logger.Error("sanitizing invalid high watermark", "provided", c.HighWatermark, "updated", DefaultConfig.HighWatermark)
		c.HighWatermark = DefaultConfig.HighWatermark
	}
	if c.EvictionTimeout <= 0 {
		c.EvictionTimeout = DefaultConfig.EvictionTimeout
	}
	return c
}

// Mempool is the set of Sender Pools for one chain-id. All
// state is guarded by mu, following bridge_tx_pool.go's single-mutex shape.
type Mempool struct {
	config  Config
	chainID uint64

	mu sync.Mutex

	byHash   map[common.Hash]*ETx
	pools    map[common.Address]*SenderPool
	pending  *priceQueue
	gapped   *priceQueue
	heartbeats *heartbeatQueue
	suspended map[common.Address]bool

	minGasPrice *big.Int // stabilized floor pushed by the Executor's housekeeping loop

	seq uint64
}

// SetMinExecutableGasPrice implements executor.GasPriceFloor: the
// Housekeeper pushes its stabilized window-minimum here on every refresh.
func (m *Mempool) SetMinExecutableGasPrice(price *big.Int) {
	m.mu.Lock()
	m.minGasPrice = price
	m.mu.Unlock()
}

func New(chainID uint64, config Config) *Mempool {
	return &Mempool{
		config:    config.sanitize(),
		chainID:   chainID,
		byHash:    make(map[common.Hash]*ETx),
		pools:     make(map[common.Address]*SenderPool),
		pending:   newPriceQueue(),
		gapped:    newPriceQueue(),
		heartbeats: newHeartbeatQueue(),
		suspended: make(map[common.Address]bool),
	}
}

// size returns the current |hash→ETx| count, which is always
// ≥ |pending| + |gapped|.
func (m *Mempool) size() int { return len(m.byHash) }

// Add inserts tx, enforcing capacity/high-watermark and the nonce-gap
// classification into the pending vs gapped queues.
func (m *Mempool) Add(tx *ETx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[tx.Hash]; ok {
		return xerr.ErrKnownTx
	}

	if m.suspended[tx.Sender] {
		return xerr.ErrPoolFull // suspended senders refuse new entries
	}

	if m.minGasPrice != nil && tx.GasPrice.Cmp(m.minGasPrice) < 0 {
		return xerr.ErrUnderprice
	}

	pool, havePool := m.pools[tx.Sender]
	if havePool {
		if prevTx, exists := pool.byNonce[tx.Nonce]; exists {
			if tx.GasPrice.Cmp(prevTx.GasPrice) <= 0 {
				return xerr.ErrUnderprice
			}
			pool.Replace(tx)
			delete(m.byHash, prevTx.Hash)
			m.byHash[tx.Hash] = tx
			m.requeue(pool)
			return nil
		}
	}

	stateCnt := tx.ExecutionConfig.StateNonceAtEntry
	if havePool {
		stateCnt = pool.stateTxCnt
	}
	if tx.Nonce < stateCnt {
		return xerr.ErrNonceTooLow
	}

	// is_gapped = (pending_nonce_or_state_tx_cnt < tx.nonce): the first
	// nonce not already queued, counted up from the state watermark.
	next := stateCnt
	if havePool {
		for {
			if _, ok := pool.byNonce[next]; !ok {
				break
			}
			next++
		}
	}
	isGapped := tx.Nonce > next

	// Admission under pressure: at or past the high watermark a gapped tx
	// must outbid the lowest gapped tx and a pending tx must outbid the
	// lowest pending tx. The outbid victim's cheapest entry is dropped to
	// make room.
	highWater := int(float64(m.config.Capacity) * m.config.HighWatermark)
	if isGapped && m.size() >= highWater {
		if !m.outbidLowest(m.gapped, tx.GasPrice) {
			metrics.MempoolRefused.Inc(1)
			return xerr.ErrNonceTooHigh
		}
	} else if !isGapped && m.size() >= highWater {
		if !m.outbidLowest(m.pending, tx.GasPrice) {
			metrics.MempoolRefused.Inc(1)
			return xerr.ErrUnderprice
		}
	}

	if !havePool {
		pool = NewSenderPool(tx.Sender, m.chainID, stateCnt)
		m.pools[tx.Sender] = pool
	}

	m.seq++
	tx.seq = m.seq
	tx.insertedAt = time.Now()
	pool.Insert(tx)
	m.byHash[tx.Hash] = tx
	m.requeue(pool)
	m.heartbeats.Add(pool)

	metrics.MempoolSize.Update(int64(m.size()))
	return nil
}

// outbidLowest drops the cheapest tx of q's lowest gas-price pool when
// price outbids it, reporting whether room was made.
func (m *Mempool) outbidLowest(q *priceQueue, price *big.Int) bool {
	victimPool := q.Lowest()
	if victimPool == nil || price.Cmp(victimPool.GasPrice()) <= 0 {
		return false
	}
	victim := victimPool.CheapestTx()
	if victim == nil {
		return false
	}
	m.removeLocked(victim.Hash)
	metrics.MempoolEvicted.Inc(1)
	logger.Warn("evicted tx under capacity pressure", "sender", victimPool.Sender.Hex(), "nonce", victim.Nonce)
	return true
}

// requeue moves pool between the pending and gapped queues based on its
// current gap status, and updates its position within whichever it's in.
func (m *Mempool) requeue(pool *SenderPool) {
	// An empty pool, or one with a tx in flight, sits in neither queue.
	if pool.IsEmpty() || pool.processing != nil {
		m.pending.Remove(pool)
		m.gapped.Remove(pool)
		return
	}
	if pool.IsGapped() {
		m.pending.Remove(pool)
		m.gapped.Add(pool)
	} else {
		m.gapped.Remove(pool)
		m.pending.Add(pool)
	}
	metrics.MempoolPendingCount.Update(int64(m.pending.Len()))
	metrics.MempoolGappedCount.Update(int64(m.gapped.Len()))
}

// Acquire pops the highest gas-price eligible (non-gapped, non-suspended,
// not already Processing) sender pool's top tx for the Executor.
func (m *Mempool) Acquire() *ETx {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool := m.pending.Peek()
	if pool == nil || pool.processing != nil {
		return nil
	}
	tx := pool.BeginProcessing()
	m.pending.Remove(pool)
	return tx
}

// TopPendingGasPrice returns the gas price of the current top-of-book
// pending tx (the one Acquire would hand out next), or nil if the pool is
// empty. Used to derive a suggested gas price from the mempool's own
// demand.
func (m *Mempool) TopPendingGasPrice() *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	pool := m.pending.Peek()
	if pool == nil {
		return nil
	}
	top := pool.Top()
	if top == nil {
		return nil
	}
	return top.GasPrice
}

// Done marks tx as terminally successful, advancing the pool's
// state_tx_cnt watermark and pruning any now-stale lower-nonce entries.
func (m *Mempool) Done(hash common.Hash, newStateTxCnt uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byHash[hash]
	if !ok {
		return
	}
	pool := m.pools[tx.Sender]
	if pool == nil {
		return
	}
	pool.EndProcessing()
	for _, pruned := range pool.AdvanceStateTxCnt(newStateTxCnt) {
		delete(m.byHash, pruned.Hash)
	}
	delete(m.byHash, hash)
	// An emptied pool stays registered so its advanced state_tx_cnt keeps
	// rejecting reused nonces; stale eviction drops it later.
	m.requeue(pool)
}

// Fail drops tx terminally: a genuine failure already surfaced to the
// caller, so the tx leaves the pool without advancing any watermark.
func (m *Mempool) Fail(hash common.Hash) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(hash)
}

// Cancel puts tx back at the top of its pool (the reschedule path): the
// Processing marker is cleared and the pool re-queued with the tx's
// updated exec-config, so a later Acquire hands it out again.
func (m *Mempool) Cancel(hash common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.byHash[hash]
	if !ok {
		return xerr.ErrUnknownTx
	}
	pool := m.pools[tx.Sender]
	if pool == nil {
		return xerr.ErrUnknownTx
	}
	pool.EndProcessing()
	m.requeue(pool)
	return nil
}

func (m *Mempool) removeLocked(hash common.Hash) bool {
	tx, ok := m.byHash[hash]
	if !ok {
		return false
	}
	pool := m.pools[tx.Sender]
	if pool == nil {
		delete(m.byHash, hash)
		return true
	}
	pool.Remove(tx.Nonce)
	delete(m.byHash, hash)
	m.requeue(pool)
	if pool.IsEmpty() {
		m.heartbeats.Remove(pool)
		delete(m.pools, tx.Sender)
	}
	return true
}

// Suspend marks sender's pool Suspended: its txs stay resident but are
// skipped by Acquire until Unsuspend.
func (m *Mempool) Suspend(sender common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended[sender] = true
	if pool, ok := m.pools[sender]; ok {
		pool.Suspend()
		m.pending.Remove(pool)
		m.gapped.Remove(pool)
	}
	metrics.MempoolSuspendedCount.Update(int64(len(m.suspended)))
}

func (m *Mempool) Unsuspend(sender common.Address) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.suspended, sender)
	if pool, ok := m.pools[sender]; ok {
		pool.Resume()
		m.requeue(pool)
	}
	metrics.MempoolSuspendedCount.Update(int64(len(m.suspended)))
}

// PendingNonce returns the next nonce this mempool would accept for sender
// without creating a gap (the first nonce not currently queued, starting
// from the pool's state_tx_cnt).
func (m *Mempool) PendingNonce(sender common.Address) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[sender]
	if !ok {
		return 0
	}
	next := pool.stateTxCnt
	for {
		if _, ok := pool.byNonce[next]; !ok {
			return next
		}
		next++
	}
}

// LastNonce returns the highest queued nonce for sender.
func (m *Mempool) LastNonce(sender common.Address) (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pool, ok := m.pools[sender]
	if !ok || pool.IsEmpty() {
		return 0, false
	}
	return pool.nonces[len(pool.nonces)-1], true
}

// SuspendedSenders returns the current suspended-sender set.
func (m *Mempool) SuspendedSenders() []common.Address {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]common.Address, 0, len(m.suspended))
	for s := range m.suspended {
		out = append(out, s)
	}
	return out
}

// Content returns every queued ETx grouped by sender, for RPC/debug surfaces.
func (m *Mempool) Content() map[common.Address][]*ETx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[common.Address][]*ETx, len(m.pools))
	for addr, pool := range m.pools {
		txs := make([]*ETx, 0, pool.Len())
		for _, n := range pool.nonces {
			txs = append(txs, pool.byNonce[n])
		}
		out[addr] = txs
	}
	return out
}

// Get looks up a tracked ETx by hash.
func (m *Mempool) Get(hash common.Hash) (*ETx, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.byHash[hash]
	return tx, ok
}

// EvictStale removes sender pools whose heartbeat exceeds the configured
// eviction timeout; run periodically by the Executor's housekeeping loop.
func (m *Mempool) EvictStale(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	var skipped []*SenderPool
	for {
		oldest := m.heartbeats.Oldest()
		if oldest == nil || now.Sub(oldest.Heartbeat()) < m.config.EvictionTimeout {
			break
		}
		if oldest.state == Processing {
			// Never evict a pool with an in-flight tx; set it aside and
			// re-queue it after the sweep.
			m.heartbeats.Remove(oldest)
			skipped = append(skipped, oldest)
			continue
		}
		for _, n := range append([]uint64(nil), oldest.nonces...) {
			tx := oldest.byNonce[n]
			delete(m.byHash, tx.Hash)
		}
		m.pending.Remove(oldest)
		m.gapped.Remove(oldest)
		m.heartbeats.Remove(oldest)
		delete(m.pools, oldest.Sender)
		evicted++
		metrics.MempoolEvicted.Inc(1)
	}
	for _, p := range skipped {
		m.heartbeats.Add(p)
	}
	return evicted
}
