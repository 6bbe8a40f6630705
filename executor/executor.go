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

// Package executor is Executor Dispatch: a worker pool binding mempool
// entries to operator resources and strategies, propagating results back
// into the mempool and resource manager, plus a single cooperative
// housekeeping loop for periodic tasks.
package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/opresource"
	"github.com/neonlabsorg/neon-proxy-go/strategy"
)

var logger = nlog.New("executor")

// StuckTxSink receives stuck-tx reports discovered during execution, handed
// over to the dictionary shared with the Indexer.
type StuckTxSink interface {
	AddOwn(sig *xerr.StuckTxError)
}

// RPCResultSink receives terminal failures so the original JSON-RPC caller
// can observe them; the sink keeps this package free of RPC plumbing.
type RPCResultSink interface {
	Failed(txHash common.Hash, err error)
}

// Pool is the dispatch loop's view of the mempool. Done and Fail are
// terminal (the tx leaves the pool); Cancel re-queues the tx for a later
// attempt.
type Pool interface {
	Acquire() *mempool.ETx
	Done(hash common.Hash, newStateTxCnt uint64)
	Fail(hash common.Hash)
	Cancel(hash common.Hash) error
}

// Resources is the dispatch loop's view of the Operator Resource Manager.
type Resources interface {
	Acquire(ethereumTxSig common.Hash) *opresource.OpRes
	Release(res *opresource.OpRes, ethereumTxSig common.Hash)
	Disable(res *opresource.OpRes)
}

// Strategist runs one ETx to completion against a resource.
type Strategist interface {
	Execute(ctx context.Context, tx *mempool.ETx, res *opresource.OpRes) strategy.Result
}

// Executor owns a configurable-count worker pool; the periodic
// housekeeping loop is the separate Housekeeper.
type Executor struct {
	pool      Pool
	resources Resources
	strategist Strategist
	stuckTxs  StuckTxSink
	rpcResults RPCResultSink

	workerCount int
	idleSleep   time.Duration

	dispatched int64 // atomic

	stopCh chan struct{}
	wg     sync.WaitGroup
}

func New(pool Pool, resources Resources, strategist Strategist, stuckTxs StuckTxSink, rpcResults RPCResultSink, workerCount int, idleSleep time.Duration) *Executor {
	return &Executor{
		pool:        pool,
		resources:   resources,
		strategist:  strategist,
		stuckTxs:    stuckTxs,
		rpcResults:  rpcResults,
		workerCount: workerCount,
		idleSleep:   idleSleep,
		stopCh:      make(chan struct{}),
	}
}

// Start launches the configured number of dispatch workers.
func (e *Executor) Start(ctx context.Context) {
	for i := 0; i < e.workerCount; i++ {
		e.wg.Add(1)
		go e.workerLoop(ctx)
	}
}

func (e *Executor) Stop() {
	close(e.stopCh)
	e.wg.Wait()
}

func (e *Executor) workerLoop(ctx context.Context) {
	defer e.wg.Done()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		tx := e.pool.Acquire()
		if tx == nil {
			time.Sleep(e.idleSleep)
			continue
		}

		res := e.resources.Acquire(tx.Hash)
		if res == nil {
			_ = e.pool.Cancel(tx.Hash)
			time.Sleep(e.idleSleep)
			continue
		}

		atomic.AddInt64(&e.dispatched, 1)
		result := e.strategist.Execute(ctx, tx, res)
		e.handleResult(tx, res, result)
	}
}

// handleResult implements the match statement verbatim.
func (e *Executor) handleResult(tx *mempool.ETx, res *opresource.OpRes, result strategy.Result) {
	switch {
	case result.Done:
		e.pool.Done(tx.Hash, tx.Nonce+1)
		e.resources.Release(res, tx.Hash)
	case result.NonceTooHigh:
		_ = e.pool.Cancel(tx.Hash) // re-queued; gap status re-derives from the state nonce
		e.resources.Release(res, tx.Hash)
	case result.Reschedule:
		_ = e.pool.Cancel(tx.Hash)
		e.resources.Release(res, tx.Hash)
	case result.BadResource:
		e.resources.Disable(res)
		_ = e.pool.Cancel(tx.Hash)
	case result.StuckTx != nil:
		e.resources.Release(res, tx.Hash)
		e.stuckTxs.AddOwn(result.StuckTx)
	default:
		e.pool.Fail(tx.Hash)
		e.resources.Release(res, tx.Hash)
		if e.rpcResults != nil && result.Err != nil {
			e.rpcResults.Failed(tx.Hash, result.Err)
		}
	}
}

// Dispatched returns the lifetime count of ETx handed to a strategy run.
func (e *Executor) Dispatched() int64 { return atomic.LoadInt64(&e.dispatched) }
