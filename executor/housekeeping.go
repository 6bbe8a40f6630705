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

package executor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

// GasPriceOracle is the subset needed to refresh the suggested/minimum gas
// price.
type GasPriceOracle interface {
	SuggestedGasPrice(ctx context.Context) (*big.Int, error)
}

// GasPriceFloor receives the stabilized minimum executable gas price, used
// by the mempool to raise the underprice floor.
type GasPriceFloor interface {
	SetMinExecutableGasPrice(price *big.Int)
}

// EVMConfigReader re-reads on-chain config: chain list, step-min,
// compute-budget.
type EVMConfigReader interface {
	ReadConfig(ctx context.Context) (chainIDs []uint64, evmStepMin uint64, cuLimit uint64, err error)
}

// CodecPropagator receives refreshed EVM config.
type CodecPropagator interface {
	SetConfig(chainIDs []uint64, evmStepMin uint64, cuLimit uint64)
}

// ResourceInitializer initializes one Disabled resource per tick.
type ResourceInitializer interface {
	InitializeOne(ctx context.Context) error
}

// StuckTxPoller moves external (Indexer-discovered) stuck txs into the
// dictionary the Strategy Engine consumes, skipping own and completed ones.
type StuckTxPoller interface {
	PollExternal(ctx context.Context) error
}

// StaleEvictor drops sender pools whose heartbeat passed the eviction
// timeout, the wall-clock eviction.
type StaleEvictor interface {
	EvictStale(now time.Time) int
}

// AltCloser runs the ALT deactivate/close cycle, wrapping
// txcodec.AltTable.ReadyToClose against the current slot.
type AltCloser interface {
	CurrentSlot(ctx context.Context) (uint64, error)
	PendingALTs() []*txcodec.AltTable
	Deactivate(ctx context.Context, alt *txcodec.AltTable) error
	Close(ctx context.Context, alt *txcodec.AltTable) error
}

// Housekeeper runs the periodic tasks on a single cooperative loop, so
// they never race each other over mempool or resource state.
type Housekeeper struct {
	oracle    GasPriceOracle
	floor     GasPriceFloor
	window    *gasPriceWindow
	evmConfig EVMConfigReader
	codec     CodecPropagator
	resInit   ResourceInitializer
	stuckPoll StuckTxPoller
	altCloser AltCloser
	evictor   StaleEvictor

	altFreezingDepth uint64
	stopCh           chan struct{}

	lastMu          sync.Mutex
	lastStabilized  *big.Int
}

func NewHousekeeper(oracle GasPriceOracle, floor GasPriceFloor, gasPriceWindowSpan time.Duration, evmConfig EVMConfigReader, codec CodecPropagator, resInit ResourceInitializer, stuckPoll StuckTxPoller, altCloser AltCloser, evictor StaleEvictor, altFreezingDepth uint64) *Housekeeper {
	return &Housekeeper{
		oracle:    oracle,
		floor:     floor,
		window:    newGasPriceWindow(gasPriceWindowSpan),
		evmConfig: evmConfig,
		codec:     codec,
		resInit:   resInit,
		stuckPoll: stuckPoll,
		altCloser: altCloser,
		evictor:   evictor,
		altFreezingDepth: altFreezingDepth,
		stopCh:    make(chan struct{}),
	}
}

func (h *Housekeeper) Stop() { close(h.stopCh) }

// Run ticks every interval until Stop is called, running each task in turn
// cooperatively on the one goroutine.
func (h *Housekeeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.tick(ctx)
		}
	}
}

func (h *Housekeeper) tick(ctx context.Context) {
	h.refreshGasPrice(ctx)
	h.refreshEVMConfig(ctx)
	h.initOneResource(ctx)
	h.pollStuckTxs(ctx)
	h.runAltCycle(ctx)
	if h.evictor != nil {
		if n := h.evictor.EvictStale(time.Now()); n > 0 {
			logger.Info("evicted stale sender pools", "count", n)
		}
	}
}

func (h *Housekeeper) refreshGasPrice(ctx context.Context) {
	if h.oracle == nil {
		return
	}
	suggested, err := h.oracle.SuggestedGasPrice(ctx)
	if err != nil {
		logger.Warn("gas price refresh failed", "err", err)
		return
	}
	stabilized := h.window.Add(suggested, time.Now())
	if h.floor != nil {
		h.floor.SetMinExecutableGasPrice(stabilized)
	}
	h.lastMu.Lock()
	h.lastStabilized = stabilized
	h.lastMu.Unlock()
}

// MinExecutableGasPrice reports the most recently stabilized gas-price
// floor, satisfying rpcapi.GasPriceOracle so eth_gasPrice can read it
// without rpcapi importing the executor package directly.
func (h *Housekeeper) MinExecutableGasPrice() uint64 {
	h.lastMu.Lock()
	defer h.lastMu.Unlock()
	if h.lastStabilized == nil {
		return 0
	}
	return h.lastStabilized.Uint64()
}

func (h *Housekeeper) refreshEVMConfig(ctx context.Context) {
	if h.evmConfig == nil || h.codec == nil {
		return
	}
	chainIDs, stepMin, cuLimit, err := h.evmConfig.ReadConfig(ctx)
	if err != nil {
		logger.Warn("evm config refresh failed", "err", err)
		return
	}
	h.codec.SetConfig(chainIDs, stepMin, cuLimit)
}

func (h *Housekeeper) initOneResource(ctx context.Context) {
	if h.resInit == nil {
		return
	}
	if err := h.resInit.InitializeOne(ctx); err != nil {
		logger.Warn("resource init failed", "err", err)
	}
}

func (h *Housekeeper) pollStuckTxs(ctx context.Context) {
	if h.stuckPoll == nil {
		return
	}
	if err := h.stuckPoll.PollExternal(ctx); err != nil {
		logger.Warn("stuck tx poll failed", "err", err)
	}
}

func (h *Housekeeper) runAltCycle(ctx context.Context) {
	if h.altCloser == nil {
		return
	}
	slot, err := h.altCloser.CurrentSlot(ctx)
	if err != nil {
		logger.Warn("read current slot failed", "err", err)
		return
	}
	for _, alt := range h.altCloser.PendingALTs() {
		switch alt.State {
		case txcodec.AltActive:
			if err := h.altCloser.Deactivate(ctx, alt); err != nil {
				logger.Warn("alt deactivate failed", "alt", alt.Address.String(), "err", err)
			}
		case txcodec.AltDeactivating:
			if alt.ReadyToClose(slot, h.altFreezingDepth) {
				if err := h.altCloser.Close(ctx, alt); err != nil {
					logger.Warn("alt close failed", "alt", alt.Address.String(), "err", err)
				}
			}
		}
	}
}
