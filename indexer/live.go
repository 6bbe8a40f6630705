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

package indexer

import (
	"context"
	"errors"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("indexer")

// ErrSolHistoryNotFound mirrors the chain's history-gap error.H
// failure semantics.
var ErrSolHistoryNotFound = errors.New("SolHistoryNotFound")

// ChainReader is the subset of solclient.Client the live cursor needs.
type ChainReader interface {
	GetBlockSlot(ctx context.Context, commit common.CommitLevel) (uint64, error)
	GetFirstAvailableSlot(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, slot uint64, commit common.CommitLevel) (*BlockPayload, error)
}

// BlockPayload is the subset of solclient.BlockInfo the indexer reparses;
// mirrored here rather than imported to keep indexer's dependency graph
// one-directional, same rationale as opresource.AccountInfo.
type BlockPayload struct {
	Slot       uint64
	Blockhash  common.Hash
	ParentSlot uint64
	Instructions []RawInstruction
	Returns      map[common.Hash]NeonTxReturn
}

// BatchWriter is the Persistence contract's append path.
type BatchWriter interface {
	AppendBlockBatch(ctx context.Context, blocks []*NeonIndexedBlock, finalizedCursor uint64) error
}

// StuckHolderSink receives holders exposed via the stuck-tx snapshot after
// holder_timeout blocks without completion.
type StuckHolderSink interface {
	PutStuck(ctx context.Context, slot uint64, holders []*NeonIndexedHolder, txs []*NeonIndexedTx, alts []*ALTInfo) error
}

// LiveCursor implements live mode.
type LiveCursor struct {
	chain  ChainReader
	writer BatchWriter
	stuck  StuckHolderSink

	lastFinalizedSlot uint64
	lastConfirmedSlot uint64
	firstAvailableSlot uint64

	holderTimeoutSlots uint64
	batchBlockCount    int
	altProgram         common.Pubkey

	pendingBatch []*NeonIndexedBlock
	confirmedOverlay map[uint64]*NeonIndexedBlock
}

func NewLiveCursor(chain ChainReader, writer BatchWriter, stuck StuckHolderSink, holderTimeoutSlots uint64, batchBlockCount int, startSlot uint64, altProgram common.Pubkey) *LiveCursor {
	return &LiveCursor{
		chain: chain, writer: writer, stuck: stuck,
		lastFinalizedSlot:  startSlot,
		holderTimeoutSlots: holderTimeoutSlots,
		batchBlockCount:    batchBlockCount,
		altProgram:         altProgram,
		confirmedOverlay:   make(map[uint64]*NeonIndexedBlock),
	}
}

// Tick runs one iteration of the four live-mode steps.
func (c *LiveCursor) Tick(ctx context.Context) error {
	if err := c.pollFinalized(ctx); err != nil {
		return err
	}
	return c.pollConfirmed(ctx)
}

func (c *LiveCursor) pollFinalized(ctx context.Context) error {
	newFinalized, err := c.chain.GetBlockSlot(ctx, common.Finalized)
	if err != nil {
		return err
	}
	if newFinalized <= c.lastFinalizedSlot {
		return nil
	}

	for slot := c.lastFinalizedSlot + 1; slot <= newFinalized; slot++ {
		block, err := c.walkBlock(ctx, slot, common.Finalized)
		if err != nil {
			if errors.Is(err, ErrSolHistoryNotFound) {
				return c.handleHistoryGap(ctx)
			}
			return err
		}
		if block == nil {
			continue
		}
		block.Status = Completed
		c.detectStuckHolders(ctx, block)
		c.pendingBatch = append(c.pendingBatch, block)

		if len(c.pendingBatch) >= c.batchBlockCount {
			if err := c.flushBatch(ctx, slot); err != nil {
				return err
			}
		}
	}
	if len(c.pendingBatch) > 0 {
		if err := c.flushBatch(ctx, newFinalized); err != nil {
			return err
		}
	}
	metrics.IndexerLagSlots.Update(int64(newFinalized - c.lastFinalizedSlot))
	c.lastFinalizedSlot = newFinalized
	return nil
}

func (c *LiveCursor) flushBatch(ctx context.Context, upTo uint64) error {
	for i := range c.pendingBatch {
		c.pendingBatch[i].Status = Finalized
	}
	if err := c.writer.AppendBlockBatch(ctx, c.pendingBatch, upTo); err != nil {
		return err
	}
	c.pendingBatch = nil
	return nil
}

func (c *LiveCursor) pollConfirmed(ctx context.Context) error {
	newConfirmed, err := c.chain.GetBlockSlot(ctx, common.Confirmed)
	if err != nil {
		return err
	}
	if newConfirmed <= c.lastConfirmedSlot {
		return nil
	}
	for slot := c.lastConfirmedSlot + 1; slot <= newConfirmed; slot++ {
		block, err := c.walkBlock(ctx, slot, common.Confirmed)
		if err != nil {
			continue // confirmed-overlay errors are non-fatal; next tick retries
		}
		if block != nil {
			c.confirmedOverlay[slot] = block
		}
	}
	c.lastConfirmedSlot = newConfirmed
	// discard overlay entries now covered by the finalized cursor
	for slot := range c.confirmedOverlay {
		if slot <= c.lastFinalizedSlot {
			delete(c.confirmedOverlay, slot)
		}
	}
	return nil
}

func (c *LiveCursor) walkBlock(ctx context.Context, slot uint64, commit common.CommitLevel) (*NeonIndexedBlock, error) {
	payload, err := c.chain.GetBlock(ctx, slot, commit)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	block := NewBlock(payload.Slot, payload.Blockhash, payload.ParentSlot)
	for _, ix := range payload.Instructions {
		if ix.ProgramID == c.altProgram {
			ApplyALTInstruction(block, ix)
			continue
		}
		ret := payload.Returns[instructionTxSig(ix)]
		ApplyInstruction(block, ix, &ret)
	}
	return block, nil
}

// detectStuckHolders exposes holders that have outlived holder_timeout
// blocks without completion via the stuck-tx snapshot.
func (c *LiveCursor) detectStuckHolders(ctx context.Context, block *NeonIndexedBlock) {
	var stuckHolders []*NeonIndexedHolder
	var stuckTxs []*NeonIndexedTx
	for _, holder := range block.Holders {
		if holder.Status != HolderActive {
			continue
		}
		if block.Slot-holder.FirstSeenSlot < c.holderTimeoutSlots {
			continue
		}
		stuckHolders = append(stuckHolders, holder)
	}
	for _, tx := range block.Txs {
		if !tx.Done && block.Slot-tx.StartSlot >= c.holderTimeoutSlots {
			stuckTxs = append(stuckTxs, tx)
		}
	}
	if len(stuckHolders) == 0 && len(stuckTxs) == 0 {
		return
	}
	var alts []*ALTInfo
	for _, a := range block.ALTs {
		alts = append(alts, a)
	}
	if c.stuck != nil {
		if err := c.stuck.PutStuck(ctx, block.Slot, stuckHolders, stuckTxs, alts); err != nil {
			logger.Warn("put stuck snapshot failed", "slot", block.Slot, "err", err)
		}
	}
	metrics.IndexerStuckTxs.Update(int64(len(stuckTxs)))
}

// handleHistoryGap handles SolHistoryNotFound: recheck
// first-available-slot; if the finalized cursor is behind it, clear the
// pending batch and restart from the new floor.
func (c *LiveCursor) handleHistoryGap(ctx context.Context) error {
	newFloor, err := c.chain.GetFirstAvailableSlot(ctx)
	if err != nil {
		return err
	}
	c.firstAvailableSlot = newFloor
	if c.lastFinalizedSlot < newFloor {
		logger.Warn("finalized cursor behind first available slot, restarting", "cursor", c.lastFinalizedSlot, "floor", newFloor)
		c.lastFinalizedSlot = newFloor
		c.pendingBatch = nil
	}
	return nil
}
