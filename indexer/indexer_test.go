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
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pubkey(b byte) common.Pubkey {
	var p common.Pubkey
	p[0] = b
	return p
}

func TestApplyInstructionHolderWriteAndAssemble(t *testing.T) {
	block := NewBlock(100, common.Hash{}, 99)
	holder := pubkey(1)

	chunk0 := append([]byte{tagHolderWrite, 0, 0, 0, 0, 0, 0, 0, 0}, []byte("hello, ")...)
	chunk1 := append([]byte{tagHolderWrite, 7, 0, 0, 0, 0, 0, 0, 0}, []byte("world!!!")...)

	ApplyInstruction(block, RawInstruction{Accounts: []common.Pubkey{holder}, Data: chunk0}, nil)
	ApplyInstruction(block, RawInstruction{Accounts: []common.Pubkey{holder}, Data: chunk1}, nil)

	h, ok := block.Holders[holder]
	require.True(t, ok)
	assert.Equal(t, HolderOnly, h.Status)

	assembled, ok := h.Assembled(15)
	require.True(t, ok)
	assert.Equal(t, "hello, world!!!", string(assembled))
}

func TestApplyInstructionTxStepMarksDone(t *testing.T) {
	block := NewBlock(100, common.Hash{}, 99)
	sig := common.BytesToHash([]byte("some-neon-tx-signature-32-bytes!"))

	data := append([]byte{tagTxStepFromData}, sig[:]...)
	ApplyInstruction(block, RawInstruction{Data: data}, nil)
	require.Len(t, block.Txs, 1)
	assert.False(t, block.Txs[0].Done)

	ret := &NeonTxReturn{NeonTxSig: sig, Status: 1, GasUsed: 21000, Present: true}
	ApplyInstruction(block, RawInstruction{Data: data}, ret)
	require.Len(t, block.Txs, 1, "same sig should not duplicate the tx")
	assert.True(t, block.Txs[0].Done)
	assert.EqualValues(t, 1, block.Txs[0].Status)
	assert.EqualValues(t, 21000, block.Txs[0].GasUsed)
}

func TestApplyInstructionCancelResetsHolder(t *testing.T) {
	block := NewBlock(100, common.Hash{}, 99)
	holder := pubkey(2)
	block.Holders[holder] = &NeonIndexedHolder{Pubkey: holder, Status: HolderActive}

	sig := common.BytesToHash([]byte("cancelled-neon-tx-sig-32-bytes!!"))
	block.Txs = append(block.Txs, &NeonIndexedTx{NeonTxSig: sig})

	data := append([]byte{tagCancelWithHash}, sig[:]...)
	ApplyInstruction(block, RawInstruction{Accounts: []common.Pubkey{holder}, Data: data}, nil)

	assert.True(t, block.Txs[0].Done)
	assert.Equal(t, HolderEmpty, block.Holders[holder].Status)
}

func TestApplyALTInstructionTracksFreezeAndClose(t *testing.T) {
	block := NewBlock(1, common.Hash{}, 0)
	alt := pubkey(3)

	ApplyALTInstruction(block, RawInstruction{Accounts: []common.Pubkey{alt}, Data: []byte{tagAltFreeze}})
	require.Contains(t, block.ALTs, alt)
	assert.True(t, block.ALTs[alt].Frozen)
	assert.Len(t, block.ALTs[alt].ReferencingSigs, 1)

	ApplyALTInstruction(block, RawInstruction{Accounts: []common.Pubkey{alt}, Data: []byte{tagAltClose}})
	assert.True(t, block.ALTs[alt].Closed)
	assert.Len(t, block.ALTs[alt].ReferencingSigs, 2)
}

func TestMergeRangesJoinsCloseRanges(t *testing.T) {
	ranges := []SlotRange{
		{From: 100, To: 199},
		{From: 240, To: 300}, // gap of 40, within mergeDistance 50
		{From: 1000, To: 1100}, // far away, stays separate
	}
	merged := MergeRanges(ranges, 50)
	require.Len(t, merged, 2)
	assert.Equal(t, SlotRange{From: 100, To: 300}, merged[0])
	assert.Equal(t, SlotRange{From: 1000, To: 1100}, merged[1])
}

func TestPlanReindexRangesFillsGapsBoundedByMaxCount(t *testing.T) {
	existing := []SlotRange{{From: 0, To: 99}}
	planned := PlanReindexRanges(existing, 0, 1000, 200, 3)

	require.NotEmpty(t, planned)
	for _, r := range planned {
		assert.LessOrEqual(t, r.From, r.To)
	}
	// the existing range plus new ranges must merge into no more than a
	// handful of contiguous spans, not one per loop iteration.
	assert.LessOrEqual(t, len(planned), 3)
}

func TestPlanReindexRangesNoGapReturnsExisting(t *testing.T) {
	existing := []SlotRange{{From: 0, To: 999}}
	planned := PlanReindexRanges(existing, 0, 500, 200, 10)
	assert.Equal(t, existing, planned)
}
