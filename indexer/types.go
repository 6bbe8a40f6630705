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

// Package indexer is the Indexer: a cursor over settlement
// blocks that decodes EVM op-code instructions, reconstructs Ethereum
// blocks/txs/logs/receipts, and persists them, in two modes (live and
// reindex), plus ALT close-out and stuck-holder detection.
package indexer

import (
	"github.com/neonlabsorg/neon-proxy-go/common"
)

// BlockStatus is a NeonIndexedBlock's lifecycle stage.
type BlockStatus int

const (
	Building BlockStatus = iota
	Completed
	Finalized
)

// HolderStatus mirrors opresource.HolderStatus without importing
// opresource, keeping indexer's dependency graph one-directional: the
// Indexer only ever produces holder-status facts, it never acquires or
// releases a resource.
type HolderStatus int

const (
	HolderEmpty HolderStatus = iota
	HolderOnly
	HolderActive
	HolderFinalizedStatus
)

// NeonIndexedHolder is a partial, accumulating holder reconstruction:
// chunks written via HolderWrite before the step instructions that consume
// them arrive.
type NeonIndexedHolder struct {
	Pubkey     common.Pubkey
	Chunks     map[uint64][]byte // offset -> chunk
	Status     HolderStatus
	ActiveTxSig common.Hash
	ChainID    uint64
	FirstSeenSlot uint64
}

// Assembled concatenates chunks in offset order into the holder's full
// rlp payload, once every offset up to the declared size has been seen.
func (h *NeonIndexedHolder) Assembled(totalSize uint64) ([]byte, bool) {
	out := make([]byte, 0, totalSize)
	var offset uint64
	for offset < totalSize {
		chunk, ok := h.Chunks[offset]
		if !ok {
			return nil, false
		}
		out = append(out, chunk...)
		offset += uint64(len(chunk))
	}
	return out, true
}

// NeonIndexedTx is an ETx reconstructed from instruction receipts within one
// or more settlement blocks.
type NeonIndexedTx struct {
	NeonTxSig common.Hash
	Sender    common.Address
	Nonce     uint64
	Done      bool
	Status    uint8
	GasUsed   uint64
	Logs      [][]byte
	HolderPubkey *common.Pubkey
	ALTAddresses []common.Pubkey
	StartSlot   uint64
}

// NeonIndexedBlock mirrors one settlement block.
type NeonIndexedBlock struct {
	Slot       uint64
	Blockhash  common.Hash
	ParentSlot uint64
	Txs        []*NeonIndexedTx
	Holders    map[common.Pubkey]*NeonIndexedHolder
	ALTs       map[common.Pubkey]*ALTInfo
	Status     BlockStatus
}

func NewBlock(slot uint64, blockhash common.Hash, parentSlot uint64) *NeonIndexedBlock {
	return &NeonIndexedBlock{
		Slot: slot, Blockhash: blockhash, ParentSlot: parentSlot,
		Holders: make(map[common.Pubkey]*NeonIndexedHolder),
		ALTs:    make(map[common.Pubkey]*ALTInfo),
		Status:  Building,
	}
}

// ALTInfo tracks one address lookup table's referencing txs for close-out.
type ALTInfo struct {
	Address       common.Pubkey
	ReferencingSigs []common.Signature
	Frozen        bool
	Closed        bool
	ForeignOwner  bool
}
