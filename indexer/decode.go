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
	"encoding/binary"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// RawInstruction is one decoded settlement-program instruction as read off
// a block's transaction list, program-id-addressed and opaque otherwise.
type RawInstruction struct {
	ProgramID common.Pubkey
	Accounts  []common.Pubkey
	Data      []byte
	SenderSig common.Signature
}

// same tag layout as txcodec/builder.go; duplicated rather than imported
// because indexer decodes instructions built by any operator's builder
// instance, not its own, and the tag values are a wire-format constant, not
// a builder behavior to share code with.
const (
	tagHolderWrite              byte = 0x00
	tagTxExecFromData           byte = 0x01
	tagTxStepFromData           byte = 0x02
	tagTxStepFromAccount        byte = 0x03
	tagTxStepFromAccountNoChain byte = 0x04
	tagCancelWithHash           byte = 0x05
	tagCreateBalance            byte = 0x06
	tagHolderCreate             byte = 0x07
	tagHolderDelete             byte = 0x08
)

// ApplyInstruction dispatches ix onto the owning block's tx/holder state
// by op-code: each decoder builds or mutates a NeonIndexedTx or
// NeonIndexedHolder in place.
func ApplyInstruction(block *NeonIndexedBlock, ix RawInstruction, neonTxReturn *NeonTxReturn) {
	if len(ix.Data) == 0 {
		return
	}
	tag := ix.Data[0]
	switch tag {
	case tagHolderWrite:
		applyHolderWrite(block, ix)
	case tagTxExecFromData, tagTxStepFromData:
		applyTxStep(block, ix, nil, neonTxReturn)
	case tagTxStepFromAccount, tagTxStepFromAccountNoChain:
		holder := holderFromAccounts(ix.Accounts)
		applyTxStep(block, ix, holder, neonTxReturn)
	case tagCancelWithHash:
		applyCancel(block, ix)
	case tagHolderCreate:
		applyHolderCreate(block, ix)
	case tagHolderDelete:
		applyHolderDelete(block, ix)
	}
}

// NeonTxReturn is the decoded program-log entry signaling a completed ETx:
// the final-step instruction carries it, and the owning tx is marked Done
// with its status and gas.
type NeonTxReturn struct {
	NeonTxSig common.Hash
	Status    uint8
	GasUsed   uint64
	Present   bool
}

func holderFromAccounts(accounts []common.Pubkey) *common.Pubkey {
	if len(accounts) == 0 {
		return nil
	}
	return &accounts[0]
}

func applyHolderWrite(block *NeonIndexedBlock, ix RawInstruction) {
	if len(ix.Accounts) == 0 || len(ix.Data) < 9 {
		return
	}
	holderKey := ix.Accounts[0]
	holder, ok := block.Holders[holderKey]
	if !ok {
		holder = &NeonIndexedHolder{Pubkey: holderKey, Chunks: make(map[uint64][]byte), FirstSeenSlot: block.Slot}
		block.Holders[holderKey] = holder
	}
	offset := binary.LittleEndian.Uint64(ix.Data[1:9])
	chunk := append([]byte(nil), ix.Data[9:]...)
	holder.Chunks[offset] = chunk
	holder.Status = HolderOnly
}

func applyTxStep(block *NeonIndexedBlock, ix RawInstruction, holder *common.Pubkey, ret *NeonTxReturn) {
	sig := instructionTxSig(ix)
	tx := findOrCreateTx(block, sig, holder)
	if holder != nil {
		if h, ok := block.Holders[*holder]; ok && h.Status == HolderOnly {
			h.Status = HolderActive
			h.ActiveTxSig = sig
		}
	}
	if ret != nil && ret.Present {
		tx.Done = true
		tx.Status = ret.Status
		tx.GasUsed = ret.GasUsed
		if holder != nil {
			if h, ok := block.Holders[*holder]; ok {
				h.Status = HolderFinalizedStatus
			}
		}
	}
}

func applyCancel(block *NeonIndexedBlock, ix RawInstruction) {
	if len(ix.Data) < 33 {
		return
	}
	var sig common.Hash
	copy(sig[:], ix.Data[1:33])
	for _, tx := range block.Txs {
		if tx.NeonTxSig == sig {
			tx.Done = true
		}
	}
	if len(ix.Accounts) > 0 {
		if h, ok := block.Holders[ix.Accounts[0]]; ok {
			h.Status = HolderEmpty
		}
	}
}

func applyHolderCreate(block *NeonIndexedBlock, ix RawInstruction) {
	if len(ix.Accounts) == 0 {
		return
	}
	holderKey := ix.Accounts[0]
	block.Holders[holderKey] = &NeonIndexedHolder{Pubkey: holderKey, Chunks: make(map[uint64][]byte), Status: HolderEmpty, FirstSeenSlot: block.Slot}
}

func applyHolderDelete(block *NeonIndexedBlock, ix RawInstruction) {
	if len(ix.Accounts) == 0 {
		return
	}
	delete(block.Holders, ix.Accounts[0])
}

// instructionTxSig derives the neon tx signature a step instruction
// belongs to: the last 32 bytes of the ix data when the data is at least
// 33 bytes long, otherwise the zero hash. The holder account is not
// consulted, so steps that carry no inline bytes (holder-reading steps)
// all map to the zero hash.
func instructionTxSig(ix RawInstruction) common.Hash {
	if len(ix.Data) >= 33 {
		return common.BytesToHash(ix.Data[len(ix.Data)-32:])
	}
	return common.Hash{}
}

func findOrCreateTx(block *NeonIndexedBlock, sig common.Hash, holder *common.Pubkey) *NeonIndexedTx {
	for _, tx := range block.Txs {
		if tx.NeonTxSig == sig {
			return tx
		}
	}
	tx := &NeonIndexedTx{NeonTxSig: sig, HolderPubkey: holder, StartSlot: block.Slot}
	block.Txs = append(block.Txs, tx)
	return tx
}
