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

package txcodec

import (
	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("txcodec")

// evm program instruction tags, one byte each, matching the core program's
// program's instruction discriminant layout.
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

// Builder owns one operator's instance: its signer and (when the strategy
// is iterative) its holder account. It is stateless beyond those two keys —
// every instruction-building method is a pure function of its arguments,
// mirroring how node/sc's bridge code keeps the signer separate from the
// per-tx logic it signs for.
type Builder struct {
	Signer common.Pubkey
	Holder common.Pubkey
	evmProgram common.Pubkey
	altProgram common.Pubkey
}

func NewBuilder(signer, holder, evmProgram, altProgram common.Pubkey) *Builder {
	return &Builder{Signer: signer, Holder: holder, evmProgram: evmProgram, altProgram: altProgram}
}

// HolderMsg returns the bytes to be written to the holder for a given ETx's
// rlp bytes: the rlp itself for a normal iterative ETx, or empty when
// resuming a stuck tx the holder already carries.
func HolderMsg(rlp []byte, resuming bool) []byte {
	if resuming {
		return nil
	}
	return rlp
}

// HolderWriteChunks splits msg into holderChunkSize-byte HolderWrite
// instructions starting at offset 0.
func (b *Builder) HolderWriteChunks(msg []byte) []Instruction {
	var out []Instruction
	for offset := 0; offset < len(msg); offset += holderChunkSize {
		end := offset + holderChunkSize
		if end > len(msg) {
			end = len(msg)
		}
		out = append(out, b.HolderWrite(uint64(offset), msg[offset:end]))
	}
	return out
}

func (b *Builder) HolderWrite(offset uint64, chunk []byte) Instruction {
	data := []byte{tagHolderWrite}
	data = putU64(data, offset)
	data = append(data, chunk...)
	return Instruction{
		ProgramID: b.evmProgram,
		Accounts: []AccountMeta{
			{Pubkey: b.Holder, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
		},
		Data: data,
	}
}

// TxExecFromData builds the single-shot EVM execution instruction.
func (b *Builder) TxExecFromData(rlp []byte, accounts []AccountMeta) Instruction {
	data := append([]byte{tagTxExecFromData}, rlp...)
	return Instruction{ProgramID: b.evmProgram, Accounts: withSigner(b.Signer, accounts), Data: data}
}

// TxStepFromData builds one iteration step with the ETx carried in ix-data.
func (b *Builder) TxStepFromData(stepCnt uint32, uniqIdx uint32, rlp []byte, accounts []AccountMeta) Instruction {
	data := []byte{tagTxStepFromData}
	data = putU32(data, stepCnt)
	data = putU32(data, uniqIdx)
	data = append(data, rlp...)
	return Instruction{ProgramID: b.evmProgram, Accounts: withSigner(b.Signer, accounts), Data: data}
}

// TxStepFromAccount builds one iteration step reading the ETx from the holder.
func (b *Builder) TxStepFromAccount(stepCnt uint32, uniqIdx uint32, accounts []AccountMeta) Instruction {
	data := []byte{tagTxStepFromAccount}
	data = putU32(data, stepCnt)
	data = putU32(data, uniqIdx)
	full := append([]AccountMeta{{Pubkey: b.Holder, IsWritable: true}}, accounts...)
	return Instruction{ProgramID: b.evmProgram, Accounts: withSigner(b.Signer, full), Data: data}
}

// TxStepFromAccountNoChainId is TxStepFromAccount for legacy un-chainid'd txs.
func (b *Builder) TxStepFromAccountNoChainId(stepCnt uint32, uniqIdx uint32, accounts []AccountMeta) Instruction {
	ix := b.TxStepFromAccount(stepCnt, uniqIdx, accounts)
	ix.Data[0] = tagTxStepFromAccountNoChain
	return ix
}

// CancelWithHash aborts the in-flight iterative ETx and unlocks the holder.
func (b *Builder) CancelWithHash(neonTxSig common.Hash) Instruction {
	data := append([]byte{tagCancelWithHash}, neonTxSig[:]...)
	return Instruction{
		ProgramID: b.evmProgram,
		Accounts: []AccountMeta{
			{Pubkey: b.Holder, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
		},
		Data: data,
	}
}

func (b *Builder) CreateBalance(ethAddress common.Address, balanceAccount common.Pubkey) Instruction {
	data := append([]byte{tagCreateBalance}, ethAddress[:]...)
	return Instruction{
		ProgramID: b.evmProgram,
		Accounts: []AccountMeta{
			{Pubkey: balanceAccount, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

func (b *Builder) HolderCreate(seed string, size uint64) Instruction {
	data := []byte{tagHolderCreate}
	data = putU64(data, size)
	data = append(data, []byte(seed)...)
	return Instruction{
		ProgramID: b.evmProgram,
		Accounts: []AccountMeta{
			{Pubkey: b.Holder, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

func (b *Builder) HolderDelete() Instruction {
	return Instruction{
		ProgramID: b.evmProgram,
		Accounts: []AccountMeta{
			{Pubkey: b.Holder, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: []byte{tagHolderDelete},
	}
}

func withSigner(signer common.Pubkey, accounts []AccountMeta) []AccountMeta {
	return append([]AccountMeta{{Pubkey: signer, IsSigner: true, IsWritable: true}}, accounts...)
}

// NeedsALT reports whether the writable-account count of accounts exceeds
// the per-tx cap and a versioned tx referencing an ALT must be planned
// instead.
func NeedsALT(accounts []AccountMeta) bool {
	writable := 0
	for _, a := range accounts {
		if a.IsWritable {
			writable++
		}
	}
	return writable > maxAccountsPerTx
}
