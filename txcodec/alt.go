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
)

// AltState is the address lookup table lifecycle state:
//
//   Absent → Create → Extend* → (wait one slot) → Use in versioned tx
//        → Deactivate → wait freeze-depth → Close
type AltState int

const (
	AltAbsent AltState = iota
	AltCreated
	AltExtended
	AltActive
	AltDeactivating
	AltClosed
)

func (s AltState) String() string {
	switch s {
	case AltAbsent:
		return "Absent"
	case AltCreated:
		return "Created"
	case AltExtended:
		return "Extended"
	case AltActive:
		return "Active"
	case AltDeactivating:
		return "Deactivating"
	case AltClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// AltTable tracks one ALT's lifecycle across the account-discovery and
// cleanup passes of the Strategy Engine and Executor.
type AltTable struct {
	Address         common.Pubkey
	State           AltState
	Authority       common.Pubkey
	DeactivatedSlot uint64
	Frozen          bool
}

// ReadyToClose reports whether the minimum Deactivate→Close gap
// (alt_freeing_depth settlement slots) has elapsed. A frozen ALT (authority
// removed) is treated as Closed for waiting purposes.
func (t *AltTable) ReadyToClose(currentSlot, altFreeingDepth uint64) bool {
	if t.Frozen {
		return true
	}
	if t.State != AltDeactivating {
		return false
	}
	return currentSlot-t.DeactivatedSlot >= altFreeingDepth
}

const (
	altTagCreate     byte = 0
	altTagExtend     byte = 2
	altTagDeactivate byte = 3
	altTagClose      byte = 4
	altTagFreeze     byte = 5
)

// AltCreate builds the ALT-program Create instruction.
func (b *Builder) AltCreate(recentSlot uint64, bumpSeed byte, altAddress common.Pubkey) Instruction {
	data := []byte{altTagCreate}
	data = putU64(data, recentSlot)
	data = append(data, bumpSeed)
	return Instruction{
		ProgramID: b.altProgram,
		Accounts: []AccountMeta{
			{Pubkey: altAddress, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

// AltExtend appends up to 27 new addresses to an existing ALT in one
// instruction (the program's own per-instruction cap, distinct from the
// per-tx writable-account cap).
func (b *Builder) AltExtend(altAddress common.Pubkey, newAddrs []common.Pubkey) Instruction {
	data := []byte{altTagExtend}
	data = putU64(data, uint64(len(newAddrs)))
	for _, a := range newAddrs {
		data = append(data, a[:]...)
	}
	return Instruction{
		ProgramID: b.altProgram,
		Accounts: []AccountMeta{
			{Pubkey: altAddress, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}
}

func (b *Builder) AltDeactivate(altAddress common.Pubkey) Instruction {
	return Instruction{
		ProgramID: b.altProgram,
		Accounts: []AccountMeta{
			{Pubkey: altAddress, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
		},
		Data: []byte{altTagDeactivate},
	}
}

func (b *Builder) AltClose(altAddress common.Pubkey) Instruction {
	return Instruction{
		ProgramID: b.altProgram,
		Accounts: []AccountMeta{
			{Pubkey: altAddress, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
			{Pubkey: b.Signer, IsSigner: true, IsWritable: true},
		},
		Data: []byte{altTagClose},
	}
}

func (b *Builder) AltFreeze(altAddress common.Pubkey) Instruction {
	return Instruction{
		ProgramID: b.altProgram,
		Accounts: []AccountMeta{
			{Pubkey: altAddress, IsWritable: true},
			{Pubkey: b.Signer, IsSigner: true},
		},
		Data: []byte{altTagFreeze},
	}
}
