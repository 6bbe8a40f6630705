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

// Package txcodec is the Tx Codec & Builder: it builds the
// instruction sequences for each EVM op-code variant, signs and serializes
// atomic and versioned settlement transactions, and manages address lookup
// tables (ALTs).
//
// The wire layout is little-endian encoding via encoding/binary; the
// Ethereum side of a holder_msg stays opaque rlp bytes.
package txcodec

import (
	"encoding/binary"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// AccountMeta describes one account reference within an instruction.
type AccountMeta struct {
	Pubkey     common.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single settlement-program instruction: a program id, an
// ordered account list, and opaque instruction data.
type Instruction struct {
	ProgramID common.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// maxAccountsPerTx is the per-tx writable-account cap.B
// ("~29 writable pubkeys") past which the builder must plan a versioned tx
// referencing an ALT.
const maxAccountsPerTx = 29

// maxSTxBytes is the ≤1232 byte cap on a serialized Settlement Tx.
const maxSTxBytes = 1232

// holderChunkSize is the maximum payload of one HolderWrite instruction
// chosen so a HolderWrite plus
// its instruction/account overhead still fits comfortably under maxSTxBytes.
const holderChunkSize = 900

func putU32(b []byte, v uint32) []byte { return binary.LittleEndian.AppendUint32(b, v) }
func putU64(b []byte, v uint64) []byte { return binary.LittleEndian.AppendUint64(b, v) }
