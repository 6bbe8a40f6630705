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
	"crypto/ed25519"
	"fmt"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// STx is a Settlement Tx: a carrier of at most maxSTxBytes bytes containing
// a sequence of instructions. Versioned is set when the tx
// references an ALT (NeedsALT returned true while planning it).
type STx struct {
	RecentBlockhash common.Hash
	Instructions    []Instruction
	Versioned       bool
	ALT             common.Pubkey
	Signatures      []common.Signature
	signers         []ed25519.PrivateKey
}

// NewSTx plans a carrier for instructions against blockhash, switching to a
// versioned tx referencing alt when the account list would exceed the
// per-tx cap.
func NewSTx(blockhash common.Hash, instructions []Instruction) *STx {
	accounts := uniqueAccounts(instructions)
	return &STx{
		RecentBlockhash: blockhash,
		Instructions:    instructions,
		Versioned:       NeedsALT(accounts),
	}
}

func uniqueAccounts(instructions []Instruction) []AccountMeta {
	seen := make(map[common.Pubkey]bool)
	var out []AccountMeta
	for _, ix := range instructions {
		for _, a := range ix.Accounts {
			if seen[a.Pubkey] {
				continue
			}
			seen[a.Pubkey] = true
			out = append(out, a)
		}
	}
	return out
}

// message serializes the tx body (everything except signatures) in the
// compact layout: account list, recent blockhash, per-instruction
// (program-index, account-indices, data).
func (t *STx) message() []byte {
	accounts := uniqueAccounts(t.Instructions)
	index := make(map[common.Pubkey]int, len(accounts))
	var buf []byte
	buf = append(buf, byte(len(accounts)))
	for i, a := range accounts {
		index[a.Pubkey] = i
		flags := byte(0)
		if a.IsSigner {
			flags |= 1
		}
		if a.IsWritable {
			flags |= 2
		}
		buf = append(buf, a.Pubkey[:]...)
		buf = append(buf, flags)
	}
	buf = append(buf, t.RecentBlockhash[:]...)
	buf = append(buf, byte(len(t.Instructions)))
	for _, ix := range t.Instructions {
		progIdx, ok := index[ix.ProgramID]
		if !ok {
			// Program ids are not normally in the writable/signer account
			// list; append a synthetic non-writable, non-signer entry.
			index[ix.ProgramID] = len(accounts)
			progIdx = index[ix.ProgramID]
			accounts = append(accounts, AccountMeta{Pubkey: ix.ProgramID})
		}
		buf = append(buf, byte(progIdx))
		buf = append(buf, byte(len(ix.Accounts)))
		for _, a := range ix.Accounts {
			buf = append(buf, byte(index[a.Pubkey]))
		}
		buf = putU32(buf, uint32(len(ix.Data)))
		buf = append(buf, ix.Data...)
	}
	if t.Versioned {
		buf = append(buf, 1)
		buf = append(buf, t.ALT[:]...)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

// Sign signs the tx message with every signer key in signerOrder, in order.
func (t *STx) Sign(signerOrder []ed25519.PrivateKey) {
	t.signers = signerOrder
	msg := t.message()
	t.Signatures = make([]common.Signature, len(signerOrder))
	for i, key := range signerOrder {
		sig := ed25519.Sign(key, msg)
		copy(t.Signatures[i][:], sig)
	}
}

// Serialize produces the wire bytes, enforcing the ≤1232 byte cap.
func (t *STx) Serialize() ([]byte, error) {
	msg := t.message()
	var buf []byte
	buf = append(buf, byte(len(t.Signatures)))
	for _, sig := range t.Signatures {
		buf = append(buf, sig[:]...)
	}
	buf = append(buf, msg...)
	if len(buf) > maxSTxBytes {
		return nil, fmt.Errorf("settlement tx too large: %d > %d bytes", len(buf), maxSTxBytes)
	}
	return buf, nil
}

// FeePayer returns the first signer account referenced by the tx's
// instructions, Solana's convention for the paying/signing account; the
// Tx List Sender uses this to look up the matching keypair before the
// initial Sign.
func (t *STx) FeePayer() common.Pubkey {
	for _, a := range uniqueAccounts(t.Instructions) {
		if a.IsSigner {
			return a.Pubkey
		}
	}
	return common.Pubkey{}
}

// HasBlockhash reports whether the tx currently carries blockhash, used by
// the Tx List Sender's bad-blockhash-set re-signing step.
func (t *STx) HasBlockhash(blockhash common.Hash) bool { return t.RecentBlockhash == blockhash }

// Resign replaces the recent blockhash and re-signs with the same signer
// set, used when step 1 of send() finds the current blockhash is bad.
func (t *STx) Resign(blockhash common.Hash) {
	t.RecentBlockhash = blockhash
	if len(t.signers) > 0 {
		t.Sign(t.signers)
	}
}
