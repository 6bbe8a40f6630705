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
	"encoding/binary"
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/stretchr/testify/require"
)

func testBuilder() *Builder {
	return NewBuilder(common.Pubkey{1}, common.Pubkey{2}, common.Pubkey{3}, common.Pubkey{4})
}

func TestHolderWriteChunks(t *testing.T) {
	b := testBuilder()
	msg := make([]byte, 2*holderChunkSize+200)
	for i := range msg {
		msg[i] = byte(i)
	}

	ixs := b.HolderWriteChunks(msg)
	require.Len(t, ixs, 3)

	var reassembled []byte
	for i, ix := range ixs {
		require.Equal(t, tagHolderWrite, ix.Data[0])
		offset := binary.LittleEndian.Uint64(ix.Data[1:9])
		require.EqualValues(t, i*holderChunkSize, offset)
		chunk := ix.Data[9:]
		require.LessOrEqual(t, len(chunk), holderChunkSize)
		reassembled = append(reassembled, chunk...)
	}
	require.Equal(t, msg, reassembled)
}

func TestHolderMsgEmptyWhenResuming(t *testing.T) {
	rlp := []byte{0xde, 0xad, 0xbe, 0xef}
	require.Equal(t, rlp, HolderMsg(rlp, false))
	require.Nil(t, HolderMsg(rlp, true))
}

func TestNeedsALT(t *testing.T) {
	var accounts []AccountMeta
	for i := 0; i < maxAccountsPerTx; i++ {
		accounts = append(accounts, AccountMeta{Pubkey: common.Pubkey{byte(i + 1)}, IsWritable: true})
	}
	require.False(t, NeedsALT(accounts))

	accounts = append(accounts, AccountMeta{Pubkey: common.Pubkey{0xff}, IsWritable: true})
	require.True(t, NeedsALT(accounts))

	// read-only accounts do not count against the writable cap
	for i := 0; i < 10; i++ {
		accounts[i].IsWritable = false
	}
	require.False(t, NeedsALT(accounts))
}

func TestSTxSerializeEnforcesSizeCap(t *testing.T) {
	b := testBuilder()
	stx := NewSTx(common.Hash{9}, []Instruction{b.HolderWrite(0, make([]byte, holderChunkSize))})
	raw, err := stx.Serialize()
	require.NoError(t, err)
	require.LessOrEqual(t, len(raw), maxSTxBytes)

	oversized := NewSTx(common.Hash{9}, []Instruction{b.HolderWrite(0, make([]byte, maxSTxBytes))})
	_, err = oversized.Serialize()
	require.Error(t, err)
}

func TestSTxSignAndResign(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	b := testBuilder()
	stx := NewSTx(common.Hash{1}, []Instruction{b.HolderDelete()})
	stx.Sign([]ed25519.PrivateKey{priv})
	require.Len(t, stx.Signatures, 1)
	first := stx.Signatures[0]

	require.True(t, stx.HasBlockhash(common.Hash{1}))
	stx.Resign(common.Hash{2})
	require.True(t, stx.HasBlockhash(common.Hash{2}))
	require.NotEqual(t, first, stx.Signatures[0])
}

func TestFeePayerIsFirstSigner(t *testing.T) {
	b := testBuilder()
	stx := NewSTx(common.Hash{}, []Instruction{b.HolderWrite(0, []byte{1})})
	// HolderWrite lists the holder first and the signer second; the fee
	// payer is still the first account flagged as a signer.
	require.Equal(t, b.Signer, stx.FeePayer())
}

func TestAltTableReadyToClose(t *testing.T) {
	tests := []struct {
		name  string
		table AltTable
		slot  uint64
		depth uint64
		want  bool
	}{
		{"frozen is always closable", AltTable{Frozen: true}, 0, 100, true},
		{"active never closable", AltTable{State: AltActive}, 1000, 100, false},
		{"deactivating before depth", AltTable{State: AltDeactivating, DeactivatedSlot: 950}, 1000, 100, false},
		{"deactivating at depth", AltTable{State: AltDeactivating, DeactivatedSlot: 900}, 1000, 100, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.table.ReadyToClose(tc.slot, tc.depth))
		})
	}
}
