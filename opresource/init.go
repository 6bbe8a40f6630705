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

package opresource

import (
	"context"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
)

// ChainReader is the subset of solclient.Client the resource initializer
// needs: balance and holder-account reads.
type ChainReader interface {
	GetAccount(ctx context.Context, pubkey common.Pubkey, commit common.CommitLevel) (*AccountInfo, error)
}

// AccountInfo mirrors solclient.AccountInfo's shape without importing
// solclient, keeping opresource's dependency graph one-directional
// (solclient is lower-level than opresource and must not import it back).
type AccountInfo struct {
	Lamports uint64
	Data     []byte
}

// HolderDecoder decodes a holder account's on-chain payload.
type HolderDecoder interface {
	Decode(data []byte) (status HolderStatus, activeTxSig common.Hash, chainID uint64, err error)
}

const minBalanceLamports = 100_000_000 // signer balance threshold checked by Initialize

// Initialize runs the per-resource init sequence: check balance, check that
// the holder exists with the expected size, read holder status. A missing
// or mis-sized holder is reported as a *xerr.BadResourceError; creating it
// is left to the caller.
// If the holder is Active under a foreign signature it returns a
// *xerr.StuckTxError instead of failing outright — the manager still
// proceeds to enable the resource for new work once the caller has
// registered the stuck tx.
func Initialize(ctx context.Context, chain ChainReader, decoder HolderDecoder, res *OpRes, expectedHolderSize uint64) error {
	acct, err := chain.GetAccount(ctx, res.Signer, common.Confirmed)
	if err != nil {
		return xerr.Wrapf(err, "read signer balance")
	}
	if acct == nil || acct.Lamports < minBalanceLamports {
		return &xerr.BadResourceError{ResourceID: res.ResourceID, Reason: "balance below threshold"}
	}

	holderAcct, err := chain.GetAccount(ctx, res.Holder, common.Confirmed)
	if err != nil {
		return xerr.Wrapf(err, "read holder account")
	}
	if holderAcct == nil || uint64(len(holderAcct.Data)) != expectedHolderSize {
		// Caller (Executor housekeeping) is responsible for actually
		// submitting HolderCreate; this only reports the precondition.
		return &xerr.BadResourceError{ResourceID: res.ResourceID, Reason: "holder missing or sized wrong"}
	}

	status, activeTxSig, chainID, err := decoder.Decode(holderAcct.Data)
	if err != nil {
		return xerr.Wrapf(err, "decode holder status")
	}
	if status == HolderActive {
		return &xerr.StuckTxError{NeonTxSig: activeTxSig.Hex(), Holder: res.Holder.String(), ChainID: chainID}
	}
	return nil
}
