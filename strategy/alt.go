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

package strategy

import (
	"context"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

// AltAddresser derives the lookup-table address an ALT-flavored strategy
// attempt should create for its oversized account list. The address is a
// function of (signer, recent slot) on the real chain; the concrete
// derivation lives at wiring time so the engine stays free of on-chain
// address math.
type AltAddresser interface {
	NextAlt(ctx context.Context, signer common.Pubkey) (addr common.Pubkey, bumpSeed byte, recentSlot uint64, err error)
}

// AltRegistry receives the tables this engine created so the Housekeeper's
// deactivate/close cycle can retire them once the run is over
// (Deactivate, wait freeze-depth, Close).
type AltRegistry interface {
	Track(table *txcodec.AltTable)
}

// slotDuration approximates one settlement slot; a freshly extended ALT may
// only be referenced by a versioned tx from the next slot on.
const slotDuration = 400 * time.Millisecond

// altExtendBatch is the ALT program's per-Extend address cap, matching
// txcodec's AltExtend documentation.
const altExtendBatch = 27

// prepareALT runs the Create/Extend*/wait-one-slot prep stage for an
// ALT-flavored strategy, returning the table address the
// iteration STxs must reference.
func (e *Engine) prepareALT(ctx context.Context, builder *txcodec.Builder, accounts []txcodec.AccountMeta) (common.Pubkey, error) {
	addr, bump, recentSlot, err := e.altAddresser.NextAlt(ctx, builder.Signer)
	if err != nil {
		return common.Pubkey{}, err
	}

	ixs := []txcodec.Instruction{builder.AltCreate(recentSlot, bump, addr)}
	addrs := make([]common.Pubkey, 0, len(accounts))
	for _, a := range accounts {
		addrs = append(addrs, a.Pubkey)
	}
	for start := 0; start < len(addrs); start += altExtendBatch {
		end := start + altExtendBatch
		if end > len(addrs) {
			end = len(addrs)
		}
		ixs = append(ixs, builder.AltExtend(addr, addrs[start:end]))
	}

	stx := txcodec.NewSTx(common.Hash{}, ixs)
	if _, err := e.sender.Send(ctx, []*txcodec.STx{stx}); err != nil {
		return common.Pubkey{}, err
	}

	select {
	case <-ctx.Done():
		return common.Pubkey{}, ctx.Err()
	case <-time.After(slotDuration):
	}
	return addr, nil
}

// retireALT hands the table to the registry so the Housekeeper can run
// Deactivate and, after alt_freeing_depth slots, Close.
func (e *Engine) retireALT(addr common.Pubkey, authority common.Pubkey) {
	if e.altRegistry == nil {
		return
	}
	e.altRegistry.Track(&txcodec.AltTable{
		Address:   addr,
		State:     txcodec.AltActive,
		Authority: authority,
	})
}
