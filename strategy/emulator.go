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
	"fmt"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

// SimulationClient is the narrow subset of solclient.Client the default
// Emulator needs, kept local so strategy does not import solclient
// directly (same one-directional dependency pattern as sender/opresource).
type SimulationClient interface {
	SimulateTransaction(ctx context.Context, rawTx []byte, accountsToReturn []common.Pubkey) (*SimulationResult, error)
	GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error)
}

// SimulationResult mirrors solclient.SimulationResult's shape without
// importing it.
type SimulationResult struct {
	Err           interface{}
	UnitsConsumed uint64
	Logs          []string
	Accounts      []common.Pubkey
}

// DefaultEmulator backs Emulator with a real settlement-chain simulation
// call; tests substitute their own Emulator.
type DefaultEmulator struct {
	client        SimulationClient
	builder       func() *txcodec.Builder
	cuPerEmulatedStep uint64
}

func NewDefaultEmulator(client SimulationClient, builder func() *txcodec.Builder, cuPerEmulatedStep uint64) *DefaultEmulator {
	return &DefaultEmulator{client: client, builder: builder, cuPerEmulatedStep: cuPerEmulatedStep}
}

// Emulate builds a single TxExecFromData instruction for tx's raw rlp,
// dry-runs it via simulateTransaction, and translates compute-unit
// consumption into an EmulationResult. It requests no addresses from the
// simulation, so DiscoveredAccounts holds only what the SimulationClient
// reports in Accounts; the solclient adapter then reports none.
func (e *DefaultEmulator) Emulate(ctx context.Context, tx *mempool.ETx) (*EmulationResult, error) {
	b := e.builder()
	ix := b.TxExecFromData(tx.RLP, nil)

	blockhash, _, err := e.client.GetRecentBlockhash(ctx, common.Confirmed)
	if err != nil {
		return nil, fmt.Errorf("emulate %s: recent blockhash: %w", tx.Hash.Hex(), err)
	}
	stx := txcodec.NewSTx(blockhash, []txcodec.Instruction{ix})
	raw, err := stx.Serialize()
	if err != nil {
		return nil, fmt.Errorf("emulate %s: serialize: %w", tx.Hash.Hex(), err)
	}

	result, err := e.client.SimulateTransaction(ctx, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("emulate %s: simulate: %w", tx.Hash.Hex(), err)
	}

	stepCount := uint64(1)
	if e.cuPerEmulatedStep > 0 {
		stepCount = (result.UnitsConsumed + e.cuPerEmulatedStep - 1) / e.cuPerEmulatedStep
		if stepCount == 0 {
			stepCount = 1
		}
	}

	discovered := make([]txcodec.AccountMeta, 0, len(result.Accounts))
	for _, acc := range result.Accounts {
		discovered = append(discovered, txcodec.AccountMeta{Pubkey: acc, IsWritable: true})
	}

	return &EmulationResult{
		StepCount:          stepCount,
		DiscoveredAccounts: discovered,
		ExceedsLegacyCap:   txcodec.NeedsALT(discovered),
	}, nil
}
