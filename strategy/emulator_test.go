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
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
	"github.com/stretchr/testify/require"
)

type fakeSimClient struct {
	unitsConsumed uint64
	accounts      []common.Pubkey
}

func (f *fakeSimClient) SimulateTransaction(ctx context.Context, rawTx []byte, accountsToReturn []common.Pubkey) (*SimulationResult, error) {
	return &SimulationResult{UnitsConsumed: f.unitsConsumed, Accounts: f.accounts}, nil
}

func (f *fakeSimClient) GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error) {
	return common.Hash{1, 2, 3}, 100, nil
}

func TestDefaultEmulatorDerivesStepCountFromUnits(t *testing.T) {
	acc := common.Pubkey{9}
	client := &fakeSimClient{unitsConsumed: 2500, accounts: []common.Pubkey{acc}}
	builder := func() *txcodec.Builder {
		return txcodec.NewBuilder(common.Pubkey{1}, common.Pubkey{2}, common.Pubkey{3}, common.Pubkey{4})
	}
	emu := NewDefaultEmulator(client, builder, 1000)

	tx := &mempool.ETx{Hash: common.Hash{5}, RLP: []byte{0xde, 0xad}}
	result, err := emu.Emulate(context.Background(), tx)
	require.NoError(t, err)
	require.EqualValues(t, 3, result.StepCount) // ceil(2500/1000)
	require.Len(t, result.DiscoveredAccounts, 1)
	require.Equal(t, acc, result.DiscoveredAccounts[0].Pubkey)
}
