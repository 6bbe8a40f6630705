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
	"math/big"
	"testing"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/opresource"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
	"github.com/stretchr/testify/require"
)

func chainIDTx() *mempool.ETx {
	return &mempool.ETx{Hash: common.Hash{1}, ChainID: big.NewInt(245022934), RLP: []byte{0xde, 0xad}}
}

func TestSelectOrdering(t *testing.T) {
	tests := []struct {
		name string
		tx   *mempool.ETx
		em   EmulationResult
		want Name
	}{
		{
			"small tx fits single shot",
			chainIDTx(),
			EmulationResult{StepCount: 100},
			SingleShot,
		},
		{
			"oversized account set forces ALT single shot",
			chainIDTx(),
			EmulationResult{StepCount: 100, ExceedsLegacyCap: true},
			SingleShotALT,
		},
		{
			"many steps fall through to iterative",
			chainIDTx(),
			EmulationResult{StepCount: 5000},
			Iterative,
		},
		{
			"many steps plus oversized accounts",
			chainIDTx(),
			EmulationResult{StepCount: 5000, ExceedsLegacyCap: true},
			IterativeALT,
		},
		{
			"resize iterations rule out single shot",
			chainIDTx(),
			EmulationResult{StepCount: 100, ResizeIterCount: 2},
			Iterative,
		},
		{
			"no chain id only matches the NoChainId strategy",
			&mempool.ETx{Hash: common.Hash{2}, RLP: []byte{0x01}},
			EmulationResult{StepCount: 5000, ExceedsLegacyCap: true},
			NoChainIdALT,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Select(tc.tx, &tc.em)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestPlanStepCount(t *testing.T) {
	require.Equal(t, 3, PlanStepCount(&EmulationResult{StepCount: 1}))     // max(0,1)=1 + 0 + 2
	require.Equal(t, 6, PlanStepCount(&EmulationResult{StepCount: 2000})) // 4 + 0 + 2
	require.Equal(t, 8, PlanStepCount(&EmulationResult{StepCount: 2000, ResizeIterCount: 2}))
}

func TestAttemptUniqIdxMonotonic(t *testing.T) {
	a := NewAttempt(Iterative)
	require.EqualValues(t, 1, a.NextUniqIdx())
	require.EqualValues(t, 2, a.NextUniqIdx())
	require.NotEqual(t, NewAttempt(Iterative).ID, a.ID)
}

// fakeEngineSender records every batch and yields scripted errors first,
// then scripted outcomes, then a default good receipt.
type fakeEngineSender struct {
	batches  [][]*txcodec.STx
	errs     []error
	outcomes []*SendOutcome
}

func (f *fakeEngineSender) Send(ctx context.Context, txs []*txcodec.STx) (*SendOutcome, error) {
	f.batches = append(f.batches, txs)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(f.outcomes) == 0 {
		return &SendOutcome{GoodReceipts: []ReceiptInfo{{NeonTxReturn: true, Status: 1, GasUsed: 25000}}}, nil
	}
	out := f.outcomes[0]
	if len(f.outcomes) > 1 {
		f.outcomes = f.outcomes[1:]
	}
	return out, nil
}

type fakeHolderReader struct {
	status  opresource.HolderStatus
	sig     common.Hash
	chainID uint64
}

func (f *fakeHolderReader) Read(holder common.Pubkey) (opresource.HolderStatus, common.Hash, uint64, error) {
	return f.status, f.sig, f.chainID, nil
}

type fakeEmulator struct{ result EmulationResult }

func (f *fakeEmulator) Emulate(ctx context.Context, tx *mempool.ETx) (*EmulationResult, error) {
	r := f.result
	return &r, nil
}

type fakeAltAddresser struct{ calls int }

func (f *fakeAltAddresser) NextAlt(ctx context.Context, signer common.Pubkey) (common.Pubkey, byte, uint64, error) {
	f.calls++
	return common.Pubkey{0xa1}, 255, 42, nil
}

type fakeAltRegistry struct{ tracked []*txcodec.AltTable }

func (f *fakeAltRegistry) Track(t *txcodec.AltTable) { f.tracked = append(f.tracked, t) }

func testEngine(snd Sender, emu Emulator, holder HolderStatusReader, alt AltAddresser, reg AltRegistry) *Engine {
	builderFactory := func(signer, holderPk common.Pubkey) *txcodec.Builder {
		return txcodec.NewBuilder(signer, holderPk, common.Pubkey{0xee}, common.Pubkey{0xaf})
	}
	return NewEngine(emu, builderFactory, snd, holder, alt, reg, 0, 2)
}

func TestEngineSingleShotDone(t *testing.T) {
	snd := &fakeEngineSender{}
	eng := testEngine(snd, &fakeEmulator{result: EmulationResult{StepCount: 100}}, &fakeHolderReader{status: opresource.HolderEmpty}, nil, nil)

	res := eng.Execute(context.Background(), chainIDTx(), &opresource.OpRes{Signer: common.Pubkey{5}, Holder: common.Pubkey{6}})
	require.True(t, res.Done)
	require.EqualValues(t, 1, res.Status)
	require.EqualValues(t, 25000, res.GasUsed)
	require.Len(t, snd.batches, 1)
}

func TestEngineForeignActiveHolderYieldsStuckTx(t *testing.T) {
	foreign := common.Hash{0xfe}
	eng := testEngine(&fakeEngineSender{}, &fakeEmulator{}, &fakeHolderReader{status: opresource.HolderActive, sig: foreign, chainID: 7}, nil, nil)

	res := eng.Execute(context.Background(), chainIDTx(), &opresource.OpRes{Signer: common.Pubkey{5}, Holder: common.Pubkey{6}})
	require.NotNil(t, res.StuckTx)
	require.Equal(t, foreign.Hex(), res.StuckTx.NeonTxSig)
	require.EqualValues(t, 7, res.StuckTx.ChainID)
}

func TestEngineAdvancesStrategyOnStrategyError(t *testing.T) {
	// The first selected strategy (SingleShot) fails with a strategy-class
	// error; the engine must record the failure and retry the same tx with
	// the next eligible strategy instead of cancelling.
	snd := &fakeEngineSender{errs: []error{&xerr.StrategyError{Reason: "CUBudgetExceededError"}}}
	tx := chainIDTx()
	eng := testEngine(snd,
		&fakeEmulator{result: EmulationResult{StepCount: 100}},
		&fakeHolderReader{status: opresource.HolderEmpty},
		&fakeAltAddresser{}, &fakeAltRegistry{})

	res := eng.Execute(context.Background(), tx, &opresource.OpRes{Signer: common.Pubkey{5}, Holder: common.Pubkey{6}})
	require.True(t, res.Done)
	require.Equal(t, []string{SingleShot.String()}, tx.ExecutionConfig.FailedStrategies)
	// batch 1: failed SingleShot exec; batch 2: ALT prep for SingleShot+ALT;
	// batch 3: the retried execution that succeeds.
	require.Len(t, snd.batches, 3)
}

func TestEngineResizeIterErrorReroutesToIterative(t *testing.T) {
	snd := &fakeEngineSender{errs: []error{&xerr.StrategyError{Reason: "RequireResizeIterError", NeedsResizeIter: true}}}
	tx := chainIDTx()
	eng := testEngine(snd,
		&fakeEmulator{result: EmulationResult{StepCount: 100}},
		&fakeHolderReader{status: opresource.HolderEmpty},
		nil, nil)

	res := eng.Execute(context.Background(), tx, &opresource.OpRes{Signer: common.Pubkey{5}, Holder: common.Pubkey{6}})
	require.True(t, res.Done)
	// The resize requirement rules out both single-shot variants, so the
	// retry lands on Iterative with the bumped resize count.
	require.Equal(t, 1, tx.ExecutionConfig.ResizeIterCount)
	require.Equal(t, []string{SingleShot.String()}, tx.ExecutionConfig.FailedStrategies)
	require.Len(t, snd.batches, 2)
}

func TestEngineALTPrepPrecedesExecution(t *testing.T) {
	// 40 writable accounts exceed the legacy cap, so the ALT prep batch
	// (Create + Extend x2) must reach the sender before the execution
	// batch, and the executed tx must reference the planned table.
	accounts := make([]txcodec.AccountMeta, 40)
	for i := range accounts {
		accounts[i] = txcodec.AccountMeta{Pubkey: common.Pubkey{byte(i + 1)}, IsWritable: true}
	}
	snd := &fakeEngineSender{}
	addresser := &fakeAltAddresser{}
	registry := &fakeAltRegistry{}
	eng := testEngine(snd,
		&fakeEmulator{result: EmulationResult{StepCount: 100, DiscoveredAccounts: accounts, ExceedsLegacyCap: true}},
		&fakeHolderReader{status: opresource.HolderEmpty},
		addresser, registry)

	res := eng.Execute(context.Background(), chainIDTx(), &opresource.OpRes{Signer: common.Pubkey{5}, Holder: common.Pubkey{6}})
	require.True(t, res.Done)
	require.Equal(t, 1, addresser.calls)
	require.Len(t, snd.batches, 2)

	prep := snd.batches[0][0]
	require.Len(t, prep.Instructions, 3) // Create + ceil(40/27)=2 Extends

	exec := snd.batches[1][0]
	require.True(t, exec.Versioned)
	require.Equal(t, common.Pubkey{0xa1}, exec.ALT)

	require.Len(t, registry.tracked, 1)
	require.Equal(t, txcodec.AltActive, registry.tracked[0].State)
}
