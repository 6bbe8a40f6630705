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

package sender

import (
	"context"
	"crypto/ed25519"
	"errors"
	"testing"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/solclient"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
	"github.com/stretchr/testify/require"
)

// fakeChain scripts one receipt error body per tx per attempt: the outer
// slice index is the attempt number, the inner one mirrors the submitted
// batch order. An empty string means a clean receipt, "none" means no
// receipt at all.
type fakeChain struct {
	blockhashes      []common.Hash
	receiptPlan      [][]string
	alreadyProcessed bool // SendTxList answers AlreadyProcessed instead of fresh sigs

	attempt    int
	blockhashN int
	sent       [][]int              // batch sizes observed per attempt
	polled     [][]common.Signature // sigs handed to GetTxReceipts per attempt
}

func (f *fakeChain) GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error) {
	h := f.blockhashes[f.blockhashN]
	if f.blockhashN < len(f.blockhashes)-1 {
		f.blockhashN++
	}
	return h, 1000, nil
}

func (f *fakeChain) SendTxList(ctx context.Context, txs [][]byte, skipPreflight bool) ([]solclient.SendResult, error) {
	f.sent = append(f.sent, []int{len(txs)})
	out := make([]solclient.SendResult, len(txs))
	for i := range out {
		if f.alreadyProcessed {
			out[i] = solclient.SendResult{AlreadyProcessed: true}
		} else {
			out[i] = solclient.SendResult{Sig: common.Signature{byte(f.attempt), byte(i + 1)}}
		}
	}
	return out, nil
}

func (f *fakeChain) CheckConfirm(ctx context.Context, sigs []common.Signature, commitmentSet map[common.CommitLevel]bool, baseSlot uint64) (bool, error) {
	return true, nil
}

func (f *fakeChain) GetTxReceipts(ctx context.Context, sigs []common.Signature, commit common.CommitLevel) ([]*solclient.TxReceipt, error) {
	f.polled = append(f.polled, append([]common.Signature(nil), sigs...))
	plan := f.receiptPlan[f.attempt]
	f.attempt++
	out := make([]*solclient.TxReceipt, len(sigs))
	for i := range sigs {
		body := plan[i]
		switch body {
		case "none":
			out[i] = nil
		case "":
			out[i] = &solclient.TxReceipt{}
		default:
			out[i] = &solclient.TxReceipt{Err: body}
		}
	}
	return out, nil
}

func testSigner() func(*txcodec.STx) []ed25519.PrivateKey {
	_, priv, _ := ed25519.GenerateKey(nil)
	return func(*txcodec.STx) []ed25519.PrivateKey { return []ed25519.PrivateKey{priv} }
}

func testConfig() Config {
	return Config{
		RetryOnFail:       3,
		ConfirmTimeout:    50 * time.Millisecond,
		ConfirmCheckEvery: 5 * time.Millisecond,
		MinCommitForDone:  common.Confirmed,
	}
}

func testSTx() *txcodec.STx {
	b := txcodec.NewBuilder(common.Pubkey{1}, common.Pubkey{2}, common.Pubkey{3}, common.Pubkey{4})
	return txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{b.HolderDelete()})
}

func TestSendGoodReceipt(t *testing.T) {
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{""}},
	}
	s := New(chain, testConfig(), testSigner())

	outcome, err := s.Send(context.Background(), []*txcodec.STx{testSTx()})
	require.NoError(t, err)
	require.Len(t, outcome.GoodReceipts, 1)
	require.True(t, outcome.GoodReceipts[0].NeonTxReturn)
	require.False(t, outcome.NeedsMoreIterations)
}

func TestSendBlockedRetriedWhenBatchHasGoodReceipt(t *testing.T) {
	// One tx lands, the other hits the account lock; because the
	// batch produced a GoodReceipt the blocked one is retried, not
	// rescheduled, and passes on the second attempt.
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{
			{"", "account in use"},
			{""},
		},
	}
	s := New(chain, testConfig(), testSigner())

	outcome, err := s.Send(context.Background(), []*txcodec.STx{testSTx(), testSTx()})
	require.NoError(t, err)
	require.Len(t, outcome.GoodReceipts, 2)
}

func TestSendAllBlockedReschedules(t *testing.T) {
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{"account in use", "account in use"}},
	}
	s := New(chain, testConfig(), testSigner())

	outcome, err := s.Send(context.Background(), []*txcodec.STx{testSTx(), testSTx()})
	require.NoError(t, err)
	require.True(t, outcome.Reschedule)
}

func TestSendBadBlockhashRaisesWhenFreshOneIsBad(t *testing.T) {
	// The receipt marks blockhash {0xaa} bad; the chain then keeps handing
	// out the same hash, so step 1 of the next attempt must raise up-stack.
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{"blockhash not found"}},
	}
	s := New(chain, testConfig(), testSigner())

	_, err := s.Send(context.Background(), []*txcodec.STx{testSTx()})
	var resched *xerr.RescheduleError
	require.True(t, errors.As(err, &resched))
}

func TestSendNoReceiptExhaustsRetries(t *testing.T) {
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{"none"}, {"none"}, {"none"}, {"none"}},
	}
	s := New(chain, testConfig(), testSigner())

	_, err := s.Send(context.Background(), []*txcodec.STx{testSTx()})
	require.ErrorIs(t, err, xerr.ErrNoMoreRetries)
}

func TestSendStrategyFailSurfacesTyped(t *testing.T) {
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{"compute budget exceeded"}},
	}
	s := New(chain, testConfig(), testSigner())

	_, err := s.Send(context.Background(), []*txcodec.STx{testSTx()})
	var stratErr *xerr.StrategyError
	require.True(t, errors.As(err, &stratErr))
}

func TestSendAlreadyProcessedTreatedAsSubmitted(t *testing.T) {
	// A duplicate submission carries no signature of its own; the sender
	// must confirm against the tx's already-known signature instead of a
	// zero value, so the tx is not endlessly resubmitted.
	chain := &fakeChain{
		blockhashes:      []common.Hash{{0xaa}},
		receiptPlan:      [][]string{{""}},
		alreadyProcessed: true,
	}
	s := New(chain, testConfig(), testSigner())

	tx := testSTx()
	outcome, err := s.Send(context.Background(), []*txcodec.STx{tx})
	require.NoError(t, err)
	require.Len(t, outcome.GoodReceipts, 1)

	require.Len(t, chain.polled, 1)
	require.Equal(t, tx.Signatures[0], chain.polled[0][0])
	require.NotEqual(t, common.Signature{}, chain.polled[0][0])
}

func TestSendAlreadyFinalizedIsTerminalSuccess(t *testing.T) {
	chain := &fakeChain{
		blockhashes: []common.Hash{{0xaa}},
		receiptPlan: [][]string{{"transaction already finalized"}},
	}
	s := New(chain, testConfig(), testSigner())

	outcome, err := s.Send(context.Background(), []*txcodec.STx{testSTx()})
	require.NoError(t, err)
	require.Len(t, outcome.GoodReceipts, 1)
	require.True(t, outcome.GoodReceipts[0].AlreadyFinalized)
	require.False(t, outcome.GoodReceipts[0].NeonTxReturn)
}
