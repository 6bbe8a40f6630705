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
	"math/rand"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/solclient"
	"github.com/neonlabsorg/neon-proxy-go/strategy"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

var logger = nlog.New("sender")

// ChainAdapter is the subset of solclient.Client the sender drives.
type ChainAdapter interface {
	GetRecentBlockhash(ctx context.Context, commit common.CommitLevel) (common.Hash, uint64, error)
	SendTxList(ctx context.Context, txs [][]byte, skipPreflight bool) ([]solclient.SendResult, error)
	CheckConfirm(ctx context.Context, sigs []common.Signature, commitmentSet map[common.CommitLevel]bool, baseSlot uint64) (bool, error)
	GetTxReceipts(ctx context.Context, sigs []common.Signature, commit common.CommitLevel) ([]*solclient.TxReceipt, error)
}

// FuzzConfig implements the optional fuzz hooks, gated
// behind a config flag and never active by default.
type FuzzConfig struct {
	Enabled      bool
	FailPct      int // percent chance to drop a tx from a batch
	StaleBlockhashPct int
}

// Config carries the Sender's tunables, sanitized like every other
// component's config (node/sc/bridge_tx_pool.go idiom).
type Config struct {
	RetryOnFail      int
	ConfirmTimeout   time.Duration
	ConfirmCheckEvery time.Duration
	MinCommitForDone common.CommitLevel
	Fuzz             FuzzConfig
}

// Sender drives a list of settlement txs to a terminal state.
type Sender struct {
	chain       ChainAdapter
	cfg         Config
	badBlockhash map[common.Hash]bool
	signer      func(*txcodec.STx) []ed25519.PrivateKey
}

func New(chain ChainAdapter, cfg Config, signer func(*txcodec.STx) []ed25519.PrivateKey) *Sender {
	return &Sender{chain: chain, cfg: cfg, badBlockhash: make(map[common.Hash]bool), signer: signer}
}

// Send implements the strategy.Sender interface: the per-batch send()
// algorithm, steps 1-7.
func (s *Sender) Send(ctx context.Context, txs []*txcodec.STx) (*strategy.SendOutcome, error) {
	work := txs
	var goodReceipts []strategy.ReceiptInfo
	var confirmedSigs []common.Signature
	var lastValidHeight uint64

	for attempt := 0; attempt <= s.cfg.RetryOnFail && len(work) > 0; attempt++ {
		// Step 1: sign every unsigned/bad-blockhash tx with the current blockhash.
		blockhash, lvh, err := s.chain.GetRecentBlockhash(ctx, common.Confirmed)
		if err != nil {
			return nil, err
		}
		lastValidHeight = lvh
		if s.badBlockhash[blockhash] {
			return nil, &xerr.RescheduleError{Reason: "fresh blockhash itself is bad"}
		}
		for _, tx := range work {
			if tx.HasBlockhash(blockhash) {
				continue
			}
			if tx.RecentBlockhash == (common.Hash{}) {
				// First time through: the tx arrives from the Strategy
				// Engine unsigned (NewSTx carries a zero blockhash), so
				// resolve its signer and Sign rather than Resign, which
				// is a no-op with no prior signer set.
				tx.RecentBlockhash = blockhash
				tx.Sign(s.signer(tx))
				continue
			}
			tx.Resign(blockhash)
		}

		// Step 2: submit batch.
		raw := make([][]byte, 0, len(work))
		sendable := make([]*txcodec.STx, 0, len(work))
		for _, tx := range work {
			if s.cfg.Fuzz.Enabled && s.cfg.Fuzz.FailPct > 0 && rand.Intn(100) < s.cfg.Fuzz.FailPct {
				continue // fuzz hook: randomly drop a tx from the batch
			}
			b, err := tx.Serialize()
			if err != nil {
				return nil, xerr.Wrapf(err, "serialize settlement tx")
			}
			raw = append(raw, b)
			sendable = append(sendable, tx)
		}
		results, err := s.chain.SendTxList(ctx, raw, false)
		if err != nil {
			return nil, err
		}

		sigs := make([]common.Signature, 0, len(results))
		waiting := make([]*txcodec.STx, 0, len(results))
		for i, r := range results {
			if r.Err != nil {
				metrics.SenderRetries.Inc(1)
				continue
			}
			sig := r.Sig
			if r.AlreadyProcessed {
				// The chain already knows this tx: treat it as submitted
				// and confirm against its own signature, since a duplicate
				// response carries no signature of its own.
				sig = sendable[i].Signatures[0]
			}
			sigs = append(sigs, sig)
			waiting = append(waiting, sendable[i])
		}

		// Step 3: wait for confirmations.
		deadline := time.Now().Add(s.cfg.ConfirmTimeout)
		commitSet := map[common.CommitLevel]bool{common.Confirmed: true, common.Safe: true, common.Finalized: true}
		for time.Now().Before(deadline) {
			ok, err := s.chain.CheckConfirm(ctx, sigs, commitSet, lastValidHeight)
			if err != nil {
				return nil, err
			}
			if ok {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.ConfirmCheckEvery):
			}
		}

		// Step 4: fetch receipts and classify.
		receipts, err := s.chain.GetTxReceipts(ctx, sigs, common.Confirmed)
		if err != nil {
			return nil, err
		}

		var resubmit []*txcodec.STx
		var sawGoodReceipt bool
		var blockedAccountTxs []*txcodec.STx

		for i, receipt := range receipts {
			if receipt == nil {
				resubmit = append(resubmit, waiting[i])
				continue
			}
			var parsed ParsedError
			if receipt.Err != nil {
				parsed = ParseError(errBodyString(receipt.Err))
			} else {
				parsed = ParsedError{State: GoodReceipt}
			}

			switch {
			case parsed.State.IsTerminalSuccess():
				sawGoodReceipt = sawGoodReceipt || parsed.State == GoodReceipt
				confirmedSigs = append(confirmedSigs, sigs[i])
				goodReceipts = append(goodReceipts, strategy.ReceiptInfo{
					NeonTxReturn:     parsed.State == GoodReceipt,
					AlreadyFinalized: parsed.State == AlreadyFinalizedError,
					Status:           1,
				})
			case parsed.State.IsResubmit():
				if parsed.State == AltInvalidIndexError {
					time.Sleep(1 * time.Second) // one-block sleep before resubmit, step 5
				}
				if parsed.State == BlockHashNotFoundError {
					s.badBlockhash[blockhash] = true
				}
				resubmit = append(resubmit, waiting[i])
			case parsed.State == BlockedAccountError:
				blockedAccountTxs = append(blockedAccountTxs, waiting[i])
			case parsed.State.IsReschedule():
				return &strategy.SendOutcome{Reschedule: true}, nil
			case parsed.State.IsStrategyFail():
				return nil, &xerr.StrategyError{
					Reason:          parsed.State.String(),
					NeedsResizeIter: parsed.State == RequireResizeIterError,
				}
			default:
				return nil, xerr.Fatalf("fatal sender state %s", parsed.State)
			}
		}

		// Step 5: BlockedAccountError handling.
		if len(blockedAccountTxs) > 0 {
			if sawGoodReceipt {
				resubmit = append(resubmit, blockedAccountTxs...)
			} else {
				return &strategy.SendOutcome{Reschedule: true}, nil
			}
		}

		work = resubmit
	}

	if len(work) > 0 {
		metrics.SenderNoMoreRetries.Inc(1)
		return nil, xerr.ErrNoMoreRetries
	}

	// Step 7: validate that the batch reached the configured commit level.
	// The confirmation loop in step 3 only waited for {Confirmed, Safe,
	// Finalized}; when min_commit_for_done is stricter than Confirmed the
	// terminal receipts must additionally be re-checked at that level, and a
	// shortfall surfaces as a commit-level reschedule error.
	if s.cfg.MinCommitForDone > common.Confirmed && len(confirmedSigs) > 0 {
		commitSet := make(map[common.CommitLevel]bool)
		for c := s.cfg.MinCommitForDone; c <= common.Finalized; c++ {
			commitSet[c] = true
		}
		ok, err := s.chain.CheckConfirm(ctx, confirmedSigs, commitSet, lastValidHeight)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &xerr.RescheduleError{Reason: "commit level below " + s.cfg.MinCommitForDone.String()}
		}
	}

	return &strategy.SendOutcome{GoodReceipts: goodReceipts, NeedsMoreIterations: len(goodReceipts) == 0}, nil
}

// errBodyString renders a decoded receipt error value to text for
// ParseError; receipts carry it as an arbitrary JSON value from the chain.
func errBodyString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
