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
	"errors"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/metrics"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/opresource"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

// Sender is the subset of sender.Sender the engine drives: send a batch of
// settlement txs to a terminal state Kept as an interface
// here (rather than importing package sender directly) because sender in
// turn depends on nothing upward — this keeps the dependency graph
// Engine → Sender-interface, satisfied by the concrete sender package at
// wiring time in cmd/neon-proxy.
type Sender interface {
	Send(ctx context.Context, txs []*txcodec.STx) (*SendOutcome, error)
}

// SendOutcome summarizes one Send() call's per-tx classification, enough
// for the engine to decide whether it has a receipt, must resubmit with
// more iterations, or must fail up-stack.
type SendOutcome struct {
	GoodReceipts []ReceiptInfo
	NeedsMoreIterations bool
	Fatal        error
	BadResource  bool
	Reschedule   bool
}

// ReceiptInfo is a decoded settlement-tx receipt's EVM-relevant content.
type ReceiptInfo struct {
	NeonTxReturn bool
	Status       uint8
	GasUsed      uint64
	AlreadyFinalized bool
}

// Engine runs the per-ETx lifecycle.
type Engine struct {
	emulator Emulator
	builder  func(signer, holder common.Pubkey) *txcodec.Builder
	sender   Sender
	holderDecoder HolderStatusReader
	altAddresser  AltAddresser
	altRegistry   AltRegistry
	cuPriorityFee uint64
	retryOnFail   int
}

// HolderStatusReader reads the current holder account's status, used to
// detect Active(ours) resume vs Active(foreign) stuck-tx yield.
type HolderStatusReader interface {
	Read(holder common.Pubkey) (status opresource.HolderStatus, activeTxSig common.Hash, chainID uint64, err error)
}

func NewEngine(emulator Emulator, builderFactory func(signer, holder common.Pubkey) *txcodec.Builder, sender Sender, holderDecoder HolderStatusReader, altAddresser AltAddresser, altRegistry AltRegistry, cuPriorityFee uint64, retryOnFail int) *Engine {
	return &Engine{
		emulator:      emulator,
		builder:       builderFactory,
		sender:        sender,
		holderDecoder: holderDecoder,
		altAddresser:  altAddresser,
		altRegistry:   altRegistry,
		cuPriorityFee: cuPriorityFee,
		retryOnFail:   retryOnFail,
	}
}

// Execute runs tx to completion against res, returning the classification
// the Executor dispatches on.
func (e *Engine) Execute(ctx context.Context, tx *mempool.ETx, res *opresource.OpRes) Result {
	status, activeTxSig, chainID, err := e.holderDecoder.Read(res.Holder)
	if err != nil {
		return Result{Reschedule: true, Err: err}
	}
	resuming := false
	if status == opresource.HolderActive {
		if activeTxSig == tx.Hash {
			resuming = true
		} else {
			return Result{StuckTx: &xerr.StuckTxError{NeonTxSig: activeTxSig.Hex(), Holder: res.Holder.String(), ChainID: chainID}}
		}
	}

	em, err := e.emulator.Emulate(ctx, tx)
	if err != nil {
		return Result{Reschedule: true, Err: err}
	}
	if tx.ExecutionConfig.ResizeIterCount > em.ResizeIterCount {
		em.ResizeIterCount = tx.ExecutionConfig.ResizeIterCount
	}

	builder := e.builder(res.Signer, res.Holder)

	// A strategy-class failure advances to the next eligible strategy and
	// retries the same tx; every other failure takes the cancel path. The
	// ordered list is finite and failed entries are skipped, so this
	// terminates.
	for {
		name, ok := Select(tx, em)
		if !ok {
			return Result{BadResource: true, Err: &xerr.StrategyError{Reason: "no strategy validated"}}
		}
		e.countAttempt(name)
		attempt := NewAttempt(name)

		var altAddr common.Pubkey
		if name.UsesALT() {
			if e.altAddresser == nil {
				return Result{Err: xerr.Fatalf("strategy %s selected but no ALT addresser configured", name)}
			}
			altAddr, err = e.prepareALT(ctx, builder, em.DiscoveredAccounts)
			if err != nil {
				return Result{Reschedule: true, Err: err}
			}
			tx.ExecutionConfig.ALTAddresses = append(tx.ExecutionConfig.ALTAddresses, altAddr)
		}

		var prepInstructions []txcodec.Instruction
		if name.UsesHolder() && !resuming {
			msg := txcodec.HolderMsg(tx.RLP, resuming)
			prepInstructions = append(prepInstructions, builder.HolderWriteChunks(msg)...)
		}
		for _, acc := range em.DiscoveredAccounts {
			if acc.IsWritable {
				prepInstructions = append(prepInstructions, builder.CreateBalance(common.Address{}, acc.Pubkey))
			}
		}

		stepTotal := PlanStepCount(em)
		outcome, err := e.runIterations(ctx, builder, name, attempt, tx, em, stepTotal, prepInstructions, altAddr)
		if name.UsesALT() {
			e.retireALT(altAddr, res.Signer)
		}
		if err == nil {
			return *outcome
		}

		var stratErr *xerr.StrategyError
		if errors.As(err, &stratErr) {
			tx.ExecutionConfig.FailedStrategies = append(tx.ExecutionConfig.FailedStrategies, name.String())
			tx.ExecutionConfig.SendStateHistory = append(tx.ExecutionConfig.SendStateHistory, stratErr.Reason)
			if stratErr.NeedsResizeIter {
				tx.ExecutionConfig.ResizeIterCount++
				em.ResizeIterCount = tx.ExecutionConfig.ResizeIterCount
			}
			logger.Warn("strategy failed, advancing", "tx", tx.Hash.Hex(), "strategy", name.String(), "reason", stratErr.Reason)
			continue
		}

		cancelErr := e.cancel(ctx, builder, tx.Hash)
		if cancelErr == nil {
			return Result{Done: true, Status: 1}
		}
		return Result{Reschedule: true, Err: err}
	}
}

func (e *Engine) runIterations(ctx context.Context, builder *txcodec.Builder, name Name, attempt *Attempt, tx *mempool.ETx, em *EmulationResult, stepTotal int, prep []txcodec.Instruction, altAddr common.Pubkey) (*Result, error) {
	for attemptNum := 0; attemptNum <= e.retryOnFail; attemptNum++ {
		var ixs []txcodec.Instruction
		ixs = append(ixs, prep...)
		if name.IsIterative() && e.cuPriorityFee > 0 {
			ixs = append(ixs, computeBudgetPriorityFee(e.cuPriorityFee))
		}

		switch name {
		case SingleShot, SingleShotALT:
			ixs = append(ixs, builder.TxExecFromData(tx.RLP, em.DiscoveredAccounts))
		case Iterative, IterativeALT:
			for i := 0; i < stepTotal; i++ {
				ixs = append(ixs, builder.TxStepFromData(uint32(stepTotal), attempt.NextUniqIdx(), tx.RLP, em.DiscoveredAccounts))
			}
		case HolderIterative, HolderIterativeALT:
			for i := 0; i < stepTotal; i++ {
				ixs = append(ixs, builder.TxStepFromAccount(uint32(stepTotal), attempt.NextUniqIdx(), em.DiscoveredAccounts))
			}
		case NoChainIdALT:
			for i := 0; i < stepTotal; i++ {
				ixs = append(ixs, builder.TxStepFromAccountNoChainId(uint32(stepTotal), attempt.NextUniqIdx(), em.DiscoveredAccounts))
			}
		}

		stx := txcodec.NewSTx(common.Hash{}, ixs)
		if name.UsesALT() {
			stx.Versioned = true
			stx.ALT = altAddr
		}
		outcome, err := e.sender.Send(ctx, []*txcodec.STx{stx})
		if err != nil {
			return nil, err
		}
		if outcome.Fatal != nil {
			return nil, outcome.Fatal
		}
		if outcome.BadResource {
			return nil, &xerr.BadResourceError{ResourceID: "", Reason: "rejected by sender"}
		}
		if outcome.Reschedule {
			return nil, &xerr.RescheduleError{Reason: "sender requested reschedule"}
		}
		for _, r := range outcome.GoodReceipts {
			if r.NeonTxReturn {
				return &Result{Done: true, Status: r.Status, GasUsed: r.GasUsed}, nil
			}
			if r.AlreadyFinalized {
				// AlreadyFinalized on the cancel/retry path is treated as
				// success with gas = accumulated.
				return &Result{Done: true, Status: 1, GasUsed: r.GasUsed}, nil
			}
		}
		if !outcome.NeedsMoreIterations {
			break
		}
		stepTotal++ // grant one additional iteration before the next attempt
	}
	return nil, xerr.ErrNoMoreRetries
}

// cancel attempts CancelWithHash once the normal path fails to yield a
// receipt; only one cancel is ever attempted per ETx.
func (e *Engine) cancel(ctx context.Context, builder *txcodec.Builder, neonTxSig common.Hash) error {
	stx := txcodec.NewSTx(common.Hash{}, []txcodec.Instruction{builder.CancelWithHash(neonTxSig)})
	outcome, err := e.sender.Send(ctx, []*txcodec.STx{stx})
	if err != nil {
		return err
	}
	for _, r := range outcome.GoodReceipts {
		if r.NeonTxReturn || r.AlreadyFinalized {
			return nil
		}
	}
	return xerr.ErrNoMoreRetries
}

// computeBudgetProgram is the well-known compute-budget program id that
// carries priority-fee instructions outside the core EVM program, applied
// only to iterative strategies; single-shot runs carry no priority fee.
var computeBudgetProgram = common.Pubkey{3, 6, 70, 111, 229, 33, 23, 50, 255, 236, 173, 186, 114, 195, 155, 231, 188, 140, 229, 187, 197, 247, 18, 107, 44, 67, 155, 58, 64, 0, 0, 0}

func computeBudgetPriorityFee(microLamports uint64) txcodec.Instruction {
	data := []byte{3} // SetComputeUnitPrice discriminant
	data = append(data, uint64ToLE(microLamports)...)
	return txcodec.Instruction{ProgramID: computeBudgetProgram, Data: data}
}

func uint64ToLE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func (e *Engine) countAttempt(name Name) {
	switch name {
	case SingleShot, SingleShotALT:
		metrics.StrategyAttemptsSingleShot.Inc(1)
	case Iterative, IterativeALT:
		metrics.StrategyAttemptsIterative.Inc(1)
	case HolderIterative, HolderIterativeALT:
		metrics.StrategyAttemptsHolderIterative.Inc(1)
	case NoChainIdALT:
		metrics.StrategyAttemptsNoChainID.Inc(1)
	}
}
