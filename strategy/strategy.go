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

// Package strategy is the Strategy Engine: the per-ETx state
// machine that picks among {SingleShot, Iterative, HolderIterative,
// NoChainId} × {Legacy, WithALT}, drives emulation-based account discovery,
// and owns the cancel path.
//
// Per-attempt correlation ids use github.com/satori/go.uuid, distinct
// from hashicorp/go-uuid (used for resource ids in opresource) so the two
// id spaces never collide in logs.
package strategy

import (
	"context"

	uuid "github.com/satori/go.uuid"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
	"github.com/neonlabsorg/neon-proxy-go/mempool"
	"github.com/neonlabsorg/neon-proxy-go/txcodec"
)

var logger = nlog.New("strategy")

// Name identifies one of the seven ordered strategies.
type Name int

const (
	SingleShot Name = iota
	SingleShotALT
	Iterative
	IterativeALT
	HolderIterative
	HolderIterativeALT
	NoChainIdALT
)

func (n Name) String() string {
	switch n {
	case SingleShot:
		return "SingleShot"
	case SingleShotALT:
		return "SingleShot+ALT"
	case Iterative:
		return "Iterative"
	case IterativeALT:
		return "Iterative+ALT"
	case HolderIterative:
		return "HolderIterative"
	case HolderIterativeALT:
		return "HolderIterative+ALT"
	case NoChainIdALT:
		return "NoChainId+ALT"
	default:
		return "Unknown"
	}
}

func (n Name) UsesALT() bool {
	return n == SingleShotALT || n == IterativeALT || n == HolderIterativeALT || n == NoChainIdALT
}

func (n Name) UsesHolder() bool { return n == HolderIterative || n == HolderIterativeALT }

func (n Name) IsIterative() bool {
	return n == Iterative || n == IterativeALT || n == HolderIterative || n == HolderIterativeALT || n == NoChainIdALT
}

// EmulationResult is the outcome of emulating an ETx against recent chain
// state: discovered accounts, EVM step count, legacy-tx
// eligibility.
type EmulationResult struct {
	StepCount          uint64
	DiscoveredAccounts []txcodec.AccountMeta
	ResizeIterCount    int
	ExceedsLegacyCap   bool // account set too large for a legacy (non-ALT) tx
}

// Emulator runs an ETx against recent settlement-chain state without
// committing it, the "emulation-driven account discovery".
// Modeled as a narrow interface rather than inlined into the engine, since
// the original treats emulation as a call to a separate service process
// — DefaultEmulator is one implementation, backed by a
// settlement-chain simulation call, but tests can substitute another.
type Emulator interface {
	Emulate(ctx context.Context, tx *mempool.ETx) (*EmulationResult, error)
}

// descriptor is the tagged-variant strategy entry: name plus its validate
// gate.
type descriptor struct {
	name     Name
	validate func(tx *mempool.ETx, em *EmulationResult) bool
}

const evmStepMin = 500 // steps per iteration instruction; matches the core program's per-step budget

// orderedStrategies is the static probe order validate()
// gates on has-chainId (all but NoChainId+ALT require it), resize-iteration
// count (only iterative variants tolerate resize iterations), EVM-step
// count (SingleShot only fits a single instruction worth of steps), and
// whether the discovered account set is too large for a legacy tx (forces
// an ALT variant).
var orderedStrategies = []descriptor{
	{SingleShot, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil && em.ResizeIterCount == 0 && em.StepCount <= evmStepMin && !em.ExceedsLegacyCap
	}},
	{SingleShotALT, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil && em.ResizeIterCount == 0 && em.StepCount <= evmStepMin
	}},
	{Iterative, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil && !em.ExceedsLegacyCap
	}},
	{IterativeALT, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil
	}},
	{HolderIterative, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil && !em.ExceedsLegacyCap
	}},
	{HolderIterativeALT, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID != nil
	}},
	{NoChainIdALT, func(tx *mempool.ETx, em *EmulationResult) bool {
		return tx.ChainID == nil
	}},
}

// Select returns the first strategy in order whose validate() gates pass,
// skipping any the tx has already failed with a strategy-class error.
func Select(tx *mempool.ETx, em *EmulationResult) (Name, bool) {
	for _, d := range orderedStrategies {
		if failedBefore(tx, d.name) {
			continue
		}
		if d.validate(tx, em) {
			return d.name, true
		}
	}
	return 0, false
}

func failedBefore(tx *mempool.ETx, n Name) bool {
	for _, s := range tx.ExecutionConfig.FailedStrategies {
		if s == n.String() {
			return true
		}
	}
	return false
}

// Result is the outcome of one Execute() call, matched by the Executor
//.
type Result struct {
	Done        bool
	Status      uint8
	GasUsed     uint64
	NonceTooHigh bool
	Reschedule  bool
	BadResource bool
	StuckTx     *xerr.StuckTxError
	Err         error
}

// Attempt tracks one strategy run's correlation id and uniq_idx counter,
// the monotonically increasing uniq_idx distinguishing otherwise-identical
// ixs inside one holder's run.
type Attempt struct {
	ID      uuid.UUID
	Name    Name
	uniqIdx uint32
}

func NewAttempt(name Name) *Attempt {
	return &Attempt{ID: uuid.NewV4(), Name: name}
}

func (a *Attempt) NextUniqIdx() uint32 {
	a.uniqIdx++
	return a.uniqIdx
}

// PlanStepCount computes the iteration STx list size:
// max(emulated_step_cnt / evm_step_min, 1) + resize_iter_cnt + 2.
func PlanStepCount(em *EmulationResult) int {
	base := int(em.StepCount / evmStepMin)
	if base < 1 {
		base = 1
	}
	return base + em.ResizeIterCount + 2
}
