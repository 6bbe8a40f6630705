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

// Package mempool is the Mempool Scheduler: per-sender nonce-ordered
// pools, gas-price priority queues split into pending and gapped, capacity
// and eviction. One mutex guards all pool state; the priority
// and eviction queues are plain container/heap instances.
package mempool

import (
	"math/big"
	"time"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

// ExecutionConfig is the mutable side-structure attached to every ETx:
// state at entry, emulation results, and per-attempt history.
type ExecutionConfig struct {
	StateNonceAtEntry uint64
	EmulatedSteps     uint64
	DiscoveredAccounts []common.Pubkey
	ResizeIterCount   int
	ALTAddresses      []common.Pubkey
	SendStateHistory  []string

	// FailedStrategies names the strategies that already failed for this
	// tx with a strategy-class error; selection skips them on the next
	// attempt instead of re-probing a known-bad variant.
	FailedStrategies []string
}

// ETx is an Ethereum transaction as tracked by the mempool. Immutable once
// accepted,, except for ExecutionConfig.
type ETx struct {
	Hash      common.Hash
	Sender    common.Address
	Recipient *common.Address
	Nonce     uint64
	GasPrice  *big.Int
	GasLimit  *big.Int
	ChainID   *big.Int
	RLP       []byte

	ExecutionConfig ExecutionConfig

	insertedAt time.Time
	seq        uint64 // insertion sequence, breaks gas-price ties FIFO
}

// SenderPoolState is one Sender Pool's state.
type SenderPoolState int

const (
	Empty SenderPoolState = iota
	Queued
	Processing
	Suspended
)

func (s SenderPoolState) String() string {
	switch s {
	case Empty:
		return "Empty"
	case Queued:
		return "Queued"
	case Processing:
		return "Processing"
	case Suspended:
		return "Suspended"
	default:
		return "Unknown"
	}
}
