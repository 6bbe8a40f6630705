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

// Package xerr implements the gateway's error taxonomy: errors are
// classified by propagation intent, not by origin, so the Executor and
// Strategy Engine can dispatch on type rather than on string matching.
package xerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// EthereumError is user-visible: it is serialized into a JSON-RPC error
// object and is never retried.
type EthereumError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *EthereumError) Error() string {
	return fmt.Sprintf("ethereum error %d: %s", e.Code, e.Message)
}

// RescheduleError causes the Executor to re-insert the ETx at the top of its
// sender pool and release the operator resource without advancing strategy.
type RescheduleError struct {
	Reason string
	Cause  error
}

func (e *RescheduleError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("reschedule: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("reschedule: %s", e.Reason)
}

func (e *RescheduleError) Unwrap() error { return e.Cause }

// StrategyError causes the Strategy Engine to advance to the next strategy
// in its ordered list and retry the same ETx. NeedsResizeIter marks the
// variant where the program demanded an extra resize iteration, which also
// changes which strategies remain eligible.
type StrategyError struct {
	Reason          string
	NeedsResizeIter bool
}

func (e *StrategyError) Error() string { return fmt.Sprintf("strategy error: %s", e.Reason) }

// BadResourceError causes the resource manager to disable the resource
// (wrong holder size, balance too low) and the Executor to reschedule the tx.
type BadResourceError struct {
	ResourceID string
	Reason     string
}

func (e *BadResourceError) Error() string {
	return fmt.Sprintf("bad resource %s: %s", e.ResourceID, e.Reason)
}

// StuckTxError signals a holder Active(foreign-or-predecessor): the
// Executor hands the tx over to the stuck-tx dictionary and releases the
// resource instead of treating this as a normal failure.
type StuckTxError struct {
	NeonTxSig string
	Holder    string
	ChainID   uint64
}

func (e *StuckTxError) Error() string {
	return fmt.Sprintf("stuck tx %s on holder %s (chain %d)", e.NeonTxSig, e.Holder, e.ChainID)
}

// FatalError wraps invariant violations, serialization failures, or
// persistence exhaustion: logged, surfaced up, and the owning worker is
// restarted by its supervisor.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal: %v", e.Cause) }
func (e *FatalError) Unwrap() error { return e.Cause }

// Wrapf builds a FatalError carrying a stack trace via pkg/errors, used at
// the few call sites (persistence, serialization) where a bare message would
// lose the trail back to the originating invariant check.
func Wrapf(cause error, format string, args ...interface{}) *FatalError {
	return &FatalError{Cause: errors.Wrapf(cause, format, args...)}
}

// Fatalf builds a FatalError from a bare message when there is no cause to
// wrap; errors.Errorf still attaches the stack trace.
func Fatalf(format string, args ...interface{}) *FatalError {
	return &FatalError{Cause: errors.Errorf(format, args...)}
}

// Sentinel errors for simple binary outcomes, used where the caller only
// needs to compare, not recover fields.
var (
	ErrKnownTx      = errors.New("known transaction")
	ErrUnknownTx    = errors.New("unknown transaction")
	ErrUnderprice   = errors.New("underpriced transaction")
	ErrNonceTooLow  = errors.New("nonce too low")
	ErrNonceTooHigh = errors.New("nonce too high")
	ErrPoolFull     = errors.New("mempool is at capacity")
	ErrNoMoreRetries = errors.New("no more retries")
)
