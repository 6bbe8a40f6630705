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

// Package sender is the Tx List Sender: it signs, submits, polls, and
// classifies receipts for a batch of settlement transactions.
package sender

// TxState is the per-tx state.
type TxState int

const (
	WaitForReceipt TxState = iota
	GoodReceipt

	// terminal-success
	LogTruncatedError
	AccountAlreadyExistsError
	AlreadyFinalizedError

	// resubmit
	NoReceiptError
	BlockHashNotFoundError
	AltInvalidIndexError

	// reschedule up-stack
	NodeBehindError
	BlockedAccountError

	// strategy fail
	CUBudgetExceededError
	InvalidIxDataError
	RequireResizeIterError

	// fatal
	BadNonceError
	UnknownError
)

func (s TxState) String() string {
	switch s {
	case WaitForReceipt:
		return "WaitForReceipt"
	case GoodReceipt:
		return "GoodReceipt"
	case LogTruncatedError:
		return "LogTruncatedError"
	case AccountAlreadyExistsError:
		return "AccountAlreadyExistsError"
	case AlreadyFinalizedError:
		return "AlreadyFinalizedError"
	case NoReceiptError:
		return "NoReceiptError"
	case BlockHashNotFoundError:
		return "BlockHashNotFoundError"
	case AltInvalidIndexError:
		return "AltInvalidIndexError"
	case NodeBehindError:
		return "NodeBehindError"
	case BlockedAccountError:
		return "BlockedAccountError"
	case CUBudgetExceededError:
		return "CUBudgetExceededError"
	case InvalidIxDataError:
		return "InvalidIxDataError"
	case RequireResizeIterError:
		return "RequireResizeIterError"
	case BadNonceError:
		return "BadNonceError"
	case UnknownError:
		return "UnknownError"
	default:
		return "Unknown"
	}
}

func (s TxState) IsTerminalSuccess() bool {
	switch s {
	case GoodReceipt, LogTruncatedError, AccountAlreadyExistsError, AlreadyFinalizedError:
		return true
	default:
		return false
	}
}

func (s TxState) IsResubmit() bool {
	switch s {
	case NoReceiptError, BlockHashNotFoundError, AltInvalidIndexError:
		return true
	default:
		return false
	}
}

func (s TxState) IsReschedule() bool {
	switch s {
	case NodeBehindError, BlockedAccountError:
		return true
	default:
		return false
	}
}

func (s TxState) IsStrategyFail() bool {
	switch s {
	case CUBudgetExceededError, InvalidIxDataError, RequireResizeIterError:
		return true
	default:
		return false
	}
}

func (s TxState) IsFatal() bool {
	switch s {
	case BadNonceError, UnknownError:
		return true
	default:
		return false
	}
}
