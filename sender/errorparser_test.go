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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseErrorPolicy(t *testing.T) {
	cases := []struct {
		body string
		want TxState
	}{
		{"node is 12 slots behind", NodeBehindError},
		{"blockhash not found", BlockHashNotFoundError},
		{"invalid index in ALT lookup", AltInvalidIndexError},
		{"transaction already finalized", AlreadyFinalizedError},
		{"account in use", BlockedAccountError},
		{"account already exists", AccountAlreadyExistsError},
		{"log truncated", LogTruncatedError},
		{"nonce mismatch (5, 7)", BadNonceError},
		{"compute budget exceeded", CUBudgetExceededError},
		{"invalid instruction data", InvalidIxDataError},
		{"requires resize iteration", RequireResizeIterError},
		{"", NoReceiptError},
		{"some other unknown failure", UnknownError},
	}
	for _, c := range cases {
		got := ParseError(c.body)
		assert.Equal(t, c.want, got.State, "body=%q", c.body)
	}
}

func TestParseErrorNoncePair(t *testing.T) {
	got := ParseError("nonce mismatch (5, 7)")
	assert.Equal(t, uint64(5), got.SenderNonce)
	assert.Equal(t, uint64(7), got.TxNonce)
}

func TestTxStateClassification(t *testing.T) {
	assert.True(t, GoodReceipt.IsTerminalSuccess())
	assert.True(t, NoReceiptError.IsResubmit())
	assert.True(t, NodeBehindError.IsReschedule())
	assert.True(t, CUBudgetExceededError.IsStrategyFail())
	assert.True(t, BadNonceError.IsFatal())
}
