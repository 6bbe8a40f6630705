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

import "strings"

// ParsedError is the error-parser policy output.
type ParsedError struct {
	State      TxState
	SlotsBehind uint64
	SenderNonce uint64 // state_tx_cnt, tx_nonce pair's first element
	TxNonce     uint64
}

// ParseError implements the error parser policy table It
// inspects the settlement chain's error body text, the only interface the
// core program exposes for these conditions.
func ParseError(body string) ParsedError {
	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "slots behind") || strings.Contains(lower, "slots-behind"):
		return ParsedError{State: NodeBehindError, SlotsBehind: extractSlotsBehind(lower)}
	case strings.Contains(lower, "blockhash not found"):
		return ParsedError{State: BlockHashNotFoundError}
	case strings.Contains(lower, "invalid index") && strings.Contains(lower, "alt"):
		return ParsedError{State: AltInvalidIndexError}
	case strings.Contains(lower, "already finalized"):
		return ParsedError{State: AlreadyFinalizedError}
	case strings.Contains(lower, "account in use") || strings.Contains(lower, "blocked"):
		return ParsedError{State: BlockedAccountError}
	case strings.Contains(lower, "already exists"):
		return ParsedError{State: AccountAlreadyExistsError}
	case strings.Contains(lower, "log truncated"):
		return ParsedError{State: LogTruncatedError}
	case strings.Contains(lower, "nonce mismatch") || strings.Contains(lower, "nonce"):
		nonce, stateTxCnt := extractNoncePair(lower)
		return ParsedError{State: BadNonceError, TxNonce: nonce, SenderNonce: stateTxCnt}
	case strings.Contains(lower, "compute budget") || strings.Contains(lower, "exceeded"):
		return ParsedError{State: CUBudgetExceededError}
	case strings.Contains(lower, "invalid instruction data"):
		return ParsedError{State: InvalidIxDataError}
	case strings.Contains(lower, "requires resize") || strings.Contains(lower, "resize iter"):
		return ParsedError{State: RequireResizeIterError}
	case body == "":
		return ParsedError{State: NoReceiptError}
	default:
		return ParsedError{State: UnknownError}
	}
}

// extractSlotsBehind finds the first integer in the body, good enough for
// the core program's "node is N slots behind" phrasing.
func extractSlotsBehind(body string) uint64 {
	return firstUint(body)
}

func extractNoncePair(body string) (txNonce, stateTxCnt uint64) {
	// Body phrasing is "(state_tx_cnt, tx_nonce)"; the first integer found
	// is state_tx_cnt, the second tx_nonce.
	nums := allUints(body)
	if len(nums) >= 2 {
		return nums[1], nums[0]
	}
	if len(nums) == 1 {
		return nums[0], 0
	}
	return 0, 0
}

func firstUint(s string) uint64 {
	nums := allUints(s)
	if len(nums) == 0 {
		return 0
	}
	return nums[0]
}

func allUints(s string) []uint64 {
	var out []uint64
	var cur uint64
	has := false
	for _, r := range s {
		if r >= '0' && r <= '9' {
			cur = cur*10 + uint64(r-'0')
			has = true
			continue
		}
		if has {
			out = append(out, cur)
			cur = 0
			has = false
		}
	}
	if has {
		out = append(out, cur)
	}
	return out
}
