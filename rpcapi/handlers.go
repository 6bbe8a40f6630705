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

package rpcapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/neonlabsorg/neon-proxy-go/common"
)

func methodChainID(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	return hexUint(s.chainID), nil
}

func methodGasPrice(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	return hexUint(s.gas.MinExecutableGasPrice()), nil
}

// methodSendRawTransaction accepts the signed transaction's raw bytes and
// queues it in the Mempool Scheduler. Full RLP decoding and signature
// recovery belong to the parsing layer in front of this facade, which
// derives only an
// identity hash for the ETx, standing in for the keccak256 tx hash a real
// node would compute; full keccak256 hashing belongs to the parsing
// layer in front of this facade.
func methodSendRawTransaction(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	var args [1]string
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	raw, err := decodeHexBytes(args[0])
	if err != nil {
		return nil, fmt.Errorf("invalid raw transaction: %w", err)
	}

	digest := sha256.Sum256(raw)
	hash := common.BytesToHash(digest[:])

	if err := s.mempool.Add(ETx{Hash: hash, RLP: raw}); err != nil {
		return nil, err
	}
	return hash.Hex(), nil
}

func methodGetTransactionReceipt(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	var args [1]string
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	rcpt, err := s.store.TxBySig(ctx, strings.TrimPrefix(args[0], "0x"))
	if err != nil {
		return nil, err
	}
	if rcpt == nil {
		return nil, nil
	}
	return receiptJSON(rcpt), nil
}

func methodGetTransactionCount(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error) {
	var args [2]string
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	// Nonce is derived from the highest persisted tx for this sender, found
	// by probing nonces upward from 0; the pending block tag is not
	// distinguished since the facade has no mempool-side nonce projection
	// of its own.
	sender := strings.ToLower(args[0])
	var count uint64
	for {
		rcpt, err := s.store.TxBySenderNonce(ctx, sender, count)
		if err != nil {
			return nil, err
		}
		if rcpt == nil {
			return hexUint(count), nil
		}
		count = rcpt.Nonce + 1
	}
}

func receiptJSON(r *TxReceipt) map[string]interface{} {
	return map[string]interface{}{
		"transactionHash": "0x" + r.NeonTxSig,
		"transactionIndex": hexUint(uint64(r.TxIndex)),
		"from":            r.Sender,
		"status":          hexUint(uint64(r.Status)),
		"gasUsed":         hexUint(r.GasUsed),
	}
}

func hexUint(v uint64) string { return "0x" + strconv.FormatUint(v, 16) }

func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	return hex.DecodeString(s)
}
