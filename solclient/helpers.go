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

package solclient

import (
	"context"
	"encoding/json"
	"math/big"
	"strings"
	"time"
)

// callRaw is like callContext but also hands back the raw result bytes
// (nil when the RPC returned a JSON null, i.e. BlockInfo's Empty(slot)
// case), used by GetBlock which needs both the decoded header and the
// full payload for the Indexer to reparse.
func (c *Client) callRaw(ctx context.Context, method string, params interface{}, rawOut *[]byte, decodeInto interface{}) error {
	c.idSeq++
	req := rpcRequest{JSONRPC: "2.0", ID: c.idSeq, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryOnFail; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
		}
		resp, err := c.doOnce(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Error != nil {
			return resp.Error
		}
		if len(resp.Result) == 0 || string(resp.Result) == "null" {
			*rawOut = nil
			return nil
		}
		*rawOut = resp.Result
		if decodeInto != nil {
			if err := json.Unmarshal(resp.Result, decodeInto); err != nil {
				return err
			}
		}
		return nil
	}
	logger.Error("rpc endpoint unavailable", "method", method, "retries", c.retryOnFail)
	_ = lastErr
	return ErrChainUnavailable
}

type batchResult struct {
	raw json.RawMessage
	err error
}

// batchCallWithErrors is batchCall's sibling that preserves per-element RPC
// errors instead of collapsing them to nil, needed by SendTxList which must
// distinguish AlreadyProcessed from a generic failure.
func (c *Client) batchCallWithErrors(ctx context.Context, methods []string, params []interface{}) ([]batchResult, error) {
	reqs := make([]rpcRequest, len(methods))
	ids := make([]uint64, len(methods))
	for i := range methods {
		c.idSeq++
		ids[i] = c.idSeq
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: ids[i], Method: methods[i], Params: params[i]}
	}
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retryOnFail; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff):
			}
		}
		raw, err := c.doRawBatch(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}
		var results []rpcResponse
		if err := json.Unmarshal(raw, &results); err != nil {
			return nil, err
		}
		byID := make(map[uint64]rpcResponse, len(results))
		for _, r := range results {
			byID[r.ID] = r
		}
		out := make([]batchResult, len(ids))
		for i, id := range ids {
			r, ok := byID[id]
			if !ok {
				out[i] = batchResult{err: ErrChainUnavailable}
				continue
			}
			if r.Error != nil {
				out[i] = batchResult{err: r.Error}
				continue
			}
			out[i] = batchResult{raw: r.Result}
		}
		return out, nil
	}
	logger.Error("rpc batch endpoint unavailable", "size", len(methods), "retries", c.retryOnFail)
	_ = lastErr
	return nil, ErrChainUnavailable
}

func unmarshalInto(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// base58Decode is the inverse of common.base58Encode, kept local to
// solclient since it only ever decodes RPC-supplied pubkey/signature/hash
// strings and never participates in signing.
func base58Decode(s string) []byte {
	zeros := 0
	for zeros < len(s) && s[zeros] == base58Alphabet[0] {
		zeros++
	}

	num := big.NewInt(0)
	base := big.NewInt(58)
	for _, r := range s {
		idx := strings.IndexRune(base58Alphabet, r)
		if idx < 0 {
			continue
		}
		num.Mul(num, base)
		num.Add(num, big.NewInt(int64(idx)))
	}

	decoded := num.Bytes()
	out := make([]byte, zeros+len(decoded))
	copy(out[zeros:], decoded)
	return out
}
