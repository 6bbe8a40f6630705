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

// Package solclient is the Chain Adapter: a typed JSON-RPC
// facade over the settlement chain. The typed-method-wraps-a-generic-call
// idiom follows client/bridge_client.go (ec.c.CallContext(ctx, &result,
// "method", args...)); the transport underneath is
// github.com/valyala/fasthttp for the HTTP transport.
package solclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
)

var logger = nlog.New("solclient")

// Client is a JSON-RPC 2.0 client for the settlement chain's RPC surface.
// It never logs the endpoint URL: callers
// identify the client instance in logs, not its target.
type Client struct {
	hc         *fasthttp.Client
	url        string
	retryOnFail int
	backoff    time.Duration
	idSeq      uint64
}

// New builds a Client. retryOnFail and backoff implement the
// connection/timeout retry policy.
func New(url string, retryOnFail int, backoff time.Duration) *Client {
	return &Client{
		hc: &fasthttp.Client{
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			MaxConnsPerHost: 64,
		},
		url:         url,
		retryOnFail: retryOnFail,
		backoff:     backoff,
	}
}

type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *rpcError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// ErrChainUnavailable is raised once retryOnFail attempts are exhausted,
//.
var ErrChainUnavailable = fmt.Errorf("chain unavailable")

// callContext mirrors bridge_client.go's ec.c.CallContext(ctx, &result, method,
// args...) shape: params is passed as-is (normally a []interface{}), result
// must be a pointer or nil when the caller only needs the error/no-op.
func (c *Client) callContext(ctx context.Context, result interface{}, method string, params interface{}) error {
	c.idSeq++
	req := rpcRequest{JSONRPC: "2.0", ID: c.idSeq, Method: method, Params: params}
	body, err := json.Marshal(req)
	if err != nil {
		return xerr.Wrapf(err, "marshal rpc request %s", method)
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
			logger.Warn("rpc call failed, retrying", "method", method, "attempt", attempt)
			continue
		}
		if resp.Error != nil {
			// A well-formed RPC error response is not a transport failure:
			// return it immediately, it is not retried here.
			return resp.Error
		}
		if result != nil && len(resp.Result) > 0 {
			if err := json.Unmarshal(resp.Result, result); err != nil {
				return xerr.Wrapf(err, "unmarshal rpc result %s", method)
			}
		}
		return nil
	}
	logger.Error("rpc endpoint unavailable", "method", method, "retries", c.retryOnFail)
	_ = lastErr
	return ErrChainUnavailable
}

func (c *Client) doOnce(ctx context.Context, body []byte) (*rpcResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = c.hc.DoDeadline(req, resp, deadline)
	} else {
		err = c.hc.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode())
	}

	var out rpcResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// batchCall sends a JSON-RPC batch (a JSON array of request objects) and
// returns the raw results in request order, used by get_block's batch
// variant and get_tx_receipts.
func (c *Client) batchCall(ctx context.Context, methods []string, params []interface{}) ([]json.RawMessage, error) {
	if len(methods) != len(params) {
		return nil, fmt.Errorf("methods/params length mismatch")
	}
	reqs := make([]rpcRequest, len(methods))
	ids := make([]uint64, len(methods))
	for i := range methods {
		c.idSeq++
		ids[i] = c.idSeq
		reqs[i] = rpcRequest{JSONRPC: "2.0", ID: ids[i], Method: methods[i], Params: params[i]}
	}
	body, err := json.Marshal(reqs)
	if err != nil {
		return nil, xerr.Wrapf(err, "marshal rpc batch")
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
			return nil, xerr.Wrapf(err, "unmarshal rpc batch")
		}
		byID := make(map[uint64]rpcResponse, len(results))
		for _, r := range results {
			byID[r.ID] = r
		}
		out := make([]json.RawMessage, len(ids))
		for i, id := range ids {
			r, ok := byID[id]
			if !ok {
				out[i] = nil
				continue
			}
			if r.Error != nil {
				out[i] = nil
				continue
			}
			out[i] = r.Result
		}
		return out, nil
	}
	logger.Error("rpc batch endpoint unavailable", "size", len(methods), "retries", c.retryOnFail)
	_ = lastErr
	return nil, ErrChainUnavailable
}

func (c *Client) doRawBatch(ctx context.Context, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	deadline, ok := ctx.Deadline()
	var err error
	if ok {
		err = c.hc.DoDeadline(req, resp, deadline)
	} else {
		err = c.hc.Do(req, resp)
	}
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return nil, fmt.Errorf("unexpected http status %d", resp.StatusCode())
	}
	out := make([]byte, len(resp.Body()))
	copy(out, resp.Body())
	return out, nil
}
