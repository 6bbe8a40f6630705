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
	"encoding/json"
	"io"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/nlog"
)

var logger = nlog.New("rpcapi")

const (
	contentTypeJSON = "application/json"
	// maxRequestContentLength bounds a single JSON-RPC POST body, matching
	// convention of rejecting oversized bodies with 413 before parsing.
	maxRequestContentLength = 5 * 1024 * 1024
)

// Mempool is the subset of mempool.Mempool the facade needs: hand a raw tx
// off to the scheduler.
type Mempool interface {
	Add(tx ETx) error
}

// ETx is the facade's view of a submitted transaction, independent of
// mempool.ETx so this package does not import mempool directly (same
// one-directional dependency pattern used across the module).
type ETx struct {
	Hash common.Hash
	RLP  []byte
}

// ReceiptStore is the subset of storage/sqlstore.Store the facade needs to
// answer eth_getTransactionReceipt / eth_getTransactionCount.
type ReceiptStore interface {
	TxBySig(ctx context.Context, sig string) (*TxReceipt, error)
	TxBySenderNonce(ctx context.Context, sender string, nonce uint64) (*TxReceipt, error)
}

// TxReceipt mirrors sqlstore.Tx's shape without importing it.
type TxReceipt struct {
	NeonTxSig string
	TxIndex   int
	Sender    string
	Nonce     uint64
	Status    uint8
	GasUsed   uint64
}

// GasPriceOracle reports the current floor, backing eth_gasPrice.
type GasPriceOracle interface {
	MinExecutableGasPrice() uint64
}

// Server is the thin JSON-RPC-over-HTTP facade: enough surface for a
// client to submit and poll transactions, nothing resembling a full node
// RPC set.
type Server struct {
	router  *httprouter.Router
	mempool Mempool
	store   ReceiptStore
	gas     GasPriceOracle
	chainID uint64

	methods map[string]func(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error)
}

func New(mempool Mempool, store ReceiptStore, gas GasPriceOracle, chainID uint64) *Server {
	s := &Server{
		mempool: mempool,
		store:   store,
		gas:     gas,
		chainID: chainID,
	}
	s.methods = map[string]func(ctx context.Context, s *Server, params json.RawMessage) (interface{}, error){
		"eth_chainId":                   methodChainID,
		"eth_gasPrice":                  methodGasPrice,
		"eth_sendRawTransaction":        methodSendRawTransaction,
		"eth_getTransactionReceipt":     methodGetTransactionReceipt,
		"eth_getTransactionCount":       methodGetTransactionCount,
	}
	s.router = httprouter.New()
	s.router.POST("/", s.handleJSONRPC)
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// validateRequest applies the method/content-type/size checks of
// http_test.go's testHTTPErrorResponse table before any JSON parsing
// happens, returning the HTTP status to send on rejection (0 means ok).
func validateRequest(r *http.Request) (int, string) {
	if r.Method != http.MethodPost {
		return http.StatusMethodNotAllowed, "POST required"
	}
	if ct := r.Header.Get("content-type"); ct == "" || ct != contentTypeJSON {
		return http.StatusUnsupportedMediaType, "application/json required"
	}
	if r.ContentLength > maxRequestContentLength {
		return http.StatusRequestEntityTooLarge, "request body too large"
	}
	return 0, ""
}

func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if code, msg := validateRequest(r); code != 0 {
		http.Error(w, msg, code)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestContentLength+1))
	if err != nil {
		writeJSON(w, errorResponse(nil, codeParseError, "failed to read body"))
		return
	}

	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, errorResponse(nil, codeParseError, "invalid JSON"))
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		writeJSON(w, errorResponse(req.ID, codeInvalidRequest, "not a JSON-RPC 2.0 request"))
		return
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		writeJSON(w, errorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method))
		return
	}
	result, err := handler(r.Context(), s, req.Params)
	if err != nil {
		logger.Error("rpc method failed", "method", req.Method, "err", err)
		writeJSON(w, errorResponse(req.ID, codeServerError, err.Error()))
		return
	}
	writeJSON(w, resultResponse(req.ID, result))
}

func writeJSON(w http.ResponseWriter, resp response) {
	w.Header().Set("content-type", contentTypeJSON)
	if resp.Error != nil {
		w.WriteHeader(http.StatusOK) // JSON-RPC errors ride HTTP 200 by convention
	}
	_ = json.NewEncoder(w).Encode(resp)
}
