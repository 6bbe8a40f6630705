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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeMempool struct {
	added []ETx
}

func (f *fakeMempool) Add(tx ETx) error {
	f.added = append(f.added, tx)
	return nil
}

type fakeStore struct {
	bySig map[string]*TxReceipt
}

func (f *fakeStore) TxBySig(ctx context.Context, sig string) (*TxReceipt, error) {
	return f.bySig[sig], nil
}

func (f *fakeStore) TxBySenderNonce(ctx context.Context, sender string, nonce uint64) (*TxReceipt, error) {
	return nil, nil
}

type fakeGas struct{ price uint64 }

func (f *fakeGas) MinExecutableGasPrice() uint64 { return f.price }

func testHTTPErrorResponse(t *testing.T, method, contentType, body string, expected int) {
	t.Helper()
	request := httptest.NewRequest(method, "http://localhost/", strings.NewReader(body))
	if contentType != "" {
		request.Header.Set("content-type", contentType)
	}
	if code, _ := validateRequest(request); code != expected {
		t.Fatalf("response code should be %d not %d", expected, code)
	}
}

func TestHTTPErrorResponseWithDelete(t *testing.T) {
	testHTTPErrorResponse(t, http.MethodDelete, contentTypeJSON, "", http.StatusMethodNotAllowed)
}

func TestHTTPErrorResponseWithPut(t *testing.T) {
	testHTTPErrorResponse(t, http.MethodPut, contentTypeJSON, "", http.StatusMethodNotAllowed)
}

func TestHTTPErrorResponseWithEmptyContentType(t *testing.T) {
	testHTTPErrorResponse(t, http.MethodPost, "", "", http.StatusUnsupportedMediaType)
}

func TestHTTPErrorResponseWithValidRequest(t *testing.T) {
	request := httptest.NewRequest(http.MethodPost, "http://localhost/", strings.NewReader("{}"))
	request.Header.Set("content-type", contentTypeJSON)
	code, _ := validateRequest(request)
	require.Equal(t, 0, code)
}

func TestServerDispatchesSendRawTransactionAndReceipt(t *testing.T) {
	mp := &fakeMempool{}
	store := &fakeStore{bySig: map[string]*TxReceipt{
		"abc123": {NeonTxSig: "abc123", Sender: "0xsender", Status: 1, GasUsed: 21000},
	}}
	s := New(mp, store, &fakeGas{price: 42}, 245022934)

	req := httptest.NewRequest(http.MethodPost, "http://localhost/",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"eth_sendRawTransaction","params":["0xdeadbeef"]}`))
	req.Header.Set("content-type", contentTypeJSON)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, mp.added, 1)

	req2 := httptest.NewRequest(http.MethodPost, "http://localhost/",
		strings.NewReader(`{"jsonrpc":"2.0","id":2,"method":"eth_getTransactionReceipt","params":["abc123"]}`))
	req2.Header.Set("content-type", contentTypeJSON)
	rr2 := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr2, req2)
	require.Equal(t, http.StatusOK, rr2.Code)
	require.Contains(t, rr2.Body.String(), "abc123")
}

func TestServerUnknownMethod(t *testing.T) {
	s := New(&fakeMempool{}, &fakeStore{bySig: map[string]*TxReceipt{}}, &fakeGas{}, 1)
	req := httptest.NewRequest(http.MethodPost, "http://localhost/",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"eth_unknownThing","params":[]}`))
	req.Header.Set("content-type", contentTypeJSON)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Contains(t, rr.Body.String(), "method not found")
}
