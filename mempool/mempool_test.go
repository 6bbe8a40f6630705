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

package mempool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neonlabsorg/neon-proxy-go/common"
	"github.com/neonlabsorg/neon-proxy-go/internal/xerr"
)

func newTx(sender byte, nonce uint64, gasPrice int64) *ETx {
	var addr common.Address
	addr[19] = sender
	var hash common.Hash
	hash[0] = sender
	hash[31] = byte(nonce)
	return &ETx{
		Hash:     hash,
		Sender:   addr,
		Nonce:    nonce,
		GasPrice: big.NewInt(gasPrice),
		GasLimit: big.NewInt(21000),
	}
}

func TestAddAndPendingNonce(t *testing.T) {
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(1, 0, 100)))
	require.NoError(t, mp.Add(newTx(1, 1, 100)))
	assert.Equal(t, uint64(2), mp.PendingNonce([20]byte{19: 1}))
}

func TestGapClassification(t *testing.T) {
	// A fresh sender whose state nonce is 0 inserting nonce 5 is gapped.
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(2, 5, 100)))
	pool := mp.pools[[20]byte{19: 2}]
	assert.True(t, pool.IsGapped())

	// The same nonce with the chain already at tx count 5 is not.
	mp2 := New(1, DefaultConfig)
	tx := newTx(3, 5, 100)
	tx.ExecutionConfig.StateNonceAtEntry = 5
	require.NoError(t, mp2.Add(tx))
	assert.False(t, mp2.pools[[20]byte{19: 3}].IsGapped())
}

func TestAddDuplicateHashAlreadyKnown(t *testing.T) {
	mp := New(1, DefaultConfig)
	tx := newTx(7, 0, 100)
	require.NoError(t, mp.Add(tx))
	assert.ErrorIs(t, mp.Add(tx), xerr.ErrKnownTx)
}

func TestGapFillPromotesConsecutiveRun(t *testing.T) {
	// Nonces 0,2,3,5 with state nonce 0: only 0 is executable. Filling
	// nonce 1 promotes the 1,2,3 run; 5 stays behind the 4-gap.
	mp := New(1, DefaultConfig)
	for _, n := range []uint64{0, 2, 3, 5} {
		require.NoError(t, mp.Add(newTx(8, n, 100)))
	}
	pool := mp.pools[[20]byte{19: 8}]
	assert.False(t, pool.IsGapped()) // top is nonce 0

	require.NoError(t, mp.Add(newTx(8, 1, 100)))
	for want := uint64(0); want <= 3; want++ {
		got := mp.Acquire()
		require.NotNil(t, got, "nonce %d should be executable", want)
		assert.Equal(t, want, got.Nonce)
		mp.Done(got.Hash, got.Nonce+1)
	}
	// Nonce 5 is stranded behind the missing 4: the pool is gapped and
	// Acquire finds nothing in the pending queue.
	assert.True(t, pool.IsGapped())
	assert.Nil(t, mp.Acquire())
}

func TestUnderpriceEvictionAtCapacityPressure(t *testing.T) {
	// Past the watermark a pending tx outbidding the lowest pending tx
	// evicts it; one underbidding is refused; a gapped underbidder gets
	// NonceTooHigh.
	cfg := Config{Capacity: 4, HighWatermark: 0.5, EvictionTimeout: DefaultConfig.EvictionTimeout}
	mp := New(1, cfg)
	require.NoError(t, mp.Add(newTx(1, 0, 10)))
	require.NoError(t, mp.Add(newTx(2, 0, 20)))

	require.NoError(t, mp.Add(newTx(3, 0, 11))) // outbids the 10
	_, stillThere := mp.Get(newTx(1, 0, 10).Hash)
	assert.False(t, stillThere, "lowest-priced tx should have been evicted")

	assert.ErrorIs(t, mp.Add(newTx(4, 0, 9)), xerr.ErrUnderprice)
	assert.ErrorIs(t, mp.Add(newTx(5, 3, 9)), xerr.ErrNonceTooHigh)
}

func TestCancelRequeuesFailDrops(t *testing.T) {
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(10, 0, 100)))

	got := mp.Acquire()
	require.NotNil(t, got)
	require.Nil(t, mp.Acquire(), "tx is in flight, nothing else to hand out")

	// Cancel is the reschedule path: the tx stays resident and a later
	// Acquire hands it out again.
	require.NoError(t, mp.Cancel(got.Hash))
	again := mp.Acquire()
	require.NotNil(t, again)
	assert.Equal(t, got.Hash, again.Hash)

	// Fail is terminal: the tx leaves the pool entirely.
	mp.Fail(again.Hash)
	_, still := mp.Get(again.Hash)
	assert.False(t, still)
	assert.Nil(t, mp.Acquire())
}

func TestNonceTooLowRejected(t *testing.T) {
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(9, 0, 100)))
	got := mp.Acquire()
	require.NotNil(t, got)
	mp.Done(got.Hash, 1)
	assert.ErrorIs(t, mp.Add(newTx(9, 0, 200)), xerr.ErrNonceTooLow)
}

func TestNonceUniquenessAndHashIndexEquality(t *testing.T) {
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(4, 0, 100)))
	require.NoError(t, mp.Add(newTx(4, 1, 100)))

	total := 0
	for _, pool := range mp.pools {
		total += pool.Len()
	}
	assert.Equal(t, len(mp.byHash), total, "|hash->ETx| must equal sum of per-pool nonce counts")
}

func TestUnderpriceRejected(t *testing.T) {
	mp := New(1, DefaultConfig)
	require.NoError(t, mp.Add(newTx(5, 0, 100)))
	low := newTx(5, 0, 50)
	low.Hash[30] = 1 // a distinct tx for the same (sender, nonce), not a resubmission
	err := mp.Add(low)
	assert.ErrorIs(t, err, xerr.ErrUnderprice)
}

func TestMinGasPriceFloorRejectsBelowWindow(t *testing.T) {
	mp := New(1, DefaultConfig)
	mp.SetMinExecutableGasPrice(big.NewInt(1000))
	err := mp.Add(newTx(6, 0, 500))
	assert.ErrorIs(t, err, xerr.ErrUnderprice)
	require.NoError(t, mp.Add(newTx(6, 0, 1500)))
}
