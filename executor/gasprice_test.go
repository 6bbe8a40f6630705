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

package executor

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGasPriceWindowTracksMinimum(t *testing.T) {
	w := newGasPriceWindow(time.Minute)
	base := time.Unix(1700000000, 0)

	got := w.Add(big.NewInt(100), base)
	assert.Equal(t, big.NewInt(100), got)

	got = w.Add(big.NewInt(50), base.Add(10*time.Second))
	assert.Equal(t, big.NewInt(50), got)

	got = w.Add(big.NewInt(200), base.Add(20*time.Second))
	assert.Equal(t, big.NewInt(50), got, "spike above the window minimum must not raise the floor")
}

func TestGasPriceWindowExpiresOldSamples(t *testing.T) {
	w := newGasPriceWindow(time.Minute)
	base := time.Unix(1700000000, 0)

	w.Add(big.NewInt(10), base)
	got := w.Add(big.NewInt(90), base.Add(2*time.Minute))
	assert.Equal(t, big.NewInt(90), got, "sample older than the window span must be dropped")
}
